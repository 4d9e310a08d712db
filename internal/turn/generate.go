package turn

import (
	"context"
	"fmt"

	apperrors "github.com/mirelark/storyloom/internal/errors"
	"github.com/mirelark/storyloom/internal/modelprovider"
)

// repairTemperatureScale lowers sampling on the repair attempt so the retry
// is more conservative than the original.
const repairTemperatureScale = 0.5

// generation is the outcome of one model round trip plus repair.
type generation struct {
	Result          Result
	RepairAttempted bool
}

// generate invokes the model once and, on a schema-invalid response, issues
// exactly one repair attempt carrying the validation error and the raw output.
// A second invalid response is MODEL_RESPONSE_MALFORMED. Timeouts propagate
// untouched.
func generate(ctx context.Context, invoker modelprovider.Invoker, req modelprovider.Request) (generation, error) {
	res, err := invoker.Invoke(ctx, req)
	if err != nil {
		return generation{}, err
	}

	raw, validationErr := parseAndValidate(res.Text)
	if validationErr == nil {
		result, err := normalize(raw)
		if err != nil {
			return generation{}, err
		}
		return generation{Result: result}, nil
	}

	repairReq := req
	repairReq.Instruction = repairInstruction(req.Instruction, validationErr, res.Text)
	repairReq.Temperature = req.Temperature * repairTemperatureScale

	repairRes, err := invoker.Invoke(ctx, repairReq)
	if err != nil {
		return generation{RepairAttempted: true}, err
	}
	raw, repairValidationErr := parseAndValidate(repairRes.Text)
	if repairValidationErr != nil {
		return generation{RepairAttempted: true}, apperrors.Wrap(
			apperrors.CodeModelResponseMalformed, repairValidationErr,
			"response still invalid after repair (first failure: %v)", validationErr)
	}
	result, err := normalize(raw)
	if err != nil {
		return generation{RepairAttempted: true}, err
	}
	return generation{Result: result, RepairAttempted: true}, nil
}

func parseAndValidate(text string) (rawResponse, error) {
	raw, err := parseRaw(text)
	if err != nil {
		return nil, err
	}
	if err := validateRaw(raw); err != nil {
		return nil, err
	}
	return raw, nil
}

// repairInstruction restates the original instruction with the validation
// failure and the malformed output, asking for a corrected single JSON object.
func repairInstruction(original string, validationErr error, rawOutput string) string {
	return fmt.Sprintf(
		"%s\n\nYour previous response was rejected: %v\n\nPrevious response:\n%s\n\nRespond again with a single valid JSON object and nothing else.",
		original, validationErr, rawOutput)
}
