package turn

import (
	"context"
	"strings"
	"testing"

	apperrors "github.com/mirelark/storyloom/internal/errors"
	"github.com/mirelark/storyloom/internal/modelprovider"
)

// scriptedInvoker replays canned responses and records requests.
type scriptedInvoker struct {
	responses []modelprovider.Response
	errs      []error
	requests  []modelprovider.Request
}

func (s *scriptedInvoker) Invoke(_ context.Context, req modelprovider.Request) (modelprovider.Response, error) {
	s.requests = append(s.requests, req)
	i := len(s.requests) - 1
	if i < len(s.errs) && s.errs[i] != nil {
		return modelprovider.Response{}, s.errs[i]
	}
	if i < len(s.responses) {
		return s.responses[i], nil
	}
	return modelprovider.Response{}, nil
}

func baseRequest() modelprovider.Request {
	return modelprovider.Request{
		Model:       "gpt-test",
		Instruction: "Narrate the turn.",
		Payload:     []byte(`{}`),
		Temperature: 0.8,
	}
}

func TestGenerateValidFirstTry(t *testing.T) {
	invoker := &scriptedInvoker{responses: []modelprovider.Response{
		{Text: `{"narrative": "All quiet.", "choices": [{"id": "wait", "label": "Wait"}]}`},
	}}
	gen, err := generate(context.Background(), invoker, baseRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if gen.RepairAttempted {
		t.Error("repair attempted on a valid response")
	}
	if gen.Result.Narrative != "All quiet." {
		t.Errorf("narrative = %q", gen.Result.Narrative)
	}
	if len(invoker.requests) != 1 {
		t.Errorf("invocations = %d, want 1", len(invoker.requests))
	}
}

func TestGenerateRepairSucceeds(t *testing.T) {
	invoker := &scriptedInvoker{responses: []modelprovider.Response{
		{Text: `here is your json: {"narrative": "x"}`},
		{Text: `{"narrative": "Repaired.", "choices": [{"id": "go", "label": "Go"}]}`},
	}}
	gen, err := generate(context.Background(), invoker, baseRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !gen.RepairAttempted {
		t.Error("repair not flagged")
	}
	if gen.Result.Narrative != "Repaired." {
		t.Errorf("narrative = %q", gen.Result.Narrative)
	}

	if len(invoker.requests) != 2 {
		t.Fatalf("invocations = %d, want 2", len(invoker.requests))
	}
	repair := invoker.requests[1]
	if repair.Temperature >= invoker.requests[0].Temperature {
		t.Errorf("repair temperature %v not lowered from %v", repair.Temperature, invoker.requests[0].Temperature)
	}
	if !strings.Contains(repair.Instruction, "rejected") {
		t.Errorf("repair instruction missing validation feedback: %q", repair.Instruction)
	}
	if !strings.Contains(repair.Instruction, "here is your json") {
		t.Errorf("repair instruction missing raw output: %q", repair.Instruction)
	}
}

func TestGenerateRepairFailureIsMalformed(t *testing.T) {
	invoker := &scriptedInvoker{responses: []modelprovider.Response{
		{Text: `not json`},
		{Text: `still not json`},
	}}
	gen, err := generate(context.Background(), invoker, baseRequest())
	if apperrors.CodeOf(err) != apperrors.CodeModelResponseMalformed {
		t.Fatalf("code = %s, want MODEL_RESPONSE_MALFORMED", apperrors.CodeOf(err))
	}
	if !gen.RepairAttempted {
		t.Error("repair not flagged")
	}
	if len(invoker.requests) != 2 {
		t.Errorf("invocations = %d, want exactly 2", len(invoker.requests))
	}
}

func TestGenerateTimeoutPropagates(t *testing.T) {
	timeout := apperrors.New(apperrors.CodeModelTimeout, "deadline")
	invoker := &scriptedInvoker{errs: []error{timeout}}
	_, err := generate(context.Background(), invoker, baseRequest())
	if apperrors.CodeOf(err) != apperrors.CodeModelTimeout {
		t.Fatalf("code = %s, want MODEL_TIMEOUT", apperrors.CodeOf(err))
	}
	if len(invoker.requests) != 1 {
		t.Errorf("invocations = %d, want 1 (no internal retry)", len(invoker.requests))
	}
}

func TestGenerateSchemaFailureTriggersRepairNotNormalization(t *testing.T) {
	// An invalid-but-parseable response goes through repair, not straight to
	// normalization fallbacks.
	invoker := &scriptedInvoker{responses: []modelprovider.Response{
		{Text: `{"narrative": "x", "mystery_key": 1}`},
		{Text: `{"narrative": "Fixed.", "choices": []}`},
	}}
	gen, err := generate(context.Background(), invoker, baseRequest())
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !gen.RepairAttempted {
		t.Error("repair not attempted for unknown key")
	}
	if gen.Result.Choices[0].ID != FallbackChoiceID {
		t.Errorf("choices = %+v, want fallback after empty list", gen.Result.Choices)
	}
}
