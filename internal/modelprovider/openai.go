package modelprovider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	apperrors "github.com/mirelark/storyloom/internal/errors"
)

// OpenAIConfig configures the OpenAI responses endpoint and HTTP behavior.
type OpenAIConfig struct {
	ResponsesURL string
	APIKey       string
	// Timeout bounds each invocation when the caller's context carries no
	// earlier deadline.
	Timeout    time.Duration
	HTTPClient *http.Client
}

type openAIInvoker struct {
	cfg OpenAIConfig
}

// NewOpenAIInvoker builds an Invoker over the OpenAI responses API.
func NewOpenAIInvoker(cfg OpenAIConfig) Invoker {
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = http.DefaultClient
	}
	if strings.TrimSpace(cfg.ResponsesURL) == "" {
		cfg.ResponsesURL = "https://api.openai.com/v1/responses"
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &openAIInvoker{cfg: cfg}
}

func (a *openAIInvoker) Invoke(ctx context.Context, req Request) (Response, error) {
	apiKey := strings.TrimSpace(a.cfg.APIKey)
	if apiKey == "" {
		return Response{}, fmt.Errorf("api key is required")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		return Response{}, fmt.Errorf("model is required")
	}
	if len(req.Payload) == 0 {
		return Response{}, fmt.Errorf("payload is required")
	}

	ctx, cancel := context.WithTimeout(ctx, a.cfg.Timeout)
	defer cancel()

	requestBody, err := json.Marshal(map[string]any{
		"model":        model,
		"instructions": req.Instruction,
		"input":        string(req.Payload),
		"temperature":  req.Temperature,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal invoke request: %w", err)
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, a.cfg.ResponsesURL, bytes.NewReader(requestBody))
	if err != nil {
		return Response{}, fmt.Errorf("build invoke request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	// Credential material goes only into the Authorization header and is
	// never echoed in errors or response payloads.
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)

	res, err := a.cfg.HTTPClient.Do(httpReq)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			return Response{}, apperrors.Wrap(apperrors.CodeModelTimeout, err, "model %s", model)
		}
		return Response{}, fmt.Errorf("invoke request failed: %w", err)
	}
	defer res.Body.Close()
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		body, readErr := io.ReadAll(io.LimitReader(res.Body, 4096))
		if readErr != nil {
			return Response{}, fmt.Errorf("read invoke error body: %w", readErr)
		}
		return Response{}, fmt.Errorf("invoke request status %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}

	var payload struct {
		OutputText string `json:"output_text"`
		Output     []struct {
			Content []struct {
				Type string `json:"type"`
				Text string `json:"text"`
			} `json:"content"`
		} `json:"output"`
	}
	if err := json.NewDecoder(res.Body).Decode(&payload); err != nil {
		return Response{}, fmt.Errorf("decode invoke response: %w", err)
	}
	outputText := strings.TrimSpace(payload.OutputText)
	if outputText == "" {
		for _, item := range payload.Output {
			for _, content := range item.Content {
				if strings.TrimSpace(content.Text) != "" {
					outputText = strings.TrimSpace(content.Text)
					break
				}
			}
			if outputText != "" {
				break
			}
		}
	}
	if outputText == "" {
		return Response{}, fmt.Errorf("invoke response missing output text")
	}
	return Response{Text: outputText}, nil
}
