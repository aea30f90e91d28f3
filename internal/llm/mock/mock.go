// Package mock is the deterministic LLM backend selected by
// LLM_PROVIDER=mock. It never calls out to a vendor; its behavior is a
// pure function of the assembled prompt segments, which makes the
// end-to-end pipeline scenarios reproducible in tests.
package mock

import (
	"context"
	"fmt"
	"strings"

	"github.com/threadline/dialoguecore/internal/llm"
)

type Engine struct{}

func New() *Engine { return &Engine{} }

// weatherTriggers names substrings of the latest user turn that cause the
// mock to request the "weather" tool instead of answering directly, but only
// while the assembled prompt holds no tool segment yet; a tool segment from
// an earlier Turn in the same context suppresses the request.
var weatherTriggers = []string{"umbrella", "weather", "rain"}

func (e *Engine) Complete(ctx context.Context, segments []llm.Message, opts llm.CompletionOptions) (llm.CompletionResult, error) {
	select {
	case <-ctx.Done():
		return llm.CompletionResult{}, ctx.Err()
	default:
	}

	var lastUser string
	var sawTool bool
	for _, seg := range segments {
		switch seg.Role {
		case llm.RoleUser:
			lastUser = seg.Content
		case llm.RoleTool:
			sawTool = true
		}
	}

	if !sawTool {
		lower := strings.ToLower(lastUser)
		for _, trigger := range weatherTriggers {
			if strings.Contains(lower, trigger) {
				return llm.CompletionResult{
					ToolRequest: &llm.ToolRequest{
						ToolID: "weather",
						Parameters: map[string]any{
							"city": "Singapore",
							"date": "tomorrow",
						},
					},
				}, nil
			}
		}
	}

	if sawTool {
		var toolLine string
		for _, seg := range segments {
			if seg.Role == llm.RoleTool {
				toolLine = seg.Content
			}
		}
		return llm.CompletionResult{
			Text: fmt.Sprintf("Based on %s, here's what I found.", toolLine),
		}, nil
	}

	if strings.TrimSpace(lastUser) == "" {
		return llm.CompletionResult{Text: "mock: ok"}, nil
	}
	return llm.CompletionResult{Text: fmt.Sprintf("mock: %s", lastUser)}, nil
}

func (e *Engine) Stream(ctx context.Context, segments []llm.Message, opts llm.CompletionOptions, onDelta func(delta string)) (llm.CompletionResult, error) {
	result, err := e.Complete(ctx, segments, opts)
	if err != nil {
		return llm.CompletionResult{}, err
	}
	if onDelta == nil || result.Text == "" {
		return result, nil
	}
	const chunk = 16
	full := result.Text
	for i := 0; i < len(full); i += chunk {
		select {
		case <-ctx.Done():
			return llm.CompletionResult{}, ctx.Err()
		default:
		}
		end := i + chunk
		if end > len(full) {
			end = len(full)
		}
		onDelta(full[i:end])
	}
	return result, nil
}
