package domain

import "context"

// Completer is the shared language model contract between layers.
type Completer interface {
	Complete(ctx context.Context, req CompletionRequest) (CompletionResult, error)
}

// HealthChecker verifies provider availability.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// CompletionRequest is a single-prompt completion call.
type CompletionRequest struct {
	Prompt string
	// Temperature is the sampling temperature; zero leaves the provider default.
	Temperature float32
	// Stage labels metrics and logs ("planner", "summary").
	Stage string
}

// CompletionResult carries the raw model reply and token usage.
type CompletionResult struct {
	Text             string
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
}
