package health

import "context"

// LibraryChecker checks library API availability.
type LibraryChecker interface {
	HealthCheck(ctx context.Context) error
}

// LLMChecker checks language model provider availability.
type LLMChecker interface {
	HealthCheck(ctx context.Context) error
}
