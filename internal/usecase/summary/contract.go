package summary

import (
	"context"

	"github.com/kailas-cloud/biblio/internal/domain"
)

// Completer sends a prompt to the language model.
type Completer interface {
	Complete(ctx context.Context, req domain.CompletionRequest) (domain.CompletionResult, error)
}
