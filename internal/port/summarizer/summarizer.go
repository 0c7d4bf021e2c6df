// Package summarizer defines the port for the document summarization
// collaborator.
package summarizer

import (
	"context"

	"github.com/Strob0t/Tasktrack/internal/domain/evidence"
)

// Request is the input for one summarization.
type Request struct {
	TaskTitle string
	Filename  string
	Content   string
}

// Summarizer produces an advisory summary of a document. Implementations
// must honour ctx cancellation.
type Summarizer interface {
	Summarize(ctx context.Context, req Request) (*evidence.Summary, error)
}
