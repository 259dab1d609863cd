package llm

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/cloudwego/eino/schema"

	"github.com/tbxark/remi/types"
)

// FailbackCollaborator asks each collaborator in turn; the first success wins.
type FailbackCollaborator struct {
	collaborators []Collaborator
	logger        *slog.Logger
}

func NewFailbackCollaborator(logger *slog.Logger, collaborators ...Collaborator) *FailbackCollaborator {
	if logger == nil {
		logger = slog.Default()
	}
	return &FailbackCollaborator{collaborators: collaborators, logger: logger}
}

func (f *FailbackCollaborator) Converse(ctx context.Context, req *types.TurnRequest, history []*schema.Message) (*Reply, error) {
	if len(f.collaborators) == 0 {
		return nil, fmt.Errorf("%w: no collaborators configured", types.ErrLLMUnavailable)
	}
	var errs []error
	for i, c := range f.collaborators {
		reply, err := c.Converse(ctx, req, history)
		if err == nil {
			return reply, nil
		}
		f.logger.Warn("Collaborator failed, trying next", "index", i, "error", err)
		errs = append(errs, err)
		if ctx.Err() != nil {
			break
		}
	}
	return nil, fmt.Errorf("all collaborators failed: %w", errors.Join(errs...))
}

var _ Collaborator = (*FailbackCollaborator)(nil)
