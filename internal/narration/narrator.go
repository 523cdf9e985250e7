// Package narration turns an AssistantContext into streamed assistant text.
package narration

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/hyperjump/basho/internal/config"
	"github.com/hyperjump/basho/internal/models"
)

// Request is everything a narrator may see.
type Request struct {
	Context models.AssistantContext
	Mode    models.ResponseMode
}

// Result holds the actions a narrator selected. Ids are validated by the caller.
type Result struct {
	PrimaryActionID    string
	SecondaryActionIDs []string
}

// Narrator writes text increments to out, in order, and returns the selected actions.
// out is owned by the caller; a narrator never closes it and stops sending once ctx is done.
type Narrator interface {
	Name() string
	Narrate(ctx context.Context, req Request, out chan<- string) (Result, error)
}

// New creates the narrator selected by cfg.Kind.
func New(cfg config.NarrationConfig, logger *zap.Logger) (Narrator, error) {
	switch cfg.Kind {
	case config.NarratorTemplate, "":
		return NewTemplateNarrator(), nil
	case config.NarratorOpenAI:
		key := os.Getenv(cfg.APIKeyEnv)
		if key == "" {
			return nil, fmt.Errorf("%s environment variable not set", cfg.APIKeyEnv)
		}
		return NewOpenAINarrator(key, cfg, logger), nil
	default:
		return nil, fmt.Errorf("unknown narrator kind %q", cfg.Kind)
	}
}

// emit sends s to out unless ctx is done first.
func emit(ctx context.Context, out chan<- string, s string) error {
	select {
	case out <- s:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// defaultActions picks the first chip as primary and the next two as secondary.
func defaultActions(ctx models.AssistantContext) Result {
	var r Result
	for i, c := range ctx.Chips {
		switch {
		case i == 0:
			r.PrimaryActionID = c.ID
		case i <= 2:
			r.SecondaryActionIDs = append(r.SecondaryActionIDs, c.ID)
		}
	}
	return r
}
