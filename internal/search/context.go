package search

import (
	"hash/fnv"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/hyperjump/basho/internal/config"
)

// RequestContext carries per-request identity and settings through every pipeline stage.
type RequestContext struct {
	ID     string
	Seed   uint64
	Start  time.Time
	Logger *zap.Logger
	Config *config.Config
}

// NewRequestContext assigns a fresh request id.
func NewRequestContext(cfg *config.Config, logger *zap.Logger, now time.Time) *RequestContext {
	id := uuid.NewString()
	return &RequestContext{
		ID:     id,
		Seed:   SeedFor(id),
		Start:  now,
		Logger: logger.With(zap.String("request_id", id)),
		Config: cfg,
	}
}

// SeedFor derives the deterministic seed of a request id (FNV-64a).
func SeedFor(id string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(id))
	return h.Sum64()
}
