package search

import (
	"strings"

	"github.com/hyperjump/basho/internal/config"
	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/narration"
	"github.com/hyperjump/basho/internal/reliability"
)

// ProcessRequest validates the request and applies limit defaults.
func ProcessRequest(req *models.SearchRequest, cfg config.SearchConfig) error {
	if req == nil {
		return &reliability.ValidationError{Field: "query", Message: "required"}
	}
	req.Query = strings.TrimSpace(req.Query)
	if err := req.Normalize(cfg.DefaultLimit, cfg.MaxLimit); err != nil {
		return &reliability.ValidationError{Field: "query", Message: err.Error()}
	}
	return nil
}

// applyOverrides lets explicit request fields win over the resolved intent.
func applyOverrides(in *models.Intent, req *models.SearchRequest, defaultLanguage string) {
	if req.Location != "" {
		in.Location = strings.TrimSpace(req.Location)
	}
	in.Filters = in.Filters.Merge(req.Filters)
	switch {
	case req.Language != "":
		in.Language = req.Language
	case in.Language == "":
		in.Language = defaultLanguage
	}
	in.Language = narration.NormalizeLanguage(in.Language)
}
