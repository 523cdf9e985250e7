package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/basho/internal/hub"
	"github.com/hyperjump/basho/internal/metrics"
	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/reliability"
	"github.com/hyperjump/basho/internal/search"
	"github.com/hyperjump/basho/internal/store"
)

const maxBodyBytes = 64 << 10

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	mode := r.URL.Query().Get("mode")
	if mode == "" {
		mode = models.SearchModeAsync
	}
	if mode != models.SearchModeAsync && mode != models.SearchModeSync {
		s.respondError(w, http.StatusBadRequest, "mode must be sync or async")
		return
	}

	var req models.SearchRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if explain, _ := strconv.ParseBool(r.URL.Query().Get("explain")); explain {
		req.Explain = true
	}
	if err := req.Validate(); err != nil {
		s.respondError(w, http.StatusBadRequest, err.Error())
		return
	}
	s.logger.Debug("search request", zap.String("query", req.Query), zap.String("mode", mode), zap.Int("limit", req.Limit))

	out, err := s.engine.Search(r.Context(), &req)
	if err != nil {
		var verr *reliability.ValidationError
		switch {
		case errors.As(err, &verr):
			s.respondError(w, http.StatusBadRequest, verr.Error())
		case errors.Is(err, context.Canceled):
			s.logger.Debug("search cancelled by client")
		default:
			s.logger.Error("search failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "search failed")
		}
		return
	}

	resp := BuildResponse(out, mode)
	if mode == models.SearchModeSync {
		// The job outlives a client that gives up; its own timeout bounds it.
		final, err := s.jobs.RunSync(context.WithoutCancel(r.Context()), out.State.RequestID)
		if err == nil && final == nil {
			err = errors.New("no request state after narration")
		}
		if err != nil {
			s.logger.Error("sync narration failed", zap.String("request_id", out.State.RequestID), zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, "narration failed")
			return
		}
		resp.Meta.AssistantStatus = final.Status
		resp.Assistant = final.Output
		resp.Recommendations = final.Recommendations
		if resp.Recommendations == nil {
			resp.Recommendations = []models.Recommendation{}
		}
	} else {
		s.jobs.StartJob(out.State.RequestID)
	}

	metrics.ObserveSearch(mode, string(resp.Meta.FailureReason), out.Took, len(resp.Results))
	s.respondJSON(w, http.StatusOK, resp)
}

// BuildResponse shapes a fast-path outcome. Business failures are reported in meta, never as errors.
func BuildResponse(out *search.Outcome, mode string) *models.SearchResponse {
	ts := out.Truth
	return &models.SearchResponse{
		RequestID: out.State.RequestID,
		Results:   ts.Results(),
		Groups:    ts.Groups(),
		Chips:     ts.Chips(),
		Meta: models.SearchMeta{
			FailureReason:   ts.FailureReason(),
			ResponseMode:    ts.ResponseMode(),
			AssistantStatus: out.State.Status,
			Mode:            mode,
			Language:        out.Intent.Language,
			Total:           ts.ResultCount(),
			TookMs:          out.Took.Milliseconds(),
			ResultDigest:    out.State.Digest,
			Location:        out.Location,
			Breakdown:       out.Breakdown,
		},
	}
}

func (s *Server) handleGetRequest(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	st, err := s.store.Get(r.Context(), id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			s.respondError(w, http.StatusNotFound, "request not found")
			return
		}
		s.logger.Error("request lookup failed", zap.String("request_id", id), zap.Error(err))
		s.respondError(w, http.StatusInternalServerError, "request lookup failed")
		return
	}
	s.respondJSON(w, http.StatusOK, st)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	h := s.config.Hub
	s.hub.ServeWS(w, r, s.jobs, hub.ConnOptions{
		SendBuffer:      h.SendBuffer,
		WriteTimeout:    h.WriteTimeout,
		MaxMessageBytes: h.MaxMessageBytes,
		SubscribeRate:   h.SubscribeRate,
		SubscribeBurst:  h.SubscribeBurst,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := map[string]interface{}{"status": "ok"}
	if n, err := s.store.Len(r.Context()); err == nil {
		resp["requests"] = n
	}
	if s.hub != nil {
		resp["connections"] = s.hub.Stats().Connections
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
