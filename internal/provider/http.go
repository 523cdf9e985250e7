package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/reliability"
)

const httpProviderName = "http"

// HTTPProvider talks to a places API over JSON.
//
//	GET  {base}/v1/geocode?q=<text>   -> models.ResolvedLocation
//	POST {base}/v1/places/search      -> {"places": [...]}
type HTTPProvider struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewHTTPProvider creates an HTTP provider. A zero timeout leaves the client without one;
// guarded calls still carry their own deadline.
func NewHTTPProvider(baseURL, apiKey string, timeout time.Duration) *HTTPProvider {
	return &HTTPProvider{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		client:  &http.Client{Timeout: timeout},
	}
}

// Name returns "http".
func (p *HTTPProvider) Name() string { return httpProviderName }

type searchBody struct {
	Category string         `json:"category"`
	Center   *models.LatLng `json:"center,omitempty"`
	RadiusM  float64        `json:"radiusM,omitempty"`
	Filters  models.Filters `json:"filters"`
	Limit    int            `json:"limit,omitempty"`
}

type searchReply struct {
	Places []models.Place `json:"places"`
}

// Geocode resolves text. A 404 is a GeocodingFailure.
func (p *HTTPProvider) Geocode(ctx context.Context, text string) (*models.ResolvedLocation, error) {
	u := p.baseURL + "/v1/geocode?q=" + url.QueryEscape(text)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	var loc models.ResolvedLocation
	if err := p.do(req, &loc); err != nil {
		var pe *reliability.ProviderError
		if errors.As(err, &pe) && pe.StatusCode == http.StatusNotFound {
			return nil, &reliability.GeocodingFailure{Location: text}
		}
		return nil, err
	}
	if loc.Granularity == "" {
		loc.Granularity = models.GranularityUnknown
	}
	return &loc, nil
}

// Search posts the query and returns the places as reported.
func (p *HTTPProvider) Search(ctx context.Context, q models.ProviderQuery) ([]models.Place, error) {
	body, err := json.Marshal(searchBody{
		Category: q.Category,
		Center:   q.Center,
		RadiusM:  q.RadiusM,
		Filters:  q.Filters,
		Limit:    q.Limit,
	})
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/places/search", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	var reply searchReply
	if err := p.do(req, &reply); err != nil {
		return nil, err
	}
	if reply.Places == nil {
		reply.Places = []models.Place{}
	}
	return reply.Places, nil
}

func (p *HTTPProvider) do(req *http.Request, out interface{}) error {
	req.Header.Set("Accept", "application/json")
	if p.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+p.apiKey)
	}
	resp, err := p.client.Do(req)
	if err != nil {
		if ctxErr := req.Context().Err(); ctxErr != nil {
			return ctxErr
		}
		return &reliability.ProviderError{Provider: httpProviderName, Err: err}
	}
	defer resp.Body.Close()

	if err := statusError(resp); err != nil {
		return err
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return &reliability.ProviderError{Provider: httpProviderName, StatusCode: resp.StatusCode, Err: fmt.Errorf("decode response: %w", err)}
	}
	return nil
}

// statusError maps a non-2xx response onto the error taxonomy.
func statusError(resp *http.Response) error {
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return nil
	}
	msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
	detail := errors.New(strings.TrimSpace(string(msg)))
	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return &reliability.QuotaExceeded{Provider: httpProviderName, RetryAfter: retryAfter(resp.Header.Get("Retry-After"))}
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &reliability.AuthError{Provider: httpProviderName, Err: detail}
	default:
		return &reliability.ProviderError{Provider: httpProviderName, StatusCode: resp.StatusCode, Err: detail}
	}
}

func retryAfter(v string) time.Duration {
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := time.Until(t); d > 0 {
			return d
		}
	}
	return 0
}

// Close releases idle connections.
func (p *HTTPProvider) Close() error {
	p.client.CloseIdleConnections()
	return nil
}
