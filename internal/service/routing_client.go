package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/isoplanner/backend/internal/config"
	"github.com/isoplanner/backend/internal/domain"
	"github.com/isoplanner/backend/internal/observability"
)

// maxErrorBody bounds how much of a failed response is kept for the error.
const maxErrorBody = 512

// IsochroneQuery is a single (point, time) request to the routing service.
type IsochroneQuery struct {
	Coord         orb.Point
	RangeSeconds  float64
	Mode          domain.TransportMode
	AvoidPolygons orb.MultiPolygon
}

// IsochroneFetcher fetches the reachable-area features for one query.
type IsochroneFetcher interface {
	FetchIsochrones(ctx context.Context, q IsochroneQuery) ([]*geojson.Feature, error)
}

// RoutingClient talks to the OpenRouteService isochrone API
type RoutingClient struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewRoutingClient creates a new routing client
func NewRoutingClient(cfg config.RoutingConfig) *RoutingClient {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &RoutingClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type isochroneRequest struct {
	Locations  []orb.Point    `json:"locations"`
	Range      []float64      `json:"range"`
	RangeType  string         `json:"range_type"`
	Attributes []string       `json:"attributes"`
	Options    requestOptions `json:"options"`
}

type requestOptions struct {
	AvoidPolygons multiPolygonGeometry `json:"avoid_polygons"`
}

type multiPolygonGeometry struct {
	Type        string           `json:"type"`
	Coordinates orb.MultiPolygon `json:"coordinates"`
}

// isochroneResponse tolerates a missing feature list: it decodes to zero
// features rather than an error.
type isochroneResponse struct {
	Type     string             `json:"type"`
	Features []*geojson.Feature `json:"features"`
}

// FetchIsochrones posts one isochrone request and returns the response features
func (c *RoutingClient) FetchIsochrones(ctx context.Context, q IsochroneQuery) ([]*geojson.Feature, error) {
	ctx, span := observability.Tracer().Start(ctx, observability.SpanFetchIsochrones)
	defer span.End()
	span.SetAttributes(
		attribute.String("routing.mode", string(q.Mode)),
		attribute.Float64("routing.range_seconds", q.RangeSeconds),
		attribute.Int("routing.avoid_polygons", len(q.AvoidPolygons)),
	)

	features, err := c.fetch(ctx, q)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	span.SetAttributes(attribute.Int("routing.features", len(features)))
	return features, nil
}

func (c *RoutingClient) fetch(ctx context.Context, q IsochroneQuery) ([]*geojson.Feature, error) {
	avoid := q.AvoidPolygons
	if avoid == nil {
		avoid = orb.MultiPolygon{}
	}
	body, err := json.Marshal(isochroneRequest{
		Locations:  []orb.Point{q.Coord},
		Range:      []float64{q.RangeSeconds},
		RangeType:  "time",
		Attributes: []string{"total_pop"},
		Options: requestOptions{
			AvoidPolygons: multiPolygonGeometry{Type: "MultiPolygon", Coordinates: avoid},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("routing: failed to marshal request: %w", err)
	}

	if !q.Mode.Valid() {
		return nil, fmt.Errorf("routing: %w: %q", domain.ErrUnknownMode, q.Mode)
	}
	url := c.baseURL + "/" + neturl.PathEscape(string(q.Mode))
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("routing: failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/geo+json, application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("routing: request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return nil, fmt.Errorf("routing: %w", &domain.UpstreamError{
			StatusCode: resp.StatusCode,
			Body:       strings.TrimSpace(string(snippet)),
		})
	}

	var decoded isochroneResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return nil, fmt.Errorf("routing: failed to decode response: %w", err)
	}
	return decoded.Features, nil
}
