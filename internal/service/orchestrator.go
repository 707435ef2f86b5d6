package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/isoplanner/backend/internal/domain"
	"github.com/isoplanner/backend/internal/logging"
	"github.com/isoplanner/backend/internal/observability"
)

// Orchestrator fans isochrone requests out to the routing service
type Orchestrator struct {
	fetcher IsochroneFetcher
	metrics *observability.Collector
	log     logging.Logger
	now     func() time.Time
}

// NewOrchestrator creates a new orchestrator. metrics may be nil.
func NewOrchestrator(fetcher IsochroneFetcher, metrics *observability.Collector, log logging.Logger) *Orchestrator {
	if log == nil {
		log = logging.Noop()
	}
	return &Orchestrator{
		fetcher: fetcher,
		metrics: metrics,
		log:     log,
		now:     time.Now,
	}
}

// Generate issues one request per (point, minutes) pair concurrently and
// returns the results of the requests that succeeded.
//
// Input problems fail before any request is sent. A failed request is logged
// and skipped; it never aborts its siblings, so the batch always completes.
func (o *Orchestrator) Generate(
	ctx context.Context,
	points []domain.Point,
	times []int,
	mode domain.TransportMode,
	avoid orb.MultiPolygon,
) ([]domain.IsochroneResult, error) {
	if len(points) == 0 {
		return nil, domain.ErrNoPoints
	}
	if len(times) == 0 {
		return nil, domain.ErrNoTimes
	}
	for _, minutes := range times {
		if minutes <= 0 {
			return nil, fmt.Errorf("%w: %d", domain.ErrInvalidTimes, minutes)
		}
	}
	if !mode.Valid() {
		return nil, fmt.Errorf("%w: %q", domain.ErrUnknownMode, mode)
	}
	times = uniqueTimes(times)

	ctx, span := observability.Tracer().Start(ctx, observability.SpanGenerateBatch)
	defer span.End()
	span.SetAttributes(
		attribute.String("routing.mode", string(mode)),
		attribute.Int("isochrones.points", len(points)),
		attribute.Int("isochrones.times", len(times)),
	)

	var (
		mu      sync.Mutex
		results []domain.IsochroneResult
		failed  int
		g       errgroup.Group
	)

	for _, point := range points {
		for _, minutes := range times {
			g.Go(func() error {
				start := time.Now()
				features, err := o.fetcher.FetchIsochrones(ctx, IsochroneQuery{
					Coord:         point.Coord,
					RangeSeconds:  AdjustedSeconds(minutes, mode),
					Mode:          mode,
					AvoidPolygons: avoid,
				})
				o.metrics.ObserveUpstream(string(mode), time.Since(start), err)
				if err != nil {
					o.log.Warn(ctx, "isochrone request failed",
						logging.String("point_id", point.ID),
						logging.Int("minutes", minutes),
						logging.String("mode", string(mode)),
						logging.Err(err),
					)
					mu.Lock()
					failed++
					mu.Unlock()
					return nil
				}

				stamped := o.stamp(point.ID, minutes, mode, features)
				mu.Lock()
				results = append(results, stamped...)
				mu.Unlock()
				return nil
			})
		}
	}
	// Goroutines never return an error; Wait only synchronises.
	_ = g.Wait()

	span.SetAttributes(
		attribute.Int("isochrones.results", len(results)),
		attribute.Int("isochrones.failed_requests", failed),
	)
	o.log.Info(ctx, "isochrone batch complete",
		logging.String("mode", string(mode)),
		logging.Int("requests", len(points)*len(times)),
		logging.Int("failed", failed),
		logging.Int("results", len(results)),
	)
	return results, nil
}

func (o *Orchestrator) stamp(pointID string, minutes int, mode domain.TransportMode, features []*geojson.Feature) []domain.IsochroneResult {
	out := make([]domain.IsochroneResult, 0, len(features))
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		now := o.now()
		out = append(out, domain.IsochroneResult{
			Identifier:      fmt.Sprintf("%s-%dmin-%d", pointID, minutes, now.UnixMilli()),
			ShortIdentifier: pointID,
			TimeInMinutes:   minutes,
			Population:      population(f.Properties),
			Mode:            mode,
			ModeLabel:       mode.Label(),
			Geometry:        f.Geometry,
			CreatedAt:       now,
		})
	}
	return out
}

// population reads total_pop, defaulting to 0 when absent or not numeric.
func population(props geojson.Properties) float64 {
	switch v := props["total_pop"].(type) {
	case float64:
		return v
	case int:
		return float64(v)
	case int64:
		return float64(v)
	default:
		return 0
	}
}
