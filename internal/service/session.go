package service

import (
	"context"
	"sync"
	"time"

	"github.com/paulmach/orb"

	"github.com/isoplanner/backend/internal/domain"
	"github.com/isoplanner/backend/internal/logging"
	"github.com/isoplanner/backend/internal/observability"
)

// MarkerColors is the palette cycled through for point markers.
var MarkerColors = []string{"red", "blue", "green", "orange", "yellow", "violet", "grey", "black"}

// IsochroneSession owns the points, results and avoidance polygons of one user
// session. All methods are safe for concurrent use; network I/O in Generate
// runs without holding the lock.
type IsochroneSession struct {
	id           string
	orchestrator *Orchestrator
	metrics      *observability.Collector
	log          logging.Logger
	createdAt    time.Time

	mu         sync.Mutex
	epoch      uint64 // bumped by Reset; in-flight batches from older epochs are dropped
	allocator  *IdentifierAllocator
	avoidance  *AvoidanceStore
	points     []domain.Point
	results    []domain.IsochroneResult
	table      []domain.TableRow
	resultRefs map[string]int
	pending    map[string]int      // ids held by in-flight batches
	detached   map[string]struct{} // removed while a batch still held them
	colors     map[string]string
	colorIndex int
}

// Snapshot is a read-only view of a session's state.
type Snapshot struct {
	ID            string              `json:"id"`
	State         domain.SessionState `json:"state"`
	Points        []domain.Point      `json:"points"`
	Rows          []domain.TableRow   `json:"rows"`
	AvoidPolygons []orb.Ring          `json:"avoid_polygons"`
	FreeIDs       []string            `json:"free_identifiers"`
	ReservedIDs   int                 `json:"reserved_identifiers"`
	MintedIDs     int                 `json:"minted_identifiers"`
	CreatedAt     time.Time           `json:"created_at"`
}

// NewIsochroneSession creates an empty session
func NewIsochroneSession(id string, orchestrator *Orchestrator, metrics *observability.Collector, log logging.Logger) *IsochroneSession {
	if log == nil {
		log = logging.Noop()
	}
	s := &IsochroneSession{
		id:           id,
		orchestrator: orchestrator,
		metrics:      metrics,
		log:          log.With(logging.String("session_id", id)),
		createdAt:    time.Now(),
		allocator:    NewIdentifierAllocator(),
		avoidance:    NewAvoidanceStore(),
	}
	s.resetLocked()
	return s
}

// ID returns the session identifier.
func (s *IsochroneSession) ID() string { return s.id }

// AddPoint places a new point and assigns it an identifier and marker colour.
func (s *IsochroneSession) AddPoint(coord orb.Point) domain.Point {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.allocator.Allocate(s.referencedLocked)
	color, ok := s.colors[id]
	if !ok {
		color = MarkerColors[s.colorIndex%len(MarkerColors)]
		s.colors[id] = color
		s.colorIndex++
	}
	p := domain.Point{ID: id, Coord: coord, Color: color}
	s.points = append(s.points, p)
	return p
}

// MovePoint updates the coordinate of a live point.
func (s *IsochroneSession) MovePoint(id string, coord orb.Point) (domain.Point, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.points {
		if s.points[i].ID == id {
			s.points[i].Coord = coord
			return s.points[i], nil
		}
	}
	return domain.Point{}, domain.ErrPointNotFound
}

// RemovePoint deletes a live point. Its identifier goes back to the reuse
// pool unless a result already references it.
func (s *IsochroneSession) RemovePoint(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range s.points {
		if s.points[i].ID == id {
			s.points = append(s.points[:i], s.points[i+1:]...)
			if s.resultRefs[id] == 0 && s.pending[id] > 0 {
				// Decided when the batch holding the id lands.
				s.detached[id] = struct{}{}
				return nil
			}
			s.allocator.Release(id, s.referencedLocked(id))
			return nil
		}
	}
	return domain.ErrPointNotFound
}

// Points returns the live points in placement order.
func (s *IsochroneSession) Points() []domain.Point {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.Point(nil), s.points...)
}

// AddAvoidance stores a new avoidance ring.
func (s *IsochroneSession) AddAvoidance(ring orb.Ring) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avoidance.Add(ring)
}

// ReplaceAvoidance applies an edit to a stored avoidance ring. Edits that do
// not match a stored ring are dropped and reported as false.
func (s *IsochroneSession) ReplaceAvoidance(old, new orb.Ring) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	ok := s.avoidance.Replace(old, new)
	if !ok {
		s.log.Debug(context.Background(), "avoidance edit matched no stored ring", logging.Int("ring_points", len(old)))
	}
	return ok
}

// ResetAvoidance clears every avoidance ring.
func (s *IsochroneSession) ResetAvoidance() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.avoidance.Clear()
}

// AvoidPolygons returns the avoidance rings as sent upstream.
func (s *IsochroneSession) AvoidPolygons() orb.MultiPolygon {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.avoidance.MultiPolygon()
}

// Generate requests isochrones for every live point and each of the given
// minutes, records what came back and returns only the new results.
//
// While the batch is in flight the identifiers of its points count as
// referenced, so removing one of those points never frees its id for a new
// point before the batch's results are recorded.
func (s *IsochroneSession) Generate(ctx context.Context, times []int, mode domain.TransportMode) ([]domain.IsochroneResult, error) {
	s.mu.Lock()
	points := append([]domain.Point(nil), s.points...)
	avoid := s.avoidance.MultiPolygon()
	epoch := s.epoch
	for _, p := range points {
		s.pending[p.ID]++
	}
	s.mu.Unlock()

	results, err := s.orchestrator.Generate(ctx, points, times, mode, avoid)

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.epoch != epoch {
		s.log.Info(ctx, "dropping isochrone batch finished after reset", logging.Int("results", len(results)))
		return nil, err
	}
	if err == nil {
		s.recordLocked(results)
	}
	s.settleLocked(points)
	if err != nil {
		return nil, err
	}
	return results, nil
}

// settleLocked drops the in-flight hold of a finished batch. Ids of points
// removed meanwhile are reserved if results now reference them and pooled
// otherwise.
func (s *IsochroneSession) settleLocked(points []domain.Point) {
	for _, p := range points {
		s.pending[p.ID]--
		if s.pending[p.ID] > 0 {
			continue
		}
		delete(s.pending, p.ID)
		if _, ok := s.detached[p.ID]; ok {
			delete(s.detached, p.ID)
			s.allocator.Release(p.ID, s.resultRefs[p.ID] > 0)
		}
	}
}

// RecordAll appends results and one table row per result, in order.
func (s *IsochroneSession) RecordAll(results []domain.IsochroneResult) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.recordLocked(results)
}

func (s *IsochroneSession) recordLocked(results []domain.IsochroneResult) {
	for _, r := range results {
		s.results = append(s.results, r)
		s.table = append(s.table, r.Row())
		s.resultRefs[r.ShortIdentifier]++
		if !s.liveLocked(r.ShortIdentifier) {
			// The point was removed while its request was in flight.
			s.allocator.Release(r.ShortIdentifier, true)
		}
	}
	s.metrics.AddResults(len(results))
}

// Results returns every recorded result in arrival order.
func (s *IsochroneSession) Results() []domain.IsochroneResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.IsochroneResult(nil), s.results...)
}

// Table returns the display table rows.
func (s *IsochroneSession) Table() []domain.TableRow {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]domain.TableRow(nil), s.table...)
}

// State reports where the session is in its lifecycle.
func (s *IsochroneSession) State() domain.SessionState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stateLocked()
}

// Reset returns the session to the state of a freshly created one: no
// points, results, rows or avoidance rings, and a fresh allocator.
func (s *IsochroneSession) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.epoch++
	s.resetLocked()
	s.log.Info(context.Background(), "session reset")
}

// Snapshot returns a copy of the observable session state.
func (s *IsochroneSession) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Snapshot{
		ID:            s.id,
		State:         s.stateLocked(),
		Points:        append([]domain.Point{}, s.points...),
		Rows:          append([]domain.TableRow{}, s.table...),
		AvoidPolygons: s.avoidance.Rings(),
		FreeIDs:       s.allocator.Free(),
		ReservedIDs:   len(s.allocator.reserved),
		MintedIDs:     s.allocator.Minted(),
		CreatedAt:     s.createdAt,
	}
}

func (s *IsochroneSession) resetLocked() {
	s.allocator.Reset()
	s.avoidance.Clear()
	s.points = nil
	s.results = nil
	s.table = nil
	s.resultRefs = make(map[string]int)
	s.pending = make(map[string]int)
	s.detached = make(map[string]struct{})
	s.colors = make(map[string]string)
	s.colorIndex = 0
}

func (s *IsochroneSession) stateLocked() domain.SessionState {
	switch {
	case len(s.results) > 0:
		return domain.StateHasResults
	case len(s.points) > 0:
		return domain.StateHasPoints
	default:
		return domain.StateEmpty
	}
}

func (s *IsochroneSession) referencedLocked(id string) bool {
	return s.resultRefs[id] > 0 || s.pending[id] > 0
}

func (s *IsochroneSession) liveLocked(id string) bool {
	for _, p := range s.points {
		if p.ID == id {
			return true
		}
	}
	return false
}
