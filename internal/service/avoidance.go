package service

import (
	"github.com/paulmach/orb"

	"github.com/isoplanner/backend/pkg/utils"
)

// matchPrecision is the number of decimals compared when matching an edited
// ring against the stored ones.
const matchPrecision = 6

// AvoidanceStore keeps the regions routing must avoid. Not safe for
// concurrent use; the owning session serialises access.
type AvoidanceStore struct {
	rings []orb.Ring
}

// NewAvoidanceStore returns an empty store.
func NewAvoidanceStore() *AvoidanceStore {
	return &AvoidanceStore{}
}

// Add closes ring and appends it.
func (s *AvoidanceStore) Add(ring orb.Ring) {
	s.rings = append(s.rings, closeRing(ring))
}

// Replace swaps the first stored ring matching old under 6-decimal rounding
// with new. It reports whether a ring matched; an unmatched edit is dropped.
func (s *AvoidanceStore) Replace(old, new orb.Ring) bool {
	old = closeRing(old)
	for i, ring := range s.rings {
		if ringsMatch(ring, old) {
			s.rings[i] = closeRing(new)
			return true
		}
	}
	return false
}

// Clear removes every ring.
func (s *AvoidanceStore) Clear() {
	s.rings = nil
}

// Len returns the number of stored rings.
func (s *AvoidanceStore) Len() int {
	return len(s.rings)
}

// Rings returns a deep copy of the stored rings.
func (s *AvoidanceStore) Rings() []orb.Ring {
	out := make([]orb.Ring, len(s.rings))
	for i, r := range s.rings {
		out[i] = r.Clone()
	}
	return out
}

// MultiPolygon exports every ring as one single-ring polygon. The result is
// never nil so it serialises as an empty coordinate list.
func (s *AvoidanceStore) MultiPolygon() orb.MultiPolygon {
	mp := make(orb.MultiPolygon, 0, len(s.rings))
	for _, r := range s.rings {
		mp = append(mp, orb.Polygon{r.Clone()})
	}
	return mp
}

// closeRing returns a copy of ring whose last coordinate repeats the first.
// Empty rings stay empty.
func closeRing(ring orb.Ring) orb.Ring {
	out := ring.Clone()
	if len(out) > 0 && !out.Closed() {
		out = append(out, out[0])
	}
	return out
}

func ringsMatch(a, b orb.Ring) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if roundCoord(a[i]) != roundCoord(b[i]) {
			return false
		}
	}
	return true
}

func roundCoord(p orb.Point) orb.Point {
	return orb.Point{
		utils.RoundTo(p[0], matchPrecision),
		utils.RoundTo(p[1], matchPrecision),
	}
}
