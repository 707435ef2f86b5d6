package domain

import (
	"time"

	"github.com/paulmach/orb"
)

// Point is a placed origin on the map.
type Point struct {
	ID    string    `json:"id"`
	Coord orb.Point `json:"coordinates"` // [lng, lat]
	Color string    `json:"color"`
}

// Lat returns the latitude.
func (p Point) Lat() float64 { return p.Coord.Lat() }

// Lng returns the longitude.
func (p Point) Lng() float64 { return p.Coord.Lon() }

// IsochroneResult is one reachable-area polygon computed for a
// (point, minutes, mode) triple. Results are never mutated once recorded.
type IsochroneResult struct {
	// Identifier is unique per result: <pointId>-<minutes>min-<unixMillis>.
	Identifier string `json:"identifier"`
	// ShortIdentifier groups every result of the same origin point.
	ShortIdentifier string        `json:"identifier_simp"`
	TimeInMinutes   int           `json:"timeInMinutes"`
	Population      float64       `json:"population"`
	Mode            TransportMode `json:"mode_key"`
	ModeLabel       string        `json:"mode"`
	Geometry        orb.Geometry  `json:"-"`
	CreatedAt       time.Time     `json:"created_at"`
}

// Row converts the result into its display-table row.
func (r IsochroneResult) Row() TableRow {
	return TableRow{
		Identifier:     r.Identifier,
		IdentifierSimp: r.ShortIdentifier,
		TimeInMinutes:  r.TimeInMinutes,
		Population:     r.Population,
		Mode:           r.ModeLabel,
	}
}

// TableRow is the row schema consumed by the tabular widget.
type TableRow struct {
	Identifier     string  `json:"identifier"`
	IdentifierSimp string  `json:"identifier_simp"`
	TimeInMinutes  int     `json:"timeInMinutes"`
	Population     float64 `json:"population"`
	Mode           string  `json:"mode"`
}

// SessionState is the coarse lifecycle of a session.
type SessionState string

const (
	StateEmpty      SessionState = "empty"
	StateHasPoints  SessionState = "has_points"
	StateHasResults SessionState = "has_results"
)
