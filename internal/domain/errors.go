package domain

import (
	"errors"
	"fmt"
)

// Input errors. They are reported synchronously and no request is issued.
var (
	ErrNoPoints        = errors.New("at least one point is required")
	ErrNoTimes         = errors.New("at least one travel time is required")
	ErrInvalidTimes    = errors.New("travel times must be positive whole minutes")
	ErrUnknownMode     = errors.New("unknown transport mode")
	ErrPointNotFound   = errors.New("point not found")
	ErrSessionNotFound = errors.New("session not found")
	ErrInvalidRing     = errors.New("avoidance ring must contain coordinates")
)

// UpstreamError is returned when the routing service answers with a non-2xx
// status.
type UpstreamError struct {
	StatusCode int
	Body       string
}

func (e *UpstreamError) Error() string {
	if e.Body == "" {
		return fmt.Sprintf("routing service returned status %d", e.StatusCode)
	}
	return fmt.Sprintf("routing service returned status %d: %s", e.StatusCode, e.Body)
}
