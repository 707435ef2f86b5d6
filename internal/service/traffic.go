package service

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/isoplanner/backend/internal/domain"
)

// ParseTimes parses the comma-separated minutes typed by the user, e.g. "5, 10".
// Repeated values are dropped, keeping the first occurrence.
func ParseTimes(input string) ([]int, error) {
	if strings.TrimSpace(input) == "" {
		return nil, domain.ErrNoTimes
	}
	parts := strings.Split(input, ",")
	times := make([]int, 0, len(parts))
	for _, part := range parts {
		minutes, err := strconv.Atoi(strings.TrimSpace(part))
		if err != nil || minutes <= 0 {
			return nil, fmt.Errorf("%w: %q", domain.ErrInvalidTimes, strings.TrimSpace(part))
		}
		times = append(times, minutes)
	}
	return uniqueTimes(times), nil
}

// uniqueTimes drops repeated minute values, keeping first-seen order. Two
// requests for the same point and minutes would stamp the same identifier.
func uniqueTimes(times []int) []int {
	seen := make(map[int]struct{}, len(times))
	out := times[:0:0]
	for _, m := range times {
		if _, ok := seen[m]; ok {
			continue
		}
		seen[m] = struct{}{}
		out = append(out, m)
	}
	return out
}

// ParseMode validates a transport mode against the known routing profiles.
func ParseMode(raw string) (domain.TransportMode, error) {
	mode := domain.TransportMode(strings.TrimSpace(raw))
	if !mode.Valid() {
		return "", fmt.Errorf("%w: %q", domain.ErrUnknownMode, raw)
	}
	return mode, nil
}

// AdjustedSeconds converts requested minutes into the range sent upstream,
// scaled by the mode's traffic factor.
func AdjustedSeconds(minutes int, mode domain.TransportMode) float64 {
	seconds := float64(minutes) * 60 * mode.TrafficFactor()
	return math.Round(seconds*1000) / 1000
}
