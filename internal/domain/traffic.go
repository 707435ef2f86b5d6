package domain

// TransportMode is an OpenRouteService routing profile.
type TransportMode string

// Routing profiles with a dedicated label.
const (
	ModeDrivingCar     TransportMode = "driving-car"
	ModeFootWalking    TransportMode = "foot-walking"
	ModeCyclingRegular TransportMode = "cycling-regular"
)

// profiles lists every OpenRouteService routing profile the isochrone
// endpoint accepts.
var profiles = map[TransportMode]struct{}{
	ModeDrivingCar:     {},
	"driving-hgv":      {},
	ModeCyclingRegular: {},
	"cycling-road":     {},
	"cycling-mountain": {},
	"cycling-electric": {},
	ModeFootWalking:    {},
	"foot-hiking":      {},
	"wheelchair":       {},
}

// Valid reports whether m is a known routing profile. Only valid modes may
// reach the routing service URL.
func (m TransportMode) Valid() bool {
	_, ok := profiles[m]
	return ok
}

// Traffic-adjustment factors applied to the requested travel time before it is
// sent upstream. The routing service assumes free-flow speeds; the factors
// shrink the range to approximate real conditions.
const (
	DrivingTrafficFactor = 0.55
	DefaultTrafficFactor = 0.8
)

// TrafficFactor returns the multiplier for the mode.
func (m TransportMode) TrafficFactor() float64 {
	if m == ModeDrivingCar {
		return DrivingTrafficFactor
	}
	return DefaultTrafficFactor
}

// Label returns the human-readable name shown in the results table.
// Profiles without a dedicated label are returned verbatim.
func (m TransportMode) Label() string {
	switch m {
	case ModeDrivingCar:
		return "Car"
	case ModeFootWalking:
		return "Walking"
	case ModeCyclingRegular:
		return "Cycling"
	default:
		return string(m)
	}
}
