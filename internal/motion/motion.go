package motion

import (
	"math"
	"time"
)

const earthRadiusMeters = 6371000

// Location is a WGS84 point.
type Location struct {
	Latitude  float64
	Longitude float64
}

// Result reports the plausibility of a movement between two presence claims.
// PreviousLocation is nil on cold start, in which case the check passes.
type Result struct {
	Passed           bool
	TeleportDetected bool
	SpeedViolation   bool
	DistanceMeters   float64
	SpeedMps         float64
	ElapsedSeconds   float64
	PreviousLocation *Location
}

type Config struct {
	TeleportThresholdMeters float64
	MaxSpeedMps             float64
	MinElapsed              time.Duration
}

func DefaultConfig() Config {
	return Config{
		TeleportThresholdMeters: 1000,
		MaxSpeedMps:             8, // ~29 km/h, brisk urban commute
		MinElapsed:              time.Second,
	}
}

type Guard struct {
	cfg Config
}

func NewGuard(cfg Config) *Guard {
	if cfg.TeleportThresholdMeters <= 0 {
		cfg.TeleportThresholdMeters = DefaultConfig().TeleportThresholdMeters
	}
	if cfg.MaxSpeedMps <= 0 {
		cfg.MaxSpeedMps = DefaultConfig().MaxSpeedMps
	}
	if cfg.MinElapsed <= 0 {
		cfg.MinElapsed = DefaultConfig().MinElapsed
	}
	return &Guard{cfg: cfg}
}

// Check compares the claimed location against the last known one. It never
// errors: a violation demotes the admission decision downstream rather than
// aborting it.
func (g *Guard) Check(current Location, currentAt time.Time, previous *Location, previousAt time.Time) Result {
	if previous == nil {
		return Result{Passed: true}
	}

	distance := Haversine(current, *previous)
	elapsed := currentAt.Sub(previousAt).Seconds()

	res := Result{
		DistanceMeters:   distance,
		ElapsedSeconds:   elapsed,
		PreviousLocation: previous,
	}

	// Guard against division by near-zero intervals; still report distance.
	if elapsed < g.cfg.MinElapsed.Seconds() {
		res.Passed = true
		return res
	}

	res.SpeedMps = distance / elapsed
	res.TeleportDetected = distance > g.cfg.TeleportThresholdMeters
	res.SpeedViolation = res.SpeedMps > g.cfg.MaxSpeedMps
	res.Passed = !res.TeleportDetected && !res.SpeedViolation
	return res
}

// Haversine returns the great-circle distance between two points in meters.
func Haversine(a, b Location) float64 {
	lat1 := a.Latitude * math.Pi / 180
	lat2 := b.Latitude * math.Pi / 180
	dLat := (b.Latitude - a.Latitude) * math.Pi / 180
	dLon := (b.Longitude - a.Longitude) * math.Pi / 180

	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(lat1)*math.Cos(lat2)*math.Sin(dLon/2)*math.Sin(dLon/2)

	return 2 * earthRadiusMeters * math.Atan2(math.Sqrt(h), math.Sqrt(1-h))
}
