package factor

import (
	"context"
	"errors"
	"fmt"

	"presencegate/internal/motion"

	"gorm.io/gorm"
)

// boundaryToleranceMeters absorbs consumer-GPS jitter at the fence edge for
// policies that do not demand a strict boundary.
const boundaryToleranceMeters = 25.0

// GeofenceEvaluator tests the claimed location against the office boundary.
type GeofenceEvaluator struct {
	store Store
}

func NewGeofenceEvaluator(store Store) *GeofenceEvaluator {
	return &GeofenceEvaluator{store: store}
}

func (e *GeofenceEvaluator) Mode() Mode {
	return ModeGeofence
}

func (e *GeofenceEvaluator) Evaluate(ctx context.Context, in Input) Result {
	fence, err := e.store.FindGeofence(ctx, in.OfficeID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{Mode: ModeGeofence, Details: "no geofence configured for office"}
		}
		return Result{Mode: ModeGeofence, Err: err}
	}

	distance := motion.Haversine(in.Location, motion.Location{
		Latitude:  fence.Latitude,
		Longitude: fence.Longitude,
	})

	// The policy distance cap tightens the office radius, never widens it.
	radius := fence.RadiusMeters
	if m := in.Settings.MaxDistanceMeters; m != nil && *m > 0 && *m < radius {
		radius = *m
	}

	res := Result{
		Mode:    ModeGeofence,
		Details: fmt.Sprintf("%.0fm from office centre, radius %.0fm", distance, radius),
	}
	if distance > radius {
		if in.Settings.StrictBoundary || distance > radius+boundaryToleranceMeters {
			return res
		}
		// Within GPS jitter of the boundary: pass at floor confidence.
		res.Passed = true
		res.Confidence = 0.1
		res.Details = fmt.Sprintf("%.0fm from office centre, within %.0fm boundary tolerance", distance, boundaryToleranceMeters)
		return res
	}

	res.Passed = true
	// Confidence decays linearly towards the boundary.
	res.Confidence = 1 - distance/radius
	if res.Confidence < 0.1 {
		res.Confidence = 0.1
	}
	return res
}
