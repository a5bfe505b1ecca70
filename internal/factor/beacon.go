package factor

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

// BeaconEvaluator matches a BLE beacon sighting against registered office
// beacons and applies an RSSI floor so a distant sighting does not count.
type BeaconEvaluator struct {
	store Store
}

func NewBeaconEvaluator(store Store) *BeaconEvaluator {
	return &BeaconEvaluator{store: store}
}

func (e *BeaconEvaluator) Mode() Mode {
	return ModeBeacon
}

func (e *BeaconEvaluator) Evaluate(ctx context.Context, in Input) Result {
	if in.Beacon == nil {
		return Result{Mode: ModeBeacon, Details: "no beacon evidence submitted"}
	}

	row, err := e.store.FindBeacon(ctx, in.OfficeID, in.Beacon.BeaconUUID, in.Beacon.Major, in.Beacon.Minor)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{Mode: ModeBeacon, Details: "beacon is not registered for this office"}
		}
		return Result{Mode: ModeBeacon, Err: err}
	}

	if in.Beacon.RSSI < row.MinRSSI {
		return Result{
			Mode:    ModeBeacon,
			Details: fmt.Sprintf("rssi %d below floor %d", in.Beacon.RSSI, row.MinRSSI),
		}
	}

	// RSSI scales confidence between the floor and a near-field -40 dBm.
	confidence := float64(in.Beacon.RSSI-row.MinRSSI) / float64(-40-row.MinRSSI)
	if confidence > 1 {
		confidence = 1
	}
	if confidence < 0.5 {
		confidence = 0.5
	}

	return Result{
		Mode:       ModeBeacon,
		Passed:     true,
		Confidence: confidence,
		Details:    fmt.Sprintf("beacon matched at rssi %d", in.Beacon.RSSI),
	}
}
