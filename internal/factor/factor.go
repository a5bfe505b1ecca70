package factor

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"presencegate/internal/motion"
)

// Mode is one of the closed set of presence evidence types.
type Mode string

const (
	ModeGeofence Mode = "geofence"
	ModeNetwork  Mode = "network"
	ModeBeacon   Mode = "beacon"
	ModeNFC      Mode = "nfc"
	ModeQR       Mode = "qr"
	ModeFace     Mode = "face"
)

func AllModes() []Mode {
	return []Mode{ModeGeofence, ModeNetwork, ModeBeacon, ModeNFC, ModeQR, ModeFace}
}

func (m Mode) Valid() bool {
	switch m {
	case ModeGeofence, ModeNetwork, ModeBeacon, ModeNFC, ModeQR, ModeFace:
		return true
	}
	return false
}

// Evidence payloads as submitted by the client, one optional entry per mode.
// Geofence needs no dedicated payload; the claimed location is the evidence.

type NetworkEvidence struct {
	SSID  string `json:"ssid"`
	BSSID string `json:"bssid"`
}

type BeaconEvidence struct {
	BeaconUUID string `json:"beacon_uuid"`
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	RSSI       int    `json:"rssi"`
}

type NFCEvidence struct {
	TagID string `json:"tag_id"`
}

type QREvidence struct {
	Token string `json:"token"`
}

type FaceEvidence struct {
	ImageRef string `json:"image_ref"`
}

// Settings is the per-policy factor tuning, resolved from the applicable
// policy before fan-out. The zero value means no policy override: evaluators
// fall back to their own configured defaults.
type Settings struct {
	// MaxDistanceMeters caps the office geofence radius when set; the
	// stricter of the two wins.
	MaxDistanceMeters *float64
	// StrictBoundary disables the GPS jitter tolerance outside the radius.
	StrictBoundary bool
	// LivenessEnabled turns on the policy's confidence floor for face
	// recognition; LivenessMinConfidence then overrides the evaluator's
	// configured minimum.
	LivenessEnabled       bool
	LivenessMinConfidence float64
}

// Input is the evaluation view of one submission, shared by all factor
// evaluators.
type Input struct {
	UserID    string
	DeviceID  string
	OfficeID  string
	Timestamp time.Time
	Location  motion.Location
	Settings  Settings

	Network *NetworkEvidence
	Beacon  *BeaconEvidence
	NFC     *NFCEvidence
	QR      *QREvidence
	Face    *FaceEvidence
}

// HasEvidence reports whether the submission carries evidence for a mode.
// The claimed location always serves as geofence evidence.
func (in Input) HasEvidence(mode Mode) bool {
	switch mode {
	case ModeGeofence:
		return true
	case ModeNetwork:
		return in.Network != nil
	case ModeBeacon:
		return in.Beacon != nil
	case ModeNFC:
		return in.NFC != nil
	case ModeQR:
		return in.QR != nil
	case ModeFace:
		return in.Face != nil
	}
	return false
}

// Result is the uniform pass/fail + confidence contract every evaluator
// returns. Err marks an evaluator failure; the caller treats it as a failed
// factor, never as a pipeline failure.
type Result struct {
	Mode       Mode    `json:"mode"`
	Passed     bool    `json:"passed"`
	Confidence float64 `json:"confidence"`
	Details    string  `json:"details,omitempty"`
	Err        error   `json:"-"`
}

// MarshalJSON renders Err as a plain string so the persisted verdict keeps
// the evaluator failure detail.
func (r Result) MarshalJSON() ([]byte, error) {
	type plain Result
	out := struct {
		plain
		Error string `json:"error,omitempty"`
	}{plain: plain(r)}
	if r.Err != nil {
		out.Error = r.Err.Error()
	}
	return json.Marshal(out)
}

//go:generate mockgen -source=factor.go -destination=mock/factor_mock.go -package=mock
type Evaluator interface {
	Mode() Mode
	Evaluate(ctx context.Context, in Input) Result
}

// Registry is the dispatch table from mode to evaluator. The mode set is
// closed but each slot is swappable.
type Registry struct {
	evaluators map[Mode]Evaluator
}

func NewRegistry(evaluators ...Evaluator) (*Registry, error) {
	r := &Registry{evaluators: make(map[Mode]Evaluator, len(evaluators))}
	for _, e := range evaluators {
		if err := r.Register(e); err != nil {
			return nil, err
		}
	}
	return r, nil
}

func (r *Registry) Register(e Evaluator) error {
	mode := e.Mode()
	if !mode.Valid() {
		return fmt.Errorf("unknown factor mode: %s", mode)
	}
	if _, exists := r.evaluators[mode]; exists {
		return fmt.Errorf("evaluator already registered for mode %s", mode)
	}
	r.evaluators[mode] = e
	return nil
}

func (r *Registry) Get(mode Mode) (Evaluator, bool) {
	e, ok := r.evaluators[mode]
	return e, ok
}
