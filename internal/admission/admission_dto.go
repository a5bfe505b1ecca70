package admission

import (
	"presencegate/internal/attendance"
	"presencegate/internal/factor"
	"time"
)

// Submission is one presence claim entering the pipeline. It is built once
// per request from the authenticated identity plus the client payload, and
// never mutated by the pipeline stages.
type Submission struct {
	UserID    string
	DeviceID  string
	OfficeID  string
	Timestamp time.Time
	Latitude  float64
	Longitude float64

	Network *factor.NetworkEvidence
	Beacon  *factor.BeaconEvidence
	NFC     *factor.NFCEvidence
	QR      *factor.QREvidence
	Face    *factor.FaceEvidence
}

type CheckInRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required,min=-90,max=90"`
	Longitude *float64 `json:"longitude" binding:"required,min=-180,max=180"`

	Network *factor.NetworkEvidence `json:"network,omitempty"`
	Beacon  *factor.BeaconEvidence  `json:"beacon,omitempty"`
	NFC     *factor.NFCEvidence     `json:"nfc,omitempty"`
	QR      *factor.QREvidence      `json:"qr,omitempty"`
	Face    *factor.FaceEvidence    `json:"face,omitempty"`
}

type CheckOutRequest struct {
	Latitude  *float64 `json:"latitude" binding:"required,min=-90,max=90"`
	Longitude *float64 `json:"longitude" binding:"required,min=-180,max=180"`
}

// Result is the pipeline's terminal output. Record is set only when a row
// was persisted (ACCEPTED and REVIEW outcomes).
type Result struct {
	Decision     string                     `json:"decision"`
	Rationale    string                     `json:"rationale"`
	OverallScore float64                    `json:"overall_score"`
	Signature    string                     `json:"signature,omitempty"`
	Verdict      *IntegrityVerdict          `json:"verdict,omitempty"`
	Record       *attendance.RecordResponse `json:"record,omitempty"`
}
