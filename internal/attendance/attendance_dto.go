package attendance

import (
	"encoding/json"
	"time"
)

type RecordResponse struct {
	ID             string `json:"id"`
	UserID         string `json:"user_id"`
	DeviceID       string `json:"device_id"`
	OfficeID       string `json:"office_id"`
	AttendanceDate string `json:"attendance_date"`

	CheckInAt        string  `json:"check_in_at"`
	CheckInLatitude  float64 `json:"check_in_latitude"`
	CheckInLongitude float64 `json:"check_in_longitude"`
	CheckInSignature string  `json:"check_in_signature"`

	CheckOutAt        *string  `json:"check_out_at,omitempty"`
	CheckOutLatitude  *float64 `json:"check_out_latitude,omitempty"`
	CheckOutLongitude *float64 `json:"check_out_longitude,omitempty"`
	CheckOutSignature *string  `json:"check_out_signature,omitempty"`

	Status           string          `json:"status"`
	Decision         string          `json:"decision"`
	Verdict          json.RawMessage `json:"verdict,omitempty"`
	PolicyID         string          `json:"policy_id"`
	PolicyVersion    int64           `json:"policy_version"`
	IsLate           bool            `json:"is_late"`
	IsEarlyDeparture bool            `json:"is_early_departure"`
}

func MapToResponse(rec Record) RecordResponse {
	resp := RecordResponse{
		ID:               rec.ID,
		UserID:           rec.UserID,
		DeviceID:         rec.DeviceID,
		OfficeID:         rec.OfficeID,
		AttendanceDate:   rec.AttendanceDate.Format("2006-01-02"),
		CheckInAt:        rec.CheckInAt.Format(time.RFC3339),
		CheckInLatitude:  rec.CheckInLatitude,
		CheckInLongitude: rec.CheckInLongitude,
		CheckInSignature: rec.CheckInSignature,
		Status:           rec.Status,
		Decision:         rec.Decision,
		Verdict:          json.RawMessage(rec.Verdict),
		PolicyID:         rec.PolicyID,
		PolicyVersion:    rec.PolicyVersion,
		IsLate:           rec.IsLate,
		IsEarlyDeparture: rec.IsEarlyDeparture,
	}
	if rec.CheckOutAt != nil {
		v := rec.CheckOutAt.Format(time.RFC3339)
		resp.CheckOutAt = &v
		resp.CheckOutLatitude = rec.CheckOutLatitude
		resp.CheckOutLongitude = rec.CheckOutLongitude
		resp.CheckOutSignature = rec.CheckOutSignature
	}
	return resp
}
