package attendance

import (
	"time"
)

const (
	StatusPresent = "PRESENT"
	StatusLate    = "LATE"
	StatusReview  = "REVIEW"
)

// Record is one admitted presence claim. A row is created at check-in and
// completed at check-out. Verdict holds the serialized integrity verdict
// from the admission pipeline; each phase carries its own HMAC signature.
type Record struct {
	ID             string
	UserID         string
	DeviceID       string
	OfficeID       string
	AttendanceDate time.Time

	CheckInAt        time.Time
	CheckInLatitude  float64
	CheckInLongitude float64
	CheckInSignature string

	CheckOutAt        *time.Time
	CheckOutLatitude  *float64
	CheckOutLongitude *float64
	CheckOutSignature *string

	Status           string
	Decision         string
	Verdict          []byte
	PolicyID         string
	PolicyVersion    int64
	IsLate           bool
	IsEarlyDeparture bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

func (Record) TableName() string {
	return "presence_records"
}
