package signer

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"time"
)

// Payload is the canonical subset of an integrity verdict that gets signed.
// Check-in and check-out each produce their own signature over this shape.
type Payload struct {
	UserID         string
	DeviceID       string
	OfficeID       string
	Timestamp      time.Time
	Latitude       float64
	Longitude      float64
	IntegrityScore float64
}

type Signer struct {
	secret []byte
}

func New(secret string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("signer secret is required")
	}
	return &Signer{secret: []byte(secret)}, nil
}

// canonical renders the payload deterministically. Timestamps are
// normalized to UTC RFC3339Nano, coordinates to shortest round-trip form.
func canonical(p Payload) string {
	return fmt.Sprintf("v1|%s|%s|%s|%s|%s,%s|%s",
		p.UserID,
		p.DeviceID,
		p.OfficeID,
		p.Timestamp.UTC().Format(time.RFC3339Nano),
		strconv.FormatFloat(p.Latitude, 'f', -1, 64),
		strconv.FormatFloat(p.Longitude, 'f', -1, 64),
		strconv.FormatFloat(p.IntegrityScore, 'f', -1, 64),
	)
}

func (s *Signer) Sign(p Payload) string {
	mac := hmac.New(sha256.New, s.secret)
	mac.Write([]byte(canonical(p)))
	return hex.EncodeToString(mac.Sum(nil))
}

// Verify recomputes the expected signature and compares in constant time.
func (s *Signer) Verify(signature string, p Payload) bool {
	expected, err := hex.DecodeString(s.Sign(p))
	if err != nil {
		return false
	}
	got, err := hex.DecodeString(signature)
	if err != nil {
		return false
	}
	return hmac.Equal(expected, got)
}
