package factor

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"
)

const defaultQRTokenTTL = 5 * time.Minute

// QREvaluator validates the rotating HMAC token rendered by the office
// display. Token format: officeID|issuedAtUnix|hex(hmac-sha256).
type QREvaluator struct {
	secret []byte
	ttl    time.Duration
	nowFn  func() time.Time
}

func NewQREvaluator(secret string, ttl time.Duration) *QREvaluator {
	if ttl <= 0 {
		ttl = defaultQRTokenTTL
	}
	return &QREvaluator{secret: []byte(secret), ttl: ttl, nowFn: time.Now}
}

func (e *QREvaluator) Mode() Mode {
	return ModeQR
}

// IssueToken mints a token for an office display. Exposed for the rotation
// job and for tests.
func (e *QREvaluator) IssueToken(officeID string, issuedAt time.Time) string {
	ts := strconv.FormatInt(issuedAt.Unix(), 10)
	return fmt.Sprintf("%s|%s|%s", officeID, ts, e.mac(officeID, ts))
}

func (e *QREvaluator) Evaluate(ctx context.Context, in Input) Result {
	if in.QR == nil {
		return Result{Mode: ModeQR, Details: "no qr evidence submitted"}
	}

	parts := strings.Split(in.QR.Token, "|")
	if len(parts) != 3 {
		return Result{Mode: ModeQR, Details: "malformed qr token"}
	}
	officeID, ts, mac := parts[0], parts[1], parts[2]

	if officeID != in.OfficeID {
		return Result{Mode: ModeQR, Details: "qr token belongs to another office"}
	}

	expected, err := hex.DecodeString(e.mac(officeID, ts))
	if err != nil {
		return Result{Mode: ModeQR, Err: err}
	}
	got, err := hex.DecodeString(mac)
	if err != nil {
		return Result{Mode: ModeQR, Details: "malformed qr token signature"}
	}
	if !hmac.Equal(expected, got) {
		return Result{Mode: ModeQR, Details: "qr token signature mismatch"}
	}

	issuedUnix, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Result{Mode: ModeQR, Details: "malformed qr token timestamp"}
	}
	age := e.nowFn().Sub(time.Unix(issuedUnix, 0))
	if age > e.ttl || age < -time.Minute {
		return Result{Mode: ModeQR, Details: "qr token expired"}
	}

	return Result{Mode: ModeQR, Passed: true, Confidence: 1.0, Details: "qr token valid"}
}

func (e *QREvaluator) mac(officeID, ts string) string {
	m := hmac.New(sha256.New, e.secret)
	m.Write([]byte(officeID + "|" + ts))
	return hex.EncodeToString(m.Sum(nil))
}
