package signer

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func basePayload() Payload {
	return Payload{
		UserID:         "u-1",
		DeviceID:       "d-1",
		OfficeID:       "o-1",
		Timestamp:      time.Date(2026, 3, 14, 9, 0, 0, 0, time.UTC),
		Latitude:       -6.2,
		Longitude:      106.81,
		IntegrityScore: 0.9,
	}
}

func TestSigner_SignAndVerify(t *testing.T) {
	s, err := New("test-secret")
	assert.NoError(t, err)

	p := basePayload()
	sig := s.Sign(p)
	assert.NotEmpty(t, sig)
	assert.True(t, s.Verify(sig, p))
}

func TestSigner_VerifyFailsOnMutation(t *testing.T) {
	s, _ := New("test-secret")
	sig := s.Sign(basePayload())

	mutations := []Payload{}

	p := basePayload()
	p.UserID = "u-2"
	mutations = append(mutations, p)

	p = basePayload()
	p.DeviceID = "d-2"
	mutations = append(mutations, p)

	p = basePayload()
	p.Timestamp = p.Timestamp.Add(time.Nanosecond)
	mutations = append(mutations, p)

	p = basePayload()
	p.Latitude += 0.0000001
	mutations = append(mutations, p)

	p = basePayload()
	p.IntegrityScore = 0.91
	mutations = append(mutations, p)

	for _, m := range mutations {
		assert.False(t, s.Verify(sig, m))
	}
}

func TestSigner_VerifyFailsOnGarbageSignature(t *testing.T) {
	s, _ := New("test-secret")
	assert.False(t, s.Verify("not-hex", basePayload()))
	assert.False(t, s.Verify("deadbeef", basePayload()))
}

func TestSigner_TimestampZoneNormalized(t *testing.T) {
	s, _ := New("test-secret")

	jakarta := time.FixedZone("WIB", 7*3600)
	p := basePayload()
	q := p
	q.Timestamp = p.Timestamp.In(jakarta)

	// Same instant in a different zone must produce the same signature.
	assert.Equal(t, s.Sign(p), s.Sign(q))
}

func TestSigner_RequiresSecret(t *testing.T) {
	_, err := New("")
	assert.Error(t, err)
}
