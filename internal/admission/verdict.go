package admission

import (
	"presencegate/internal/devicetrust"
	"presencegate/internal/motion"
	"presencegate/internal/policy"
	"presencegate/internal/ratelimit"
	"time"
)

const verdictVersion = "v1"

// Score weights for the aggregate integrity score. Policy evaluation
// dominates; the guard checks contribute smaller shares.
const (
	weightPolicy      = 0.5
	weightMotion      = 0.2
	weightDeviceTrust = 0.2
	weightRateLimit   = 0.1
)

type RateLimitSummary struct {
	Passed    bool      `json:"passed"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	ResetAt   time.Time `json:"reset_at"`
}

type DeviceTrustSummary struct {
	Passed     bool    `json:"passed"`
	IsTrusted  bool    `json:"is_trusted"`
	TrustScore float64 `json:"trust_score"`
	Reason     string  `json:"reason,omitempty"`
}

type MotionSummary struct {
	Passed           bool    `json:"passed"`
	TeleportDetected bool    `json:"teleport_detected"`
	SpeedViolation   bool    `json:"speed_violation"`
	DistanceMeters   float64 `json:"distance_meters"`
	SpeedMps         float64 `json:"speed_mps"`
}

// IntegrityVerdict is the aggregated, signed record of every check the
// pipeline performed for one submission. It is immutable once produced;
// corrections require a new submission.
type IntegrityVerdict struct {
	Version      string                  `json:"version"`
	RateLimit    RateLimitSummary        `json:"rate_limit"`
	DeviceTrust  DeviceTrustSummary      `json:"device_trust"`
	Motion       MotionSummary           `json:"motion"`
	Evaluation   policy.EvaluationResult `json:"evaluation"`
	OverallScore float64                 `json:"overall_score"`
	CreatedAt    time.Time               `json:"created_at"`
}

func buildVerdict(
	rate ratelimit.Result,
	trust devicetrust.Result,
	move motion.Result,
	eval policy.EvaluationResult,
	now time.Time,
) IntegrityVerdict {
	v := IntegrityVerdict{
		Version: verdictVersion,
		RateLimit: RateLimitSummary{
			Passed:    rate.Passed,
			Limit:     rate.Limit,
			Remaining: rate.Remaining,
			ResetAt:   rate.ResetAt,
		},
		DeviceTrust: DeviceTrustSummary{
			Passed:     trust.Passed,
			IsTrusted:  trust.IsTrusted,
			TrustScore: trust.TrustScore,
			Reason:     trust.Reason,
		},
		Motion: MotionSummary{
			Passed:           move.Passed,
			TeleportDetected: move.TeleportDetected,
			SpeedViolation:   move.SpeedViolation,
			DistanceMeters:   move.DistanceMeters,
			SpeedMps:         move.SpeedMps,
		},
		Evaluation: eval,
		CreatedAt:  now.UTC(),
	}
	v.OverallScore = overallScore(v)
	return v
}

func overallScore(v IntegrityVerdict) float64 {
	policyScore := 0.0
	switch v.Evaluation.Decision {
	case policy.DecisionAccepted:
		policyScore = 1.0
	case policy.DecisionReview:
		policyScore = 0.5
	}

	motionScore := 0.0
	if v.Motion.Passed {
		motionScore = 1.0
	}

	trustScore := v.DeviceTrust.TrustScore
	if trustScore <= 0 && v.DeviceTrust.Passed {
		trustScore = 1.0
	}

	rateScore := 0.0
	if v.RateLimit.Passed {
		rateScore = 1.0
	}

	return weightPolicy*policyScore +
		weightMotion*motionScore +
		weightDeviceTrust*trustScore +
		weightRateLimit*rateScore
}
