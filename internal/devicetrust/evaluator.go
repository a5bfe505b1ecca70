package devicetrust

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Result carries the trust verdict for a (user, device) pair.
type Result struct {
	Passed      bool
	IsTrusted   bool
	TrustScore  float64
	Fingerprint *string
	LastSeenAt  *time.Time
	Reason      string
}

type Config struct {
	RequireTrusted bool
	MinTrustScore  float64
}

func DefaultConfig() Config {
	return Config{
		RequireTrusted: true,
		MinTrustScore:  0.7,
	}
}

const (
	matureDeviceAge = 30 * 24 * time.Hour
	staleDeviceAge  = 90 * 24 * time.Hour
)

// Evaluator scores how confidently a device is bound to its claimed user.
// Unlike rate limiting this check fails closed: device identity is
// security-critical, so a store error rejects the claim.
type Evaluator struct {
	repo   Repository
	cfg    Config
	logger *zap.Logger
	nowFn  func() time.Time
}

func NewEvaluator(repo Repository, cfg Config, logger *zap.Logger) *Evaluator {
	if cfg.MinTrustScore <= 0 {
		cfg.MinTrustScore = DefaultConfig().MinTrustScore
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Evaluator{repo: repo, cfg: cfg, logger: logger, nowFn: time.Now}
}

func (e *Evaluator) Evaluate(ctx context.Context, userID, deviceID string) Result {
	device, err := e.repo.FindByUserAndDevice(ctx, userID, deviceID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return Result{Passed: false, Reason: "device is not registered for this user"}
		}
		e.logger.Error("device lookup failed, failing closed",
			zap.String("user_id", userID),
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
		return Result{Passed: false, Reason: "device store unavailable"}
	}

	now := e.nowFn()
	score := e.score(device, now)

	res := Result{
		IsTrusted:   device.IsTrusted,
		TrustScore:  score,
		Fingerprint: device.Fingerprint,
		LastSeenAt:  device.LastUsedAt,
	}

	switch {
	case e.cfg.RequireTrusted && !device.IsTrusted:
		res.Reason = "device is not marked trusted"
	case e.cfg.RequireTrusted && score < e.cfg.MinTrustScore:
		res.Reason = "device trust score below minimum"
	default:
		res.Passed = true
	}

	// Best effort: a failed touch must not fail the check.
	if err := e.repo.TouchLastUsed(ctx, userID, deviceID, now); err != nil {
		e.logger.Warn("touch device last_used failed",
			zap.String("device_id", deviceID),
			zap.Error(err),
		)
	}

	return res
}

func (e *Evaluator) score(device *Device, now time.Time) float64 {
	score := 0.5
	if device.IsTrusted {
		score = 1.0
	}

	if now.Sub(device.CreatedAt) > matureDeviceAge {
		score += 0.1
	}
	if device.LastUsedAt != nil && now.Sub(*device.LastUsedAt) > staleDeviceAge {
		score -= 0.2
	}

	if score > 1.0 {
		score = 1.0
	}
	if score < 0 {
		score = 0
	}
	return score
}
