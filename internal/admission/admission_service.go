package admission

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"presencegate/internal/alert"
	"presencegate/internal/attendance"
	"presencegate/internal/audit"
	"presencegate/internal/devicetrust"
	"presencegate/internal/events"
	"presencegate/internal/factor"
	"presencegate/internal/metrics"
	"presencegate/internal/motion"
	"presencegate/internal/policy"
	"presencegate/internal/ratelimit"
	"presencegate/internal/shared/apperror"
	"presencegate/internal/shared/contextutil"
	"presencegate/internal/signer"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

// Collaborator seams, satisfied by the concrete implementations and by
// test stubs.

type RateLimiter interface {
	CheckAndConsume(ctx context.Context, identity string) ratelimit.Result
}

type TrustEvaluator interface {
	Evaluate(ctx context.Context, userID, deviceID string) devicetrust.Result
}

type MotionChecker interface {
	Check(current motion.Location, currentAt time.Time, previous *motion.Location, previousAt time.Time) motion.Result
}

type PolicyLoader interface {
	LoadApplicableForOffice(ctx context.Context, officeID, ifNoneMatch string) (policy.LoadResult, error)
}

type PolicyEvaluator interface {
	Evaluate(ctx context.Context, p *policy.Policy, in factor.Input, now time.Time) policy.EvaluationResult
}

//go:generate mockgen -source=admission_service.go -destination=mock/admission_service_mock.go -package=mock

// Service runs the presence admission pipeline. CheckIn runs the full
// guard sequence; CheckOut is the reduced flow against an existing record.
type Service interface {
	CheckIn(ctx context.Context, sub Submission) (Result, error)
	CheckOut(ctx context.Context, sub Submission) (Result, error)
}

type service struct {
	db        *sql.DB
	repo      attendance.Repository
	limiter   RateLimiter
	trust     TrustEvaluator
	guard     MotionChecker
	policies  PolicyLoader
	evaluator PolicyEvaluator
	signer    *signer.Signer
	recorder  metrics.Recorder
	audit     audit.Logger
	alerts    alert.Dispatcher
	logger    *zap.Logger
	nowFn     func() time.Time
}

type Deps struct {
	DB        *sql.DB
	Repo      attendance.Repository
	Limiter   RateLimiter
	Trust     TrustEvaluator
	Guard     MotionChecker
	Policies  PolicyLoader
	Evaluator PolicyEvaluator
	Signer    *signer.Signer
	Recorder  metrics.Recorder
	Audit     audit.Logger
	Alerts    alert.Dispatcher
	Logger    *zap.Logger
}

func NewService(d Deps) Service {
	return &service{
		db:        d.DB,
		repo:      d.Repo,
		limiter:   d.Limiter,
		trust:     d.Trust,
		guard:     d.Guard,
		policies:  d.Policies,
		evaluator: d.Evaluator,
		signer:    d.Signer,
		recorder:  d.Recorder,
		audit:     d.Audit,
		alerts:    d.Alerts,
		logger:    d.Logger.Named("admission"),
		nowFn:     time.Now,
	}
}

func (s *service) CheckIn(ctx context.Context, sub Submission) (res Result, err error) {
	log := contextutil.GetLogger(ctx, s.logger)

	defer func() {
		if r := recover(); r != nil {
			log.Error("admission pipeline panicked", zap.Any("panic", r))
			res = Result{}
			err = apperror.New(apperror.CodeInternalError, "presence submission could not be processed", http.StatusInternalServerError)
		}
	}()

	now := s.nowFn().UTC()
	if sub.Timestamp.IsZero() {
		sub.Timestamp = now
	}

	rate := s.limiter.CheckAndConsume(ctx, sub.UserID)
	if rate.Blocked {
		s.recorder.RateLimitBlocked()
		s.auditGuardFailure(ctx, sub, events.AuditEvent{
			EventType: "presence.rate_limited",
			Message:   "submission rejected by sliding-window rate limiter",
			Meta:      map[string]any{"reset_at": rate.ResetAt},
		}, now)
		return Result{}, apperror.New(apperror.CodeRateLimitExceeded, "too many presence submissions, try again later", http.StatusTooManyRequests)
	}

	trust := s.trust.Evaluate(ctx, sub.UserID, sub.DeviceID)
	if !trust.Passed {
		s.recorder.DeviceTrustFailed()
		s.auditGuardFailure(ctx, sub, events.AuditEvent{
			EventType: "presence.device_trust_failed",
			Message:   trust.Reason,
		}, now)
		return Result{}, apperror.New(apperror.CodeDeviceTrustFailed, "device failed trust evaluation: "+trust.Reason, http.StatusForbidden)
	}

	move := s.checkMotion(ctx, sub, now, log)
	if !move.Passed {
		s.recorder.MotionViolation()
	}

	loaded, loadErr := s.policies.LoadApplicableForOffice(ctx, sub.OfficeID, "")
	if loadErr != nil {
		if !errors.Is(loadErr, policy.ErrPolicyNotFound) {
			log.Error("policy load failed", zap.String("office_id", sub.OfficeID), zap.Error(loadErr))
		}
		s.auditGuardFailure(ctx, sub, events.AuditEvent{
			EventType: "presence.no_policy",
			Message:   "no applicable presence policy for office",
		}, now)
		return Result{}, apperror.New(apperror.CodeNoPolicyFound, "no applicable presence policy for this office", http.StatusUnprocessableEntity)
	}

	eval := s.evaluator.Evaluate(ctx, loaded.Policy, factorInput(sub), now)

	verdict := buildVerdict(rate, trust, move, eval, now)

	// The overall score is fixed at verdict build time; the demotion below
	// changes the decision, never the already-computed score (the motion
	// share is already zero for the failed check).
	decision := eval.Decision
	rationale := eval.Rationale
	if decision == policy.DecisionAccepted && !move.Passed {
		decision = policy.DecisionReview
		rationale = rationale + "; movement between claims is implausible, flagged for review"
		verdict.Evaluation.Decision = decision
		verdict.Evaluation.Rationale = rationale
	}

	// Every verdict is signed, including rejections that never reach the
	// store, so downstream consumers can authenticate the decision.
	sig := s.signer.Sign(signer.Payload{
		UserID:         sub.UserID,
		DeviceID:       sub.DeviceID,
		OfficeID:       sub.OfficeID,
		Timestamp:      sub.Timestamp,
		Latitude:       sub.Latitude,
		Longitude:      sub.Longitude,
		IntegrityScore: verdict.OverallScore,
	})

	if decision == policy.DecisionRejected {
		s.recorder.SubmissionDecided(string(decision))
		s.audit.Record(ctx, nil, events.AuditEvent{
			RequestID: contextutil.GetRequestID(ctx),
			EventType: "presence.rejected",
			UserID:    sub.UserID,
			DeviceID:  sub.DeviceID,
			OfficeID:  sub.OfficeID,
			Decision:  string(decision),
			Message:   rationale,
		})
		s.alerts.OnRejection(ctx, nil, alertFor(sub, decision, rationale))
		return Result{
			Decision:     string(decision),
			Rationale:    rationale,
			OverallScore: verdict.OverallScore,
			Signature:    sig,
			Verdict:      &verdict,
		}, nil
	}

	verdictJSON, jsonErr := json.Marshal(verdict)
	if jsonErr != nil {
		return Result{}, apperror.Wrap(jsonErr, apperror.CodeInternalError, "encode integrity verdict failed", http.StatusInternalServerError)
	}

	rec := &attendance.Record{
		ID:               uuid.NewString(),
		UserID:           sub.UserID,
		DeviceID:         sub.DeviceID,
		OfficeID:         sub.OfficeID,
		AttendanceDate:   now.Truncate(24 * time.Hour),
		CheckInAt:        sub.Timestamp,
		CheckInLatitude:  sub.Latitude,
		CheckInLongitude: sub.Longitude,
		CheckInSignature: sig,
		Status:           statusFor(decision, eval.IsLate),
		Decision:         string(decision),
		Verdict:          verdictJSON,
		PolicyID:         eval.PolicyID,
		PolicyVersion:    eval.PolicyVersion,
		IsLate:           eval.IsLate,
	}

	tx, txErr := s.db.BeginTx(ctx, nil)
	if txErr != nil {
		return Result{}, txErr
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)
	if createErr := qtx.Create(ctx, rec); createErr != nil {
		if errors.Is(createErr, attendance.ErrDuplicateCheckIn) {
			return Result{}, apperror.New(apperror.CodeConflict, "already checked in today", http.StatusConflict)
		}
		return Result{}, createErr
	}

	s.audit.Record(ctx, tx, events.AuditEvent{
		RequestID: contextutil.GetRequestID(ctx),
		EventType: "presence.admitted",
		UserID:    sub.UserID,
		DeviceID:  sub.DeviceID,
		OfficeID:  sub.OfficeID,
		Decision:  string(decision),
		Message:   rationale,
		Meta:      map[string]any{"record_id": rec.ID, "overall_score": verdict.OverallScore},
	})

	if decision == policy.DecisionReview {
		s.alerts.OnReview(ctx, tx, alertFor(sub, decision, rationale))
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return Result{}, commitErr
	}

	s.recorder.SubmissionDecided(string(decision))
	resp := attendance.MapToResponse(*rec)
	return Result{
		Decision:     string(decision),
		Rationale:    rationale,
		OverallScore: verdict.OverallScore,
		Signature:    sig,
		Verdict:      &verdict,
		Record:       &resp,
	}, nil
}

func (s *service) CheckOut(ctx context.Context, sub Submission) (res Result, err error) {
	log := contextutil.GetLogger(ctx, s.logger)

	defer func() {
		if r := recover(); r != nil {
			log.Error("checkout pipeline panicked", zap.Any("panic", r))
			res = Result{}
			err = apperror.New(apperror.CodeInternalError, "presence check-out could not be processed", http.StatusInternalServerError)
		}
	}()

	now := s.nowFn().UTC()
	if sub.Timestamp.IsZero() {
		sub.Timestamp = now
	}
	today := now.Truncate(24 * time.Hour)

	rec, findErr := s.repo.FindByUserAndDate(ctx, sub.UserID, today)
	if findErr != nil {
		if errors.Is(findErr, attendance.ErrNotFound) {
			return Result{}, apperror.New(apperror.CodeInvalidState, "no check-in found for today", http.StatusConflict)
		}
		return Result{}, findErr
	}
	if rec.CheckOutAt != nil {
		return Result{}, apperror.New(apperror.CodeConflict, "already checked out today", http.StatusConflict)
	}

	// Movement is judged against the morning check-in position.
	prev := &motion.Location{Latitude: rec.CheckInLatitude, Longitude: rec.CheckInLongitude}
	move := s.guard.Check(motion.Location{Latitude: sub.Latitude, Longitude: sub.Longitude}, sub.Timestamp, prev, rec.CheckInAt)
	if !move.Passed {
		s.recorder.MotionViolation()
	}

	var stored IntegrityVerdict
	if len(rec.Verdict) > 0 {
		if umErr := json.Unmarshal(rec.Verdict, &stored); umErr != nil {
			log.Warn("stored verdict unreadable", zap.String("record_id", rec.ID), zap.Error(umErr))
		}
	}

	isEarly := false
	if loaded, loadErr := s.policies.LoadApplicableForOffice(ctx, rec.OfficeID, ""); loadErr == nil {
		isEarly = loaded.Policy.IsEarlyLeaveAt(sub.Timestamp)
	} else {
		log.Warn("policy unavailable at check-out, skipping early-leave check",
			zap.String("office_id", rec.OfficeID), zap.Error(loadErr))
	}

	sig := s.signer.Sign(signer.Payload{
		UserID:         sub.UserID,
		DeviceID:       sub.DeviceID,
		OfficeID:       rec.OfficeID,
		Timestamp:      sub.Timestamp,
		Latitude:       sub.Latitude,
		Longitude:      sub.Longitude,
		IntegrityScore: stored.OverallScore,
	})

	rec.CheckOutAt = &sub.Timestamp
	rec.CheckOutLatitude = &sub.Latitude
	rec.CheckOutLongitude = &sub.Longitude
	rec.CheckOutSignature = &sig
	rec.IsEarlyDeparture = isEarly

	tx, txErr := s.db.BeginTx(ctx, nil)
	if txErr != nil {
		return Result{}, txErr
	}
	defer tx.Rollback()

	qtx := s.repo.WithTx(tx)
	if updErr := qtx.UpdateCheckout(ctx, rec); updErr != nil {
		return Result{}, updErr
	}

	s.audit.Record(ctx, tx, events.AuditEvent{
		RequestID: contextutil.GetRequestID(ctx),
		EventType: "presence.checked_out",
		UserID:    sub.UserID,
		DeviceID:  sub.DeviceID,
		OfficeID:  rec.OfficeID,
		Decision:  rec.Decision,
		Message:   checkoutMessage(move, isEarly),
		Meta:      map[string]any{"record_id": rec.ID},
	})

	if !move.Passed {
		s.alerts.OnReview(ctx, tx, alertFor(sub, policy.DecisionReview, "implausible movement at check-out"))
	}

	if commitErr := tx.Commit(); commitErr != nil {
		return Result{}, commitErr
	}

	resp := attendance.MapToResponse(*rec)
	return Result{
		Decision:     rec.Decision,
		Rationale:    checkoutMessage(move, isEarly),
		OverallScore: stored.OverallScore,
		Signature:    sig,
		Record:       &resp,
	}, nil
}

// checkMotion looks up the last known position. A missing history or a
// store failure degrades to a cold start; plausibility is advisory, not a
// security gate.
func (s *service) checkMotion(ctx context.Context, sub Submission, now time.Time, log *zap.Logger) motion.Result {
	var (
		prev   *motion.Location
		prevAt time.Time
	)

	last, err := s.repo.FindLastKnown(ctx, sub.UserID)
	switch {
	case err == nil:
		prev = &motion.Location{Latitude: last.Latitude, Longitude: last.Longitude}
		prevAt = last.SeenAt
	case errors.Is(err, attendance.ErrNotFound):
	default:
		log.Warn("last known location lookup failed", zap.String("user_id", sub.UserID), zap.Error(err))
	}

	return s.guard.Check(motion.Location{Latitude: sub.Latitude, Longitude: sub.Longitude}, sub.Timestamp, prev, prevAt)
}

func (s *service) auditGuardFailure(ctx context.Context, sub Submission, event events.AuditEvent, now time.Time) {
	event.RequestID = contextutil.GetRequestID(ctx)
	event.UserID = sub.UserID
	event.DeviceID = sub.DeviceID
	event.OfficeID = sub.OfficeID
	event.Decision = string(policy.DecisionRejected)
	event.OccurredAt = now
	s.audit.Record(ctx, nil, event)
}

func factorInput(sub Submission) factor.Input {
	return factor.Input{
		UserID:    sub.UserID,
		DeviceID:  sub.DeviceID,
		OfficeID:  sub.OfficeID,
		Timestamp: sub.Timestamp,
		Location:  motion.Location{Latitude: sub.Latitude, Longitude: sub.Longitude},
		Network:   sub.Network,
		Beacon:    sub.Beacon,
		NFC:       sub.NFC,
		QR:        sub.QR,
		Face:      sub.Face,
	}
}

func statusFor(decision policy.Decision, isLate bool) string {
	switch {
	case decision == policy.DecisionReview:
		return attendance.StatusReview
	case isLate:
		return attendance.StatusLate
	default:
		return attendance.StatusPresent
	}
}

func alertFor(sub Submission, decision policy.Decision, rationale string) events.AlertEvent {
	return events.AlertEvent{
		UserID:    sub.UserID,
		DeviceID:  sub.DeviceID,
		OfficeID:  sub.OfficeID,
		Decision:  string(decision),
		Rationale: rationale,
	}
}

func checkoutMessage(move motion.Result, isEarly bool) string {
	switch {
	case !move.Passed && isEarly:
		return "checked out early with implausible movement"
	case !move.Passed:
		return "checked out with implausible movement"
	case isEarly:
		return "checked out before end of working hours"
	default:
		return "checked out"
	}
}
