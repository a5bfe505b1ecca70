package admission

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"presencegate/internal/attendance"
	"presencegate/internal/devicetrust"
	"presencegate/internal/events"
	"presencegate/internal/factor"
	"presencegate/internal/motion"
	"presencegate/internal/policy"
	"presencegate/internal/ratelimit"
	"presencegate/internal/shared/apperror"
	"presencegate/internal/signer"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

type stubLimiter struct{ res ratelimit.Result }

func (s stubLimiter) CheckAndConsume(ctx context.Context, identity string) ratelimit.Result {
	return s.res
}

type stubTrust struct{ res devicetrust.Result }

func (s stubTrust) Evaluate(ctx context.Context, userID, deviceID string) devicetrust.Result {
	return s.res
}

type stubGuard struct{ res motion.Result }

func (s stubGuard) Check(current motion.Location, currentAt time.Time, previous *motion.Location, previousAt time.Time) motion.Result {
	return s.res
}

type stubPolicies struct {
	res policy.LoadResult
	err error
}

func (s stubPolicies) LoadApplicableForOffice(ctx context.Context, officeID, ifNoneMatch string) (policy.LoadResult, error) {
	return s.res, s.err
}

type stubEvaluator struct {
	res      policy.EvaluationResult
	panicMsg string
}

func (s stubEvaluator) Evaluate(ctx context.Context, p *policy.Policy, in factor.Input, now time.Time) policy.EvaluationResult {
	if s.panicMsg != "" {
		panic(s.panicMsg)
	}
	return s.res
}

type fakeRepo struct {
	created   *attendance.Record
	createErr error
	found     *attendance.Record
	findErr   error
	last      *attendance.LastKnown
	lastErr   error
	updated   *attendance.Record
	updateErr error
}

func (f *fakeRepo) WithTx(tx *sql.Tx) attendance.Repository { return f }
func (f *fakeRepo) Create(ctx context.Context, rec *attendance.Record) error {
	if f.createErr != nil {
		return f.createErr
	}
	f.created = rec
	return nil
}
func (f *fakeRepo) FindByUserAndDate(ctx context.Context, userID string, date time.Time) (*attendance.Record, error) {
	if f.findErr != nil {
		return nil, f.findErr
	}
	return f.found, nil
}
func (f *fakeRepo) FindLastKnown(ctx context.Context, userID string) (*attendance.LastKnown, error) {
	if f.lastErr != nil {
		return nil, f.lastErr
	}
	return f.last, nil
}
func (f *fakeRepo) UpdateCheckout(ctx context.Context, rec *attendance.Record) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updated = rec
	return nil
}
func (f *fakeRepo) ListByUser(ctx context.Context, userID string, limit int) ([]attendance.Record, error) {
	return nil, nil
}

type recordingRecorder struct {
	decisions  []string
	blocks     int
	motions    int
	trustFails int
}

func (r *recordingRecorder) SubmissionDecided(decision string) {
	r.decisions = append(r.decisions, decision)
}
func (r *recordingRecorder) RateLimitBlocked()  { r.blocks++ }
func (r *recordingRecorder) MotionViolation()   { r.motions++ }
func (r *recordingRecorder) DeviceTrustFailed() { r.trustFails++ }

type recordingAlerts struct {
	reviews    []events.AlertEvent
	rejections []events.AlertEvent
}

func (r *recordingAlerts) OnReview(ctx context.Context, tx *sql.Tx, a events.AlertEvent) {
	r.reviews = append(r.reviews, a)
}
func (r *recordingAlerts) OnRejection(ctx context.Context, tx *sql.Tx, a events.AlertEvent) {
	r.rejections = append(r.rejections, a)
}

type nopAudit struct{}

func (nopAudit) Record(ctx context.Context, tx *sql.Tx, event events.AuditEvent) {}

var testNow = time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC) // Monday

func passingDeps(t *testing.T, db *sql.DB, repo attendance.Repository) (Deps, *recordingRecorder, *recordingAlerts) {
	t.Helper()

	sgn, err := signer.New("test-secret")
	assert.NoError(t, err)

	recorder := &recordingRecorder{}
	alerts := &recordingAlerts{}

	deps := Deps{
		DB:      db,
		Repo:    repo,
		Limiter: stubLimiter{res: ratelimit.Result{Passed: true, Limit: 12, Remaining: 11}},
		Trust:   stubTrust{res: devicetrust.Result{Passed: true, IsTrusted: true, TrustScore: 1.0}},
		Guard:   stubGuard{res: motion.Result{Passed: true}},
		Policies: stubPolicies{res: policy.LoadResult{
			Policy:   &policy.Policy{Name: "default"},
			ETag:     "etag",
			Modified: true,
		}},
		Evaluator: stubEvaluator{res: policy.EvaluationResult{
			Decision:      policy.DecisionAccepted,
			Rationale:     "2 of 2 required factors passed within working hours",
			PolicyID:      "pol-1",
			PolicyVersion: 3,
		}},
		Signer:   sgn,
		Recorder: recorder,
		Audit:    nopAudit{},
		Alerts:   alerts,
		Logger:   zap.NewNop(),
	}
	return deps, recorder, alerts
}

func newTestService(deps Deps) *service {
	svc := NewService(deps).(*service)
	svc.nowFn = func() time.Time { return testNow }
	return svc
}

func submission() Submission {
	return Submission{
		UserID:    "user-1",
		DeviceID:  "device-1",
		OfficeID:  "office-1",
		Latitude:  -6.2,
		Longitude: 106.8,
	}
}

func appErrorCode(t *testing.T, err error) string {
	t.Helper()
	var appErr *apperror.AppError
	assert.True(t, errors.As(err, &appErr), "expected AppError, got %v", err)
	return appErr.Code
}

func TestCheckIn_Accepted(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := &fakeRepo{lastErr: attendance.ErrNotFound}
	deps, recorder, alerts := passingDeps(t, db, repo)
	svc := newTestService(deps)

	mock.ExpectBegin()
	mock.ExpectCommit()

	res, err := svc.CheckIn(context.Background(), submission())
	assert.NoError(t, err)
	assert.Equal(t, string(policy.DecisionAccepted), res.Decision)
	assert.NotNil(t, res.Record)
	assert.Equal(t, attendance.StatusPresent, repo.created.Status)
	assert.Equal(t, []string{"ACCEPTED"}, recorder.decisions)
	assert.Empty(t, alerts.reviews)

	// All four checks passed with full trust score.
	assert.InDelta(t, 1.0, res.OverallScore, 1e-9)

	assert.True(t, deps.Signer.Verify(res.Signature, signer.Payload{
		UserID:         "user-1",
		DeviceID:       "device-1",
		OfficeID:       "office-1",
		Timestamp:      testNow,
		Latitude:       -6.2,
		Longitude:      106.8,
		IntegrityScore: res.OverallScore,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckIn_RateLimited(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := &fakeRepo{lastErr: attendance.ErrNotFound}
	deps, recorder, _ := passingDeps(t, db, repo)
	deps.Limiter = stubLimiter{res: ratelimit.Result{Blocked: true, ResetAt: testNow.Add(45 * time.Second)}}
	svc := newTestService(deps)

	_, err := svc.CheckIn(context.Background(), submission())
	assert.Equal(t, apperror.CodeRateLimitExceeded, appErrorCode(t, err))
	assert.Nil(t, repo.created, "blocked submission must not persist a record")
	assert.Equal(t, 1, recorder.blocks)
	assert.Empty(t, recorder.decisions)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckIn_DeviceTrustFailed(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := &fakeRepo{lastErr: attendance.ErrNotFound}
	deps, recorder, _ := passingDeps(t, db, repo)
	deps.Trust = stubTrust{res: devicetrust.Result{Passed: false, Reason: "device not registered for user"}}
	svc := newTestService(deps)

	_, err := svc.CheckIn(context.Background(), submission())
	assert.Equal(t, apperror.CodeDeviceTrustFailed, appErrorCode(t, err))
	assert.Nil(t, repo.created)
	assert.Equal(t, 1, recorder.trustFails)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckIn_MotionViolationDemotesToReview(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := &fakeRepo{last: &attendance.LastKnown{Latitude: -6.9, Longitude: 107.6, SeenAt: testNow.Add(-time.Minute)}}
	deps, recorder, alerts := passingDeps(t, db, repo)
	deps.Guard = stubGuard{res: motion.Result{
		Passed:           false,
		TeleportDetected: true,
		DistanceMeters:   127000,
		SpeedMps:         2100,
	}}
	svc := newTestService(deps)

	mock.ExpectBegin()
	mock.ExpectCommit()

	res, err := svc.CheckIn(context.Background(), submission())
	assert.NoError(t, err)
	assert.Equal(t, string(policy.DecisionReview), res.Decision)
	assert.Contains(t, res.Rationale, "implausible")
	assert.Equal(t, attendance.StatusReview, repo.created.Status)
	assert.Equal(t, 1, recorder.motions)
	assert.Len(t, alerts.reviews, 1)

	// The score is fixed before demotion: the policy evaluation itself
	// accepted, so it keeps its full share; the failed motion check is
	// already priced in through the zero motion share.
	assert.InDelta(t, 0.5*1.0+0.2*0.0+0.2*1.0+0.1*1.0, res.OverallScore, 1e-9)

	// The signature covers the pre-demotion score while the persisted
	// verdict carries the demoted decision.
	assert.Equal(t, string(policy.DecisionReview), string(res.Verdict.Evaluation.Decision))
	assert.True(t, deps.Signer.Verify(res.Signature, signer.Payload{
		UserID:         repo.created.UserID,
		DeviceID:       repo.created.DeviceID,
		OfficeID:       repo.created.OfficeID,
		Timestamp:      testNow,
		Latitude:       repo.created.CheckInLatitude,
		Longitude:      repo.created.CheckInLongitude,
		IntegrityScore: res.OverallScore,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckIn_NoPolicyFound(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := &fakeRepo{lastErr: attendance.ErrNotFound}
	deps, _, _ := passingDeps(t, db, repo)
	deps.Policies = stubPolicies{err: policy.ErrPolicyNotFound}
	svc := newTestService(deps)

	_, err := svc.CheckIn(context.Background(), submission())
	assert.Equal(t, apperror.CodeNoPolicyFound, appErrorCode(t, err))
	assert.Nil(t, repo.created)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckIn_RejectedIsNotPersisted(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := &fakeRepo{lastErr: attendance.ErrNotFound}
	deps, recorder, alerts := passingDeps(t, db, repo)
	deps.Evaluator = stubEvaluator{res: policy.EvaluationResult{
		Decision:  policy.DecisionRejected,
		Rationale: "insufficient presence evidence: 0 of 2 required factors passed",
	}}
	svc := newTestService(deps)

	res, err := svc.CheckIn(context.Background(), submission())
	assert.NoError(t, err)
	assert.Equal(t, string(policy.DecisionRejected), res.Decision)
	assert.Nil(t, res.Record)
	assert.Nil(t, repo.created)
	assert.Equal(t, []string{"REJECTED"}, recorder.decisions)
	assert.Len(t, alerts.rejections, 1)

	// Unpersisted rejections are still signed so the returned verdict can
	// be authenticated downstream.
	assert.NotEmpty(t, res.Signature)
	assert.True(t, deps.Signer.Verify(res.Signature, signer.Payload{
		UserID:         "user-1",
		DeviceID:       "device-1",
		OfficeID:       "office-1",
		Timestamp:      testNow,
		Latitude:       -6.2,
		Longitude:      106.8,
		IntegrityScore: res.OverallScore,
	}))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckIn_DuplicateSameDay(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := &fakeRepo{lastErr: attendance.ErrNotFound, createErr: attendance.ErrDuplicateCheckIn}
	deps, _, _ := passingDeps(t, db, repo)
	svc := newTestService(deps)

	mock.ExpectBegin()
	mock.ExpectRollback()

	_, err := svc.CheckIn(context.Background(), submission())
	assert.Equal(t, apperror.CodeConflict, appErrorCode(t, err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckIn_PanicConvertsToInternalError(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := &fakeRepo{lastErr: attendance.ErrNotFound}
	deps, _, _ := passingDeps(t, db, repo)
	deps.Evaluator = stubEvaluator{panicMsg: "boom"}
	svc := newTestService(deps)

	_, err := svc.CheckIn(context.Background(), submission())
	assert.Equal(t, apperror.CodeInternalError, appErrorCode(t, err))
	assert.Nil(t, repo.created, "no partial state after a panic")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckOut_CompletesRecord(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	existing := &attendance.Record{
		ID:               "rec-1",
		UserID:           "user-1",
		DeviceID:         "device-1",
		OfficeID:         "office-1",
		AttendanceDate:   testNow.Truncate(24 * time.Hour),
		CheckInAt:        testNow.Add(-8 * time.Hour),
		CheckInLatitude:  -6.2,
		CheckInLongitude: 106.8,
		Status:           attendance.StatusPresent,
		Decision:         string(policy.DecisionAccepted),
		Verdict:          []byte(`{"version":"v1","overall_score":1.0}`),
	}
	repo := &fakeRepo{found: existing}
	deps, _, _ := passingDeps(t, db, repo)
	svc := newTestService(deps)

	mock.ExpectBegin()
	mock.ExpectCommit()

	res, err := svc.CheckOut(context.Background(), submission())
	assert.NoError(t, err)
	assert.NotNil(t, repo.updated)
	assert.NotNil(t, repo.updated.CheckOutAt)
	assert.NotEmpty(t, res.Signature)
	assert.NotNil(t, res.Record)
	assert.NotNil(t, res.Record.CheckOutAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckOut_WithoutCheckIn(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := &fakeRepo{findErr: attendance.ErrNotFound}
	deps, _, _ := passingDeps(t, db, repo)
	svc := newTestService(deps)

	_, err := svc.CheckOut(context.Background(), submission())
	assert.Equal(t, apperror.CodeInvalidState, appErrorCode(t, err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckOut_AlreadyCheckedOut(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	out := testNow.Add(-time.Hour)
	repo := &fakeRepo{found: &attendance.Record{
		ID:         "rec-1",
		UserID:     "user-1",
		CheckInAt:  testNow.Add(-9 * time.Hour),
		CheckOutAt: &out,
	}}
	deps, _, _ := passingDeps(t, db, repo)
	svc := newTestService(deps)

	_, err := svc.CheckOut(context.Background(), submission())
	assert.Equal(t, apperror.CodeConflict, appErrorCode(t, err))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCheckOut_EarlyDeparture(t *testing.T) {
	db, mock, _ := sqlmock.New()
	defer db.Close()

	repo := &fakeRepo{found: &attendance.Record{
		ID:               "rec-1",
		UserID:           "user-1",
		OfficeID:         "office-1",
		CheckInAt:        testNow.Add(-4 * time.Hour),
		CheckInLatitude:  -6.2,
		CheckInLongitude: 106.8,
		Decision:         string(policy.DecisionAccepted),
		Verdict:          []byte(`{"version":"v1","overall_score":0.9}`),
	}}
	deps, _, _ := passingDeps(t, db, repo)
	deps.Policies = stubPolicies{res: policy.LoadResult{Policy: &policy.Policy{
		Name:                       "default",
		WorkStart:                  "09:00",
		WorkEnd:                    "17:00",
		WorkingDays:                []time.Weekday{time.Monday},
		EarlyLeaveThresholdMinutes: 30,
	}}}
	svc := newTestService(deps)

	mock.ExpectBegin()
	mock.ExpectCommit()

	// testNow is 09:00, well before 16:30.
	res, err := svc.CheckOut(context.Background(), submission())
	assert.NoError(t, err)
	assert.True(t, repo.updated.IsEarlyDeparture)
	assert.NotNil(t, res.Record)
	assert.NoError(t, mock.ExpectationsWereMet())
}
