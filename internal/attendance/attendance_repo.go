package attendance

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
)

// ErrNotFound is returned when no record matches a lookup.
var ErrNotFound = errors.New("presence record not found")

// ErrDuplicateCheckIn is returned when the unique (user_id, attendance_date)
// index rejects a second check-in for the same day.
var ErrDuplicateCheckIn = errors.New("already checked in for this date")

// LastKnown is the most recent claimed position of a user, used by the
// motion guard to judge movement plausibility.
type LastKnown struct {
	Latitude  float64
	Longitude float64
	SeenAt    time.Time
}

//go:generate mockgen -source=attendance_repo.go -destination=mock/attendance_repo_mock.go -package=mock

type Repository interface {
	WithTx(tx *sql.Tx) Repository
	Create(ctx context.Context, rec *Record) error
	FindByUserAndDate(ctx context.Context, userID string, date time.Time) (*Record, error)
	FindLastKnown(ctx context.Context, userID string) (*LastKnown, error)
	UpdateCheckout(ctx context.Context, rec *Record) error
	ListByUser(ctx context.Context, userID string, limit int) ([]Record, error)
}

type repository struct {
	db *sql.DB
	tx *sql.Tx
}

func NewRepository(db *sql.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *sql.Tx) Repository {
	return &repository{db: r.db, tx: tx}
}

type querier interface {
	ExecContext(context.Context, string, ...any) (sql.Result, error)
	QueryContext(context.Context, string, ...any) (*sql.Rows, error)
	QueryRowContext(context.Context, string, ...any) *sql.Row
}

func (r *repository) q() querier {
	if r.tx != nil {
		return r.tx
	}
	return r.db
}

func (r *repository) Create(ctx context.Context, rec *Record) error {
	query := `
        INSERT INTO presence_records (
            id, user_id, device_id, office_id, attendance_date,
            check_in_at, check_in_latitude, check_in_longitude, check_in_signature,
            status, decision, verdict, policy_id, policy_version, is_late
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
    `

	_, err := r.q().ExecContext(
		ctx, query,
		rec.ID, rec.UserID, rec.DeviceID, rec.OfficeID,
		rec.AttendanceDate.Format("2006-01-02"),
		rec.CheckInAt, rec.CheckInLatitude, rec.CheckInLongitude, rec.CheckInSignature,
		rec.Status, rec.Decision, rec.Verdict, rec.PolicyID, rec.PolicyVersion, rec.IsLate,
	)
	if err != nil {
		if isUniqueDateViolation(err) {
			return ErrDuplicateCheckIn
		}
		return err
	}
	return nil
}

const recordColumns = `
	id::text, user_id::text, device_id::text, office_id::text, attendance_date,
	check_in_at, check_in_latitude, check_in_longitude, check_in_signature,
	check_out_at, check_out_latitude, check_out_longitude, check_out_signature,
	status, decision, verdict, policy_id::text, policy_version, is_late, is_early_departure,
	created_at, updated_at
`

func (r *repository) FindByUserAndDate(ctx context.Context, userID string, date time.Time) (*Record, error) {
	query := `SELECT ` + recordColumns + `
FROM presence_records
WHERE user_id = $1 AND attendance_date = $2
`
	row := r.q().QueryRowContext(ctx, query, userID, date.Format("2006-01-02"))
	return scanRecord(row)
}

func (r *repository) FindLastKnown(ctx context.Context, userID string) (*LastKnown, error) {
	// Check-out positions count too, so take the latest claim of either phase.
	query := `
SELECT
	COALESCE(check_out_latitude, check_in_latitude),
	COALESCE(check_out_longitude, check_in_longitude),
	COALESCE(check_out_at, check_in_at)
FROM presence_records
WHERE user_id = $1
ORDER BY COALESCE(check_out_at, check_in_at) DESC
LIMIT 1
`
	var last LastKnown
	err := r.q().QueryRowContext(ctx, query, userID).Scan(&last.Latitude, &last.Longitude, &last.SeenAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &last, nil
}

func (r *repository) UpdateCheckout(ctx context.Context, rec *Record) error {
	query := `
UPDATE presence_records
SET
	check_out_at = $2,
	check_out_latitude = $3,
	check_out_longitude = $4,
	check_out_signature = $5,
	verdict = $6,
	is_early_departure = $7,
	updated_at = NOW()
WHERE id = $1
`
	res, err := r.q().ExecContext(
		ctx, query,
		rec.ID, rec.CheckOutAt, rec.CheckOutLatitude, rec.CheckOutLongitude,
		rec.CheckOutSignature, rec.Verdict, rec.IsEarlyDeparture,
	)
	if err != nil {
		return err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *repository) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	query := `SELECT ` + recordColumns + `
FROM presence_records
WHERE user_id = $1
ORDER BY attendance_date DESC, check_in_at DESC
LIMIT $2
`
	rows, err := r.q().QueryContext(ctx, query, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []Record
	for rows.Next() {
		rec, err := scanRecordRows(rows)
		if err != nil {
			return nil, err
		}
		records = append(records, *rec)
	}
	return records, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRecord(row *sql.Row) (*Record, error) {
	rec, err := scanRecordRows(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	return rec, err
}

func scanRecordRows(row rowScanner) (*Record, error) {
	var rec Record
	err := row.Scan(
		&rec.ID, &rec.UserID, &rec.DeviceID, &rec.OfficeID, &rec.AttendanceDate,
		&rec.CheckInAt, &rec.CheckInLatitude, &rec.CheckInLongitude, &rec.CheckInSignature,
		&rec.CheckOutAt, &rec.CheckOutLatitude, &rec.CheckOutLongitude, &rec.CheckOutSignature,
		&rec.Status, &rec.Decision, &rec.Verdict, &rec.PolicyID, &rec.PolicyVersion,
		&rec.IsLate, &rec.IsEarlyDeparture,
		&rec.CreatedAt, &rec.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &rec, nil
}

func isUniqueDateViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" && pgErr.ConstraintName == "uq_presence_user_date"
	}

	errMsg := strings.ToLower(err.Error())
	return strings.Contains(errMsg, "duplicate key value") && strings.Contains(errMsg, "uq_presence_user_date")
}
