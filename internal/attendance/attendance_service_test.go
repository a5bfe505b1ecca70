package attendance

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type fakeRepo struct {
	byDate    map[string]*Record
	history   []Record
	lastLimit int
}

func (f *fakeRepo) WithTx(tx *sql.Tx) Repository { return f }

func (f *fakeRepo) Create(ctx context.Context, rec *Record) error { return nil }

func (f *fakeRepo) FindByUserAndDate(ctx context.Context, userID string, date time.Time) (*Record, error) {
	rec, ok := f.byDate[date.Format("2006-01-02")]
	if !ok {
		return nil, ErrNotFound
	}
	return rec, nil
}

func (f *fakeRepo) FindLastKnown(ctx context.Context, userID string) (*LastKnown, error) {
	return nil, ErrNotFound
}

func (f *fakeRepo) UpdateCheckout(ctx context.Context, rec *Record) error { return nil }

func (f *fakeRepo) ListByUser(ctx context.Context, userID string, limit int) ([]Record, error) {
	f.lastLimit = limit
	if limit < len(f.history) {
		return f.history[:limit], nil
	}
	return f.history, nil
}

func newTestService(repo *fakeRepo, now time.Time) Service {
	svc := NewService(repo).(*service)
	svc.nowFn = func() time.Time { return now }
	return svc
}

func TestGetToday_ReturnsTodaysRecord(t *testing.T) {
	now := time.Date(2026, 3, 9, 14, 30, 0, 0, time.UTC)
	rec := &Record{
		ID:             "rec-1",
		UserID:         "user-1",
		AttendanceDate: time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		CheckInAt:      time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC),
		Status:         StatusPresent,
		Decision:       "ACCEPTED",
	}
	repo := &fakeRepo{byDate: map[string]*Record{"2026-03-09": rec}}
	svc := newTestService(repo, now)

	resp, err := svc.GetToday(context.Background(), "user-1")
	assert.NoError(t, err)
	assert.Equal(t, "rec-1", resp.ID)
	assert.Equal(t, "2026-03-09", resp.AttendanceDate)
	assert.Equal(t, StatusPresent, resp.Status)
	assert.Nil(t, resp.CheckOutAt)
}

func TestGetToday_NoRecordMapsToNotFound(t *testing.T) {
	svc := newTestService(&fakeRepo{byDate: map[string]*Record{}}, time.Date(2026, 3, 9, 8, 0, 0, 0, time.UTC))

	_, err := svc.GetToday(context.Background(), "user-1")
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no presence record")
}

func TestGetHistory_ClampsLimit(t *testing.T) {
	history := make([]Record, 40)
	for i := range history {
		history[i] = Record{ID: "rec", AttendanceDate: time.Now(), CheckInAt: time.Now()}
	}
	repo := &fakeRepo{history: history}
	svc := newTestService(repo, time.Now())

	// Zero and out-of-range limits fall back to the default window.
	_, err := svc.GetHistory(context.Background(), "user-1", 0)
	assert.NoError(t, err)
	assert.Equal(t, defaultHistoryLimit, repo.lastLimit)

	_, err = svc.GetHistory(context.Background(), "user-1", 500)
	assert.NoError(t, err)
	assert.Equal(t, defaultHistoryLimit, repo.lastLimit)

	resp, err := svc.GetHistory(context.Background(), "user-1", 10)
	assert.NoError(t, err)
	assert.Equal(t, 10, repo.lastLimit)
	assert.Len(t, resp, 10)
}

func TestGetHistory_MapsCheckout(t *testing.T) {
	out := time.Date(2026, 3, 9, 17, 5, 0, 0, time.UTC)
	lat, lng := -6.2, 106.8
	sig := "checkout-sig"
	repo := &fakeRepo{history: []Record{{
		ID:                "rec-1",
		AttendanceDate:    time.Date(2026, 3, 9, 0, 0, 0, 0, time.UTC),
		CheckInAt:         time.Date(2026, 3, 9, 9, 0, 0, 0, time.UTC),
		CheckOutAt:        &out,
		CheckOutLatitude:  &lat,
		CheckOutLongitude: &lng,
		CheckOutSignature: &sig,
	}}}
	svc := newTestService(repo, time.Now())

	resp, err := svc.GetHistory(context.Background(), "user-1", 5)
	assert.NoError(t, err)
	assert.Len(t, resp, 1)
	assert.NotNil(t, resp[0].CheckOutAt)
	assert.Equal(t, out.Format(time.RFC3339), *resp[0].CheckOutAt)
	assert.Equal(t, sig, *resp[0].CheckOutSignature)
}
