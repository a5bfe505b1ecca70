package policy

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/go-redis/redismock/v9"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

type fakePolicyRepo struct {
	byID       map[string]*Policy
	applicable *Policy
	errQueue   []error
	calls      int
}

func (f *fakePolicyRepo) nextErr() error {
	if len(f.errQueue) == 0 {
		return nil
	}
	err := f.errQueue[0]
	f.errQueue = f.errQueue[1:]
	return err
}

func (f *fakePolicyRepo) FindByID(ctx context.Context, id string) (*Policy, error) {
	f.calls++
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	p, ok := f.byID[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return p, nil
}

func (f *fakePolicyRepo) FindApplicableForOffice(ctx context.Context, officeID string) (*Policy, error) {
	f.calls++
	if err := f.nextErr(); err != nil {
		return nil, err
	}
	if f.applicable == nil {
		return nil, gorm.ErrRecordNotFound
	}
	return f.applicable, nil
}

func (f *fakePolicyRepo) FindAll(ctx context.Context) ([]Policy, error) { return nil, nil }
func (f *fakePolicyRepo) Create(ctx context.Context, p *Policy) error   { return nil }
func (f *fakePolicyRepo) Update(ctx context.Context, p *Policy) error   { return nil }

func samplePolicy() *Policy {
	return &Policy{
		ID:          uuid.MustParse("6ba7b810-9dad-11d1-80b4-00c04fd430c8"),
		Name:        "hq-default",
		Version:     2,
		IsActive:    true,
		MinFactors:  1,
		WorkStart:   "09:00",
		WorkEnd:     "17:00",
		WorkingDays: []time.Weekday{time.Monday},
	}
}

func TestCache_MissFetchesAndStores(t *testing.T) {
	db, mock := redismock.NewClientMock()
	p := samplePolicy()
	repo := &fakePolicyRepo{byID: map[string]*Policy{p.ID.String(): p}}
	cache := NewCache(db, repo, 300*time.Second, nil)

	key := idKeyPrefix + p.ID.String()
	entry := cacheEntry{ETag: ETagOf(p), Policy: p}
	raw, _ := json.Marshal(entry)

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, raw, 300*time.Second).SetVal("OK")

	res, err := cache.LoadByID(context.Background(), p.ID.String(), "")
	assert.NoError(t, err)
	assert.True(t, res.Modified)
	assert.Equal(t, ETagOf(p), res.ETag)
	assert.Equal(t, p.Name, res.Policy.Name)
	assert.Equal(t, 1, repo.calls)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_HitWithMatchingETagNotModified(t *testing.T) {
	db, mock := redismock.NewClientMock()
	p := samplePolicy()
	cache := NewCache(db, &fakePolicyRepo{}, 300*time.Second, nil)

	key := idKeyPrefix + p.ID.String()
	etag := ETagOf(p)
	raw, _ := json.Marshal(cacheEntry{ETag: etag, Policy: p})
	mock.ExpectGet(key).SetVal(string(raw))

	res, err := cache.LoadByID(context.Background(), p.ID.String(), etag)
	assert.NoError(t, err)
	assert.False(t, res.Modified)
	assert.Equal(t, etag, res.ETag)
	assert.Nil(t, res.Policy)
}

func TestCache_HitWithStaleETagReturnsDocument(t *testing.T) {
	db, mock := redismock.NewClientMock()
	p := samplePolicy()
	cache := NewCache(db, &fakePolicyRepo{}, 300*time.Second, nil)

	key := idKeyPrefix + p.ID.String()
	raw, _ := json.Marshal(cacheEntry{ETag: ETagOf(p), Policy: p})
	mock.ExpectGet(key).SetVal(string(raw))

	res, err := cache.LoadByID(context.Background(), p.ID.String(), "stale-etag")
	assert.NoError(t, err)
	assert.True(t, res.Modified)
	assert.NotNil(t, res.Policy)
}

func TestCache_ETagChangesWithDocument(t *testing.T) {
	p := samplePolicy()
	before := ETagOf(p)

	p.Version = 3
	p.MinFactors = 2
	assert.NotEqual(t, before, ETagOf(p))
}

func TestCache_NoApplicablePolicy(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(db, &fakePolicyRepo{}, 300*time.Second, nil)

	officeID := uuid.NewString()
	mock.ExpectGet(officeKeyPrefix + officeID).RedisNil()

	_, err := cache.LoadApplicableForOffice(context.Background(), officeID, "")
	assert.ErrorIs(t, err, ErrPolicyNotFound)
}

func TestCache_RetriesOnceOnTransientError(t *testing.T) {
	db, mock := redismock.NewClientMock()
	p := samplePolicy()
	repo := &fakePolicyRepo{
		applicable: p,
		errQueue:   []error{errors.New("connection reset")},
	}
	cache := NewCache(db, repo, 300*time.Second, nil)

	officeID := uuid.NewString()
	key := officeKeyPrefix + officeID
	raw, _ := json.Marshal(cacheEntry{ETag: ETagOf(p), Policy: p})

	mock.ExpectGet(key).RedisNil()
	mock.ExpectSet(key, raw, 300*time.Second).SetVal("OK")
	mock.ExpectSAdd(trackKey(p.ID.String()), key).SetVal(1)
	mock.ExpectExpire(trackKey(p.ID.String()), 300*time.Second).SetVal(true)

	res, err := cache.LoadApplicableForOffice(context.Background(), officeID, "")
	assert.NoError(t, err)
	assert.True(t, res.Modified)
	assert.Equal(t, 2, repo.calls)
}

func TestCache_InvalidatePurgesAndNotifiesHooks(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(db, &fakePolicyRepo{}, 300*time.Second, nil)

	policyID := uuid.NewString()
	officeID := uuid.NewString()

	var notified []string
	cache.RegisterInvalidationHook(func(ctx context.Context, pid string, oid *string) error {
		notified = append(notified, "first:"+pid)
		return errors.New("hook exploded")
	})
	cache.RegisterInvalidationHook(func(ctx context.Context, pid string, oid *string) error {
		notified = append(notified, "second:"+pid)
		return nil
	})

	mock.ExpectSMembers(trackKey(policyID)).SetVal([]string{officeKeyPrefix + officeID})
	mock.ExpectDel(idKeyPrefix+policyID, officeKeyPrefix+officeID, trackKey(policyID)).SetVal(3)

	cache.Invalidate(context.Background(), policyID, &officeID)

	// A failing hook must not stop the remaining hooks.
	assert.Equal(t, []string{"first:" + policyID, "second:" + policyID}, notified)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_InvalidateGlobalPolicyPurgesTrackedOfficeKeys(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(db, &fakePolicyRepo{}, 300*time.Second, nil)

	policyID := uuid.NewString()
	officeA := officeKeyPrefix + uuid.NewString()
	officeB := officeKeyPrefix + uuid.NewString()

	// A global policy carries no office id but may populate the applicable
	// entry of every office it served; those tracked keys must still purge.
	mock.ExpectSMembers(trackKey(policyID)).SetVal([]string{officeA, officeB})
	mock.ExpectDel(idKeyPrefix+policyID, officeA, officeB, trackKey(policyID)).SetVal(4)

	cache.Invalidate(context.Background(), policyID, nil)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCache_InvalidateReachesRescopedOfficeKey(t *testing.T) {
	db, mock := redismock.NewClientMock()
	cache := NewCache(db, &fakePolicyRepo{}, 300*time.Second, nil)

	policyID := uuid.NewString()
	newOffice := uuid.NewString()
	staleKey := officeKeyPrefix + uuid.NewString()

	// The policy moved offices: the old office's entry is known only via
	// tracking and must be purged alongside the current office key.
	mock.ExpectSMembers(trackKey(policyID)).SetVal([]string{staleKey})
	mock.ExpectDel(idKeyPrefix+policyID, officeKeyPrefix+newOffice, staleKey, trackKey(policyID)).SetVal(3)

	cache.Invalidate(context.Background(), policyID, &newOffice)
	assert.NoError(t, mock.ExpectationsWereMet())
}
