package policy

import (
	"context"

	"gorm.io/gorm"
)

//go:generate mockgen -destination=mock/version_counter_mock.go -package=mock . VersionCounter
type VersionCounter interface {
	NextVersion(ctx context.Context, policyID string) (int64, error)
}

type versionCounter struct {
	db *gorm.DB
}

func NewVersionCounter(db *gorm.DB) VersionCounter {
	return &versionCounter{db: db}
}

// NextVersion allocates the next monotonic version for a policy. Raw SQL
// UPSERT keeps the increment atomic under concurrent admin mutations.
func (c *versionCounter) NextVersion(ctx context.Context, policyID string) (int64, error) {
	var next int64

	err := c.db.WithContext(ctx).Raw(`
		INSERT INTO policy_versions (policy_id, last_value, updated_at)
		VALUES (?, 1, now())
		ON CONFLICT (policy_id) DO UPDATE
		SET last_value = policy_versions.last_value + 1, updated_at = now()
		RETURNING last_value
	`, policyID).Scan(&next).Error

	if err != nil {
		return 0, err
	}

	return next, nil
}
