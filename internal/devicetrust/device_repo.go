package devicetrust

import (
	"context"
	"time"

	"gorm.io/gorm"
)

//go:generate mockgen -source=device_repo.go -destination=mock/device_repo_mock.go -package=mock
type Repository interface {
	FindByUserAndDevice(ctx context.Context, userID, deviceID string) (*Device, error)
	TouchLastUsed(ctx context.Context, userID, deviceID string, at time.Time) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByUserAndDevice(ctx context.Context, userID, deviceID string) (*Device, error) {
	var d Device
	err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Where("device_id = ?", deviceID).
		First(&d).Error
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *repository) TouchLastUsed(ctx context.Context, userID, deviceID string, at time.Time) error {
	return r.db.WithContext(ctx).
		Model(&Device{}).
		Where("user_id = ?", userID).
		Where("device_id = ?", deviceID).
		Update("last_used_at", at).Error
}
