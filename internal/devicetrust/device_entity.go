package devicetrust

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Device struct {
	ID          uuid.UUID      `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	UserID      uuid.UUID      `gorm:"column:user_id;type:uuid;not null;index:idx_devices_user_device,unique"`
	DeviceID    string         `gorm:"column:device_id;type:varchar(100);not null;index:idx_devices_user_device,unique"`
	Fingerprint *string        `gorm:"column:fingerprint;type:varchar(128)"`
	IsTrusted   bool           `gorm:"column:is_trusted;not null;default:false"`
	LastUsedAt  *time.Time     `gorm:"column:last_used_at;type:timestamptz"`
	CreatedAt   time.Time      `gorm:"column:created_at"`
	UpdatedAt   time.Time      `gorm:"column:updated_at"`
	DeletedAt   gorm.DeletedAt `gorm:"column:deleted_at;index"`
}

func (Device) TableName() string {
	return "devices"
}
