package factor

import (
	"context"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Reference data the lookup evaluators match against. Rows are managed by an
// external admin surface; this package only reads them.

type OfficeGeofence struct {
	ID           uuid.UUID `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	OfficeID     uuid.UUID `gorm:"column:office_id;type:uuid;not null;uniqueIndex"`
	Latitude     float64   `gorm:"column:latitude;not null"`
	Longitude    float64   `gorm:"column:longitude;not null"`
	RadiusMeters float64   `gorm:"column:radius_meters;not null"`
	CreatedAt    time.Time `gorm:"column:created_at"`
	UpdatedAt    time.Time `gorm:"column:updated_at"`
}

func (OfficeGeofence) TableName() string {
	return "office_geofences"
}

type OfficeNetwork struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	OfficeID  uuid.UUID `gorm:"column:office_id;type:uuid;not null;index"`
	SSID      string    `gorm:"column:ssid;type:varchar(64);not null"`
	BSSID     *string   `gorm:"column:bssid;type:varchar(17)"`
	IsActive  bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (OfficeNetwork) TableName() string {
	return "office_networks"
}

type OfficeBeacon struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	OfficeID   uuid.UUID `gorm:"column:office_id;type:uuid;not null;index"`
	BeaconUUID string    `gorm:"column:beacon_uuid;type:varchar(36);not null"`
	Major      int       `gorm:"column:major;not null"`
	Minor      int       `gorm:"column:minor;not null"`
	MinRSSI    int       `gorm:"column:min_rssi;not null;default:-90"`
	IsActive   bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt  time.Time `gorm:"column:created_at"`
}

func (OfficeBeacon) TableName() string {
	return "office_beacons"
}

type NFCTag struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey;default:gen_random_uuid()"`
	OfficeID  uuid.UUID `gorm:"column:office_id;type:uuid;not null;index"`
	TagID     string    `gorm:"column:tag_id;type:varchar(64);not null;uniqueIndex"`
	IsActive  bool      `gorm:"column:is_active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at"`
}

func (NFCTag) TableName() string {
	return "nfc_tags"
}

//go:generate mockgen -source=factor_store.go -destination=mock/factor_store_mock.go -package=mock
type Store interface {
	FindGeofence(ctx context.Context, officeID string) (*OfficeGeofence, error)
	FindNetwork(ctx context.Context, officeID, ssid string) (*OfficeNetwork, error)
	FindBeacon(ctx context.Context, officeID, beaconUUID string, major, minor int) (*OfficeBeacon, error)
	FindNFCTag(ctx context.Context, officeID, tagID string) (*NFCTag, error)
}

type store struct {
	db *gorm.DB
}

func NewStore(db *gorm.DB) Store {
	return &store{db: db}
}

func (s *store) FindGeofence(ctx context.Context, officeID string) (*OfficeGeofence, error) {
	var g OfficeGeofence
	err := s.db.WithContext(ctx).
		Where("office_id = ?", officeID).
		First(&g).Error
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *store) FindNetwork(ctx context.Context, officeID, ssid string) (*OfficeNetwork, error) {
	var n OfficeNetwork
	err := s.db.WithContext(ctx).
		Where("office_id = ?", officeID).
		Where("ssid = ?", ssid).
		Where("is_active = ?", true).
		First(&n).Error
	if err != nil {
		return nil, err
	}
	return &n, nil
}

func (s *store) FindBeacon(ctx context.Context, officeID, beaconUUID string, major, minor int) (*OfficeBeacon, error) {
	var b OfficeBeacon
	err := s.db.WithContext(ctx).
		Where("office_id = ?", officeID).
		Where("beacon_uuid = ?", beaconUUID).
		Where("major = ? AND minor = ?", major, minor).
		Where("is_active = ?", true).
		First(&b).Error
	if err != nil {
		return nil, err
	}
	return &b, nil
}

func (s *store) FindNFCTag(ctx context.Context, officeID, tagID string) (*NFCTag, error) {
	var t NFCTag
	err := s.db.WithContext(ctx).
		Where("office_id = ?", officeID).
		Where("tag_id = ?", tagID).
		Where("is_active = ?", true).
		First(&t).Error
	if err != nil {
		return nil, err
	}
	return &t, nil
}
