package policy

import (
	"context"

	"gorm.io/gorm"
)

//go:generate mockgen -source=policy_repo.go -destination=mock/policy_repo_mock.go -package=mock
type Repository interface {
	FindByID(ctx context.Context, id string) (*Policy, error)
	FindApplicableForOffice(ctx context.Context, officeID string) (*Policy, error)
	FindAll(ctx context.Context) ([]Policy, error)
	Create(ctx context.Context, p *Policy) error
	Update(ctx context.Context, p *Policy) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) FindByID(ctx context.Context, id string) (*Policy, error) {
	var p Policy
	err := r.db.WithContext(ctx).
		Where("id = ?", id).
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

// FindApplicableForOffice picks, among active policies scoped to the office
// or global, the one sorting first by office-specific, then priority, then
// recency.
func (r *repository) FindApplicableForOffice(ctx context.Context, officeID string) (*Policy, error) {
	var p Policy
	err := r.db.WithContext(ctx).
		Where("is_active = ?", true).
		Where("office_id = ? OR office_id IS NULL", officeID).
		Order("(office_id IS NULL) ASC").
		Order("priority DESC").
		Order("created_at DESC").
		First(&p).Error
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *repository) FindAll(ctx context.Context) ([]Policy, error) {
	var rows []Policy
	err := r.db.WithContext(ctx).
		Order("created_at DESC").
		Find(&rows).Error
	return rows, err
}

func (r *repository) Create(ctx context.Context, p *Policy) error {
	return r.db.WithContext(ctx).Create(p).Error
}

func (r *repository) Update(ctx context.Context, p *Policy) error {
	return r.db.WithContext(ctx).Save(p).Error
}
