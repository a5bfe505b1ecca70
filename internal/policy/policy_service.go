package policy

import (
	"context"
	"errors"
	"net/http"
	"time"

	"presencegate/internal/factor"
	"presencegate/internal/shared/apperror"
	"presencegate/internal/shared/contextutil"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

//go:generate mockgen -source=policy_service.go -destination=mock/policy_service_mock.go -package=mock
type Service interface {
	Create(ctx context.Context, req CreatePolicyRequest) (PolicyResponse, error)
	Update(ctx context.Context, id string, req UpdatePolicyRequest) (PolicyResponse, error)
	Deactivate(ctx context.Context, id string) error
	GetByID(ctx context.Context, id, ifNoneMatch string) (PolicyResponse, bool, error)
	GetAll(ctx context.Context) ([]PolicyResponse, error)
}

type service struct {
	repo    Repository
	counter VersionCounter
	cache   *Cache
}

func NewService(repo Repository, counter VersionCounter, cache *Cache) Service {
	return &service{repo: repo, counter: counter, cache: cache}
}

func (s *service) Create(ctx context.Context, req CreatePolicyRequest) (PolicyResponse, error) {
	p, err := buildPolicy(req)
	if err != nil {
		return PolicyResponse{}, err
	}
	p.ID = uuid.New()

	version, err := s.counter.NextVersion(ctx, p.ID.String())
	if err != nil {
		return PolicyResponse{}, err
	}
	p.Version = version

	if err := s.repo.Create(ctx, p); err != nil {
		return PolicyResponse{}, err
	}

	s.invalidate(ctx, p)
	return mapToResponse(p, ETagOf(p)), nil
}

func (s *service) Update(ctx context.Context, id string, req UpdatePolicyRequest) (PolicyResponse, error) {
	existing, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return PolicyResponse{}, apperror.ErrNotFound
		}
		return PolicyResponse{}, err
	}

	p, err := buildPolicy(req)
	if err != nil {
		return PolicyResponse{}, err
	}
	p.ID = existing.ID
	p.IsActive = existing.IsActive
	p.CreatedAt = existing.CreatedAt

	version, err := s.counter.NextVersion(ctx, id)
	if err != nil {
		return PolicyResponse{}, err
	}
	p.Version = version

	if err := s.repo.Update(ctx, p); err != nil {
		return PolicyResponse{}, err
	}

	s.invalidate(ctx, p)
	return mapToResponse(p, ETagOf(p)), nil
}

// Deactivate retires a policy. Rows are never deleted; evaluation only ever
// considers active policies.
func (s *service) Deactivate(ctx context.Context, id string) error {
	p, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return apperror.ErrNotFound
		}
		return err
	}

	version, err := s.counter.NextVersion(ctx, id)
	if err != nil {
		return err
	}
	p.Version = version
	p.IsActive = false

	if err := s.repo.Update(ctx, p); err != nil {
		return err
	}

	s.invalidate(ctx, p)
	return nil
}

func (s *service) GetByID(ctx context.Context, id, ifNoneMatch string) (PolicyResponse, bool, error) {
	res, err := s.cache.LoadByID(ctx, id, ifNoneMatch)
	if err != nil {
		if errors.Is(err, ErrPolicyNotFound) {
			return PolicyResponse{}, false, apperror.ErrNotFound
		}
		return PolicyResponse{}, false, err
	}
	if !res.Modified {
		return PolicyResponse{ETag: res.ETag}, false, nil
	}
	return mapToResponse(res.Policy, res.ETag), true, nil
}

func (s *service) GetAll(ctx context.Context) ([]PolicyResponse, error) {
	rows, err := s.repo.FindAll(ctx)
	if err != nil {
		return nil, err
	}
	resp := make([]PolicyResponse, len(rows))
	for i := range rows {
		resp[i] = mapToResponse(&rows[i], "")
	}
	return resp, nil
}

func (s *service) invalidate(ctx context.Context, p *Policy) {
	l := contextutil.GetLogger(ctx, nil)

	var officeID *string
	if p.OfficeID != nil {
		v := p.OfficeID.String()
		officeID = &v
	}
	s.cache.Invalidate(ctx, p.ID.String(), officeID)

	l.Info("policy invalidated",
		zap.String("policy_id", p.ID.String()),
		zap.Int64("version", p.Version),
	)
}

func buildPolicy(req CreatePolicyRequest) (*Policy, error) {
	if _, err := minutesOfDay(req.WorkStart); err != nil {
		return nil, apperror.New(apperror.CodeInvalidInput, "work_start must be HH:MM", http.StatusBadRequest)
	}
	if _, err := minutesOfDay(req.WorkEnd); err != nil {
		return nil, apperror.New(apperror.CodeInvalidInput, "work_end must be HH:MM", http.StatusBadRequest)
	}

	factors := make([]FactorRequirement, len(req.Factors))
	for i, fr := range req.Factors {
		mode := factor.Mode(fr.Mode)
		if !mode.Valid() {
			return nil, apperror.New(apperror.CodeInvalidInput, "unknown factor mode: "+fr.Mode, http.StatusBadRequest)
		}
		factors[i] = FactorRequirement{Mode: mode, Required: fr.Required, Weight: fr.Weight}
	}

	days := make([]time.Weekday, len(req.WorkingDays))
	for i, d := range req.WorkingDays {
		days[i] = time.Weekday(d)
	}

	p := &Policy{
		Name:                       req.Name,
		IsActive:                   true,
		Priority:                   req.Priority,
		MinFactors:                 req.MinFactors,
		Factors:                    factors,
		MaxDistanceMeters:          req.MaxDistanceMeters,
		StrictBoundary:             req.StrictBoundary,
		LivenessEnabled:            req.LivenessEnabled,
		LivenessMinConfidence:      req.LivenessMinConfidence,
		WorkStart:                  req.WorkStart,
		WorkEnd:                    req.WorkEnd,
		WorkingDays:                days,
		LateThresholdMinutes:       req.LateThresholdMinutes,
		EarlyLeaveThresholdMinutes: req.EarlyLeaveThresholdMinutes,
		AllowFallback:              true,
	}
	if req.AllowFallback != nil {
		p.AllowFallback = *req.AllowFallback
	}
	if req.OfficeID != nil {
		officeUUID, err := uuid.Parse(*req.OfficeID)
		if err != nil {
			return nil, apperror.New(apperror.CodeInvalidInput, "invalid office id", http.StatusBadRequest)
		}
		p.OfficeID = &officeUUID
	}
	return p, nil
}
