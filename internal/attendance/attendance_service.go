package attendance

import (
	"context"
	"errors"
	"net/http"
	"presencegate/internal/shared/apperror"
	"time"
)

const defaultHistoryLimit = 31

//go:generate mockgen -source=attendance_service.go -destination=mock/attendance_service_mock.go -package=mock

// Service is the read side of presence records. Writes go through the
// admission pipeline.
type Service interface {
	GetToday(ctx context.Context, userID string) (RecordResponse, error)
	GetHistory(ctx context.Context, userID string, limit int) ([]RecordResponse, error)
}

type service struct {
	repo  Repository
	nowFn func() time.Time
}

func NewService(repo Repository) Service {
	return &service{repo: repo, nowFn: time.Now}
}

func (s *service) GetToday(ctx context.Context, userID string) (RecordResponse, error) {
	today := s.nowFn().UTC().Truncate(24 * time.Hour)

	rec, err := s.repo.FindByUserAndDate(ctx, userID, today)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return RecordResponse{}, apperror.New(apperror.CodeNotFound, "no presence record for today", http.StatusNotFound)
		}
		return RecordResponse{}, err
	}
	return MapToResponse(*rec), nil
}

func (s *service) GetHistory(ctx context.Context, userID string, limit int) ([]RecordResponse, error) {
	if limit <= 0 || limit > 100 {
		limit = defaultHistoryLimit
	}

	records, err := s.repo.ListByUser(ctx, userID, limit)
	if err != nil {
		return nil, err
	}

	res := make([]RecordResponse, len(records))
	for i, rec := range records {
		res[i] = MapToResponse(rec)
	}
	return res, nil
}
