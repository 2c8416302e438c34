package restaurant

import (
	"context"
	"log/slog"

	"github.com/frahmantamala/table-reservation/internal"
)

type RepositoryAPI interface {
	List(ctx context.Context) ([]*Restaurant, error)
	GetByID(ctx context.Context, id int64) (*Restaurant, error)
	ListTables(ctx context.Context, restaurantID int64) ([]*Table, error)
	CountTables(ctx context.Context) (map[int64]int, error)
}

type Service struct {
	repo   RepositoryAPI
	logger *slog.Logger
}

func NewService(repo RepositoryAPI, logger *slog.Logger) *Service {
	return &Service{
		repo:   repo,
		logger: logger,
	}
}

func (s *Service) GetAllRestaurants(ctx context.Context) ([]RestaurantResponse, error) {
	rows, err := s.repo.List(ctx)
	if err != nil {
		s.logger.Error("failed to get restaurants from repository", "error", err)
		return nil, internal.NewInternalError("failed to list restaurants", err)
	}
	counts, err := s.repo.CountTables(ctx)
	if err != nil {
		s.logger.Error("failed to count tables", "error", err)
		return nil, internal.NewInternalError("failed to list restaurants", err)
	}

	responses := make([]RestaurantResponse, 0, len(rows))
	for _, r := range rows {
		responses = append(responses, ToResponse(r, counts[r.ID]))
	}

	s.logger.Debug("retrieved restaurants", "count", len(responses))
	return responses, nil
}

func (s *Service) GetRestaurant(ctx context.Context, id int64) (*RestaurantResponse, error) {
	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tables, err := s.repo.ListTables(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to list tables", err)
	}
	resp := ToResponse(r, len(tables))
	return &resp, nil
}

// GetTables lists a restaurant's tables, optionally narrowed to one table
// type and to tables seating at least party guests.
func (s *Service) GetTables(ctx context.Context, id int64, tableType string, party int) (*TablesResponse, error) {
	switch tableType {
	case "", TableTypeNormal, TableTypeVIP:
	default:
		return nil, internal.NewValidationFieldError("table_type", "table_type must be NORMAL or VIP", internal.ErrCodeValidationFailed)
	}
	if party < 0 {
		return nil, internal.ErrInvalidGuests
	}

	r, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	tables, err := s.repo.ListTables(ctx, id)
	if err != nil {
		return nil, internal.NewInternalError("failed to list tables", err)
	}

	out := &TablesResponse{RestaurantID: id, Tables: []TableResponse{}}
	for _, t := range tables {
		if fits(t, tableType, party) {
			out.Tables = append(out.Tables, ToTableResponse(r, t))
		}
	}
	return out, nil
}
