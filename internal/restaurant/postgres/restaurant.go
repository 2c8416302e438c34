package postgres

import (
	"context"
	"errors"

	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/restaurant"
)

type RestaurantRepository struct {
	db *gorm.DB
}

func NewRestaurantRepository(db *gorm.DB) restaurant.RepositoryAPI {
	return &RestaurantRepository{db: db}
}

func (r *RestaurantRepository) List(ctx context.Context) ([]*restaurant.Restaurant, error) {
	var out []*restaurant.Restaurant
	err := r.db.WithContext(ctx).Order("name ASC, id ASC").Find(&out).Error
	return out, err
}

func (r *RestaurantRepository) GetByID(ctx context.Context, id int64) (*restaurant.Restaurant, error) {
	var rest restaurant.Restaurant
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&rest).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, internal.ErrRestaurantNotFound
		}
		return nil, err
	}
	return &rest, nil
}

func (r *RestaurantRepository) ListTables(ctx context.Context, restaurantID int64) ([]*restaurant.Table, error) {
	var out []*restaurant.Table
	err := r.db.WithContext(ctx).
		Where("restaurant_id = ?", restaurantID).
		Order("number ASC").
		Find(&out).Error
	return out, err
}

func (r *RestaurantRepository) CountTables(ctx context.Context) (map[int64]int, error) {
	var rows []struct {
		RestaurantID int64
		Tables       int
	}
	err := r.db.WithContext(ctx).
		Model(&restaurant.Table{}).
		Select("restaurant_id, COUNT(*) AS tables").
		Group("restaurant_id").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[int64]int, len(rows))
	for _, row := range rows {
		counts[row.RestaurantID] = row.Tables
	}
	return counts, nil
}
