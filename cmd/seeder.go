package cmd

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"github.com/frahmantamala/table-reservation/internal"
	"github.com/frahmantamala/table-reservation/internal/auth"
	restaurantDatamodel "github.com/frahmantamala/table-reservation/internal/core/datamodel/restaurant"
	"github.com/frahmantamala/table-reservation/internal/user"
	userPostgres "github.com/frahmantamala/table-reservation/internal/user/postgres"
	"github.com/frahmantamala/table-reservation/pkg/db"
	"github.com/frahmantamala/table-reservation/pkg/logger"
)

const seedPassword = "password123"

var seedUsers = []user.NewAccount{
	{Email: "customer@mail.com", Name: "Dina Customer", Password: seedPassword, Role: "customer"},
	{Email: "staff@mail.com", Name: "Rudi Staff", Password: seedPassword, Role: "staff"},
	{Email: "manager@mail.com", Name: "Sari Manager", Password: seedPassword, Role: "manager"},
	{Email: "admin@mail.com", Name: "Padil Admin", Password: seedPassword, Role: "admin"},
}

type seedRestaurant struct {
	restaurant restaurantDatamodel.Restaurant
	// normal and vip table capacities, numbered in order
	normal []int
	vip    []int
}

var seedRestaurants = []seedRestaurant{
	{
		restaurant: restaurantDatamodel.Restaurant{
			Name:               "Warung Senja",
			Address:            "Jl. Kemang Raya 12, Jakarta",
			Phone:              "+62-21-555-0101",
			NormalPricePerSeat: decimal.NewFromInt(50000),
			VIPPricePerSeat:    decimal.NewFromInt(120000),
			OpeningTime:        "10:00",
			ClosingTime:        "22:00",
		},
		normal: []int{2, 2, 4, 4, 6},
		vip:    []int{4, 8},
	},
	{
		restaurant: restaurantDatamodel.Restaurant{
			Name:               "Dapur Laut",
			Address:            "Jl. Pantai Indah 3, Bali",
			Phone:              "+62-361-555-0202",
			NormalPricePerSeat: decimal.NewFromInt(75000),
			VIPPricePerSeat:    decimal.NewFromInt(150000),
			OpeningTime:        "11:00",
			ClosingTime:        "23:00",
		},
		normal: []int{2, 4, 4, 6},
		vip:    []int{6},
	},
}

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed users for every role plus two restaurants with tables, for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		ctx := cmd.Context()
		if ctx == nil {
			ctx = context.Background()
		}
		if err := runSeed(ctx); err != nil {
			log.Fatalf("seed failed: %v", err)
		}
	},
}

func runSeed(ctx context.Context) error {
	cfg, err := loadConfig(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	lg := logger.Init(cfg.Env, cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	client, err := db.New(ctx, db.Options{DSN: cfg.Database.Source, MaxOpenConns: 2, MaxIdleConns: 1}, lg)
	if err != nil {
		return fmt.Errorf("failed to init db: %w", err)
	}
	defer client.Close()
	conn := client.DB().WithContext(ctx)

	if clearData {
		if err := clearSeedData(conn); err != nil {
			return err
		}
		fmt.Println("Cleared existing data")
	}

	users := user.NewService(
		userPostgres.NewUserRepository(client.DB()),
		auth.NewService(nil, nil, cfg.Security, lg),
		lg,
	)
	for _, acc := range seedUsers {
		p, err := users.Register(ctx, acc)
		if err != nil {
			var appErr *internal.AppError
			if errors.As(err, &appErr) && appErr.Code == internal.ErrCodeEmailTaken {
				fmt.Println("user already exists:", acc.Email)
				continue
			}
			return fmt.Errorf("failed to seed user %s: %w", acc.Email, err)
		}
		fmt.Printf("Seeded %s user: %s\n", p.Role, p.Email)
	}

	for _, s := range seedRestaurants {
		if err := seedRestaurantTables(conn, s); err != nil {
			return err
		}
	}
	fmt.Println("Restaurants and tables seeded successfully")
	return nil
}

func seedRestaurantTables(conn *gorm.DB, s seedRestaurant) error {
	return conn.Transaction(func(tx *gorm.DB) error {
		r := s.restaurant
		if err := tx.Where(restaurantDatamodel.Restaurant{Name: r.Name}).FirstOrCreate(&r).Error; err != nil {
			return fmt.Errorf("failed to seed restaurant %s: %w", r.Name, err)
		}

		number := 0
		add := func(tableType string, capacity int) error {
			number++
			t := restaurantDatamodel.Table{RestaurantID: r.ID, Number: number}
			return tx.Where(t).
				Attrs(restaurantDatamodel.Table{TableType: tableType, Capacity: capacity}).
				FirstOrCreate(&t).Error
		}
		for _, c := range s.normal {
			if err := add(restaurantDatamodel.TableTypeNormal, c); err != nil {
				return fmt.Errorf("failed to seed table for %s: %w", r.Name, err)
			}
		}
		for _, c := range s.vip {
			if err := add(restaurantDatamodel.TableTypeVIP, c); err != nil {
				return fmt.Errorf("failed to seed table for %s: %w", r.Name, err)
			}
		}
		fmt.Printf("Seeded restaurant %s with %d tables\n", r.Name, number)
		return nil
	})
}

func clearSeedData(conn *gorm.DB) error {
	for _, table := range []string{"waitlist_entries", "payments", "reservations", "restaurant_tables", "restaurants", "users"} {
		if err := conn.Exec("DELETE FROM " + table).Error; err != nil {
			return fmt.Errorf("failed to clear %s: %w", table, err)
		}
	}
	return nil
}
