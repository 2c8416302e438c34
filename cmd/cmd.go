package cmd

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/frahmantamala/table-reservation/internal"
)

var (
	clearData  bool
	configPath string
)

var rootCmd = &cobra.Command{
	Use:   "table-reservation",
	Short: "Table Reservation",
	Long:  `Restaurant table reservations with payment deadlines and a FIFO waitlist.`,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

// loadConfig reads config.yml from path in development. In production, or
// when DOCKER_ENV is set, the environment is the only source. A .env file is
// loaded first when present.
func loadConfig(path string) (*internal.Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("error reading .env: %w", err)
	}

	var cfg internal.Config
	if os.Getenv("APP_ENV") == "production" || os.Getenv("DOCKER_ENV") == "true" {
		if err := cleanenv.ReadEnv(&cfg); err != nil {
			return nil, fmt.Errorf("error reading config from environment: %w", err)
		}
	} else {
		v := viper.New()
		v.AddConfigPath(path)
		v.SetConfigName("config")
		v.SetConfigType("yml")
		v.SetEnvPrefix("ENV")
		v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
		v.AutomaticEnv()

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("error reading config: %w", err)
		}
		if err := v.Unmarshal(&cfg); err != nil {
			return nil, fmt.Errorf("error unmarshaling config: %w", err)
		}
	}

	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("error validating config: %w", err)
	}
	return &cfg, nil
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", ".", "directory holding config.yml")
	seedCmd.Flags().BoolVar(&clearData, "clear", false, "Clear existing data before seeding")

	rootCmd.AddCommand(httpServerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(seedCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(sweepCmd)
}
