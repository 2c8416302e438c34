package internal

import (
	"errors"
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
)

// Config is read by viper from config.yml (mapstructure tags) in development and
// by cleanenv from the environment (env tags) in production.
type Config struct {
	Env            string               `mapstructure:"env" env:"APP_ENV" env-default:"development"`
	Server         ServerConfig         `mapstructure:"http_server" env-prefix:"HTTP_"`
	Database       DatabaseConfig       `mapstructure:"database" env-prefix:"DB_"`
	Security       SecurityConfig       `mapstructure:"security" env-prefix:"SECURITY_"`
	Redis          RedisConfig          `mapstructure:"redis" env-prefix:"REDIS_"`
	Messaging      MessagingConfig      `mapstructure:"messaging" env-prefix:"MESSAGING_"`
	Scheduler      SchedulerConfig      `mapstructure:"scheduler" env-prefix:"SCHEDULER_"`
	Reservation    ReservationConfig    `mapstructure:"reservation" env-prefix:"RESERVATION_"`
	Waitlist       WaitlistConfig       `mapstructure:"waitlist" env-prefix:"WAITLIST_"`
	PaymentGateway PaymentGatewayConfig `mapstructure:"payment_gateway" env-prefix:"GATEWAY_"`
	RateLimit      RateLimitConfig      `mapstructure:"rate_limit" env-prefix:"RATE_LIMIT_"`
	Observability  ObservabilityConfig  `mapstructure:"observability" env-prefix:"OBS_"`
}

type ServerConfig struct {
	Port              int           `mapstructure:"port" env:"PORT" env-default:"8080" validate:"min=1,max=65535"`
	BaseURL           string        `mapstructure:"base_url" env:"BASE_URL"`
	AllowedOrigins    string        `mapstructure:"allowed_origins" env:"ALLOWED_ORIGINS"`
	ReadHeaderTimeout time.Duration `mapstructure:"read_header_timeout" env:"READ_HEADER_TIMEOUT" env-default:"5s"`
	ReadTimeout       time.Duration `mapstructure:"read_timeout" env:"READ_TIMEOUT" env-default:"15s"`
	IdleTimeout       time.Duration `mapstructure:"idle_timeout" env:"IDLE_TIMEOUT" env-default:"60s"`
	WriteTimeout      time.Duration `mapstructure:"write_timeout" env:"WRITE_TIMEOUT" env-default:"15s"`
}

type DatabaseConfig struct {
	Source          string        `mapstructure:"source" env:"SOURCE" validate:"required"`
	MaxOpenConns    int           `mapstructure:"max_open_conns" env:"MAX_OPEN_CONNS" env-default:"25" validate:"min=1"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns" env:"MAX_IDLE_CONNS" env-default:"5" validate:"min=1"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime" env:"CONN_MAX_LIFETIME" env-default:"30m"`
	ConnMaxIdleTime time.Duration `mapstructure:"conn_max_idle_time" env:"CONN_MAX_IDLE_TIME" env-default:"5m"`
}

type SecurityConfig struct {
	JWTSecret           string        `mapstructure:"jwt_secret" env:"JWT_SECRET" validate:"required,min=32"`
	AccessTokenDuration time.Duration `mapstructure:"access_token_duration" env:"ACCESS_TOKEN_DURATION" env-default:"1h"`
	BCryptCost          int           `mapstructure:"bcrypt_cost" env:"BCRYPT_COST" env-default:"10" validate:"min=4,max=15"`
}

type RedisConfig struct {
	Enabled  bool   `mapstructure:"enabled" env:"ENABLED"`
	URL      string `mapstructure:"url" env:"URL"`
	Address  string `mapstructure:"address" env:"ADDRESS" env-default:"localhost:6379"`
	Password string `mapstructure:"password" env:"PASSWORD"`
	DB       int    `mapstructure:"db" env:"DB"`
}

type MessagingConfig struct {
	Driver       string   `mapstructure:"driver" env:"DRIVER" env-default:"none" validate:"oneof=none amqp kafka"`
	AMQPURL      string   `mapstructure:"amqp_url" env:"AMQP_URL"`
	Queue        string   `mapstructure:"queue" env:"QUEUE" env-default:"reservation.events"`
	KafkaBrokers []string `mapstructure:"kafka_brokers" env:"KAFKA_BROKERS" env-separator:","`
	KafkaTopic   string   `mapstructure:"kafka_topic" env:"KAFKA_TOPIC" env-default:"reservation-events"`
}

// JobConfig schedules one sweep. Disabled keeps the job registered for
// RunOnce but stops its loop.
type JobConfig struct {
	Disabled bool          `mapstructure:"disabled" env:"DISABLED"`
	Interval time.Duration `mapstructure:"interval" env:"INTERVAL"`
	Timeout  time.Duration `mapstructure:"timeout" env:"TIMEOUT"`
}

type SchedulerJobs struct {
	ExpirePendingReservations JobConfig `mapstructure:"expire_pending_reservations" env-prefix:"EXPIRE_PENDING_"`
	ExpireWaitlistClaims      JobConfig `mapstructure:"expire_waitlist_claims" env-prefix:"EXPIRE_CLAIMS_"`
	CompleteReservations      JobConfig `mapstructure:"complete_reservations" env-prefix:"COMPLETE_"`
}

type SchedulerConfig struct {
	Enabled          bool          `mapstructure:"enabled" env:"ENABLED" env-default:"true"`
	BatchSize        int           `mapstructure:"batch_size" env:"BATCH_SIZE" env-default:"100" validate:"min=1,max=10000"`
	LockTTL          time.Duration `mapstructure:"lock_ttl" env:"LOCK_TTL" env-default:"2m"`
	RetryMaxAttempts uint64        `mapstructure:"retry_max_attempts" env:"RETRY_MAX_ATTEMPTS" env-default:"3"`
	RetryBaseDelay   time.Duration `mapstructure:"retry_base_delay" env:"RETRY_BASE_DELAY" env-default:"200ms"`
	Jobs             SchedulerJobs `mapstructure:"jobs" env-prefix:"JOB_"`
}

type ReservationConfig struct {
	PaymentGracePeriod time.Duration `mapstructure:"payment_grace_period" env:"PAYMENT_GRACE_PERIOD" env-default:"15m"`
	ClaimWindow        time.Duration `mapstructure:"claim_window" env:"CLAIM_WINDOW" env-default:"30m"`
	Timezone           string        `mapstructure:"timezone" env:"TIMEZONE" env-default:"UTC"`
}

type WaitlistConfig struct {
	AutoConvert bool `mapstructure:"auto_convert" env:"AUTO_CONVERT" env-default:"true"`
}

type PaymentGatewayConfig struct {
	Workers     int           `mapstructure:"workers" env:"WORKERS" env-default:"4" validate:"min=1"`
	QueueSize   int           `mapstructure:"queue_size" env:"QUEUE_SIZE" env-default:"100" validate:"min=1"`
	Latency     time.Duration `mapstructure:"latency" env:"LATENCY" env-default:"500ms"`
	FailureRate float64       `mapstructure:"failure_rate" env:"FAILURE_RATE" validate:"min=0,max=1"`
	CallbackURL string        `mapstructure:"callback_url" env:"CALLBACK_URL"`
	CallbackKey string        `mapstructure:"callback_key" env:"CALLBACK_KEY"`
}

type RateLimitConfig struct {
	Enabled  bool          `mapstructure:"enabled" env:"ENABLED"`
	Requests int64         `mapstructure:"requests" env:"REQUESTS" env-default:"60"`
	Window   time.Duration `mapstructure:"window" env:"WINDOW" env-default:"1m"`
}

type ObservabilityConfig struct {
	Metrics MetricsConfig `mapstructure:"metrics" env-prefix:"METRICS_"`
	Logging LoggingConfig `mapstructure:"logging" env-prefix:"LOG_"`
}

type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled" env:"ENABLED" env-default:"true"`
	Path    string `mapstructure:"path" env:"PATH" env-default:"/metrics" validate:"required_if=Enabled true"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level" env:"LEVEL" env-default:"info" validate:"omitempty,oneof=debug info warn error"`
	Format string `mapstructure:"format" env:"FORMAT" env-default:"text" validate:"omitempty,oneof=json text"`
}

// ----------------- HELPERS -----------------

func getEnv(key, defaultVal string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultVal
}

func getEnvAsInt(key string, defaultVal int) int {
	if value := os.Getenv(key); value != "" {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return defaultVal
}

// ApplyDefaults fills zero values left by a partial config.yml.
func (c *Config) ApplyDefaults() {
	if c.Env == "" {
		c.Env = getEnv("APP_ENV", "development")
	}
	if c.Server.Port == 0 {
		c.Server.Port = getEnvAsInt("PORT", 8080)
	}
	if c.Database.MaxOpenConns <= 0 {
		c.Database.MaxOpenConns = 25
	}
	if c.Database.MaxIdleConns <= 0 {
		c.Database.MaxIdleConns = 5
	}
	if c.Security.BCryptCost == 0 {
		c.Security.BCryptCost = 10
	}
	if c.Security.AccessTokenDuration <= 0 {
		c.Security.AccessTokenDuration = time.Hour
	}
	if c.RateLimit.Requests <= 0 {
		c.RateLimit.Requests = 60
	}
	if c.RateLimit.Window <= 0 {
		c.RateLimit.Window = time.Minute
	}
	if c.Observability.Metrics.Path == "" {
		c.Observability.Metrics.Path = "/metrics"
	}
	if c.Reservation.PaymentGracePeriod <= 0 {
		c.Reservation.PaymentGracePeriod = 15 * time.Minute
	}
	if c.Reservation.ClaimWindow <= 0 {
		c.Reservation.ClaimWindow = 30 * time.Minute
	}
	if c.Reservation.Timezone == "" {
		c.Reservation.Timezone = "UTC"
	}
	if c.Scheduler.BatchSize <= 0 {
		c.Scheduler.BatchSize = 100
	}
	if c.Scheduler.LockTTL <= 0 {
		c.Scheduler.LockTTL = 2 * time.Minute
	}
	if c.Scheduler.RetryBaseDelay <= 0 {
		c.Scheduler.RetryBaseDelay = 200 * time.Millisecond
	}
	c.Scheduler.ApplyJobDefaults()
	if c.Messaging.Driver == "" {
		c.Messaging.Driver = "none"
	}
	if c.PaymentGateway.Workers <= 0 {
		c.PaymentGateway.Workers = 4
	}
	if c.PaymentGateway.QueueSize <= 0 {
		c.PaymentGateway.QueueSize = 100
	}
}

// ApplyJobDefaults fills unset job intervals and timeouts. A disabled job keeps
// its flag.
func (c *SchedulerConfig) ApplyJobDefaults() {
	defaultJob(&c.Jobs.ExpirePendingReservations, time.Minute, 30*time.Second)
	defaultJob(&c.Jobs.ExpireWaitlistClaims, time.Minute, 30*time.Second)
	defaultJob(&c.Jobs.CompleteReservations, 15*time.Minute, 2*time.Minute)
}

func defaultJob(j *JobConfig, interval, timeout time.Duration) {
	if j.Interval <= 0 {
		j.Interval = interval
	}
	if j.Timeout <= 0 {
		j.Timeout = timeout
	}
}

// Location resolves the restaurant time zone used to interpret date + HH:MM input.
func (c *ReservationConfig) Location() (*time.Location, error) {
	return time.LoadLocation(c.Timezone)
}

// ----------------- VALIDATION -----------------

func (c *Config) Validate() error {
	var errs []string

	if err := validator.New().Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			for _, fe := range verrs {
				errs = append(errs, fmt.Sprintf("%s failed on %s", fe.Namespace(), fe.Tag()))
			}
		} else {
			errs = append(errs, err.Error())
		}
	}

	if err := c.Server.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("server config: %v", err))
	}
	if err := c.Database.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("database config: %v", err))
	}
	if err := c.Messaging.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("messaging config: %v", err))
	}
	if err := c.Reservation.Validate(); err != nil {
		errs = append(errs, fmt.Sprintf("reservation config: %v", err))
	}
	if c.Redis.Enabled && c.Redis.URL == "" && c.Redis.Address == "" {
		errs = append(errs, "redis config: url or address is required when enabled")
	}

	if len(errs) > 0 {
		return errors.New(strings.Join(errs, "; "))
	}
	return nil
}

func (c *ServerConfig) Validate() error {
	if c.AllowedOrigins != "" {
		for _, origin := range strings.Split(c.AllowedOrigins, ",") {
			origin = strings.TrimSpace(origin)
			if origin == "*" {
				continue
			}
			if _, err := url.Parse(origin); err != nil {
				return fmt.Errorf("invalid allowed origin %s: %w", origin, err)
			}
		}
	}
	if c.ReadTimeout < c.ReadHeaderTimeout {
		return errors.New("read_timeout must be >= read_header_timeout")
	}
	return nil
}

func (c *DatabaseConfig) Validate() error {
	if c.MaxIdleConns > c.MaxOpenConns {
		return errors.New("max_idle_conns cannot be greater than max_open_conns")
	}
	return nil
}

func (c *DatabaseConfig) GetDSN() string {
	return c.Source
}

func (c *MessagingConfig) Validate() error {
	switch c.Driver {
	case "amqp":
		if c.AMQPURL == "" {
			return errors.New("amqp_url is required for the amqp driver")
		}
	case "kafka":
		if len(c.KafkaBrokers) == 0 {
			return errors.New("kafka_brokers is required for the kafka driver")
		}
	}
	return nil
}

func (c *ReservationConfig) Validate() error {
	if c.PaymentGracePeriod <= 0 || c.ClaimWindow <= 0 {
		return errors.New("payment_grace_period and claim_window must be positive")
	}
	if _, err := c.Location(); err != nil {
		return fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return nil
}
