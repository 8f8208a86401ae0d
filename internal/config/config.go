package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"shiftbook/internal/models"
	"shiftbook/internal/slots"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	BackendREST     = "rest"
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Store      StoreConfig      `yaml:"store"`
	Booking    BookingConfig    `yaml:"booking"`
	Auth       AuthConfig       `yaml:"auth"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Events     EventsConfig     `yaml:"events"`
	Google     GoogleConfig     `yaml:"google"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	Exports    ExportConfig     `yaml:"exports"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type StoreConfig struct {
	Backend  string         `yaml:"backend"`
	REST     RESTConfig     `yaml:"rest"`
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

type RESTConfig struct {
	URL      string `yaml:"url"`
	APIKey   string `yaml:"api_key"`
	Timeout  int    `yaml:"timeout_seconds"`
	CacheTTL int    `yaml:"cache_ttl_seconds"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type PostgresConfig struct {
	Host           string `yaml:"host"`
	Port           int    `yaml:"port"`
	User           string `yaml:"user"`
	Password       string `yaml:"password"`
	DBName         string `yaml:"dbname"`
	SSLMode        string `yaml:"sslmode"`
	MaxConnections int    `yaml:"max_connections"`
}

// DSN builds a libpq keyword/value connection string.
func (p PostgresConfig) DSN() string {
	parts := []string{
		fmt.Sprintf("host=%s", p.Host),
		fmt.Sprintf("port=%d", p.Port),
		fmt.Sprintf("user=%s", p.User),
		fmt.Sprintf("dbname=%s", p.DBName),
		fmt.Sprintf("sslmode=%s", p.SSLMode),
	}
	if p.Password != "" {
		parts = append(parts, fmt.Sprintf("password=%s", p.Password))
	}
	return strings.Join(parts, " ")
}

type BookingConfig struct {
	SlotHours         []int  `yaml:"slot_hours"`
	EnforceUniqueSlot *bool  `yaml:"enforce_unique_slot"`
	Timezone          string `yaml:"timezone"`
	MaxBlockDays      int    `yaml:"max_block_days"`
}

// UniqueSlot reports whether the store must reject a second booked row for
// the same slot. Defaults to true.
func (b BookingConfig) UniqueSlot() bool {
	return b.EnforceUniqueSlot == nil || *b.EnforceUniqueSlot
}

func (b BookingConfig) Grid() (slots.Grid, error) {
	return slots.NewGrid(b.SlotHours)
}

func (b BookingConfig) Location() (*time.Location, error) {
	return time.LoadLocation(b.Timezone)
}

type AuthConfig struct {
	URL               string `yaml:"url"`
	AnonKey           string `yaml:"anon_key"`
	JWTSecret         string `yaml:"jwt_secret"`
	SessionTTLSeconds int    `yaml:"session_ttl_seconds"`
	SignInRateLimit   int    `yaml:"sign_in_rate_limit"`
	SignInRateWindow  int    `yaml:"sign_in_rate_window"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	GRPC      APIGRPCConfig      `yaml:"grpc"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Enabled bool `yaml:"enabled"`
	Port    int  `yaml:"port"`
}

type APIGRPCConfig struct {
	Enabled    bool `yaml:"enabled"`
	Port       int  `yaml:"port"`
	Reflection bool `yaml:"reflection"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type EventsConfig struct {
	AMQPURL  string `yaml:"amqp_url"`
	Exchange string `yaml:"exchange"`
}

type GoogleConfig struct {
	GoogleCredentialsFile string `yaml:"credentials_file"`
	StatsSpreadSheetID    string `yaml:"stats_spreadsheet_id"`
}

// Enabled reports whether the Sheets stats sync is configured.
func (g GoogleConfig) Enabled() bool {
	return g.GoogleCredentialsFile != "" && g.StatsSpreadSheetID != ""
}

type BackupConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Schedule      string `yaml:"schedule"`
	RetentionDays int    `yaml:"retention_days"`
	StoragePath   string `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

type ExportConfig struct {
	Path string `yaml:"path"`
}

func Load(configPath string) (*Config, error) {
	// .env не обязателен
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Store.Backend {
	case BackendREST:
		if c.Store.REST.URL == "" {
			return errors.New("store.rest.url is required")
		}
		if c.Store.REST.APIKey == "" {
			return errors.New("store.rest.api_key is required")
		}
	case BackendSQLite:
		if c.Store.SQLite.Path == "" {
			return errors.New("store.sqlite.path is required")
		}
	case BackendPostgres:
		if c.Store.Postgres.Host == "" || c.Store.Postgres.DBName == "" {
			return errors.New("store.postgres host and dbname are required")
		}
	default:
		return fmt.Errorf("unknown store backend %q", c.Store.Backend)
	}

	if _, err := c.Booking.Grid(); err != nil {
		return fmt.Errorf("booking.slot_hours: %w", err)
	}
	if _, err := c.Booking.Location(); err != nil {
		return fmt.Errorf("booking.timezone: %w", err)
	}

	if c.API.Enabled && c.Auth.JWTSecret == "" {
		return errors.New("auth.jwt_secret is required when api is enabled")
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "shiftbook"
	}
	if c.Store.Backend == "" {
		c.Store.Backend = BackendSQLite
	}
	if c.Store.Backend == BackendSQLite && c.Store.SQLite.Path == "" {
		c.Store.SQLite.Path = "data/shiftbook.db"
	}
	if c.Store.REST.Timeout == 0 {
		c.Store.REST.Timeout = 10
	}
	if c.Store.REST.CacheTTL == 0 {
		c.Store.REST.CacheTTL = models.BookingsCacheTTL
	}
	if c.Store.Postgres.Port == 0 {
		c.Store.Postgres.Port = 5432
	}
	if c.Store.Postgres.SSLMode == "" {
		c.Store.Postgres.SSLMode = "disable"
	}
	if c.Store.Postgres.MaxConnections == 0 {
		c.Store.Postgres.MaxConnections = 10
	}

	if len(c.Booking.SlotHours) == 0 {
		c.Booking.SlotHours = append([]int(nil), slots.DefaultHours...)
	}
	if c.Booking.Timezone == "" {
		c.Booking.Timezone = "UTC"
	}
	if c.Booking.MaxBlockDays == 0 {
		c.Booking.MaxBlockDays = models.DefaultMaxBlockDays
	}

	if c.Auth.URL == "" && c.Store.REST.URL != "" {
		c.Auth.URL = strings.TrimRight(c.Store.REST.URL, "/") + "/auth/v1"
	}
	if c.Auth.AnonKey == "" {
		c.Auth.AnonKey = c.Store.REST.APIKey
	}
	if c.Auth.SessionTTLSeconds == 0 {
		c.Auth.SessionTTLSeconds = models.DefaultSessionTTL
	}
	if c.Auth.SignInRateLimit == 0 {
		c.Auth.SignInRateLimit = models.SignInRateLimit
	}
	if c.Auth.SignInRateWindow == 0 {
		c.Auth.SignInRateWindow = models.SignInRateWindow
	}

	if c.API.GRPC.Port == 0 {
		c.API.GRPC.Port = 8081
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if !c.API.HTTP.Enabled && c.API.Enabled {
		c.API.HTTP.Enabled = true
	}
	if c.API.RateLimit.RPS == 0 {
		c.API.RateLimit.RPS = 10
	}
	if c.API.RateLimit.Burst == 0 {
		c.API.RateLimit.Burst = 20
	}

	if c.Events.Exchange == "" {
		c.Events.Exchange = "shiftbook.events"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "backups"
	}
	if c.Backup.RetentionDays == 0 {
		c.Backup.RetentionDays = 7
	}
	if c.Exports.Path == "" {
		c.Exports.Path = "exports"
	}
}
