package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config represents the application configuration
type Config struct {
	Server     ServerConfig     `json:"server"`
	Database   DatabaseConfig   `json:"database"`
	Ledger     LedgerConfig     `json:"ledger"`
	Registries RegistriesConfig `json:"registries"`
	Security   SecurityConfig   `json:"security"`
	Logging    LoggingConfig    `json:"logging"`
	Reports    ReportsConfig    `json:"reports"`
}

// ServerConfig represents server configuration
type ServerConfig struct {
	Host            string   `json:"host"`
	Port            int      `json:"port"`
	ReadTimeout     Duration `json:"read_timeout"`
	WriteTimeout    Duration `json:"write_timeout"`
	IdleTimeout     Duration `json:"idle_timeout"`
	ShutdownTimeout Duration `json:"shutdown_timeout"`
}

// DatabaseConfig represents database configuration. Driver is "postgres" or
// "sqlite"; Path is only used by sqlite.
type DatabaseConfig struct {
	Driver         string   `json:"driver"`
	Path           string   `json:"path"`
	Host           string   `json:"host"`
	Port           int      `json:"port"`
	User           string   `json:"user"`
	Password       string   `json:"password"`
	DBName         string   `json:"db_name"`
	SSLMode        string   `json:"ssl_mode"`
	MaxConnections int      `json:"max_connections"`
	MaxIdleConns   int      `json:"max_idle_conns"`
	MaxLifetime    Duration `json:"max_lifetime"`
	Serializable   bool     `json:"serializable"`
	Verbose        bool     `json:"verbose"`
}

// LedgerConfig sets the ledger's fee and the balances granted once when a
// fresh ledger is first opened
type LedgerConfig struct {
	MinFee  uint64            `json:"min_fee"`
	Genesis map[string]uint64 `json:"genesis"`
}

// RegistriesConfig holds each registry's application account
type RegistriesConfig struct {
	IssuanceAddress    string `json:"issuance_address"`
	MarketplaceAddress string `json:"marketplace_address"`
	RetirementAddress  string `json:"retirement_address"`
}

// SecurityConfig
type SecurityConfig struct {
	JWTSecret string   `json:"jwt_secret"`
	TokenTTL  Duration `json:"token_ttl"`
}

// LoggingConfig
type LoggingConfig struct {
	Level    string `json:"level"`
	Encoding string `json:"encoding"`
}

// ReportsConfig configures the stats worker. Without a bucket the workbook
// is written under LocalDir.
type ReportsConfig struct {
	Schedule string   `json:"schedule"`
	Bucket   string   `json:"bucket"`
	Region   string   `json:"region"`
	Endpoint string   `json:"endpoint"`
	LocalDir string   `json:"local_dir"`
	Timeout  Duration `json:"timeout"`
}

// Duration reads "90s"-style strings as well as plain nanosecond counts
type Duration struct {
	time.Duration
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(d.String())
}

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v any
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}
	switch value := v.(type) {
	case float64:
		d.Duration = time.Duration(value)
	case string:
		parsed, err := time.ParseDuration(value)
		if err != nil {
			return err
		}
		d.Duration = parsed
	default:
		return fmt.Errorf("invalid duration %s", string(b))
	}
	return nil
}

// Default returns the configuration used when nothing overrides it
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Host:            "0.0.0.0",
			Port:            8080,
			ReadTimeout:     Duration{15 * time.Second},
			WriteTimeout:    Duration{15 * time.Second},
			IdleTimeout:     Duration{60 * time.Second},
			ShutdownTimeout: Duration{5 * time.Second},
		},
		Database: DatabaseConfig{
			Driver:         "sqlite",
			Path:           "registry.db",
			Host:           "localhost",
			Port:           5432,
			User:           os.Getenv("USER"),
			DBName:         "carbon_registry",
			SSLMode:        "disable",
			MaxConnections: 25,
			MaxIdleConns:   5,
			MaxLifetime:    Duration{30 * time.Minute},
		},
		Registries: RegistriesConfig{
			IssuanceAddress:    "ISSUANCE_APP",
			MarketplaceAddress: "MARKETPLACE_APP",
			RetirementAddress:  "RETIREMENT_APP",
		},
		Security: SecurityConfig{
			TokenTTL: Duration{24 * time.Hour},
		},
		Logging: LoggingConfig{
			Level:    "info",
			Encoding: "json",
		},
		Reports: ReportsConfig{
			Schedule: "0 6 * * *",
			Region:   "us-east-1",
			LocalDir: "reports",
			Timeout:  Duration{2 * time.Minute},
		},
	}
}

// LoadConfig loads configuration from .env, the JSON file at configPath and
// environment variables, in increasing precedence. A missing file or .env is
// not an error.
func LoadConfig(configPath string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	config := Default()
	if configPath != "" {
		data, err := os.ReadFile(configPath)
		switch {
		case err == nil:
			if err := json.Unmarshal(data, config); err != nil {
				return nil, fmt.Errorf("failed to parse config file: %w", err)
			}
		case !errors.Is(err, os.ErrNotExist):
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := overrideWithEnv(config); err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	return config, nil
}

func overrideWithEnv(config *Config) error {
	setString := func(key string, dst *string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	setString("SERVER_HOST", &config.Server.Host)
	if port := os.Getenv("SERVER_PORT"); port != "" {
		p, err := strconv.Atoi(port)
		if err != nil {
			return fmt.Errorf("invalid SERVER_PORT: %w", err)
		}
		config.Server.Port = p
	}

	setString("DATABASE_DRIVER", &config.Database.Driver)
	setString("DATABASE_PATH", &config.Database.Path)
	setString("DATABASE_HOST", &config.Database.Host)
	setString("DATABASE_USER", &config.Database.User)
	setString("DATABASE_PASSWORD", &config.Database.Password)
	setString("DATABASE_DBNAME", &config.Database.DBName)
	setString("DATABASE_SSLMODE", &config.Database.SSLMode)

	if fee := os.Getenv("LEDGER_MIN_FEE"); fee != "" {
		v, err := strconv.ParseUint(fee, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid LEDGER_MIN_FEE: %w", err)
		}
		config.Ledger.MinFee = v
	}

	setString("ISSUANCE_ADDRESS", &config.Registries.IssuanceAddress)
	setString("MARKETPLACE_ADDRESS", &config.Registries.MarketplaceAddress)
	setString("RETIREMENT_ADDRESS", &config.Registries.RetirementAddress)

	setString("JWT_SECRET", &config.Security.JWTSecret)
	if ttl := os.Getenv("JWT_TTL"); ttl != "" {
		d, err := time.ParseDuration(ttl)
		if err != nil {
			return fmt.Errorf("invalid JWT_TTL: %w", err)
		}
		config.Security.TokenTTL = Duration{d}
	}

	setString("LOG_LEVEL", &config.Logging.Level)
	setString("LOG_ENCODING", &config.Logging.Encoding)

	setString("REPORTS_SCHEDULE", &config.Reports.Schedule)
	setString("REPORTS_BUCKET", &config.Reports.Bucket)
	setString("AWS_REGION", &config.Reports.Region)
	setString("REPORTS_S3_ENDPOINT", &config.Reports.Endpoint)
	setString("REPORTS_LOCAL_DIR", &config.Reports.LocalDir)
	return nil
}

// Validate rejects configurations the services cannot start with
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "postgres", "sqlite":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	if c.Security.JWTSecret == "" {
		return errors.New("security.jwt_secret (JWT_SECRET) is required")
	}
	addrs := map[string]string{
		"issuance_address":    c.Registries.IssuanceAddress,
		"marketplace_address": c.Registries.MarketplaceAddress,
		"retirement_address":  c.Registries.RetirementAddress,
	}
	seen := make(map[string]string, len(addrs))
	for name, addr := range addrs {
		if addr == "" {
			return fmt.Errorf("registries.%s is required", name)
		}
		if other, ok := seen[addr]; ok {
			return fmt.Errorf("registries.%s and registries.%s share address %s", name, other, addr)
		}
		seen[addr] = name
	}
	return nil
}

// GetDatabaseURL returns the postgres connection string
func (c *DatabaseConfig) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.DBName, c.SSLMode)
}

// DSN returns the data source for the configured driver
func (c *DatabaseConfig) DSN() string {
	if c.Driver == "sqlite" {
		return c.Path
	}
	return c.GetDatabaseURL()
}

// GetServerAddr returns the server address
func (c *ServerConfig) GetServerAddr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
