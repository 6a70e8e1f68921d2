package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/url"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"
)

// DefaultEnvFile は起動時に読み込む.envファイルのパス。
const DefaultEnvFile = ".env"

// Repository の種別。
const (
	RepositoryPostgres = "pg"
	RepositoryMemory   = "memory"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	Listen         string `env:"IB_LISTEN" env-default:"http://localhost:3000"`
	PublicURL      string `env:"IB_PUBLIC_URL"`
	MaxConnections int    `env:"IB_MAX_CONNECTIONS" env-default:"0"`
	Env            string `env:"IB_ENV" env-default:"development"`

	// Paging
	DefaultPageSize int `env:"IB_DEFAULT_PAGE_SIZE" env-default:"10"`

	// Repository
	Repository string `env:"IB_REPOSITORY" env-default:"pg"`

	// Database
	DatabaseURLOverride string `env:"DATABASE_URL"`
	PG                  PGConfig

	// Logging
	LogLevelName string `env:"IB_LOG_LEVEL" env-default:"INFO"`
	LogLevel     slog.Level

	// Cleanup
	PurgeInterval  time.Duration `env:"IB_PURGE_INTERVAL" env-default:"5m"`
	PurgeRetention time.Duration `env:"IB_PURGE_RETENTION" env-default:"5m"`

	// CORS
	CORSAllowedOrigin string `env:"IB_CORS_ALLOWED_ORIGIN"`
}

// PGConfig はDATABASE_URLが未設定の場合に接続URLを組み立てるための設定。
type PGConfig struct {
	Host     string `env:"PG_HOST" env-default:"localhost"`
	Port     int    `env:"PG_PORT" env-default:"5432"`
	DBName   string `env:"PG_DBNAME" env-default:"ib"`
	User     string `env:"PG_USER" env-default:"ib"`
	Password string `env:"PG_PASSWORD"`
	SSLMode  string `env:"PG_SSLMODE" env-default:"disable"`
}

// Load はカレントディレクトリの.envと環境変数からConfigを読み込む。
func Load() (*Config, error) {
	return LoadWithEnvFile(DefaultEnvFile)
}

// LoadWithEnvFile はenvFileと環境変数からConfigを読み込む。
// envFileが存在しない場合は環境変数のみを使う。
// 同じキーが両方にある場合は環境変数を優先する。
func LoadWithEnvFile(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("read %s: %w", envFile, err)
		}
	}

	cfg := &Config{}
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("read env: %w", err)
	}

	if cfg.Repository != RepositoryPostgres && cfg.Repository != RepositoryMemory {
		return nil, fmt.Errorf("IB_REPOSITORY must be %q or %q, got %q", RepositoryPostgres, RepositoryMemory, cfg.Repository)
	}

	level, err := parseLogLevel(cfg.LogLevelName)
	if err != nil {
		return nil, fmt.Errorf("IB_LOG_LEVEL: %w", err)
	}
	cfg.LogLevel = level

	if cfg.DefaultPageSize <= 0 {
		return nil, fmt.Errorf("IB_DEFAULT_PAGE_SIZE must be positive, got %d", cfg.DefaultPageSize)
	}
	if cfg.MaxConnections < 0 {
		return nil, fmt.Errorf("IB_MAX_CONNECTIONS must not be negative, got %d", cfg.MaxConnections)
	}
	if cfg.PurgeInterval <= 0 {
		return nil, fmt.Errorf("IB_PURGE_INTERVAL must be positive, got %s", cfg.PurgeInterval)
	}

	if cfg.PublicURL == "" && isHTTPURL(cfg.Listen) {
		cfg.PublicURL = cfg.Listen
	}
	cfg.PublicURL = strings.TrimRight(cfg.PublicURL, "/")

	return cfg, nil
}

// DatabaseURL はPostgreSQLの接続URLを返す。
// DATABASE_URLが設定されていればそれを優先する。
func (c *Config) DatabaseURL() string {
	if c.DatabaseURLOverride != "" {
		return c.DatabaseURLOverride
	}
	u := url.URL{
		Scheme:   "postgres",
		Host:     fmt.Sprintf("%s:%d", c.PG.Host, c.PG.Port),
		Path:     "/" + c.PG.DBName,
		RawQuery: url.Values{"sslmode": {c.PG.SSLMode}}.Encode(),
	}
	if c.PG.Password != "" {
		u.User = url.UserPassword(c.PG.User, c.PG.Password)
	} else {
		u.User = url.User(c.PG.User)
	}
	return u.String()
}

// IsProduction は本番モードかを返す。
// 本番モードでは500レスポンスに詳細を含めない。
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func parseLogLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(strings.TrimSpace(s))); err != nil {
		return 0, err
	}
	return level, nil
}

func isHTTPURL(s string) bool {
	return strings.HasPrefix(s, "http://") || strings.HasPrefix(s, "https://")
}
