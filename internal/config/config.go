// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Environment はデプロイ環境を表す。
type Environment string

const (
	EnvDevelopment Environment = "development"
	EnvProduction  Environment = "production"
)

// 本番環境で要求する署名鍵の最小バイト長。
const minProductionSecretLen = 32

// Session store backends.
const (
	SessionStorePostgres = "postgres"
	SessionStoreRedis    = "redis"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	Env Environment

	// Database
	DatabaseURL string

	// Token
	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	// Session
	SessionSecret string
	SessionStore  string
	RedisURL      string

	// Password hashing
	BcryptCost int

	// Store
	StoreTimeout time.Duration

	// Rate Limit
	RateLimitLogin   int // IPごとのログイン・登録試行数（req/min）
	RateLimitGeneral int // 認証済みユーザーごとのAPI呼び出し数（req/min）

	// Logging
	LogLevel string

	// Server
	ServerPort string

	// Cookie
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.Env == EnvProduction
}

// Load は環境変数からConfigを読み込む。
// 本番環境以外ではカレントディレクトリの.envを読み込む（既存の環境変数は上書きしない）。
// 必須環境変数が未設定の場合、または本番環境で秘密鍵が要件を満たさない場合はエラーを返す。
func Load() (*Config, error) {
	env := Environment(strings.ToLower(getEnvString("APP_ENV", string(EnvDevelopment))))
	if env != EnvProduction {
		// .envが無いのは正常
		_ = godotenv.Load()
	}

	cfg := &Config{Env: env}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.JWTSecret = os.Getenv("JWT_SECRET")
	if cfg.JWTSecret == "" {
		missing = append(missing, "JWT_SECRET")
	}

	cfg.JWTIssuer = os.Getenv("JWT_ISSUER")
	if cfg.JWTIssuer == "" {
		missing = append(missing, "JWT_ISSUER")
	}

	cfg.JWTAudience = os.Getenv("JWT_AUDIENCE")
	if cfg.JWTAudience == "" {
		missing = append(missing, "JWT_AUDIENCE")
	}

	cfg.SessionSecret = os.Getenv("SESSION_SECRET")
	if cfg.SessionSecret == "" {
		missing = append(missing, "SESSION_SECRET")
	}

	cfg.SessionStore = strings.ToLower(getEnvString("SESSION_STORE", SessionStorePostgres))
	cfg.RedisURL = os.Getenv("REDIS_URL")
	if cfg.SessionStore == SessionStoreRedis && cfg.RedisURL == "" {
		missing = append(missing, "REDIS_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.BcryptCost = getEnvInt("BCRYPT_COST", 12)
	cfg.StoreTimeout = getEnvDuration("STORE_TIMEOUT", 3*time.Second)
	cfg.RateLimitLogin = getEnvInt("RATE_LIMIT_LOGIN", 10)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate は設定値の整合性を検証する。
// 秘密鍵にコンパイル時のデフォルト値は存在しないため、ここで不足を検出できなければ起動させない。
func (c *Config) Validate() error {
	var errs []error

	switch c.Env {
	case EnvDevelopment, EnvProduction:
	default:
		errs = append(errs, fmt.Errorf("APP_ENV must be %q or %q, got %q", EnvDevelopment, EnvProduction, c.Env))
	}

	switch c.SessionStore {
	case SessionStorePostgres, SessionStoreRedis:
	default:
		errs = append(errs, fmt.Errorf("SESSION_STORE must be %q or %q, got %q", SessionStorePostgres, SessionStoreRedis, c.SessionStore))
	}

	if c.JWTSecret == "" || c.SessionSecret == "" {
		errs = append(errs, errors.New("JWT_SECRET and SESSION_SECRET are required"))
	}

	if c.IsProduction() {
		if len(c.JWTSecret) < minProductionSecretLen {
			errs = append(errs, fmt.Errorf("JWT_SECRET must be at least %d bytes in production", minProductionSecretLen))
		}
		if len(c.SessionSecret) < minProductionSecretLen {
			errs = append(errs, fmt.Errorf("SESSION_SECRET must be at least %d bytes in production", minProductionSecretLen))
		}
		if c.JWTSecret != "" && c.JWTSecret == c.SessionSecret {
			errs = append(errs, errors.New("JWT_SECRET and SESSION_SECRET must differ in production"))
		}
	}

	if c.StoreTimeout <= 0 {
		errs = append(errs, errors.New("STORE_TIMEOUT must be positive"))
	}

	return errors.Join(errs...)
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
