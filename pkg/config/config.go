package config

import (
	"errors"
	"io/fs"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

const (
	StoreDriverPostgres = "postgres"
	StoreDriverMemory   = "memory"

	CodeRegistryMemory = "memory"
	CodeRegistryRedis  = "redis"
)

type Config struct {
	Env         string
	Port        int
	APIPrefix   string
	StoreDriver string

	Database      DatabaseConfig
	Redis         RedisConfig
	JWT           JWTConfig
	CORS          CORSConfig
	Log           LogConfig
	Lifecycle     LifecycleConfig
	Gate          GateConfig
	Advisory      AdvisoryConfig
	Evidence      EvidenceConfig
	Announcements AnnouncementsConfig
}

type DatabaseConfig struct {
	Host         string
	Port         int
	User         string
	Password     string
	Name         string
	SSLMode      string
	MaxOpenConns int
	MaxIdleConns int
}

type RedisConfig struct {
	Enabled  bool
	Host     string
	Port     int
	Password string
	DB       int
}

type JWTConfig struct {
	Secret            string
	Issuer            string
	Expiration        time.Duration
	RefreshExpiration time.Duration
}

type CORSConfig struct {
	AllowedOrigins []string
}

type LogConfig struct {
	Level  string
	Format string
}

// LifecycleConfig tunes request transitions and the expiry sweep.
type LifecycleConfig struct {
	MaxRetries          int
	ExpirySweepInterval time.Duration
	SweepWorkers        int
}

// GateConfig controls OTP issuance and gate verification.
type GateConfig struct {
	Timezone        string
	CodeRegistry    string
	OTPMaxAttempts  int
	VerifyRateLimit int
	RateLimitWindow time.Duration
}

// AdvisoryConfig configures the complaint triage collaborator.
type AdvisoryConfig struct {
	Enabled   bool
	APIKey    string
	BaseURL   string
	Model     string
	MaxTokens int64
	Timeout   time.Duration
}

// EvidenceConfig controls complaint evidence uploads.
type EvidenceConfig struct {
	StorageDir       string
	SignedURLSecret  string
	SignedURLTTL     time.Duration
	MaxFileSizeBytes int64
	AllowedMIMEs     []string
}

// AnnouncementsConfig controls announcement caching.
type AnnouncementsConfig struct {
	CacheEnabled bool
	CacheTTL     time.Duration
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(".env")
	v.SetConfigType("env")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) && !isMissingFile(err) {
			return nil, err
		}
	}

	cfg := &Config{}

	cfg.Env = v.GetString("ENV")
	cfg.Port = v.GetInt("PORT")
	cfg.APIPrefix = v.GetString("API_PREFIX")
	cfg.StoreDriver = strings.ToLower(v.GetString("STORE_DRIVER"))

	cfg.Database = DatabaseConfig{
		Host:         v.GetString("DB_HOST"),
		Port:         v.GetInt("DB_PORT"),
		User:         v.GetString("DB_USER"),
		Password:     v.GetString("DB_PASSWORD"),
		Name:         v.GetString("DB_NAME"),
		SSLMode:      v.GetString("DB_SSL_MODE"),
		MaxOpenConns: v.GetInt("DB_MAX_OPEN_CONNS"),
		MaxIdleConns: v.GetInt("DB_MAX_IDLE_CONNS"),
	}

	cfg.Redis = RedisConfig{
		Enabled:  v.GetBool("REDIS_ENABLED"),
		Host:     v.GetString("REDIS_HOST"),
		Port:     v.GetInt("REDIS_PORT"),
		Password: v.GetString("REDIS_PASSWORD"),
		DB:       v.GetInt("REDIS_DB"),
	}

	cfg.JWT = JWTConfig{
		Secret:            v.GetString("JWT_SECRET"),
		Issuer:            v.GetString("JWT_ISSUER"),
		Expiration:        parseDuration(v.GetString("JWT_EXPIRATION"), 24*time.Hour),
		RefreshExpiration: parseDuration(v.GetString("REFRESH_TOKEN_EXPIRATION"), 7*24*time.Hour),
	}

	cfg.CORS = CORSConfig{AllowedOrigins: splitAndTrim(v.GetString("ALLOWED_ORIGINS"))}

	cfg.Log = LogConfig{
		Level:  v.GetString("LOG_LEVEL"),
		Format: v.GetString("LOG_FORMAT"),
	}

	cfg.Lifecycle = LifecycleConfig{
		MaxRetries:          v.GetInt("LIFECYCLE_MAX_RETRIES"),
		ExpirySweepInterval: parseDuration(v.GetString("EXPIRY_SWEEP_INTERVAL"), 5*time.Minute),
		SweepWorkers:        v.GetInt("EXPIRY_SWEEP_WORKERS"),
	}

	cfg.Gate = GateConfig{
		Timezone:        v.GetString("GATE_TIMEZONE"),
		CodeRegistry:    strings.ToLower(v.GetString("CODE_REGISTRY")),
		OTPMaxAttempts:  v.GetInt("OTP_MAX_ATTEMPTS"),
		VerifyRateLimit: v.GetInt("GATE_VERIFY_RATE_LIMIT"),
		RateLimitWindow: parseDuration(v.GetString("GATE_VERIFY_RATE_WINDOW"), time.Minute),
	}

	cfg.Advisory = AdvisoryConfig{
		Enabled:   v.GetBool("ADVISORY_ENABLED"),
		APIKey:    v.GetString("ADVISORY_API_KEY"),
		BaseURL:   v.GetString("ADVISORY_BASE_URL"),
		Model:     v.GetString("ADVISORY_MODEL"),
		MaxTokens: v.GetInt64("ADVISORY_MAX_TOKENS"),
		Timeout:   parseDuration(v.GetString("ADVISORY_TIMEOUT"), 3*time.Second),
	}

	maxEvidenceSize := v.GetInt64("EVIDENCE_MAX_FILE_SIZE")
	if maxEvidenceSize <= 0 {
		maxEvidenceSize = 5 * 1024 * 1024
	}
	cfg.Evidence = EvidenceConfig{
		StorageDir:       v.GetString("EVIDENCE_STORAGE_DIR"),
		SignedURLSecret:  v.GetString("EVIDENCE_SIGNED_URL_SECRET"),
		SignedURLTTL:     parseDuration(v.GetString("EVIDENCE_SIGNED_URL_TTL"), 30*time.Minute),
		MaxFileSizeBytes: maxEvidenceSize,
		AllowedMIMEs:     splitAndTrim(v.GetString("EVIDENCE_ALLOWED_MIME_TYPES")),
	}

	cfg.Announcements = AnnouncementsConfig{
		CacheEnabled: v.GetBool("ANNOUNCEMENTS_CACHE_ENABLED"),
		CacheTTL:     parseDuration(v.GetString("ANNOUNCEMENTS_CACHE_TTL"), 5*time.Minute),
	}

	return cfg, nil
}

// Location resolves the gate timezone, falling back to UTC.
func (g GateConfig) Location() *time.Location {
	if g.Timezone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(g.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("ENV", EnvDevelopment)
	v.SetDefault("PORT", 8080)
	v.SetDefault("API_PREFIX", "/api/v1")
	v.SetDefault("STORE_DRIVER", StoreDriverPostgres)

	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", 5432)
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "hostelx")
	v.SetDefault("DB_SSL_MODE", "disable")
	v.SetDefault("DB_MAX_OPEN_CONNS", 10)
	v.SetDefault("DB_MAX_IDLE_CONNS", 5)

	v.SetDefault("REDIS_ENABLED", false)
	v.SetDefault("REDIS_HOST", "localhost")
	v.SetDefault("REDIS_PORT", 6379)
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)

	v.SetDefault("JWT_SECRET", "dev_secret")
	v.SetDefault("JWT_ISSUER", "hostelx-api")
	v.SetDefault("JWT_EXPIRATION", "24h")
	v.SetDefault("REFRESH_TOKEN_EXPIRATION", "168h")

	v.SetDefault("ALLOWED_ORIGINS", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "json")

	v.SetDefault("LIFECYCLE_MAX_RETRIES", 3)
	v.SetDefault("EXPIRY_SWEEP_INTERVAL", "5m")
	v.SetDefault("EXPIRY_SWEEP_WORKERS", 1)

	v.SetDefault("GATE_TIMEZONE", "UTC")
	v.SetDefault("CODE_REGISTRY", CodeRegistryMemory)
	v.SetDefault("OTP_MAX_ATTEMPTS", 16)
	v.SetDefault("GATE_VERIFY_RATE_LIMIT", 30)
	v.SetDefault("GATE_VERIFY_RATE_WINDOW", "1m")

	v.SetDefault("ADVISORY_ENABLED", false)
	v.SetDefault("ADVISORY_API_KEY", "")
	v.SetDefault("ADVISORY_BASE_URL", "")
	v.SetDefault("ADVISORY_MODEL", "claude-3-5-haiku-latest")
	v.SetDefault("ADVISORY_MAX_TOKENS", 512)
	v.SetDefault("ADVISORY_TIMEOUT", "3s")

	v.SetDefault("EVIDENCE_STORAGE_DIR", "./evidence")
	v.SetDefault("EVIDENCE_SIGNED_URL_SECRET", "dev_evidence_secret")
	v.SetDefault("EVIDENCE_SIGNED_URL_TTL", "30m")
	v.SetDefault("EVIDENCE_MAX_FILE_SIZE", 5*1024*1024)
	v.SetDefault("EVIDENCE_ALLOWED_MIME_TYPES", "image/jpeg,image/png,image/webp,application/pdf")

	v.SetDefault("ANNOUNCEMENTS_CACHE_ENABLED", false)
	v.SetDefault("ANNOUNCEMENTS_CACHE_TTL", "5m")
}

func isMissingFile(err error) bool {
	return errors.Is(err, fs.ErrNotExist)
}

func parseDuration(raw string, fallback time.Duration) time.Duration {
	if raw == "" {
		return fallback
	}

	d, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return d
}

func splitAndTrim(raw string) []string {
	if raw == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	result := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			result = append(result, trimmed)
		}
	}

	return result
}
