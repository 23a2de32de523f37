package main

import (
	"context"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"github.com/noah-isme/hostelx-api/internal/advisory"
	"github.com/noah-isme/hostelx-api/internal/handler"
	"github.com/noah-isme/hostelx-api/internal/models"
	"github.com/noah-isme/hostelx-api/internal/repository"
	"github.com/noah-isme/hostelx-api/internal/service"
	"github.com/noah-isme/hostelx-api/pkg/cache"
	"github.com/noah-isme/hostelx-api/pkg/config"
	"github.com/noah-isme/hostelx-api/pkg/database"
	"github.com/noah-isme/hostelx-api/pkg/export"
	"github.com/noah-isme/hostelx-api/pkg/ratelimit"
	"github.com/noah-isme/hostelx-api/pkg/storage"
)

const (
	codeRegistryPrefix = "hostelx:codes:"
	rateLimitPrefix    = "hostelx:ratelimit:"
)

type stores struct {
	requests      requestStore
	audit         auditStore
	users         userStore
	announcements announcementStore
}

type requestStore interface {
	Create(ctx context.Context, req *models.Request) error
	Get(ctx context.Context, id string) (*models.Request, error)
	Update(ctx context.Context, id string, expectedVersion int64, mutate func(*models.Request) error) (*models.Request, error)
	FindByCode(ctx context.Context, code string) (*models.Request, error)
	List(ctx context.Context, filter models.RequestFilter) ([]models.Request, int, error)
	ListOverdue(ctx context.Context, now time.Time, limit int) ([]string, error)
}

type auditStore interface {
	Append(ctx context.Context, entry *models.AuditEntry) error
	List(ctx context.Context, filter models.AuditFilter) ([]models.AuditEntry, int, error)
}

type userStore interface {
	List(ctx context.Context, filter models.UserFilter) ([]models.User, int, error)
	Create(ctx context.Context, user *models.User) error
	Update(ctx context.Context, user *models.User) error
	FindByEmail(ctx context.Context, email string) (*models.User, error)
	FindByID(ctx context.Context, id string) (*models.User, error)
	UpdateLastLogin(ctx context.Context, id string, ts time.Time) error
	RevokeUserRefreshTokens(ctx context.Context, userID string, revokedAt time.Time) error
	CreateRefreshToken(ctx context.Context, token *models.RefreshToken) error
	FindRefreshToken(ctx context.Context, token string) (*models.RefreshToken, error)
	RevokeRefreshToken(ctx context.Context, id string, revokedAt time.Time) error
}

type announcementStore interface {
	List(ctx context.Context, filter models.AnnouncementFilter) ([]models.Announcement, int, error)
	Create(ctx context.Context, announcement *models.Announcement) error
}

// app holds the wired services and the resources they share.
type app struct {
	db    *sqlx.DB
	redis *redis.Client

	metrics       *service.MetricsService
	auth          *service.AuthService
	users         *service.UserService
	lifecycle     *service.LifecycleService
	gate          *service.GateService
	audit         *service.AuditService
	evidence      *service.EvidenceService
	passes        *service.GatePassService
	announcements *service.AnnouncementService
	sweeper       *service.ExpirySweeper
	limiter       ratelimit.Limiter
	checks        map[string]handler.ReadinessCheck
}

func buildApp(ctx context.Context, cfg *config.Config, logr *zap.Logger) (*app, error) {
	a := &app{
		metrics: service.NewMetricsService(),
		checks:  make(map[string]handler.ReadinessCheck),
	}

	st, err := a.openStores(ctx, cfg, logr)
	if err != nil {
		a.Close()
		return nil, err
	}

	if cfg.Redis.Enabled || cfg.Gate.CodeRegistry == config.CodeRegistryRedis {
		client, err := cache.NewRedis(ctx, cfg.Redis)
		if err != nil {
			a.Close()
			return nil, fmt.Errorf("connect redis: %w", err)
		}
		a.redis = client
		a.checks["redis"] = func(ctx context.Context) error { return client.Ping(ctx).Err() }
	}

	var registry service.CodeRegistry
	if cfg.Gate.CodeRegistry == config.CodeRegistryRedis {
		registry = repository.NewRedisCodeRegistry(a.redis, codeRegistryPrefix)
	} else {
		registry = repository.NewMemoryCodeRegistry(time.Now)
	}

	window := cfg.Gate.RateLimitWindow
	if a.redis != nil {
		a.limiter = ratelimit.NewRedis(a.redis, window, rateLimitPrefix, logr)
	} else {
		a.limiter = ratelimit.NewLocal(window)
	}

	var cacheRepo service.CacheRepository
	if a.redis != nil {
		cacheRepo = repository.NewCacheRepository(a.redis, logr)
	}
	cacheSvc := service.NewCacheService(cacheRepo, a.metrics, cfg.Announcements.CacheTTL, logr, cfg.Announcements.CacheEnabled)

	validate := validator.New()
	loc := cfg.Gate.Location()

	issuer := service.NewOTPIssuer(registry, cfg.Gate.OTPMaxAttempts, logr, service.WithIssuerMetrics(a.metrics))
	a.lifecycle = service.NewLifecycleService(st.requests, st.audit, issuer, advisory.New(cfg.Advisory, logr), validate, logr,
		service.WithLifecycleMetrics(a.metrics),
		service.WithLocation(loc),
		service.WithMaxRetries(cfg.Lifecycle.MaxRetries),
		service.WithAdvisoryTimeout(cfg.Advisory.Timeout),
	)
	a.gate = service.NewGateService(st.requests, st.audit, issuer, a.lifecycle, logr, service.WithGateMetrics(a.metrics))
	a.sweeper = service.NewExpirySweeper(a.lifecycle, cfg.Lifecycle.SweepWorkers, logr)

	a.auth = service.NewAuthService(st.users, st.audit, validate, logr, service.AuthConfig{
		AccessTokenSecret:  cfg.JWT.Secret,
		AccessTokenExpiry:  cfg.JWT.Expiration,
		RefreshTokenExpiry: cfg.JWT.RefreshExpiration,
		Issuer:             cfg.JWT.Issuer,
	})
	a.users = service.NewUserService(st.users, st.audit, validate, logr)
	a.audit = service.NewAuditService(st.audit, export.NewCSVExporter(), export.NewPDFExporter(), logr)
	a.passes = service.NewGatePassService(a.lifecycle, export.NewPDFExporter())
	a.announcements = service.NewAnnouncementService(st.announcements, cacheSvc, cfg.Announcements.CacheTTL, validate, logr)

	files, err := storage.NewLocalStorage(cfg.Evidence.StorageDir)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open evidence storage: %w", err)
	}
	a.evidence = service.NewEvidenceService(files,
		storage.NewSignedURLSigner(cfg.Evidence.SignedURLSecret, cfg.Evidence.SignedURLTTL),
		service.EvidenceConfig{
			APIPrefix:    cfg.APIPrefix,
			MaxFileSize:  cfg.Evidence.MaxFileSizeBytes,
			AllowedMIMEs: cfg.Evidence.AllowedMIMEs,
		}, logr)

	return a, nil
}

func (a *app) openStores(ctx context.Context, cfg *config.Config, logr *zap.Logger) (stores, error) {
	if cfg.StoreDriver == config.StoreDriverMemory {
		users := repository.NewMemoryUserStore()
		if cfg.Env != config.EnvProduction {
			if err := seedDemoUsers(ctx, users, logr); err != nil {
				return stores{}, err
			}
		}
		logr.Warn("using in-memory stores; data is lost on restart")
		return stores{
			requests:      repository.NewMemoryRequestStore(),
			audit:         repository.NewMemoryAuditStore(),
			users:         users,
			announcements: repository.NewMemoryAnnouncementStore(),
		}, nil
	}

	db, err := database.NewPostgres(ctx, cfg.Database)
	if err != nil {
		return stores{}, fmt.Errorf("connect postgres: %w", err)
	}
	a.db = db
	a.checks["postgres"] = func(ctx context.Context) error { return db.PingContext(ctx) }
	return stores{
		requests:      repository.NewRequestRepository(db),
		audit:         repository.NewAuditRepository(db),
		users:         repository.NewUserRepository(db),
		announcements: repository.NewAnnouncementRepository(db),
	}, nil
}

// Close releases pooled connections.
func (a *app) Close() {
	if a.redis != nil {
		_ = a.redis.Close()
	}
	if a.db != nil {
		_ = a.db.Close()
	}
}

const demoPassword = "hostelx-demo"

func seedDemoUsers(ctx context.Context, users userStore, logr *zap.Logger) error {
	hash, err := service.HashPassword(demoPassword)
	if err != nil {
		return fmt.Errorf("hash demo password: %w", err)
	}
	room := "B-204"
	demo := []models.User{
		{Email: "student@hostelx.local", FullName: "Rina Putri", Role: models.RoleStudent, Room: &room, IDNumber: "STU-0001"},
		{Email: "warden@hostelx.local", FullName: "Joko Santoso", Role: models.RoleWarden, IDNumber: "WRD-0001"},
		{Email: "admin@hostelx.local", FullName: "Admin", Role: models.RoleAdmin, IDNumber: "ADM-0001"},
		{Email: "security@hostelx.local", FullName: "Budi Gate", Role: models.RoleSecurity, IDNumber: "SEC-0001"},
	}
	for i := range demo {
		demo[i].PasswordHash = hash
		demo[i].Active = true
		if err := users.Create(ctx, &demo[i]); err != nil {
			return fmt.Errorf("seed %s: %w", demo[i].Email, err)
		}
	}
	logr.Sugar().Infow("seeded demo accounts", "count", len(demo), "password", demoPassword)
	return nil
}
