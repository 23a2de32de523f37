package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "github.com/noah-isme/hostelx-api/api/swagger"
	"github.com/noah-isme/hostelx-api/internal/handler"
	"github.com/noah-isme/hostelx-api/internal/middleware"
	"github.com/noah-isme/hostelx-api/internal/models"
	"github.com/noah-isme/hostelx-api/pkg/config"
	"github.com/noah-isme/hostelx-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/hostelx-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/hostelx-api/pkg/middleware/requestid"
)

func newRouter(cfg *config.Config, a *app, logr *zap.Logger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(logr))
	r.Use(corsmiddleware.New(cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(a.metrics))
	r.Use(middleware.WithResponseMeta())

	metricsHandler := handler.NewMetricsHandler(a.metrics, a.checks)
	authHandler := handler.NewAuthHandler(a.auth)
	requestHandler := handler.NewRequestHandler(a.lifecycle, a.passes, a.evidence)
	gateHandler := handler.NewGateHandler(a.gate)
	auditHandler := handler.NewAuditHandler(a.audit)
	announcementHandler := handler.NewAnnouncementHandler(a.announcements)
	evidenceHandler := handler.NewEvidenceHandler(a.evidence)
	userHandler := handler.NewUserHandler(a.users)

	r.GET("/health", metricsHandler.Health)
	r.GET("/ready", metricsHandler.Ready)
	r.GET("/metrics", metricsHandler.Prometheus)
	if cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	api := r.Group(cfg.APIPrefix)
	requireAuth := middleware.JWT(a.auth)
	students := middleware.RequireRoles(models.RoleStudent)

	auth := api.Group("/auth")
	auth.POST("/login", authHandler.Login)
	auth.POST("/refresh", authHandler.Refresh)
	auth.POST("/logout", requireAuth, authHandler.Logout)
	auth.GET("/me", requireAuth, authHandler.Me)

	api.POST("/gate/verify",
		middleware.OptionalJWT(a.auth),
		middleware.RateLimit(a.limiter, "gate_verify", cfg.Gate.VerifyRateLimit, a.metrics),
		gateHandler.Verify,
	)

	secured := api.Group("", requireAuth)
	secured.POST("/complaints", students, requestHandler.SubmitComplaint)
	secured.POST("/complaints/evidence", students, evidenceHandler.Upload)
	secured.POST("/leaves", students, requestHandler.SubmitLeave)
	secured.POST("/medical-requests", students, requestHandler.SubmitMedical)
	secured.GET("/leaves/:id/pass.pdf", students, requestHandler.GatePass)
	secured.GET("/evidence/:token", evidenceHandler.Download)

	secured.GET("/requests", requestHandler.List)
	secured.GET("/requests/:id", requestHandler.Get)
	secured.POST("/requests/:id/transitions", middleware.RequireStaff(), requestHandler.Transition)

	secured.POST("/gate/override", middleware.RequireRoles(models.RoleSecurity), gateHandler.Override)

	secured.GET("/audit", middleware.RequireStaff(), auditHandler.List)
	secured.GET("/audit/export", middleware.RequireRoles(models.RoleAdmin), auditHandler.Export)

	secured.GET("/announcements", announcementHandler.List)
	secured.POST("/announcements", middleware.RequireStaff(), announcementHandler.Create)

	admins := secured.Group("/users", middleware.RequireRoles(models.RoleAdmin))
	admins.GET("", userHandler.List)
	admins.POST("", userHandler.Create)
	admins.GET("/:id", userHandler.Get)
	admins.PUT("/:id", userHandler.Update)
	admins.DELETE("/:id", userHandler.Deactivate)

	secured.GET("/metrics/summary", middleware.RequireRoles(models.RoleAdmin), metricsHandler.Summary)

	return r
}
