package handlers

import (
	"context"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"fiftybrains/delivery/internal/config"
	"fiftybrains/delivery/internal/middleware"
	"fiftybrains/delivery/internal/models"
	"fiftybrains/delivery/internal/service"
)

// HealthCheck pings one backing dependency.
type HealthCheck func(ctx context.Context) error

type Services struct {
	Gate       *service.GateService
	Deliveries *service.DeliveryService
	Reviews    *service.ReviewService
}

type HandlerSet struct {
	log        zerolog.Logger
	cfg        *config.AppConfig
	gate       *service.GateService
	deliveries *service.DeliveryService
	reviews    *service.ReviewService
	nonces     middleware.NonceStore
	checks     map[string]HealthCheck
}

func NewHandlerSet(log zerolog.Logger, cfg *config.AppConfig, services Services, nonces middleware.NonceStore, checks map[string]HealthCheck) HandlerSet {
	return HandlerSet{
		log:        log,
		cfg:        cfg,
		gate:       services.Gate,
		deliveries: services.Deliveries,
		reviews:    services.Reviews,
		nonces:     nonces,
		checks:     checks,
	}
}

func (h HandlerSet) Register(router *gin.RouterGroup) {
	router.GET("/healthz", h.Health)

	v1 := router.Group("/v1")
	v1.Use(middleware.Auth(h.cfg.Security.JWTSecret))
	signed := middleware.Signature(h.cfg.Security, h.nonces, h.log)

	creators := middleware.RequireRoles(models.UserRoleCreator)
	brands := middleware.RequireRoles(models.UserRoleBrand)
	members := middleware.RequireRoles(models.UserRoleCreator, models.UserRoleBrand)

	gig := v1.Group("/gig")
	gig.GET("/applications/:applicationId/status", creators, h.UploadStatus)
	gig.GET("/:gigId/deliveries", members, h.ListDeliveries)
	gig.POST("/:gigId/submit-delivery", creators, signed, h.SubmitDelivery)

	v1.POST("/submissions/delivery-upload-url", creators, signed, h.DeliveryUploadURL)
	v1.POST("/files/signed-url", members, signed, h.SignedFileURL)

	reviews := v1.Group("/submissions/:id", brands, signed)
	reviews.POST("/approve", h.Approve)
	reviews.POST("/reject", h.Reject)
	reviews.POST("/request-revision", h.RequestRevision)
	reviews.POST("/review", h.Review)
}
