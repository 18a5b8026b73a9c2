package services

import (
	"fmt"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/cors"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/gofiber/fiber/v2/middleware/recover"
	"github.com/saathi-legal/saathi_api/middleware"
	"github.com/saathi-legal/saathi_api/services/handlers"
	"github.com/saathi-legal/saathi_api/shared"
)

type HttpService struct {
	context.DefaultService

	port        int
	allowOrigin string
	logLevel    string
	app         *fiber.App
}

const HTTP_SVC = "http_svc"

// Collaborator is the pair of external calls behind the feature endpoints.
type Collaborator interface {
	handlers.ChatCompleter
	handlers.DocumentRenderer
}

// AppDeps are the services the router is assembled from. Archive and
// Observer are optional.
type AppDeps struct {
	Consent      *ConsentService
	RateLimit    *RateLimitService
	Collaborator Collaborator
	Archive      handlers.DocumentArchive
	Observer     middleware.GateObserver
	Trace        bool
	AllowOrigins string
}

func (svc HttpService) Id() string {
	return HTTP_SVC
}

func (svc *HttpService) Configure(ctx *context.Context) error {
	svc.port = getEnvInt("HTTP_PORT", 8000)
	svc.allowOrigin = getEnv("CORS_ALLOW_ORIGINS", "*")
	svc.logLevel = strings.ToUpper(getEnv("LOG_LEVEL", "INFO"))
	return svc.DefaultService.Configure(ctx)
}

func (svc *HttpService) Start() error {
	deps := AppDeps{
		Consent:      svc.Service(CONSENT_SVC).(*ConsentService),
		RateLimit:    svc.Service(RATE_LIMIT_SVC).(*RateLimitService),
		Collaborator: svc.Service(COLLABORATOR_SVC).(*CollaboratorService),
		Trace:        svc.logLevel == "TRACE",
		AllowOrigins: svc.allowOrigin,
	}
	if archive := svc.Service(MINIO_SVC).(*MinIOService); archive.Enabled() {
		deps.Archive = archive
	}
	deps.Observer = svc.Service(MONITORING_SVC).(*MonitoringService)

	svc.app = NewApp(deps)
	return svc.app.Listen(fmt.Sprintf(":%v", svc.port))
}

func (svc *HttpService) Shutdown() {
	if svc.app != nil {
		_ = svc.app.ShutdownWithTimeout(10 * time.Second)
	}
}

// NewApp assembles the fiber application and its routes.
func NewApp(deps AppDeps) *fiber.App {
	app := fiber.New(fiber.Config{
		AppName:               SERVICE_NAME,
		DisableStartupMessage: !deps.Trace,
		JSONEncoder:           shared.JSONMarshal,
		JSONDecoder:           shared.JSONUnmarshal,
		ErrorHandler:          shared.ErrorHandler,
		BodyLimit:             256 * 1024,
		ReadTimeout:           30 * time.Second,
		WriteTimeout:          60 * time.Second,
	})

	app.Use(recover.New())
	if deps.Trace {
		app.Use(logger.New())
	}

	allowOrigins := deps.AllowOrigins
	if allowOrigins == "" {
		allowOrigins = "*"
	}
	app.Use(cors.New(cors.Config{
		AllowOrigins:  allowOrigins,
		AllowHeaders:  strings.Join([]string{fiber.HeaderOrigin, fiber.HeaderContentType, fiber.HeaderAccept, shared.HeaderAnonymousID}, ","),
		ExposeHeaders: "X-RateLimit-Limit,X-RateLimit-Remaining,X-RateLimit-Reset,Retry-After," + handlers.HeaderDocumentArchived,
	}))
	app.Use(MonitoringMiddleware())

	gate := middleware.NewGate(deps.Consent, deps.RateLimit, deps.Observer)
	consentHandler := handlers.NewConsentHandler(deps.Consent)
	chatHandler := handlers.NewChatHandler(deps.Collaborator, deps.RateLimit.now)
	documentHandler := handlers.NewDocumentHandler(deps.Collaborator, deps.Archive)
	configHandler := handlers.NewConfigHandler(deps.Consent, deps.RateLimit)

	//Validation endpoints
	app.Get("/ping", ping)
	app.Get("/health", healthCheck(deps.RateLimit))

	app.Get("/config", configHandler.GetConfig)
	app.Post("/consent", consentHandler.RecordConsent)
	app.Get("/consent/:identifier", consentHandler.GetConsent)
	app.Get("/consent/:identifier/history", consentHandler.GetHistory)

	app.Post("/chat", gate.Protect("chat", true, chatHandler.Chat)...)
	app.Post("/api/chat", gate.Protect("chat", true, chatHandler.Chat)...)
	app.Post("/api/generate-document", gate.Protect("document", true, documentHandler.Generate)...)

	app.Use(func(c *fiber.Ctx) error {
		return shared.NewNotFoundError(nil, "Page not found")
	})

	return app
}

func ping(c *fiber.Ctx) error {
	c.Set(fiber.HeaderCacheControl, "max-age=10")
	return shared.ResponseOK(c, "pong")
}

func healthCheck(rateLimitSvc *RateLimitService) fiber.Handler {
	return func(c *fiber.Ctx) error {
		return shared.ResponseOK(c, fiber.Map{
			"status":             "healthy",
			"service":            SERVICE_NAME,
			"rate_limit_windows": rateLimitSvc.ActiveWindows(),
			"timestamp":          time.Now().Unix(),
		})
	}
}
