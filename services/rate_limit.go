package services

import (
	stdcontext "context"
	"strings"
	"time"

	"github.com/alphabatem/common/context"
	"github.com/saathi-legal/saathi_api/model"
	"github.com/saathi-legal/saathi_api/services/ratelimit"
	log "github.com/sirupsen/logrus"
)

// RateLimitService owns the limiter instance for the process. The in-memory
// limiter is the default; RATE_LIMIT_STORE=redis shares windows between
// instances through RedisService.
type RateLimitService struct {
	context.DefaultService

	config        *model.RateLimitConfig
	store         string
	failOpen      bool
	sweepInterval time.Duration

	limiter ratelimit.Limiter
	memory  *ratelimit.InMemoryLimiter
	now     func() time.Time
	closed  chan struct{}
}

const RATE_LIMIT_SVC = "rate_limit_svc"

// NewRateLimitService wraps an existing limiter, mainly for tests.
func NewRateLimitService(limiter ratelimit.Limiter, cfg ratelimit.Config, failOpen bool, now func() time.Time) *RateLimitService {
	if now == nil {
		now = time.Now
	}
	svc := &RateLimitService{
		config:   newRateLimitConfig(cfg),
		failOpen: failOpen,
		limiter:  limiter,
		now:      now,
	}
	if mem, ok := limiter.(*ratelimit.InMemoryLimiter); ok {
		svc.memory = mem
	}
	return svc
}

func newRateLimitConfig(cfg ratelimit.Config) *model.RateLimitConfig {
	return &model.RateLimitConfig{
		EndpointType: "gated",
		MaxRequests:  cfg.MaxRequests,
		WindowSize:   cfg.Window,
		Description:  "Chat and document generation rate limit per anonymous identifier",
		IsActive:     true,
	}
}

const (
	rateLimitStoreMemory = "memory"
	rateLimitStoreRedis  = "redis"
)

// rateLimitStore reads RATE_LIMIT_STORE case-insensitively.
func rateLimitStore() string {
	return strings.ToLower(strings.TrimSpace(getEnv("RATE_LIMIT_STORE", rateLimitStoreMemory)))
}

func (svc RateLimitService) Id() string {
	return RATE_LIMIT_SVC
}

func (svc *RateLimitService) Configure(ctx *context.Context) error {
	svc.config = newRateLimitConfig(ratelimit.Config{
		MaxRequests: getEnvInt("RATE_LIMIT_MAX_REQUESTS", ratelimit.DefaultMaxRequests),
		Window:      getEnvDuration("RATE_LIMIT_WINDOW", ratelimit.DefaultWindow),
	})
	svc.store = rateLimitStore()
	svc.failOpen = getEnvBool("RATE_LIMIT_FAIL_OPEN", false)
	svc.sweepInterval = getEnvDuration("RATE_LIMIT_SWEEP_INTERVAL", 5*time.Minute)
	svc.now = time.Now

	return svc.DefaultService.Configure(ctx)
}

func (svc *RateLimitService) Start() error {
	cfg := svc.limiterConfig()

	switch svc.store {
	case rateLimitStoreRedis:
		redisSvc := svc.Service(REDIS_SVC).(*RedisService)
		svc.limiter = ratelimit.NewRedis(redisSvc.GetClient(), cfg)
	default:
		svc.memory = ratelimit.NewInMemory(cfg, ratelimit.WithSweepInterval(cfg.Window))
		svc.limiter = svc.memory
	}

	log.WithFields(log.Fields{
		"store":        svc.store,
		"max_requests": cfg.MaxRequests,
		"window":       cfg.Window.String(),
		"fail_open":    svc.failOpen,
	}).Info("Rate limiter configured")

	if svc.memory != nil {
		if svc.sweepInterval <= 0 {
			svc.sweepInterval = cfg.Window
		}
		svc.closed = make(chan struct{})
		go svc.startCleanupJob(svc.closed)
	}

	return nil
}

func (svc *RateLimitService) Shutdown() {
	if svc.closed != nil {
		close(svc.closed)
		svc.closed = nil
	}
}

func (svc *RateLimitService) limiterConfig() ratelimit.Config {
	return ratelimit.Config{
		MaxRequests: svc.config.MaxRequests,
		Window:      svc.config.WindowSize,
	}
}

// Admit checks key against the limiter at the current time.
func (svc *RateLimitService) Admit(ctx stdcontext.Context, key string) (ratelimit.Decision, error) {
	return svc.limiter.Admit(ctx, key, svc.now())
}

// FailOpen reports whether limiter errors let requests through. The default
// is to deny.
func (svc *RateLimitService) FailOpen() bool {
	return svc.failOpen
}

func (svc *RateLimitService) Config() model.RateLimitConfig {
	return *svc.config
}

// ActiveWindows returns the windows held in memory, -1 for a shared store.
func (svc *RateLimitService) ActiveWindows() int {
	if svc.memory == nil {
		return -1
	}
	return svc.memory.Len()
}

func (svc *RateLimitService) CleanupOldRecords() int {
	if svc.memory == nil {
		return 0
	}
	return svc.memory.Sweep(svc.now())
}

func (svc *RateLimitService) startCleanupJob(closed <-chan struct{}) {
	ticker := time.NewTicker(svc.sweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			removed := svc.CleanupOldRecords()
			windowsGauge.Set(float64(svc.ActiveWindows()))
			log.WithFields(log.Fields{
				"removed": removed,
				"active":  svc.ActiveWindows(),
			}).Debug("Rate limit cleanup completed")
		case <-closed:
			return
		}
	}
}
