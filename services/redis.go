package services

import (
	"context"
	"fmt"
	"time"

	appContext "github.com/alphabatem/common/context"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
)

// RedisService holds the client used by the shared-store rate limiter.
type RedisService struct {
	appContext.DefaultService
	redis *redis.Client

	addr     string
	password string
	db       int
	enabled  bool
}

const REDIS_SVC = "redis_svc"

func (svc RedisService) Id() string {
	return REDIS_SVC
}

func (svc *RedisService) Configure(ctx *appContext.Context) error {
	svc.addr = getEnv("REDIS_ADDR", "localhost:6379")
	svc.password = getEnv("REDIS_PASSWORD", "")
	svc.db = getEnvInt("REDIS_DB", 0)
	svc.enabled = rateLimitStore() == rateLimitStoreRedis
	if !svc.enabled {
		return svc.DefaultService.Configure(ctx)
	}

	svc.redis = redis.NewClient(&redis.Options{
		Addr:         svc.addr,
		Password:     svc.password,
		DB:           svc.db,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	return svc.DefaultService.Configure(ctx)
}

func (svc *RedisService) Start() error {
	if !svc.enabled {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := svc.redis.Ping(ctx).Result(); err != nil {
		return fmt.Errorf("failed to connect to Redis: %w", err)
	}

	log.WithField("addr", svc.addr).Info("Connected to Redis")
	return nil
}

func (svc *RedisService) Shutdown() {
	if svc.redis != nil {
		_ = svc.redis.Close()
	}
}

func (svc *RedisService) GetClient() *redis.Client {
	return svc.redis
}
