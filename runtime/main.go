package main

import (
	"os"
	"strings"

	"github.com/alphabatem/common/context"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/saathi-legal/saathi_api/services"
	"github.com/sirupsen/logrus"
)

func main() {
	err := godotenv.Load()
	if err != nil {
		log.Warn().Err(err).Msg("No .env file loaded, using process environment")
	}

	configureLogging(os.Getenv("LOG_LEVEL"))

	ctx, err := context.NewCtx(
		&services.MonitoringService{},

		&services.SqliteService{},
		&services.PostgresService{},
		&services.RedisService{},
		&services.MinIOService{},

		&services.ConsentService{},
		&services.RateLimitService{},
		&services.CollaboratorService{},

		&services.HttpService{},
	)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to configure services")
		return
	}

	err = ctx.Run()
	if err != nil {
		log.Fatal().Err(err).Msg("Service exited")
		return
	}
}

func configureLogging(level string) {
	logrus.SetFormatter(&logrus.JSONFormatter{})

	switch strings.ToUpper(level) {
	case "TRACE":
		logrus.SetLevel(logrus.TraceLevel)
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	case "DEBUG":
		logrus.SetLevel(logrus.DebugLevel)
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	case "WARN":
		logrus.SetLevel(logrus.WarnLevel)
		zerolog.SetGlobalLevel(zerolog.WarnLevel)
	case "ERROR":
		logrus.SetLevel(logrus.ErrorLevel)
		zerolog.SetGlobalLevel(zerolog.ErrorLevel)
	default:
		logrus.SetLevel(logrus.InfoLevel)
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}
