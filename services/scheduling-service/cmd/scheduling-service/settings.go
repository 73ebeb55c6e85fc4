package main

import (
	"errors"
	"fmt"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/config"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/model"
)

type settings struct {
	service     string
	port        string
	grpcPort    string
	databaseURL string
	redisURL    string
	kafka       string
	groupID     string
	tplTopic    string
	jwtSecret   string
	jwksURL     string
	autoMigrate bool

	txTimeout   time.Duration
	sweepAt     model.Minute
	sweepZone   *time.Location
	defaultZone *time.Location
	sweepLease  time.Duration

	publicLimit  int
	publicWindow time.Duration
	bodyLimit    int64
}

func loadSettings() (settings, error) {
	s := settings{
		service:     config.String("SERVICE_NAME", "scheduling-service"),
		redisURL:    config.String("REDIS_URL", ""),
		kafka:       config.String("KAFKA_BROKERS", ""),
		groupID:     config.String("KAFKA_GROUP_ID", "scheduling-service"),
		tplTopic:    config.String("KAFKA_TEMPLATE_TOPIC", "schedule.template.updated.v1"),
		jwtSecret:   config.String("JWT_SECRET", ""),
		jwksURL:     config.String("JWKS_URL", ""),
		autoMigrate: config.Bool("AUTO_MIGRATE", false),
	}
	var errs []error
	collect := func(err error) {
		if err != nil {
			errs = append(errs, err)
		}
	}
	var err error
	s.port, err = config.Port("PORT", "8083")
	collect(err)
	s.grpcPort, err = config.Port("GRPC_PORT", "9093")
	collect(err)
	s.databaseURL, err = config.RequiredString("DATABASE_URL")
	collect(err)
	s.txTimeout, err = config.Duration("TX_TIMEOUT", 5*time.Second)
	collect(err)
	s.sweepZone, err = config.Location("SWEEP_TIMEZONE", "UTC")
	collect(err)
	s.defaultZone, err = config.Location("DEFAULT_TIMEZONE", "UTC")
	collect(err)
	s.sweepLease, err = config.Duration("SWEEP_LEASE_TTL", 10*time.Minute)
	collect(err)
	s.publicLimit, err = config.Int("PUBLIC_RATE_LIMIT", 30)
	collect(err)
	s.publicWindow, err = config.Duration("PUBLIC_RATE_WINDOW", time.Minute)
	collect(err)
	bodyLimit, err := config.Int("HTTP_BODY_LIMIT_BYTES", 1<<20)
	collect(err)
	s.bodyLimit = int64(bodyLimit)

	at := config.String("SWEEP_AT", "00:05")
	s.sweepAt, err = model.ParseMinute(at)
	if err == nil && !s.sweepAt.Valid() {
		err = errors.New("must be before 24:00")
	}
	if err != nil {
		collect(fmt.Errorf("SWEEP_AT %q: %w", at, err))
	}
	if s.txTimeout <= 0 {
		collect(errors.New("TX_TIMEOUT must be positive"))
	}
	return s, errors.Join(errs...)
}

// requireAuth checks the settings only serve needs.
func (s settings) requireAuth() error {
	if s.jwtSecret == "" && s.jwksURL == "" {
		return errors.New("JWT_SECRET or JWKS_URL is required")
	}
	return nil
}
