package main

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/md-rashed-zaman/clinicdesk/libs/auth"
	"github.com/md-rashed-zaman/clinicdesk/libs/db"
	"github.com/md-rashed-zaman/clinicdesk/libs/grpcx"
	"github.com/md-rashed-zaman/clinicdesk/libs/httpx"
	"github.com/md-rashed-zaman/clinicdesk/libs/kafkax"
	otelx "github.com/md-rashed-zaman/clinicdesk/libs/otel"
	"github.com/md-rashed-zaman/clinicdesk/libs/redisx"
	"github.com/md-rashed-zaman/clinicdesk/libs/runtime"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/assignment"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/clock"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/handlers"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/outbox"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/scheduling"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/sweep"
	"github.com/md-rashed-zaman/clinicdesk/services/scheduling-service/internal/templatesync"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

func runServe(ctx context.Context, s settings) error {
	if err := s.requireAuth(); err != nil {
		return err
	}
	logger := runtime.NewLogger(s.service)

	otelCfg, err := otelx.ConfigFromEnv(s.service)
	if err != nil {
		return err
	}
	otelShutdown, err := otelx.Setup(ctx, otelCfg)
	if err != nil {
		logger.Error("otel setup failed", "err", err)
	} else {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = otelShutdown(shutdownCtx)
		}()
	}

	d, err := openDeps(ctx, s, logger)
	if err != nil {
		return err
	}
	defer d.close()

	clk := clock.System{}
	appts := scheduling.New(d.store, clk, logger, scheduling.Config{TxTimeout: s.txTimeout})
	assigns := assignment.New(d.store, clk, logger, s.txTimeout)
	sweeper := newSweeper(d, appts, s, logger)

	go sweep.NewScheduler(sweeper, s.sweepAt, s.sweepZone, clk, logger).Run(ctx)
	go outbox.NewPublisher(d.pool, d.outbox, logger, outbox.PublisherConfig{
		Brokers:   s.kafka,
		PollEvery: 2 * time.Second,
		BatchSize: 50,
	}).Run(ctx)
	if s.kafka != "" && s.tplTopic != "" {
		reader := templatesync.NewReader(templatesync.Config{Brokers: s.kafka, GroupID: s.groupID, Topic: s.tplTopic})
		go templatesync.NewConsumer(reader, logger, templatesync.NewSyncer(d.store, logger).Handle).Run(ctx)
	}

	var limiter httpx.Limiter = httpx.NewRateLimiter(s.publicLimit, s.publicWindow)
	checks := []runtime.ReadyCheck{
		{Name: "db", Check: db.ReadyCheck(d.pool)},
		{Name: "kafka", Check: kafkax.ReadyCheck(s.kafka)},
	}
	if d.rdb != nil {
		limiter = httpx.NewRedisRateLimiter(d.rdb, logger, httpx.RedisRateLimiterConfig{
			Limit:    s.publicLimit,
			Window:   s.publicWindow,
			Prefix:   s.service + ":public",
			FailOpen: true,
		})
		checks = append(checks, runtime.ReadyCheck{Name: "redis", Check: redisx.ReadyCheck(d.rdb)})
	}

	var jwks *auth.JWKSClient
	if s.jwksURL != "" {
		jwks = auth.NewJWKSClient(s.jwksURL, 5*time.Minute)
	}

	mux := runtime.NewBaseMuxWithReady(checks...)
	handlers.Routes(mux, handlers.Deps{
		Scheduling:    appts,
		Assignments:   assigns,
		Sweeper:       sweeper,
		Verifier:      auth.NewVerifier(s.jwtSecret, jwks),
		PublicLimiter: limiter,
		Logger:        logger,
	})
	httpHandler := httpx.Chain(mux,
		httpx.WithRequestID,
		httpx.WithAccessLog(logger),
		httpx.WithRecover(logger),
		httpx.WithBodyLimit(s.bodyLimit),
		httpx.WithJSONBodies,
	)
	httpHandler = otelhttp.NewHandler(httpHandler, "scheduling")
	srv := &http.Server{
		Addr:              ":" + s.port,
		Handler:           httpHandler,
		ReadHeaderTimeout: 5 * time.Second,
	}

	lis, err := net.Listen("tcp", ":"+s.grpcPort)
	if err != nil {
		return err
	}
	health := grpcx.NewHealthServer(logger, s.service, 10*time.Second, checks...)
	go func() {
		if err := health.Serve(ctx, lis); err != nil {
			logger.Error("grpc server error", "err", err)
		}
	}()

	go func() {
		logger.Info("http server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "err", err)
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down", "cause", context.Cause(ctx))
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("http server shutdown error", "err", err)
	}
	logger.Info("http server stopped")
	return nil
}
