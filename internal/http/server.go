package http

import (
	"context"
	"net/http"
	"time"

	"github.com/jmehdipour/sms-inbox/internal/config"
	"github.com/jmehdipour/sms-inbox/internal/http/middleware"
	"github.com/jmehdipour/sms-inbox/internal/logger"
	"github.com/jmehdipour/sms-inbox/internal/metrics"
	"github.com/jmehdipour/sms-inbox/internal/repository"
	"github.com/jmehdipour/sms-inbox/internal/service/query"
	"github.com/jmehdipour/sms-inbox/internal/service/webhook"
	"github.com/jmehdipour/sms-inbox/internal/signature"
	"github.com/jmehdipour/sms-inbox/internal/util"
	"github.com/jmoiron/sqlx"
	"github.com/labstack/echo/v4"
	echoMid "github.com/labstack/echo/v4/middleware"
	"github.com/labstack/gommon/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Server struct {
	e   *echo.Echo
	log *zap.Logger
}

// NewServer wires repositories, services and routes. rds may be nil (no rate limit).
func NewServer(cfg config.Config, dbx *sqlx.DB, rds *redis.Client, zl *zap.Logger, reg *prometheus.Registry) *Server {
	// repos
	messagesRepo := repository.NewMessagesRepository(dbx)

	// capabilities
	counters := metrics.New(reg)
	sink := logger.NewZapSink(zl)
	gate := signature.NewGate(cfg.Webhook.Secret)
	if !gate.Configured() {
		zl.Warn("webhook secret is not set: every webhook will be rejected")
	}

	// services
	webhookSvc := webhook.New(gate, messagesRepo, counters)
	querySvc := query.New(messagesRepo)

	// echo
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.Logger.SetLevel(log.ERROR)
	e.Use(
		echoMid.RequestIDWithConfig(echoMid.RequestIDConfig{Generator: util.NewID}),
		middleware.RequestLogMiddleware(sink, counters),
		echoMid.Recover(),
	)

	e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	// health
	pingTimeout := cfg.Database.PingTimeout
	if pingTimeout <= 0 {
		pingTimeout = 3 * time.Second
	}
	e.GET("/health/live", liveHandler)
	e.GET("/health/ready", readyHandler(gate.Configured(), messagesRepo, pingTimeout))

	// middlewares
	rlMW := middleware.RateLimitMiddleware(middleware.RateLimitConfig{
		Redis:          rds,
		RPS:            cfg.RateLimit.RPS,
		KeyPrefix:      "rl:ip:",
		Window:         cfg.RateLimit.Window,
		RetryAfterHint: true,
		OnLimited:      webhookRejected(counters, webhook.ResultRateLimited),
	})
	bodyLimit := cfg.HTTP.BodyLimit
	if bodyLimit == "" {
		bodyLimit = "1M"
	}
	signatureHeader := cfg.Webhook.SignatureHeader
	if signatureHeader == "" {
		signatureHeader = "X-Signature"
	}

	// routes
	e.POST("/webhook", webhookHandler(webhookSvc, signatureHeader), rlMW, countTooLarge(counters), echoMid.BodyLimit(bodyLimit))
	e.GET("/messages", listMessagesHandler(querySvc))
	e.GET("/stats", statsHandler(querySvc))

	return &Server{e: e, log: zl}
}

// Handler exposes the router, e.g. for httptest.
func (s *Server) Handler() http.Handler { return s.e }

func (s *Server) Start(addr string) error {
	s.log.Info("http: listening", zap.String("addr", addr))
	return s.e.Start(addr)
}

func (s *Server) Shutdown(ctx context.Context) error { return s.e.Shutdown(ctx) }
