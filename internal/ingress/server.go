// Package ingress is the HTTP side of the bot: the Telegram webhook,
// a health probe and the Prometheus endpoint.
//
// Middleware order: RequestID, AccessLog, Recovery, body limit, metrics.
// The webhook always answers 200 once an update is accepted, whatever
// the business outcome, so Telegram never redelivers it.
package ingress

import (
	"context"
	"crypto/subtle"
	"errors"
	"io"
	stdlog "log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"relaybot/internal/metrics"
	kit "relaybot/internal/transport"
	"relaybot/internal/transport/telegram"
	logx "relaybot/pkg/logx"
)

const secretHeader = "X-Telegram-Bot-Api-Secret-Token"

type Config struct {
	Listen  string
	Path    string
	Secret  string
	MaxBody int64
	// HealthOnly serves /healthz and /metrics without the webhook route
	// (polling mode).
	HealthOnly bool
}

type Handler func(ctx context.Context, up kit.Update)

// Hooks are optional observers.
type Hooks struct {
	// Unsupported is called for well-formed updates the bot does not handle.
	Unsupported func(err error)
	// Health backs GET /healthz; nil means always healthy.
	Health func(ctx context.Context) error
}

type Server struct {
	cfg    Config
	handle Handler
	hooks  Hooks
	log    logx.Logger
	engine *gin.Engine
	srv    *http.Server
}

func New(cfg Config, handle Handler, hooks Hooks, log logx.Logger) *Server {
	if cfg.Path == "" {
		cfg.Path = "/"
	}
	if !strings.HasPrefix(cfg.Path, "/") {
		cfg.Path = "/" + cfg.Path
	}
	if cfg.MaxBody <= 0 {
		cfg.MaxBody = 1 << 20
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	s := &Server{cfg: cfg, handle: handle, hooks: hooks, log: log}
	s.engine = s.routes()
	return s
}

func (s *Server) routes() *gin.Engine {
	r := gin.New()
	r.Use(RequestID())
	r.Use(AccessLog(s.log))
	r.Use(Recovery(s.log))
	r.Use(limitBody(s.cfg.MaxBody))
	r.Use(metrics.HTTP())

	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	r.GET("/healthz", s.health)
	if !s.cfg.HealthOnly {
		r.POST(s.cfg.Path, s.webhook)
	}
	return r
}

// Handler exposes the engine for tests and custom listeners.
func (s *Server) Handler() http.Handler { return s.engine }

func (s *Server) health(c *gin.Context) {
	if s.hooks.Health != nil {
		ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
		defer cancel()
		if err := s.hooks.Health(ctx); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) webhook(c *gin.Context) {
	if c.ContentType() != "application/json" {
		c.AbortWithStatus(http.StatusForbidden)
		return
	}
	if s.cfg.Secret != "" {
		got := c.GetHeader(secretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(s.cfg.Secret)) != 1 {
			c.AbortWithStatus(http.StatusUnauthorized)
			return
		}
	}

	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		var tooBig *http.MaxBytesError
		if errors.As(err, &tooBig) {
			c.AbortWithStatus(http.StatusRequestEntityTooLarge)
			return
		}
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	up, err := telegram.DecodeUpdate(body)
	switch {
	case errors.Is(err, telegram.ErrUnsupportedUpdate):
		s.log.Debug("unsupported update", logx.String("request_id", requestID(c)))
		if s.hooks.Unsupported != nil {
			s.hooks.Unsupported(err)
		}
		c.Status(http.StatusOK)
		return
	case err != nil:
		s.log.Warn("malformed update", logx.String("request_id", requestID(c)), logx.Err(err))
		c.AbortWithStatus(http.StatusBadRequest)
		return
	}

	s.handle(c.Request.Context(), up)
	c.Status(http.StatusOK)
}

// errorLog routes net/http's own errors (TLS handshakes, hijack failures)
// into the structured log.
func (s *Server) errorLog() *stdlog.Logger {
	zl := s.log.Zerolog().With().Str("comp", "ingress").Str("src", "net/http").Logger()
	return stdlog.New(zl, "", 0)
}

// ListenAndServe blocks until ctx is done, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.srv = &http.Server{
		Addr:              s.cfg.Listen,
		Handler:           s.engine,
		ReadHeaderTimeout: 10 * time.Second,
		ErrorLog:          s.errorLog(),
	}
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("ingress listening", logx.String("addr", s.cfg.Listen), logx.String("webhook_path", s.cfg.Path))
		errCh <- s.srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		sctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := s.srv.Shutdown(sctx)
		s.log.Info("ingress stopped")
		return err
	}
}
