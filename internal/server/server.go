// Package server exposes the Stripe webhook and health probes over HTTP.
package server

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
	"github.com/stripe/stripe-go/v76"
)

// maxWebhookBody caps webhook payloads.
const maxWebhookBody = 64 << 10

// Pinger reports whether a dependency is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}

// EventHandler verifies and applies Stripe webhook events.
type EventHandler interface {
	ConstructEvent(payload []byte, header string) (stripe.Event, error)
	HandleEvent(ctx context.Context, event stripe.Event) error
}

// Options configure the HTTP server.
type Options struct {
	Addr         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	Debug        bool
}

// Server is the HTTP front of the bot.
type Server struct {
	engine *gin.Engine
	srv    *http.Server
	db     Pinger
	events EventHandler
}

// New builds the gin engine. A nil events handler leaves the webhook route
// unregistered.
func New(opts Options, db Pinger, events EventHandler) *Server {
	if opts.Debug {
		gin.SetMode(gin.DebugMode)
	} else {
		gin.SetMode(gin.ReleaseMode)
	}
	engine := gin.New()
	engine.Use(gin.Recovery(), requestLogger())

	s := &Server{engine: engine, db: db, events: events}
	engine.GET("/healthz", s.health)
	engine.GET("/readyz", s.ready)
	if events != nil {
		engine.POST("/stripe/webhook", s.webhook)
	}

	s.srv = &http.Server{
		Addr:         opts.Addr,
		Handler:      engine,
		ReadTimeout:  opts.ReadTimeout,
		WriteTimeout: opts.WriteTimeout,
	}
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Start serves until Shutdown. It returns nil after a clean shutdown.
func (s *Server) Start() error {
	log.Info().Str("addr", s.srv.Addr).Msg("HTTP server listening")
	if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests and waits for in-flight ones.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) ready(c *gin.Context) {
	if s.db == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_missing"})
		return
	}
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()
	if err := s.db.Ping(ctx); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "db_unreachable"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready"})
}

// webhook answers 400 only when the signature does not verify. Processing
// errors are logged and acknowledged so Stripe does not retry.
func (s *Server) webhook(c *gin.Context) {
	payload, err := io.ReadAll(io.LimitReader(c.Request.Body, maxWebhookBody))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
		return
	}

	event, err := s.events.ConstructEvent(payload, c.GetHeader("Stripe-Signature"))
	if err != nil {
		log.Warn().Err(err).Msg("Rejected Stripe webhook")
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid signature"})
		return
	}

	if err := s.events.HandleEvent(c.Request.Context(), event); err != nil {
		log.Error().Err(err).Str("event_id", event.ID).Str("type", string(event.Type)).Msg("Failed to handle Stripe event")
	} else {
		log.Info().Str("event_id", event.ID).Str("type", string(event.Type)).Msg("Stripe event handled")
	}
	c.JSON(http.StatusOK, gin.H{"received": true})
}

func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.Debug().
			Str("method", c.Request.Method).
			Str("path", c.FullPath()).
			Int("status", c.Writer.Status()).
			Dur("took", time.Since(start)).
			Msg("HTTP request")
	}
}
