// Package server exposes the websocket endpoint and the HTTP control plane.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	goredis "github.com/redis/go-redis/v9"

	"github.com/pysuper/titan/internal/config"
	"github.com/pysuper/titan/internal/session"
)

type Server struct {
	echo     *echo.Echo
	config   *config.Config
	registry *session.Registry
	router   *session.Router
	loader   session.TargetLoader
	clock    clockwork.Clock

	// redisClient is optional; readiness skips the check when nil.
	redisClient *goredis.Client

	startTime time.Time
}

func NewServer(cfg *config.Config, registry *session.Registry, router *session.Router, loader session.TargetLoader, redisClient *goredis.Client, clock clockwork.Clock) *Server {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Middleware
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())

	srv := &Server{
		echo:        e,
		config:      cfg,
		registry:    registry,
		router:      router,
		loader:      loader,
		clock:       clock,
		redisClient: redisClient,
		startTime:   clock.Now(),
	}

	srv.registerRoutes()

	return srv
}

func (s *Server) Start() error {
	slog.Info("Starting server", "port", s.config.Port)
	return s.echo.Start(fmt.Sprintf(":%s", s.config.Port))
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.echo.Shutdown(ctx)
}

// sessionOptions builds the per-connection options from the server config.
func (s *Server) sessionOptions() session.Options {
	return session.Options{
		Clock:             s.clock,
		Loader:            s.loader,
		DefaultFPS:        s.config.DefaultFPS,
		HeartbeatInterval: s.config.HeartbeatInterval,
		HeartbeatTimeout:  s.config.HeartbeatTimeout,
		AuthToken:         s.config.AuthToken,
	}
}
