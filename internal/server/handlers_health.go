package server

import (
	"context"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/pysuper/titan/internal/version"
)

func (s *Server) handleLiveness(c echo.Context) error {
	uptime := s.clock.Now().Sub(s.startTime).Seconds()
	return c.JSON(200, map[string]any{
		"status":   "ok",
		"uptime":   uptime,
		"sessions": s.registry.Len(),
	})
}

func (s *Server) handleReadiness(c echo.Context) error {
	ctx, cancel := context.WithTimeout(c.Request().Context(), 5*time.Second)
	defer cancel()

	if s.redisClient != nil {
		if err := s.redisClient.Ping(ctx).Err(); err != nil {
			return c.JSON(503, map[string]any{
				"status":       "unhealthy",
				"failed_check": "redis",
				"error":        err.Error(),
			})
		}
	}

	return c.JSON(200, map[string]string{"status": "ready"})
}

func (s *Server) handleVersion(c echo.Context) error {
	return c.JSON(200, version.Get())
}
