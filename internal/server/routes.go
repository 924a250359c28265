package server

import (
	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func (s *Server) registerRoutes() {
	// Observability endpoints
	s.echo.GET("/health/live", s.handleLiveness)
	s.echo.GET("/health/ready", s.handleReadiness)
	s.echo.GET("/metrics", echo.WrapHandler(promhttp.Handler()))
	s.echo.GET("/version", s.handleVersion)

	// Viewer connections
	s.echo.GET("/ws", s.handleWebSocket)

	// Playback control plane
	s.echo.GET("/control", s.handleControlQuery)
	s.echo.POST("/control", s.handleControlBody)
	s.echo.GET("/status", s.handleStatus)
	s.echo.GET("/sessions", s.handleSessions)
}
