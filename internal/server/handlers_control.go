package server

import (
	"net/http"
	"strconv"

	"github.com/labstack/echo/v4"

	"github.com/pysuper/titan/internal/protocol"
	"github.com/pysuper/titan/internal/session"
)

// controlEnvelope is the JSON shape of every control-plane reply.
type controlEnvelope struct {
	Status  string         `json:"status"`
	Message string         `json:"message"`
	Code    string         `json:"code,omitempty"`
	Data    map[string]any `json:"data,omitempty"`
}

// handleControlQuery executes a playback command against the default
// session: GET /control?action=play_video&fps=10
func (s *Server) handleControlQuery(c echo.Context) error {
	action := c.QueryParam("action")
	if action == "" {
		return c.JSON(http.StatusBadRequest, controlEnvelope{
			Status:  "error",
			Message: "missing action parameter",
		})
	}

	cmd, ok := protocol.CommandForAction(action)
	if !ok {
		return c.JSON(http.StatusBadRequest, controlEnvelope{
			Status:  "error",
			Message: "unknown action: " + action,
		})
	}

	fps := 0
	if raw := c.QueryParam("fps"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return c.JSON(http.StatusBadRequest, controlEnvelope{
				Status:  "error",
				Message: "fps must be an integer",
			})
		}
		fps = n
	}

	return s.applyToDefault(c, cmd, fps, c.QueryParam("video_path"))
}

// handleControlBody sets the playback target:
// POST /control {"video_path": "...", "fps": 10}
func (s *Server) handleControlBody(c echo.Context) error {
	var body struct {
		VideoPath  string `json:"video_path"`
		ResultPath string `json:"result_path"`
		FPS        int    `json:"fps"`
	}
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, controlEnvelope{
			Status:  "error",
			Message: "invalid request body",
		})
	}

	path := body.VideoPath
	if path == "" {
		path = body.ResultPath
	}
	if path == "" {
		return c.JSON(http.StatusBadRequest, controlEnvelope{
			Status:  "error",
			Message: "missing video_path",
		})
	}

	return s.applyToDefault(c, protocol.CmdSetTarget, body.FPS, path)
}

func (s *Server) applyToDefault(c echo.Context, cmd protocol.Command, fps int, path string) error {
	sess, ok := s.registry.Default()
	if !ok {
		return c.JSON(http.StatusNotFound, controlEnvelope{
			Status:  "error",
			Message: "no active session",
		})
	}

	res := sess.Apply(cmd, fps, path)
	return c.JSON(statusForResult(res), controlEnvelope{
		Status:  res.Status,
		Message: res.Message,
		Code:    res.Code,
		Data:    res.Fields,
	})
}

// statusForResult maps a command result onto an HTTP status: caller
// mistakes map to 4xx, anything else to 200 or 500.
func statusForResult(res session.Result) int {
	if res.Status != "error" {
		return http.StatusOK
	}
	if res.Err != nil {
		return res.Err.HTTPStatus()
	}
	return http.StatusInternalServerError
}

func (s *Server) handleStatus(c echo.Context) error {
	sess, ok := s.registry.Default()
	if !ok {
		return c.JSON(http.StatusNotFound, controlEnvelope{
			Status:  "error",
			Message: "no active session",
		})
	}

	snap := sess.Playback()
	return c.JSON(http.StatusOK, controlEnvelope{
		Status:  "success",
		Message: "playback status",
		Data: map[string]any{
			"session_id":    sess.ID().String(),
			"video_status":  string(snap.State),
			"current_frame": snap.CurrentFrame,
			"total_frames":  snap.TotalFrames,
			"video_path":    snap.VideoPath,
		},
	})
}

func (s *Server) handleSessions(c echo.Context) error {
	sessions := s.registry.All()
	stats := make([]session.Stats, 0, len(sessions))
	for _, sess := range sessions {
		stats = append(stats, sess.Stats())
	}
	return c.JSON(http.StatusOK, controlEnvelope{
		Status:  "success",
		Message: "active sessions",
		Data: map[string]any{
			"count":    len(stats),
			"sessions": stats,
		},
	})
}
