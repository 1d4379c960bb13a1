package server

import (
	"crypto/subtle"
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// Camera names accepted by the video endpoints.
const (
	CameraFront  = "front_center"
	CameraBottom = "bottom_center"
)

func (s *Server) getHealth(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) getStatus(c *gin.Context) {
	s.mu.RLock()
	var telem any = gin.H{}
	if s.latest != nil {
		telem = s.latest
	}
	s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{
		"connected": s.Vehicle.Connected(),
		"telemetry": telem,
		"clients":   s.hub.clientCount() + int(s.streams.Load()),
		"vehicle":   s.Vehicle.State(),
	})
}

type commandBody struct {
	AltitudeM *float64 `json:"altitude_m"`
}

func (s *Server) postCommand(c *gin.Context) {
	action := c.Param("action")
	if !s.authorized(c.Query("token")) {
		c.JSON(http.StatusUnauthorized, gin.H{"status": "error", "detail": "Invalid API key"})
		return
	}
	if !KnownAction(action) {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "detail": "Unknown command: " + action})
		return
	}

	alt := DefaultTakeoffAltitude
	if action == ActionTakeoff {
		var body commandBody
		if c.Request.ContentLength > 0 {
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"status": "error", "detail": "Invalid request body"})
				return
			}
		}
		if body.AltitudeM != nil {
			alt = *body.AltitudeM
		}
		if q := c.Query("altitude_m"); q != "" {
			v, err := strconv.ParseFloat(q, 64)
			if err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"status": "error", "detail": "Invalid altitude_m"})
				return
			}
			alt = v
		}
	}

	detail, err := s.Vehicle.Execute(action, alt)
	switch {
	case errors.Is(err, ErrNotConnected):
		c.JSON(http.StatusServiceUnavailable, gin.H{"status": "error", "detail": "Drone not connected"})
		return
	case err != nil:
		s.log.Warn("command rejected", "action", action, "err", err)
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "detail": err.Error()})
		return
	}
	s.log.Info("command accepted", "action", action, "detail", detail)
	c.JSON(http.StatusOK, gin.H{"status": "ok", "detail": detail})
}

func (s *Server) authorized(token string) bool {
	return subtle.ConstantTimeCompare([]byte(token), []byte(s.apiKey)) == 1
}

func (s *Server) getVideoStatus(c *gin.Context) {
	s.mu.RLock()
	cam := s.camera
	s.mu.RUnlock()
	c.JSON(http.StatusOK, gin.H{"connected": false, "camera": cam})
}

func (s *Server) postCamera(c *gin.Context) {
	name := c.Param("name")
	if name != CameraFront && name != CameraBottom {
		c.JSON(http.StatusBadRequest, gin.H{"status": "error", "detail": "Invalid camera name"})
		return
	}
	s.mu.Lock()
	s.camera = name
	s.mu.Unlock()
	c.JSON(http.StatusOK, gin.H{"status": "ok", "camera": name})
}
