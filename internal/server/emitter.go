package server

import (
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// streamTelemetry writes one text/event-stream event per tick until the
// request context ends. Each request owns its ticker.
func (s *Server) streamTelemetry(c *gin.Context) {
	next := s.nextIndex()
	log := s.log.With("conn_id", uuid.NewString(), "remote", c.ClientIP())

	h := c.Writer.Header()
	h.Set("Content-Type", "text/event-stream")
	h.Set("Cache-Control", "no-cache")
	h.Set("Connection", "keep-alive")
	c.Status(http.StatusOK)
	c.Writer.Flush()

	s.streams.Add(1)
	defer s.streams.Add(-1)
	log.Info("telemetry stream opened", "counter", s.mode)

	ctx := c.Request.Context()
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info("telemetry stream closed")
			return
		case <-ticker.C:
			payload, err := s.gen.Generate(next(), true).Encode()
			if err != nil {
				log.Error("encode sample", "err", err)
				return
			}
			if _, err := fmt.Fprintf(c.Writer, "data: %s\n\n", payload); err != nil {
				log.Info("telemetry stream write failed", "err", err)
				return
			}
			c.Writer.Flush()
		}
	}
}
