package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/netsync/internal/events"
	"github.com/energizer-project/netsync/internal/server"
)

// handleKick queues a disconnect for a live session.
func (s *Server) handleKick(c *gin.Context) {
	id, ok := parseNetID(c)
	if !ok {
		return
	}

	info, found := s.monitor.Snapshot().Session(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "net_id": id})
		return
	}

	if err := s.monitor.RequestKick(id); err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, server.ErrKickQueueFull) {
			status = http.StatusServiceUnavailable
		}
		c.JSON(status, gin.H{"error": err.Error()})
		return
	}

	s.eventBus.Emit(c.Request.Context(), events.New(events.EventKickRequested, "api", events.SessionPayload{
		NetID:  uint32(id),
		Addr:   info.Addr,
		Reason: events.ReasonKick,
	}))

	log.Info().Uint32("net_id", uint32(id)).Str("addr", info.Addr).Str("client_ip", c.ClientIP()).
		Msg("API: kick requested")

	c.JSON(http.StatusAccepted, gin.H{
		"status": "kick queued",
		"net_id": id,
	})
}
