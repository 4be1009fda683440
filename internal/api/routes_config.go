package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/netsync/internal/util"
)

// handleGetConfig returns the current configuration with secrets masked.
func (s *Server) handleGetConfig(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"path":   s.cfg.Path(),
		"config": s.cfg.View(),
	})
}

type logLevelRequest struct {
	Level   string `json:"level" binding:"required"`
	Persist bool   `json:"persist"`
}

// handleSetLogLevel changes the global log level, optionally saving it.
func (s *Server) handleSetLogLevel(c *gin.Context) {
	var req logLevelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if err := util.SetLevel(req.Level); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.cfg.SetLogLevel(req.Level)

	if req.Persist {
		if err := s.cfg.Save(); err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
			return
		}
	}

	log.Info().Str("level", req.Level).Bool("persist", req.Persist).Msg("API: log level updated")
	c.JSON(http.StatusOK, gin.H{
		"status": "updated",
		"level":  req.Level,
	})
}
