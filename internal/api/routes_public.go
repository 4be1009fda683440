package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/netsync/internal/util"
)

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "netsync",
		"version": Version,
	})
}

func (s *Server) handleGetVersion(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"version": Version,
		"name":    "netsync",
	})
}

// handleGetServerInfo returns the bound address, population and host facts.
func (s *Server) handleGetServerInfo(c *gin.Context) {
	snap := s.monitor.Snapshot()
	sysInfo := util.GetSystemInfo()
	network := s.cfg.GetNetwork()

	c.JSON(http.StatusOK, gin.H{
		"addr":            snap.Addr,
		"sessions":        len(snap.Sessions),
		"entities":        len(snap.Entities),
		"tick_rate_hz":    network.TickRateHz,
		"replication_hz":  network.ReplicationRateHz,
		"hostname":        sysInfo.Hostname,
		"os":              sysInfo.OS,
		"cpu_model":       sysInfo.CPUModel,
		"cpu_cores":       sysInfo.CPUCores,
		"total_memory_mb": sysInfo.TotalMemory,
		"uptime_sec":      sysInfo.Uptime,
		"go_version":      sysInfo.GoVersion,
	})
}
