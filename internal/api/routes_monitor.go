package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/energizer-project/netsync/internal/protocol"
	"github.com/energizer-project/netsync/internal/util"
)

func (s *Server) handleGetSessions(c *gin.Context) {
	snap := s.monitor.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"sessions": snap.Sessions,
		"total":    len(snap.Sessions),
	})
}

func (s *Server) handleGetSession(c *gin.Context) {
	id, ok := parseNetID(c)
	if !ok {
		return
	}

	info, found := s.monitor.Snapshot().Session(id)
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "session not found", "net_id": id})
		return
	}
	c.JSON(http.StatusOK, info)
}

func (s *Server) handleGetEntities(c *gin.Context) {
	snap := s.monitor.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"entities": snap.Entities,
		"total":    len(snap.Entities),
	})
}

func (s *Server) handleGetStats(c *gin.Context) {
	snap := s.monitor.Snapshot()
	c.JSON(http.StatusOK, gin.H{
		"time":  snap.Time,
		"stats": snap.Stats,
	})
}

// handleGetTicks returns tick timing, including recent long ticks.
func (s *Server) handleGetTicks(c *gin.Context) {
	ticks := s.monitor.Snapshot().Ticks
	c.JSON(http.StatusOK, gin.H{
		"count":      ticks.Count,
		"long_ticks": ticks.LongTicks,
		"last_ms":    ms(ticks.Last),
		"avg_ms":     ms(ticks.Avg),
		"max_ms":     ms(ticks.Max),
		"recent":     ticks.Recent,
	})
}

// handleGetSystem returns host and process resource usage.
func (s *Server) handleGetSystem(c *gin.Context) {
	cpuPercent, err := util.GetCPUUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	mem, err := util.GetMemoryUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	proc, err := util.GetProcessUsage()
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"cpu_percent": cpuPercent,
		"memory":      mem,
		"process":     proc,
	})
}

// handleGetHistory returns the most recent sessions from the audit log.
func (s *Server) handleGetHistory(c *gin.Context) {
	if s.history == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "session history is disabled"})
		return
	}

	limit := queryCount(c, "limit", 50, 500)
	records, err := s.history.Recent(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"sessions": records,
		"count":    len(records),
	})
}

func (s *Server) handleGetLogEntries(c *gin.Context) {
	count := queryCount(c, "count", 100, 1000)
	entries, err := readRecentLogEntries(s.cfg.GetLogging().Path(), count)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"entries": entries,
		"count":   len(entries),
	})
}

// logEntry is a parsed log line.
type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// readRecentLogEntries parses the last count JSON lines of the log file.
// A missing file yields no entries.
func readRecentLogEntries(path string, count int) ([]logEntry, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return []logEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	lines := strings.Split(string(data), "\n")
	start := len(lines) - count - 1
	if start < 0 {
		start = 0
	}

	knownKeys := map[string]bool{
		"level": true, "time": true, "message": true,
		"caller": true, "app": true,
	}

	result := make([]logEntry, 0, count)
	for _, line := range lines[start:] {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		var raw map[string]interface{}
		if err := json.Unmarshal([]byte(line), &raw); err != nil {
			result = append(result, logEntry{Message: line})
			continue
		}

		entry := logEntry{
			Level:   stringFromMap(raw, "level"),
			Message: stringFromMap(raw, "message"),
		}
		if t, ok := raw["time"]; ok {
			entry.Timestamp = fmt.Sprintf("%v", t)
		}

		extra := make(map[string]interface{})
		for k, v := range raw {
			if !knownKeys[k] {
				extra[k] = v
			}
		}
		if len(extra) > 0 {
			entry.Fields = extra
		}
		result = append(result, entry)
	}

	if len(result) > count {
		result = result[len(result)-count:]
	}
	return result, nil
}

func stringFromMap(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}

// parseNetID reads the :id path parameter, writing a 400 on failure.
func parseNetID(c *gin.Context) (protocol.NetworkID, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid network id"})
		return 0, false
	}
	return protocol.NetworkID(id), true
}

func ms(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

func queryCount(c *gin.Context, key string, def, max int) int {
	n, err := strconv.Atoi(c.DefaultQuery(key, strconv.Itoa(def)))
	if err != nil || n < 1 {
		return def
	}
	if n > max {
		return max
	}
	return n
}
