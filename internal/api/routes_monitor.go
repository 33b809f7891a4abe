package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Rune-Status/aj8/internal/game"
	"github.com/Rune-Status/aj8/internal/util"
)

func (s *Server) snapshot(c *gin.Context) (*game.Snapshot, bool) {
	snap := s.deps.World.Snapshot()
	if snap == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "world has not started"})
		return nil, false
	}
	return snap, true
}

func (s *Server) handlePlayers(c *gin.Context) {
	snap, ok := s.snapshot(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"players":  snap.Players,
		"online":   len(snap.Players),
		"capacity": snap.Capacity,
		"tick":     snap.Tick,
	})
}

func (s *Server) handlePlayer(c *gin.Context) {
	snap, ok := s.snapshot(c)
	if !ok {
		return
	}
	player, found := snap.Player(c.Param("username"))
	if !found {
		c.JSON(http.StatusNotFound, gin.H{"error": "player not online", "username": c.Param("username")})
		return
	}
	c.JSON(http.StatusOK, player)
}

func (s *Server) handleSessions(c *gin.Context) {
	sessions := s.deps.Sessions.Sessions()
	c.JSON(http.StatusOK, gin.H{
		"sessions": sessions,
		"count":    len(sessions),
	})
}

func (s *Server) handleSystem(c *gin.Context) {
	resp := gin.H{"system": util.GetSystemInfo()}

	if cpu, err := util.GetCPUUsage(); err == nil {
		resp["cpu_percent"] = cpu
	}
	if mem, err := util.GetMemoryUsage(); err == nil {
		resp["memory"] = mem
	}
	if proc, err := util.GetProcessUsage(); err == nil {
		resp["process"] = proc
	}
	if snap := s.deps.World.Snapshot(); snap != nil {
		resp["world"] = gin.H{
			"state":     snap.State,
			"tick":      snap.Tick,
			"tick_time": snap.TickTime.String(),
			"scheduler": snap.Scheduler,
			"uptime":    snap.Uptime().String(),
		}
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) handleLag(c *gin.Context) {
	c.JSON(http.StatusOK, s.deps.Lag.Stats())
}

func (s *Server) handleHealth(c *gin.Context) {
	status := http.StatusOK
	if !s.deps.Health.Healthy() {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, gin.H{
		"healthy": s.deps.Health.Healthy(),
		"checks":  s.deps.Health.Results(),
	})
}

func (s *Server) handleAlerts(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", "50"))
	if err != nil || limit < 1 || limit > 500 {
		limit = 50
	}
	alerts, err := s.deps.Alerts.GetUnacknowledgedAlerts(c.Request.Context(), limit)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"alerts": alerts, "count": len(alerts)})
}

func (s *Server) handleLogEntries(c *gin.Context) {
	count, err := strconv.Atoi(c.DefaultQuery("count", "100"))
	if err != nil || count < 1 {
		count = 100
	}
	count = min(count, 1000)

	entries, err := readRecentLogEntries(filepath.Join(s.cfg.GetLogging().Directory, "aj8.log"), count)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"entries": entries, "count": len(entries)})
}

// logEntry is one parsed zerolog JSON line.
type logEntry struct {
	Timestamp string                 `json:"timestamp"`
	Level     string                 `json:"level"`
	Message   string                 `json:"message"`
	Fields    map[string]interface{} `json:"fields,omitempty"`
}

// readRecentLogEntries parses the last count lines of the JSON log file.
func readRecentLogEntries(path string, count int) ([]logEntry, error) {
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return []logEntry{}, nil
	}
	if err != nil {
		return nil, err
	}

	lines := strings.Split(strings.TrimRight(string(data), "\n"), "\n")
	lines = lines[max(0, len(lines)-count):]

	knownKeys := map[string]bool{"level": true, "time": true, "message": true, "caller": true, "app": true}

	result := make([]logEntry, 0, len(lines))
	for _, line := range lines {
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
	return result, nil
}

func stringFromMap(m map[string]interface{}, key string) string {
	if v, ok := m[key]; ok {
		return fmt.Sprintf("%v", v)
	}
	return ""
}
