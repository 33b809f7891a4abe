package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/Rune-Status/aj8/internal/util"
)

// Version is reported by the public endpoints. Release builds set it with
// -ldflags.
var Version = "dev"

func (s *Server) handlePing(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"service": "aj8",
		"version": Version,
	})
}

func (s *Server) handleServerInfo(c *gin.Context) {
	server := s.cfg.GetServer()
	sysInfo := util.GetSystemInfo()

	info := gin.H{
		"name":      server.Name,
		"release":   server.Release,
		"game_port": server.GamePort,
		"members":   server.Members,
		"version":   Version,
		"platform":  sysInfo.Platform,
		"state":     "starting",
		"players":   0,
		"capacity":  server.MaxPlayers,
	}
	if snap := s.deps.World.Snapshot(); snap != nil {
		info["state"] = snap.State
		info["players"] = len(snap.Players)
		info["capacity"] = snap.Capacity
		info["uptime_sec"] = int64(snap.Uptime().Seconds())
	}
	c.JSON(http.StatusOK, info)
}
