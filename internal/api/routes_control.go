package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Rune-Status/aj8/internal/game"
)

type broadcastRequest struct {
	Text string `json:"text" binding:"required"`
}

type systemUpdateRequest struct {
	Seconds int `json:"seconds" binding:"required,min=1"`
}

func (s *Server) handleKick(c *gin.Context) {
	username := c.Param("username")
	err := s.deps.World.Kick(c.Request.Context(), username)
	switch {
	case errors.Is(err, game.ErrPlayerOffline):
		c.JSON(http.StatusNotFound, gin.H{"error": "player not online", "username": username})
		return
	case err != nil:
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	operator, _ := c.Get("operator")
	log.Info().Str("player", username).Interface("operator", operator).Msg("API: player kicked")
	c.JSON(http.StatusOK, gin.H{"status": "kicked", "username": username})
}

func (s *Server) handleBroadcast(c *gin.Context) {
	var req broadcastRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	text := strings.TrimSpace(req.Text)
	if text == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is empty"})
		return
	}
	if err := s.deps.World.Broadcast(text); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "sent", "text": text})
}

func (s *Server) handleSystemUpdate(c *gin.Context) {
	var req systemUpdateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tick := s.cfg.GetServer().TickInterval()
	ticks := int((time.Duration(req.Seconds)*time.Second + tick - 1) / tick)
	if err := s.deps.World.SystemUpdate(ticks); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}

	operator, _ := c.Get("operator")
	log.Warn().Int("seconds", req.Seconds).Interface("operator", operator).Msg("API: system update scheduled")
	c.JSON(http.StatusOK, gin.H{"status": "scheduled", "seconds": req.Seconds, "ticks": ticks})
}

func (s *Server) handleSave(c *gin.Context) {
	if err := s.deps.World.SaveAll(); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"status": "saving"})
}

func (s *Server) handleAcknowledgeAlert(c *gin.Context) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid alert id"})
		return
	}
	if err := s.deps.Alerts.AcknowledgeAlert(c.Request.Context(), id); err != nil {
		c.JSON(http.StatusNotFound, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"status": "acknowledged", "id": id})
}
