package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"

	"github.com/Rune-Status/aj8/internal/config"
	"github.com/Rune-Status/aj8/internal/events"
)

type serverFieldRequest struct {
	Key   string      `json:"key" binding:"required"`
	Value interface{} `json:"value"`
}

// handleGetConfig returns the configuration with secrets removed.
func (s *Server) handleGetConfig(c *gin.Context) {
	apiCfg := s.cfg.GetAPI()
	if apiCfg.Token != "" {
		apiCfg.Token = "********"
	}
	c.JSON(http.StatusOK, gin.H{
		"server":   s.cfg.GetServer(),
		"api":      apiCfg,
		"mqtt":     s.cfg.GetMQTT(),
		"security": s.cfg.GetSecurity(),
		"logging":  s.cfg.GetLogging(),
	})
}

// handleSetServerField updates one server setting. Changes that affect the
// world or the listener apply on the next restart.
func (s *Server) handleSetServerField(c *gin.Context) {
	var req serverFieldRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	previous := s.cfg.GetServer()
	if err := s.cfg.UpdateServerField(req.Key, req.Value); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if result := config.Validate(s.cfg); !result.IsValid() {
		s.cfg.SetServer(previous)
		c.JSON(http.StatusBadRequest, gin.H{"error": result.Errors[0].Error()})
		return
	}
	if err := s.cfg.Save(); err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to save config"})
		return
	}

	if s.deps.Publisher != nil {
		s.deps.Publisher.Emit(c.Request.Context(), events.New(events.EventConfigChanged, "api", events.ConfigChangedPayload{
			Section: "server",
			Key:     req.Key,
			Value:   req.Value,
		}))
	}

	operator, _ := c.Get("operator")
	log.Info().Str("key", req.Key).Interface("operator", operator).Msg("API: server config updated")
	c.JSON(http.StatusOK, gin.H{"status": "updated", "server": s.cfg.GetServer()})
}
