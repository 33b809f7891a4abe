// Package config handles configuration loading, validation, and persistence
// for the aj8 game server.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/Rune-Status/aj8/internal/model"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "config.json"
	DefaultAPIPort    = 5000
	DefaultGamePort   = 43594
	DefaultRelease    = 317
	DefaultTickMillis = 600
	MaxPlayerCapacity = 2047
)

// Config is the root configuration structure for aj8.
type Config struct {
	mu   sync.RWMutex
	path string

	Server   ServerConfig   `json:"server"`
	API      APIConfig      `json:"api"`
	Database DatabaseConfig `json:"database"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Security SecurityConfig `json:"security"`
	Logging  LoggingConfig  `json:"logging"`
}

// ServerConfig contains the game world and listener settings.
type ServerConfig struct {
	Name        string `json:"name"`
	BindAddress string `json:"bind_address"`
	GamePort    int    `json:"game_port"`
	Release     int    `json:"release"`

	// World
	TickIntervalMillis int            `json:"tick_interval_ms"`
	MaxPlayers         int            `json:"max_players"`
	MessagesPerPulse   int            `json:"messages_per_pulse"`
	Spawn              model.Position `json:"spawn"`
	Members            bool           `json:"members"`
	AutoRegister       bool           `json:"auto_register"`
	AutosaveTicks      int            `json:"autosave_ticks"`
	StatusIntervalSec  int            `json:"status_interval_sec"`

	// Connections
	LoginTimeoutSec      int `json:"login_timeout_sec"`
	IdleTimeoutSec       int `json:"idle_timeout_sec"`
	MaxPendingLogins     int `json:"max_pending_logins"`
	ConnectionsPerSecond int `json:"connections_per_ip_per_sec"`
	OutboundQueueSize    int `json:"outbound_queue_size"`
}

// TickInterval returns the world tick interval as a duration.
func (s ServerConfig) TickInterval() time.Duration {
	return time.Duration(s.TickIntervalMillis) * time.Millisecond
}

// LoginTimeout returns how long a client may take to finish the handshake.
func (s ServerConfig) LoginTimeout() time.Duration {
	return time.Duration(s.LoginTimeoutSec) * time.Second
}

// IdleTimeout returns how long a logged in client may stay silent.
func (s ServerConfig) IdleTimeout() time.Duration {
	return time.Duration(s.IdleTimeoutSec) * time.Second
}

// APIConfig holds the REST API settings.
type APIConfig struct {
	Enabled bool   `json:"enabled"`
	Port    int    `json:"port"`
	Token   string `json:"token"`
}

// DatabaseConfig holds the player database settings.
type DatabaseConfig struct {
	Path string `json:"path"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled   bool   `json:"enabled"`
	BrokerURL string `json:"broker_url"`
	Port      int    `json:"port"`
	UseTLS    bool   `json:"use_tls"`
	CertFile  string `json:"cert_file"`
	KeyFile   string `json:"key_file"`
	CAFile    string `json:"ca_file"`
	ClientID  string `json:"client_id"`
}

// SecurityConfig holds security-related settings.
type SecurityConfig struct {
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	IPWhitelist    []string `json:"ip_whitelist"`
	AuthDisabled   bool     `json:"auth_disabled"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level      string `json:"level"`
	Directory  string `json:"directory"`
	MaxSizeMB  int    `json:"max_size_mb"`
	MaxBackups int    `json:"max_backups"`
	MaxAgeDays int    `json:"max_age_days"`
	Compress   bool   `json:"compress"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Name:                 "aj8",
			BindAddress:          "0.0.0.0",
			GamePort:             DefaultGamePort,
			Release:              DefaultRelease,
			TickIntervalMillis:   DefaultTickMillis,
			MaxPlayers:           2000,
			MessagesPerPulse:     10,
			Spawn:                model.Position{X: 3222, Y: 3222},
			AutoRegister:         true,
			AutosaveTicks:        500,
			StatusIntervalSec:    30,
			LoginTimeoutSec:      5,
			IdleTimeoutSec:       60,
			MaxPendingLogins:     64,
			ConnectionsPerSecond: 2,
			OutboundQueueSize:    256,
		},
		API: APIConfig{
			Enabled: true,
			Port:    DefaultAPIPort,
		},
		Database: DatabaseConfig{
			Path: filepath.Join("data", "players.db"),
		},
		MQTT: MQTTConfig{
			Enabled: false,
			Port:    1883,
		},
		Security: SecurityConfig{
			RateLimitRPS: 100,
			AuthDisabled: true,
		},
		Logging: LoggingConfig{
			Level:      "info",
			Directory:  "logs",
			MaxSizeMB:  10,
			MaxBackups: 5,
			MaxAgeDays: 28,
		},
	}
}

// Load reads configuration from a JSON file.
func Load(configDir string) (*Config, error) {
	configPath := filepath.Join(configDir, DefaultConfigFile)

	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			log.Info().Str("path", configPath).Msg("config file not found, creating default")
			cfg := DefaultConfig()
			cfg.path = configPath
			if saveErr := cfg.Save(); saveErr != nil {
				return nil, fmt.Errorf("failed to save default config: %w", saveErr)
			}
			return cfg, nil
		}
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	cfg := DefaultConfig() // Start with defaults, then overlay
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Persist fields added since the file was written.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	dir := filepath.Dir(c.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(c, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(c.path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	log.Debug().Str("path", c.path).Msg("configuration saved")
	return nil
}

// GetServer returns a copy of the server configuration.
func (c *Config) GetServer() ServerConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server
}

// SetServer updates the server configuration.
func (c *Config) SetServer(s ServerConfig) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Server = s
}

// GetAPI returns a copy of the API configuration.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.API
}

// GetSecurity returns a copy of the security configuration.
func (c *Config) GetSecurity() SecurityConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Security
}

// GetMQTT returns a copy of the MQTT configuration.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetLogging returns a copy of the logging configuration.
func (c *Config) GetLogging() LoggingConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// UpdateServerField updates a single server field by its JSON key.
func (c *Config) UpdateServerField(key string, value interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	data, _ := json.Marshal(c.Server)
	m := make(map[string]interface{})
	json.Unmarshal(data, &m)

	if _, ok := m[key]; !ok {
		return fmt.Errorf("unknown server field %q", key)
	}
	m[key] = value

	updated, _ := json.Marshal(m)
	var next ServerConfig
	if err := json.Unmarshal(updated, &next); err != nil {
		return fmt.Errorf("failed to update field %s: %w", key, err)
	}
	c.Server = next
	return nil
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath changes where Save writes.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}

// IsFirstRun returns true if the configuration needs initial setup.
func (c *Config) IsFirstRun() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Server.Name == "" || (!c.Security.AuthDisabled && c.API.Token == "")
}
