package config

import (
	"fmt"
	"net"
	"strings"
)

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("config validation error [%s]: %s", e.Field, e.Message)
}

// ValidationResult holds the results of configuration validation.
type ValidationResult struct {
	Errors   []ValidationError
	Warnings []ValidationError
}

// IsValid returns true if there are no validation errors.
func (r *ValidationResult) IsValid() bool {
	return len(r.Errors) == 0
}

// AddError adds a validation error.
func (r *ValidationResult) AddError(field, message string) {
	r.Errors = append(r.Errors, ValidationError{Field: field, Message: message})
}

// AddWarning adds a validation warning.
func (r *ValidationResult) AddWarning(field, message string) {
	r.Warnings = append(r.Warnings, ValidationError{Field: field, Message: message})
}

// Validate performs comprehensive validation of the configuration.
func Validate(cfg *Config) *ValidationResult {
	result := &ValidationResult{}

	validateServer(&cfg.Server, result)
	validateAPI(&cfg.API, &cfg.Security, result)
	validateServices(cfg, result)

	return result
}

func validateServer(s *ServerConfig, result *ValidationResult) {
	if strings.TrimSpace(s.Name) == "" {
		result.AddError("server.name", "server name is required")
	}
	if ip := net.ParseIP(s.BindAddress); ip == nil {
		result.AddError("server.bind_address", fmt.Sprintf("invalid bind address: %q", s.BindAddress))
	}
	validatePort(s.GamePort, "server.game_port", result)

	if s.Release != DefaultRelease {
		result.AddError("server.release", fmt.Sprintf("unsupported release %d (only %d is implemented)", s.Release, DefaultRelease))
	}

	// World
	if s.TickIntervalMillis < 50 {
		result.AddError("server.tick_interval_ms", "tick interval must be at least 50ms")
	} else if s.TickIntervalMillis != DefaultTickMillis {
		result.AddWarning("server.tick_interval_ms",
			fmt.Sprintf("clients expect a %dms tick, %dms will desynchronise animations", DefaultTickMillis, s.TickIntervalMillis))
	}
	if s.MaxPlayers < 1 || s.MaxPlayers > MaxPlayerCapacity {
		result.AddError("server.max_players", fmt.Sprintf("max players must be 1-%d", MaxPlayerCapacity))
	}
	if s.MessagesPerPulse < 1 {
		result.AddError("server.messages_per_pulse", "must handle at least 1 message per pulse")
	}
	if s.Spawn.Height < 0 || s.Spawn.Height > 3 {
		result.AddError("server.spawn.height", "spawn height must be 0-3")
	}
	if s.Spawn.X < 0 || s.Spawn.Y < 0 {
		result.AddError("server.spawn", "spawn coordinates must not be negative")
	}
	if s.AutosaveTicks < 0 {
		result.AddError("server.autosave_ticks", "autosave interval must not be negative")
	} else if s.AutosaveTicks == 0 {
		result.AddWarning("server.autosave_ticks", "autosave is disabled, players are only saved on logout")
	}

	// Connections
	if s.LoginTimeoutSec < 1 {
		result.AddError("server.login_timeout_sec", "login timeout must be at least 1 second")
	}
	if s.IdleTimeoutSec < 10 {
		result.AddWarning("server.idle_timeout_sec", "idle timeout less than 10 seconds may disconnect idle players")
	}
	if s.MaxPendingLogins < 1 {
		result.AddError("server.max_pending_logins", "must allow at least 1 pending login")
	}
	if s.ConnectionsPerSecond < 1 {
		result.AddWarning("server.connections_per_ip_per_sec", "per-IP connection throttling is disabled")
	}
	if s.OutboundQueueSize < 16 {
		result.AddError("server.outbound_queue_size", "outbound queue must hold at least 16 packets")
	}
}

func validateAPI(api *APIConfig, sec *SecurityConfig, result *ValidationResult) {
	if !api.Enabled {
		return
	}
	validatePort(api.Port, "api.port", result)

	if !sec.AuthDisabled && strings.TrimSpace(api.Token) == "" {
		result.AddError("api.token", "API token is required when authentication is enabled")
	}
	if sec.AuthDisabled {
		result.AddWarning("security.auth_disabled", "control endpoints are reachable without authentication")
	}
}

func validateServices(cfg *Config, result *ValidationResult) {
	if cfg.API.Enabled && cfg.API.Port == cfg.Server.GamePort {
		result.AddError("api.port", "port conflict detected: API and game ports must differ")
	}

	if strings.TrimSpace(cfg.Database.Path) == "" {
		result.AddError("database.path", "database path is required")
	}

	// MQTT
	if cfg.MQTT.Enabled {
		if strings.TrimSpace(cfg.MQTT.BrokerURL) == "" {
			result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
		}
		if cfg.MQTT.Port < 1 || cfg.MQTT.Port > 65535 {
			result.AddError("mqtt.port", "invalid MQTT port")
		}
	}

	// Security
	if cfg.Security.TLSEnabled {
		if strings.TrimSpace(cfg.Security.TLSCertFile) == "" {
			result.AddError("security.tls_cert_file",
				"TLS certificate file is required when TLS is enabled")
		}
		if strings.TrimSpace(cfg.Security.TLSKeyFile) == "" {
			result.AddError("security.tls_key_file",
				"TLS key file is required when TLS is enabled")
		}
	}

	if cfg.Security.RateLimitRPS < 1 {
		result.AddWarning("security.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}

	for _, entry := range cfg.Security.IPWhitelist {
		if net.ParseIP(entry) == nil {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				result.AddError("security.ip_whitelist", fmt.Sprintf("invalid IP or CIDR: %q", entry))
			}
		}
	}
}

func validatePort(port int, field string, result *ValidationResult) {
	if port < 1 || port > 65535 {
		result.AddError(field, fmt.Sprintf("invalid port number: %d (must be 1-65535)", port))
		return
	}
	if port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}

// IsPortAvailable checks if a port is available for binding.
func IsPortAvailable(port int) bool {
	ln, err := net.Listen("tcp", fmt.Sprintf(":%d", port))
	if err != nil {
		return false
	}
	ln.Close()
	return true
}
