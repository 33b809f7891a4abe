package config

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDefaultsAreValid(t *testing.T) {
	cfg := DefaultConfig()
	result := Validate(cfg)
	assert.True(t, result.IsValid(), "%v", result.Errors)

	server := cfg.GetServer()
	assert.Equal(t, 600*time.Millisecond, server.TickInterval())
	assert.Equal(t, 5*time.Second, server.LoginTimeout())
	assert.Equal(t, time.Minute, server.IdleTimeout())
}

func TestLoadCreatesDefaultFile(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Load(dir)
	require.NoError(t, err)

	assert.Equal(t, filepath.Join(dir, DefaultConfigFile), cfg.Path())
	assert.FileExists(t, cfg.Path())
	assert.Equal(t, DefaultGamePort, cfg.GetServer().GamePort)
}

func TestLoadOverlaysDefaults(t *testing.T) {
	dir := t.TempDir()
	partial := `{"server": {"name": "Varrock", "game_port": 43595}}`
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte(partial), 0644))

	cfg, err := Load(dir)
	require.NoError(t, err)
	server := cfg.GetServer()
	assert.Equal(t, "Varrock", server.Name)
	assert.Equal(t, 43595, server.GamePort)
	assert.Equal(t, DefaultTickMillis, server.TickIntervalMillis)

	// Missing fields are written back.
	data, err := os.ReadFile(cfg.Path())
	require.NoError(t, err)
	assert.Contains(t, string(data), "outbound_queue_size")
}

func TestLoadRejectsBadJSON(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, DefaultConfigFile), []byte("{"), 0644))
	_, err := Load(dir)
	assert.Error(t, err)
}

func fields(errs []ValidationError) []string {
	out := make([]string, 0, len(errs))
	for _, e := range errs {
		out = append(out, e.Field)
	}
	return out
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		errors  []string
		warning string
	}{
		{
			name:   "unsupported release",
			mutate: func(c *Config) { c.Server.Release = 377 },
			errors: []string{"server.release"},
		},
		{
			name:    "non standard tick",
			mutate:  func(c *Config) { c.Server.TickIntervalMillis = 300 },
			warning: "server.tick_interval_ms",
		},
		{
			name:   "capacity over index range",
			mutate: func(c *Config) { c.Server.MaxPlayers = MaxPlayerCapacity + 1 },
			errors: []string{"server.max_players"},
		},
		{
			name:   "port conflict",
			mutate: func(c *Config) { c.API.Port = c.Server.GamePort },
			errors: []string{"api.port"},
		},
		{
			name: "token required",
			mutate: func(c *Config) {
				c.Security.AuthDisabled = false
				c.API.Token = ""
			},
			errors: []string{"api.token"},
		},
		{
			name:   "bad whitelist entry",
			mutate: func(c *Config) { c.Security.IPWhitelist = []string{"10.0.0.0/33"} },
			errors: []string{"security.ip_whitelist"},
		},
		{
			name:   "tls without files",
			mutate: func(c *Config) { c.Security.TLSEnabled = true },
			errors: []string{"security.tls_cert_file", "security.tls_key_file"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tt.mutate(cfg)
			result := Validate(cfg)
			assert.Equal(t, len(tt.errors) == 0, result.IsValid())
			for _, f := range tt.errors {
				assert.Contains(t, fields(result.Errors), f)
			}
			if tt.warning != "" {
				assert.Contains(t, fields(result.Warnings), tt.warning)
			}
		})
	}
}

func TestUpdateServerField(t *testing.T) {
	cfg := DefaultConfig()

	require.NoError(t, cfg.UpdateServerField("max_players", 100.0))
	assert.Equal(t, 100, cfg.GetServer().MaxPlayers)

	assert.Error(t, cfg.UpdateServerField("no_such_field", 1))
	assert.Error(t, cfg.UpdateServerField("max_players", "lots"))
	assert.Equal(t, 100, cfg.GetServer().MaxPlayers)
}

func TestSetupWizard(t *testing.T) {
	cfg := DefaultConfig()
	cfg.SetPath(filepath.Join(t.TempDir(), DefaultConfigFile))

	answers := strings.Join([]string{
		"Lumbridge", // name
		"500",       // max players
		"yes",       // members
		"",          // auto register
		"",          // bind address
		"43595",     // game port
		"",          // enable api
		"5001",      // api port
		"yes",       // require token
		"",          // mqtt
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, RunSetupWizard(cfg, strings.NewReader(answers), &out))

	server := cfg.GetServer()
	assert.Equal(t, "Lumbridge", server.Name)
	assert.Equal(t, 500, server.MaxPlayers)
	assert.True(t, server.Members)
	assert.Equal(t, 43595, server.GamePort)
	assert.Equal(t, 5001, cfg.GetAPI().Port)
	assert.False(t, cfg.GetSecurity().AuthDisabled)
	assert.Len(t, cfg.GetAPI().Token, 64)
	assert.Contains(t, out.String(), "Generated API token")
	assert.FileExists(t, cfg.Path())
	assert.False(t, cfg.IsFirstRun())
}
