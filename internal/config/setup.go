package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/Rune-Status/aj8/internal/util"
)

// RunSetupWizard guides the operator through first-time configuration,
// reading answers from in and writing prompts to out.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	w := &wizard{reader: bufio.NewReader(in), out: out}
	return w.run(cfg)
}

type wizard struct {
	reader *bufio.Reader
	out    io.Writer
}

func (w *wizard) run(cfg *Config) error {
	fmt.Fprintln(w.out, "╔══════════════════════════════════════════════╗")
	fmt.Fprintln(w.out, "║            aj8 - First Run Setup             ║")
	fmt.Fprintln(w.out, "╚══════════════════════════════════════════════╝")
	fmt.Fprintln(w.out)

	fmt.Fprintln(w.out, "── World ──")
	cfg.Server.Name = w.promptString("World name", cfg.Server.Name)
	cfg.Server.MaxPlayers = w.promptInt("Maximum players", cfg.Server.MaxPlayers)
	cfg.Server.Members = w.promptBool("Members world", cfg.Server.Members)
	cfg.Server.AutoRegister = w.promptBool("Create accounts on first login", cfg.Server.AutoRegister)

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "── Network ──")
	cfg.Server.BindAddress = w.promptString("Bind address", cfg.Server.BindAddress)
	cfg.Server.GamePort = w.promptInt("Game port", cfg.Server.GamePort)

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "── REST API ──")
	cfg.API.Enabled = w.promptBool("Enable REST API", cfg.API.Enabled)
	if cfg.API.Enabled {
		cfg.API.Port = w.promptInt("REST API port", cfg.API.Port)
		cfg.Security.AuthDisabled = !w.promptBool("Require an API token", !cfg.Security.AuthDisabled)
		if !cfg.Security.AuthDisabled && cfg.API.Token == "" {
			token, err := util.GenerateToken(32)
			if err != nil {
				return fmt.Errorf("failed to generate API token: %w", err)
			}
			cfg.API.Token = token
			fmt.Fprintf(w.out, "    Generated API token: %s\n", token)
		}
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "── MQTT Telemetry ──")
	cfg.MQTT.Enabled = w.promptBool("Enable MQTT telemetry", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.BrokerURL = w.promptString("MQTT broker host", cfg.MQTT.BrokerURL)
		cfg.MQTT.Port = w.promptInt("MQTT broker port", cfg.MQTT.Port)
	}

	// Validate before saving
	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Fprintln(w.out, "\n⚠ Configuration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(w.out, "  - [%s] %s\n", e.Field, e.Message)
		}
		retry := w.promptString("Would you like to try again? (yes/no)", "no")
		if strings.ToLower(retry) == "yes" {
			return w.run(cfg)
		}
		return fmt.Errorf("configuration validation failed")
	}

	for _, warning := range result.Warnings {
		log.Warn().Str("field", warning.Field).Msg(warning.Message)
	}

	if err := cfg.Save(); err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(w.out)
	fmt.Fprintln(w.out, "✓ Configuration saved successfully!")
	fmt.Fprintln(w.out)

	return nil
}

func (w *wizard) promptString(prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(w.out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(w.out, "  %s: ", prompt)
	}

	input, _ := w.reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func (w *wizard) promptInt(prompt string, defaultVal int) int {
	fmt.Fprintf(w.out, "  %s [%d]: ", prompt, defaultVal)

	input, _ := w.reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(w.out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func (w *wizard) promptBool(prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Fprintf(w.out, "  %s [%s]: ", prompt, defaultStr)

	input, _ := w.reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
