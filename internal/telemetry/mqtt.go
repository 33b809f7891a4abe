// Package telemetry publishes world events to an MQTT broker.
package telemetry

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/Rune-Status/aj8/internal/config"
	"github.com/Rune-Status/aj8/internal/events"
	"github.com/Rune-Status/aj8/internal/util"
)

// Topic suffixes under aj8/<server>/.
const (
	TopicPlayers  = "players"
	TopicLag      = "lag"
	TopicStatus   = "status"
	TopicSecurity = "security"
	TopicHealth   = "health"
	TopicAdmin    = "admin"
)

var ErrDisabled = errors.New("mqtt telemetry is disabled")

// MQTTHandler forwards bus events to MQTT topics.
type MQTTHandler struct {
	cfg      config.MQTTConfig
	server   string
	eventBus *events.EventBus
	client   mqtt.Client
	logger   zerolog.Logger

	// Included in every message.
	metadata map[string]interface{}

	send func(topic string, data []byte)
}

// NewMQTTHandler creates the handler. Nothing connects until Start.
func NewMQTTHandler(cfg config.MQTTConfig, serverName string, eventBus *events.EventBus) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	sysInfo := util.GetSystemInfo()
	h := &MQTTHandler{
		cfg:      cfg,
		server:   serverName,
		eventBus: eventBus,
		logger:   log.With().Str("component", "mqtt").Logger(),
		metadata: map[string]interface{}{
			"server":   serverName,
			"hostname": sysInfo.Hostname,
			"platform": sysInfo.Platform,
		},
	}
	h.send = h.publishMQTT

	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	opts := mqtt.NewClientOptions()
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("aj8-%s-%s", serverName, sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(false)

	if cfg.UseTLS {
		tlsConfig, err := tlsConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(mqtt.Client) {
		h.logger.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(_ mqtt.Client, err error) {
		h.logger.Warn().Err(err).Msg("MQTT connection lost")
	})

	h.client = mqtt.NewClient(opts)
	return h, nil
}

func tlsConfig(cfg config.MQTTConfig) (*tls.Config, error) {
	tc := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tc.Certificates = []tls.Certificate{cert}
	}
	if cfg.CAFile != "" {
		pem, err := os.ReadFile(cfg.CAFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read MQTT CA file: %w", err)
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, fmt.Errorf("no certificates found in %s", cfg.CAFile)
		}
		tc.RootCAs = pool
	}
	return tc, nil
}

// Start connects, forwards events until ctx is cancelled, then announces the
// shutdown and disconnects.
func (h *MQTTHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("broker", h.cfg.BrokerURL).
		Int("port", h.cfg.Port).
		Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()

	<-ctx.Done()

	h.PublishShutdown()
	h.client.Disconnect(5000)
	h.logger.Info().Msg("MQTT disconnected")
	return nil
}

// Topic returns the full topic for suffix.
func (h *MQTTHandler) Topic(suffix string) string {
	return fmt.Sprintf("aj8/%s/%s", h.server, suffix)
}

// routes maps forwarded event types to topic suffixes. Other events stay
// local.
var routes = map[events.EventType]string{
	events.EventPlayerLogin:       TopicPlayers,
	events.EventPlayerLogout:      TopicPlayers,
	events.EventPlayerKicked:      TopicPlayers,
	events.EventTickOverrun:       TopicLag,
	events.EventServerStatus:      TopicStatus,
	events.EventProtocolViolation: TopicSecurity,
	events.EventLoginRejected:     TopicSecurity,
	events.EventHealthChanged:     TopicHealth,
	events.EventSystemUpdate:      TopicAdmin,
}

func (h *MQTTHandler) subscribeEvents() {
	h.eventBus.SubscribeAll("mqtt.forward", h.forward)
}

func (h *MQTTHandler) forward(_ context.Context, event events.Event) error {
	suffix, ok := routes[event.Type]
	if !ok {
		return nil
	}
	h.publish(suffix, string(event.Type), event.Payload)
	return nil
}

func (h *MQTTHandler) publish(suffix, event string, payload interface{}) {
	topic := h.Topic(suffix)
	data, err := json.Marshal(h.buildMessage(event, payload))
	if err != nil {
		h.logger.Warn().Err(err).Str("topic", topic).Msg("failed to marshal MQTT message")
		return
	}
	h.send(topic, data)
}

func (h *MQTTHandler) publishMQTT(topic string, data []byte) {
	if !h.client.IsConnected() {
		return
	}
	token := h.client.Publish(topic, 1, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			h.logger.Warn().Err(token.Error()).Str("topic", topic).Msg("MQTT publish failed")
		}
	}()
}

func (h *MQTTHandler) buildMessage(event string, payload interface{}) map[string]interface{} {
	msg := make(map[string]interface{}, len(h.metadata)+3)
	for k, v := range h.metadata {
		msg[k] = v
	}
	msg["event"] = event
	msg["payload"] = payload
	msg["timestamp"] = time.Now().UTC().Format(time.RFC3339)
	return msg
}

// PublishShutdown announces that the server is going down.
func (h *MQTTHandler) PublishShutdown() {
	h.publish(TopicAdmin, string(events.EventShutdown), map[string]interface{}{
		"server": h.server,
	})
}
