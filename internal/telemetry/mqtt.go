// Package telemetry publishes netsync lifecycle events and periodic server
// statistics to an MQTT broker.
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
	"github.com/rs/zerolog/log"

	"github.com/energizer-project/netsync/internal/config"
	"github.com/energizer-project/netsync/internal/events"
	"github.com/energizer-project/netsync/internal/server"
	"github.com/energizer-project/netsync/internal/util"
)

// Topic suffixes under the configured prefix.
const (
	TopicStatus  = "status"
	TopicSession = "session"
	TopicEntity  = "entity"
	TopicStats   = "stats"
)

// ErrDisabled is returned when MQTT is turned off in config.
var ErrDisabled = errors.New("telemetry: MQTT is disabled")

// StatsSource provides the server state published on the stats topic.
type StatsSource interface {
	Snapshot() server.Snapshot
}

// MQTTHandler manages the MQTT connection and publishes telemetry.
type MQTTHandler struct {
	cfg      config.MQTTConfig
	eventBus *events.EventBus
	source   StatsSource
	client   mqtt.Client

	// Metadata included in every message
	metadata map[string]interface{}
}

// NewMQTTHandler creates a handler. source may be nil, in which case no
// periodic stats are published.
func NewMQTTHandler(cfg config.MQTTConfig, eventBus *events.EventBus, source StatsSource) (*MQTTHandler, error) {
	if !cfg.Enabled {
		return nil, ErrDisabled
	}

	sysInfo := util.GetSystemInfo()
	handler := &MQTTHandler{
		cfg:      cfg,
		eventBus: eventBus,
		source:   source,
		metadata: map[string]interface{}{
			"hostname":  sysInfo.Hostname,
			"os":        sysInfo.OS,
			"cpu_cores": sysInfo.CPUCores,
			"memory_mb": sysInfo.TotalMemory,
		},
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(BrokerURL(cfg))

	if cfg.ClientID != "" {
		opts.SetClientID(cfg.ClientID)
	} else {
		opts.SetClientID(fmt.Sprintf("netsync-%s", sysInfo.Hostname))
	}

	opts.SetAutoReconnect(true)
	opts.SetMaxReconnectInterval(30 * time.Second)
	opts.SetKeepAlive(60 * time.Second)
	opts.SetCleanSession(true)

	if cfg.UseTLS {
		tlsConfig, err := buildTLSConfig(cfg)
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsConfig)
	}

	opts.SetOnConnectHandler(func(client mqtt.Client) {
		log.Info().Msg("MQTT connected")
	})
	opts.SetConnectionLostHandler(func(client mqtt.Client, err error) {
		log.Warn().Err(err).Msg("MQTT connection lost")
	})

	handler.client = mqtt.NewClient(opts)
	return handler, nil
}

// BrokerURL returns the broker address in paho form.
func BrokerURL(cfg config.MQTTConfig) string {
	scheme := "tcp"
	if cfg.UseTLS {
		scheme = "ssl"
	}
	return fmt.Sprintf("%s://%s:%d", scheme, cfg.BrokerURL, cfg.Port)
}

func buildTLSConfig(cfg config.MQTTConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{MinVersion: tls.VersionTLS12}

	if cfg.CertFile != "" && cfg.KeyFile != "" {
		cert, err := tls.LoadX509KeyPair(cfg.CertFile, cfg.KeyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to load MQTT TLS certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
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
		tlsConfig.RootCAs = pool
	}
	return tlsConfig, nil
}

// Start connects to the broker, forwards bus events and publishes stats
// until ctx is cancelled.
func (h *MQTTHandler) Start(ctx context.Context) error {
	log.Info().Str("broker", BrokerURL(h.cfg)).Msg("connecting to MQTT broker")

	token := h.client.Connect()
	if token.Wait() && token.Error() != nil {
		return fmt.Errorf("MQTT connect failed: %w", token.Error())
	}

	h.subscribeEvents()
	h.publish(TopicStatus, map[string]interface{}{"event": "online"})

	var tick <-chan time.Time
	if h.source != nil && h.cfg.StatsIntervalSec > 0 {
		ticker := time.NewTicker(time.Duration(h.cfg.StatsIntervalSec) * time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case <-ctx.Done():
			h.publish(TopicStatus, map[string]interface{}{"event": "shutdown"})
			h.client.Disconnect(5000)
			log.Info().Msg("MQTT disconnected")
			return nil
		case <-tick:
			h.publish(TopicStats, StatsMessage(h.source.Snapshot()))
		}
	}
}

func (h *MQTTHandler) subscribeEvents() {
	forward := func(topic string) events.HandlerFunc {
		return func(ctx context.Context, event events.Event) error {
			h.publish(topic, map[string]interface{}{
				"event":   string(event.Type),
				"payload": event.Payload,
			})
			return nil
		}
	}
	h.eventBus.Subscribe(events.EventSessionOpened, "mqtt.sessionOpened", forward(TopicSession))
	h.eventBus.Subscribe(events.EventSessionClosed, "mqtt.sessionClosed", forward(TopicSession))
	h.eventBus.Subscribe(events.EventEntitySpawned, "mqtt.entitySpawned", forward(TopicEntity))
	h.eventBus.Subscribe(events.EventEntityDespawned, "mqtt.entityDespawned", forward(TopicEntity))
}

// publish sends a JSON message to prefix/topic.
func (h *MQTTHandler) publish(topic string, payload interface{}) {
	if !h.client.IsConnected() {
		return
	}

	full := Topic(h.cfg.TopicPrefix, topic)
	data, err := json.Marshal(BuildMessage(h.metadata, payload, time.Now()))
	if err != nil {
		log.Warn().Err(err).Str("topic", full).Msg("failed to marshal MQTT message")
		return
	}

	token := h.client.Publish(full, 1, false, data)
	go func() {
		token.Wait()
		if token.Error() != nil {
			log.Warn().Err(token.Error()).Str("topic", full).Msg("MQTT publish failed")
		}
	}()
}

// Topic joins the prefix and suffix.
func Topic(prefix, suffix string) string {
	if prefix == "" {
		return suffix
	}
	return prefix + "/" + suffix
}

// BuildMessage combines metadata with the payload.
func BuildMessage(metadata map[string]interface{}, payload interface{}, at time.Time) map[string]interface{} {
	msg := make(map[string]interface{}, len(metadata)+2)
	for k, v := range metadata {
		msg[k] = v
	}
	msg["payload"] = payload
	msg["timestamp"] = at.UTC().Format(time.RFC3339)
	return msg
}

// StatsMessage reduces a snapshot to the counters published periodically.
func StatsMessage(snap server.Snapshot) map[string]interface{} {
	return map[string]interface{}{
		"addr":     snap.Addr,
		"sessions": len(snap.Sessions),
		"entities": len(snap.Entities),
		"traffic":  snap.Stats,
		"ticks": map[string]interface{}{
			"count":      snap.Ticks.Count,
			"long_ticks": snap.Ticks.LongTicks,
			"max_ms":     float64(snap.Ticks.Max) / float64(time.Millisecond),
			"avg_ms":     float64(snap.Ticks.Avg) / float64(time.Millisecond),
		},
	}
}
