// Package config handles configuration loading, validation, and persistence
// for the netsync server and client.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/energizer-project/netsync/internal/util"
)

const (
	DefaultConfigDir  = "config"
	DefaultConfigFile = "netsync.json"
	DefaultServerAddr = "127.0.0.1:3630"
	DefaultAPIAddr    = "127.0.0.1:5000"
)

// Config is the root configuration structure.
type Config struct {
	mu   sync.RWMutex
	path string

	Network  NetworkConfig  `json:"network"`
	Client   ClientConfig   `json:"client"`
	API      APIConfig      `json:"api"`
	MQTT     MQTTConfig     `json:"mqtt"`
	Database DatabaseConfig `json:"database"`
	Logging  util.LogConfig `json:"logging"`
}

// NetworkConfig holds the UDP endpoint and tick settings.
type NetworkConfig struct {
	ServerAddr        string  `json:"server_addr"`
	ClientBindAddr    string  `json:"client_bind_addr"`
	TickRateHz        int     `json:"tick_rate_hz"`
	ReplicationRateHz int     `json:"replication_rate_hz"`
	SpawnRange        float64 `json:"spawn_range"`
	KickQueueSize     int     `json:"kick_queue_size"`
}

// ClientConfig holds the connection state machine timers.
type ClientConfig struct {
	IdleTimeoutMs    int  `json:"idle_timeout_ms"`
	MaxPingRetries   int  `json:"max_ping_retries"`
	SendByeOnTimeout bool `json:"send_bye_on_timeout"`
}

// IdleTimeout returns the idle window as a duration.
func (c ClientConfig) IdleTimeout() time.Duration {
	return time.Duration(c.IdleTimeoutMs) * time.Millisecond
}

// APIConfig holds admin REST API settings.
type APIConfig struct {
	Enabled        bool     `json:"enabled"`
	ListenAddr     string   `json:"listen_addr"`
	AllowedOrigins []string `json:"allowed_origins"`
	RateLimitRPS   int      `json:"rate_limit_rps"`
	IPWhitelist    []string `json:"ip_whitelist"`
	ControlToken   string   `json:"control_token"`
	TLSEnabled     bool     `json:"tls_enabled"`
	TLSCertFile    string   `json:"tls_cert_file"`
	TLSKeyFile     string   `json:"tls_key_file"`
}

// MQTTConfig holds MQTT telemetry settings.
type MQTTConfig struct {
	Enabled          bool   `json:"enabled"`
	BrokerURL        string `json:"broker_url"`
	Port             int    `json:"port"`
	UseTLS           bool   `json:"use_tls"`
	CertFile         string `json:"cert_file"`
	KeyFile          string `json:"key_file"`
	CAFile           string `json:"ca_file"`
	ClientID         string `json:"client_id"`
	TopicPrefix      string `json:"topic_prefix"`
	StatsIntervalSec int    `json:"stats_interval_sec"`
}

// DatabaseConfig holds the session audit log settings.
type DatabaseConfig struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Network: NetworkConfig{
			ServerAddr:        DefaultServerAddr,
			ClientBindAddr:    "127.0.0.1:0",
			TickRateHz:        60,
			ReplicationRateHz: 30,
			SpawnRange:        100,
			KickQueueSize:     64,
		},
		Client: ClientConfig{
			IdleTimeoutMs:  100,
			MaxPingRetries: 3,
		},
		API: APIConfig{
			Enabled:      true,
			ListenAddr:   DefaultAPIAddr,
			RateLimitRPS: 100,
		},
		MQTT: MQTTConfig{
			Enabled:          false,
			BrokerURL:        "localhost",
			Port:             1883,
			TopicPrefix:      "netsync",
			StatsIntervalSec: 10,
		},
		Database: DatabaseConfig{
			Enabled: true,
			Path:    filepath.Join("data", "netsync.db"),
		},
		Logging: util.DefaultLogConfig(),
	}
}

// Load reads configuration from configDir, creating the file with
// defaults when it does not exist.
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

	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file %s: %w", configPath, err)
	}

	cfg.path = configPath
	log.Info().Str("path", configPath).Msg("configuration loaded")

	// Re-save so the file lists every option known to this build.
	if saveErr := cfg.Save(); saveErr != nil {
		log.Warn().Err(saveErr).Msg("failed to re-save config with updated defaults")
	}

	return cfg, nil
}

// Save writes the current configuration to disk.
func (c *Config) Save() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if err := util.EnsureDir(filepath.Dir(c.path)); err != nil {
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

// GetNetwork returns a copy of the network section.
func (c *Config) GetNetwork() NetworkConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Network
}

// GetClient returns a copy of the client section.
func (c *Config) GetClient() ClientConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Client
}

// GetAPI returns a copy of the API section.
func (c *Config) GetAPI() APIConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.API
}

// GetMQTT returns a copy of the MQTT section.
func (c *Config) GetMQTT() MQTTConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.MQTT
}

// GetDatabase returns a copy of the database section.
func (c *Config) GetDatabase() DatabaseConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Database
}

// GetLogging returns a copy of the logging section.
func (c *Config) GetLogging() util.LogConfig {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.Logging
}

// SetLogLevel updates the configured log level.
func (c *Config) SetLogLevel(level string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Logging.Level = level
}

// View returns a copy of every section for display, with secrets masked.
func (c *Config) View() map[string]interface{} {
	c.mu.RLock()
	defer c.mu.RUnlock()
	api := c.API
	if api.ControlToken != "" {
		api.ControlToken = "********"
	}
	return map[string]interface{}{
		"network":  c.Network,
		"client":   c.Client,
		"api":      api,
		"mqtt":     c.MQTT,
		"database": c.Database,
		"logging":  c.Logging,
	}
}

// Path returns the config file path.
func (c *Config) Path() string {
	return c.path
}

// SetPath sets the file Save writes to.
func (c *Config) SetPath(path string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.path = path
}
