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

// Validate checks every section of the configuration.
func Validate(cfg *Config) *ValidationResult {
	cfg.mu.RLock()
	defer cfg.mu.RUnlock()

	result := &ValidationResult{}
	validateNetwork(&cfg.Network, result)
	validateClient(&cfg.Client, result)
	validateAPI(&cfg.API, result)
	validateMQTT(&cfg.MQTT, result)

	if cfg.Database.Enabled && strings.TrimSpace(cfg.Database.Path) == "" {
		result.AddError("database.path", "database path is required when enabled")
	}
	return result
}

func validateNetwork(n *NetworkConfig, result *ValidationResult) {
	validateHostPort(n.ServerAddr, "network.server_addr", false, result)
	validateHostPort(n.ClientBindAddr, "network.client_bind_addr", true, result)

	if n.TickRateHz < 1 {
		result.AddError("network.tick_rate_hz", "tick rate must be at least 1 Hz")
	}
	if n.ReplicationRateHz < 1 {
		result.AddError("network.replication_rate_hz", "replication rate must be at least 1 Hz")
	} else if n.ReplicationRateHz > n.TickRateHz && n.TickRateHz > 0 {
		result.AddWarning("network.replication_rate_hz",
			fmt.Sprintf("replication rate %d Hz exceeds tick rate %d Hz; at most one push runs per tick",
				n.ReplicationRateHz, n.TickRateHz))
	}
	if n.SpawnRange <= 0 {
		result.AddError("network.spawn_range", "spawn range must be positive")
	}
	if n.KickQueueSize < 1 {
		result.AddError("network.kick_queue_size", "kick queue must hold at least one request")
	}
}

func validateClient(c *ClientConfig, result *ValidationResult) {
	if c.IdleTimeoutMs < 1 {
		result.AddError("client.idle_timeout_ms", "idle timeout must be at least 1ms")
	} else if c.IdleTimeoutMs < 20 {
		result.AddWarning("client.idle_timeout_ms", "idle timeout below 20ms will flap on a loaded network")
	}
	if c.MaxPingRetries < 1 {
		result.AddError("client.max_ping_retries", "at least one ping retry is required")
	}
}

func validateAPI(a *APIConfig, result *ValidationResult) {
	if !a.Enabled {
		return
	}
	validateHostPort(a.ListenAddr, "api.listen_addr", false, result)
	if a.RateLimitRPS < 1 {
		result.AddWarning("api.rate_limit_rps",
			"rate limit is disabled (0 RPS), this may expose the API to abuse")
	}
	if a.ControlToken == "" {
		result.AddWarning("api.control_token", "control endpoints are unauthenticated")
	}
	if a.TLSEnabled && (strings.TrimSpace(a.TLSCertFile) == "" || strings.TrimSpace(a.TLSKeyFile) == "") {
		result.AddError("api.tls_cert_file", "TLS certificate and key files are required when TLS is enabled")
	}
	for _, entry := range a.IPWhitelist {
		if net.ParseIP(entry) == nil {
			if _, _, err := net.ParseCIDR(entry); err != nil {
				result.AddError("api.ip_whitelist", fmt.Sprintf("invalid IP or CIDR: %s", entry))
			}
		}
	}
}

func validateMQTT(m *MQTTConfig, result *ValidationResult) {
	if !m.Enabled {
		return
	}
	if strings.TrimSpace(m.BrokerURL) == "" {
		result.AddError("mqtt.broker_url", "MQTT broker URL is required when enabled")
	}
	if m.Port < 1 || m.Port > 65535 {
		result.AddError("mqtt.port", "invalid MQTT port")
	}
	if m.StatsIntervalSec < 1 {
		result.AddWarning("mqtt.stats_interval_sec", "periodic stats publishing is disabled")
	}
}

// validateHostPort checks a host:port string. Port zero is accepted only
// when ephemeral is set.
func validateHostPort(addr, field string, ephemeral bool, result *ValidationResult) {
	_, portStr, err := net.SplitHostPort(addr)
	if err != nil {
		result.AddError(field, fmt.Sprintf("invalid address %q: %v", addr, err))
		return
	}
	port, err := net.LookupPort("udp", portStr)
	if err != nil {
		result.AddError(field, fmt.Sprintf("invalid port %q", portStr))
		return
	}
	if port == 0 && !ephemeral {
		result.AddError(field, "a fixed port is required")
		return
	}
	if port > 0 && port < 1024 {
		result.AddWarning(field,
			fmt.Sprintf("port %d is a privileged port, may require elevated permissions", port))
	}
}
