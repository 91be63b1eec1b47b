package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks that all required fields are set and values are valid.
func (c *Config) Validate() error {
	if c.Server.Addr == "" {
		return errors.New("server.addr is required")
	}
	if (c.Server.TLS.CertFile == "") != (c.Server.TLS.KeyFile == "") {
		return errors.New("server.tls.cert_file and server.tls.key_file must be set together")
	}

	if !strings.HasPrefix(c.Transport.Path, "/") {
		return fmt.Errorf("transport.path must start with /, got %q", c.Transport.Path)
	}
	if c.Transport.PingPeriod >= c.Transport.PongWait {
		return fmt.Errorf("transport.ping_period (%s) must be less than pong_wait (%s)", c.Transport.PingPeriod, c.Transport.PongWait)
	}
	if c.Transport.MaxMessageSize < 1 {
		return errors.New("transport.max_message_size must be >= 1")
	}
	if c.Transport.SendBuffer < 1 {
		return errors.New("transport.send_buffer must be >= 1")
	}

	seen := make(map[string]bool, len(c.Namespaces))
	for i, ns := range c.Namespaces {
		name := strings.TrimPrefix(ns.Name, "/")
		if name == "" {
			return fmt.Errorf("namespaces[%d].name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("namespaces[%d].name %q is declared twice", i, name)
		}
		seen[name] = true
	}

	if c.Database.Path == "" {
		return errors.New("database.path is required")
	}
	if c.Database.Retention < 0 {
		return fmt.Errorf("database.retention must not be negative, got %s", c.Database.Retention)
	}

	if c.Metrics.Enabled && !strings.HasPrefix(c.Metrics.Path, "/") {
		return fmt.Errorf("metrics.path must start with /, got %q", c.Metrics.Path)
	}

	switch c.Log.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be one of debug, info, warn, error, got %q", c.Log.Level)
	}
	switch c.Log.Format {
	case "text", "json":
	default:
		return fmt.Errorf("log.format must be text or json, got %q", c.Log.Format)
	}

	return nil
}
