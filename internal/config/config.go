package config

import (
	"crypto/tls"
	"fmt"
	"time"

	"github.com/remote-agent-terminal/iohub/internal/ws"
)

// Config is the root configuration of an iohub server.
type Config struct {
	Server     ServerConfig      `yaml:"server"`
	Transport  ws.Options        `yaml:"transport"`
	Namespaces []NamespaceConfig `yaml:"namespaces"`
	Database   DatabaseConfig    `yaml:"database"`
	Metrics    MetricsConfig     `yaml:"metrics"`
	Log        LogConfig         `yaml:"log"`
}

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Addr string    `yaml:"addr"`
	TLS  TLSConfig `yaml:"tls"`
}

// TLSConfig points at a PEM certificate and key. Both empty means plain HTTP.
type TLSConfig struct {
	CertFile string `yaml:"cert_file"`
	KeyFile  string `yaml:"key_file"`
}

// Enabled reports whether a certificate is configured.
func (t TLSConfig) Enabled() bool {
	return t.CertFile != "" && t.KeyFile != ""
}

// Load reads the key pair. It returns nil when TLS is not configured.
func (t TLSConfig) Load() (*tls.Config, error) {
	if !t.Enabled() {
		return nil, nil
	}
	cert, err := tls.LoadX509KeyPair(t.CertFile, t.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("load tls key pair: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// NamespaceConfig declares a secondary namespace registry.
type NamespaceConfig struct {
	Name   string `yaml:"name"`
	Hidden bool   `yaml:"hidden"`
}

// DatabaseConfig holds the SQLite presence journal location.
type DatabaseConfig struct {
	Path string `yaml:"path"`

	// Retention prunes presence rows older than this. Zero keeps everything.
	Retention time.Duration `yaml:"retention"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

// LogConfig selects the slog handler.
type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}
