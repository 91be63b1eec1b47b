package config

import "github.com/remote-agent-terminal/iohub/internal/ws"

// Default values for optional configuration fields.
const (
	DefaultAddr         = ":8080"
	DefaultDatabasePath = "data/presence.db"
	DefaultMetricsPath  = "/metrics"
	DefaultLogLevel     = "info"
	DefaultLogFormat    = "text"
)

func (c *Config) applyDefaults() {
	if c.Server.Addr == "" {
		c.Server.Addr = DefaultAddr
	}

	transport := ws.DefaultOptions()
	if c.Transport.Path == "" {
		c.Transport.Path = transport.Path
	}
	if c.Transport.WriteWait == 0 {
		c.Transport.WriteWait = transport.WriteWait
	}
	if c.Transport.PongWait == 0 {
		c.Transport.PongWait = transport.PongWait
	}
	if c.Transport.PingPeriod == 0 {
		c.Transport.PingPeriod = (c.Transport.PongWait * 9) / 10
	}
	if c.Transport.MaxMessageSize == 0 {
		c.Transport.MaxMessageSize = transport.MaxMessageSize
	}
	if c.Transport.SendBuffer == 0 {
		c.Transport.SendBuffer = transport.SendBuffer
	}

	if c.Database.Path == "" {
		c.Database.Path = DefaultDatabasePath
	}

	if c.Metrics.Path == "" {
		c.Metrics.Path = DefaultMetricsPath
	}

	if c.Log.Level == "" {
		c.Log.Level = DefaultLogLevel
	}
	if c.Log.Format == "" {
		c.Log.Format = DefaultLogFormat
	}
}
