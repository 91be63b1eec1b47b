// Package iohub is the public entry point: namespace registries of realtime
// event handlers attached to a gin host.
//
//	app := iohub.NewApp(nil)
//	io := iohub.MustNew(nil)
//	if _, err := io.Attach(app); err != nil {
//		log.Fatal(err)
//	}
//	io.On("ping", func(ctx *iohub.Context) error {
//		return ctx.Emit("pong", nil)
//	})
//	app.Listen(":8080")
package iohub

import (
	"crypto/tls"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/iohub/internal/host"
	"github.com/remote-agent-terminal/iohub/internal/model"
	"github.com/remote-agent-terminal/iohub/internal/pipeline"
	"github.com/remote-agent-terminal/iohub/internal/registry"
	"github.com/remote-agent-terminal/iohub/internal/transport"
	"github.com/remote-agent-terminal/iohub/internal/ws"
)

type (
	IO               = registry.IO
	Options          = registry.Options
	Conn             = registry.Conn
	AttachOption     = registry.AttachOption
	App              = host.App
	Context          = pipeline.Context
	Handler          = pipeline.Handler
	Middleware       = pipeline.Middleware
	Next             = pipeline.Next
	Socket           = transport.Socket
	Emitter          = transport.Emitter
	TransportOptions = ws.Options
)

var (
	ErrInvalidConfiguration      = model.ErrInvalidConfiguration
	ErrAttachmentRequired        = model.ErrAttachmentRequired
	ErrDuplicateDefaultNamespace = model.ErrDuplicateDefaultNamespace
	ErrInvalidHostServer         = model.ErrInvalidHostServer
	ErrDuplicateNamespace        = model.ErrDuplicateNamespace
	ErrHiddenDefaultNamespace    = model.ErrHiddenDefaultNamespace
	ErrAlreadyAttached           = model.ErrAlreadyAttached
	ErrHandlerPanic              = model.ErrHandlerPanic
	ErrConnectionNotFound        = model.ErrConnectionNotFound
)

// New creates a registry. config may be nil, a namespace name, Options or
// *Options.
func New(config any) (*IO, error) {
	return registry.New(config)
}

// MustNew is New that panics on error.
func MustNew(config any) *IO {
	return registry.MustNew(config)
}

// NewApp wraps engine, or gin.Default() when engine is nil.
func NewApp(engine *gin.Engine) *App {
	return host.NewApp(engine)
}

// WithTLS makes Attach create an encrypted server when the host has none.
func WithTLS(cfg *tls.Config) AttachOption {
	return registry.WithTLS(cfg)
}

// DefaultTransportOptions returns the websocket defaults.
func DefaultTransportOptions() TransportOptions {
	return ws.DefaultOptions()
}
