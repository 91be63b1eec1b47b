package registry

import (
	"crypto/tls"

	"github.com/remote-agent-terminal/iohub/internal/host"
	"github.com/remote-agent-terminal/iohub/internal/model"
	"github.com/remote-agent-terminal/iohub/internal/transport"
)

type attachConfig struct {
	tls *tls.Config
}

// AttachOption customises Attach.
type AttachOption func(*attachConfig)

// WithTLS makes the host server created by Attach serve TLS. It has no effect
// when the host already has a server.
func WithTLS(cfg *tls.Config) AttachOption {
	return func(c *attachConfig) {
		c.tls = cfg
	}
}

// Attach binds the registry to app. The first registry attached to a host
// creates the transport server; later ones must name a namespace and share
// it. A registry can only be attached once.
func (io *IO) Attach(app *host.App, opts ...AttachOption) (transport.Namespace, error) {
	var cfg attachConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	io.mu.Lock()
	defer io.mu.Unlock()

	if io.nsp != nil {
		return nil, model.ErrAlreadyAttached
	}

	if _, err := app.EnsureServer(cfg.tls); err != nil {
		return nil, err
	}

	if server := app.Transport(); server != nil {
		if io.opts.Namespace == "" {
			return nil, model.ErrDuplicateDefaultNamespace
		}
		return io.attachNamespace(app, server)
	}

	if io.opts.Hidden && io.opts.Namespace == "" {
		return nil, model.ErrHiddenDefaultNamespace
	}

	server := io.opts.NewTransport(io.opts.Transport, io.opts.Logger)
	if err := app.SetTransport(server); err != nil {
		return nil, err
	}

	if io.opts.Namespace != "" {
		return io.attachNamespace(app, server)
	}

	if err := app.SetIO(io); err != nil {
		return nil, err
	}
	nsp := server.Of("/")
	io.bindLocked(nsp)
	io.logger.Info("attached as default namespace", "path", server.Path())
	return nsp, nil
}

func (io *IO) attachNamespace(app *host.App, server transport.Server) (transport.Namespace, error) {
	if !io.opts.Hidden {
		if err := app.Publish(io.opts.Namespace, io); err != nil {
			return nil, err
		}
	}

	nsp := server.Of(io.opts.Namespace)
	io.bindLocked(nsp)
	io.logger.Info("attached as namespace", "hidden", io.opts.Hidden)
	return nsp, nil
}

func (io *IO) bindLocked(nsp transport.Namespace) {
	io.nsp = nsp
	nsp.OnConnection(io.onConnection)
}
