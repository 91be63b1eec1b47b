// Package host composes the HTTP side of a server: a gin engine, the network
// server that serves it, the transport mounted on it and the registries
// published under their namespace names.
package host

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sort"
	"sync"

	"github.com/gin-gonic/gin"

	"github.com/remote-agent-terminal/iohub/internal/model"
	"github.com/remote-agent-terminal/iohub/internal/transport"
)

// ErrTransportExists is returned when a second transport is mounted on an app.
var ErrTransportExists = errors.New("transport already mounted")

// Server is a network server the app can listen with.
type Server interface {
	Serve(l net.Listener) error
	Shutdown(ctx context.Context) error
}

// Registry is what the app knows about a published connection registry.
type Registry interface {
	Namespace() string
	Size() int
	ConnectionIDs() []string
	Disconnect(id string) error
}

// App is the host registries attach to.
type App struct {
	engine *gin.Engine

	mu         sync.RWMutex
	server     Server
	transport  transport.Server
	io         Registry
	namespaces map[string]Registry
}

// NewApp wraps engine. A nil engine is replaced by gin.Default().
func NewApp(engine *gin.Engine) *App {
	if engine == nil {
		engine = gin.Default()
	}
	return &App{
		engine:     engine,
		namespaces: make(map[string]Registry),
	}
}

func (a *App) Engine() *gin.Engine {
	return a.engine
}

// Handler returns the request handler servers should be bound to.
func (a *App) Handler() http.Handler {
	return a.engine
}

// Use adds gin middleware running around every HTTP request.
func (a *App) Use(middleware ...gin.HandlerFunc) *App {
	a.engine.Use(middleware...)
	return a
}

func (a *App) Server() Server {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.server
}

// SetServer installs the network server. Registries only accept *http.Server.
func (a *App) SetServer(s Server) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.server = s
}

// EnsureServer returns the app's *http.Server, creating one bound to the
// engine if the app has none. tlsConfig only applies to a new server.
func (a *App) EnsureServer(tlsConfig *tls.Config) (*http.Server, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.server == nil {
		s := &http.Server{Handler: a.engine, TLSConfig: tlsConfig}
		a.server = s
		return s, nil
	}

	s, ok := a.server.(*http.Server)
	if !ok {
		return nil, fmt.Errorf("%w: got %T", model.ErrInvalidHostServer, a.server)
	}
	return s, nil
}

// Listen binds addr and serves on it until Shutdown.
func (a *App) Listen(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	return a.Serve(ln)
}

// Serve serves on ln with the app's server, creating a plain one if needed.
// A server with a TLS config serves TLS.
func (a *App) Serve(ln net.Listener) error {
	server := a.Server()
	if server == nil {
		s, err := a.EnsureServer(nil)
		if err != nil {
			return err
		}
		server = s
	}

	if s, ok := server.(*http.Server); ok && s.TLSConfig != nil {
		ln = tls.NewListener(ln, s.TLSConfig)
	}

	err := server.Serve(ln)
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown closes the transport and then the server.
func (a *App) Shutdown(ctx context.Context) error {
	a.mu.RLock()
	t, server := a.transport, a.server
	a.mu.RUnlock()

	var errs []error
	if t != nil {
		if err := t.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close transport: %w", err))
		}
	}
	if server != nil {
		if err := server.Shutdown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("shutdown server: %w", err))
		}
	}
	return errors.Join(errs...)
}

func (a *App) Transport() transport.Server {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.transport
}

// SetTransport mounts t on the engine at t.Path().
func (a *App) SetTransport(t transport.Server) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.transport != nil {
		return ErrTransportExists
	}
	a.transport = t
	a.engine.GET(t.Path(), gin.WrapH(t))
	return nil
}

// IO returns the default namespace registry.
func (a *App) IO() Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return a.io
}

func (a *App) SetIO(r Registry) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if a.io != nil {
		return model.ErrDuplicateDefaultNamespace
	}
	a.io = r
	return nil
}

// Publish exposes r under namespace.
func (a *App) Publish(namespace string, r Registry) error {
	if namespace == "" {
		return fmt.Errorf("%w: namespace name is required", model.ErrInvalidConfiguration)
	}

	a.mu.Lock()
	defer a.mu.Unlock()

	if _, ok := a.namespaces[namespace]; ok {
		return fmt.Errorf("%w: %q", model.ErrDuplicateNamespace, namespace)
	}
	a.namespaces[namespace] = r
	return nil
}

// Lookup returns the registry published under namespace. The empty name
// resolves to the default registry.
func (a *App) Lookup(namespace string) (Registry, bool) {
	a.mu.RLock()
	defer a.mu.RUnlock()

	if namespace == "" || namespace == "/" {
		return a.io, a.io != nil
	}
	r, ok := a.namespaces[namespace]
	return r, ok
}

// Namespaces returns the default registry, if any, followed by the
// published ones ordered by name.
func (a *App) Namespaces() []Registry {
	a.mu.RLock()
	defer a.mu.RUnlock()

	names := make([]string, 0, len(a.namespaces))
	for name := range a.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]Registry, 0, len(names)+1)
	if a.io != nil {
		out = append(out, a.io)
	}
	for _, name := range names {
		out = append(out, a.namespaces[name])
	}
	return out
}
