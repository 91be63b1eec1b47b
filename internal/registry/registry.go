// Package registry tracks the open connections of one namespace and routes
// their events through a middleware pipeline to the registered handlers.
//
// Middleware and handlers can be added or removed at any time. Each change
// publishes a new immutable dispatch snapshot, and every open connection
// reads the current snapshot when an event arrives, so a change applies to
// already-connected sockets from their next event on.
package registry

import (
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	jsoniter "github.com/json-iterator/go"

	"github.com/remote-agent-terminal/iohub/internal/host"
	"github.com/remote-agent-terminal/iohub/internal/model"
	"github.com/remote-agent-terminal/iohub/internal/pipeline"
	"github.com/remote-agent-terminal/iohub/internal/transport"
	"github.com/remote-agent-terminal/iohub/internal/ws"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Options configures a registry.
type Options struct {
	// Namespace is empty for the default namespace.
	Namespace string

	// Hidden registries work normally but are not published on the host.
	Hidden bool

	// Transport configures the websocket server when this registry is the
	// first to attach to a host.
	Transport ws.Options

	Logger *slog.Logger

	// ErrorHandler is called with every error or panic a dispatch produced,
	// after it has been logged.
	ErrorHandler func(ctx *pipeline.Context, err error)

	// NewTransport creates the transport server on first attach.
	NewTransport func(opts ws.Options, logger *slog.Logger) transport.Server
}

// dispatchSnapshot is the immutable routing state connections read per event.
type dispatchSnapshot struct {
	listeners map[string][]pipeline.Handler
	pipeline  pipeline.Pipeline
	connect   []pipeline.Handler
}

// IO is the connection registry of one namespace.
type IO struct {
	opts   Options
	logger *slog.Logger

	// mu serialises configuration changes and attachment.
	mu         sync.Mutex
	middleware []pipeline.Middleware
	listeners  *listenerTable
	connect    []pipeline.Handler
	nsp        transport.Namespace
	current    atomic.Pointer[dispatchSnapshot]

	connMu      sync.RWMutex
	connections map[string]*Conn
}

var _ host.Registry = (*IO)(nil)

// New creates a registry. config may be nil, a namespace name, Options or
// *Options.
func New(config any) (*IO, error) {
	var opts Options
	switch c := config.(type) {
	case nil:
	case string:
		opts.Namespace = c
	case Options:
		opts = c
	case *Options:
		if c != nil {
			opts = *c
		}
	default:
		return nil, fmt.Errorf("%w: unsupported argument of type %T", model.ErrInvalidConfiguration, config)
	}
	return newIO(opts), nil
}

// MustNew is like New but panics on error.
func MustNew(config any) *IO {
	io, err := New(config)
	if err != nil {
		panic(err)
	}
	return io
}

func newIO(opts Options) *IO {
	opts.Namespace = strings.TrimPrefix(opts.Namespace, "/")
	if opts.NewTransport == nil {
		opts.NewTransport = func(o ws.Options, logger *slog.Logger) transport.Server {
			return ws.NewServer(o, logger)
		}
	}

	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	io := &IO{
		opts:        opts,
		logger:      opts.Logger.With("component", "iohub", "namespace", displayName(opts.Namespace)),
		listeners:   newListenerTable(),
		connections: make(map[string]*Conn),
	}
	io.current.Store(&dispatchSnapshot{listeners: map[string][]pipeline.Handler{}})
	return io
}

func displayName(namespace string) string {
	if namespace == "" {
		return "/"
	}
	return "/" + namespace
}

// Namespace returns the namespace name, empty for the default namespace.
func (io *IO) Namespace() string {
	return io.opts.Namespace
}

func (io *IO) Hidden() bool {
	return io.opts.Hidden
}

// Options returns a copy of the registry's options.
func (io *IO) Options() Options {
	return io.opts
}

// Attached reports whether Attach has succeeded.
func (io *IO) Attached() bool {
	io.mu.Lock()
	defer io.mu.Unlock()
	return io.nsp != nil
}

// Use appends middleware. It applies to open connections from their next event.
func (io *IO) Use(mw pipeline.Middleware) *IO {
	if mw == nil {
		return io
	}
	io.mu.Lock()
	defer io.mu.Unlock()

	io.middleware = append(io.middleware, mw)
	io.publishLocked()
	return io
}

// On registers h for event. Handlers for "connect" and "connection" run when
// a socket arrives and need an attached registry; registering one earlier
// panics with ErrAttachmentRequired. Use OnConnect to get the error instead.
func (io *IO) On(event string, h pipeline.Handler) *IO {
	if err := io.on(event, h); err != nil {
		panic(err)
	}
	return io
}

// OnConnect registers h to run for every new connection.
func (io *IO) OnConnect(h pipeline.Handler) error {
	return io.on("connection", h)
}

func (io *IO) on(event string, h pipeline.Handler) error {
	if h == nil {
		return nil
	}
	io.mu.Lock()
	defer io.mu.Unlock()

	if isConnectEvent(event) {
		if io.nsp == nil {
			return fmt.Errorf("register %q handler: %w", event, model.ErrAttachmentRequired)
		}
		io.connect = append(io.connect, h)
	} else {
		io.listeners.add(event, h)
	}
	io.publishLocked()
	return nil
}

// Off removes handlers. An empty event clears every event handler; a nil h
// removes every handler of event; otherwise the first handler identical to h
// is removed. Removing something that is not registered does nothing.
func (io *IO) Off(event string, h pipeline.Handler) *IO {
	io.mu.Lock()
	defer io.mu.Unlock()

	switch {
	case event == "":
		io.listeners.clear()
	case isConnectEvent(event) && h == nil:
		io.connect = nil
	case isConnectEvent(event):
		if i := indexOf(io.connect, h); i >= 0 {
			io.connect = append(io.connect[:i:i], io.connect[i+1:]...)
		}
	case h == nil:
		io.listeners.removeEvent(event)
	default:
		io.listeners.remove(event, h)
	}
	io.publishLocked()
	return io
}

// publishLocked swaps in a snapshot of the current configuration.
func (io *IO) publishLocked() {
	snapshot := &dispatchSnapshot{
		listeners: io.listeners.snapshot(),
		connect:   append([]pipeline.Handler(nil), io.connect...),
	}
	if len(io.middleware) > 0 {
		snapshot.pipeline = pipeline.Compose(io.middleware)
	}
	io.current.Store(snapshot)
}

// Broadcast emits to every tracked connection. It bypasses middleware and
// handlers.
func (io *IO) Broadcast(event string, data any) {
	for _, conn := range io.Connections() {
		if err := conn.Emit(event, data); err != nil {
			io.logger.Debug("broadcast not delivered", "socket", conn.ID(), "event", event, "error", err)
		}
	}
}

// To returns an emitter for the sockets of this namespace in room.
func (io *IO) To(room string) (transport.Emitter, error) {
	io.mu.Lock()
	nsp := io.nsp
	io.mu.Unlock()

	if nsp == nil {
		return nil, fmt.Errorf("target room %q: %w", room, model.ErrAttachmentRequired)
	}
	return nsp.To(room), nil
}

// Size returns the number of open connections.
func (io *IO) Size() int {
	io.connMu.RLock()
	defer io.connMu.RUnlock()
	return len(io.connections)
}

// Connection returns the open connection with the given id.
func (io *IO) Connection(id string) (*Conn, bool) {
	io.connMu.RLock()
	defer io.connMu.RUnlock()
	conn, ok := io.connections[id]
	return conn, ok
}

// Connections returns the open connections ordered by id.
func (io *IO) Connections() []*Conn {
	io.connMu.RLock()
	conns := make([]*Conn, 0, len(io.connections))
	for _, conn := range io.connections {
		conns = append(conns, conn)
	}
	io.connMu.RUnlock()

	sort.Slice(conns, func(i, j int) bool { return conns[i].ID() < conns[j].ID() })
	return conns
}

// ConnectionIDs returns the sorted ids of the open connections.
func (io *IO) ConnectionIDs() []string {
	conns := io.Connections()
	ids := make([]string, len(conns))
	for i, conn := range conns {
		ids[i] = conn.ID()
	}
	return ids
}

// Disconnect closes the connection with the given id.
func (io *IO) Disconnect(id string) error {
	conn, ok := io.Connection(id)
	if !ok {
		return fmt.Errorf("disconnect %q: %w", id, model.ErrConnectionNotFound)
	}
	return conn.Disconnect()
}

// onConnection tracks a new socket, wires it and runs the connect handlers.
func (io *IO) onConnection(socket transport.Socket) {
	conn := newConn(io, socket)

	io.connMu.Lock()
	io.connections[conn.ID()] = conn
	io.connMu.Unlock()

	conn.wire()
	io.logger.Debug("connection opened", "socket", conn.ID())

	handlers := io.current.Load().connect
	if len(handlers) == 0 {
		return
	}
	data, err := codec.Marshal(conn.ID())
	if err != nil {
		io.logger.Error("encode connection id", "socket", conn.ID(), "error", err)
		return
	}
	conn.serialize(func() {
		for _, h := range handlers {
			io.invoke(nil, pipeline.NewContext("connection", data, socket, nil), h)
		}
	})
}

func (io *IO) remove(conn *Conn) {
	io.connMu.Lock()
	defer io.connMu.Unlock()
	if io.connections[conn.ID()] == conn {
		delete(io.connections, conn.ID())
	}
}

// invoke runs one handler. Errors end this dispatch only; the connection
// stays open.
func (io *IO) invoke(p pipeline.Pipeline, ctx *pipeline.Context, h pipeline.Handler) {
	err := run(p, ctx, h)
	if err == nil {
		return
	}

	socketID := ""
	if ctx.Socket != nil {
		socketID = ctx.Socket.ID()
	}
	io.logger.Error("event handler failed", "socket", socketID, "event", ctx.Event, "error", err)

	if io.opts.ErrorHandler != nil {
		io.opts.ErrorHandler(ctx, err)
	}
}
