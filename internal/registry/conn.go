package registry

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/remote-agent-terminal/iohub/internal/model"
	"github.com/remote-agent-terminal/iohub/internal/pipeline"
	"github.com/remote-agent-terminal/iohub/internal/transport"
)

// Conn is the registry's handle on one open socket. It holds no listener
// state of its own: every inbound event is routed through the registry's
// current dispatch snapshot, so configuration changes reach open connections
// on their next event.
type Conn struct {
	io     *IO
	socket transport.Socket

	// Dispatches of one connection run one at a time. A dispatch that arrives
	// while another is running, from a server-side disconnect or from inside
	// a handler, is queued and run by the goroutine already dispatching.
	mu      sync.Mutex
	running bool
	queue   []func()
}

func newConn(io *IO, socket transport.Socket) *Conn {
	return &Conn{io: io, socket: socket}
}

// ID returns the transport's connection id.
func (c *Conn) ID() string {
	return c.socket.ID()
}

// Socket returns the raw transport socket.
func (c *Conn) Socket() transport.Socket {
	return c.socket
}

// Emit sends an event to this connection only.
func (c *Conn) Emit(event string, data any) error {
	return c.socket.Emit(event, data)
}

// Disconnect closes the connection from the server side.
func (c *Conn) Disconnect() error {
	return c.socket.Disconnect()
}

// wire subscribes the connection to inbound events and to its own closing.
func (c *Conn) wire() {
	c.socket.OnAny(c.dispatch)
	c.socket.OnDisconnect(func(reason string) {
		c.io.remove(c)
		c.io.logger.Debug("connection closed", "socket", c.ID(), "reason", reason)
	})
}

// dispatch runs every handler registered for event, each through its own
// pipeline invocation with a fresh context.
func (c *Conn) dispatch(event string, data json.RawMessage, ack transport.AckFunc) {
	c.serialize(func() { c.dispatchNow(event, data, ack) })
}

func (c *Conn) dispatchNow(event string, data json.RawMessage, ack transport.AckFunc) {
	handlers := c.io.current.Load().listeners[event]
	for _, h := range handlers {
		ctx := pipeline.NewContext(event, data, c.socket, ack)
		c.io.invoke(c.io.current.Load().pipeline, ctx, h)
	}
}

// serialize runs task now when the connection is idle, otherwise queues it
// behind the running dispatch. It never blocks on another goroutine.
func (c *Conn) serialize(task func()) {
	c.mu.Lock()
	c.queue = append(c.queue, task)
	if c.running {
		c.mu.Unlock()
		return
	}
	c.running = true

	defer func() {
		if r := recover(); r != nil {
			c.mu.Lock()
			c.running = false
			c.queue = nil
			c.mu.Unlock()
			panic(r)
		}
	}()

	for len(c.queue) > 0 {
		next := c.queue[0]
		c.queue = c.queue[1:]
		c.mu.Unlock()
		next()
		c.mu.Lock()
	}
	c.running = false
	c.mu.Unlock()
}

// run executes h behind p, turning a panic into ErrHandlerPanic.
func run(p pipeline.Pipeline, ctx *pipeline.Context, h pipeline.Handler) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", model.ErrHandlerPanic, r)
		}
	}()

	if p == nil {
		return h(ctx)
	}
	return p(ctx, h)
}
