package pipeline

import (
	"context"
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"

	"github.com/remote-agent-terminal/iohub/internal/transport"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// Context is built fresh for every handler invocation and flows through the
// compiled pipeline. Middleware contributes fields through Set/Get.
type Context struct {
	Event       string
	Data        json.RawMessage
	Socket      transport.Socket
	Acknowledge transport.AckFunc

	keys map[string]any
}

// NewContext creates a Context for one dispatched event.
func NewContext(event string, data json.RawMessage, socket transport.Socket, ack transport.AckFunc) *Context {
	return &Context{
		Event:       event,
		Data:        data,
		Socket:      socket,
		Acknowledge: ack,
	}
}

// Set stores a value for downstream middleware and handlers.
func (c *Context) Set(key string, value any) {
	if c.keys == nil {
		c.keys = make(map[string]any)
	}
	c.keys[key] = value
}

// Get returns the value stored under key.
func (c *Context) Get(key string) (any, bool) {
	v, ok := c.keys[key]
	return v, ok
}

// MustGet returns the value stored under key and panics if it is missing.
func (c *Context) MustGet(key string) any {
	if v, ok := c.keys[key]; ok {
		return v
	}
	panic(fmt.Sprintf("key %q does not exist", key))
}

// GetString returns the value under key as a string, or "" if absent or not a string.
func (c *Context) GetString(key string) string {
	s, _ := c.keys[key].(string)
	return s
}

// Keys returns a copy of the extension map.
func (c *Context) Keys() map[string]any {
	out := make(map[string]any, len(c.keys))
	for k, v := range c.keys {
		out[k] = v
	}
	return out
}

// Bind decodes the event payload into v.
func (c *Context) Bind(v any) error {
	if len(c.Data) == 0 {
		return fmt.Errorf("bind %s: empty payload", c.Event)
	}
	if err := codec.Unmarshal(c.Data, v); err != nil {
		return fmt.Errorf("bind %s: %w", c.Event, err)
	}
	return nil
}

// HasAck reports whether the remote caller is waiting for an acknowledgement.
func (c *Context) HasAck() bool {
	return c.Acknowledge != nil
}

// Ack answers the remote caller. It is a no-op when no ack was requested.
func (c *Context) Ack(data any) error {
	if c.Acknowledge == nil {
		return nil
	}
	return c.Acknowledge(data)
}

// Emit sends an event back to the socket the context belongs to.
func (c *Context) Emit(event string, data any) error {
	if c.Socket == nil {
		return nil
	}
	return c.Socket.Emit(event, data)
}

// Context returns the socket's lifetime context, or context.Background when
// the context is not bound to a socket.
func (c *Context) Context() context.Context {
	if c.Socket == nil {
		return context.Background()
	}
	return c.Socket.Context()
}
