// Package transport declares the boundary between the connection registry and
// the bidirectional socket server underneath it.
//
// The registry only depends on these interfaces; internal/ws provides the
// websocket implementation used in production.
package transport

import (
	"context"
	"encoding/json"
	"net/http"
)

// AckFunc satisfies a remote caller that asked for a response to an event.
type AckFunc func(data any) error

// EventListener receives every inbound event on a socket.
type EventListener func(event string, data json.RawMessage, ack AckFunc)

// Emitter sends events to a set of sockets, optionally narrowed to rooms.
type Emitter interface {
	To(room string) Emitter
	Emit(event string, data any) error
}

// Socket is one connection scoped to a namespace.
type Socket interface {
	ID() string
	Namespace() string

	// Emit sends an event to this socket only.
	Emit(event string, data any) error

	// Broadcast returns an emitter targeting every other socket of the namespace.
	Broadcast() Emitter

	On(event string, fn func(data json.RawMessage, ack AckFunc))
	OnAny(fn EventListener)

	// RemoveAllListeners drops event listeners. Disconnect callbacks survive.
	RemoveAllListeners()

	// OnDisconnect registers fn to run once when the socket closes. If the
	// socket is already closed fn runs immediately.
	OnDisconnect(fn func(reason string))

	Join(rooms ...string)
	Leave(room string)
	Rooms() []string

	Disconnect() error

	// Context is cancelled once the socket is closed.
	Context() context.Context
}

// Namespace is a logical sub-channel of a Server.
type Namespace interface {
	Name() string
	OnConnection(fn func(Socket))
	To(room string) Emitter
	Emit(event string, data any) error
	Sockets() []Socket
}

// Server is the transport instance mounted on the host.
type Server interface {
	http.Handler

	// Path is where the server expects upgrade requests.
	Path() string

	// Of returns the namespace with the given name, creating it if needed.
	Of(name string) Namespace

	Close() error
}
