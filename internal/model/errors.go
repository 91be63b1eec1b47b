package model

import "errors"

var (
	// ErrInvalidConfiguration is returned when a registry is constructed with
	// something other than a namespace id, an options value or nothing.
	ErrInvalidConfiguration = errors.New("incorrect argument passed to registry constructor")

	// ErrAttachmentRequired is returned when an operation needs a live transport
	// binding (connection handlers, room targeting) before Attach succeeded.
	ErrAttachmentRequired = errors.New("operation requires an attached transport")

	// ErrDuplicateDefaultNamespace is returned when a second default registry
	// attaches to a host that already has a transport instance.
	ErrDuplicateDefaultNamespace = errors.New("default namespace already attached to host")

	// ErrInvalidHostServer is returned when the host already exposes a server
	// that is not an *http.Server.
	ErrInvalidHostServer = errors.New("host server exists but it is not an http server")

	// ErrDuplicateNamespace is returned when a namespace id is already published on the host.
	ErrDuplicateNamespace = errors.New("namespace already attached to host")

	// ErrHiddenDefaultNamespace is returned when a default registry is marked hidden.
	ErrHiddenDefaultNamespace = errors.New("default namespace can not be hidden")

	// ErrAlreadyAttached is returned when Attach is called on an attached registry.
	ErrAlreadyAttached = errors.New("registry already attached")

	// ErrHandlerPanic wraps a panic recovered while dispatching an event.
	ErrHandlerPanic = errors.New("event handler panicked")

	// ErrConnectionNotFound is returned when a connection id is not tracked.
	ErrConnectionNotFound = errors.New("connection not found")

	// ErrPresenceNotFound is returned when a presence record does not exist.
	ErrPresenceNotFound = errors.New("presence record not found")

	// ErrPresenceIncomplete is returned when a presence event lacks its id or connection id.
	ErrPresenceIncomplete = errors.New("presence event requires id and connection id")

	// ErrInvalidPresenceKind is returned for presence kinds other than connected/disconnected.
	ErrInvalidPresenceKind = errors.New("invalid presence kind")
)
