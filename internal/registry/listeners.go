package registry

import (
	"unsafe"

	"github.com/remote-agent-terminal/iohub/internal/pipeline"
)

// listenerTable maps event names to handlers in registration order.
// It is only touched under the registry's writer lock.
type listenerTable struct {
	events map[string][]pipeline.Handler
}

func newListenerTable() *listenerTable {
	return &listenerTable{events: make(map[string][]pipeline.Handler)}
}

func (t *listenerTable) add(event string, h pipeline.Handler) {
	t.events[event] = append(t.events[event], h)
}

// remove drops the first handler with the same identity as h. A handler that
// was never added is ignored.
func (t *listenerTable) remove(event string, h pipeline.Handler) {
	handlers, ok := t.events[event]
	if !ok {
		return
	}
	if i := indexOf(handlers, h); i >= 0 {
		t.events[event] = append(handlers[:i:i], handlers[i+1:]...)
	}
}

func (t *listenerTable) removeEvent(event string) {
	delete(t.events, event)
}

func (t *listenerTable) clear() {
	t.events = make(map[string][]pipeline.Handler)
}

// snapshot returns a deep copy that later mutations never reach.
func (t *listenerTable) snapshot() map[string][]pipeline.Handler {
	out := make(map[string][]pipeline.Handler, len(t.events))
	for event, handlers := range t.events {
		out[event] = append([]pipeline.Handler(nil), handlers...)
	}
	return out
}

// handlerID identifies a handler by the closure it points to. Two closures
// built from the same literal share code but not the closure, so they stay
// distinct.
func handlerID(h pipeline.Handler) unsafe.Pointer {
	return *(*unsafe.Pointer)(unsafe.Pointer(&h))
}

func indexOf(handlers []pipeline.Handler, h pipeline.Handler) int {
	if h == nil {
		return -1
	}
	id := handlerID(h)
	for i, candidate := range handlers {
		if handlerID(candidate) == id {
			return i
		}
	}
	return -1
}

func isConnectEvent(event string) bool {
	return event == "connect" || event == "connection"
}
