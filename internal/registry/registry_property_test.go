package registry

import (
	"fmt"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"

	"github.com/remote-agent-terminal/iohub/internal/host"
	"github.com/remote-agent-terminal/iohub/internal/pipeline"
)

type opKind int

const (
	opUse opKind = iota
	opOn
	opOff
	opOffEvent
	opOffAll
	opConnect
	opDisconnect
	opKinds
)

type registryOp struct {
	Kind opKind
	Arg  int
}

func genRegistryOps() gopter.Gen {
	op := gopter.CombineGens(gen.IntRange(0, int(opKinds)-1), gen.IntRange(0, 7)).Map(func(v []interface{}) registryOp {
		return registryOp{Kind: opKind(v[0].(int)), Arg: v[1].(int)}
	})
	return gen.SliceOf(op)
}

var propertyEvents = []string{"a", "b"}

// harness drives one registry through a sequence of operations.
type harness struct {
	io       *IO
	nsp      *fakeNamespace
	trace    []string
	handlers []pipeline.Handler
	open     []*fakeSocket
	closed   []*fakeSocket
	connects int
	drops    int
}

func newHarness() (*harness, error) {
	server := newFakeServer()
	io := MustNew(withFake(server, Options{}))
	if _, err := io.Attach(host.NewApp(gin.New())); err != nil {
		return nil, err
	}

	h := &harness{io: io, nsp: server.namespace("/")}
	h.handlers = []pipeline.Handler{
		func(ctx *pipeline.Context) error { h.record("h0", ctx); return nil },
		func(ctx *pipeline.Context) error { h.record("h1", ctx); return nil },
		func(ctx *pipeline.Context) error { h.record("h2", ctx); return nil },
		func(ctx *pipeline.Context) error { h.record("h3", ctx); return nil },
	}
	return h, nil
}

func (h *harness) record(name string, ctx *pipeline.Context) {
	tags, _ := ctx.Get("tags")
	h.trace = append(h.trace, fmt.Sprintf("%s:%s:%v", name, ctx.Event, tags))
}

func (h *harness) apply(op registryOp) {
	event := propertyEvents[op.Arg%len(propertyEvents)]
	handler := h.handlers[op.Arg%len(h.handlers)]

	switch op.Kind {
	case opUse:
		tag := fmt.Sprintf("m%d", op.Arg)
		h.io.Use(func(ctx *pipeline.Context, next pipeline.Next) error {
			tags, _ := ctx.Get("tags")
			ctx.Set("tags", fmt.Sprintf("%v/%s", tags, tag))
			h.trace = append(h.trace, tag)
			return next()
		})
	case opOn:
		h.io.On(event, handler)
	case opOff:
		h.io.Off(event, handler)
	case opOffEvent:
		h.io.Off(event, nil)
	case opOffAll:
		h.io.Off("", nil)
	case opConnect:
		h.open = append(h.open, h.nsp.connect())
		h.connects++
	case opDisconnect:
		if len(h.open) == 0 {
			return
		}
		i := op.Arg % len(h.open)
		sock := h.open[i]
		h.open = append(h.open[:i], h.open[i+1:]...)
		h.closed = append(h.closed, sock)
		sock.close("transport close")
		h.drops++
	}
}

// dispatchTrace returns what handling event on sock looks like.
func (h *harness) dispatchTrace(sock *fakeSocket, event string) []string {
	h.trace = nil
	sock.receive(event, nil, nil)
	return append([]string(nil), h.trace...)
}

func equalTraces(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestRegistryProperties(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("open connections dispatch like a fresh connection", prop.ForAll(
		func(ops []registryOp) bool {
			h, err := newHarness()
			if err != nil {
				return false
			}
			for _, op := range ops {
				h.apply(op)
			}

			fresh := h.nsp.connect()
			for _, event := range propertyEvents {
				want := h.dispatchTrace(fresh, event)
				for _, sock := range h.open {
					if !equalTraces(h.dispatchTrace(sock, event), want) {
						return false
					}
				}
			}
			return true
		},
		genRegistryOps(),
	))

	properties.Property("size equals connects minus disconnects", prop.ForAll(
		func(ops []registryOp) bool {
			h, err := newHarness()
			if err != nil {
				return false
			}
			for _, op := range ops {
				h.apply(op)
				if h.io.Size() != h.connects-h.drops {
					return false
				}
			}
			return len(h.io.ConnectionIDs()) == len(h.open)
		},
		genRegistryOps(),
	))

	properties.Property("broadcast reaches exactly the tracked connections", prop.ForAll(
		func(ops []registryOp) bool {
			h, err := newHarness()
			if err != nil {
				return false
			}
			for _, op := range ops {
				h.apply(op)
			}

			h.io.Broadcast("ping", 1)
			for _, sock := range h.open {
				if len(sock.emitsOf("ping")) != 1 {
					return false
				}
			}
			for _, sock := range h.closed {
				if len(sock.emitsOf("ping")) != 0 {
					return false
				}
			}
			return true
		},
		genRegistryOps(),
	))

	properties.Property("removing an unregistered handler changes nothing", prop.ForAll(
		func(ops []registryOp) bool {
			h, err := newHarness()
			if err != nil {
				return false
			}
			for _, op := range ops {
				h.apply(op)
			}
			sock := h.nsp.connect()

			before := map[string][]string{}
			for _, event := range propertyEvents {
				before[event] = h.dispatchTrace(sock, event)
			}

			h.io.Off("a", func(*pipeline.Context) error { return nil })
			h.io.Off("never-registered", h.handlers[0])

			for _, event := range propertyEvents {
				if !equalTraces(before[event], h.dispatchTrace(sock, event)) {
					return false
				}
			}
			return true
		},
		genRegistryOps(),
	))

	properties.Property("clearing leaves no handler to run", prop.ForAll(
		func(ops []registryOp) bool {
			h, err := newHarness()
			if err != nil {
				return false
			}
			for _, op := range ops {
				h.apply(op)
			}
			h.io.Off("", nil)

			sockets := append([]*fakeSocket{h.nsp.connect()}, h.open...)
			for _, sock := range sockets {
				for _, event := range propertyEvents {
					if len(h.dispatchTrace(sock, event)) != 0 {
						return false
					}
				}
			}
			return true
		},
		genRegistryOps(),
	))

	properties.TestingRun(t)
}
