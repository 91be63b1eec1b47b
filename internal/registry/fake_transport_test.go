package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"sync"

	"github.com/remote-agent-terminal/iohub/internal/transport"
	"github.com/remote-agent-terminal/iohub/internal/ws"
)

var errFakeClosed = errors.New("fake socket closed")

type emitted struct {
	Event string
	Data  any
}

// fakeSocket is an in-memory transport.Socket driven by the test.
type fakeSocket struct {
	id     string
	nsp    *fakeNamespace
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.Mutex
	closed        bool
	listeners     map[string][]func(json.RawMessage, transport.AckFunc)
	any           []transport.EventListener
	disconnectFns []func(string)
	emits         []emitted
	rooms         map[string]bool
}

func (s *fakeSocket) ID() string        { return s.id }
func (s *fakeSocket) Namespace() string { return s.nsp.name }

func (s *fakeSocket) Context() context.Context { return s.ctx }

func (s *fakeSocket) Emit(event string, data any) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errFakeClosed
	}
	s.emits = append(s.emits, emitted{Event: event, Data: data})
	return nil
}

func (s *fakeSocket) Broadcast() transport.Emitter {
	return &fakeEmitter{nsp: s.nsp, except: s.id}
}

func (s *fakeSocket) On(event string, fn func(json.RawMessage, transport.AckFunc)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], fn)
}

func (s *fakeSocket) OnAny(fn transport.EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.any = append(s.any, fn)
}

func (s *fakeSocket) RemoveAllListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = make(map[string][]func(json.RawMessage, transport.AckFunc))
	s.any = nil
}

func (s *fakeSocket) OnDisconnect(fn func(string)) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		fn("already closed")
		return
	}
	s.disconnectFns = append(s.disconnectFns, fn)
	s.mu.Unlock()
}

func (s *fakeSocket) Join(rooms ...string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range rooms {
		s.rooms[room] = true
	}
}

func (s *fakeSocket) Leave(room string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.rooms, room)
}

func (s *fakeSocket) Rooms() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	rooms := make([]string, 0, len(s.rooms))
	for room := range s.rooms {
		rooms = append(rooms, room)
	}
	return rooms
}

func (s *fakeSocket) Disconnect() error {
	s.close("server namespace disconnect")
	return nil
}

// receive delivers an inbound event the way the transport does.
func (s *fakeSocket) receive(event string, data any, ack transport.AckFunc) {
	raw, _ := json.Marshal(data)
	s.mu.Lock()
	specific := append([]func(json.RawMessage, transport.AckFunc){}, s.listeners[event]...)
	catchAll := append([]transport.EventListener{}, s.any...)
	s.mu.Unlock()

	for _, fn := range specific {
		fn(raw, ack)
	}
	for _, fn := range catchAll {
		fn(event, raw, ack)
	}
}

func (s *fakeSocket) close(reason string) {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	fns := s.disconnectFns
	s.disconnectFns = nil
	s.mu.Unlock()

	s.nsp.drop(s)
	for _, fn := range fns {
		fn(reason)
	}
	s.receive("disconnect", reason, nil)
	s.cancel()
}

func (s *fakeSocket) emitsOf(event string) []emitted {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []emitted
	for _, e := range s.emits {
		if e.Event == event {
			out = append(out, e)
		}
	}
	return out
}

type fakeEmitter struct {
	nsp    *fakeNamespace
	rooms  []string
	except string
}

func (e *fakeEmitter) To(room string) transport.Emitter {
	return &fakeEmitter{nsp: e.nsp, rooms: append(append([]string{}, e.rooms...), room), except: e.except}
}

func (e *fakeEmitter) Emit(event string, data any) error {
	for _, s := range e.nsp.open() {
		if s.id == e.except {
			continue
		}
		if len(e.rooms) > 0 && !s.inAny(e.rooms) {
			continue
		}
		s.Emit(event, data)
	}
	return nil
}

func (s *fakeSocket) inAny(rooms []string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, room := range rooms {
		if s.rooms[room] || room == s.id {
			return true
		}
	}
	return false
}

type fakeNamespace struct {
	name string

	mu         sync.Mutex
	connectFns []func(transport.Socket)
	sockets    map[string]*fakeSocket
	seq        int
}

func (n *fakeNamespace) Name() string { return n.name }

func (n *fakeNamespace) OnConnection(fn func(transport.Socket)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectFns = append(n.connectFns, fn)
}

func (n *fakeNamespace) To(room string) transport.Emitter {
	return &fakeEmitter{nsp: n, rooms: []string{room}}
}

func (n *fakeNamespace) Emit(event string, data any) error {
	return (&fakeEmitter{nsp: n}).Emit(event, data)
}

func (n *fakeNamespace) Sockets() []transport.Socket {
	var out []transport.Socket
	for _, s := range n.open() {
		out = append(out, s)
	}
	return out
}

func (n *fakeNamespace) open() []*fakeSocket {
	n.mu.Lock()
	defer n.mu.Unlock()
	out := make([]*fakeSocket, 0, len(n.sockets))
	for _, s := range n.sockets {
		out = append(out, s)
	}
	return out
}

func (n *fakeNamespace) drop(s *fakeSocket) {
	n.mu.Lock()
	defer n.mu.Unlock()
	delete(n.sockets, s.id)
}

// connect simulates a client arriving on the namespace.
func (n *fakeNamespace) connect() *fakeSocket {
	n.mu.Lock()
	n.seq++
	ctx, cancel := context.WithCancel(context.Background())
	s := &fakeSocket{
		id:        fmt.Sprintf("%s#%d", n.name, n.seq),
		nsp:       n,
		ctx:       ctx,
		cancel:    cancel,
		listeners: make(map[string][]func(json.RawMessage, transport.AckFunc)),
		rooms:     make(map[string]bool),
	}
	n.sockets[s.id] = s
	fns := append([]func(transport.Socket){}, n.connectFns...)
	n.mu.Unlock()

	for _, fn := range fns {
		fn(s)
	}
	return s
}

// fakeServer stands in for the websocket server.
type fakeServer struct {
	mu         sync.Mutex
	namespaces map[string]*fakeNamespace
	closed     bool
}

func newFakeServer() *fakeServer {
	return &fakeServer{namespaces: make(map[string]*fakeNamespace)}
}

func (f *fakeServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusNotImplemented)
}

func (f *fakeServer) Path() string { return "/fake/" }

func (f *fakeServer) Of(name string) transport.Namespace {
	return f.namespace(name)
}

func (f *fakeServer) namespace(name string) *fakeNamespace {
	if name == "" || name[0] != '/' {
		name = "/" + name
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if ns, ok := f.namespaces[name]; ok {
		return ns
	}
	ns := &fakeNamespace{name: name, sockets: make(map[string]*fakeSocket)}
	f.namespaces[name] = ns
	return ns
}

func (f *fakeServer) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closed = true
	return nil
}

// withFake returns options that make a registry use server as its transport.
func withFake(server *fakeServer, opts Options) *Options {
	opts.NewTransport = func(ws.Options, *slog.Logger) transport.Server {
		return server
	}
	return &opts
}
