package ws

import (
	"sort"
	"sync"

	"github.com/remote-agent-terminal/iohub/internal/transport"
)

// Namespace groups the sockets clients opened on one channel name.
type Namespace struct {
	name    string
	server  *Server
	adapter *Adapter

	mu         sync.RWMutex
	sockets    map[string]*Socket
	connectFns []func(transport.Socket)
}

var _ transport.Namespace = (*Namespace)(nil)

func newNamespace(server *Server, name string) *Namespace {
	return &Namespace{
		name:    name,
		server:  server,
		adapter: NewAdapter(),
		sockets: make(map[string]*Socket),
	}
}

func (n *Namespace) Name() string {
	return n.name
}

// Adapter returns the room adapter of the namespace.
func (n *Namespace) Adapter() *Adapter {
	return n.adapter
}

// OnConnection registers fn for every socket that connects from now on.
func (n *Namespace) OnConnection(fn func(transport.Socket)) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.connectFns = append(n.connectFns, fn)
}

func (n *Namespace) To(room string) transport.Emitter {
	return &broadcastOperator{nsp: n, rooms: []string{room}}
}

// Emit sends an event to every socket of the namespace.
func (n *Namespace) Emit(event string, data any) error {
	return (&broadcastOperator{nsp: n}).Emit(event, data)
}

func (n *Namespace) Sockets() []transport.Socket {
	n.mu.RLock()
	defer n.mu.RUnlock()

	sockets := make([]transport.Socket, 0, len(n.sockets))
	for _, s := range n.sockets {
		sockets = append(sockets, s)
	}
	sort.Slice(sockets, func(i, j int) bool { return sockets[i].ID() < sockets[j].ID() })
	return sockets
}

// Socket returns the connected socket with the given id.
func (n *Namespace) Socket(id string) (*Socket, bool) {
	n.mu.RLock()
	defer n.mu.RUnlock()
	s, ok := n.sockets[id]
	return s, ok
}

// SocketCount returns the number of connected sockets.
func (n *Namespace) SocketCount() int {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return len(n.sockets)
}

func (n *Namespace) add(s *Socket) {
	n.mu.Lock()
	n.sockets[s.id] = s
	fns := append([]func(transport.Socket){}, n.connectFns...)
	n.mu.Unlock()

	n.adapter.Add(s.id, s.id)

	for _, fn := range fns {
		fn(s)
	}
}

func (n *Namespace) remove(s *Socket) {
	n.mu.Lock()
	if n.sockets[s.id] == s {
		delete(n.sockets, s.id)
	}
	n.mu.Unlock()

	n.adapter.DelAll(s.id)
}

// broadcastOperator emits to the sockets of a namespace, narrowed to rooms
// and excluding one socket.
type broadcastOperator struct {
	nsp    *Namespace
	rooms  []string
	except string
}

func (b *broadcastOperator) To(room string) transport.Emitter {
	rooms := make([]string, len(b.rooms), len(b.rooms)+1)
	copy(rooms, b.rooms)
	return &broadcastOperator{nsp: b.nsp, rooms: append(rooms, room), except: b.except}
}

func (b *broadcastOperator) Emit(event string, data any) error {
	raw, err := encodeData(data)
	if err != nil {
		return err
	}
	frame, err := encodePacket(&Packet{
		Type:      PacketEvent,
		Namespace: b.nsp.name,
		Event:     event,
		Data:      raw,
	})
	if err != nil {
		return err
	}

	for _, id := range b.nsp.adapter.SocketsIn(b.rooms...) {
		if id == b.except {
			continue
		}
		s, ok := b.nsp.Socket(id)
		if !ok || !s.Connected() {
			continue
		}
		if err := s.client.Send(frame); err != nil {
			b.nsp.server.logger.Debug("broadcast frame dropped", "socket", id, "event", event, "error", err)
		}
	}
	return nil
}
