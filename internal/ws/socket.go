package ws

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/remote-agent-terminal/iohub/internal/transport"
)

var (
	// ErrSocketClosed is returned when emitting on a disconnected socket.
	ErrSocketClosed = errors.New("socket closed")

	// ErrAckAlreadySent is returned when an acknowledgement is answered twice.
	ErrAckAlreadySent = errors.New("acknowledgement already sent")
)

// Socket is a client's presence in one namespace.
type Socket struct {
	id     string
	nsp    *Namespace
	client *Client
	ctx    context.Context
	cancel context.CancelFunc

	mu            sync.RWMutex
	connected     bool
	reason        string
	listeners     map[string][]func(json.RawMessage, transport.AckFunc)
	anyListeners  []transport.EventListener
	disconnectFns []func(string)
}

var _ transport.Socket = (*Socket)(nil)

func newSocket(ns *Namespace, client *Client) *Socket {
	id := client.id
	if ns.name != "/" {
		id = ns.name + "#" + client.id
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Socket{
		id:        id,
		nsp:       ns,
		client:    client,
		ctx:       ctx,
		cancel:    cancel,
		connected: true,
		listeners: make(map[string][]func(json.RawMessage, transport.AckFunc)),
	}
}

func (s *Socket) ID() string {
	return s.id
}

func (s *Socket) Namespace() string {
	return s.nsp.name
}

// Client returns the websocket client the socket belongs to.
func (s *Socket) Client() *Client {
	return s.client
}

func (s *Socket) Context() context.Context {
	return s.ctx
}

// Connected reports whether the socket is still open.
func (s *Socket) Connected() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

func (s *Socket) Emit(event string, data any) error {
	if event == "" {
		return fmt.Errorf("emit: event name is required")
	}
	if !s.Connected() {
		return ErrSocketClosed
	}

	raw, err := encodeData(data)
	if err != nil {
		return err
	}
	return s.client.sendPacket(&Packet{
		Type:      PacketEvent,
		Namespace: s.nsp.name,
		Event:     event,
		Data:      raw,
	})
}

func (s *Socket) Broadcast() transport.Emitter {
	return &broadcastOperator{nsp: s.nsp, except: s.id}
}

func (s *Socket) On(event string, fn func(data json.RawMessage, ack transport.AckFunc)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners[event] = append(s.listeners[event], fn)
}

func (s *Socket) OnAny(fn transport.EventListener) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.anyListeners = append(s.anyListeners, fn)
}

func (s *Socket) RemoveAllListeners() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.listeners = make(map[string][]func(json.RawMessage, transport.AckFunc))
	s.anyListeners = nil
}

func (s *Socket) OnDisconnect(fn func(reason string)) {
	s.mu.Lock()
	if !s.connected {
		reason := s.reason
		s.mu.Unlock()
		fn(reason)
		return
	}
	s.disconnectFns = append(s.disconnectFns, fn)
	s.mu.Unlock()
}

func (s *Socket) Join(rooms ...string) {
	s.nsp.adapter.Add(s.id, rooms...)
}

func (s *Socket) Leave(room string) {
	s.nsp.adapter.Del(s.id, room)
}

func (s *Socket) Rooms() []string {
	return s.nsp.adapter.RoomsOf(s.id)
}

// Disconnect closes the socket from the server side. The websocket client
// stays open and may reconnect to the namespace.
func (s *Socket) Disconnect() error {
	if !s.Connected() {
		return nil
	}
	if err := s.client.sendPacket(&Packet{Type: PacketDisconnect, Namespace: s.nsp.name}); err != nil {
		s.nsp.server.logger.Debug("disconnect packet not delivered", "socket", s.id, "error", err)
	}
	s.onClose("server namespace disconnect")
	return nil
}

func (s *Socket) onEvent(p *Packet) {
	if _, reserved := reservedEvents[p.Event]; reserved || p.Event == "" {
		s.nsp.server.logger.Warn("dropping reserved event from client", "socket", s.id, "event", p.Event)
		return
	}

	var ack transport.AckFunc
	if p.AckID != "" {
		ack = s.ackFunc(p.AckID)
	}
	s.dispatch(p.Event, p.Data, ack)
}

func (s *Socket) ackFunc(id string) transport.AckFunc {
	var sent atomic.Bool
	return func(data any) error {
		if !sent.CompareAndSwap(false, true) {
			return ErrAckAlreadySent
		}
		raw, err := encodeData(data)
		if err != nil {
			return err
		}
		return s.client.sendPacket(&Packet{
			Type:      PacketAck,
			Namespace: s.nsp.name,
			AckID:     id,
			Data:      raw,
		})
	}
}

func (s *Socket) dispatch(event string, data json.RawMessage, ack transport.AckFunc) {
	s.mu.RLock()
	specific := append([]func(json.RawMessage, transport.AckFunc){}, s.listeners[event]...)
	catchAll := append([]transport.EventListener{}, s.anyListeners...)
	s.mu.RUnlock()

	for _, fn := range specific {
		fn(data, ack)
	}
	for _, fn := range catchAll {
		fn(event, data, ack)
	}
}

// onClose runs once: it leaves the namespace, runs disconnect callbacks and
// then delivers a "disconnect" event to the socket's listeners.
func (s *Socket) onClose(reason string) {
	s.mu.Lock()
	if !s.connected {
		s.mu.Unlock()
		return
	}
	s.connected = false
	s.reason = reason
	fns := s.disconnectFns
	s.disconnectFns = nil
	s.mu.Unlock()

	s.nsp.remove(s)
	s.client.detach(s)

	for _, fn := range fns {
		fn(reason)
	}

	data, _ := encodeData(reason)
	s.dispatch("disconnect", data, nil)
	s.cancel()
}
