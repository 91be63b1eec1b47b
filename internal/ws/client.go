package ws

import (
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var (
	// ErrClientClosed is returned when writing to a closed client.
	ErrClientClosed = errors.New("client closed")

	// ErrSendBufferFull is returned when a slow client's send buffer overflows.
	// The client is closed when this happens.
	ErrSendBufferFull = errors.New("client send buffer full")
)

// Client represents one websocket connection. A client owns one Socket per
// namespace it has joined.
type Client struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan []byte
	mu     sync.Mutex
	closed bool

	sockets map[string]*Socket
}

// NewClient creates a client for an upgraded connection.
func NewClient(server *Server, conn *websocket.Conn) *Client {
	return &Client{
		id:      uuid.New().String(),
		server:  server,
		conn:    conn,
		send:    make(chan []byte, server.opts.SendBuffer),
		sockets: make(map[string]*Socket),
	}
}

// ID returns the client id. Sockets of the "/" namespace share it.
func (c *Client) ID() string {
	return c.id
}

// Send queues a frame for the write pump.
func (c *Client) Send(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed {
		return ErrClientClosed
	}

	select {
	case c.send <- data:
		return nil
	default:
		// Buffer full, close the client
		c.closeLocked()
		return ErrSendBufferFull
	}
}

// Close closes the send channel; the write pump then closes the connection.
func (c *Client) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.closeLocked()
}

func (c *Client) closeLocked() {
	if c.closed {
		return
	}
	c.closed = true
	close(c.send)
}

// IsClosed returns true if the client is closed.
func (c *Client) IsClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// Conn returns the underlying websocket connection.
func (c *Client) Conn() *websocket.Conn {
	return c.conn
}

// SendChan returns the send channel for the client.
func (c *Client) SendChan() <-chan []byte {
	return c.send
}

// Socket returns the client's socket on namespace nsp.
func (c *Client) Socket(nsp string) (*Socket, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sockets[normalizeNamespace(nsp)]
	return s, ok
}

func (c *Client) sendPacket(p *Packet) error {
	data, err := encodePacket(p)
	if err != nil {
		return err
	}
	return c.Send(data)
}

// connect joins the client to ns and announces the socket id to the peer
// before connection listeners run.
func (c *Client) connect(ns *Namespace) *Socket {
	sock := newSocket(ns, c)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.sockets[ns.name] = sock
	c.mu.Unlock()

	data, _ := encodeData(map[string]string{"sid": sock.id})
	if err := c.sendPacket(&Packet{Type: PacketConnect, Namespace: ns.name, Data: data}); err != nil {
		c.server.logger.Debug("connect ack not delivered", "client", c.id, "nsp", ns.name, "error", err)
	}

	ns.add(sock)
	return sock
}

func (c *Client) detach(sock *Socket) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.sockets[sock.nsp.name] == sock {
		delete(c.sockets, sock.nsp.name)
	}
}

// handlePacket routes one decoded frame. It runs on the read pump, so events
// of a client are handled in arrival order.
func (c *Client) handlePacket(p *Packet) {
	logger := c.server.logger

	switch p.Type {
	case PacketConnect:
		if _, ok := c.Socket(p.Namespace); ok {
			return
		}
		ns, ok := c.server.lookup(p.Namespace)
		if !ok {
			data, _ := encodeData("Invalid namespace")
			c.sendPacket(&Packet{Type: PacketError, Namespace: p.Namespace, Data: data})
			return
		}
		c.connect(ns)
	case PacketDisconnect:
		if sock, ok := c.Socket(p.Namespace); ok {
			sock.onClose("client namespace disconnect")
		}
	case PacketEvent:
		sock, ok := c.Socket(p.Namespace)
		if !ok {
			logger.Debug("event for unjoined namespace", "client", c.id, "nsp", p.Namespace, "event", p.Event)
			return
		}
		sock.onEvent(p)
	default:
		logger.Warn("unhandled packet", "client", c.id, "type", p.Type)
	}
}

// teardown closes every socket of the client.
func (c *Client) teardown(reason string) {
	c.mu.Lock()
	sockets := make([]*Socket, 0, len(c.sockets))
	for _, sock := range c.sockets {
		sockets = append(sockets, sock)
	}
	c.sockets = make(map[string]*Socket)
	c.closeLocked()
	c.mu.Unlock()

	for _, sock := range sockets {
		sock.onClose(reason)
	}
}
