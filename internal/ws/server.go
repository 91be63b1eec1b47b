package ws

import (
	"log/slog"
	"net/http"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/remote-agent-terminal/iohub/internal/transport"
)

const (
	// Time allowed to write a message to the peer.
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer.
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer.
	maxMessageSize = 8192

	sendBufferSize = 256

	// DefaultPath is where clients send upgrade requests unless configured otherwise.
	DefaultPath = "/socket.io/"
)

// Options configures a Server.
type Options struct {
	Path           string        `yaml:"path"`
	WriteWait      time.Duration `yaml:"write_wait"`
	PongWait       time.Duration `yaml:"pong_wait"`
	PingPeriod     time.Duration `yaml:"ping_period"`
	MaxMessageSize int64         `yaml:"max_message_size"`
	SendBuffer     int           `yaml:"send_buffer"`

	// CheckOrigin overrides the upgrader's origin check. Nil accepts every origin.
	CheckOrigin func(r *http.Request) bool `yaml:"-"`
}

// DefaultOptions returns the options used for zero fields.
func DefaultOptions() Options {
	return Options{
		Path:           DefaultPath,
		WriteWait:      writeWait,
		PongWait:       pongWait,
		PingPeriod:     pingPeriod,
		MaxMessageSize: maxMessageSize,
		SendBuffer:     sendBufferSize,
	}
}

func (o Options) withDefaults() Options {
	d := DefaultOptions()
	if o.Path == "" {
		o.Path = d.Path
	}
	if o.WriteWait <= 0 {
		o.WriteWait = d.WriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = d.PongWait
	}
	if o.PingPeriod <= 0 || o.PingPeriod >= o.PongWait {
		o.PingPeriod = (o.PongWait * 9) / 10
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = d.MaxMessageSize
	}
	if o.SendBuffer <= 0 {
		o.SendBuffer = d.SendBuffer
	}
	return o
}

// Server upgrades HTTP requests to websocket clients and routes their packets
// to namespaces.
type Server struct {
	opts     Options
	upgrader websocket.Upgrader
	logger   *slog.Logger

	mu         sync.RWMutex
	namespaces map[string]*Namespace
	clients    map[string]*Client
	closed     bool
}

var _ transport.Server = (*Server)(nil)

// NewServer creates a websocket server with the "/" namespace ready.
func NewServer(opts Options, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	opts = opts.withDefaults()

	checkOrigin := opts.CheckOrigin
	if checkOrigin == nil {
		checkOrigin = func(r *http.Request) bool { return true }
	}

	s := &Server{
		opts: opts,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     checkOrigin,
		},
		logger:     logger.With("component", "ws"),
		namespaces: make(map[string]*Namespace),
		clients:    make(map[string]*Client),
	}
	s.namespaces["/"] = newNamespace(s, "/")
	return s
}

func (s *Server) Path() string {
	return s.opts.Path
}

// Options returns the effective options.
func (s *Server) Options() Options {
	return s.opts
}

// Of returns the namespace called name, creating it on first use.
func (s *Server) Of(name string) transport.Namespace {
	return s.namespace(name)
}

func (s *Server) namespace(name string) *Namespace {
	name = normalizeNamespace(name)

	s.mu.Lock()
	defer s.mu.Unlock()
	if ns, ok := s.namespaces[name]; ok {
		return ns
	}
	ns := newNamespace(s, name)
	s.namespaces[name] = ns
	return ns
}

// lookup never creates: clients may only join namespaces the server declared.
func (s *Server) lookup(name string) (*Namespace, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ns, ok := s.namespaces[normalizeNamespace(name)]
	return ns, ok
}

// Root returns the "/" namespace.
func (s *Server) Root() *Namespace {
	ns, _ := s.lookup("/")
	return ns
}

// Namespaces returns the sorted names of every declared namespace.
func (s *Server) Namespaces() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	names := make([]string, 0, len(s.namespaces))
	for name := range s.namespaces {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// ClientCount returns the number of open websocket clients.
func (s *Server) ClientCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.clients)
}

// Client returns the open client with the given id.
func (s *Server) Client(id string) (*Client, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.clients[id]
	return c, ok
}

func (s *Server) addClient(c *Client) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return false
	}
	s.clients[c.id] = c
	return true
}

func (s *Server) removeClient(c *Client) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.clients, c.id)
}

// Close stops accepting upgrades and closes every client.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	clients := make([]*Client, 0, len(s.clients))
	for _, c := range s.clients {
		clients = append(clients, c)
	}
	s.mu.Unlock()

	for _, c := range clients {
		c.teardown("server shutting down")
	}
	return nil
}

// ServeHTTP upgrades the request and connects the client to "/".
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		http.Error(w, "server closed", http.StatusServiceUnavailable)
		return
	}

	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "remote", r.RemoteAddr, "error", err)
		return
	}

	client := NewClient(s, conn)
	if !s.addClient(client) {
		conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, "server closed"))
		conn.Close()
		return
	}
	s.logger.Debug("client connected", "client", client.id, "remote", r.RemoteAddr)

	go s.writePump(client)
	client.connect(s.Root())
	go s.readPump(client)
}

// readPump decodes frames from the connection. Packets of one client are
// handled sequentially on this goroutine.
func (s *Server) readPump(client *Client) {
	reason := "transport close"
	defer func() {
		client.teardown(reason)
		s.removeClient(client)
		client.Conn().Close()
		s.logger.Debug("client disconnected", "client", client.id, "reason", reason)
	}()

	conn := client.Conn()
	conn.SetReadLimit(s.opts.MaxMessageSize)
	conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(s.opts.PongWait))
		return nil
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "client", client.id, "error", err)
				reason = "transport error"
			}
			return
		}

		p, err := decodePacket(message)
		if err != nil {
			s.logger.Warn("dropping malformed frame", "client", client.id, "error", err)
			continue
		}
		client.handlePacket(p)
	}
}

// writePump writes queued frames and keeps the connection alive with pings.
func (s *Server) writePump(client *Client) {
	ticker := time.NewTicker(s.opts.PingPeriod)
	conn := client.Conn()
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	for {
		select {
		case message, ok := <-client.SendChan():
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if !ok {
				// The client closed the channel.
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			// One packet per frame; clients parse each frame as a single JSON document.
			if err := conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

			n := len(client.SendChan())
			for i := 0; i < n; i++ {
				queued, ok := <-client.SendChan()
				if !ok {
					conn.WriteMessage(websocket.CloseMessage, []byte{})
					return
				}
				conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
				if err := conn.WriteMessage(websocket.TextMessage, queued); err != nil {
					return
				}
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(s.opts.WriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
