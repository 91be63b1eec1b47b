package ws

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/stretchr/testify/require"
)

// peer is a websocket client speaking the packet protocol.
type peer struct {
	t    *testing.T
	conn *websocket.Conn
	sid  string
}

func startServer(t *testing.T, opts Options) (*Server, *httptest.Server) {
	t.Helper()
	server := NewServer(opts, nil)
	httpServer := httptest.NewServer(server)
	t.Cleanup(func() {
		server.Close()
		httpServer.Close()
	})
	return server, httpServer
}

func dialPeer(t *testing.T, httpServer *httptest.Server, path string) *peer {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	url := "ws" + strings.TrimPrefix(httpServer.URL, "http") + path
	conn, _, err := websocket.Dial(ctx, url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "") })

	p := &peer{t: t, conn: conn}
	hello := p.read()
	require.Equal(t, PacketConnect, hello.Type)
	require.Equal(t, "/", hello.Namespace)

	var sid struct {
		SID string `json:"sid"`
	}
	require.NoError(t, json.Unmarshal(hello.Data, &sid))
	p.sid = sid.SID
	return p
}

func (p *peer) read() *Packet {
	p.t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	_, data, err := p.conn.Read(ctx)
	require.NoError(p.t, err)
	packet, err := decodePacket(data)
	require.NoError(p.t, err)
	return packet
}

// readEvent skips frames until an event packet arrives.
func (p *peer) readEvent() *Packet {
	p.t.Helper()
	for {
		packet := p.read()
		if packet.Type == PacketEvent {
			return packet
		}
	}
}

func (p *peer) write(packet *Packet) {
	p.t.Helper()
	data, err := encodePacket(packet)
	require.NoError(p.t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	require.NoError(p.t, p.conn.Write(ctx, websocket.MessageText, data))
}

func (p *peer) emit(nsp, event string, data any, ackID string) {
	p.t.Helper()
	raw, err := encodeData(data)
	require.NoError(p.t, err)
	p.write(&Packet{Type: PacketEvent, Namespace: nsp, Event: event, Data: raw, AckID: ackID})
}
