package ws

import (
	"encoding/json"
	"fmt"

	jsoniter "github.com/json-iterator/go"
)

var codec = jsoniter.ConfigCompatibleWithStandardLibrary

// PacketType discriminates frames on the wire.
type PacketType string

const (
	PacketConnect    PacketType = "connect"
	PacketDisconnect PacketType = "disconnect"
	PacketEvent      PacketType = "event"
	PacketAck        PacketType = "ack"
	PacketError      PacketType = "error"
)

// Packet is a single frame exchanged with a client.
type Packet struct {
	Type      PacketType      `json:"type"`
	Namespace string          `json:"nsp,omitempty"`
	Event     string          `json:"event,omitempty"`
	Data      json.RawMessage `json:"data,omitempty"`
	AckID     string          `json:"ackId,omitempty"`
}

// reservedEvents cannot be emitted by clients.
var reservedEvents = map[string]struct{}{
	"connect":    {},
	"connection": {},
	"disconnect": {},
}

func encodePacket(p *Packet) ([]byte, error) {
	data, err := codec.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encode %s packet: %w", p.Type, err)
	}
	return data, nil
}

func decodePacket(data []byte) (*Packet, error) {
	var p Packet
	if err := codec.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("decode packet: %w", err)
	}
	if p.Namespace == "" {
		p.Namespace = "/"
	}
	return &p, nil
}

// encodeData turns an emit payload into raw JSON. Raw messages pass through.
func encodeData(v any) (json.RawMessage, error) {
	switch d := v.(type) {
	case nil:
		return nil, nil
	case json.RawMessage:
		return d, nil
	case []byte:
		return codec.Marshal(string(d))
	default:
		data, err := codec.Marshal(d)
		if err != nil {
			return nil, fmt.Errorf("encode payload: %w", err)
		}
		return data, nil
	}
}

// normalizeNamespace maps "" to "/" and adds the leading slash.
func normalizeNamespace(name string) string {
	if name == "" {
		return "/"
	}
	if name[0] != '/' {
		return "/" + name
	}
	return name
}
