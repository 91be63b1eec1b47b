package model

import "time"

// PresenceKind tells whether a presence record marks an arrival or a departure.
type PresenceKind string

const (
	PresenceConnected    PresenceKind = "connected"
	PresenceDisconnected PresenceKind = "disconnected"
)

// PresenceEvent is one row of the presence journal: a connection arriving on
// or leaving a namespace.
type PresenceEvent struct {
	ID           string       `json:"id"`
	Namespace    string       `json:"namespace"`
	ConnectionID string       `json:"connectionId"`
	Kind         PresenceKind `json:"kind"`
	Reason       string       `json:"reason,omitempty"`
	CreatedAt    time.Time    `json:"createdAt"`
}

// PresenceFilter narrows a journal query. Zero values match everything.
type PresenceFilter struct {
	Namespace    string
	ConnectionID string
	Limit        int
}

// Validate checks the presence event before it is written.
func (e *PresenceEvent) Validate() error {
	if e.ID == "" || e.ConnectionID == "" {
		return ErrPresenceIncomplete
	}
	if e.Kind != PresenceConnected && e.Kind != PresenceDisconnected {
		return ErrInvalidPresenceKind
	}
	return nil
}
