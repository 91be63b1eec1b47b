// Package presence journals connection arrivals and departures per namespace.
package presence

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/remote-agent-terminal/iohub/internal/model"
	"github.com/remote-agent-terminal/iohub/internal/pipeline"
	"github.com/remote-agent-terminal/iohub/internal/registry"
)

const writeTimeout = 5 * time.Second

// Journal stores presence events.
type Journal interface {
	Record(ctx context.Context, event *model.PresenceEvent) error
}

// Tracker writes a presence event for every connect and disconnect of the
// registries it is attached to.
type Tracker struct {
	journal Journal
	logger  *slog.Logger
	now     func() time.Time
}

// NewTracker creates a tracker writing to journal.
func NewTracker(journal Journal, logger *slog.Logger) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	return &Tracker{
		journal: journal,
		logger:  logger.With("component", "presence"),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Attach registers the tracker's handlers on io, which must already be
// attached to a host.
func (t *Tracker) Attach(io *registry.IO) error {
	nsp := namespaceName(io.Namespace())
	if err := io.OnConnect(func(ctx *pipeline.Context) error {
		return t.record(ctx, nsp, model.PresenceConnected, "")
	}); err != nil {
		return fmt.Errorf("track %s: %w", nsp, err)
	}

	io.On("disconnect", func(ctx *pipeline.Context) error {
		var reason string
		if len(ctx.Data) > 0 {
			if err := ctx.Bind(&reason); err != nil {
				t.logger.Warn("undecodable disconnect reason", "namespace", nsp, "error", err)
			}
		}
		return t.record(ctx, nsp, model.PresenceDisconnected, reason)
	})
	return nil
}

func (t *Tracker) record(ctx *pipeline.Context, nsp string, kind model.PresenceKind, reason string) error {
	if ctx.Socket == nil {
		return fmt.Errorf("record %s: %w", kind, model.ErrPresenceIncomplete)
	}

	event := &model.PresenceEvent{
		ID:           uuid.NewString(),
		Namespace:    nsp,
		ConnectionID: ctx.Socket.ID(),
		Kind:         kind,
		Reason:       reason,
		CreatedAt:    t.now(),
	}

	// The socket context is cancelled right after disconnect handlers run.
	writeCtx, cancel := context.WithTimeout(context.Background(), writeTimeout)
	defer cancel()

	if err := t.journal.Record(writeCtx, event); err != nil {
		return fmt.Errorf("record %s for %s: %w", kind, event.ConnectionID, err)
	}
	t.logger.Debug("presence recorded", "namespace", nsp, "socket", event.ConnectionID, "kind", kind)
	return nil
}

func namespaceName(name string) string {
	return "/" + name
}
