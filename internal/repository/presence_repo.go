package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/remote-agent-terminal/iohub/internal/model"
)

// DefaultListLimit caps List when the filter leaves Limit unset.
const DefaultListLimit = 50

// PresenceRepository provides data access for the presence journal.
type PresenceRepository struct {
	db *sql.DB
}

// NewPresenceRepository creates a new PresenceRepository.
func NewPresenceRepository(db *sql.DB) *PresenceRepository {
	return &PresenceRepository{db: db}
}

// Record appends one presence event to the journal.
func (r *PresenceRepository) Record(ctx context.Context, event *model.PresenceEvent) error {
	if err := event.Validate(); err != nil {
		return err
	}
	if event.CreatedAt.IsZero() {
		event.CreatedAt = time.Now().UTC()
	}

	query := `
		INSERT INTO presence_events (id, namespace, connection_id, kind, reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
	`

	_, err := r.db.ExecContext(ctx, query,
		event.ID,
		event.Namespace,
		event.ConnectionID,
		event.Kind,
		nullString(event.Reason),
		event.CreatedAt.UTC(),
	)
	if err != nil {
		return fmt.Errorf("failed to record presence event: %w", err)
	}

	return nil
}

// GetByID retrieves a presence event by its ID.
func (r *PresenceRepository) GetByID(ctx context.Context, id string) (*model.PresenceEvent, error) {
	query := `
		SELECT id, namespace, connection_id, kind, reason, created_at
		FROM presence_events
		WHERE id = ?
	`

	event, err := scanEvent(r.db.QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, model.ErrPresenceNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get presence event: %w", err)
	}
	return event, nil
}

// List returns journal rows matching filter, newest first.
func (r *PresenceRepository) List(ctx context.Context, filter model.PresenceFilter) ([]*model.PresenceEvent, error) {
	var (
		where []string
		args  []any
	)
	if filter.Namespace != "" {
		where = append(where, "namespace = ?")
		args = append(args, filter.Namespace)
	}
	if filter.ConnectionID != "" {
		where = append(where, "connection_id = ?")
		args = append(args, filter.ConnectionID)
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}

	query := `SELECT id, namespace, connection_id, kind, reason, created_at FROM presence_events`
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	// rowid breaks ties between rows written within the same timestamp.
	query += " ORDER BY created_at DESC, rowid DESC LIMIT ?"
	args = append(args, limit)

	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list presence events: %w", err)
	}
	defer rows.Close()

	events := make([]*model.PresenceEvent, 0)
	for rows.Next() {
		event, err := scanEvent(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan presence event: %w", err)
		}
		events = append(events, event)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating presence events: %w", err)
	}

	return events, nil
}

// DeleteBefore prunes rows older than cutoff and reports how many went.
func (r *PresenceRepository) DeleteBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM presence_events WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to prune presence events: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanEvent(row rowScanner) (*model.PresenceEvent, error) {
	event := &model.PresenceEvent{}
	var reason sql.NullString

	err := row.Scan(
		&event.ID,
		&event.Namespace,
		&event.ConnectionID,
		&event.Kind,
		&reason,
		&event.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	if reason.Valid {
		event.Reason = reason.String
	}
	return event, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
