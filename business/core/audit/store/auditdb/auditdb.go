// Package auditdb contains the postgres implementation of the
// audit.Storer interface, backed by the append-only audit.events table.
package auditdb

import (
	"context"
	"fmt"

	"github.com/ardanlabs/sealedger/business/core/audit"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// Store manages the set of API's for audit event access.
type Store struct {
	log *zap.SugaredLogger
	db  *pgxpool.Pool
}

// NewStore constructs the api for data access.
func NewStore(log *zap.SugaredLogger, db *pgxpool.Pool) *Store {
	return &Store{
		log: log,
		db:  db,
	}
}

// Insert appends a single event row.
func (s *Store) Insert(ctx context.Context, evt audit.Event) error {
	const q = `
	INSERT INTO audit.events (event_id, event_type, subject, reason, created_at)
	VALUES ($1, $2, $3, $4, now())`

	if evt.ID == "" {
		evt.ID = uuid.NewString()
	}

	if _, err := s.db.Exec(ctx, q, evt.ID, evt.Type, evt.Subject, evt.Reason); err != nil {
		return fmt.Errorf("inserting audit event: %w", err)
	}

	return nil
}

// Recent returns the most recently recorded events, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]audit.Event, error) {
	const q = `
	SELECT event_id, event_type, subject, reason, created_at
	FROM audit.events
	ORDER BY created_at DESC
	LIMIT $1`

	rows, err := s.db.Query(ctx, q, limit)
	if err != nil {
		return nil, fmt.Errorf("querying audit events: %w", err)
	}
	defer rows.Close()

	var events []audit.Event
	for rows.Next() {
		var evt audit.Event
		if err := rows.Scan(&evt.ID, &evt.Type, &evt.Subject, &evt.Reason, &evt.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning audit event: %w", err)
		}
		events = append(events, evt)
	}

	return events, rows.Err()
}
