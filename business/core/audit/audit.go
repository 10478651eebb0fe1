package audit

import (
	"context"
	"fmt"

	"go.uber.org/zap"
)

// Storer persists audit events.
type Storer interface {
	Insert(ctx context.Context, evt Event) error
	Recent(ctx context.Context, limit int) ([]Event, error)
}

// Core manages audit event recording.
type Core struct {
	log   *zap.SugaredLogger
	store Storer
}

// NewCore constructs an audit core for use.
func NewCore(log *zap.SugaredLogger, store Storer) *Core {
	return &Core{
		log:   log,
		store: store,
	}
}

// Record writes a single audit event.
func (c *Core) Record(ctx context.Context, evt Event) error {
	if err := c.store.Insert(ctx, evt); err != nil {
		return fmt.Errorf("recording audit event: %w", err)
	}
	return nil
}

// Recent returns the most recently recorded events, used by the
// supplemented /debug/audit/events endpoint.
func (c *Core) Recent(ctx context.Context, limit int) ([]Event, error) {
	events, err := c.store.Recent(ctx, limit)
	if err != nil {
		return nil, fmt.Errorf("reading recent audit events: %w", err)
	}
	return events, nil
}
