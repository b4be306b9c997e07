// Package storage defines the local key/value state kept between runs:
// the wall time of the last push heartbeat and the last lot list query.
package storage

import (
	"context"
	"time"
)

// HeartbeatStore persists the time of the last push heartbeat.
type HeartbeatStore interface {
	// SaveHeartbeat records t as the last heartbeat time.
	SaveHeartbeat(ctx context.Context, t time.Time) error

	// LastHeartbeat returns the last recorded heartbeat time.
	// Returns ErrNotFound if none is recorded.
	LastHeartbeat(ctx context.Context) (time.Time, error)

	// ClearHeartbeat forgets the recorded heartbeat time.
	ClearHeartbeat(ctx context.Context) error
}

// QueryStore persists the filters of the last lot list query.
type QueryStore interface {
	// SaveQuery replaces the saved filters.
	SaveQuery(ctx context.Context, params map[string]string) error

	// LastQuery returns ErrNotFound if no query was saved.
	LastQuery(ctx context.Context) (map[string]string, error)
}

// Store is the full local store.
type Store interface {
	HeartbeatStore
	QueryStore
	Close() error
}
