// Package journal persists connectivity and mode-transition events to
// Postgres. It is an optional daemon feature: the library works without it,
// and journal failures never influence the state machine.
package journal

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/halcyon-app/netstate/pkg/types"
)

// Journal writes state-change events to Postgres.
type Journal struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// Open connects to the database and ensures the schema exists.
func Open(ctx context.Context, url string, logger *slog.Logger) (*Journal, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("database ping failed: %w", err)
	}

	if logger == nil {
		logger = slog.Default()
	}
	j := &Journal{
		pool:   pool,
		logger: logger.With("component", "journal"),
	}
	if err := j.ensureSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ensuring schema: %w", err)
	}
	return j, nil
}

// Close releases the connection pool.
func (j *Journal) Close() {
	j.pool.Close()
}

func (j *Journal) ensureSchema(ctx context.Context) error {
	_, err := j.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS mode_transitions (
			id BIGSERIAL PRIMARY KEY,
			occurred_at TIMESTAMPTZ NOT NULL,
			mode TEXT NOT NULL,
			reason TEXT NOT NULL DEFAULT '',
			previous TEXT NOT NULL DEFAULT ''
		);
		CREATE TABLE IF NOT EXISTS connectivity_changes (
			id BIGSERIAL PRIMARY KEY,
			occurred_at TIMESTAMPTZ NOT NULL,
			is_connected BOOLEAN NOT NULL,
			connection_type TEXT NOT NULL
		);
	`)
	return err
}

// Record persists a single bus event. Unknown kinds are ignored so that new
// event types never break an older journal.
func (j *Journal) Record(ctx context.Context, event types.Event) error {
	switch event.Kind {
	case types.EventOperationModeChanged:
		if event.ModeChange == nil {
			return fmt.Errorf("mode-changed event without payload")
		}
		_, err := j.pool.Exec(ctx, `
			INSERT INTO mode_transitions (occurred_at, mode, reason, previous)
			VALUES ($1, $2, $3, $4)
		`, event.Timestamp, event.ModeChange.Mode, event.ModeChange.Reason, event.ModeChange.Previous)
		return err

	case types.EventConnectivityChanged:
		if event.Connectivity == nil {
			return fmt.Errorf("connectivity event without payload")
		}
		_, err := j.pool.Exec(ctx, `
			INSERT INTO connectivity_changes (occurred_at, is_connected, connection_type)
			VALUES ($1, $2, $3)
		`, event.Timestamp, event.Connectivity.IsConnected, event.Connectivity.ConnectionType)
		return err

	default:
		return nil
	}
}

// Consume drains an event channel into the journal until the context ends
// or the channel closes. Write failures are logged and skipped.
func (j *Journal) Consume(ctx context.Context, events <-chan types.Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := j.Record(ctx, event); err != nil {
				j.logger.Warn("failed to journal event",
					"kind", event.Kind,
					"error", err)
			}
		}
	}
}
