package store

import (
	"context"
	"database/sql"
	"embed"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

// PostgresRecorder stores call records in Postgres.
type PostgresRecorder struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
}

// OpenPostgres connects, runs pending migrations, and returns the recorder.
func OpenPostgres(ctx context.Context, databaseURL string, logger *slog.Logger) (*PostgresRecorder, error) {
	if logger == nil {
		logger = slog.Default()
	}

	if err := migrate(databaseURL); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: connect: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping: %w", err)
	}

	return &PostgresRecorder{pool: pool, logger: logger}, nil
}

// migrate runs through database/sql because goose drives that interface;
// the runtime path stays on the pgx pool.
func migrate(databaseURL string) error {
	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer db.Close()

	goose.SetBaseFS(migrationsFS)
	if err := goose.SetDialect("postgres"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}

func (r *PostgresRecorder) Start(ctx context.Context, rec CallRecord) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO call_records (session_id, transport, stream_sid, started_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (session_id) DO NOTHING`,
		rec.SessionID, rec.Transport, rec.StreamSID, rec.StartedAt,
	)
	return err
}

func (r *PostgresRecorder) End(ctx context.Context, sessionID string, endedAt time.Time, closeReason string, toolCalls int) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE call_records
		SET ended_at = $2, close_reason = $3, tool_calls = $4
		WHERE session_id = $1`,
		sessionID, endedAt, closeReason, toolCalls,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		r.logger.Warn("call record end without start", "session_id", sessionID)
	}
	return nil
}

func (r *PostgresRecorder) Close() {
	r.pool.Close()
}
