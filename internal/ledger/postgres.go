package ledger

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"
)

// Pool is the subset of pgxpool.Pool the ledger uses. pgxmock satisfies it
// in tests.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Close()
}

// PostgresLedger implements Ledger on a shared Postgres database so several
// processing hosts can report into one history.
type PostgresLedger struct {
	pool Pool
}

// NewPostgres connects a small pool; the ledger writes one row per day.
func NewPostgres(ctx context.Context, connString string) (*PostgresLedger, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}
	pgxCfg.MaxConns = 2
	pgxCfg.MinConns = 0
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresLedger{pool: pool}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS day_runs (
	id          TEXT PRIMARY KEY DEFAULT gen_random_uuid()::text,
	run_id      TEXT NOT NULL,
	station     TEXT NOT NULL,
	day         DATE NOT NULL,
	status      TEXT NOT NULL,
	tier        TEXT NOT NULL DEFAULT '',
	artifact    TEXT NOT NULL DEFAULT '',
	transforms  TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	started_at  TIMESTAMPTZ NOT NULL,
	finished_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_day_runs_station_day ON day_runs(station, day);
CREATE INDEX IF NOT EXISTS idx_day_runs_run_id ON day_runs(run_id);
CREATE INDEX IF NOT EXISTS idx_day_runs_finished_at ON day_runs(finished_at DESC);
`

func (s *PostgresLedger) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresLedger) Close() error {
	s.pool.Close()
	return nil
}

func (s *PostgresLedger) Record(ctx context.Context, e Entry) error {
	ensureID(&e)
	_, err := s.pool.Exec(ctx,
		`INSERT INTO day_runs (id, run_id, station, day, status, tier, artifact, transforms, reason, started_at, finished_at)
		 VALUES ($1, $2, $3, $4::date, $5, $6, $7, $8, $9, $10, $11)`,
		e.ID, e.RunID, e.Station, e.Date, string(e.Status), e.Tier, e.Artifact, e.Transforms, e.Reason,
		e.StartedAt.UTC(), e.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "postgres: record %s %s", e.Station, e.Date)
}

func (s *PostgresLedger) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `SELECT id, run_id, station, to_char(day, 'YYYY-MM-DD'), status, tier, artifact, transforms, reason, started_at, finished_at FROM day_runs WHERE 1=1`
	var args []any

	if f.Station != "" {
		args = append(args, f.Station)
		query += fmt.Sprintf(` AND station = $%d`, len(args))
	}
	if f.Status != "" {
		args = append(args, string(f.Status))
		query += fmt.Sprintf(` AND status = $%d`, len(args))
	}
	args = append(args, f.limit())
	query += fmt.Sprintf(` ORDER BY finished_at DESC LIMIT $%d`, len(args))

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list day runs")
	}
	defer rows.Close()

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan day run")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list day runs iterate")
}
