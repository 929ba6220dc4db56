package ledger

import (
	"context"
	"database/sql"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/gnssproc/internal/model"
)

// SQLiteLedger implements Ledger using modernc.org/sqlite.
type SQLiteLedger struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteLedger, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteLedger{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS day_runs (
	id          TEXT PRIMARY KEY,
	run_id      TEXT NOT NULL,
	station     TEXT NOT NULL,
	day         TEXT NOT NULL,
	status      TEXT NOT NULL,
	tier        TEXT NOT NULL DEFAULT '',
	artifact    TEXT NOT NULL DEFAULT '',
	transforms  TEXT NOT NULL DEFAULT '',
	reason      TEXT NOT NULL DEFAULT '',
	started_at  DATETIME NOT NULL,
	finished_at DATETIME NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_day_runs_station_day ON day_runs(station, day);
CREATE INDEX IF NOT EXISTS idx_day_runs_run_id ON day_runs(run_id);
CREATE INDEX IF NOT EXISTS idx_day_runs_finished_at ON day_runs(finished_at);
`

func (s *SQLiteLedger) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteLedger) Close() error {
	return s.db.Close()
}

func (s *SQLiteLedger) Record(ctx context.Context, e Entry) error {
	ensureID(&e)
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO day_runs (id, run_id, station, day, status, tier, artifact, transforms, reason, started_at, finished_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		e.ID, e.RunID, e.Station, e.Date, string(e.Status), e.Tier, e.Artifact, e.Transforms, e.Reason,
		e.StartedAt.UTC(), e.FinishedAt.UTC(),
	)
	return eris.Wrapf(err, "sqlite: record %s %s", e.Station, e.Date)
}

func (s *SQLiteLedger) List(ctx context.Context, f Filter) ([]Entry, error) {
	query := `SELECT id, run_id, station, day, status, tier, artifact, transforms, reason, started_at, finished_at FROM day_runs WHERE 1=1`
	var args []any

	if f.Station != "" {
		query += ` AND station = ?`
		args = append(args, f.Station)
	}
	if f.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(f.Status))
	}
	query += ` ORDER BY finished_at DESC LIMIT ?`
	args = append(args, f.limit())

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list day runs")
	}
	defer rows.Close() //nolint:errcheck

	var out []Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan day run")
		}
		out = append(out, e)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list day runs iterate")
}

type scannable interface {
	Scan(dest ...any) error
}

func scanEntry(row scannable) (Entry, error) {
	var e Entry
	var status string
	err := row.Scan(&e.ID, &e.RunID, &e.Station, &e.Date, &status, &e.Tier, &e.Artifact,
		&e.Transforms, &e.Reason, &e.StartedAt, &e.FinishedAt)
	if err != nil {
		return Entry{}, err
	}
	e.Status = model.DayStatus(status)
	return e, nil
}
