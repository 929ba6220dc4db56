// Package ledger records how every processed station/day ended so that
// operators can review past runs without digging through log files.
package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rotisserie/eris"

	"github.com/sells-group/gnssproc/internal/config"
	"github.com/sells-group/gnssproc/internal/model"
)

// Entry is one station/day outcome.
type Entry struct {
	ID         string          `json:"id"`
	RunID      string          `json:"run_id"`
	Station    string          `json:"station"`
	Date       string          `json:"date"`
	Status     model.DayStatus `json:"status"`
	Tier       string          `json:"tier,omitempty"`
	Artifact   string          `json:"artifact,omitempty"`
	Transforms string          `json:"transforms,omitempty"`
	Reason     string          `json:"reason,omitempty"`
	StartedAt  time.Time       `json:"started_at"`
	FinishedAt time.Time       `json:"finished_at"`
}

// Filter narrows List results.
type Filter struct {
	Station string
	Status  model.DayStatus
	Limit   int
}

const defaultLimit = 50

func (f Filter) limit() int {
	if f.Limit <= 0 {
		return defaultLimit
	}
	return f.Limit
}

// Ledger persists day outcomes.
type Ledger interface {
	Migrate(ctx context.Context) error
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, error)
	Close() error
}

// NewRunID returns an identifier shared by every entry of one invocation.
func NewRunID() string { return uuid.New().String() }

// FromReport converts a finished day into a ledger entry.
func FromReport(runID string, r model.DayReport) Entry {
	e := Entry{
		RunID:      runID,
		Station:    r.Station.Upper(),
		Date:       r.Day.ISO(),
		Status:     r.Status,
		Reason:     r.Reason,
		StartedAt:  r.Started.UTC(),
		FinishedAt: r.Finished.UTC(),
	}
	if r.Tier != nil {
		e.Tier = r.Tier.String()
	}
	if r.Artifact != nil {
		e.Artifact = r.Artifact.Path
		e.Transforms = r.Artifact.Transforms.Label()
	}
	return e
}

// Open connects the backend named by cfg.Driver and applies its schema.
func Open(ctx context.Context, cfg config.LedgerConfig) (Ledger, error) {
	var (
		l   Ledger
		err error
	)
	switch cfg.Driver {
	case "", "none":
		return Nop{}, nil
	case "sqlite":
		l, err = NewSQLite(cfg.DSN)
	case "postgres":
		l, err = NewPostgres(ctx, cfg.DSN)
	default:
		return nil, eris.Errorf("ledger: unknown driver %q", cfg.Driver)
	}
	if err != nil {
		return nil, err
	}
	if err := l.Migrate(ctx); err != nil {
		l.Close() //nolint:errcheck
		return nil, err
	}
	return l, nil
}

// Nop discards entries.
type Nop struct{}

func (Nop) Migrate(context.Context) error { return nil }
func (Nop) Record(context.Context, Entry) error { return nil }
func (Nop) List(context.Context, Filter) ([]Entry, error) { return nil, nil }
func (Nop) Close() error { return nil }

func ensureID(e *Entry) {
	if e.ID == "" {
		e.ID = uuid.New().String()
	}
}
