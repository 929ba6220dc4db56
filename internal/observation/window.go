package observation

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gnssproc/internal/config"
	"github.com/sells-group/gnssproc/internal/model"
	"github.com/sells-group/gnssproc/internal/tools"
)

// windowDays is how many consecutive days feed the trailing window.
const windowDays = 3

// WindowBuilder stitches the observation files of a day and the two days
// before it into one trailing window ending shortly before now.
type WindowBuilder struct {
	runner    tools.Runner
	assembler *Assembler
	cfg       config.RealTimeConfig
	now       func() time.Time
}

// NewWindowBuilder creates a WindowBuilder. A nil now uses time.Now.
func NewWindowBuilder(runner tools.Runner, assembler *Assembler, cfg config.RealTimeConfig, now func() time.Time) *WindowBuilder {
	if now == nil {
		now = time.Now
	}
	return &WindowBuilder{runner: runner, assembler: assembler, cfg: cfg, now: now}
}

// Active reports whether the window applies to day: real-time must be
// enabled and day must be today in UTC.
func (w *WindowBuilder) Active(day model.Day) bool {
	return w.cfg.Enabled && day.Equal(model.NewDay(w.now().UTC()))
}

// Bounds returns the window start and duration relative to the current time.
func (w *WindowBuilder) Bounds() (time.Time, time.Duration) {
	end := w.now().UTC().Add(-time.Duration(w.cfg.DelayMinutes) * time.Minute)
	dur := time.Duration(w.cfg.WindowHours) * time.Hour
	return end.Add(-dur), dur
}

// Build assembles each constituent day independently and merges whatever
// succeeded into dc.ObservationPath(). Individual assembly failures shrink
// the window instead of failing it; only a day with no inputs at all, or a
// failing window tool, is an error.
func (w *WindowBuilder) Build(ctx context.Context, dc model.DayContext, log io.Writer) (string, error) {
	l := zap.L().With(zap.String("station", dc.Station.Upper()), zap.String("date", dc.Day.ISO()))

	partsDir := filepath.Join(dc.WorkDir, "realtime")
	if err := os.MkdirAll(partsDir, 0o755); err != nil {
		return "", eris.Wrapf(err, "observation: create %s", partsDir)
	}

	var inputs []string
	for back := windowDays - 1; back >= 0; back-- {
		day := dc.Day.AddDays(-back)
		out := filepath.Join(partsDir, model.ObservationName(dc.Station, day))
		err := w.assembler.Assemble(ctx, dc.Station, day, dc.Override, out, log)
		switch {
		case errors.Is(err, ErrNoRawData):
			l.Warn("real-time window: no raw data for constituent day", zap.String("part", day.ISO()))
			continue
		case err != nil:
			l.Warn("real-time window: constituent day failed to assemble", zap.String("part", day.ISO()), zap.Error(err))
			continue
		}
		inputs = append(inputs, out)
	}
	if len(inputs) == 0 {
		return "", ErrNoRawData
	}
	if len(inputs) < windowDays {
		l.Warn("real-time window built from partial input", zap.Int("days", len(inputs)))
	}

	start, dur := w.Bounds()
	output := dc.ObservationPath()
	inv, err := tools.WindowOptions{
		Binary:   w.cfg.Binary,
		Inputs:   inputs,
		Output:   output,
		Start:    start,
		Duration: dur,
		Options:  w.cfg.Options,
	}.Invocation(dc.WorkDir, log, log)
	if err != nil {
		return "", err
	}

	l.Info("building real-time window",
		zap.Time("start", start),
		zap.Duration("duration", dur),
		zap.Int("inputs", len(inputs)),
	)

	code, err := w.runner.Run(ctx, inv)
	if err != nil {
		return "", err
	}
	if code != 0 {
		return "", eris.Errorf("observation: window tool exited %d", code)
	}
	if fi, err := os.Stat(output); err != nil || fi.Size() == 0 {
		return "", eris.Errorf("observation: window tool produced no output at %s", output)
	}
	return output, nil
}
