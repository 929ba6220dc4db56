// Package pipeline runs stations and days through observation assembly,
// orbit tier scheduling and finalization. Stations, days and tiers are
// processed strictly one at a time; a failed day never stops the run.
package pipeline

import (
	"context"
	"errors"
	"io"
	"path/filepath"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gnssproc/internal/config"
	"github.com/sells-group/gnssproc/internal/finalize"
	"github.com/sells-group/gnssproc/internal/ledger"
	"github.com/sells-group/gnssproc/internal/metadata"
	"github.com/sells-group/gnssproc/internal/metrics"
	"github.com/sells-group/gnssproc/internal/model"
	"github.com/sells-group/gnssproc/internal/observation"
	"github.com/sells-group/gnssproc/internal/orbit"
	"github.com/sells-group/gnssproc/internal/scheduler"
	"github.com/sells-group/gnssproc/internal/solution"
	"github.com/sells-group/gnssproc/internal/tools"
)

// Deps are the collaborators an Orchestrator drives. Runner is required.
// A nil Retriever is built from the orbit configuration when a cache is
// set; a nil Ledger records nothing; a nil Now uses the wall clock.
type Deps struct {
	Runner    tools.Runner
	Retriever orbit.Retriever
	Ledger    ledger.Ledger
	Metrics   *metrics.Recorder
	Now       func() time.Time
}

// Summary tallies a run.
type Summary struct {
	RunID    string
	Counts   map[model.DayStatus]int
	Reports  []model.DayReport
	Duration time.Duration
}

// Total is the number of station/days visited.
func (s Summary) Total() int { return len(s.Reports) }

// Orchestrator owns one run.
type Orchestrator struct {
	cfg       *config.Config
	run       RunConfig
	resolver  *metadata.Resolver
	assembler *observation.Assembler
	window    *observation.WindowBuilder
	sched     *scheduler.Scheduler
	ledger    ledger.Ledger
	metrics   *metrics.Recorder
	now       func() time.Time
	runID     string
}

// New wires the components for cfg and rc.
func New(cfg *config.Config, rc RunConfig, deps Deps) (*Orchestrator, error) {
	if cfg == nil {
		return nil, eris.New("pipeline: config is required")
	}
	if deps.Runner == nil {
		return nil, eris.New("pipeline: runner is required")
	}
	now := deps.Now
	if now == nil {
		now = time.Now
	}
	led := deps.Ledger
	if led == nil {
		led = ledger.Nop{}
	}

	retriever := deps.Retriever
	if retriever == nil && cfg.Orbit.CacheDir != "" {
		r, err := orbit.New(cfg.Orbit, deps.Runner)
		if err != nil {
			return nil, err
		}
		retriever = r
	}

	assembler := observation.NewAssembler(deps.Runner, cfg.Conversion, cfg.Paths.RawPattern)
	sched, err := scheduler.New(scheduler.Options{
		Runner:     deps.Runner,
		Retriever:  retriever,
		Extractor:  solution.NewExtractor(deps.Runner, cfg.Engine, cfg.Transforms, cfg.Orbit.CacheDir),
		Engine:     cfg.Engine,
		Transforms: cfg.Transforms,
		CacheDir:   cfg.Orbit.CacheDir,
	})
	if err != nil {
		return nil, err
	}

	return &Orchestrator{
		cfg:       cfg,
		run:       rc,
		resolver:  metadata.NewResolver(deps.Runner, cfg.Stations, cfg.Metadata.Sources),
		assembler: assembler,
		window:    observation.NewWindowBuilder(deps.Runner, assembler, cfg.RealTime, now),
		sched:     sched,
		ledger:    led,
		metrics:   deps.Metrics,
		now:       now,
		runID:     ledger.NewRunID(),
	}, nil
}

// RunID identifies this invocation in the ledger.
func (o *Orchestrator) RunID() string { return o.runID }

// Run processes every station over the selected days. Only a failure to set
// up the working directory or a cancelled context ends the run early.
func (o *Orchestrator) Run(ctx context.Context, stations []model.Station) (Summary, error) {
	start := o.now()
	sum := Summary{RunID: o.runID, Counts: make(map[model.DayStatus]int)}

	ws, err := finalize.NewWorkspace(o.cfg.Paths.WorkDir, o.run.Debug)
	if err != nil {
		return sum, err
	}
	defer func() {
		if cerr := ws.Cleanup(); cerr != nil {
			zap.L().Warn("pipeline: workspace cleanup failed", zap.Error(cerr))
		}
	}()

	days := o.run.SelectDays(start)
	zap.L().Info("pipeline: starting run",
		zap.String("run_id", o.runID),
		zap.Int("stations", len(stations)),
		zap.Int("days", len(days)),
		zap.String("tier_mode", string(o.run.TierMode)),
		zap.Bool("force", o.run.Force),
	)

	for _, st := range stations {
		for _, day := range days {
			if err := ctx.Err(); err != nil {
				o.finish(&sum, start)
				return sum, eris.Wrap(err, "pipeline: run interrupted")
			}
			rep := o.processDay(ctx, ws, st, day)
			sum.Reports = append(sum.Reports, rep)
			sum.Counts[rep.Status]++
			o.record(ctx, rep)
		}
	}

	o.finish(&sum, start)
	zap.L().Info("pipeline: run complete",
		zap.Int("total", sum.Total()),
		zap.Int("success", sum.Counts[model.DayStatusSuccess]),
		zap.Int("computed", sum.Counts[model.DayStatusComputed]),
		zap.Int("no_raw", sum.Counts[model.DayStatusNoRaw]),
		zap.Int("unavailable", sum.Counts[model.DayStatusUnavailable]),
		zap.Int("errored", sum.Counts[model.DayStatusErrored]),
		zap.Duration("duration", sum.Duration),
	)
	return sum, nil
}

func (o *Orchestrator) finish(sum *Summary, start time.Time) {
	end := o.now()
	sum.Duration = end.Sub(start)
	o.metrics.Finish(sum.Duration, end)
	if err := o.metrics.WriteTextfile(o.cfg.Metrics.Textfile); err != nil {
		zap.L().Warn("pipeline: metrics textfile not written", zap.Error(err))
	}
}

func (o *Orchestrator) record(ctx context.Context, rep model.DayReport) {
	o.metrics.Day(string(rep.Status))
	// An interrupted day is still recorded.
	if err := o.ledger.Record(context.WithoutCancel(ctx), ledger.FromReport(o.runID, rep)); err != nil {
		zap.L().Warn("pipeline: ledger record failed",
			zap.String("station", rep.Station.Upper()),
			zap.String("date", rep.Day.ISO()),
			zap.Error(err),
		)
	}
}

// processDay runs one station/day through the gates, the scheduler and
// finalization.
func (o *Orchestrator) processDay(ctx context.Context, ws *finalize.Workspace, st model.Station, day model.Day) model.DayReport {
	rep := model.DayReport{Station: st, Day: day, Started: o.now()}
	done := func(status model.DayStatus, reason string) model.DayReport {
		rep.Status = status
		rep.Reason = reason
		rep.Finished = o.now()
		return rep
	}

	realTime := o.window.Active(day)
	dc := model.DayContext{
		Station:    st,
		Day:        day,
		Tiers:      model.TiersFor(o.run.TierMode, realTime),
		RealTime:   realTime,
		Force:      o.run.Force,
		Debug:      o.run.Debug,
		FullLog:    o.run.FullLog,
		ResultRoot: o.cfg.Paths.ResultRoot,
		WorkDir:    ws.DayDir(),
	}
	l := zap.L().With(zap.String("station", st.Upper()), zap.String("date", day.ISO()))

	if !dc.Force && finalize.Computed(dc.PrimaryPath()) {
		l.Info("already computed, skipping", zap.String("artifact", dc.PrimaryPath()))
		return done(model.DayStatusComputed, "primary artifact exists")
	}

	raw, err := o.assembler.RawFiles(st, day)
	if err != nil {
		l.Error("raw data lookup failed", zap.Error(err))
		return done(model.DayStatusErrored, err.Error())
	}
	if len(raw) == 0 {
		l.Info("no raw data, skipping")
		return done(model.DayStatusNoRaw, "no raw data")
	}

	logFile, err := ws.Reset()
	if err != nil {
		l.Error("working directory reset failed", zap.Error(err))
		return done(model.DayStatusErrored, err.Error())
	}
	closeLog := func() {
		if logFile != nil {
			logFile.Close() //nolint:errcheck
			logFile = nil
		}
	}
	defer closeLog()

	l.Info("processing day", zap.String("plan", dc.Describe()), zap.Bool("real_time", realTime))
	dc.Override = o.resolver.Resolve(ctx, st, day)

	if err := o.observation(ctx, dc, logFile); err != nil {
		closeLog()
		if errors.Is(err, observation.ErrNoRawData) {
			l.Info("no raw data after conversion, skipping")
			return done(model.DayStatusNoRaw, "no raw data")
		}
		l.Error("observation assembly failed", zap.Error(err))
		o.keepErrorLog(ws, dc, l)
		o.archive(ws, dc, dc.PrimaryPath(), l)
		return done(model.DayStatusErrored, err.Error())
	}

	out := o.sched.Schedule(ctx, dc, logFile)
	for _, a := range out.Attempts {
		o.metrics.Attempt(a.Tier.String(), a.Result.String())
	}
	rep.Tier = out.Tier
	rep.Artifact = out.Artifact
	closeLog()

	switch out.Kind {
	case scheduler.Success:
		o.finalizeSuccess(ws, dc, out.Artifact.Path, l)
		o.archive(ws, dc, out.Artifact.Path, l)
		return done(model.DayStatusSuccess, "")
	case scheduler.AlreadyComputed:
		return done(model.DayStatusComputed, out.Reason)
	case scheduler.Unavailable:
		o.archive(ws, dc, dc.PrimaryPath(), l)
		return done(model.DayStatusUnavailable, out.Reason)
	default:
		o.keepErrorLog(ws, dc, l)
		o.archive(ws, dc, dc.PrimaryPath(), l)
		return done(model.DayStatusErrored, out.Reason)
	}
}

// observation produces dc.ObservationPath(), through the real-time window
// when it applies.
func (o *Orchestrator) observation(ctx context.Context, dc model.DayContext, log io.Writer) error {
	if dc.RealTime {
		_, err := o.window.Build(ctx, dc, log)
		return err
	}
	return o.assembler.Assemble(ctx, dc.Station, dc.Day, dc.Override, dc.ObservationPath(), log)
}

func (o *Orchestrator) finalizeSuccess(ws *finalize.Workspace, dc model.DayContext, artifact string, l *zap.Logger) {
	if dst, err := finalize.CompressLog(ws.LogPath(), artifact); err != nil {
		l.Warn("log compression failed", zap.Error(err))
	} else {
		l.Info("log saved", zap.String("path", dst))
	}
	if !dc.Debug {
		return
	}
	copied, err := finalize.CopyTree(ws.DayDir(), o.cfg.Engine.TreeFile, artifact)
	switch {
	case err != nil:
		l.Warn("tree file copy failed", zap.Error(err))
	case copied:
		l.Info("tree file saved", zap.String("path", artifact+finalize.TreeSuffix))
	default:
		l.Info("engine produced no tree file")
	}
}

func (o *Orchestrator) keepErrorLog(ws *finalize.Workspace, dc model.DayContext, l *zap.Logger) {
	dst, err := finalize.KeepErrorLog(ws.LogPath(), dc.PrimaryPath())
	if err != nil {
		l.Warn("error log not saved", zap.Error(err))
		return
	}
	l.Info("error log saved", zap.String("path", dst))
}

func (o *Orchestrator) archive(ws *finalize.Workspace, dc model.DayContext, base string, l *zap.Logger) {
	if !dc.FullLog {
		return
	}
	obs := filepath.Base(dc.ObservationPath())
	if _, err := finalize.ArchiveDay(ws.DayDir(), obs, ws.LogPath(), base); err != nil {
		l.Warn("full log not archived", zap.Error(err))
	}
}
