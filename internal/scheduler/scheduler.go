// Package scheduler drives the positioning engine across orbit tiers for
// one station/day. Tiers are tried in priority order; a tier whose products
// are absent is skipped, while an engine malfunction stops the day.
package scheduler

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"regexp"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gnssproc/internal/config"
	"github.com/sells-group/gnssproc/internal/fsutil"
	"github.com/sells-group/gnssproc/internal/model"
	"github.com/sells-group/gnssproc/internal/orbit"
	"github.com/sells-group/gnssproc/internal/solution"
	"github.com/sells-group/gnssproc/internal/tools"
)

// Kind is the terminal state of a schedule.
type Kind int

const (
	// Success means one tier produced an artifact.
	Success Kind = iota
	// AlreadyComputed means a tier-suffixed artifact already existed.
	AlreadyComputed
	// Unavailable means no tier had orbit products; retried on a later run.
	Unavailable
	// Fatal means the engine or extraction malfunctioned.
	Fatal
)

func (k Kind) String() string {
	switch k {
	case Success:
		return "success"
	case AlreadyComputed:
		return "already_computed"
	case Unavailable:
		return "unavailable"
	case Fatal:
		return "fatal"
	default:
		return "unknown"
	}
}

// Result tags a single tier attempt.
type Result int

const (
	// Accepted means the engine succeeded and the solution was extracted.
	Accepted Result = iota
	// Recoverable means the tier's orbit was unavailable; the next tier, if
	// any, is tried.
	Recoverable
	// Failed means the attempt ended the day with an error.
	Failed
)

func (r Result) String() string {
	switch r {
	case Accepted:
		return "accepted"
	case Recoverable:
		return "recoverable"
	default:
		return "failed"
	}
}

// Attempt records what happened on one tier.
type Attempt struct {
	Tier       model.Tier
	Result     Result
	Transforms model.Transforms
	Reason     string
}

// Outcome is the result of Schedule.
type Outcome struct {
	Kind        Kind
	Tier        *model.Tier
	Artifact    *model.ResultArtifact
	Attempts    []Attempt
	Reason      string
	Diagnostics []string
}

// Options wires a Scheduler. Retriever is only consulted when CacheDir is
// set.
type Options struct {
	Runner     tools.Runner
	Retriever  orbit.Retriever
	Extractor  *solution.Extractor
	Engine     config.EngineConfig
	Transforms config.TransformConfig
	CacheDir   string
}

// Scheduler is the orbit tier state machine.
type Scheduler struct {
	opts         Options
	orbitMissing []*regexp.Regexp
}

// New validates options and compiles the orbit-missing patterns.
func New(opts Options) (*Scheduler, error) {
	if opts.Runner == nil {
		return nil, eris.New("scheduler: runner is required")
	}
	if opts.Extractor == nil {
		return nil, eris.New("scheduler: extractor is required")
	}
	if opts.CacheDir != "" && opts.Retriever == nil {
		return nil, eris.New("scheduler: orbit cache configured without a retriever")
	}
	s := &Scheduler{opts: opts}
	for _, p := range opts.Engine.OrbitMissingPatterns {
		re, err := regexp.Compile(p)
		if err != nil {
			return nil, eris.Wrapf(err, "scheduler: orbit-missing pattern %q", p)
		}
		s.orbitMissing = append(s.orbitMissing, re)
	}
	return s, nil
}

// TransformsFor decides the corrections for an attempt on tier. The
// non-fiducial transform is only allowed on Final; the center-of-figure
// correction only when the non-fiducial transform is off.
func (s *Scheduler) TransformsFor(tier model.Tier) model.Transforms {
	nf := s.opts.Transforms.NonFiducial && tier == model.TierFinal
	return model.Transforms{
		NonFiducial:    nf,
		CenterOfFigure: s.opts.Transforms.CenterOfFigure && !nf,
	}
}

// Schedule runs the tiers of dc in order against the observation file at
// dc.ObservationPath(). Engine and tool output is written to log.
func (s *Scheduler) Schedule(ctx context.Context, dc model.DayContext, log io.Writer) Outcome {
	if log == nil {
		log = io.Discard
	}
	var out Outcome

	for i, tier := range dc.Tiers {
		lowest := i == len(dc.Tiers)-1
		l := zap.L().With(
			zap.String("station", dc.Station.Upper()),
			zap.String("date", dc.Day.ISO()),
			zap.String("tier", tier.String()),
		)

		if tier == model.TierRapid && !dc.Force && fsutil.NonEmpty(dc.ArtifactPath(tier)) {
			l.Info("rapid solution already computed, skipping lower tiers")
			out.Kind = AlreadyComputed
			out.Tier = tierPtr(tier)
			out.Reason = "rapid solution already computed"
			return out
		}

		orbitSource := tier.Label()
		if s.opts.CacheDir != "" {
			if err := s.opts.Retriever.Retrieve(ctx, tier, dc.Day, log); err != nil {
				l.Warn("orbit retrieval failed", zap.Error(err))
			}
			if !orbit.Available(s.opts.CacheDir, tier, dc.Day) {
				out.Attempts = append(out.Attempts, Attempt{Tier: tier, Result: Recoverable, Reason: "orbit not yet available"})
				if lowest {
					l.Warn("orbit not yet available on the lowest tier, giving up for now")
					out.Kind = Unavailable
					out.Reason = "orbit not yet available"
					return out
				}
				l.Warn("orbit not yet available, trying next tier")
				continue
			}
			orbitSource = orbit.TierDir(s.opts.CacheDir, tier, dc.Day)
		}

		tf := s.TransformsFor(tier)
		l.Info("running positioning engine", zap.String("transforms", tf.Label()), zap.String("orbit_source", orbitSource))

		ok, reason, engineOut := s.runEngine(ctx, dc, tier, tf, orbitSource, log)
		if !ok {
			missing := s.opts.CacheDir == "" && s.orbitMissingIn(engineOut)
			if missing && !lowest {
				out.Attempts = append(out.Attempts, Attempt{Tier: tier, Result: Recoverable, Transforms: tf, Reason: "orbit not yet available"})
				l.Warn("engine reports orbit not yet available, trying next tier", zap.String("reason", reason))
				continue
			}
			out.Attempts = append(out.Attempts, Attempt{Tier: tier, Result: Failed, Transforms: tf, Reason: reason})
			return s.fatal(out, dc, tier, reason, l)
		}

		artifact, err := s.opts.Extractor.Extract(ctx, solution.Request{Day: dc, Tier: tier, Transforms: tf, Log: log})
		if err != nil {
			out.Attempts = append(out.Attempts, Attempt{Tier: tier, Result: Failed, Transforms: tf, Reason: err.Error()})
			return s.fatal(out, dc, tier, err.Error(), l)
		}

		out.Attempts = append(out.Attempts, Attempt{Tier: tier, Result: Accepted, Transforms: tf})
		out.Kind = Success
		out.Tier = tierPtr(tier)
		out.Artifact = artifact
		l.Info("tier accepted", zap.String("artifact", artifact.Path))
		return out
	}

	// Only reachable with an empty tier list.
	out.Kind = Unavailable
	out.Reason = "no tiers to attempt"
	return out
}

func (s *Scheduler) fatal(out Outcome, dc model.DayContext, tier model.Tier, reason string, l *zap.Logger) Outcome {
	out.Kind = Fatal
	out.Tier = tierPtr(tier)
	out.Reason = reason
	out.Diagnostics = ScanHeader(dc.ObservationPath(), s.opts.Engine.ErrorPatterns)
	l.Error("positioning failed, day marked errored",
		zap.String("reason", reason),
		zap.Strings("header_diagnostics", out.Diagnostics),
	)
	return out
}

// runEngine invokes the engine in dc.WorkDir and reports whether it exited
// zero and left a non-empty parameter file. The captured output is returned
// for orbit-missing detection.
func (s *Scheduler) runEngine(ctx context.Context, dc model.DayContext, tier model.Tier, tf model.Transforms, orbitSource string, log io.Writer) (bool, string, []byte) {
	paramFile := filepath.Join(dc.WorkDir, s.opts.Engine.ParamFile)
	for _, stale := range []string{paramFile, filepath.Join(dc.WorkDir, s.opts.Engine.CovFile)} {
		os.Remove(stale) //nolint:errcheck
	}

	var captured bytes.Buffer
	w := io.MultiWriter(log, &captured)
	inv, err := tools.EngineOptions{
		Binary:          s.opts.Engine.Binary,
		ObservationFile: dc.ObservationPath(),
		OrbitSource:     orbitSource,
		AntexFile:       s.opts.Engine.AntexFile,
		Covariance:      tf.Active(),
		NonFiducial:     tf.NonFiducial,
		Options:         s.opts.Engine.Options,
	}.Invocation(dc.WorkDir, w, w)
	if err != nil {
		return false, err.Error(), nil
	}

	code, err := s.opts.Runner.Run(ctx, inv)
	switch {
	case err != nil:
		return false, err.Error(), captured.Bytes()
	case code != 0:
		return false, fmt.Sprintf("engine exited %d on tier %s", code, tier), captured.Bytes()
	case !fsutil.NonEmpty(paramFile):
		return false, "engine produced no parameter file on tier " + tier.String(), captured.Bytes()
	}
	return true, "", captured.Bytes()
}

func (s *Scheduler) orbitMissingIn(output []byte) bool {
	for _, re := range s.orbitMissing {
		if re.Match(output) {
			return true
		}
	}
	return false
}

func tierPtr(t model.Tier) *model.Tier { return &t }
