package solution

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gnssproc/internal/config"
	"github.com/sells-group/gnssproc/internal/fsutil"
	"github.com/sells-group/gnssproc/internal/model"
	"github.com/sells-group/gnssproc/internal/tools"
)

// Request identifies one accepted engine attempt.
type Request struct {
	Day        model.DayContext
	Tier       model.Tier
	Transforms model.Transforms
	Log        io.Writer
}

// Extractor normalizes engine output into a ResultArtifact.
type Extractor struct {
	runner tools.Runner
	engine config.EngineConfig
	tf     config.TransformConfig
	cache  string
}

// NewExtractor creates an Extractor. cache resolves {cache} in the
// transformation-file pattern.
func NewExtractor(runner tools.Runner, engine config.EngineConfig, tf config.TransformConfig, cache string) *Extractor {
	return &Extractor{runner: runner, engine: engine, tf: tf, cache: cache}
}

// Extract reads the engine output in req.Day.WorkDir, applies the requested
// transforms and writes the artifact for req.Tier. Direct mode is used when
// no transform is active, covariance mode otherwise.
func (e *Extractor) Extract(ctx context.Context, req Request) (*model.ResultArtifact, error) {
	if req.Log == nil {
		req.Log = io.Discard
	}
	dc := req.Day
	l := zap.L().With(
		zap.String("station", dc.Station.Upper()),
		zap.String("date", dc.Day.ISO()),
		zap.String("tier", req.Tier.String()),
	)

	params, err := ReadParamFile(filepath.Join(dc.WorkDir, e.engine.ParamFile))
	if err != nil {
		return nil, err
	}

	var rows []model.ParamRow
	covSource := filepath.Join(dc.WorkDir, e.engine.CovFile)
	if req.Transforms.Active() {
		covSource, err = e.transform(ctx, req)
		if err != nil {
			return nil, err
		}
		cov, err := ReadCovFile(covSource)
		if err != nil {
			return nil, err
		}
		rows = PositionCovRows(cov, labelSuffix(req.Transforms))
		l.Info("solution: covariance extraction", zap.String("transforms", req.Transforms.Label()), zap.Int("rows", len(rows)))
	} else {
		rows = LastPositionRows(params)
		l.Info("solution: direct extraction", zap.Int("rows", len(rows)))
	}
	if len(rows) == 0 {
		return nil, eris.Errorf("solution: no position rows for %s %s", dc.Station.Upper(), dc.Day.ISO())
	}

	if e.tf.Troposphere {
		rows = append(rows, TropRows(params)...)
	}

	artifact := &model.ResultArtifact{
		Path:       dc.ArtifactPath(req.Tier),
		Tier:       req.Tier,
		Transforms: req.Transforms,
		Rows:       rows,
	}
	if err := os.MkdirAll(filepath.Dir(artifact.Path), 0o755); err != nil {
		return nil, eris.Wrap(err, "solution: create artifact directory")
	}
	if err := fsutil.WriteBytesAtomic(artifact.Path, Format(req.Transforms.Label(), rows)); err != nil {
		return nil, eris.Wrapf(err, "solution: write %s", artifact.Path)
	}

	if fsutil.NonEmpty(covSource) {
		if err := fsutil.CopyFile(covSource, artifact.Path+".gdcov"); err != nil {
			l.Warn("solution: could not keep covariance file", zap.Error(err))
		}
	}

	l.Info("solution: artifact written", zap.String("path", artifact.Path))
	return artifact, nil
}

// transform applies the center-of-figure correction in place and/or the
// Helmert transform to a separate file. It keeps the untouched covariance
// file as <cov>.orig and returns the file to extract from.
func (e *Extractor) transform(ctx context.Context, req Request) (string, error) {
	dc := req.Day
	cov := filepath.Join(dc.WorkDir, e.engine.CovFile)
	if !fsutil.NonEmpty(cov) {
		return "", eris.Errorf("solution: covariance file %s is missing or empty", cov)
	}
	if err := fsutil.CopyFile(cov, cov+".orig"); err != nil {
		return "", err
	}

	if req.Transforms.CenterOfFigure {
		inv, err := tools.FrameCorrectOptions{
			Binary:  e.tf.FrameBinary,
			CovFile: cov,
			Options: e.tf.FrameOptions,
		}.Invocation(dc.WorkDir, req.Log, req.Log)
		if err != nil {
			return "", err
		}
		if _, err := e.runner.Run(ctx, inv); err != nil {
			return "", err
		}
		if fsutil.NonEmpty(cov) {
			if err := fsutil.CopyFile(cov, cov+SuffixCenterOfFigure); err != nil {
				return "", err
			}
		}
	}

	if !req.Transforms.NonFiducial {
		return cov, nil
	}

	xfile := model.Expand(e.tf.XFilePattern, dc.Station, dc.Day, e.cache)
	if !fsutil.NonEmpty(xfile) {
		return "", eris.Errorf("solution: transformation file %s not found", xfile)
	}
	out := cov + SuffixFiducial
	inv, err := tools.HelmertOptions{
		Binary:  e.tf.HelmertBinary,
		Input:   cov,
		XFile:   xfile,
		Output:  out,
		Options: e.tf.HelmertOptions,
	}.Invocation(dc.WorkDir, req.Log, req.Log)
	if err != nil {
		return "", err
	}
	if _, err := e.runner.Run(ctx, inv); err != nil {
		return "", err
	}
	return out, nil
}

func labelSuffix(t model.Transforms) string {
	s := ""
	if t.CenterOfFigure {
		s += SuffixCenterOfFigure
	}
	if t.NonFiducial {
		s += SuffixFiducial
	}
	return s
}
