// Package observation produces the per-day observation file the engine
// consumes, either from one day of raw data or, in real-time mode, from a
// trailing window over three days.
package observation

import (
	"context"
	"errors"
	"io"
	"os"
	"sort"

	"github.com/bmatcuk/doublestar/v4"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gnssproc/internal/config"
	"github.com/sells-group/gnssproc/internal/model"
	"github.com/sells-group/gnssproc/internal/tools"
)

// ErrNoRawData means the raw path pattern matched no files for the day.
var ErrNoRawData = errors.New("observation: no raw data")

// Assembler converts raw receiver files into one observation file per day.
type Assembler struct {
	runner     tools.Runner
	conv       config.ConversionConfig
	rawPattern string
}

// NewAssembler creates an Assembler.
func NewAssembler(runner tools.Runner, conv config.ConversionConfig, rawPattern string) *Assembler {
	return &Assembler{runner: runner, conv: conv, rawPattern: rawPattern}
}

// RawFiles expands the raw path pattern for a station/day and returns the
// matching regular files in lexical order.
func (a *Assembler) RawFiles(station model.Station, day model.Day) ([]string, error) {
	pattern := model.Expand(a.rawPattern, station, day, "")
	matches, err := doublestar.FilepathGlob(pattern)
	if err != nil {
		return nil, eris.Wrapf(err, "observation: glob %s", pattern)
	}
	files := matches[:0]
	for _, m := range matches {
		if fi, err := os.Stat(m); err == nil && fi.Mode().IsRegular() {
			files = append(files, m)
		}
	}
	sort.Strings(files)
	return files, nil
}

// Assemble converts the station's raw files for day into outPath. It returns
// ErrNoRawData when nothing matches, without invoking the converter.
func (a *Assembler) Assemble(ctx context.Context, station model.Station, day model.Day, override model.MetadataOverride, outPath string, log io.Writer) error {
	files, err := a.RawFiles(station, day)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return ErrNoRawData
	}

	out, err := os.Create(outPath)
	if err != nil {
		return eris.Wrapf(err, "observation: create %s", outPath)
	}

	inv, err := tools.ConvertOptions{
		Binary:     a.conv.Binary,
		Inputs:     files,
		Options:    a.conv.Options,
		MarkerName: station.Upper(),
		Override:   override,
	}.Invocation("", out, log)
	if err != nil {
		out.Close() //nolint:errcheck
		return err
	}

	zap.L().Info("assembling observation file",
		zap.String("station", station.Upper()),
		zap.String("date", day.ISO()),
		zap.Int("raw_files", len(files)),
		zap.String("output", outPath),
	)

	code, runErr := a.runner.Run(ctx, inv)
	if err := out.Close(); err != nil && runErr == nil {
		runErr = eris.Wrapf(err, "observation: close %s", outPath)
	}
	if runErr != nil {
		return runErr
	}
	if code != 0 {
		return eris.Errorf("observation: converter exited %d for %s %s", code, station.Upper(), day.ISO())
	}
	if fi, err := os.Stat(outPath); err != nil || fi.Size() == 0 {
		return eris.Errorf("observation: converter produced an empty file for %s %s", station.Upper(), day.ISO())
	}
	return nil
}
