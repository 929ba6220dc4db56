package pipeline

import (
	"os"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gnssproc/internal/config"
	"github.com/sells-group/gnssproc/internal/model"
)

// RunConfig is the resolved command line for one invocation. It is built
// once before the pipeline starts and never changes afterwards.
type RunConfig struct {
	Days     int
	Dates    []model.Day
	TierMode model.TierMode
	Force    bool
	Debug    bool
	FullLog  bool
	Lock     bool
	Stations []string
}

// SelectDays returns the days to process. An explicit date list wins;
// otherwise the Days consecutive UTC days ending today, oldest first.
func (rc RunConfig) SelectDays(now time.Time) []model.Day {
	if len(rc.Dates) > 0 {
		out := make([]model.Day, len(rc.Dates))
		copy(out, rc.Dates)
		return out
	}
	n := rc.Days
	if n <= 0 {
		n = 1
	}
	today := model.NewDay(now)
	out := make([]model.Day, 0, n)
	for back := n - 1; back >= 0; back-- {
		out = append(out, today.AddDays(-back))
	}
	return out
}

// ParseDates parses a list of YYYY-MM-DD values.
func ParseDates(values []string) ([]model.Day, error) {
	var out []model.Day
	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}
		d, err := model.ParseDay(v)
		if err != nil {
			return nil, err
		}
		out = append(out, d)
	}
	return out, nil
}

// DiscoverStations lists the stations to process: the configured list, or
// the four-character subdirectories of stations.from_dir. A non-empty
// filter keeps only the named stations.
func DiscoverStations(cfg config.StationsConfig, filter []string) ([]model.Station, error) {
	var codes []string
	switch {
	case len(cfg.List) > 0:
		codes = cfg.List
	case cfg.FromDir != "":
		entries, err := os.ReadDir(cfg.FromDir)
		if err != nil {
			return nil, eris.Wrapf(err, "pipeline: list stations in %s", cfg.FromDir)
		}
		for _, e := range entries {
			if e.IsDir() && len(e.Name()) == 4 {
				codes = append(codes, e.Name())
			}
		}
	default:
		return nil, eris.New("pipeline: no stations configured (set stations.list or stations.from_dir)")
	}

	want := make(map[string]bool, len(filter))
	for _, f := range filter {
		if f = strings.TrimSpace(f); f != "" {
			want[strings.ToUpper(f)] = true
		}
	}

	var out []model.Station
	seen := make(map[string]bool)
	for _, c := range codes {
		s := model.NewStation(c)
		if s.Code == "" || seen[s.Code] {
			continue
		}
		if len(want) > 0 && !want[s.Code] {
			continue
		}
		seen[s.Code] = true
		out = append(out, s)
	}
	for f := range want {
		if !seen[f] {
			zap.L().Warn("requested station is not configured", zap.String("station", f))
		}
	}
	if len(out) == 0 {
		return nil, eris.New("pipeline: station selection is empty")
	}
	return out, nil
}
