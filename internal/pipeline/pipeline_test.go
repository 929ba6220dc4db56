package pipeline

import (
	"archive/tar"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gnssproc/internal/config"
	"github.com/sells-group/gnssproc/internal/finalize"
	"github.com/sells-group/gnssproc/internal/ledger"
	"github.com/sells-group/gnssproc/internal/metrics"
	"github.com/sells-group/gnssproc/internal/model"
	"github.com/sells-group/gnssproc/internal/orbit"
	"github.com/sells-group/gnssproc/internal/tools"
	"github.com/sells-group/gnssproc/internal/tools/toolstest"
)

const obsHeader = `     2.11           OBSERVATION DATA    G (GPS)             RINEX VERSION / TYPE
ABCD                                                        MARKER NAME
5036K70597          TRIMBLE NETR9       4.85                REC # / TYPE / VERS
                                                            END OF HEADER
`

const tdp = `632577300.0 0.0 -2.486000512345e+06 2.1e-03 .Station.ABCD.State.Pos.X
632577300.0 0.0 -4.681000254321e+06 2.3e-03 .Station.ABCD.State.Pos.Y
632577300.0 0.0 3.541000753421e+06 2.2e-03 .Station.ABCD.State.Pos.Z
`

// now is mid-morning on 2024-01-16 so 2024-01-15 is yesterday.
var now = time.Date(2024, 1, 16, 9, 30, 0, 0, time.UTC)

type fixture struct {
	cfg    *config.Config
	runner *toolstest.Runner
	rawDir string
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	root := t.TempDir()
	f := &fixture{
		rawDir: filepath.Join(root, "raw"),
		runner: toolstest.New(),
	}
	f.cfg = &config.Config{
		Paths: config.PathsConfig{
			RawPattern: filepath.Join(root, "raw", "{station}", "{yyyy}", "{doy}", "*.T02"),
			ResultRoot: filepath.Join(root, "results"),
			WorkDir:    filepath.Join(root, "work"),
		},
		Stations:   config.StationsConfig{List: []string{"ABCD"}},
		Conversion: config.ConversionConfig{Binary: "teqc"},
		Engine: config.EngineConfig{
			Binary:               "gd2e.py",
			ParamFile:            "smoothFinal.tdp",
			CovFile:              "smoothFinal.gdcov",
			TreeFile:             "ppp_0.tree",
			ErrorPatterns:        []string{"REC # / TYPE / VERS"},
			OrbitMissingPatterns: []string{`(?i)orbit.*not (yet )?available`},
		},
		RealTime: config.RealTimeConfig{Binary: "gfzrnx", DelayMinutes: 60, WindowHours: 30},
	}
	f.runner.On("convert", func(inv tools.Invocation) (int, error) {
		_, err := io.WriteString(inv.Stdout, obsHeader)
		return 0, err
	})
	f.runner.On("engine", engineSucceeds)
	return f
}

func engineSucceeds(inv tools.Invocation) (int, error) {
	_, _ = io.WriteString(inv.Stdout, "gd2e: solution converged\n")
	if err := os.WriteFile(filepath.Join(inv.Dir, "ppp_0.tree"), []byte("tree"), 0o644); err != nil {
		return -1, err
	}
	return 0, os.WriteFile(filepath.Join(inv.Dir, "smoothFinal.tdp"), []byte(tdp), 0o644)
}

func (f *fixture) raw(t *testing.T, station, iso string) {
	t.Helper()
	d, err := model.ParseDay(iso)
	require.NoError(t, err)
	dir := filepath.Join(f.rawDir, strings.ToLower(station), d.Time().Format("2006"), d.DOY())
	require.NoError(t, os.MkdirAll(dir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "a.T02"), []byte("raw"), 0o644))
}

func (f *fixture) orchestrator(t *testing.T, rc RunConfig, deps Deps) *Orchestrator {
	t.Helper()
	deps.Runner = f.runner
	deps.Now = func() time.Time { return now }
	o, err := New(f.cfg, rc, deps)
	require.NoError(t, err)
	return o
}

func (f *fixture) artifactDir() string {
	return filepath.Join(f.cfg.Paths.ResultRoot, "ABCD", "2024")
}

func dates(t *testing.T, values ...string) []model.Day {
	t.Helper()
	out, err := ParseDates(values)
	require.NoError(t, err)
	return out
}

func TestRun_FinalSucceedsFirstAttempt(t *testing.T) {
	f := newFixture(t)
	f.raw(t, "ABCD", "2024-01-15")
	o := f.orchestrator(t, RunConfig{Dates: dates(t, "2024-01-15")}, Deps{})

	sum, err := o.Run(context.Background(), []model.Station{model.NewStation("ABCD")})
	require.NoError(t, err)

	require.Len(t, sum.Reports, 1)
	assert.Equal(t, model.DayStatusSuccess, sum.Reports[0].Status, sum.Reports[0].Reason)

	primary := filepath.Join(f.artifactDir(), "2024-01-15.ABCD")
	data, err := os.ReadFile(primary)
	require.NoError(t, err)
	var rows int
	for _, line := range strings.Split(strings.TrimSpace(string(data)), "\n") {
		if strings.Contains(line, ".State.Pos.") {
			rows++
		}
	}
	assert.Equal(t, 3, rows)
	assert.FileExists(t, primary+finalize.LogSuffix)
	assert.NoFileExists(t, primary+".ql")
	assert.NoFileExists(t, primary+".ultra")
	assert.NoFileExists(t, primary+finalize.TreeSuffix, "tree is only kept in debug mode")
	assert.Equal(t, []string{"convert", "engine"}, f.runner.Tools())
	assert.Empty(t, runDirs(t, f.cfg.Paths.WorkDir), "run directory removed after the run")
}

func TestRun_CacheMissingFinalUsesRapid(t *testing.T) {
	f := newFixture(t)
	f.raw(t, "ABCD", "2024-01-15")
	f.cfg.Orbit.CacheDir = filepath.Join(t.TempDir(), "orbits")
	r := &stubRetriever{cache: f.cfg.Orbit.CacheDir, available: map[model.Tier]bool{model.TierRapid: true}}
	o := f.orchestrator(t, RunConfig{Dates: dates(t, "2024-01-15")}, Deps{Retriever: r})

	sum, err := o.Run(context.Background(), []model.Station{model.NewStation("ABCD")})
	require.NoError(t, err)

	require.Len(t, sum.Reports, 1)
	rep := sum.Reports[0]
	assert.Equal(t, model.DayStatusSuccess, rep.Status, rep.Reason)
	require.NotNil(t, rep.Tier)
	assert.Equal(t, model.TierRapid, *rep.Tier)

	primary := filepath.Join(f.artifactDir(), "2024-01-15.ABCD")
	assert.FileExists(t, primary+".ql")
	assert.FileExists(t, primary+".ql"+finalize.LogSuffix)
	assert.NoFileExists(t, primary)
	assert.Equal(t, []model.Tier{model.TierFinal, model.TierRapid}, r.calls)
}

func TestRun_ExistingPrimarySkipsAllWork(t *testing.T) {
	f := newFixture(t)
	f.raw(t, "ABCD", "2024-01-15")
	f.raw(t, "ABCD", "2024-01-16")
	primary := filepath.Join(f.artifactDir(), "2024-01-15.ABCD")
	require.NoError(t, os.MkdirAll(filepath.Dir(primary), 0o755))
	require.NoError(t, os.WriteFile(primary, []byte("done"), 0o644))

	o := f.orchestrator(t, RunConfig{Dates: dates(t, "2024-01-15", "2024-01-16")}, Deps{})
	sum, err := o.Run(context.Background(), []model.Station{model.NewStation("ABCD")})
	require.NoError(t, err)

	require.Len(t, sum.Reports, 2)
	assert.Equal(t, model.DayStatusComputed, sum.Reports[0].Status)
	assert.Equal(t, model.DayStatusSuccess, sum.Reports[1].Status, "run proceeds to the next day")
	assert.Equal(t, []string{"convert", "engine"}, f.runner.Tools(), "only the second day invokes tools")

	data, err := os.ReadFile(primary)
	require.NoError(t, err)
	assert.Equal(t, "done", string(data))
}

func TestRun_ForceRecomputes(t *testing.T) {
	f := newFixture(t)
	f.raw(t, "ABCD", "2024-01-15")
	primary := filepath.Join(f.artifactDir(), "2024-01-15.ABCD")
	require.NoError(t, os.MkdirAll(filepath.Dir(primary), 0o755))
	require.NoError(t, os.WriteFile(primary, []byte("stale"), 0o644))

	o := f.orchestrator(t, RunConfig{Dates: dates(t, "2024-01-15"), Force: true}, Deps{})
	sum, err := o.Run(context.Background(), []model.Station{model.NewStation("ABCD")})
	require.NoError(t, err)

	assert.Equal(t, model.DayStatusSuccess, sum.Reports[0].Status)
	data, err := os.ReadFile(primary)
	require.NoError(t, err)
	assert.NotEqual(t, "stale", string(data))
}

func TestRun_NoRawDataSkips(t *testing.T) {
	f := newFixture(t)
	o := f.orchestrator(t, RunConfig{Dates: dates(t, "2024-01-15")}, Deps{})

	sum, err := o.Run(context.Background(), []model.Station{model.NewStation("ABCD")})
	require.NoError(t, err)

	assert.Equal(t, model.DayStatusNoRaw, sum.Reports[0].Status)
	assert.Empty(t, f.runner.Calls())
	assert.NoDirExists(t, f.artifactDir())
}

func TestRun_EngineFailureKeepsErrorLogAndContinues(t *testing.T) {
	f := newFixture(t)
	f.raw(t, "ABCD", "2024-01-14")
	f.raw(t, "ABCD", "2024-01-15")
	calls := 0
	f.runner.On("engine", func(inv tools.Invocation) (int, error) {
		calls++
		if calls == 1 {
			_, _ = io.WriteString(inv.Stderr, "Segmentation fault\n")
			return 139, nil
		}
		return engineSucceeds(inv)
	})
	o := f.orchestrator(t, RunConfig{Dates: dates(t, "2024-01-14", "2024-01-15"), Debug: true}, Deps{})

	sum, err := o.Run(context.Background(), []model.Station{model.NewStation("ABCD")})
	require.NoError(t, err)

	require.Len(t, sum.Reports, 2)
	assert.Equal(t, model.DayStatusErrored, sum.Reports[0].Status)
	assert.Contains(t, sum.Reports[0].Reason, "engine exited 139")
	assert.Equal(t, model.DayStatusSuccess, sum.Reports[1].Status)

	failed := filepath.Join(f.artifactDir(), "2024-01-14.ABCD")
	assert.NoFileExists(t, failed)
	assert.NoFileExists(t, failed+finalize.LogSuffix)
	assert.NoFileExists(t, failed+finalize.TreeSuffix)
	errLog, err := os.ReadFile(failed + finalize.ErrorLogSuffix)
	require.NoError(t, err)
	assert.Contains(t, string(errLog), "Segmentation fault")

	ok := filepath.Join(f.artifactDir(), "2024-01-15.ABCD")
	assert.FileExists(t, ok+finalize.TreeSuffix, "debug mode keeps the tree of successful days")
	assert.Len(t, runDirs(t, f.cfg.Paths.WorkDir), 1, "debug mode keeps the run directory")
}

func TestRun_FullLogArchive(t *testing.T) {
	f := newFixture(t)
	f.raw(t, "ABCD", "2024-01-15")
	o := f.orchestrator(t, RunConfig{Dates: dates(t, "2024-01-15"), FullLog: true}, Deps{})

	_, err := o.Run(context.Background(), []model.Station{model.NewStation("ABCD")})
	require.NoError(t, err)
	archive := filepath.Join(f.artifactDir(), "2024-01-15.ABCD"+finalize.ArchiveSuffix)
	entries := tarEntries(t, archive)
	assert.Contains(t, entries, "2024-01-15.ABCD/smoothFinal.tdp")
	assert.Contains(t, entries["2024-01-15.ABCD/day.log"], "solution converged", "engine log is archived")
}

func TestRun_WorkDirSharedWithResultsKeepsResults(t *testing.T) {
	f := newFixture(t)
	f.cfg.Paths.WorkDir = f.cfg.Paths.ResultRoot
	f.raw(t, "ABCD", "2024-01-15")
	o := f.orchestrator(t, RunConfig{Dates: dates(t, "2024-01-15")}, Deps{})

	sum, err := o.Run(context.Background(), []model.Station{model.NewStation("ABCD")})
	require.NoError(t, err)
	require.Equal(t, 1, sum.Counts[model.DayStatusSuccess])
	assert.FileExists(t, filepath.Join(f.artifactDir(), "2024-01-15.ABCD"))
	assert.Empty(t, runDirs(t, f.cfg.Paths.WorkDir))
}

func runDirs(t *testing.T, workDir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(workDir, "run-*"))
	require.NoError(t, err)
	return matches
}

func tarEntries(t *testing.T, path string) map[string]string {
	t.Helper()
	fh, err := os.Open(path)
	require.NoError(t, err)
	defer fh.Close() //nolint:errcheck
	zr, err := gzip.NewReader(fh)
	require.NoError(t, err)
	tr := tar.NewReader(zr)

	out := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return out
		}
		require.NoError(t, err)
		b, err := io.ReadAll(tr)
		require.NoError(t, err)
		out[hdr.Name] = string(b)
	}
}

func TestRun_RealTimeUsesUltraOnly(t *testing.T) {
	f := newFixture(t)
	f.cfg.RealTime.Enabled = true
	for _, d := range []string{"2024-01-14", "2024-01-15", "2024-01-16"} {
		f.raw(t, "ABCD", d)
	}
	f.runner.On("window", func(inv tools.Invocation) (int, error) {
		out := argAfter(inv.Args, "-fout")
		return 0, os.WriteFile(out, []byte(obsHeader), 0o644)
	})
	o := f.orchestrator(t, RunConfig{Days: 1}, Deps{})

	sum, err := o.Run(context.Background(), []model.Station{model.NewStation("ABCD")})
	require.NoError(t, err)

	require.Len(t, sum.Reports, 1)
	rep := sum.Reports[0]
	require.Equal(t, model.DayStatusSuccess, rep.Status, rep.Reason)
	assert.Equal(t, model.TierUltra, *rep.Tier)
	assert.Equal(t, 3, f.runner.Count("convert"))
	assert.Equal(t, 1, f.runner.Count("window"))
	require.Equal(t, 1, f.runner.Count("engine"))
	assert.Equal(t, "Ultra", argAfter(f.runner.CallsFor("engine")[0].Args, "-GNSSproducts"))
	assert.FileExists(t, filepath.Join(f.artifactDir(), "2024-01-16.ABCD.ultra"))
}

func TestRun_LedgerAndMetrics(t *testing.T) {
	f := newFixture(t)
	f.raw(t, "ABCD", "2024-01-15")
	f.cfg.Metrics.Textfile = filepath.Join(t.TempDir(), "gnssproc.prom")
	led, err := ledger.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() }) //nolint:errcheck
	require.NoError(t, led.Migrate(context.Background()))
	rec, err := metrics.New()
	require.NoError(t, err)

	o := f.orchestrator(t, RunConfig{Dates: dates(t, "2024-01-14", "2024-01-15")}, Deps{Ledger: led, Metrics: rec})
	_, err = o.Run(context.Background(), []model.Station{model.NewStation("ABCD")})
	require.NoError(t, err)

	entries, err := led.List(context.Background(), ledger.Filter{Station: "ABCD"})
	require.NoError(t, err)
	require.Len(t, entries, 2)
	statuses := map[string]model.DayStatus{}
	for _, e := range entries {
		assert.Equal(t, o.RunID(), e.RunID)
		statuses[e.Date] = e.Status
	}
	assert.Equal(t, model.DayStatusNoRaw, statuses["2024-01-14"])
	assert.Equal(t, model.DayStatusSuccess, statuses["2024-01-15"])

	prom, err := os.ReadFile(f.cfg.Metrics.Textfile)
	require.NoError(t, err)
	assert.Contains(t, string(prom), `gnssproc_day_outcomes_total{status="success"} 1`)
	assert.Contains(t, string(prom), `gnssproc_tier_attempts_total{result="accepted",tier="final"} 1`)
}

func TestRun_InterruptedDayIsStillRecorded(t *testing.T) {
	f := newFixture(t)
	f.raw(t, "ABCD", "2024-01-15")
	f.raw(t, "ABCD", "2024-01-16")
	led, err := ledger.NewSQLite(filepath.Join(t.TempDir(), "ledger.db"))
	require.NoError(t, err)
	t.Cleanup(func() { led.Close() }) //nolint:errcheck
	require.NoError(t, led.Migrate(context.Background()))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	f.runner.On("engine", func(inv tools.Invocation) (int, error) {
		cancel()
		return engineSucceeds(inv)
	})

	o := f.orchestrator(t, RunConfig{Dates: dates(t, "2024-01-15", "2024-01-16")}, Deps{Ledger: led})
	sum, err := o.Run(ctx, []model.Station{model.NewStation("ABCD")})
	require.Error(t, err)
	require.Len(t, sum.Reports, 1)

	entries, err := led.List(context.Background(), ledger.Filter{Station: "ABCD"})
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "2024-01-15", entries[0].Date)
}

func TestRun_CancelledContext(t *testing.T) {
	f := newFixture(t)
	f.raw(t, "ABCD", "2024-01-15")
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := f.orchestrator(t, RunConfig{Dates: dates(t, "2024-01-15")}, Deps{})
	sum, err := o.Run(ctx, []model.Station{model.NewStation("ABCD")})
	require.Error(t, err)
	assert.Empty(t, sum.Reports)
	assert.Empty(t, f.runner.Calls())
}

func TestNew_RequiresRunner(t *testing.T) {
	_, err := New(&config.Config{}, RunConfig{}, Deps{})
	require.Error(t, err)
}

// stubRetriever creates the expected orbit file for the listed tiers.
type stubRetriever struct {
	cache     string
	available map[model.Tier]bool
	calls     []model.Tier
}

func (s *stubRetriever) Retrieve(_ context.Context, tier model.Tier, day model.Day, _ io.Writer) error {
	s.calls = append(s.calls, tier)
	if !s.available[tier] {
		return nil
	}
	p := orbit.ExpectedPath(s.cache, tier, day)
	if err := os.MkdirAll(filepath.Dir(p), 0o755); err != nil {
		return err
	}
	return os.WriteFile(p, []byte("orbit"), 0o644)
}

func argAfter(args []string, flag string) string {
	for i, a := range args {
		if a == flag && i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}
