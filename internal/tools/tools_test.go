package tools

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sells-group/gnssproc/internal/model"
)

func TestConvertOptions_Args(t *testing.T) {
	o := ConvertOptions{
		Binary:     "teqc",
		Inputs:     []string{"/raw/abcd0150.T02"},
		Options:    []string{"-tr", "d"},
		MarkerName: "ABCD",
		Override: model.MetadataOverride{
			Receiver:       "TRIMBLE NETR9",
			Antenna:        "TRM59800.00     SCIS",
			ApproxPosition: model.NewApproxPosition(-2486000.1234, 1234.5, 5678.25),
		},
	}
	want := []string{
		"-tr", "d",
		"-O.mo", "ABCD",
		"-O.rt", "TRIMBLE NETR9",
		"-O.at", "TRM59800.00     SCIS",
		"-O.px", "-2486000.1234", "1234.5000", "5678.2500",
		"/raw/abcd0150.T02",
	}
	if diff := cmp.Diff(want, o.Args()); diff != "" {
		t.Errorf("args mismatch (-want +got):\n%s", diff)
	}
}

func TestConvertOptions_SkipsEmptyOverrides(t *testing.T) {
	o := ConvertOptions{Binary: "teqc", Inputs: []string{"a"}}
	assert.Equal(t, []string{"a"}, o.Args())
}

func TestConvertOptions_Validate(t *testing.T) {
	_, err := ConvertOptions{Binary: "teqc"}.Invocation("", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "no input files")

	_, err = ConvertOptions{Inputs: []string{"a"}}.Invocation("", nil, nil)
	require.Error(t, err)
}

func TestEngineOptions_Args(t *testing.T) {
	o := EngineOptions{
		Binary:          "gd2e.py",
		ObservationFile: "abcd0150.24o",
		OrbitSource:     "Final",
		AntexFile:       "/data/igs20.atx",
		Covariance:      true,
		NonFiducial:     true,
		Options:         []string{"-runType", "PPP"},
	}
	want := []string{
		"-rnxFile", "abcd0150.24o", "-GNSSproducts", "Final",
		"-antexFile", "/data/igs20.atx", "-gdCov", "-nonFiducial",
		"-runType", "PPP",
	}
	assert.Equal(t, want, o.Args())

	_, err := EngineOptions{Binary: "gd2e.py", ObservationFile: "x"}.Invocation("", nil, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "orbit source")
}

func TestHelmertOptions_RejectsInPlace(t *testing.T) {
	o := HelmertOptions{Binary: "netApply", Input: "a.gdcov", XFile: "x.gz", Output: "a.gdcov"}
	require.Error(t, o.Validate())

	o.Output = "a.fid.gdcov"
	require.NoError(t, o.Validate())
	assert.Equal(t, []string{"-i", "a.gdcov", "-x", "x.gz", "-o", "a.fid.gdcov"}, o.Args())
}

func TestFrameCorrectOptions_InPlace(t *testing.T) {
	o := FrameCorrectOptions{Binary: "apply_cmc", CovFile: "s.gdcov", Options: []string{"-v"}}
	assert.Equal(t, []string{"-v", "-i", "s.gdcov", "-o", "s.gdcov"}, o.Args())
}

func TestWindowOptions_Args(t *testing.T) {
	start := time.Date(2024, 1, 14, 5, 30, 0, 0, time.UTC)
	o := WindowOptions{
		Binary:   "gfzrnx",
		Inputs:   []string{"a", "b", "c"},
		Output:   "w",
		Start:    start,
		Duration: 30 * time.Hour,
	}
	want := []string{"-finp", "a", "b", "c", "-fout", "w", "-epo_beg", "2024-01-14_053000", "-d", "108000", "-f"}
	assert.Equal(t, want, o.Args())

	o.Duration = 0
	require.Error(t, o.Validate())
}

func TestLookupAndRetrieveOptions(t *testing.T) {
	l := LookupOptions{Binary: "lookup", Source: "inv.csv", Station: "ABCD", Key: "2024-015"}
	assert.Equal(t, []string{"inv.csv", "ABCD", "2024-015"}, l.Args())
	require.Error(t, LookupOptions{Binary: "lookup"}.Validate())

	r := RetrieveOptions{Binary: "fetch", CacheRoot: "/cache", Label: "Final", Date: "2024-01-15", Options: []string{"-q"}}
	assert.Equal(t, []string{"/cache", "Final", "2024-01-15", "-q"}, r.Args())
}

func TestExecRunner_ExitCodes(t *testing.T) {
	r := NewExecRunner()
	var out bytes.Buffer

	code, err := r.Run(context.Background(), Invocation{Tool: "sh", Binary: "sh", Args: []string{"-c", "echo hi"}, Stdout: &out})
	require.NoError(t, err)
	assert.Equal(t, 0, code)
	assert.Equal(t, "hi\n", out.String())

	code, err = r.Run(context.Background(), Invocation{Tool: "sh", Binary: "sh", Args: []string{"-c", "exit 3"}})
	require.NoError(t, err)
	assert.Equal(t, 3, code)
	assert.False(t, Succeeded(code, err))

	_, err = r.Run(context.Background(), Invocation{Tool: "missing", Binary: "/nonexistent/binary"})
	require.Error(t, err)
}
