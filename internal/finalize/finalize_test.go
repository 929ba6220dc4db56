package finalize

import (
	"archive/tar"
	"io"
	"os"
	"path/filepath"
	"sort"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func gunzip(t *testing.T, path string) []byte {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	data, err := io.ReadAll(zr)
	require.NoError(t, err)
	return data
}

func TestComputed(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "2024-01-15.ABCD")
	assert.False(t, Computed(p))
	write(t, p, "")
	assert.False(t, Computed(p))
	write(t, p, "rows")
	assert.True(t, Computed(p))
}

func TestWorkspaceLifecycle(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "ws")
	ws, err := NewWorkspace(parent, false)
	require.NoError(t, err)
	assert.Equal(t, parent, filepath.Dir(ws.Root()))

	log, err := ws.Reset()
	require.NoError(t, err)
	_, _ = io.WriteString(log, "day one\n")
	require.NoError(t, log.Close())
	write(t, filepath.Join(ws.DayDir(), "leftover.tdp"), "x")

	log, err = ws.Reset()
	require.NoError(t, err)
	require.NoError(t, log.Close())

	entries, err := os.ReadDir(ws.DayDir())
	require.NoError(t, err)
	assert.Empty(t, entries, "day directory emptied between days")
	data, err := os.ReadFile(ws.LogPath())
	require.NoError(t, err)
	assert.Empty(t, data, "log truncated between days")

	require.NoError(t, ws.Cleanup())
	assert.NoDirExists(t, ws.Root())
	assert.DirExists(t, parent)
}

func TestWorkspaceCleanupSparesSharedParent(t *testing.T) {
	parent := t.TempDir()
	results := filepath.Join(parent, "ABCD", "2024", "2024-01-15.ABCD")
	write(t, results, "rows")

	ws, err := NewWorkspace(parent, false)
	require.NoError(t, err)
	other, err := NewWorkspace(parent, false)
	require.NoError(t, err)
	assert.NotEqual(t, ws.Root(), other.Root())

	require.NoError(t, ws.Cleanup())
	assert.FileExists(t, results)
	assert.DirExists(t, other.Root())
}

func TestWorkspaceKeptInDebug(t *testing.T) {
	parent := filepath.Join(t.TempDir(), "ws")
	ws, err := NewWorkspace(parent, true)
	require.NoError(t, err)
	require.NoError(t, ws.Cleanup())
	assert.DirExists(t, ws.Root())
}

func TestNewWorkspace_EmptyRoot(t *testing.T) {
	_, err := NewWorkspace("", false)
	require.Error(t, err)
}

func TestCompressLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "day.log")
	write(t, logPath, "engine output\n")
	artifact := filepath.Join(dir, "results", "ABCD", "2024", "2024-01-15.ABCD")

	dst, err := CompressLog(logPath, artifact)
	require.NoError(t, err)
	assert.Equal(t, artifact+".log.gz", dst)
	assert.Equal(t, "engine output\n", string(gunzip(t, dst)))
}

func TestKeepErrorLog(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "day.log")
	write(t, logPath, "Segmentation fault\n")
	primary := filepath.Join(dir, "results", "ABCD", "2024", "2024-01-15.ABCD")

	dst, err := KeepErrorLog(logPath, primary)
	require.NoError(t, err)
	data, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "Segmentation fault\n", string(data))
	assert.NoFileExists(t, primary)
}

func TestCopyTree(t *testing.T) {
	day := t.TempDir()
	artifact := filepath.Join(t.TempDir(), "2024-01-15.ABCD")

	copied, err := CopyTree(day, "ppp_0.tree", artifact)
	require.NoError(t, err)
	assert.False(t, copied)

	write(t, filepath.Join(day, "ppp_0.tree"), "tree")
	copied, err = CopyTree(day, "ppp_0.tree", artifact)
	require.NoError(t, err)
	assert.True(t, copied)
	assert.FileExists(t, artifact+".tree")
}

func TestArchiveDay_SkippedWhenOnlyObservation(t *testing.T) {
	day := t.TempDir()
	write(t, filepath.Join(day, "abcd0150.24o"), "obs")
	base := filepath.Join(t.TempDir(), "2024-01-15.ABCD")

	dst, err := ArchiveDay(day, "abcd0150.24o", "", base)
	require.NoError(t, err)
	assert.Empty(t, dst)
	assert.NoFileExists(t, base+ArchiveSuffix)
}

func TestArchiveDay_WritesWholeDirectory(t *testing.T) {
	day := t.TempDir()
	write(t, filepath.Join(day, "abcd0150.24o"), "obs")
	write(t, filepath.Join(day, "smoothFinal.tdp"), "tdp")
	write(t, filepath.Join(day, "realtime", "abcd0140.24o"), "prev")
	logPath := filepath.Join(t.TempDir(), "day.log")
	write(t, logPath, "engine output")
	base := filepath.Join(t.TempDir(), "2024-01-15.ABCD")

	dst, err := ArchiveDay(day, "abcd0150.24o", logPath, base)
	require.NoError(t, err)
	require.Equal(t, base+ArchiveSuffix, dst)

	f, err := os.Open(dst)
	require.NoError(t, err)
	defer f.Close() //nolint:errcheck
	zr, err := gzip.NewReader(f)
	require.NoError(t, err)
	tr := tar.NewReader(zr)

	var names []string
	contents := map[string]string{}
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, hdr.Name)
		if hdr.Typeflag == tar.TypeReg {
			b, err := io.ReadAll(tr)
			require.NoError(t, err)
			contents[hdr.Name] = string(b)
		}
	}
	sort.Strings(names)
	assert.Equal(t, []string{
		"2024-01-15.ABCD/abcd0150.24o",
		"2024-01-15.ABCD/day.log",
		"2024-01-15.ABCD/realtime/",
		"2024-01-15.ABCD/realtime/abcd0140.24o",
		"2024-01-15.ABCD/smoothFinal.tdp",
	}, names)
	assert.Equal(t, "tdp", contents["2024-01-15.ABCD/smoothFinal.tdp"])
	assert.Equal(t, "engine output", contents["2024-01-15.ABCD/day.log"])
}

func TestArchiveDay_MissingLogIsSkipped(t *testing.T) {
	day := t.TempDir()
	write(t, filepath.Join(day, "abcd0150.24o"), "obs")
	write(t, filepath.Join(day, "smoothFinal.tdp"), "tdp")
	base := filepath.Join(t.TempDir(), "2024-01-15.ABCD")

	dst, err := ArchiveDay(day, "abcd0150.24o", filepath.Join(t.TempDir(), "day.log"), base)
	require.NoError(t, err)
	assert.FileExists(t, dst)
}

func TestOnlyObservation_MissingDir(t *testing.T) {
	_, err := OnlyObservation(filepath.Join(t.TempDir(), "nope"), "x")
	require.Error(t, err)
}
