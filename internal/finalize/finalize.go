// Package finalize gates days on existing results and files the logs and
// archives of a processed day next to its artifact.
package finalize

import (
	"archive/tar"
	"errors"
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"
	"github.com/klauspost/compress/gzip"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gnssproc/internal/fsutil"
)

// Sibling suffixes written next to an artifact.
const (
	LogSuffix      = ".log.gz"
	ErrorLogSuffix = ".error.log"
	TreeSuffix     = ".tree"
	ArchiveSuffix  = ".fullog.tar.gz"
)

// Computed reports whether an artifact already exists and is non-empty.
func Computed(path string) bool {
	return fsutil.NonEmpty(path)
}

// CompressLog gzips the day log to <artifact>.log.gz.
func CompressLog(logPath, artifact string) (string, error) {
	dst := artifact + LogSuffix
	in, err := os.Open(logPath)
	if err != nil {
		return "", eris.Wrapf(err, "finalize: open log %s", logPath)
	}
	defer in.Close() //nolint:errcheck

	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", eris.Wrap(err, "finalize: create artifact directory")
	}

	pr, pw := io.Pipe()
	go func() {
		zw := gzip.NewWriter(pw)
		zw.Name = filepath.Base(artifact) + ".log"
		_, err := io.Copy(zw, in)
		if cerr := zw.Close(); err == nil {
			err = cerr
		}
		pw.CloseWithError(err) //nolint:errcheck
	}()

	n, err := fsutil.WriteFileAtomic(dst, pr)
	pr.Close() //nolint:errcheck
	if err != nil {
		return "", eris.Wrapf(err, "finalize: write %s", dst)
	}
	zap.L().Debug("finalize: log compressed", zap.String("path", dst), zap.String("size", humanize.Bytes(uint64(n))))
	return dst, nil
}

// KeepErrorLog copies the log of an errored day, uncompressed, beside the
// primary artifact path so the failure can be inspected.
func KeepErrorLog(logPath, primary string) (string, error) {
	dst := primary + ErrorLogSuffix
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", eris.Wrap(err, "finalize: create artifact directory")
	}
	if err := fsutil.CopyFile(logPath, dst); err != nil {
		return "", err
	}
	return dst, nil
}

// CopyTree copies the engine's diagnostic tree file to <artifact>.tree. It
// returns false when the engine did not produce one.
func CopyTree(dayDir, treeFile, artifact string) (bool, error) {
	if treeFile == "" {
		return false, nil
	}
	src := filepath.Join(dayDir, treeFile)
	if !fsutil.NonEmpty(src) {
		return false, nil
	}
	if err := fsutil.CopyFile(src, artifact+TreeSuffix); err != nil {
		return false, err
	}
	return true, nil
}

// OnlyObservation reports whether dayDir holds nothing but the input
// observation file named obsName.
func OnlyObservation(dayDir, obsName string) (bool, error) {
	entries, err := os.ReadDir(dayDir)
	if err != nil {
		return false, eris.Wrapf(err, "finalize: read %s", dayDir)
	}
	for _, e := range entries {
		if e.Name() != obsName {
			return false, nil
		}
	}
	return true, nil
}

// ArchiveDay writes dayDir, plus the day log at logPath when it exists, as
// <base>.fullog.tar.gz. When the directory holds only the observation file
// there is nothing informative to keep and the archive is skipped; the
// returned path is empty in that case.
func ArchiveDay(dayDir, obsName, logPath, base string) (string, error) {
	only, err := OnlyObservation(dayDir, obsName)
	if err != nil {
		return "", err
	}
	if only {
		zap.L().Info("full log skipped: working directory holds only the observation file", zap.String("dir", dayDir))
		return "", nil
	}

	dst := base + ArchiveSuffix
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return "", eris.Wrap(err, "finalize: create artifact directory")
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(writeTarGz(pw, dayDir, logPath, filepath.Base(base))) //nolint:errcheck
	}()
	n, err := fsutil.WriteFileAtomic(dst, pr)
	pr.Close() //nolint:errcheck
	if err != nil {
		return "", eris.Wrapf(err, "finalize: write %s", dst)
	}

	zap.L().Info("full log archived", zap.String("path", dst), zap.String("size", humanize.Bytes(uint64(n))))
	return dst, nil
}

func writeTarGz(w io.Writer, dir, logPath, prefix string) error {
	zw := gzip.NewWriter(w)
	tw := tar.NewWriter(zw)

	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		info, err := d.Info()
		if err != nil {
			return err
		}
		if !info.Mode().IsRegular() && !info.IsDir() {
			return nil
		}
		hdr, err := tar.FileInfoHeader(info, "")
		if err != nil {
			return err
		}
		hdr.Name = filepath.ToSlash(filepath.Join(prefix, rel))
		if info.IsDir() {
			hdr.Name += "/"
		}
		if err := tw.WriteHeader(hdr); err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		return copyInto(tw, path)
	})
	if err != nil {
		return eris.Wrap(err, "finalize: archive working directory")
	}
	if logPath != "" {
		if err := addFile(tw, logPath, prefix); err != nil {
			return eris.Wrap(err, "finalize: archive day log")
		}
	}
	if err := tw.Close(); err != nil {
		return eris.Wrap(err, "finalize: close tar")
	}
	return zw.Close()
}

// addFile appends the regular file at path under prefix. A missing file is
// skipped.
func addFile(tw *tar.Writer, path, prefix string) error {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err != nil {
		return err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return err
	}
	hdr.Name = filepath.ToSlash(filepath.Join(prefix, filepath.Base(path)))
	if err := tw.WriteHeader(hdr); err != nil {
		return err
	}
	return copyInto(tw, path)
}

func copyInto(w io.Writer, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close() //nolint:errcheck
	_, err = io.Copy(w, f)
	return err
}
