// Package fsutil holds the small file helpers shared by the pipeline stages.
package fsutil

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/rotisserie/eris"
)

// NonEmpty reports whether path is a regular file with at least one byte.
func NonEmpty(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular() && fi.Size() > 0
}

// WriteFileAtomic copies r into a temp file beside path and renames it into
// place, so readers never see a partial file.
func WriteFileAtomic(path string, r io.Reader) (int64, error) {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return 0, eris.Wrap(err, "create file")
	}
	defer os.Remove(tmp.Name()) //nolint:errcheck

	n, err := io.Copy(tmp, r)
	if err != nil {
		tmp.Close() //nolint:errcheck
		return n, eris.Wrap(err, "write file")
	}
	if err := tmp.Close(); err != nil {
		return n, eris.Wrap(err, "close file")
	}
	if err := os.Chmod(tmp.Name(), 0o644); err != nil {
		return n, eris.Wrap(err, "chmod file")
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return n, eris.Wrap(err, "rename file")
	}
	return n, nil
}

// WriteBytesAtomic is WriteFileAtomic for an in-memory payload.
func WriteBytesAtomic(path string, data []byte) error {
	_, err := WriteFileAtomic(path, bytes.NewReader(data))
	return err
}

// CopyFile copies src to dst atomically.
func CopyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return eris.Wrapf(err, "fsutil: open %s", src)
	}
	defer in.Close() //nolint:errcheck

	if _, err := WriteFileAtomic(dst, in); err != nil {
		return eris.Wrapf(err, "fsutil: copy %s to %s", src, dst)
	}
	return nil
}
