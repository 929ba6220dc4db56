// Package preflight holds the global checks run once before any station.
package preflight

import (
	"errors"
	"os"

	"github.com/dustin/go-humanize"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/sys/unix"
)

// ErrInsufficientSpace is returned when the result volume is nearly full.
var ErrInsufficientSpace = errors.New("preflight: insufficient free space")

// Usage describes a filesystem's capacity.
type Usage struct {
	Total uint64
	Free  uint64
}

// FreePercent is the share of the volume available to unprivileged users.
func (u Usage) FreePercent() float64 {
	if u.Total == 0 {
		return 0
	}
	return float64(u.Free) / float64(u.Total) * 100
}

// Statfs reports the usage of the filesystem containing path.
var Statfs = func(path string) (Usage, error) {
	var st unix.Statfs_t
	if err := unix.Statfs(path, &st); err != nil {
		return Usage{}, eris.Wrapf(err, "preflight: statfs %s", path)
	}
	bsize := uint64(st.Bsize)
	return Usage{Total: st.Blocks * bsize, Free: st.Bavail * bsize}, nil
}

// CheckDiskSpace fails with ErrInsufficientSpace when less than minPercent
// of the volume holding root is free. root is created if missing so the
// check also runs on a first invocation. A non-positive minPercent disables
// the check.
func CheckDiskSpace(root string, minPercent float64) error {
	if minPercent <= 0 {
		return nil
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return eris.Wrapf(err, "preflight: create %s", root)
	}
	u, err := Statfs(root)
	if err != nil {
		return err
	}
	free := u.FreePercent()
	if free < minPercent {
		return eris.Wrapf(ErrInsufficientSpace, "preflight: %s has %.1f%% free (%s of %s), need %.1f%%",
			root, free, humanize.IBytes(u.Free), humanize.IBytes(u.Total), minPercent)
	}
	zap.L().Info("preflight: disk space ok",
		zap.String("path", root),
		zap.String("free", humanize.IBytes(u.Free)),
		zap.Float64("free_percent", free),
	)
	return nil
}
