// Package orbit fills the local orbit product cache for one tier and day
// and answers whether the tier's products are present.
package orbit

import (
	"context"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/gnssproc/internal/config"
	"github.com/sells-group/gnssproc/internal/fetcher"
	"github.com/sells-group/gnssproc/internal/fsutil"
	"github.com/sells-group/gnssproc/internal/model"
	"github.com/sells-group/gnssproc/internal/resilience"
	"github.com/sells-group/gnssproc/internal/tools"
)

// orbitProduct is the product whose presence proves a tier is usable.
const orbitProduct = "eo.gz"

// Retriever requests the products of one tier and day into the cache. A
// nil error does not imply the products exist; check Available afterwards.
type Retriever interface {
	Retrieve(ctx context.Context, tier model.Tier, day model.Day, log io.Writer) error
}

// TierDir is <cache>/<Label>/<YYYY>, the directory the engine reads a
// tier's products from.
func TierDir(cache string, tier model.Tier, day model.Day) string {
	return filepath.Join(cache, tier.Label(), day.Time().Format("2006"))
}

// ExpectedPath is the compressed orbit file that must exist after retrieval.
func ExpectedPath(cache string, tier model.Tier, day model.Day) string {
	return ProductPath(cache, tier, day, orbitProduct)
}

// ProductPath is the cache location of one product file.
func ProductPath(cache string, tier model.Tier, day model.Day, product string) string {
	return filepath.Join(TierDir(cache, tier, day), day.ISO()+"."+product)
}

// Available reports whether the expected orbit file exists and is non-empty.
func Available(cache string, tier model.Tier, day model.Day) bool {
	return fsutil.NonEmpty(ExpectedPath(cache, tier, day))
}

// New builds the retriever named by cfg.Retriever.
func New(cfg config.OrbitConfig, runner tools.Runner) (Retriever, error) {
	switch cfg.Retriever {
	case "command", "":
		return NewCommandRetriever(runner, cfg.CacheDir, cfg.Command), nil
	case "ftp":
		f := fetcher.New(fetcher.Options{
			Timeout:    time.Duration(cfg.FTP.TimeoutSecs) * time.Second,
			RatePerSec: cfg.FTP.RatePerSec,
			Retry:      resilience.FromAttempts(cfg.FTP.MaxAttempts, 0),
		})
		return NewArchiveRetriever(f, cfg.CacheDir, cfg.FTP), nil
	default:
		return nil, eris.Errorf("orbit: unknown retriever %q", cfg.Retriever)
	}
}

// CommandRetriever delegates retrieval to an external program called as
// `binary cacheRoot label date options...`.
type CommandRetriever struct {
	runner tools.Runner
	cache  string
	cfg    config.OrbitCommandConfig
}

// NewCommandRetriever creates a CommandRetriever.
func NewCommandRetriever(runner tools.Runner, cache string, cfg config.OrbitCommandConfig) *CommandRetriever {
	return &CommandRetriever{runner: runner, cache: cache, cfg: cfg}
}

// Retrieve runs the retrieval program. Its exit code is logged but not
// trusted; availability is decided by the expected file.
func (r *CommandRetriever) Retrieve(ctx context.Context, tier model.Tier, day model.Day, log io.Writer) error {
	if log == nil {
		log = io.Discard
	}
	inv, err := tools.RetrieveOptions{
		Binary:    r.cfg.Binary,
		CacheRoot: r.cache,
		Label:     tier.Label(),
		Date:      day.ISO(),
		Options:   r.cfg.Options,
	}.Invocation(log, log)
	if err != nil {
		return err
	}

	code, err := r.runner.Run(ctx, inv)
	if err != nil {
		return err
	}
	if code != 0 {
		zap.L().Warn("orbit: retrieval tool exited non-zero",
			zap.String("tier", tier.String()),
			zap.String("date", day.ISO()),
			zap.Int("exit_code", code),
		)
	}
	return nil
}

// ArchiveRetriever downloads a tier's products straight from an FTP or
// HTTP archive. The URL template accepts the path tokens plus {label} and
// {product}.
type ArchiveRetriever struct {
	fetcher fetcher.Fetcher
	cache   string
	cfg     config.OrbitFTPConfig
}

// NewArchiveRetriever creates an ArchiveRetriever.
func NewArchiveRetriever(f fetcher.Fetcher, cache string, cfg config.OrbitFTPConfig) *ArchiveRetriever {
	return &ArchiveRetriever{fetcher: f, cache: cache, cfg: cfg}
}

// URL renders the archive location of one product.
func (r *ArchiveRetriever) URL(tier model.Tier, day model.Day, product string) string {
	u := strings.NewReplacer("{label}", tier.Label(), "{product}", product).Replace(r.cfg.URLTemplate)
	return model.Expand(u, model.Station{}, day, r.cache)
}

// Retrieve downloads every configured product that is not cached yet.
// Products the archive does not hold yet are skipped with a note; other
// failures abort.
func (r *ArchiveRetriever) Retrieve(ctx context.Context, tier model.Tier, day model.Day, log io.Writer) error {
	if log == nil {
		log = io.Discard
	}
	l := zap.L().With(zap.String("tier", tier.String()), zap.String("date", day.ISO()))

	for _, product := range r.cfg.Products {
		dst := ProductPath(r.cache, tier, day, product)
		if fsutil.NonEmpty(dst) {
			continue
		}

		src := r.URL(tier, day, product)
		n, err := r.fetcher.DownloadToFile(ctx, src, dst)
		switch {
		case errors.Is(err, fetcher.ErrNotFound):
			l.Info("orbit: product not published yet", zap.String("product", product))
			fmt.Fprintln(log, "not published:", src) //nolint:errcheck
			continue
		case err != nil:
			return eris.Wrapf(err, "orbit: retrieve %s", src)
		}
		fmt.Fprintln(log, "retrieved:", src) //nolint:errcheck
		l.Debug("orbit: product retrieved", zap.String("product", product), zap.Int64("bytes", n))
	}
	return nil
}
