// Package metadata resolves receiver, antenna and approximate-position
// overrides for a station from inline configuration and external tables.
package metadata

import (
	"bytes"
	"context"
	"strconv"
	"strings"

	"github.com/tidwall/gjson"
	"github.com/twpayne/go-geom"
	"go.uber.org/zap"

	"github.com/sells-group/gnssproc/internal/config"
	"github.com/sells-group/gnssproc/internal/model"
	"github.com/sells-group/gnssproc/internal/tools"
)

// JSON fields printed by the lookup tools.
const (
	fieldReceiver = "receiver"
	fieldAntenna  = "antenna"
	fieldPosition = "position"
)

// Resolver merges overrides from inline configuration, then every configured
// source in order. Later non-empty values win.
type Resolver struct {
	runner   tools.Runner
	stations config.StationsConfig
	sources  []config.MetadataSource
	cache    map[string]model.MetadataOverride
}

// NewResolver creates a Resolver.
func NewResolver(runner tools.Runner, stations config.StationsConfig, sources []config.MetadataSource) *Resolver {
	return &Resolver{
		runner:   runner,
		stations: stations,
		sources:  sources,
		cache:    make(map[string]model.MetadataOverride),
	}
}

// Resolve returns the merged override for station on day. Lookup failures
// degrade to "no override" from that source.
func (r *Resolver) Resolve(ctx context.Context, station model.Station, day model.Day) model.MetadataOverride {
	key := station.Upper() + "/" + day.ISO()
	if o, ok := r.cache[key]; ok {
		return o
	}

	log := zap.L().With(zap.String("station", station.Upper()), zap.String("date", day.ISO()))

	var out model.MetadataOverride
	if inline, ok := r.stations.InlineFor(station); ok {
		out = out.Merge(inline.Model())
	}

	for _, src := range r.sources {
		o, ok := r.lookup(ctx, src, station, day)
		if !ok {
			continue
		}
		log.Debug("metadata: source applied", zap.String("source", src.Name))
		out = out.Merge(o)
	}

	if !out.IsZero() {
		log.Info("metadata overrides resolved",
			zap.String("receiver", out.Receiver),
			zap.String("antenna", out.Antenna),
			zap.Bool("approx_position", out.ApproxPosition != nil),
		)
	}

	r.cache[key] = out
	return out
}

func (r *Resolver) lookup(ctx context.Context, src config.MetadataSource, station model.Station, day model.Day) (model.MetadataOverride, bool) {
	log := zap.L().With(zap.String("source", src.Name), zap.String("station", station.Upper()))

	dateKey := day.YearDOY()
	if src.Key == "iso" {
		dateKey = day.ISO()
	}

	var stdout, stderr bytes.Buffer
	inv, err := tools.LookupOptions{
		Binary:  src.Binary,
		Source:  src.Path,
		Station: station.Upper(),
		Key:     dateKey,
	}.Invocation(&stdout, &stderr)
	if err != nil {
		log.Warn("metadata: invalid lookup, skipping source", zap.Error(err))
		return model.MetadataOverride{}, false
	}

	code, err := r.runner.Run(ctx, inv)
	if !tools.Succeeded(code, err) {
		log.Warn("metadata: lookup failed, no override from source",
			zap.Int("exit_code", code),
			zap.String("stderr", strings.TrimSpace(stderr.String())),
			zap.Error(err),
		)
		return model.MetadataOverride{}, false
	}

	o, ok := Parse(stdout.Bytes(), src.Position)
	if !ok {
		log.Warn("metadata: lookup returned no usable JSON")
	}
	return o, ok
}

// Parse extracts the override fields from a lookup tool's JSON. The position
// is read only when withPosition is set; it may be an array of three numbers
// or a whitespace-separated string.
func Parse(data []byte, withPosition bool) (model.MetadataOverride, bool) {
	if !gjson.ValidBytes(data) {
		return model.MetadataOverride{}, false
	}
	res := gjson.ParseBytes(data)
	if !res.IsObject() {
		return model.MetadataOverride{}, false
	}

	out := model.MetadataOverride{
		Receiver: unquote(res.Get(fieldReceiver).String()),
		Antenna:  unquote(res.Get(fieldAntenna).String()),
	}
	if withPosition {
		out.ApproxPosition = parsePosition(res.Get(fieldPosition))
	}
	return out, true
}

func parsePosition(v gjson.Result) *geom.Point {
	var xyz []float64
	switch {
	case v.IsArray():
		for _, c := range v.Array() {
			xyz = append(xyz, c.Float())
		}
	case v.Type == gjson.String:
		for _, f := range strings.Fields(unquote(v.String())) {
			c, err := strconv.ParseFloat(f, 64)
			if err != nil {
				return nil
			}
			xyz = append(xyz, c)
		}
	}
	if len(xyz) != 3 || (xyz[0] == 0 && xyz[1] == 0 && xyz[2] == 0) {
		return nil
	}
	return model.NewApproxPosition(xyz[0], xyz[1], xyz[2])
}

func unquote(s string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(s), `"'`))
}
