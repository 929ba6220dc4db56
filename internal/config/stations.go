package config

import (
	"os"
	"strings"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/sells-group/gnssproc/internal/model"
)

// stationsFile is the on-disk layout of stations.file:
//
//	stations:
//	  ABCD:
//	    receiver: TRIMBLE NETR9
//	    antenna: TRM59800.00     SCIS
//	    position: [-2486000.1, 1234.5, 5678.2]
type stationsFile struct {
	Stations map[string]StationOverride `yaml:"stations"`
}

// LoadStationsFile reads inline station overrides from a YAML file. Keys are
// normalized to upper case.
func LoadStationsFile(path string) (map[string]StationOverride, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "config: read stations file %s", path)
	}
	var f stationsFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrapf(err, "config: parse stations file %s", path)
	}
	out := make(map[string]StationOverride, len(f.Stations))
	for code, o := range f.Stations {
		out[strings.ToUpper(code)] = o
	}
	return out, nil
}

// mergeInline overlays override on base, both keyed case-insensitively.
func mergeInline(base, override map[string]StationOverride) map[string]StationOverride {
	out := make(map[string]StationOverride, len(base)+len(override))
	for k, v := range base {
		out[strings.ToUpper(k)] = v
	}
	for k, v := range override {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// InlineFor returns the inline override of a station, if any.
func (s StationsConfig) InlineFor(station model.Station) (StationOverride, bool) {
	for k, v := range s.Inline {
		if strings.EqualFold(k, station.Code) {
			return v, true
		}
	}
	return StationOverride{}, false
}

// Model converts the inline override into a model value.
func (o StationOverride) Model() model.MetadataOverride {
	out := model.MetadataOverride{Receiver: o.Receiver, Antenna: o.Antenna}
	if len(o.Position) == 3 {
		out.ApproxPosition = model.NewApproxPosition(o.Position[0], o.Position[1], o.Position[2])
	}
	return out
}
