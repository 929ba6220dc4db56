package model

import (
	"strings"

	"github.com/twpayne/go-geom"
)

// Station is a GNSS site processed by the run.
type Station struct {
	Code string `json:"code"`
}

// NewStation normalizes the code to upper case.
func NewStation(code string) Station {
	return Station{Code: strings.ToUpper(strings.TrimSpace(code))}
}

// Upper returns the upper-case station code.
func (s Station) Upper() string { return strings.ToUpper(s.Code) }

// Lower returns the lower-case station code.
func (s Station) Lower() string { return strings.ToLower(s.Code) }

func (s Station) String() string { return s.Upper() }

// MetadataOverride carries the receiver, antenna and approximate position
// written into the observation header. Empty fields mean "keep whatever the
// raw data says".
type MetadataOverride struct {
	Receiver       string      `json:"receiver,omitempty" yaml:"receiver" mapstructure:"receiver"`
	Antenna        string      `json:"antenna,omitempty" yaml:"antenna" mapstructure:"antenna"`
	ApproxPosition *geom.Point `json:"-" yaml:"-" mapstructure:"-"`
}

// Merge applies later on top of o. A field of later replaces the current
// value only when it is non-empty.
func (o MetadataOverride) Merge(later MetadataOverride) MetadataOverride {
	out := o
	if v := strings.TrimSpace(later.Receiver); v != "" {
		out.Receiver = v
	}
	if v := strings.TrimSpace(later.Antenna); v != "" {
		out.Antenna = v
	}
	if later.ApproxPosition != nil && !later.ApproxPosition.Empty() {
		out.ApproxPosition = later.ApproxPosition
	}
	return out
}

// IsZero reports whether no field is set.
func (o MetadataOverride) IsZero() bool {
	return o.Receiver == "" && o.Antenna == "" && o.ApproxPosition == nil
}

// NewApproxPosition builds an ECEF XYZ point in meters.
func NewApproxPosition(x, y, z float64) *geom.Point {
	return geom.NewPointFlat(geom.XYZ, []float64{x, y, z})
}
