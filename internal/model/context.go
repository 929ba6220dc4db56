package model

import (
	"fmt"
	"path/filepath"
	"strings"
)

// DayContext is the immutable view of one (station, day) unit of work. A
// fresh value is built for every iteration and handed to each component.
type DayContext struct {
	Station    Station
	Day        Day
	Override   MetadataOverride
	Tiers      []Tier
	RealTime   bool
	Force      bool
	Debug      bool
	FullLog    bool
	ResultRoot string
	WorkDir    string
}

// ArtifactDir is <root>/<STATION>/<YYYY>.
func (c DayContext) ArtifactDir() string {
	return filepath.Join(c.ResultRoot, c.Station.Upper(), fmt.Sprintf("%04d", c.Day.Year()))
}

// ArtifactPath returns the result path for tier. Final occupies the bare path.
func (c DayContext) ArtifactPath(t Tier) string {
	name := c.Day.ISO() + "." + c.Station.Upper() + t.Suffix()
	return filepath.Join(c.ArtifactDir(), name)
}

// PrimaryPath is the Final-tier artifact path that gates idempotency.
func (c DayContext) PrimaryPath() string { return c.ArtifactPath(TierFinal) }

// ObservationName is the RINEX 2 short name ssssdddf.yyo for the day.
func ObservationName(s Station, d Day) string {
	return fmt.Sprintf("%s%s0.%so", s.Lower(), d.DOY(), d.YY())
}

// ObservationPath is the day's observation file inside the working directory.
func (c DayContext) ObservationPath() string {
	return filepath.Join(c.WorkDir, ObservationName(c.Station, c.Day))
}

// Describe returns a one-line summary for status messages.
func (c DayContext) Describe() string {
	tiers := make([]string, len(c.Tiers))
	for i, t := range c.Tiers {
		tiers[i] = t.String()
	}
	return fmt.Sprintf("%s %s [%s]", c.Station.Upper(), c.Day.ISO(), strings.Join(tiers, ","))
}
