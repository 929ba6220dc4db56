package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDay_DerivedFields(t *testing.T) {
	d, err := ParseDay("2024-01-15")
	require.NoError(t, err)

	assert.Equal(t, 2024, d.Year())
	assert.Equal(t, "24", d.YY())
	assert.Equal(t, "01", d.Month())
	assert.Equal(t, "15", d.DayOfMonth())
	assert.Equal(t, "015", d.DOY())
	assert.Equal(t, "2024-015", d.YearDOY())
	assert.Equal(t, "2024-01-15", d.ISO())
}

func TestDay_AddDaysCrossesYear(t *testing.T) {
	d, err := ParseDay("2024-01-01")
	require.NoError(t, err)

	prev := d.AddDays(-1)
	assert.Equal(t, "2023-12-31", prev.ISO())
	assert.Equal(t, "365", prev.DOY())
	assert.True(t, prev.Before(d))
}

func TestParseDay_Invalid(t *testing.T) {
	_, err := ParseDay("2024/01/15")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse day")
}

func TestTiersFor(t *testing.T) {
	tests := []struct {
		name     string
		mode     TierMode
		realTime bool
		want     []Tier
	}{
		{name: "all", mode: TierModeAll, want: []Tier{TierFinal, TierRapid, TierUltra}},
		{name: "final only", mode: TierModeFinal, want: []Tier{TierFinal}},
		{name: "rapid only", mode: TierModeRapid, want: []Tier{TierRapid}},
		{name: "ultra only", mode: TierModeUltra, want: []Tier{TierUltra}},
		{name: "real-time overrides mode", mode: TierModeFinal, realTime: true, want: []Tier{TierUltra}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, TiersFor(tt.mode, tt.realTime))
		})
	}
}

func TestTiersFor_DoesNotAliasAllTiers(t *testing.T) {
	tiers := TiersFor(TierModeAll, false)
	tiers[0] = TierUltra
	assert.Equal(t, TierFinal, AllTiers[0])
}

func TestParseTierMode(t *testing.T) {
	m, err := ParseTierMode("Rapid")
	require.NoError(t, err)
	assert.Equal(t, TierModeRapid, m)

	m, err = ParseTierMode("")
	require.NoError(t, err)
	assert.Equal(t, TierModeAll, m)

	_, err = ParseTierMode("precise")
	require.Error(t, err)
}

func TestTier_LabelAndSuffix(t *testing.T) {
	assert.Equal(t, "Final", TierFinal.Label())
	assert.Equal(t, "", TierFinal.Suffix())
	assert.Equal(t, "Ql", TierRapid.Label())
	assert.Equal(t, ".ql", TierRapid.Suffix())
	assert.Equal(t, ".ultra", TierUltra.Suffix())
}

func TestMetadataOverride_MergeKeepsEarlierWhenEmpty(t *testing.T) {
	base := MetadataOverride{Receiver: "TRIMBLE NETR9", Antenna: "TRM59800.00"}
	merged := base.Merge(MetadataOverride{Receiver: "  ", Antenna: "LEIAR25"})

	assert.Equal(t, "TRIMBLE NETR9", merged.Receiver)
	assert.Equal(t, "LEIAR25", merged.Antenna)
	assert.Nil(t, merged.ApproxPosition)

	withPos := merged.Merge(MetadataOverride{ApproxPosition: NewApproxPosition(1, 2, 3)})
	require.NotNil(t, withPos.ApproxPosition)
	assert.Equal(t, []float64{1, 2, 3}, withPos.ApproxPosition.FlatCoords())
	assert.Equal(t, "LEIAR25", withPos.Antenna)
}

func TestDayContext_Paths(t *testing.T) {
	d, err := ParseDay("2024-01-15")
	require.NoError(t, err)
	dc := DayContext{Station: NewStation("abcd"), Day: d, ResultRoot: "/results", WorkDir: "/work/day"}

	assert.Equal(t, "/results/ABCD/2024/2024-01-15.ABCD", dc.PrimaryPath())
	assert.Equal(t, "/results/ABCD/2024/2024-01-15.ABCD.ql", dc.ArtifactPath(TierRapid))
	assert.Equal(t, "/work/day/abcd0150.24o", dc.ObservationPath())
}

func TestTransforms_Label(t *testing.T) {
	assert.Equal(t, "no transforms", Transforms{}.Label())
	assert.False(t, Transforms{}.Active())
	assert.Equal(t, "applied center-of-figure correction", Transforms{CenterOfFigure: true}.Label())
	assert.True(t, Transforms{NonFiducial: true}.Active())
}

func TestExpand(t *testing.T) {
	d, err := ParseDay("2024-02-09")
	require.NoError(t, err)
	s := NewStation("abcd")

	got := Expand("/raw/{station}/{yyyy}/{doy}/{STATION}{yy}{mm}{dd}*.T02 {date} {cache}/x {unknown}", s, d, "/orbits")
	assert.Equal(t, "/raw/abcd/2024/040/ABCD240209*.T02 2024-02-09 /orbits/x {unknown}", got)
}
