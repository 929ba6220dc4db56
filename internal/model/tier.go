package model

import (
	"strings"

	"github.com/rotisserie/eris"
)

// Tier is an orbit product precision class. Lower values are more precise
// and arrive later.
type Tier int

const (
	TierFinal Tier = iota
	TierRapid
	TierUltra
)

// AllTiers lists every tier from highest to lowest precision.
var AllTiers = []Tier{TierFinal, TierRapid, TierUltra}

// String returns the lower-case tier name.
func (t Tier) String() string {
	switch t {
	case TierFinal:
		return "final"
	case TierRapid:
		return "rapid"
	case TierUltra:
		return "ultra"
	default:
		return "unknown"
	}
}

// Label is the product label understood by the engine and the orbit archive.
func (t Tier) Label() string {
	switch t {
	case TierFinal:
		return "Final"
	case TierRapid:
		return "Ql"
	case TierUltra:
		return "Ultra"
	default:
		return ""
	}
}

// Suffix is appended to the result path of a non-final artifact.
func (t Tier) Suffix() string {
	switch t {
	case TierRapid:
		return ".ql"
	case TierUltra:
		return ".ultra"
	default:
		return ""
	}
}

// TierMode restricts which tiers a run may use.
type TierMode string

const (
	TierModeAll   TierMode = "all"
	TierModeFinal TierMode = "final"
	TierModeRapid TierMode = "rapid"
	TierModeUltra TierMode = "ultra"
)

// ParseTierMode converts a flag value into a TierMode.
func ParseTierMode(s string) (TierMode, error) {
	switch m := TierMode(strings.ToLower(strings.TrimSpace(s))); m {
	case "":
		return TierModeAll, nil
	case TierModeAll, TierModeFinal, TierModeRapid, TierModeUltra:
		return m, nil
	default:
		return "", eris.Errorf("model: unknown tier mode %q (valid: all, final, rapid, ultra)", s)
	}
}

// TiersFor returns the ordered tiers to attempt. Real-time days always use
// Ultra alone.
func TiersFor(mode TierMode, realTime bool) []Tier {
	if realTime {
		return []Tier{TierUltra}
	}
	switch mode {
	case TierModeFinal:
		return []Tier{TierFinal}
	case TierModeRapid:
		return []Tier{TierRapid}
	case TierModeUltra:
		return []Tier{TierUltra}
	default:
		out := make([]Tier, len(AllTiers))
		copy(out, AllTiers)
		return out
	}
}
