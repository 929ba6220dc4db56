package model

import (
	"strings"
	"time"
)

// Transforms records which post-solution corrections an attempt applies.
type Transforms struct {
	CenterOfFigure bool `json:"center_of_figure"`
	NonFiducial    bool `json:"non_fiducial"`
}

// Active reports whether covariance-based extraction is required.
func (t Transforms) Active() bool { return t.CenterOfFigure || t.NonFiducial }

// Label describes the applied transforms for humans and the ledger.
func (t Transforms) Label() string {
	var parts []string
	if t.CenterOfFigure {
		parts = append(parts, "applied center-of-figure correction")
	}
	if t.NonFiducial {
		parts = append(parts, "applied non-fiducial-to-fiducial transform")
	}
	if len(parts) == 0 {
		return "no transforms"
	}
	return strings.Join(parts, "; ")
}

// ParamRow is one canonical result row. Numeric fields keep the engine's
// textual representation so values survive extraction unchanged.
type ParamRow struct {
	Epoch   string `json:"epoch"`
	Nominal string `json:"nominal"`
	Value   string `json:"value"`
	Sigma   string `json:"sigma"`
	Label   string `json:"label"`
}

// ResultArtifact is the normalized output for one station/day.
type ResultArtifact struct {
	Path       string     `json:"path"`
	Tier       Tier       `json:"tier"`
	Transforms Transforms `json:"transforms"`
	Rows       []ParamRow `json:"rows"`
}

// DayStatus is the terminal state of a station/day.
type DayStatus string

const (
	DayStatusSuccess     DayStatus = "success"
	DayStatusComputed    DayStatus = "computed"
	DayStatusNoRaw       DayStatus = "no_raw"
	DayStatusUnavailable DayStatus = "unavailable"
	DayStatusErrored     DayStatus = "errored"
)

// DayReport summarizes how a station/day ended.
type DayReport struct {
	Station  Station         `json:"station"`
	Day      Day             `json:"-"`
	Status   DayStatus       `json:"status"`
	Tier     *Tier           `json:"tier,omitempty"`
	Artifact *ResultArtifact `json:"artifact,omitempty"`
	Reason   string          `json:"reason,omitempty"`
	Started  time.Time       `json:"started"`
	Finished time.Time       `json:"finished"`
}
