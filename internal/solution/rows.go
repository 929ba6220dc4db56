// Package solution turns the positioning engine's parameter and covariance
// files into one canonical result artifact per station/day.
package solution

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gnssproc/internal/model"
)

// Label suffixes recording which transform produced a row.
const (
	SuffixCenterOfFigure = ".cof"
	SuffixFiducial       = ".fid"
)

var positionComponents = []string{".X", ".Y", ".Z"}

// IsPositionParam reports whether a parameter-file label is a station
// position component (…State.Pos.X|Y|Z).
func IsPositionParam(label string) bool {
	for _, c := range positionComponents {
		if strings.HasSuffix(label, ".State.Pos"+c) {
			return true
		}
	}
	return false
}

// IsTropParam reports whether a parameter-file label is a troposphere
// parameter.
func IsTropParam(label string) bool {
	return strings.Contains(label, ".Trop.")
}

// IsPositionCov reports whether a covariance-file label is a station
// position component (STA…X|Y|Z).
func IsPositionCov(label string) bool {
	if !strings.Contains(label, "STA") {
		return false
	}
	for _, c := range positionComponents {
		if strings.HasSuffix(label, c) {
			return true
		}
	}
	return false
}

// ReadParamFile parses a time-series parameter file. Rows are
// `epoch nominal value sigma label`; lines with fewer fields and comments
// are ignored.
func ReadParamFile(path string) ([]model.ParamRow, error) {
	return readRows(path, func(f []string) (model.ParamRow, bool) {
		if len(f) < 5 {
			return model.ParamRow{}, false
		}
		return model.ParamRow{Epoch: f[0], Nominal: f[1], Value: f[2], Sigma: f[3], Label: f[4]}, true
	})
}

// ReadCovFile parses the parameter section of a covariance file. Rows are
// `index label value sigma` with an integer index; correlation rows are
// ignored. The nominal column is filled with the zero placeholder.
func ReadCovFile(path string) ([]model.ParamRow, error) {
	return readRows(path, func(f []string) (model.ParamRow, bool) {
		if len(f) != 4 || !isInteger(f[0]) {
			return model.ParamRow{}, false
		}
		return model.ParamRow{Epoch: f[0], Nominal: "0", Value: f[2], Sigma: f[3], Label: f[1]}, true
	})
}

// ReadArtifact parses a canonical artifact written by Format.
func ReadArtifact(path string) ([]model.ParamRow, error) {
	return ReadParamFile(path)
}

func readRows(path string, parse func([]string) (model.ParamRow, bool)) ([]model.ParamRow, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "solution: read %s", path)
	}
	var rows []model.ParamRow
	sc := bufio.NewScanner(bytes.NewReader(data))
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		if row, ok := parse(strings.Fields(line)); ok {
			rows = append(rows, row)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrapf(err, "solution: scan %s", path)
	}
	return rows, nil
}

func isInteger(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// LastPositionRows returns the final three position rows of a parameter
// series in file order.
func LastPositionRows(rows []model.ParamRow) []model.ParamRow {
	var out []model.ParamRow
	for i := len(rows) - 1; i >= 0 && len(out) < 3; i-- {
		if IsPositionParam(rows[i].Label) {
			out = append(out, rows[i])
		}
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// TropRows returns the troposphere rows of the last epoch that has any.
func TropRows(rows []model.ParamRow) []model.ParamRow {
	last := ""
	for _, r := range rows {
		if IsTropParam(r.Label) {
			last = r.Epoch
		}
	}
	if last == "" {
		return nil
	}
	var out []model.ParamRow
	for _, r := range rows {
		if r.Epoch == last && IsTropParam(r.Label) {
			out = append(out, r)
		}
	}
	return out
}

// PositionCovRows returns the position rows of a covariance file with
// suffix appended to every label.
func PositionCovRows(rows []model.ParamRow, suffix string) []model.ParamRow {
	var out []model.ParamRow
	for _, r := range rows {
		if IsPositionCov(r.Label) {
			r.Label += suffix
			out = append(out, r)
		}
	}
	return out
}

// Format renders rows in the canonical fixed-width layout, preceded by a
// comment line naming the applied transforms.
func Format(header string, rows []model.ParamRow) []byte {
	var b bytes.Buffer
	if header != "" {
		fmt.Fprintf(&b, "# %s\n", header)
	}
	for _, r := range rows {
		fmt.Fprintf(&b, "%12s %4s %24s %24s %s\n", r.Epoch, r.Nominal, r.Value, r.Sigma, r.Label)
	}
	return b.Bytes()
}
