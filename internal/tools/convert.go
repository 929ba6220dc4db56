package tools

import (
	"io"
	"strconv"
	"strings"

	"github.com/rotisserie/eris"

	"github.com/sells-group/gnssproc/internal/model"
)

// ConvertOptions describes one raw-to-observation conversion. The converter
// writes the observation file to stdout.
type ConvertOptions struct {
	Binary     string
	Inputs     []string
	Options    []string
	MarkerName string
	Override   model.MetadataOverride
}

// Validate checks the options before serialization.
func (o ConvertOptions) Validate() error {
	if strings.TrimSpace(o.Binary) == "" {
		return eris.New("tools: convert: binary is required")
	}
	if len(o.Inputs) == 0 {
		return eris.New("tools: convert: no input files")
	}
	for _, in := range o.Inputs {
		if strings.TrimSpace(in) == "" {
			return eris.New("tools: convert: empty input path")
		}
	}
	return nil
}

// Args serializes the options: configured options, header overrides, then
// the input files.
func (o ConvertOptions) Args() []string {
	args := append([]string{}, o.Options...)
	if o.MarkerName != "" {
		args = append(args, "-O.mo", o.MarkerName)
	}
	if o.Override.Receiver != "" {
		args = append(args, "-O.rt", o.Override.Receiver)
	}
	if o.Override.Antenna != "" {
		args = append(args, "-O.at", o.Override.Antenna)
	}
	if p := o.Override.ApproxPosition; p != nil && !p.Empty() {
		args = append(args, "-O.px", formatCoord(p.X()), formatCoord(p.Y()), formatCoord(p.Z()))
	}
	return append(args, o.Inputs...)
}

// Invocation validates and builds the command. stdout receives the
// observation file, stderr the converter's diagnostics.
func (o ConvertOptions) Invocation(dir string, stdout, stderr io.Writer) (Invocation, error) {
	if err := o.Validate(); err != nil {
		return Invocation{}, err
	}
	return Invocation{Tool: "convert", Binary: o.Binary, Args: o.Args(), Dir: dir, Stdout: stdout, Stderr: stderr}, nil
}

func formatCoord(v float64) string {
	return strconv.FormatFloat(v, 'f', 4, 64)
}
