package tools

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// WindowOptions merges several observation files and keeps only the epochs
// inside [Start, Start+Duration).
type WindowOptions struct {
	Binary   string
	Inputs   []string
	Output   string
	Start    time.Time
	Duration time.Duration
	Options  []string
}

// Validate checks required fields.
func (o WindowOptions) Validate() error {
	switch {
	case strings.TrimSpace(o.Binary) == "":
		return eris.New("tools: window: binary is required")
	case len(o.Inputs) == 0:
		return eris.New("tools: window: no inputs")
	case strings.TrimSpace(o.Output) == "":
		return eris.New("tools: window: output is required")
	case o.Duration <= 0:
		return eris.Errorf("tools: window: invalid duration %s", o.Duration)
	case o.Start.IsZero():
		return eris.New("tools: window: start epoch is required")
	}
	return nil
}

// Args serializes the options.
func (o WindowOptions) Args() []string {
	args := []string{"-finp"}
	args = append(args, o.Inputs...)
	args = append(args,
		"-fout", o.Output,
		"-epo_beg", o.Start.UTC().Format("2006-01-02_150405"),
		"-d", strconv.FormatInt(int64(o.Duration/time.Second), 10),
		"-f",
	)
	return append(args, o.Options...)
}

// Invocation validates and builds the command.
func (o WindowOptions) Invocation(dir string, out, errw io.Writer) (Invocation, error) {
	if err := o.Validate(); err != nil {
		return Invocation{}, err
	}
	return Invocation{Tool: "window", Binary: o.Binary, Args: o.Args(), Dir: dir, Stdout: out, Stderr: errw}, nil
}
