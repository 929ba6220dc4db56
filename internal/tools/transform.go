package tools

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// FrameCorrectOptions applies the center-of-mass to center-of-figure
// correction to a covariance file in place.
type FrameCorrectOptions struct {
	Binary  string
	CovFile string
	Options []string
}

// Validate checks required fields.
func (o FrameCorrectOptions) Validate() error {
	if strings.TrimSpace(o.Binary) == "" {
		return eris.New("tools: frame correct: binary is required")
	}
	if strings.TrimSpace(o.CovFile) == "" {
		return eris.New("tools: frame correct: covariance file is required")
	}
	return nil
}

// Args serializes the options. Input and output are the same file.
func (o FrameCorrectOptions) Args() []string {
	args := append([]string{}, o.Options...)
	return append(args, "-i", o.CovFile, "-o", o.CovFile)
}

// Invocation validates and builds the command.
func (o FrameCorrectOptions) Invocation(dir string, out, errw io.Writer) (Invocation, error) {
	if err := o.Validate(); err != nil {
		return Invocation{}, err
	}
	return Invocation{Tool: "frame-correct", Binary: o.Binary, Args: o.Args(), Dir: dir, Stdout: out, Stderr: errw}, nil
}

// HelmertOptions applies a seven-parameter Helmert transform read from a
// date-matched transformation file.
type HelmertOptions struct {
	Binary  string
	Input   string
	XFile   string
	Output  string
	Options []string
}

// Validate checks required fields and rejects in-place transforms so the
// pre-transform copy survives.
func (o HelmertOptions) Validate() error {
	switch {
	case strings.TrimSpace(o.Binary) == "":
		return eris.New("tools: helmert: binary is required")
	case strings.TrimSpace(o.Input) == "":
		return eris.New("tools: helmert: input is required")
	case strings.TrimSpace(o.XFile) == "":
		return eris.New("tools: helmert: transformation file is required")
	case strings.TrimSpace(o.Output) == "":
		return eris.New("tools: helmert: output is required")
	case o.Input == o.Output:
		return eris.New("tools: helmert: output must differ from input")
	}
	return nil
}

// Args serializes the options.
func (o HelmertOptions) Args() []string {
	args := append([]string{}, o.Options...)
	return append(args, "-i", o.Input, "-x", o.XFile, "-o", o.Output)
}

// Invocation validates and builds the command.
func (o HelmertOptions) Invocation(dir string, out, errw io.Writer) (Invocation, error) {
	if err := o.Validate(); err != nil {
		return Invocation{}, err
	}
	return Invocation{Tool: "helmert", Binary: o.Binary, Args: o.Args(), Dir: dir, Stdout: out, Stderr: errw}, nil
}
