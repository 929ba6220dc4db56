package tools

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// EngineOptions configures one positioning engine run. The engine writes its
// parameter and covariance files into the invocation directory.
type EngineOptions struct {
	Binary          string
	ObservationFile string
	OrbitSource     string
	AntexFile       string
	Covariance      bool
	NonFiducial     bool
	Options         []string
}

// Validate checks required fields.
func (o EngineOptions) Validate() error {
	switch {
	case strings.TrimSpace(o.Binary) == "":
		return eris.New("tools: engine: binary is required")
	case strings.TrimSpace(o.ObservationFile) == "":
		return eris.New("tools: engine: observation file is required")
	case strings.TrimSpace(o.OrbitSource) == "":
		return eris.New("tools: engine: orbit source is required")
	}
	return nil
}

// Args serializes the options.
func (o EngineOptions) Args() []string {
	args := []string{"-rnxFile", o.ObservationFile, "-GNSSproducts", o.OrbitSource}
	if o.AntexFile != "" {
		args = append(args, "-antexFile", o.AntexFile)
	}
	if o.Covariance {
		args = append(args, "-gdCov")
	}
	if o.NonFiducial {
		args = append(args, "-nonFiducial")
	}
	return append(args, o.Options...)
}

// Invocation validates and builds the command.
func (o EngineOptions) Invocation(dir string, out, errw io.Writer) (Invocation, error) {
	if err := o.Validate(); err != nil {
		return Invocation{}, err
	}
	return Invocation{Tool: "engine", Binary: o.Binary, Args: o.Args(), Dir: dir, Stdout: out, Stderr: errw}, nil
}
