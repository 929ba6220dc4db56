package tools

import (
	"io"
	"strings"

	"github.com/rotisserie/eris"
)

// LookupOptions queries a metadata table for one station and date key. The
// tool prints a JSON object on stdout.
type LookupOptions struct {
	Binary  string
	Source  string
	Station string
	Key     string
}

// Validate checks required fields.
func (o LookupOptions) Validate() error {
	switch {
	case strings.TrimSpace(o.Binary) == "":
		return eris.New("tools: lookup: binary is required")
	case strings.TrimSpace(o.Source) == "":
		return eris.New("tools: lookup: source is required")
	case strings.TrimSpace(o.Station) == "":
		return eris.New("tools: lookup: station is required")
	case strings.TrimSpace(o.Key) == "":
		return eris.New("tools: lookup: date key is required")
	}
	return nil
}

// Args serializes the options positionally.
func (o LookupOptions) Args() []string {
	return []string{o.Source, o.Station, o.Key}
}

// Invocation validates and builds the command.
func (o LookupOptions) Invocation(stdout, stderr io.Writer) (Invocation, error) {
	if err := o.Validate(); err != nil {
		return Invocation{}, err
	}
	return Invocation{Tool: "lookup", Binary: o.Binary, Args: o.Args(), Stdout: stdout, Stderr: stderr}, nil
}

// RetrieveOptions requests orbit products for one tier and date into a local
// cache.
type RetrieveOptions struct {
	Binary    string
	CacheRoot string
	Label     string
	Date      string
	Options   []string
}

// Validate checks required fields.
func (o RetrieveOptions) Validate() error {
	switch {
	case strings.TrimSpace(o.Binary) == "":
		return eris.New("tools: retrieve: binary is required")
	case strings.TrimSpace(o.CacheRoot) == "":
		return eris.New("tools: retrieve: cache root is required")
	case strings.TrimSpace(o.Label) == "":
		return eris.New("tools: retrieve: product label is required")
	case strings.TrimSpace(o.Date) == "":
		return eris.New("tools: retrieve: date is required")
	}
	return nil
}

// Args serializes the options positionally, followed by extra options.
func (o RetrieveOptions) Args() []string {
	args := []string{o.CacheRoot, o.Label, o.Date}
	return append(args, o.Options...)
}

// Invocation validates and builds the command.
func (o RetrieveOptions) Invocation(out, errw io.Writer) (Invocation, error) {
	if err := o.Validate(); err != nil {
		return Invocation{}, err
	}
	return Invocation{Tool: "retrieve", Binary: o.Binary, Args: o.Args(), Stdout: out, Stderr: errw}, nil
}
