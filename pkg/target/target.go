package target

import (
	"errors"
	"fmt"
	"strings"
)

type Kind int

const (
	Directory Kind = iota + 1
	File
)

var (
	ErrMissingSource    = errors.New("target: no URL found")
	ErrEmptyDestination = errors.New("target: empty destination")
	ErrUnknownKind      = errors.New("target: unknown kind")
)

func (k Kind) String() string {
	switch k {
	case Directory:
		return "directory"
	case File:
		return "file"
	default:
		return fmt.Sprintf("kind(%d)", int(k))
	}
}

func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "directory", "dir":
		return Directory, nil
	case "file":
		return File, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownKind, s)
	}
}

// Target describes one filesystem artifact that must exist. Fields are
// unexported so a Target cannot change after construction.
type Target struct {
	kind        Kind
	destination string
	source      string
	hasSource   bool
}

func NewDirectory(destination string) Target {
	return Target{kind: Directory, destination: destination}
}

func NewFile(destination, source string) Target {
	return Target{kind: File, destination: destination, source: source, hasSource: source != ""}
}

// New builds a target from loosely typed input (manifest entries, API
// requests). An empty source is treated as absent.
func New(kind Kind, destination, source string) Target {
	if kind == File {
		return NewFile(destination, source)
	}
	t := Target{kind: kind, destination: destination}
	if source != "" {
		t.source, t.hasSource = source, true
	}
	return t
}

func (t Target) Kind() Kind          { return t.kind }
func (t Target) Destination() string { return t.destination }

// Source returns the URL and whether one is present.
func (t Target) Source() (string, bool) { return t.source, t.hasSource }

// Validate is run by producers before dispatch.
func (t Target) Validate() error {
	if t.kind != Directory && t.kind != File {
		return fmt.Errorf("%w: %s", ErrUnknownKind, t.kind)
	}
	if t.destination == "" {
		return ErrEmptyDestination
	}
	if t.kind == File && !t.hasSource {
		return fmt.Errorf("%w for %s", ErrMissingSource, t.destination)
	}
	return nil
}

func (t Target) String() string {
	if t.kind == File {
		if t.hasSource {
			return "file " + t.destination + " <- " + t.source
		}
		return "file " + t.destination
	}
	return "dir " + t.destination
}
