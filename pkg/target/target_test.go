package target

import (
	"errors"
	"testing"
)

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		target  Target
		wantErr error
	}{
		{"directory", NewDirectory("/srv/data"), nil},
		{"file with source", NewFile("/srv/data/a.bin", "http://example.com/a.bin"), nil},
		{"file without source", NewFile("/srv/data/a.bin", ""), ErrMissingSource},
		{"empty destination", NewDirectory(""), ErrEmptyDestination},
		{"zero value", Target{}, ErrUnknownKind},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.target.Validate()
			if tt.wantErr == nil {
				if err != nil {
					t.Fatalf("unexpected error: %v", err)
				}
				return
			}
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestSourcePresence(t *testing.T) {
	if _, ok := NewDirectory("d").Source(); ok {
		t.Error("directory should have no source")
	}
	src, ok := NewFile("f", "http://x/f").Source()
	if !ok || src != "http://x/f" {
		t.Errorf("expected source http://x/f, got %q (%v)", src, ok)
	}
	if _, ok := New(File, "f", "").Source(); ok {
		t.Error("empty source should be absent")
	}
}

func TestParseKind(t *testing.T) {
	for in, want := range map[string]Kind{"directory": Directory, "DIR": Directory, "file": File} {
		got, err := ParseKind(in)
		if err != nil || got != want {
			t.Errorf("ParseKind(%q) = %v, %v; want %v", in, got, err, want)
		}
	}
	if _, err := ParseKind("symlink"); !errors.Is(err, ErrUnknownKind) {
		t.Errorf("expected ErrUnknownKind, got %v", err)
	}
}

func TestString(t *testing.T) {
	if got := NewDirectory("/a").String(); got != "dir /a" {
		t.Errorf("unexpected directory string %q", got)
	}
	if got := NewFile("/a/b", "http://h/b").String(); got != "file /a/b <- http://h/b" {
		t.Errorf("unexpected file string %q", got)
	}
}
