package manifest

// A manifest is the batch hand-off from target discovery: a protobuf message
//
//	message TargetManifest { repeated TargetEntry targets = 1; }
//	message TargetEntry {
//	  uint32 kind = 1;        // 1 = directory, 2 = file
//	  string destination = 2;
//	  string source = 3;
//	}
//
// optionally wrapped in a single zstd frame.

import (
	"TargetFetcher/internal/logging"
	"TargetFetcher/pkg/target"
	"TargetFetcher/pkg/utils"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"

	"github.com/klauspost/compress/zstd"
	"google.golang.org/protobuf/encoding/protowire"
)

const (
	fieldTargets     protowire.Number = 1
	fieldKind        protowire.Number = 1
	fieldDestination protowire.Number = 2
	fieldSource      protowire.Number = 3

	kindDirectory uint64 = 1
	kindFile      uint64 = 2
)

var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// maxManifestSize caps the decompressed size of a zstd manifest.
var maxManifestSize uint64 = 64 << 20

var ErrMalformed = errors.New("manifest: malformed")

func Encode(targets []target.Target) []byte {
	var out []byte
	for _, t := range targets {
		var entry []byte
		switch t.Kind() {
		case target.Directory:
			entry = protowire.AppendTag(entry, fieldKind, protowire.VarintType)
			entry = protowire.AppendVarint(entry, kindDirectory)
		case target.File:
			entry = protowire.AppendTag(entry, fieldKind, protowire.VarintType)
			entry = protowire.AppendVarint(entry, kindFile)
		}
		entry = protowire.AppendTag(entry, fieldDestination, protowire.BytesType)
		entry = protowire.AppendString(entry, t.Destination())
		if src, ok := t.Source(); ok {
			entry = protowire.AppendTag(entry, fieldSource, protowire.BytesType)
			entry = protowire.AppendString(entry, src)
		}

		out = protowire.AppendTag(out, fieldTargets, protowire.BytesType)
		out = protowire.AppendBytes(out, entry)
	}
	return out
}

// Decode parses an uncompressed manifest. Unknown fields are skipped.
func Decode(data []byte) ([]target.Target, error) {
	var targets []target.Target
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		if num != fieldTargets || typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
			}
			data = data[n:]
			continue
		}

		entry, n := protowire.ConsumeBytes(data)
		if n < 0 {
			return nil, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		data = data[n:]

		t, err := decodeEntry(entry)
		if err != nil {
			return nil, fmt.Errorf("entry %d: %w", len(targets), err)
		}
		targets = append(targets, t)
	}
	return targets, nil
}

func decodeEntry(b []byte) (target.Target, error) {
	var (
		kind        uint64
		destination string
		source      string
	)
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return target.Target{}, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]

		switch {
		case num == fieldKind && typ == protowire.VarintType:
			kind, n = protowire.ConsumeVarint(b)
		case num == fieldDestination && typ == protowire.BytesType:
			destination, n = protowire.ConsumeString(b)
		case num == fieldSource && typ == protowire.BytesType:
			source, n = protowire.ConsumeString(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return target.Target{}, fmt.Errorf("%w: %w", ErrMalformed, protowire.ParseError(n))
		}
		b = b[n:]
	}

	switch kind {
	case kindDirectory:
		return target.New(target.Directory, destination, source), nil
	case kindFile:
		return target.New(target.File, destination, source), nil
	default:
		return target.Target{}, fmt.Errorf("%w: unknown kind %d", ErrMalformed, kind)
	}
}

func Load(path string) ([]target.Target, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read manifest: %w", err)
	}

	if bytes.HasPrefix(data, zstdMagic) {
		dec, err := zstd.NewReader(nil, zstd.WithDecoderMaxMemory(maxManifestSize))
		if err != nil {
			return nil, fmt.Errorf("create zstd reader: %w", err)
		}
		defer dec.Close()

		data, err = dec.DecodeAll(data, nil)
		if err != nil {
			return nil, fmt.Errorf("decompress manifest: %w", err)
		}
	}

	targets, err := Decode(data)
	if err != nil {
		return nil, err
	}
	logging.GlobalLogger.Info("Loaded manifest " + path + " with " + strconv.Itoa(len(targets)) + " targets")
	return targets, nil
}

// Save writes the manifest next to path under a temporary name and renames
// it into place.
func Save(path string, targets []target.Target, compress bool) error {
	data := Encode(targets)
	if compress {
		enc, err := zstd.NewWriter(nil)
		if err != nil {
			return fmt.Errorf("create zstd writer: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		utils.CloseStreamSafe(enc)
	}

	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, ".manifest-*")
	if err != nil {
		return fmt.Errorf("create temp manifest: %w", err)
	}
	tmpPath := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		utils.CloseStreamSafe(tmp)
		os.Remove(tmpPath)
		return fmt.Errorf("write manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("close manifest: %w", err)
	}
	if err := os.Rename(tmpPath, path); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("publish manifest: %w", err)
	}
	return nil
}
