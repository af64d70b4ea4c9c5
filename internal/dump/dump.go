// Package dump reads and writes compressed binary snapshots of linked
// syntax sets and theme sets, for fast startup without YAML/plist
// parsing. The format is msgpack inside zlib behind a small versioned
// header; regexes are stored as sources and compile lazily after load.
package dump

import (
	"bytes"
	"compress/zlib"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/vmihailenco/msgpack/v5"
)

// SchemaVersion is bumped whenever the payload layout changes; readers
// refuse anything else.
const SchemaVersion uint16 = 1

var magic = [4]byte{'G', 'L', 'N', 'T'}

var (
	// ErrBadMagic means the input is not a glint dump at all.
	ErrBadMagic = errors.New("dump: bad magic")
	// ErrVersionMismatch means the dump was written by an incompatible
	// schema version.
	ErrVersionMismatch = errors.New("dump: schema version mismatch")
)

// Write serializes v to w.
func Write(w io.Writer, v interface{}) error {
	var header [6]byte
	copy(header[:4], magic[:])
	binary.BigEndian.PutUint16(header[4:], SchemaVersion)
	if _, err := w.Write(header[:]); err != nil {
		return err
	}

	zw := zlib.NewWriter(w)
	enc := msgpack.NewEncoder(zw)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return zw.Close()
}

// Read deserializes a dump from r into v, refusing version mismatches.
func Read(r io.Reader, v interface{}) error {
	var header [6]byte
	if _, err := io.ReadFull(r, header[:]); err != nil {
		return err
	}
	if !bytes.Equal(header[:4], magic[:]) {
		return ErrBadMagic
	}
	if version := binary.BigEndian.Uint16(header[4:]); version != SchemaVersion {
		return fmt.Errorf("%w: dump has %d, reader has %d", ErrVersionMismatch, version, SchemaVersion)
	}

	zr, err := zlib.NewReader(r)
	if err != nil {
		return err
	}
	defer func() { _ = zr.Close() }()
	return msgpack.NewDecoder(zr).Decode(v)
}

// Bytes serializes v to a byte slice.
func Bytes(v interface{}) ([]byte, error) {
	var buf bytes.Buffer
	if err := Write(&buf, v); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes deserializes a dump produced by Bytes.
func FromBytes(data []byte, v interface{}) error {
	return Read(bytes.NewReader(data), v)
}

// WriteFile atomically writes a dump file: the payload lands in a temp
// file that is renamed over the target.
func WriteFile(path string, v interface{}) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.CreateTemp(dir, "tmp-*")
	if err != nil {
		return err
	}
	defer func() { _ = os.Remove(f.Name()) }()

	if err := Write(f, v); err != nil {
		_ = f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}
	return os.Rename(f.Name(), path)
}

// ReadFile loads a dump file written by WriteFile.
func ReadFile(path string, v interface{}) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()
	return Read(f, v)
}
