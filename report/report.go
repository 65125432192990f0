// Package report captures allocator layouts and writes them as
// self-describing, optionally compressed files.
//
// A report file is a FileHeader, the codec name, then the encoded Snapshot.
// The header records the codec and compression so Read needs no options.
package report

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"time"

	"github.com/hupe1980/compacta"
	"github.com/hupe1980/compacta/codec"
	"github.com/hupe1980/compacta/internal/hash"
)

// Snapshot is the content of a report.
type Snapshot struct {
	CapturedAt time.Time       `json:"captured_at"`
	Label      string          `json:"label,omitempty"`
	Stats      compacta.Stats  `json:"stats"`
	Layout     compacta.Layout `json:"layout"`
}

// Capture snapshots a.
func Capture(a *compacta.Allocator, label string) Snapshot {
	return Snapshot{
		CapturedAt: time.Now().UTC(),
		Label:      label,
		Stats:      a.Stats(),
		Layout:     a.Layout(),
	}
}

// Options configures Write.
type Options struct {
	Codec       codec.Codec // codec.Default if nil
	Compression Compression
}

// Write encodes s to w.
func Write(w io.Writer, s Snapshot, opts Options) error {
	c := opts.Codec
	if c == nil {
		c = codec.Default
	}
	name := c.Name()
	if _, ok := codec.ByName(name); !ok || len(name) > math.MaxUint8 {
		return fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}

	raw, err := c.Marshal(s)
	if err != nil {
		return fmt.Errorf("report: encode with %s: %w", name, err)
	}
	if len(raw) > MaxPayloadSize {
		return fmt.Errorf("report: payload of %d bytes too large", len(raw))
	}

	payload, applied, err := compress(raw, opts.Compression)
	if err != nil {
		return fmt.Errorf("report: compress with %s: %w", opts.Compression, err)
	}

	h := FileHeader{
		Magic:            MagicNumber,
		Version:          Version,
		Compression:      uint8(applied),
		CodecLen:         uint8(len(name)),
		UncompressedSize: uint32(len(raw)),
		PayloadSize:      uint32(len(payload)),
		Checksum:         hash.CRC32C(raw),
	}

	bw := bufio.NewWriter(w)
	if err := binary.Write(bw, binary.LittleEndian, &h); err != nil {
		return err
	}
	if _, err := bw.WriteString(name); err != nil {
		return err
	}
	if _, err := bw.Write(payload); err != nil {
		return err
	}
	return bw.Flush()
}

// Read decodes a report written by Write.
func Read(r io.Reader) (Snapshot, error) {
	var h FileHeader
	if err := binary.Read(r, binary.LittleEndian, &h); err != nil {
		return Snapshot{}, fmt.Errorf("report: read header: %w", err)
	}
	if h.Magic != MagicNumber {
		return Snapshot{}, fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, h.Magic)
	}
	if h.Version != Version {
		return Snapshot{}, fmt.Errorf("%w: got %d", ErrInvalidVersion, h.Version)
	}
	if err := h.validate(); err != nil {
		return Snapshot{}, err
	}

	name := make([]byte, h.CodecLen)
	if _, err := io.ReadFull(r, name); err != nil {
		return Snapshot{}, fmt.Errorf("report: read codec name: %w", err)
	}
	c, ok := codec.ByName(string(name))
	if !ok {
		return Snapshot{}, fmt.Errorf("%w: %q", ErrUnknownCodec, name)
	}

	// The buffer grows with the bytes actually present, not the header claim.
	payload, err := io.ReadAll(io.LimitReader(r, int64(h.PayloadSize)))
	if err != nil {
		return Snapshot{}, fmt.Errorf("report: read payload: %w", err)
	}
	if len(payload) != int(h.PayloadSize) {
		return Snapshot{}, fmt.Errorf("report: read payload: %w", io.ErrUnexpectedEOF)
	}
	raw, err := decompress(payload, Compression(h.Compression), int(h.UncompressedSize))
	if err != nil {
		return Snapshot{}, err
	}
	if sum := hash.CRC32C(raw); sum != h.Checksum {
		return Snapshot{}, fmt.Errorf("%w: got 0x%08x, want 0x%08x", ErrChecksumMismatch, sum, h.Checksum)
	}

	var s Snapshot
	if err := c.Unmarshal(raw, &s); err != nil {
		return Snapshot{}, fmt.Errorf("report: decode with %s: %w", c.Name(), err)
	}
	return s, nil
}

// WriteFile writes s to path atomically: the report is written to a
// temporary file in the same directory and renamed into place.
func WriteFile(path string, s Snapshot, opts Options) error {
	var buf bytes.Buffer
	if err := Write(&buf, s, opts); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), ".report-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(buf.Bytes()); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), path)
}

// ReadFile reads the report at path.
func ReadFile(path string) (Snapshot, error) {
	f, err := os.Open(path)
	if err != nil {
		return Snapshot{}, err
	}
	defer f.Close()
	return Read(bufio.NewReader(f))
}
