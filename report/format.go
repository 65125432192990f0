package report

import (
	"errors"
	"fmt"
)

const (
	// MagicNumber identifies layout report files (ASCII: "CMPL").
	MagicNumber = 0x434D504C
	// Version is the current file format version.
	Version = 1
	// MaxPayloadSize bounds the encoded snapshot, before and after
	// compression. Headers claiming more are rejected before any buffer
	// is sized from them.
	MaxPayloadSize = 256 << 20

	// lz4 cannot expand a block by more than this factor.
	maxLZ4Ratio = 255
)

var (
	ErrInvalidMagic     = errors.New("report: invalid magic number")
	ErrInvalidVersion   = errors.New("report: unsupported version")
	ErrUnknownCodec     = errors.New("report: unknown codec")
	ErrChecksumMismatch = errors.New("report: checksum mismatch")
	ErrCorruptHeader    = errors.New("report: corrupt header")
)

// FileHeader is the fixed 24-byte header at the start of every report.
// It is followed by CodecLen bytes of codec name and PayloadSize bytes of
// payload.
type FileHeader struct {
	Magic            uint32 // 0x434D504C ("CMPL")
	Version          uint32
	Compression      uint8
	CodecLen         uint8
	Padding          [2]byte
	UncompressedSize uint32
	PayloadSize      uint32
	Checksum         uint32 // CRC32C of the uncompressed payload
}

func (h *FileHeader) validate() error {
	if h.PayloadSize > MaxPayloadSize || h.UncompressedSize > MaxPayloadSize {
		return fmt.Errorf("%w: payload %d, uncompressed %d exceeds %d",
			ErrCorruptHeader, h.PayloadSize, h.UncompressedSize, MaxPayloadSize)
	}

	switch c := Compression(h.Compression); c {
	case CompressionNone:
		if h.PayloadSize != h.UncompressedSize {
			return fmt.Errorf("%w: uncompressed payload %d != %d", ErrCorruptHeader, h.PayloadSize, h.UncompressedSize)
		}
	case CompressionLZ4:
		if uint64(h.UncompressedSize) > uint64(h.PayloadSize)*maxLZ4Ratio {
			return fmt.Errorf("%w: lz4 payload %d cannot expand to %d", ErrCorruptHeader, h.PayloadSize, h.UncompressedSize)
		}
	case CompressionZSTD:
	default:
		return fmt.Errorf("%w: %d", ErrUnknownCompression, uint8(c))
	}
	return nil
}
