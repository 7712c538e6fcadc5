package core

import (
	"encoding/binary"
	"fmt"
)

const (
	// ChunkMagic marks a chunk file ("ACQC" little-endian).
	ChunkMagic uint32 = 0x43514341

	// FormatVersion is the current on-disk chunk format version.
	FormatVersion uint8 = 1
)

// ChunkHeader is the fixed-size header at the start of every chunk file.
// The checksum covers the pixel payload that follows the header.
type ChunkHeader struct {
	Magic     uint32
	Version   uint8
	PixelType uint8
	_         uint16 // padding, reserved
	Width     uint32
	Height    uint32
	Checksum  uint32
}

// ChunkHeaderSize is the encoded size of a ChunkHeader.
var ChunkHeaderSize = binary.Size(ChunkHeader{})

// NewChunkHeader builds a header for a frame payload with the given checksum.
func NewChunkHeader(f *Frame, checksum uint32) ChunkHeader {
	return ChunkHeader{
		Magic:     ChunkMagic,
		Version:   FormatVersion,
		PixelType: uint8(f.PixelType),
		Width:     uint32(f.Width),
		Height:    uint32(f.Height),
		Checksum:  checksum,
	}
}

// Validate checks magic and version. Checksum verification is the caller's
// job since it needs the payload.
func (h *ChunkHeader) Validate() error {
	if h.Magic != ChunkMagic {
		return fmt.Errorf("bad chunk magic 0x%08x", h.Magic)
	}
	if h.Version != FormatVersion {
		return fmt.Errorf("unsupported chunk format version %d", h.Version)
	}
	return nil
}
