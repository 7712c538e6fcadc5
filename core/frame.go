package core

import (
	"fmt"
)

// PixelType identifies the sample type of a frame's pixel buffer.
type PixelType uint8

const (
	PixelUnknown PixelType = iota
	PixelUint8
	PixelUint16
)

// PixelTypeForBitDepth maps a camera bit depth to the narrowest PixelType
// that can hold it. Cameras reporting 9-16 bits all deliver 16-bit samples.
func PixelTypeForBitDepth(bits int) PixelType {
	if bits <= 0 {
		return PixelUnknown
	}
	if bits <= 8 {
		return PixelUint8
	}
	return PixelUint16
}

// BytesPerSample returns the storage width of one sample.
func (p PixelType) BytesPerSample() int {
	switch p {
	case PixelUint8:
		return 1
	case PixelUint16:
		return 2
	default:
		return 0
	}
}

func (p PixelType) String() string {
	switch p {
	case PixelUint8:
		return "uint8"
	case PixelUint16:
		return "uint16"
	default:
		return "unknown"
	}
}

// ParsePixelType is the inverse of String. It is used when reopening a
// group directory from its metadata header.
func ParsePixelType(s string) (PixelType, error) {
	switch s {
	case "uint8":
		return PixelUint8, nil
	case "uint16":
		return PixelUint16, nil
	default:
		return PixelUnknown, fmt.Errorf("unknown pixel type %q", s)
	}
}

// Frame is one raw image delivered by the acquisition loop. It is transient:
// the stream writer consumes it and the offload queue clones it, but nothing
// mutates the pixel buffer.
type Frame struct {
	Pix       []byte
	Width     int
	Height    int
	PixelType PixelType
}

// Validate checks that the pixel buffer length matches the declared geometry.
func (f *Frame) Validate() error {
	if f.Width <= 0 || f.Height <= 0 {
		return fmt.Errorf("invalid frame geometry %dx%d", f.Width, f.Height)
	}
	bps := f.PixelType.BytesPerSample()
	if bps == 0 {
		return fmt.Errorf("frame has unknown pixel type")
	}
	if want := f.Width * f.Height * bps; len(f.Pix) != want {
		return fmt.Errorf("frame buffer is %d bytes, want %d for %dx%d %s",
			len(f.Pix), want, f.Width, f.Height, f.PixelType)
	}
	return nil
}

// Clone returns a deep copy of the frame. The offload queue clones frames so
// its consumer never shares a buffer with the write path.
func (f *Frame) Clone() *Frame {
	pix := make([]byte, len(f.Pix))
	copy(pix, f.Pix)
	return &Frame{Pix: pix, Width: f.Width, Height: f.Height, PixelType: f.PixelType}
}
