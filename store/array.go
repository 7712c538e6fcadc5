// Package store owns the backing storage of array groups: one chunked
// on-disk array per group, created in a temporary location before the first
// frame arrives and either discarded at teardown or finalized into a
// persistent directory. Each group directory is self-describing (a metadata
// header plus one chunk file per frame plane) and can be reopened
// independently of the process that wrote it.
package store

import (
	"bytes"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"hash/crc32"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/imagingkit/acqstream/core"
)

const (
	// MetaFileName is the per-group metadata header.
	MetaFileName = "meta.json"

	// chunkExt is the file extension of chunk files.
	chunkExt = ".chk"

	// metaFormatVersion is the current meta.json schema version.
	metaFormatVersion = 1
)

// Meta is the self-describing header written alongside the chunks of one
// group. It records everything needed to reopen the array: shape, sample
// type, axis labels, and the chunk granularity (always one frame plane).
type Meta struct {
	FormatVersion int      `json:"format_version"`
	Shape         []int    `json:"shape"`
	ChunkShape    []int    `json:"chunk_shape"`
	AxisLabels    []string `json:"axis_labels"`
	DType         string   `json:"dtype"`
}

// Array is a chunked n-dimensional array backed by a directory of chunk
// files. The trailing two dimensions are the frame plane; every chunk holds
// exactly one frame. Writes to distinct coordinates are independent files,
// so the hot path takes no array-wide lock.
type Array struct {
	dir    string // guarded by dirMu; relocated by Finalize
	dirMu  sync.RWMutex
	meta   Meta
	pt     core.PixelType
	closed atomic.Bool
}

// NewArray creates an empty chunked array in dir and writes its metadata
// header. The shape must include the frame plane as its last two dimensions.
func NewArray(dir string, shape []int, axisLabels []string, pt core.PixelType) (*Array, error) {
	if len(shape) < 2 {
		return nil, fmt.Errorf("array shape %v has no frame plane", shape)
	}
	if len(axisLabels) != len(shape) {
		return nil, fmt.Errorf("axis labels %v do not match shape %v", axisLabels, shape)
	}
	if pt.BytesPerSample() == 0 {
		return nil, fmt.Errorf("array has unknown pixel type")
	}
	chunk := make([]int, len(shape))
	for i := range chunk {
		chunk[i] = 1
	}
	chunk[len(chunk)-2] = shape[len(shape)-2]
	chunk[len(chunk)-1] = shape[len(shape)-1]

	a := &Array{
		dir: dir,
		pt:  pt,
		meta: Meta{
			FormatVersion: metaFormatVersion,
			Shape:         append([]int(nil), shape...),
			ChunkShape:    chunk,
			AxisLabels:    append([]string(nil), axisLabels...),
			DType:         pt.String(),
		},
	}
	if err := a.writeMeta(); err != nil {
		return nil, err
	}
	return a, nil
}

// Open reopens an existing group directory from its metadata header.
func Open(dir string) (*Array, error) {
	raw, err := os.ReadFile(filepath.Join(dir, MetaFileName))
	if err != nil {
		return nil, fmt.Errorf("failed to read group metadata: %w", err)
	}
	var meta Meta
	if err := json.Unmarshal(raw, &meta); err != nil {
		return nil, fmt.Errorf("failed to parse group metadata: %w", err)
	}
	if meta.FormatVersion != metaFormatVersion {
		return nil, fmt.Errorf("unsupported group format version %d", meta.FormatVersion)
	}
	if len(meta.Shape) < 2 || len(meta.AxisLabels) != len(meta.Shape) {
		return nil, fmt.Errorf("malformed group metadata in %s", dir)
	}
	pt, err := core.ParsePixelType(meta.DType)
	if err != nil {
		return nil, err
	}
	return &Array{dir: dir, meta: meta, pt: pt}, nil
}

// Meta returns a copy of the array's metadata header.
func (a *Array) Meta() Meta {
	m := a.meta
	m.Shape = append([]int(nil), a.meta.Shape...)
	m.ChunkShape = append([]int(nil), a.meta.ChunkShape...)
	m.AxisLabels = append([]string(nil), a.meta.AxisLabels...)
	return m
}

// Shape returns the full array shape, frame plane included.
func (a *Array) Shape() []int {
	return append([]int(nil), a.meta.Shape...)
}

// OuterShape returns the shape without the frame plane; this is the space
// write coordinates live in.
func (a *Array) OuterShape() []int {
	return append([]int(nil), a.meta.Shape[:len(a.meta.Shape)-2]...)
}

// PixelType returns the array's sample type.
func (a *Array) PixelType() core.PixelType {
	return a.pt
}

// Dir returns the directory currently backing the array.
func (a *Array) Dir() string {
	a.dirMu.RLock()
	defer a.dirMu.RUnlock()
	return a.dir
}

// WriteFrame stores one frame at the given outer coordinate. The coordinate
// must fit the outer shape and the frame geometry must match the frame
// plane; violations are reported as errors, never grown into.
func (a *Array) WriteFrame(coord core.Coord, f *core.Frame) error {
	if a.closed.Load() {
		return core.ErrStoreClosed
	}
	if f == nil {
		return fmt.Errorf("nil frame")
	}
	if err := f.Validate(); err != nil {
		return err
	}
	outer := a.meta.Shape[:len(a.meta.Shape)-2]
	if !coord.In(outer) {
		return &core.IndexError{Coord: coord.Clone(), Shape: append([]int(nil), outer...)}
	}
	h := a.meta.Shape[len(a.meta.Shape)-2]
	w := a.meta.Shape[len(a.meta.Shape)-1]
	if f.Height != h || f.Width != w || f.PixelType != a.pt {
		return fmt.Errorf("frame %dx%d %s does not match array plane %dx%d %s",
			f.Width, f.Height, f.PixelType, w, h, a.pt)
	}

	var buf bytes.Buffer
	buf.Grow(core.ChunkHeaderSize + len(f.Pix))
	header := core.NewChunkHeader(f, crc32.ChecksumIEEE(f.Pix))
	if err := binary.Write(&buf, binary.LittleEndian, &header); err != nil {
		return fmt.Errorf("failed to encode chunk header: %w", err)
	}
	buf.Write(f.Pix)

	if err := os.WriteFile(a.chunkPath(coord), buf.Bytes(), 0o644); err != nil {
		return fmt.Errorf("failed to write chunk %s: %w", ChunkName(coord), err)
	}
	return nil
}

// ReadFrame loads the frame at the given outer coordinate, verifying header
// magic and payload checksum. A coordinate that was never written returns
// os.ErrNotExist wrapped.
func (a *Array) ReadFrame(coord core.Coord) (*core.Frame, error) {
	outer := a.meta.Shape[:len(a.meta.Shape)-2]
	if !coord.In(outer) {
		return nil, &core.IndexError{Coord: coord.Clone(), Shape: append([]int(nil), outer...)}
	}
	raw, err := os.ReadFile(a.chunkPath(coord))
	if err != nil {
		return nil, fmt.Errorf("failed to read chunk %s: %w", ChunkName(coord), err)
	}
	return DecodeChunk(raw)
}

// Close marks the array closed. Further writes fail with ErrStoreClosed.
func (a *Array) Close() {
	a.closed.Store(true)
}

// relocate points the array at a new directory after its files were moved.
func (a *Array) relocate(dir string) {
	a.dirMu.Lock()
	a.dir = dir
	a.dirMu.Unlock()
}

func (a *Array) writeMeta() error {
	raw, err := json.MarshalIndent(&a.meta, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode group metadata: %w", err)
	}
	if err := os.WriteFile(filepath.Join(a.Dir(), MetaFileName), raw, 0o644); err != nil {
		return fmt.Errorf("failed to write group metadata: %w", err)
	}
	return nil
}

func (a *Array) chunkPath(coord core.Coord) string {
	return filepath.Join(a.Dir(), ChunkName(coord))
}

// ChunkName returns the file name of the chunk at an outer coordinate:
// dot-joined indices plus the chunk extension, e.g. "0.1.3.chk".
func ChunkName(coord core.Coord) string {
	if len(coord) == 0 {
		return "0" + chunkExt
	}
	parts := make([]string, len(coord))
	for i, v := range coord {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ".") + chunkExt
}

// ParseChunkName is the inverse of ChunkName; used when scanning a group
// directory for its written chunks.
func ParseChunkName(name string) (core.Coord, bool) {
	base, ok := strings.CutSuffix(name, chunkExt)
	if !ok {
		return nil, false
	}
	parts := strings.Split(base, ".")
	coord := make(core.Coord, len(parts))
	for i, p := range parts {
		v, err := strconv.Atoi(p)
		if err != nil || v < 0 {
			return nil, false
		}
		coord[i] = v
	}
	return coord, true
}

// DecodeChunk parses a chunk file body into a frame, verifying magic,
// version, geometry, and checksum.
func DecodeChunk(raw []byte) (*core.Frame, error) {
	if len(raw) < core.ChunkHeaderSize {
		return nil, fmt.Errorf("chunk is truncated (%d bytes)", len(raw))
	}
	var header core.ChunkHeader
	if err := binary.Read(bytes.NewReader(raw[:core.ChunkHeaderSize]), binary.LittleEndian, &header); err != nil {
		return nil, fmt.Errorf("failed to decode chunk header: %w", err)
	}
	if err := header.Validate(); err != nil {
		return nil, err
	}
	pix := raw[core.ChunkHeaderSize:]
	pt := core.PixelType(header.PixelType)
	if want := int(header.Width) * int(header.Height) * pt.BytesPerSample(); len(pix) != want {
		return nil, fmt.Errorf("chunk payload is %d bytes, want %d", len(pix), want)
	}
	if sum := crc32.ChecksumIEEE(pix); sum != header.Checksum {
		return nil, fmt.Errorf("chunk checksum mismatch: got 0x%08x, want 0x%08x", sum, header.Checksum)
	}
	return &core.Frame{
		Pix:       pix,
		Width:     int(header.Width),
		Height:    int(header.Height),
		PixelType: pt,
	}, nil
}
