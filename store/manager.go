package store

import (
	"context"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/imagingkit/acqstream/core"
	"github.com/imagingkit/acqstream/layout"
	"github.com/imagingkit/acqstream/sequence"
)

// RunManifestName is the manifest written into a finalized run directory.
const RunManifestName = "run.json"

// RunManifest describes a finalized run: which plan produced it and which
// group directories it contains.
type RunManifest struct {
	PlanID     string          `json:"plan_id"`
	AxisLabels []string        `json:"axis_labels"`
	CreatedAt  time.Time       `json:"created_at"`
	Groups     []ManifestGroup `json:"groups"`
}

// ManifestGroup is one group entry of a run manifest.
type ManifestGroup struct {
	ID    string `json:"id"`
	Dir   string `json:"dir"`
	Shape []int  `json:"shape"`
}

// Handle is the manager's view of one group's backing store.
type Handle struct {
	groupID   string
	arr       *Array
	temp      bool
	destroyed atomic.Bool
}

// GroupID returns the group this handle backs.
func (h *Handle) GroupID() string { return h.groupID }

// Array returns the chunked array behind the handle.
func (h *Handle) Array() *Array { return h.arr }

// Dir returns the directory currently backing the group.
func (h *Handle) Dir() string { return h.arr.Dir() }

// ManagerOptions configures a Manager.
type ManagerOptions struct {
	Logger *slog.Logger
}

// Manager owns the backing stores of one acquisition run. Create allocates a
// fresh temporary directory per group; DestroyAll tears everything down and
// is safe to call any number of times, from both normal and emergency paths.
// The zero teardown requirement is scoped ownership: the run that created a
// manager defers its Close, so cleanup happens even when the run aborts.
type Manager struct {
	logger *slog.Logger

	mu      sync.Mutex
	handles map[string]*Handle
	order   []string // creation order, for deterministic teardown and manifests
	closed  bool
}

// NewManager creates an empty Manager.
func NewManager(opts ManagerOptions) *Manager {
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Manager{
		logger:  logger.With("component", "StoreManager"),
		handles: make(map[string]*Handle),
	}
}

// Create allocates a temporary directory and an empty chunked array sized
// exactly to the group spec. Failure is a StoreCreationError: fatal for the
// run, propagated to the caller.
func (m *Manager) Create(spec layout.GroupSpec) (*Handle, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.closed {
		return nil, &core.StoreCreationError{GroupID: spec.ID, Err: core.ErrStoreClosed}
	}
	if _, exists := m.handles[spec.ID]; exists {
		return nil, &core.StoreCreationError{GroupID: spec.ID, Err: fmt.Errorf("group already has a store")}
	}

	dir, err := os.MkdirTemp("", "acqstream-"+sanitizeID(spec.ID)+"-")
	if err != nil {
		return nil, &core.StoreCreationError{GroupID: spec.ID, Err: err}
	}
	arr, err := NewArray(dir, spec.Shape, spec.AxisLabels, spec.PixelType)
	if err != nil {
		os.RemoveAll(dir)
		return nil, &core.StoreCreationError{GroupID: spec.ID, Err: err}
	}

	h := &Handle{groupID: spec.ID, arr: arr, temp: true}
	m.handles[spec.ID] = h
	m.order = append(m.order, spec.ID)

	m.logger.Info("created backing store",
		"group", spec.ID,
		"shape", fmt.Sprint(spec.Shape),
		"dtype", spec.PixelType.String(),
		"capacity", humanize.IBytes(arraySizeBytes(spec)),
		"dir", dir)
	return h, nil
}

// Get returns the handle for a group id.
func (m *Manager) Get(groupID string) (*Handle, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	h, ok := m.handles[groupID]
	return h, ok
}

// Handles returns all handles in creation order.
func (m *Manager) Handles() []*Handle {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]*Handle, 0, len(m.order))
	for _, id := range m.order {
		out = append(out, m.handles[id])
	}
	return out
}

// Destroy tears down one group's store. Temporary backing is removed from
// disk; finalized backing is only closed. Idempotent per handle.
func (m *Manager) Destroy(groupID string) error {
	m.mu.Lock()
	h, ok := m.handles[groupID]
	m.mu.Unlock()
	if !ok {
		return nil
	}
	return m.destroyHandle(h)
}

// DestroyAll tears down every store. Errors are suppressed and logged:
// teardown runs on normal completion, cancellation, and emergency exits,
// and duplicate attempts must never raise.
func (m *Manager) DestroyAll() {
	for _, h := range m.Handles() {
		if err := m.destroyHandle(h); err != nil {
			m.logger.Warn("error during store teardown (suppressed)",
				"group", h.groupID, "error", err)
		}
	}
}

// Close makes Manager usable as a scoped guard: defer mgr.Close() gives
// panic-safe teardown. Equivalent to DestroyAll.
func (m *Manager) Close() error {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.DestroyAll()
	return nil
}

func (m *Manager) destroyHandle(h *Handle) error {
	if !h.destroyed.CompareAndSwap(false, true) {
		return nil
	}
	h.arr.Close()
	if !h.temp {
		// Finalized data is owned by the destination directory now.
		return nil
	}
	if err := os.RemoveAll(h.arr.Dir()); err != nil {
		return fmt.Errorf("failed to remove store directory: %w", err)
	}
	m.logger.Debug("removed backing store", "group", h.groupID)
	return nil
}

// Finalize moves every group's backing store into the persistent target
// directory configured for the run and writes a run manifest. After
// finalize, teardown closes the arrays but leaves the data in place. The
// run directory name is made unique by suffixing an increment when the
// target already exists.
func (m *Manager) Finalize(ctx context.Context, meta sequence.RunMeta, planID string, axisLabels []string) (string, error) {
	if meta.Dir == "" {
		return "", fmt.Errorf("finalize requested without a target directory")
	}
	name := meta.Name
	if name == "" {
		name = "Exp"
	}

	runDir, err := uniqueRunDir(meta.Dir, name)
	if err != nil {
		return "", err
	}
	if err := os.MkdirAll(runDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create run directory %s: %w", runDir, err)
	}

	manifest := RunManifest{
		PlanID:     planID,
		AxisLabels: append([]string(nil), axisLabels...),
		CreatedAt:  time.Now().UTC(),
	}

	var total uint64
	for _, h := range m.Handles() {
		if err := ctx.Err(); err != nil {
			return "", err
		}
		dest := filepath.Join(runDir, sanitizeID(h.groupID))
		if err := moveDir(h.arr.Dir(), dest); err != nil {
			return "", fmt.Errorf("failed to finalize group %s: %w", h.groupID, err)
		}
		h.arr.relocate(dest)
		m.mu.Lock()
		h.temp = false
		m.mu.Unlock()
		total += dirSizeBytes(dest)
		manifest.Groups = append(manifest.Groups, ManifestGroup{
			ID:    h.groupID,
			Dir:   filepath.Base(dest),
			Shape: h.arr.Shape(),
		})
	}

	if err := writeManifest(filepath.Join(runDir, RunManifestName), &manifest); err != nil {
		return "", err
	}
	m.logger.Info("finalized run",
		"plan", planID,
		"dir", runDir,
		"groups", len(manifest.Groups),
		"size", humanize.IBytes(total))
	return runDir, nil
}

// uniqueRunDir picks {dir}/{name}, appending _001, _002, ... while the
// target exists.
func uniqueRunDir(dir, name string) (string, error) {
	candidate := filepath.Join(dir, name)
	for i := 1; ; i++ {
		if _, err := os.Stat(candidate); os.IsNotExist(err) {
			return candidate, nil
		} else if err != nil {
			return "", fmt.Errorf("failed to probe run directory %s: %w", candidate, err)
		}
		if i > 999 {
			return "", fmt.Errorf("could not find a free run directory under %s for %q", dir, name)
		}
		candidate = filepath.Join(dir, fmt.Sprintf("%s_%03d", name, i))
	}
}

// moveDir renames src to dest, falling back to a copy when the rename
// crosses filesystems (temp storage and the save target often do).
func moveDir(src, dest string) error {
	if err := os.Rename(src, dest); err == nil {
		return nil
	}
	if err := copyDir(src, dest); err != nil {
		return err
	}
	return os.RemoveAll(src)
}

func copyDir(src, dest string) error {
	return filepath.WalkDir(src, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(src, path)
		if err != nil {
			return err
		}
		target := filepath.Join(dest, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0o755)
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return err
		}
		return os.WriteFile(target, raw, 0o644)
	})
}

func writeManifest(path string, manifest *RunManifest) error {
	raw, err := marshalManifest(manifest)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, raw, 0o644); err != nil {
		return fmt.Errorf("failed to write run manifest: %w", err)
	}
	return nil
}

// sanitizeID makes a group id safe for use as a path component.
func sanitizeID(id string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			return '_'
		}
		return r
	}, id)
}

func arraySizeBytes(spec layout.GroupSpec) uint64 {
	n := uint64(spec.PixelType.BytesPerSample())
	for _, s := range spec.Shape {
		n *= uint64(s)
	}
	return n
}

func dirSizeBytes(dir string) uint64 {
	var n uint64
	filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil || d.IsDir() {
			return nil
		}
		if info, err := d.Info(); err == nil {
			n += uint64(info.Size())
		}
		return nil
	})
	return n
}
