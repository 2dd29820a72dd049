package ripple

import "fmt"

// Role names the logical use of a physical buffer during a step.
type Role int

const (
	RolePrev Role = iota
	RoleCurr
	RoleNext
)

func (r Role) String() string {
	switch r {
	case RolePrev:
		return "prev"
	case RoleCurr:
		return "curr"
	case RoleNext:
		return "next"
	}
	return fmt.Sprintf("role(%d)", int(r))
}

// Field stores the three height buffers required by the finite difference
// solver. The buffers are allocated once; rotating only renames roles.
type Field struct {
	width, height int
	slots         [3][]float32
	// base is the slot holding curr; next is base+1 and prev is base+2 (mod 3).
	base  int
	steps uint64
}

// NewField allocates a zeroed field with the given resolution.
func NewField(width, height int) (*Field, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidResolution, width, height)
	}
	f := &Field{width: width, height: height}
	for i := range f.slots {
		f.slots[i] = make([]float32, width*height)
	}
	return f, nil
}

// Width returns the number of columns.
func (f *Field) Width() int { return f.width }

// Height returns the number of rows.
func (f *Field) Height() int { return f.height }

// Steps reports how many rotations have happened since allocation or reset.
func (f *Field) Steps() uint64 { return f.steps }

// Slot returns the physical buffer index currently playing role r.
func (f *Field) Slot(r Role) int {
	switch r {
	case RoleCurr:
		return f.base
	case RoleNext:
		return (f.base + 1) % 3
	default:
		return (f.base + 2) % 3
	}
}

func (f *Field) buffer(r Role) []float32 { return f.slots[f.Slot(r)] }

// Current returns a read-only view of the current grid. The view aliases
// the buffer and is only valid until the next rotation.
func (f *Field) Current() View {
	return View{width: f.width, height: f.height, data: f.buffer(RoleCurr)}
}

// Previous returns a read-only view of the previous grid.
func (f *Field) Previous() View {
	return View{width: f.width, height: f.height, data: f.buffer(RolePrev)}
}

// Rotate makes next the current grid and current the previous one.
func (f *Field) Rotate() {
	f.base = (f.base + 1) % 3
	f.steps++
}

// Reset zeroes every buffer and restores the initial role table.
func (f *Field) Reset() {
	for _, s := range f.slots {
		clear(s)
	}
	f.base = 0
	f.steps = 0
}

// Release drops the buffers. The field must not be used afterwards.
func (f *Field) Release() {
	for i := range f.slots {
		f.slots[i] = nil
	}
}

func (f *Field) released() bool { return f.slots[0] == nil }

// View is a read-only window onto one height buffer.
type View struct {
	width, height int
	data          []float32
}

// Width returns the number of columns.
func (v View) Width() int { return v.width }

// Height returns the number of rows.
func (v View) Height() int { return v.height }

// At returns the height at cell (x, y). Coordinates are clamped to the grid.
func (v View) At(x, y int) float32 {
	x = clampInt(x, 0, v.width-1)
	y = clampInt(y, 0, v.height-1)
	return v.data[y*v.width+x]
}

// Sample bilinearly interpolates the grid at domain coordinates (u, v) in
// [0,1]², clamping to the edges.
func (v View) Sample(u, w float64) float32 {
	fx := clamp01(u) * float64(v.width-1)
	fy := clamp01(w) * float64(v.height-1)
	x0, y0 := int(fx), int(fy)
	x1 := minInt(x0+1, v.width-1)
	y1 := minInt(y0+1, v.height-1)
	tx := float32(fx - float64(x0))
	ty := float32(fy - float64(y0))
	row0 := y0 * v.width
	row1 := y1 * v.width
	a := v.data[row0+x0] + (v.data[row0+x1]-v.data[row0+x0])*tx
	b := v.data[row1+x0] + (v.data[row1+x1]-v.data[row1+x0])*tx
	return a + (b-a)*ty
}

// CopyTo copies the grid into dst and returns the number of values copied.
func (v View) CopyTo(dst []float32) int {
	return copy(dst, v.data)
}

// Normalize writes 0.5 + 0.5·clamp(h·gain, -1, 1) for every cell into dst,
// mapping heights to [0,1] for display.
func (v View) Normalize(dst []float32, gain float32) int {
	n := minInt(len(dst), len(v.data))
	for i := 0; i < n; i++ {
		h := v.data[i] * gain
		if h > 1 {
			h = 1
		} else if h < -1 {
			h = -1
		}
		dst[i] = 0.5 + 0.5*h
	}
	return n
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}

func clamp01(v float64) float64 {
	if v < 0 || v != v {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
