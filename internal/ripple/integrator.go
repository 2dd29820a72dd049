package ripple

import (
	"errors"
	"math"
)

// ErrReleased is returned when stepping a field whose buffers were released.
var ErrReleased = errors.New("ripple: field released")

// Integrator advances a field by one step, writing only the next buffer.
// Implementations never rotate the field.
type Integrator interface {
	Step(f *Field, sources []Source, p Params) error
	Name() string
	Close()
}

// sourceKernel holds the separable Gaussian factors of one source so that the
// per-cell contribution is amp·gx[x]·gy[y].
type sourceKernel struct {
	amp float32
	gx  []float32
	gy  []float32
}

// CPUIntegrator is the portable reference integrator. With more than one
// worker it splits rows into disjoint bands stepped by persistent goroutines.
type CPUIntegrator struct {
	workers int
	pool    *workerPool
	kernels []sourceKernel
}

// NewCPUIntegrator returns a CPU integrator using the given number of workers.
func NewCPUIntegrator(workers int) *CPUIntegrator {
	if workers < 1 {
		workers = 1
	}
	return &CPUIntegrator{workers: workers}
}

// Name identifies the backend.
func (c *CPUIntegrator) Name() string {
	if c.workers > 1 {
		return "cpu-parallel"
	}
	return "cpu"
}

// Step computes next from curr and prev plus at most p.MaxSources sources.
func (c *CPUIntegrator) Step(f *Field, sources []Source, p Params) error {
	if f.released() {
		return ErrReleased
	}
	if len(sources) > p.MaxSources {
		sources = sources[:p.MaxSources]
	}
	kernels := c.prepareSources(f.width, f.height, sources)
	job := stepJob{
		next:    f.buffer(RoleNext),
		curr:    f.buffer(RoleCurr),
		prev:    f.buffer(RolePrev),
		width:   f.width,
		height:  f.height,
		k:       p.C2Dt2,
		damping: p.Damping,
		sources: kernels,
	}
	if c.workers == 1 || f.height < 2 {
		job.rows(0, f.height)
		return nil
	}
	if c.pool == nil || c.pool.height != f.height {
		if c.pool != nil {
			c.pool.close()
		}
		c.pool = newWorkerPool(c.workers, f.height)
	}
	c.pool.run(job)
	return nil
}

// Close stops any worker goroutines.
func (c *CPUIntegrator) Close() {
	if c.pool != nil {
		c.pool.close()
		c.pool = nil
	}
}

// prepareSources fills the reusable Gaussian tables for this step.
func (c *CPUIntegrator) prepareSources(width, height int, sources []Source) []sourceKernel {
	if cap(c.kernels) < len(sources) {
		c.kernels = make([]sourceKernel, len(sources))
	}
	c.kernels = c.kernels[:len(sources)]
	for i, s := range sources {
		k := &c.kernels[i]
		k.amp = s.Amplitude
		k.gx = gaussianAxis(k.gx, width, clamp01(s.U)*float64(width-1), s.Sigma)
		k.gy = gaussianAxis(k.gy, height, clamp01(s.V)*float64(height-1), s.Sigma)
	}
	return c.kernels
}

// gaussianAxis evaluates exp(-(i-centre)²/2σ²) for every index along one axis.
// A non-positive sigma collapses to the nearest cell.
func gaussianAxis(dst []float32, n int, centre float64, sigma float32) []float32 {
	if cap(dst) < n {
		dst = make([]float32, n)
	}
	dst = dst[:n]
	if sigma <= 0 {
		clear(dst)
		dst[clampInt(int(math.Round(centre)), 0, n-1)] = 1
		return dst
	}
	inv := 1 / (2 * float64(sigma) * float64(sigma))
	for i := range dst {
		d := float64(i) - centre
		dst[i] = float32(math.Exp(-d * d * inv))
	}
	return dst
}

// stepJob carries everything a worker needs to update a band of rows.
type stepJob struct {
	next, curr, prev []float32
	width, height    int
	k, damping       float32
	sources          []sourceKernel
}

// rows updates rows [y0, y1). Neighbours outside the grid reuse the edge value.
func (j *stepJob) rows(y0, y1 int) {
	width := j.width
	a := 2 - j.damping
	b := 1 - j.damping
	k := j.k
	for y := y0; y < y1; y++ {
		rowBase := y * width
		topBase := rowBase - width
		if y == 0 {
			topBase = rowBase
		}
		bottomBase := rowBase + width
		if y == j.height-1 {
			bottomBase = rowBase
		}
		center := j.curr[rowBase : rowBase+width]
		prev := j.prev[rowBase : rowBase+width]
		top := j.curr[topBase : topBase+width]
		bottom := j.curr[bottomBase : bottomBase+width]
		nextRow := j.next[rowBase : rowBase+width]

		if width == 1 {
			c := center[0]
			lap := top[0] + bottom[0] - 2*c
			nextRow[0] = a*c - b*prev[0] + k*lap
		} else {
			c := center[0]
			lap := c + center[1] + top[0] + bottom[0] - 4*c
			nextRow[0] = a*c - b*prev[0] + k*lap

			last := width - 1
			c = center[last]
			lap = center[last-1] + c + top[last] + bottom[last] - 4*c
			nextRow[last] = a*c - b*prev[last] + k*lap
		}

		x := 1
		for ; x+3 <= width-2; x += 4 {
			c0 := center[x]
			lap0 := center[x-1] + center[x+1] + top[x] + bottom[x] - 4*c0
			nextRow[x] = a*c0 - b*prev[x] + k*lap0

			x1 := x + 1
			c1 := center[x1]
			lap1 := center[x1-1] + center[x1+1] + top[x1] + bottom[x1] - 4*c1
			nextRow[x1] = a*c1 - b*prev[x1] + k*lap1

			x2 := x + 2
			c2 := center[x2]
			lap2 := center[x2-1] + center[x2+1] + top[x2] + bottom[x2] - 4*c2
			nextRow[x2] = a*c2 - b*prev[x2] + k*lap2

			x3 := x + 3
			c3 := center[x3]
			lap3 := center[x3-1] + center[x3+1] + top[x3] + bottom[x3] - 4*c3
			nextRow[x3] = a*c3 - b*prev[x3] + k*lap3
		}
		for ; x <= width-2; x++ {
			c := center[x]
			lap := center[x-1] + center[x+1] + top[x] + bottom[x] - 4*c
			nextRow[x] = a*c - b*prev[x] + k*lap
		}

		for i := range j.sources {
			s := &j.sources[i]
			ry := s.amp * s.gy[y]
			if ry == 0 {
				continue
			}
			for x, g := range s.gx {
				nextRow[x] += ry * g
			}
		}
	}
}
