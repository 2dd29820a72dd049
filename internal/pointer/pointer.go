// Package pointer turns pointer motion over the rendered surface into ripple
// sources.
package pointer

import (
	"fmt"
	"time"

	"github.com/Distortions81/ripple-field/internal/ripple"
	"github.com/Distortions81/ripple-field/internal/scene"
)

// Reference pointer behaviour.
const (
	DefaultInterval  = 35 * time.Millisecond
	DefaultAmplitude = 0.012
	// DefaultSpread is the Gaussian sigma as a fraction of the domain.
	DefaultSpread = 0.02
)

// Throttle admits at most one event per interval, measured from the last
// event it was told to mark.
type Throttle struct {
	interval time.Duration
	last     time.Time
	marked   bool
}

// NewThrottle returns a throttle that has never fired.
func NewThrottle(interval time.Duration) *Throttle {
	return &Throttle{interval: interval}
}

// Ready reports whether an event at now may be accepted.
func (t *Throttle) Ready(now time.Time) bool {
	return !t.marked || now.Sub(t.last) >= t.interval
}

// Mark records now as the last accepted event.
func (t *Throttle) Mark(now time.Time) {
	t.last = now
	t.marked = true
}

// Reset forgets the last accepted event.
func (t *Throttle) Reset() {
	t.marked = false
	t.last = time.Time{}
}

// Interval returns the minimum spacing between accepted events.
func (t *Throttle) Interval() time.Duration { return t.interval }

// Event is one pointer move in device pixels together with the scene it was
// observed in.
type Event struct {
	X, Y      float64
	ViewportW int
	ViewportH int
	At        time.Time
	Camera    scene.Camera
	Surface   scene.Surface
}

// Outcome is the result of handling one event.
type Outcome int

const (
	// Throttled events arrived too soon after the last accepted one.
	Throttled Outcome = iota
	// Missed events did not intersect the surface.
	Missed
	// Accepted events produced a queued source.
	Accepted
	// Dropped events hit the surface but the queue was full.
	Dropped
)

func (o Outcome) String() string {
	switch o {
	case Throttled:
		return "throttled"
	case Missed:
		return "missed"
	case Accepted:
		return "accepted"
	case Dropped:
		return "dropped"
	}
	return fmt.Sprintf("outcome(%d)", int(o))
}

// Sink receives sources produced by the mapper.
type Sink interface {
	Enqueue(ripple.Source) bool
}

// Counts tallies outcomes.
type Counts struct {
	Throttled, Missed, Accepted, Dropped uint64
}

// Mapper converts pointer events into sources. It is the single producer of
// its sink and must be driven from one goroutine.
type Mapper struct {
	throttle  *Throttle
	sink      Sink
	amplitude float32
	sigma     float32
	counts    Counts
}

// Options tune a Mapper. Zero values select the defaults.
type Options struct {
	Interval  time.Duration
	Amplitude float32
	// Sigma is the source spread in grid cells.
	Sigma float32
}

// SigmaCells converts a spread given as a fraction of the domain into cells of
// a width×height grid.
func SigmaCells(spread float64, width, height int) float32 {
	n := width
	if height > n {
		n = height
	}
	return float32(spread * float64(n))
}

// NewMapper builds a mapper feeding sink.
func NewMapper(sink Sink, opts Options) *Mapper {
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.Amplitude == 0 {
		opts.Amplitude = DefaultAmplitude
	}
	if opts.Sigma <= 0 {
		opts.Sigma = SigmaCells(DefaultSpread, ripple.DefaultSize, ripple.DefaultSize)
	}
	return &Mapper{
		throttle:  NewThrottle(opts.Interval),
		sink:      sink,
		amplitude: opts.Amplitude,
		sigma:     opts.Sigma,
	}
}

// HandleMove processes one pointer move. The throttle is consulted before the
// ray is cast and is only advanced by events that hit the surface.
func (m *Mapper) HandleMove(e Event) Outcome {
	out := m.handle(e)
	switch out {
	case Throttled:
		m.counts.Throttled++
	case Missed:
		m.counts.Missed++
	case Accepted:
		m.counts.Accepted++
	case Dropped:
		m.counts.Dropped++
	}
	return out
}

func (m *Mapper) handle(e Event) Outcome {
	if !m.throttle.Ready(e.At) {
		return Throttled
	}
	x, y, ok := scene.NDC(e.X, e.Y, e.ViewportW, e.ViewportH)
	if !ok {
		return Missed
	}
	ray := e.Camera.Ray(x, y, scene.Aspect(e.ViewportW, e.ViewportH))
	hit, ok := e.Surface.Intersect(ray)
	if !ok {
		return Missed
	}
	m.throttle.Mark(e.At)
	if !m.sink.Enqueue(ripple.NewSource(hit.U, hit.V, m.amplitude, m.sigma)) {
		return Dropped
	}
	return Accepted
}

// Counts returns the outcome tallies.
func (m *Mapper) Counts() Counts { return m.counts }

// Reset re-arms the throttle.
func (m *Mapper) Reset() { m.throttle.Reset() }
