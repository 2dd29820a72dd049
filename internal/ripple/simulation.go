package ripple

import "errors"

// ErrClosed is returned by a simulation after Close.
var ErrClosed = errors.New("ripple: simulation closed")

// Option customises a Simulation.
type Option func(*Simulation)

// WithIntegrator selects the integration backend. The simulation owns it and
// closes it on Close.
func WithIntegrator(in Integrator) Option {
	return func(s *Simulation) { s.integrator = in }
}

// WithQueue replaces the default drop-excess source queue.
func WithQueue(q *SourceQueue) Option {
	return func(s *Simulation) { s.queue = q }
}

// Simulation is an explicit simulation context: one field, one source queue
// and one integrator. Independent instances share nothing.
type Simulation struct {
	params     Params
	field      *Field
	queue      *SourceQueue
	integrator Integrator
	drained    []Source
	closed     bool
}

// New allocates the three zeroed buffers and an empty queue. It fails only when
// the resolution is not positive; damping and the source cap are clamped into
// range.
func New(p Params, opts ...Option) (*Simulation, error) {
	field, err := NewField(p.Width, p.Height)
	if err != nil {
		return nil, err
	}
	p = p.normalized()
	s := &Simulation{
		params:  p,
		field:   field,
		drained: make([]Source, 0, p.MaxSources),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.queue == nil {
		s.queue = NewSourceQueue(p.MaxSources, DropExcess, p.MaxSources)
	}
	if s.integrator == nil {
		s.integrator = NewCPUIntegrator(1)
	}
	return s, nil
}

// Params returns the effective parameters.
func (s *Simulation) Params() Params { return s.params }

// Field exposes the height-field store.
func (s *Simulation) Field() *Field { return s.field }

// Queue exposes the source queue for producers.
func (s *Simulation) Queue() *SourceQueue { return s.queue }

// Integrator returns the active backend.
func (s *Simulation) Integrator() Integrator { return s.integrator }

// Enqueue offers a source to the queue.
func (s *Simulation) Enqueue(src Source) bool { return s.queue.Enqueue(src) }

// Drain pulls at most MaxSources pending sources. The returned slice is
// reused by the next call.
func (s *Simulation) Drain() []Source {
	s.drained = s.queue.Drain(s.drained)
	return s.drained
}

// Integrate writes the next grid from curr, prev and sources.
func (s *Simulation) Integrate(sources []Source) error {
	if s.closed {
		return ErrClosed
	}
	return s.integrator.Step(s.field, sources, s.params)
}

// Rotate promotes the freshly integrated grid to current.
func (s *Simulation) Rotate() { s.field.Rotate() }

// Step integrates sources and rotates in one call.
func (s *Simulation) Step(sources []Source) error {
	if err := s.Integrate(sources); err != nil {
		return err
	}
	s.field.Rotate()
	return nil
}

// Advance drains the queue and performs one step.
func (s *Simulation) Advance() error {
	if s.closed {
		return ErrClosed
	}
	return s.Step(s.Drain())
}

// Current returns the renderer-facing view of the current grid.
func (s *Simulation) Current() View { return s.field.Current() }

// Reset discards all history and pending sources.
func (s *Simulation) Reset() {
	if s.closed {
		return
	}
	s.field.Reset()
	s.queue.Clear()
}

// Close stops the integrator and releases the buffers.
func (s *Simulation) Close() {
	if s.closed {
		return
	}
	s.closed = true
	s.integrator.Close()
	s.field.Release()
	s.queue.Clear()
}

// Closed reports whether Close has been called.
func (s *Simulation) Closed() bool { return s.closed }
