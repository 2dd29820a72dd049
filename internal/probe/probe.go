// Package probe turns the height under a fixed surface point into a PCM
// stream so the ripples can be heard.
package probe

import (
	"sync"

	"github.com/Distortions81/ripple-field/internal/ripple"
)

// Audio format produced by Stream.
const (
	SampleRate   = 48000
	Channels     = 2
	BytesPerSamp = 2
	FrameBytes   = Channels * BytesPerSamp

	pcm16Max = 32767
	// dcAlpha is the coefficient of the one-pole DC tracker.
	dcAlpha = 0.001
)

// Stream is a stereo 16-bit little-endian PCM reader that repeats the most
// recent sample. SetSample is called from the frame loop and Read from the
// audio driver.
type Stream struct {
	mu     sync.Mutex
	sample float32
	dc     float32
}

// NewStream returns a silent stream.
func NewStream() *Stream {
	return &Stream{}
}

// SetSample publishes a new sample in [-1, 1]; values outside are clipped.
func (s *Stream) SetSample(v float32) {
	if v > 1 {
		v = 1
	} else if v < -1 {
		v = -1
	}
	s.mu.Lock()
	s.dc += dcAlpha * (v - s.dc)
	s.sample = v - s.dc
	s.mu.Unlock()
}

// Sample returns the current AC-coupled sample.
func (s *Stream) Sample() float32 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.sample
}

// Read fills p with whole stereo frames.
func (s *Stream) Read(p []byte) (int, error) {
	n := len(p) - len(p)%FrameBytes
	if n == 0 {
		return 0, nil
	}
	v := int16(s.Sample() * pcm16Max)
	lo, hi := byte(v), byte(v>>8)
	for i := 0; i < n; i += FrameBytes {
		p[i] = lo
		p[i+1] = hi
		p[i+2] = lo
		p[i+3] = hi
	}
	return n, nil
}

// Close implements io.Closer.
func (s *Stream) Close() error { return nil }

// Probe samples the field at a fixed domain point each frame.
type Probe struct {
	U, V   float64
	Gain   float32
	stream *Stream
}

// New returns a probe at (u, v) feeding stream.
func New(u, v float64, gain float32, stream *Stream) *Probe {
	return &Probe{U: u, V: v, Gain: gain, stream: stream}
}

// Observe samples view and publishes the scaled height.
func (p *Probe) Observe(view ripple.View) {
	p.stream.SetSample(view.Sample(p.U, p.V) * p.Gain)
}

// Render lets a probe sit in a frame's render chain.
func (p *Probe) Render(view ripple.View) error {
	p.Observe(view)
	return nil
}

// Stream returns the PCM stream fed by the probe.
func (p *Probe) Stream() *Stream { return p.stream }
