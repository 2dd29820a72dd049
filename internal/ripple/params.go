package ripple

import (
	"errors"
	"fmt"
)

// Simulation defaults taken from the interactive water surface.
const (
	DefaultSize       = 512
	DefaultC2Dt2      = 0.04
	DefaultDamping    = 0.02
	MaxSources        = 8
	DefaultMaxSources = MaxSources

	// maxDamping keeps damping strictly below one.
	maxDamping = 0.999
)

var (
	// ErrInvalidResolution is returned when a grid dimension is not positive.
	ErrInvalidResolution = errors.New("ripple: resolution must be positive")
	// ErrUnstable reports parameters outside the explicit scheme's stability bound.
	ErrUnstable = errors.New("ripple: propagation coefficient exceeds stability bound")
)

// Params configures a simulation instance.
type Params struct {
	Width, Height int
	// C2Dt2 is the propagation coefficient c²Δt² in grid-cell units.
	C2Dt2 float32
	// Damping in [0,1); zero is lossless.
	Damping float32
	// MaxSources caps the sources applied per step (1..MaxSources).
	MaxSources int
}

// DefaultParams describes the standard water surface.
func DefaultParams() Params {
	return Params{
		Width:      DefaultSize,
		Height:     DefaultSize,
		C2Dt2:      DefaultC2Dt2,
		Damping:    DefaultDamping,
		MaxSources: DefaultMaxSources,
	}
}

// CourantLimit returns the largest stable c²Δt² for unit grid spacing with the
// given damping. The undamped 2D five-point scheme is stable up to 1/2.
func CourantLimit(damping float32) float32 {
	return (2 - damping) / 4
}

// Check is the startup stability assertion. It is never evaluated per step.
func (p Params) Check() error {
	if p.Width <= 0 || p.Height <= 0 {
		return fmt.Errorf("%w: %dx%d", ErrInvalidResolution, p.Width, p.Height)
	}
	if p.C2Dt2 < 0 {
		return fmt.Errorf("%w: c2dt2 %.4f is negative", ErrUnstable, p.C2Dt2)
	}
	if limit := CourantLimit(p.Damping); p.C2Dt2 > limit {
		return fmt.Errorf("%w: c2dt2 %.4f > %.4f", ErrUnstable, p.C2Dt2, limit)
	}
	return nil
}

// normalized clamps damping and the source cap into their invariants.
func (p Params) normalized() Params {
	if p.Damping < 0 {
		p.Damping = 0
	} else if p.Damping > maxDamping {
		p.Damping = maxDamping
	}
	if p.MaxSources < 1 {
		p.MaxSources = 1
	} else if p.MaxSources > MaxSources {
		p.MaxSources = MaxSources
	}
	return p
}
