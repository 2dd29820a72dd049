//go:build !opencl

package ripple

import "errors"

// OpenCLAvailable reports whether this build carries the OpenCL backend.
const OpenCLAvailable = false

// OpenCLIntegrator is unavailable without the opencl build tag.
type OpenCLIntegrator struct{}

// NewOpenCLIntegrator always fails in builds without OpenCL support.
func NewOpenCLIntegrator(width, height int) (*OpenCLIntegrator, error) {
	return nil, errors.New("OpenCL support is not enabled; rebuild with -tags opencl")
}

func (s *OpenCLIntegrator) Step(*Field, []Source, Params) error {
	return errors.New("OpenCL integrator unavailable")
}

func (s *OpenCLIntegrator) Name() string { return "opencl" }

func (s *OpenCLIntegrator) DeviceName() string { return "" }

func (s *OpenCLIntegrator) Close() {}
