package ripple

import "fmt"

// Backend names accepted by NewIntegrator.
const (
	BackendCPU    = "cpu"
	BackendOpenCL = "opencl"
)

// NewIntegrator builds the named backend for a width×height field.
func NewIntegrator(backend string, workers, width, height int) (Integrator, error) {
	switch backend {
	case "", BackendCPU:
		return NewCPUIntegrator(workers), nil
	case BackendOpenCL:
		in, err := NewOpenCLIntegrator(width, height)
		if err != nil {
			return nil, err
		}
		return in, nil
	default:
		return nil, fmt.Errorf("unknown integrator backend %q", backend)
	}
}
