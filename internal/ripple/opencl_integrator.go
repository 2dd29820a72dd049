//go:build opencl

package ripple

import (
	"errors"
	"fmt"
	"strings"
	"unsafe"

	"github.com/jgillich/go-opencl/cl"
)

// OpenCLAvailable reports whether this build carries the OpenCL backend.
const OpenCLAvailable = true

// sourceStride is the number of floats describing one source on the device.
const sourceStride = 4

const rippleKernelSource = `__kernel void ripple_step(
    const int width,
    const int height,
    const float c2dt2,
    const float damping,
    const int source_count,
    __global const float* sources,
    __global const float* curr,
    __global const float* prev,
    __global float* next_buffer)
{
    int idx = get_global_id(0);
    if (idx >= width * height) {
        return;
    }
    int x = idx % width;
    int y = idx / width;
    float center = curr[idx];
    float left = x > 0 ? curr[idx - 1] : center;
    float right = x < width - 1 ? curr[idx + 1] : center;
    float top = y > 0 ? curr[idx - width] : center;
    float bottom = y < height - 1 ? curr[idx + width] : center;
    float lap = left + right + top + bottom - 4.0f * center;
    float next = (2.0f - damping) * center - (1.0f - damping) * prev[idx] + c2dt2 * lap;
    for (int i = 0; i < source_count; i++) {
        float sx = sources[i * 4 + 0];
        float sy = sources[i * 4 + 1];
        float amp = sources[i * 4 + 2];
        float sigma = sources[i * 4 + 3];
        float dx = (float)x - sx;
        float dy = (float)y - sy;
        if (sigma > 0.0f) {
            next += amp * exp(-(dx * dx) / (2.0f * sigma * sigma)) * exp(-(dy * dy) / (2.0f * sigma * sigma));
        } else if (fabs(dx) < 0.5f && fabs(dy) < 0.5f) {
            next += amp;
        }
    }
    next_buffer[idx] = next;
}`

// OpenCLIntegrator runs the step kernel on an OpenCL device. Device buffers
// are indexed by the field's physical slots so rotation never copies; only
// the freshly written grid is read back for the renderer.
type OpenCLIntegrator struct {
	context   *cl.Context
	queue     *cl.CommandQueue
	program   *cl.Program
	kernel    *cl.Kernel
	slots     [3]*cl.MemObject
	sourceBuf *cl.MemObject
	width     int
	height    int
	synced    bool
	syncedAt  uint64
	hostSrc   []float32
	device    string
}

// NewOpenCLIntegrator selects a GPU device (falling back to CPU devices),
// compiles the kernel and allocates three slot buffers.
func NewOpenCLIntegrator(width, height int) (*OpenCLIntegrator, error) {
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("%w: %dx%d", ErrInvalidResolution, width, height)
	}
	platforms, err := cl.GetPlatforms()
	if err != nil {
		msg := "querying OpenCL platforms"
		if strings.Contains(err.Error(), "-1001") {
			msg += ": no ICD loader reported any platforms; install OpenCL drivers and verify with `clinfo`"
		}
		return nil, fmt.Errorf("%s: %w", msg, err)
	}
	if len(platforms) == 0 {
		return nil, errors.New("no OpenCL platforms available")
	}
	device := pickDevice(platforms, cl.DeviceTypeGPU)
	if device == nil {
		device = pickDevice(platforms, cl.DeviceTypeCPU)
	}
	if device == nil {
		return nil, errors.New("no suitable OpenCL devices found")
	}

	s := &OpenCLIntegrator{width: width, height: height, device: device.Name()}
	if s.context, err = cl.CreateContext([]*cl.Device{device}); err != nil {
		return nil, fmt.Errorf("creating OpenCL context: %w", err)
	}
	if s.queue, err = s.context.CreateCommandQueue(device, 0); err != nil {
		s.Close()
		return nil, fmt.Errorf("creating OpenCL command queue: %w", err)
	}
	if s.program, err = s.context.CreateProgramWithSource([]string{rippleKernelSource}); err != nil {
		s.Close()
		return nil, fmt.Errorf("creating OpenCL program: %w", err)
	}
	if err := s.program.BuildProgram([]*cl.Device{device}, ""); err != nil {
		s.Close()
		if buildErr, ok := err.(cl.BuildError); ok {
			return nil, fmt.Errorf("building OpenCL program: %s", string(buildErr))
		}
		return nil, fmt.Errorf("building OpenCL program: %w", err)
	}
	if s.kernel, err = s.program.CreateKernel("ripple_step"); err != nil {
		s.Close()
		return nil, fmt.Errorf("creating OpenCL kernel: %w", err)
	}
	byteSize := width * height * int(unsafe.Sizeof(float32(0)))
	for i := range s.slots {
		if s.slots[i], err = s.context.CreateEmptyBuffer(cl.MemReadWrite, byteSize); err != nil {
			s.Close()
			return nil, fmt.Errorf("allocating slot buffer %d: %w", i, err)
		}
	}
	srcBytes := MaxSources * sourceStride * int(unsafe.Sizeof(float32(0)))
	if s.sourceBuf, err = s.context.CreateEmptyBuffer(cl.MemReadOnly, srcBytes); err != nil {
		s.Close()
		return nil, fmt.Errorf("allocating source buffer: %w", err)
	}
	s.hostSrc = make([]float32, MaxSources*sourceStride)
	return s, nil
}

func pickDevice(platforms []*cl.Platform, kind cl.DeviceType) *cl.Device {
	for _, p := range platforms {
		devices, err := p.GetDevices(kind)
		if err != nil && err != cl.ErrDeviceNotFound {
			continue
		}
		if len(devices) > 0 {
			return devices[0]
		}
	}
	return nil
}

// Name identifies the backend.
func (s *OpenCLIntegrator) Name() string { return "opencl" }

// DeviceName reports the selected device.
func (s *OpenCLIntegrator) DeviceName() string { return s.device }

// Step uploads host state when the field was reset or is new, runs the kernel
// into the next slot and reads it back.
func (s *OpenCLIntegrator) Step(f *Field, sources []Source, p Params) error {
	if f.released() {
		return ErrReleased
	}
	if f.width != s.width || f.height != s.height {
		return fmt.Errorf("field %dx%d does not match device buffers %dx%d", f.width, f.height, s.width, s.height)
	}
	// A reset rewinds the step counter; anything host-side is then newer.
	if !s.synced || f.Steps() < s.syncedAt {
		for i, buf := range s.slots {
			if _, err := s.queue.EnqueueWriteBufferFloat32(buf, false, 0, f.slots[i], nil); err != nil {
				return fmt.Errorf("writing slot %d: %w", i, err)
			}
		}
		s.synced = true
	}
	if len(sources) > p.MaxSources {
		sources = sources[:p.MaxSources]
	}
	for i, src := range sources {
		base := i * sourceStride
		s.hostSrc[base+0] = float32(clamp01(src.U) * float64(f.width-1))
		s.hostSrc[base+1] = float32(clamp01(src.V) * float64(f.height-1))
		s.hostSrc[base+2] = src.Amplitude
		s.hostSrc[base+3] = src.Sigma
	}
	if len(sources) > 0 {
		if _, err := s.queue.EnqueueWriteBufferFloat32(s.sourceBuf, false, 0, s.hostSrc[:len(sources)*sourceStride], nil); err != nil {
			return fmt.Errorf("writing sources: %w", err)
		}
	}
	if err := s.kernel.SetArgs(
		int32(f.width),
		int32(f.height),
		p.C2Dt2,
		p.Damping,
		int32(len(sources)),
		s.sourceBuf,
		s.slots[f.Slot(RoleCurr)],
		s.slots[f.Slot(RolePrev)],
		s.slots[f.Slot(RoleNext)],
	); err != nil {
		return fmt.Errorf("setting kernel arguments: %w", err)
	}
	global := []int{f.width * f.height}
	if _, err := s.queue.EnqueueNDRangeKernel(s.kernel, nil, global, nil, nil); err != nil {
		return fmt.Errorf("enqueueing kernel: %w", err)
	}
	next := f.buffer(RoleNext)
	if _, err := s.queue.EnqueueReadBufferFloat32(s.slots[f.Slot(RoleNext)], true, 0, next, nil); err != nil {
		return fmt.Errorf("reading next buffer: %w", err)
	}
	s.syncedAt = f.Steps() + 1
	return nil
}

// Close releases every device object.
func (s *OpenCLIntegrator) Close() {
	if s.sourceBuf != nil {
		s.sourceBuf.Release()
		s.sourceBuf = nil
	}
	for i, buf := range s.slots {
		if buf != nil {
			buf.Release()
			s.slots[i] = nil
		}
	}
	if s.kernel != nil {
		s.kernel.Release()
		s.kernel = nil
	}
	if s.program != nil {
		s.program.Release()
		s.program = nil
	}
	if s.queue != nil {
		s.queue.Release()
		s.queue = nil
	}
	if s.context != nil {
		s.context.Release()
		s.context = nil
	}
}
