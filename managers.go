package vtstream

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// fencePollInterval paces Wait between non-blocking status checks so a
// cancelled context is noticed.
const fencePollInterval = 200 * time.Microsecond

// FenceManager hands out fences for sparse bind submissions and recycles
// them once signaled. The manager is not thread-safe.
type FenceManager struct {
	device vk.Device
	free   []vk.Fence
	active []*deviceFence
}

// deviceFence implements vtex.Fence over a managed vk.Fence.
type deviceFence struct {
	device   vk.Device
	fence    vk.Fence
	signaled bool
}

func NewFenceManager(device vk.Device) *FenceManager {
	return &FenceManager{
		device: device,
	}
}

// NewFence returns an unsignaled fence, reusing one whose previous
// submission has completed when possible.
func (f *FenceManager) NewFence() (*deviceFence, error) {
	f.recycle()

	var fence vk.Fence
	if n := len(f.free); n > 0 {
		fence = f.free[n-1]
		f.free = f.free[:n-1]
		if ret := vk.ResetFences(f.device, 1, []vk.Fence{fence}); isError(ret) {
			return nil, NewError(ret)
		}
	} else {
		ret := vk.CreateFence(f.device, &vk.FenceCreateInfo{
			SType: vk.StructureTypeFenceCreateInfo,
		}, nil, &fence)
		if isError(ret) {
			return nil, NewError(ret)
		}
	}

	df := &deviceFence{device: f.device, fence: fence}
	f.active = append(f.active, df)
	return df, nil
}

// recycle moves fences of completed submissions back to the free list.
func (f *FenceManager) recycle() {
	kept := f.active[:0]
	for _, df := range f.active {
		if df.Signaled() {
			f.free = append(f.free, df.fence)
			continue
		}
		kept = append(kept, df)
	}
	clear(f.active[len(kept):])
	f.active = kept
}

// ActiveFences returns the fences of submissions still in flight.
func (f *FenceManager) ActiveFences() []vk.Fence {
	fences := make([]vk.Fence, 0, len(f.active))
	for _, df := range f.active {
		if !df.signaled {
			fences = append(fences, df.fence)
		}
	}
	return fences
}

// Reset waits for every outstanding fence. Afterwards every resource used by
// earlier submissions may be reused or deleted.
func (f *FenceManager) Reset() {
	if fences := f.ActiveFences(); len(fences) > 0 {
		vk.WaitForFences(f.device, uint32(len(fences)), fences, vk.True, vk.MaxUint64)
	}
	for _, df := range f.active {
		df.signaled = true
	}
	f.recycle()
}

func (f *FenceManager) Destroy() {
	f.Reset()
	for i := range f.free {
		vk.DestroyFence(f.device, f.free[i], nil)
	}
	f.free = nil
}

func (d *deviceFence) Signaled() bool {
	if d.signaled {
		return true
	}
	d.signaled = vk.GetFenceStatus(d.device, d.fence) == vk.Success
	return d.signaled
}

func (d *deviceFence) Wait(ctx context.Context) error {
	for !d.Signaled() {
		ret := vk.WaitForFences(d.device, 1, []vk.Fence{d.fence}, vk.True, uint64(fencePollInterval))
		switch ret {
		case vk.Success:
			d.signaled = true
		case vk.Timeout:
			if err := ctx.Err(); err != nil {
				return errors.Wrap(err, "waiting for fence")
			}
		default:
			return NewError(ret)
		}
	}
	return nil
}
