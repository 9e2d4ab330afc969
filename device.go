package vtstream

import (
	"fmt"

	"github.com/andewx/vtstream/vtex"
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// CoreDevice is the selected physical device and the logical device created
// on it, with the queue used for sparse binding.
type CoreDevice struct {
	physical_devices                  []vk.PhysicalDevice
	selected_device                   vk.PhysicalDevice
	selected_device_properties        vk.PhysicalDeviceProperties
	selected_device_memory_properties vk.PhysicalDeviceMemoryProperties
	handle                            vk.Device
	name                              string
	queues                            *CoreQueue
	sparse_queue                      vk.Queue
	sparse_queue_family               uint32
}

// Handle returns the logical device.
func (d *CoreDevice) Handle() vk.Device { return d.handle }

// Name returns the physical device name.
func (d *CoreDevice) Name() string { return d.name }

// MemoryProperties returns the memory properties of the physical device.
func (d *CoreDevice) MemoryProperties() vk.PhysicalDeviceMemoryProperties {
	return d.selected_device_memory_properties
}

// Destroy destroys the logical device.
func (d *CoreDevice) Destroy() {
	vk.DestroyDevice(d.handle, nil)
}

// SparseDevice implements vtex.Device for one sparse-resident image.
type SparseDevice struct {
	device *CoreDevice
	image  vk.Image
	fences *FenceManager
	aspect vk.ImageAspectFlags
}

// NewSparseDevice binds pages of image through the sparse queue of device.
func NewSparseDevice(device *CoreDevice, image vk.Image) *SparseDevice {
	return &SparseDevice{
		device: device,
		image:  image,
		fences: NewFenceManager(device.handle),
		aspect: vk.ImageAspectFlags(vk.ImageAspectColorBit),
	}
}

func (s *SparseDevice) Allocate(size uint64, memoryTypeIndex uint32) (vtex.Memory, error) {
	var memory vk.DeviceMemory
	ret := vk.AllocateMemory(s.device.handle, &vk.MemoryAllocateInfo{
		SType:           vk.StructureTypeMemoryAllocateInfo,
		AllocationSize:  vk.DeviceSize(size),
		MemoryTypeIndex: memoryTypeIndex,
	}, nil, &memory)
	if isError(ret) {
		return nil, NewError(ret)
	}
	return memory, nil
}

func (s *SparseDevice) Free(mem vtex.Memory) {
	memory, ok := mem.(vk.DeviceMemory)
	if !ok {
		vtex.Logger().Warn("vtstream: free of foreign memory handle", "type", fmt.Sprintf("%T", mem))
		return
	}
	vk.FreeMemory(s.device.handle, memory, nil)
}

// Submit queues all binds in one vkQueueBindSparse call guarded by a fresh
// fence. An unbind is a bind to a null memory handle.
func (s *SparseDevice) Submit(binds []vtex.Bind) (vtex.Fence, error) {
	imageBinds := make([]vk.SparseImageMemoryBind, len(binds))
	for i, b := range binds {
		memory := vk.NullDeviceMemory
		if !b.Unbind() {
			m, ok := b.Memory.(vk.DeviceMemory)
			if !ok {
				return nil, errors.Newf("page %d: memory handle is not device memory", b.Page)
			}
			memory = m
		}
		imageBinds[i] = vk.SparseImageMemoryBind{
			Subresource: vk.ImageSubresource{
				AspectMask: s.aspect,
				MipLevel:   b.Region.Mip,
				ArrayLayer: 0,
			},
			Offset:       vk.Offset3D{X: int32(b.Region.X), Y: int32(b.Region.Y), Z: 0},
			Extent:       vk.Extent3D{Width: b.Region.Width, Height: b.Region.Height, Depth: 1},
			Memory:       memory,
			MemoryOffset: vk.DeviceSize(b.Offset),
		}
	}
	return s.submit(vk.BindSparseInfo{
		SType:          vk.StructureTypeBindSparseInfo,
		ImageBindCount: 1,
		PImageBinds: []vk.SparseImageMemoryBindInfo{{
			Image:     s.image,
			BindCount: uint32(len(imageBinds)),
			PBinds:    imageBinds,
		}},
	})
}

// BindOpaque binds memory into the image's opaque region, used for the mip
// tail which cannot be bound per page.
func (s *SparseDevice) BindOpaque(resourceOffset, size uint64, mem vk.DeviceMemory) (vtex.Fence, error) {
	return s.submit(vk.BindSparseInfo{
		SType:                vk.StructureTypeBindSparseInfo,
		ImageOpaqueBindCount: 1,
		PImageOpaqueBinds: []vk.SparseImageOpaqueMemoryBindInfo{{
			Image:     s.image,
			BindCount: 1,
			PBinds: []vk.SparseMemoryBind{{
				ResourceOffset: vk.DeviceSize(resourceOffset),
				Size:           vk.DeviceSize(size),
				Memory:         mem,
			}},
		}},
	})
}

func (s *SparseDevice) submit(info vk.BindSparseInfo) (vtex.Fence, error) {
	fence, err := s.fences.NewFence()
	if err != nil {
		return nil, errors.Wrap(err, "creating bind fence")
	}
	ret := vk.QueueBindSparse(s.device.sparse_queue, 1, []vk.BindSparseInfo{info}, fence.fence)
	if isError(ret) {
		// Nothing was queued; let the fence be recycled.
		fence.signaled = true
		return nil, NewError(ret)
	}
	return fence, nil
}

func (s *SparseDevice) WaitIdle() error {
	if ret := vk.QueueWaitIdle(s.device.sparse_queue); isError(ret) {
		return NewError(ret)
	}
	return nil
}

// Destroy waits for outstanding binds and destroys the fences.
func (s *SparseDevice) Destroy() {
	s.fences.Destroy()
}
