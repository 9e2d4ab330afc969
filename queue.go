package vtstream

import (
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// CoreQueue lists the queue families of a physical device.
type CoreQueue struct {
	properties []vk.QueueFamilyProperties
	gpu        vk.PhysicalDevice
}

// NewCoreQueue queries the queue families of gpu. Returns nil when the device
// exposes none.
func NewCoreQueue(gpu vk.PhysicalDevice) *CoreQueue {
	var q CoreQueue
	var count uint32
	q.gpu = gpu
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, nil)
	if count == 0 {
		return nil
	}
	q.properties = make([]vk.QueueFamilyProperties, count)
	vk.GetPhysicalDeviceQueueFamilyProperties(gpu, &count, q.properties)
	for i := range q.properties {
		q.properties[i].Deref()
	}
	return &q
}

// FindSuitableQueue returns the first family supporting all of flag_bits.
func (q *CoreQueue) FindSuitableQueue(flag_bits vk.QueueFlagBits) (bool, uint32) {
	for index := range q.properties {
		flag := q.properties[index].QueueFlags & vk.QueueFlags(flag_bits)
		if flag == vk.QueueFlags(flag_bits) {
			return true, uint32(index)
		}
	}
	return false, 0
}

// FindSparseQueue returns a family that can both render and bind sparse
// memory, so binds and the draws sampling the texture share one timeline.
func (q *CoreQueue) FindSparseQueue() (uint32, error) {
	ok, family := q.FindSuitableQueue(vk.QueueGraphicsBit | vk.QueueSparseBindingBit)
	if !ok {
		return 0, errors.New("no queue family supports graphics and sparse binding")
	}
	return family, nil
}

// GetCreateInfos returns the create info for a single queue of family.
func (q *CoreQueue) GetCreateInfos(family uint32) []vk.DeviceQueueCreateInfo {
	return []vk.DeviceQueueCreateInfo{{
		SType:            vk.StructureTypeDeviceQueueCreateInfo,
		QueueFamilyIndex: family,
		QueueCount:       1,
		PQueuePriorities: []float32{1.0},
	}}
}
