package vtstream

import (
	"unsafe"

	"github.com/andewx/vtstream/vtex"
	"github.com/cockroachdb/errors"
	vk "github.com/vulkan-go/vulkan"
)

// InstanceOptions lists what the instance and device are created with.
// Names that the platform does not provide are skipped with a warning.
type InstanceOptions struct {
	AppName            string
	InstanceExtensions []string
	DeviceExtensions   []string
	ValidationLayers   []string
	Debug              bool
	// Portability enumerates non-conformant implementations such as MoltenVK.
	Portability bool
}

// CoreInstance owns the Vulkan instance and the logical device created on
// the first GPU able to back sparse resident 2D images.
type CoreInstance struct {
	instance      vk.Instance
	debugCallback vk.DebugReportCallback
	device        *CoreDevice
	layers        []string
}

// NewCoreInstance creates the instance, selects a GPU with sparse binding and
// sparse 2D image residency, and creates a device with one queue able to both
// render and bind sparse memory.
func NewCoreInstance(opts InstanceOptions) (core *CoreInstance, err error) {
	defer checkErr(&err)
	log := vtex.Logger()
	core = &CoreInstance{}

	actualInstanceExtensions, err := InstanceExtensions()
	orPanic(err)
	instanceExtensions, missing := checkExisting(actualInstanceExtensions, opts.InstanceExtensions)
	if missing > 0 {
		log.Warn("vulkan: missing required instance extensions", "missing", missing)
	}
	log.Info("vulkan: enabling instance extensions", "count", len(instanceExtensions))

	if len(opts.ValidationLayers) > 0 {
		actualValidationLayers, err := ValidationLayers()
		orPanic(err)
		core.layers, missing = checkExisting(actualValidationLayers, opts.ValidationLayers)
		if missing > 0 {
			log.Warn("vulkan: missing validation layers", "missing", missing)
		}
	}

	var flags vk.InstanceCreateFlags
	if opts.Portability {
		flags = vk.InstanceCreateFlags(0x00000001) // VK_INSTANCE_CREATE_ENUMERATE_PORTABILITY_BIT_KHR
	}

	ret := vk.CreateInstance(&vk.InstanceCreateInfo{
		SType: vk.StructureTypeInstanceCreateInfo,
		Flags: flags,
		PApplicationInfo: &vk.ApplicationInfo{
			SType:              vk.StructureTypeApplicationInfo,
			ApiVersion:         uint32(vk.MakeVersion(1, 1, 0)),
			ApplicationVersion: uint32(vk.MakeVersion(1, 0, 0)),
			PApplicationName:   safeString(opts.AppName),
			PEngineName:        "vtstream\x00",
		},
		EnabledExtensionCount:   uint32(len(instanceExtensions)),
		PpEnabledExtensionNames: instanceExtensions,
		EnabledLayerCount:       uint32(len(core.layers)),
		PpEnabledLayerNames:     core.layers,
	}, nil, &core.instance)
	orPanic(NewError(ret))
	vk.InitInstance(core.instance)

	if opts.Debug {
		ret := vk.CreateDebugReportCallback(core.instance, &vk.DebugReportCallbackCreateInfo{
			SType:       vk.StructureTypeDebugReportCallbackCreateInfo,
			Flags:       vk.DebugReportFlags(vk.DebugReportErrorBit | vk.DebugReportWarningBit),
			PfnCallback: dbgCallbackFunc,
		}, nil, &core.debugCallback)
		orPanic(NewError(ret))
		log.Info("vulkan: debug report callback enabled")
	}

	device, err := core.selectDevice()
	if err != nil {
		core.Destroy()
		return nil, err
	}
	core.device = device

	actualDeviceExtensions, err := DeviceExtensions(device.selected_device)
	orPanic(err)
	deviceExtensions, missing := checkExisting(actualDeviceExtensions, opts.DeviceExtensions)
	if missing > 0 {
		log.Warn("vulkan: missing required device extensions", "missing", missing)
	}

	if err := core.createDevice(deviceExtensions); err != nil {
		core.Destroy()
		return nil, err
	}
	log.Info("vulkan: device ready", "gpu", device.name, "sparse_queue_family", device.sparse_queue_family)
	return core, nil
}

// Device returns the logical device wrapper.
func (core *CoreInstance) Device() *CoreDevice { return core.device }

func (core *CoreInstance) selectDevice() (*CoreDevice, error) {
	var gpuCount uint32
	ret := vk.EnumeratePhysicalDevices(core.instance, &gpuCount, nil)
	if isError(ret) {
		return nil, NewError(ret)
	}
	if gpuCount == 0 {
		return nil, errors.New("vulkan error: no GPU devices found")
	}
	gpus := make([]vk.PhysicalDevice, gpuCount)
	ret = vk.EnumeratePhysicalDevices(core.instance, &gpuCount, gpus)
	if isError(ret) {
		return nil, NewError(ret)
	}

	for _, gpu := range gpus {
		var features vk.PhysicalDeviceFeatures
		vk.GetPhysicalDeviceFeatures(gpu, &features)
		features.Deref()
		if features.SparseBinding != vk.True || features.SparseResidencyImage2D != vk.True {
			continue
		}
		queues := NewCoreQueue(gpu)
		if queues == nil {
			continue
		}
		family, err := queues.FindSparseQueue()
		if err != nil {
			continue
		}

		d := &CoreDevice{
			physical_devices:    gpus,
			selected_device:     gpu,
			queues:              queues,
			sparse_queue_family: family,
		}
		vk.GetPhysicalDeviceProperties(gpu, &d.selected_device_properties)
		d.selected_device_properties.Deref()
		vk.GetPhysicalDeviceMemoryProperties(gpu, &d.selected_device_memory_properties)
		d.selected_device_memory_properties.Deref()
		d.name = vk.ToString(d.selected_device_properties.DeviceName[:])
		return d, nil
	}
	return nil, errors.New("vulkan error: no GPU supports sparse residency for 2D images")
}

func (core *CoreInstance) createDevice(extensions []string) error {
	d := core.device
	queueInfos := d.queues.GetCreateInfos(d.sparse_queue_family)

	ret := vk.CreateDevice(d.selected_device, &vk.DeviceCreateInfo{
		SType:                   vk.StructureTypeDeviceCreateInfo,
		QueueCreateInfoCount:    uint32(len(queueInfos)),
		PQueueCreateInfos:       queueInfos,
		EnabledExtensionCount:   uint32(len(extensions)),
		PpEnabledExtensionNames: extensions,
		EnabledLayerCount:       uint32(len(core.layers)),
		PpEnabledLayerNames:     core.layers,
		PEnabledFeatures: []vk.PhysicalDeviceFeatures{{
			SparseBinding:          vk.True,
			SparseResidencyImage2D: vk.True,
		}},
	}, nil, &d.handle)
	if isError(ret) {
		if ret == vk.ErrorFeatureNotPresent || ret == vk.ErrorExtensionNotPresent {
			return errors.Wrap(NewError(ret), "sparse residency or an extension is not available on the device")
		}
		return NewError(ret)
	}

	var queue vk.Queue
	vk.GetDeviceQueue(d.handle, d.sparse_queue_family, 0, &queue)
	d.sparse_queue = queue
	return nil
}

// Destroy waits for the device to go idle and tears everything down.
func (core *CoreInstance) Destroy() {
	if core.device != nil && core.device.handle != nil {
		vk.DeviceWaitIdle(core.device.handle)
		core.device.Destroy()
		core.device.handle = nil
	}
	if core.debugCallback != vk.NullDebugReportCallback {
		vk.DestroyDebugReportCallback(core.instance, core.debugCallback, nil)
		core.debugCallback = vk.NullDebugReportCallback
	}
	if core.instance != nil {
		vk.DestroyInstance(core.instance, nil)
		core.instance = nil
	}
}

func dbgCallbackFunc(flags vk.DebugReportFlags, objectType vk.DebugReportObjectType,
	object uint64, location uint, messageCode int32, pLayerPrefix string,
	pMessage string, pUserData unsafe.Pointer) vk.Bool32 {

	log := vtex.Logger()
	switch {
	case flags&vk.DebugReportFlags(vk.DebugReportErrorBit) != 0:
		log.Error("vulkan: validation", "layer", pLayerPrefix, "code", messageCode, "message", pMessage)
	case flags&vk.DebugReportFlags(vk.DebugReportWarningBit) != 0,
		flags&vk.DebugReportFlags(vk.DebugReportPerformanceWarningBit) != 0:
		log.Warn("vulkan: validation", "layer", pLayerPrefix, "code", messageCode, "message", pMessage)
	default:
		log.Debug("vulkan: validation", "layer", pLayerPrefix, "code", messageCode, "message", pMessage)
	}
	return vk.Bool32(vk.False)
}
