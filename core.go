package vtstream

import (
	"context"
	"runtime"

	"github.com/andewx/vtstream/vtex"
	"github.com/cockroachdb/errors"
)

// Core streams one sparse resident texture viewed through a glfw window.
// It owns the Vulkan instance and device, the sparse image and the
// scheduler keeping the image's residency in step with the camera.
type Core struct {
	name      string
	display   *CoreDisplay
	instance  *CoreInstance
	image     *SparseImage
	binder    *SparseDevice
	scheduler *vtex.Scheduler
	cfg       vtex.Config
}

// NewCoreFromUsage builds the streaming core from a usage chain.
// Bool_props[VALIDATE] enables validation layers and the debug report
// callback.
func NewCoreFromUsage(name string, display *CoreDisplay, usage *Usage) (*Core, error) {
	cfg, err := usage.StreamConfig()
	if err != nil {
		return nil, errors.Wrap(err, "stream config")
	}
	return NewCore(name, display, cfg, usage.Bool_props[VALIDATE])
}

// NewCore builds the streaming core for display.
func NewCore(name string, display *CoreDisplay, cfg vtex.Config, validate bool) (*Core, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	opts := InstanceOptions{
		AppName:            name,
		InstanceExtensions: display.RequiredInstanceExtensions(),
		Debug:              validate,
	}
	if validate {
		opts.InstanceExtensions = append(opts.InstanceExtensions, "VK_EXT_debug_report")
		opts.ValidationLayers = []string{"VK_LAYER_KHRONOS_validation"}
	}
	if runtime.GOOS == "darwin" {
		opts.Portability = true
		opts.InstanceExtensions = append(opts.InstanceExtensions, "VK_KHR_portability_enumeration")
		opts.DeviceExtensions = append(opts.DeviceExtensions, "VK_KHR_portability_subset")
	}

	core := &Core{name: name, display: display, cfg: cfg}
	var err error
	core.instance, err = NewCoreInstance(opts)
	if err != nil {
		return nil, err
	}
	if err := core.init(); err != nil {
		core.destroyVulkan()
		return nil, err
	}
	return core, nil
}

func (core *Core) init() error {
	device := core.instance.Device()

	var err error
	core.image, err = NewSparseImage(device, core.cfg.TextureWidth, core.cfg.TextureHeight, core.cfg.MipLevels)
	if err != nil {
		return errors.Wrap(err, "creating sparse image")
	}
	core.binder = NewSparseDevice(device, core.image.Handle())

	if _, err := core.image.BindMipTail(core.binder); err != nil {
		return err
	}

	caps, err := core.image.Capabilities()
	if err != nil {
		return err
	}
	cfg := core.cfg
	cfg.BytesPerTexel = core.image.BytesPerTexel()
	cfg.MipLevels = core.image.PagedLevels()
	if cfg.MipLevels == 0 {
		return errors.Newf("texture %dx%d fits entirely in the mip tail", cfg.TextureWidth, cfg.TextureHeight)
	}
	cfg.FixedMipLevels = min(cfg.FixedMipLevels, int(cfg.MipLevels))

	core.scheduler, err = vtex.NewScheduler(core.binder, cfg, caps)
	if err != nil {
		return err
	}
	core.cfg = cfg
	return nil
}

// Config returns the configuration the scheduler runs with.
func (core *Core) Config() vtex.Config { return core.cfg }

// Scheduler returns the residency scheduler.
func (core *Core) Scheduler() *vtex.Scheduler { return core.scheduler }

// Frame re-estimates residency for the camera and binds or unbinds pages.
// A minimized window leaves residency untouched.
func (core *Core) Frame(ctx context.Context, camera Camera) (vtex.FrameReport, error) {
	if core.display.Refresh() {
		vtex.Logger().Debug("vtstream: framebuffer resized",
			"width", core.display.Extent().Width, "height", core.display.Extent().Height)
	}
	screen := core.display.Extent()
	if screen.Width == 0 || screen.Height == 0 {
		return vtex.FrameReport{}, nil
	}
	mvp := camera.ViewProjection(core.display.Aspect())
	return core.scheduler.Update(ctx, &mvp, screen)
}

// Stats reports residency across the page table.
func (core *Core) Stats() vtex.Stats { return core.scheduler.Stats() }

// Destroy unbinds and frees every page, then destroys the image, device and
// instance.
func (core *Core) Destroy(ctx context.Context) error {
	var err error
	if core.scheduler != nil {
		err = core.scheduler.Close(ctx)
	}
	core.destroyVulkan()
	return err
}

func (core *Core) destroyVulkan() {
	if core.binder != nil {
		core.binder.WaitIdle()
		core.binder.Destroy()
		core.binder = nil
	}
	if core.image != nil {
		core.image.Destroy()
		core.image = nil
	}
	if core.instance != nil {
		core.instance.Destroy()
		core.instance = nil
	}
}
