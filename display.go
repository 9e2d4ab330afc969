package vtstream

import (
	"github.com/andewx/vtstream/vtex"
	"github.com/go-gl/glfw/v3.3/glfw"
)

// CoreDisplay tracks the window the streamed texture is viewed through.
type CoreDisplay struct {
	window *glfw.Window
	extent vtex.Extent
}

// NewCoreDisplay wraps window and reads its current framebuffer size.
func NewCoreDisplay(window *glfw.Window) *CoreDisplay {
	core := &CoreDisplay{window: window}
	core.Refresh()
	return core
}

// Refresh re-reads the framebuffer size and reports whether it changed.
func (core *CoreDisplay) Refresh() bool {
	w, h := core.window.GetFramebufferSize()
	extent := vtex.Extent{Width: uint32(max(w, 0)), Height: uint32(max(h, 0))}
	changed := extent != core.extent
	core.extent = extent
	return changed
}

// Extent returns the framebuffer size in pixels.
func (core *CoreDisplay) Extent() vtex.Extent { return core.extent }

// Aspect returns width over height, or 1 for a minimized window.
func (core *CoreDisplay) Aspect() float32 {
	if core.extent.Height == 0 {
		return 1
	}
	return float32(core.extent.Width) / float32(core.extent.Height)
}

// RequiredInstanceExtensions lists the instance extensions glfw needs.
func (core *CoreDisplay) RequiredInstanceExtensions() []string {
	return core.window.GetRequiredInstanceExtensions()
}
