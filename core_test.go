package vtstream

import (
	"context"
	"os"
	"runtime"
	"testing"

	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	vk "github.com/vulkan-go/vulkan"
	lin "github.com/xlab/linmath"
)

const (
	WIDTH  = 500
	HEIGHT = 500
)

// TestStreamingCore needs a display and a GPU with sparse residency.
// Set VTSTREAM_GPU=1 to run it.
func TestStreamingCore(t *testing.T) {
	if os.Getenv("VTSTREAM_GPU") == "" {
		t.Skip("VTSTREAM_GPU not set")
	}

	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	if err := glfw.Init(); err != nil {
		t.Skipf("glfw: %v", err)
	}
	defer glfw.Terminate()
	if !glfw.VulkanSupported() {
		t.Skip("no Vulkan loader")
	}

	glfw.WindowHint(glfw.Visible, glfw.False)
	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	require.NoError(t, vk.Init())

	window, err := glfw.CreateWindow(WIDTH, HEIGHT, "vtstream test", nil, nil)
	require.NoError(t, err)
	defer window.Destroy()

	usage := NewUsage(STREAMING, 4)
	usage.Int_props["TextureWidth"] = 2048
	usage.Int_props["TextureHeight"] = 2048
	usage.Int_props["MipLevels"] = 4
	usage.Int_props["TileRows"] = 8
	usage.Int_props["TileColumns"] = 8
	usage.Int_props["Workers"] = 2

	core, err := NewCoreFromUsage("vtstream test", NewCoreDisplay(window), usage)
	if err != nil {
		t.Skipf("sparse residency unavailable: %v", err)
	}

	ctx := context.Background()
	before := core.Stats()
	assert.Positive(t, before.Fixed)
	assert.Equal(t, before.Fixed, before.Resident)

	camera := NewCamera(lin.Vec3{0, 0, 1.5})
	var loaded int
	for i := 0; i < 4; i++ {
		report, err := core.Frame(ctx, camera)
		require.NoError(t, err)
		loaded += len(report.Loaded)
		camera.Orbit(0.1)
	}
	assert.Positive(t, loaded)
	assert.Greater(t, core.Stats().Resident, before.Resident)

	require.NoError(t, core.Destroy(ctx))
}
