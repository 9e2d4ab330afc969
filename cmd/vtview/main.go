// Command vtview opens a window, streams a sparse resident texture mapped on
// a quad and orbits a camera around it, reporting residency in the title.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"runtime"
	"strings"
	"time"

	"github.com/andewx/vtstream"
	"github.com/andewx/vtstream/vtex"
	"github.com/cockroachdb/errors"
	"github.com/go-gl/glfw/v3.3/glfw"
	vk "github.com/vulkan-go/vulkan"
	lin "github.com/xlab/linmath"
)

func init() {
	runtime.LockOSThread()
}

func main() {
	var (
		configPath = flag.String("config", "", "JSON stream configuration; flags below are ignored when set")
		logPath    = flag.String("log", "vtview.log", "log file, written alongside stderr")
		tiles      = flag.Int("tiles", 16, "tile grid rows and columns")
		workers    = flag.Int("workers", runtime.NumCPU(), "goroutines projecting the tile mesh")
		policy     = flag.String("policy", string(vtex.ReleaseOnFence), "memory release policy: fence or idle")
		validate   = flag.Bool("validate", false, "enable Vulkan validation layers")
		orbit      = flag.Float64("orbit", 0.3, "camera orbit speed in radians per second")
	)
	flag.Parse()

	usage := vtstream.NewUsage(vtstream.STREAMING, 8)
	usage.Int_props["TileRows"] = *tiles
	usage.Int_props["TileColumns"] = *tiles
	usage.Int_props["Workers"] = *workers
	usage.String_props["ReleasePolicy"] = *policy
	usage.Bool_props[vtstream.VALIDATE] = *validate

	cfg, err := usage.StreamConfig()
	if *configPath != "" {
		cfg, err = vtex.LoadConfig(*configPath)
	}
	if err != nil {
		fmt.Fprintln(os.Stderr, "vtview:", err)
		os.Exit(2)
	}

	logFile := initLogger(*logPath, cfg.LogLevel)
	defer logFile.Close()

	if err := glfw.Init(); err != nil {
		vtstream.Fatal(err)
	}
	defer glfw.Terminate()
	if !glfw.VulkanSupported() {
		vtstream.Fatal(errors.New("vtview: glfw reports no Vulkan loader"))
	}
	vk.SetGetInstanceProcAddr(glfw.GetVulkanGetInstanceProcAddress())
	if err := vk.Init(); err != nil {
		vtstream.Fatal(err)
	}

	glfw.WindowHint(glfw.ClientAPI, glfw.NoAPI)
	window, err := glfw.CreateWindow(1280, 720, "vtview", nil, nil)
	if err != nil {
		vtstream.Fatal(err)
	}
	defer window.Destroy()

	display := vtstream.NewCoreDisplay(window)
	core, err := vtstream.NewCore("vtview", display, cfg, *validate)
	if err != nil {
		vtstream.Fatal(err, window.Destroy, glfw.Terminate)
	}

	camera := vtstream.NewCamera(lin.Vec3{0, 0.8, 2.5})
	window.SetScrollCallback(func(_ *glfw.Window, _, yoff float64) {
		if yoff > 0 {
			camera.Dolly(0.9)
		} else if yoff < 0 {
			camera.Dolly(1.1)
		}
	})

	ctx := context.Background()
	last := time.Now()
	var frames int
	for !window.ShouldClose() {
		glfw.PollEvents()

		now := time.Now()
		camera.Orbit(float32(*orbit * now.Sub(last).Seconds()))
		last = now

		report, err := core.Frame(ctx, camera)
		if err != nil {
			if !vtex.IsAllocationFailure(err) {
				vtstream.Fatal(err, func() { core.Destroy(ctx) })
			}
			slog.Warn("vtview: frame hit an allocation failure", "error", err)
		}
		if len(report.Loaded) > 0 || len(report.Evicted) > 0 {
			slog.Debug("vtview: residency changed", "frame", report.Frame,
				"loaded", len(report.Loaded), "evicted", len(report.Evicted),
				"failed", len(report.Failed), "released", report.Released)
		}

		if frames++; frames%30 == 0 {
			st := core.Stats()
			window.SetTitle(fmt.Sprintf("vtview | resident %d | evicting %d | waiting %d | sectors %d",
				st.Resident, st.PendingEvict, st.Waiting, st.Sectors))
		}
	}

	if err := core.Destroy(ctx); err != nil {
		slog.Error("vtview: shutdown", "error", err)
	}
}

// initLogger logs to stderr and the file at path, and hands the logger to
// vtex.
func initLogger(path, level string) io.Closer {
	file, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0666)
	if err != nil {
		panic(err)
	}

	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(strings.ToUpper(level))); err != nil {
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(io.MultiWriter(os.Stderr, file), &slog.HandlerOptions{
		Level: lvl,
	}))
	slog.SetDefault(logger)
	vtex.SetLogger(logger)
	return file
}
