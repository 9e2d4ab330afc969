package vtex

import (
	"context"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	lin "github.com/xlab/linmath"
)

// camera returns perspective * look-along in GL clip space.
func camera(eye, forward, up [3]float64, aspect float64) *lin.Mat4x4 {
	vec := func(v [3]float64) lin.Vec3 { return lin.Vec3{float32(v[0]), float32(v[1]), float32(v[2])} }
	e, u := vec(eye), vec(up)
	center := vec([3]float64{eye[0] + forward[0], eye[1] + forward[1], eye[2] + forward[2]})

	var proj, view, m lin.Mat4x4
	proj.Perspective(math.Pi/4, float32(aspect), 0.1, 100)
	view.LookAt(&e, &center, &u)
	m.Mult(&proj, &view)
	return &m
}

var (
	texture4k = Extent{Width: 4096, Height: 4096}
	screen1k  = Extent{Width: 1024, Height: 1024}
)

func estimate(t *testing.T, e *Estimator, mvp *lin.Mat4x4) ([]Tile, int) {
	t.Helper()
	require.NoError(t, e.Project(context.Background(), mvp, texture4k, screen1k))
	tiles := make([]Tile, e.rows*e.cols)
	d := e.Estimate(tiles)
	return tiles, d
}

func TestEstimatorMonotonicInDistance(t *testing.T) {
	e := NewEstimator(8, 8, 5, 1)
	distances := []float64{1.5, 2, 3, 4, 6, 8, 12, 16, 32}

	var prev []Tile
	var centre []int
	for _, d := range distances {
		tiles, _ := estimate(t, e, camera([3]float64{0, 0, d}, [3]float64{0, 0, -1}, [3]float64{0, 1, 0}, 1))
		require.True(t, tiles[3*8+3].OnScreen, "distance %v", d)
		centre = append(centre, tiles[3*8+3].Mip)

		for i := range tiles {
			if prev != nil && prev[i].OnScreen && tiles[i].OnScreen {
				assert.GreaterOrEqual(t, tiles[i].Mip, prev[i].Mip, "tile %d at distance %v", i, d)
			}
		}
		prev = tiles
	}
	assert.Equal(t, 2, centre[0])
	assert.Equal(t, 4, centre[len(centre)-1])
}

func TestEstimatorCloseUpNeedsFinest(t *testing.T) {
	e := NewEstimator(8, 8, 5, 1)
	// Tiles span 512 texels; at this distance the centre tiles cover more
	// than 512 pixels.
	tiles, _ := estimate(t, e, camera([3]float64{0, 0, 0.5}, [3]float64{0, 0, -1}, [3]float64{0, 1, 0}, 1))

	centre := tiles[3*8+3]
	require.True(t, centre.OnScreen)
	assert.Equal(t, 0, centre.Mip)
}

func TestEstimatorBehindCamera(t *testing.T) {
	e := NewEstimator(8, 8, 5, 1)
	tiles, d := estimate(t, e, camera([3]float64{0, 0, 3}, [3]float64{0, 0, 1}, [3]float64{0, 1, 0}, 1))

	for i, tile := range tiles {
		assert.False(t, tile.OnScreen, "tile %d", i)
	}
	assert.Zero(t, d)
}

func TestEstimatorOutsideFrustum(t *testing.T) {
	e := NewEstimator(8, 8, 5, 1)
	tiles, _ := estimate(t, e, camera([3]float64{100, 0, 3}, [3]float64{0, 0, -1}, [3]float64{0, 1, 0}, 1))

	for i, tile := range tiles {
		assert.False(t, tile.OnScreen, "tile %d", i)
	}
}

func TestEstimatorPartialView(t *testing.T) {
	e := NewEstimator(8, 8, 5, 1)
	// Looking at the right edge of the quad from close by: left tiles drop out.
	tiles, _ := estimate(t, e, camera([3]float64{1, 0, 1}, [3]float64{0, 0, -1}, [3]float64{0, 1, 0}, 1))

	assert.False(t, tiles[3*8+0].OnScreen)
	assert.True(t, tiles[3*8+7].OnScreen)
}

func TestEstimatorEdgeOnClampsToCoarsest(t *testing.T) {
	e := NewEstimator(8, 8, 5, 1)
	tiles, d := estimate(t, e, camera([3]float64{5, 0, 0}, [3]float64{-1, 0, 0}, [3]float64{0, 1, 0}, 1))

	onScreen := 0
	for i, tile := range tiles {
		if !tile.OnScreen {
			continue
		}
		onScreen++
		assert.Equal(t, 4, tile.Mip, "tile %d", i)
	}
	assert.Equal(t, 64, onScreen)
	assert.Equal(t, 64, d)
}

func TestEstimatorStraddlingCameraPlane(t *testing.T) {
	e := NewEstimator(8, 8, 5, 1)
	// Camera sits inside the quad's extent, looking down at a shallow angle,
	// so some mesh vertices are behind it.
	tiles, d := estimate(t, e, camera([3]float64{0, -0.5, 0.2}, [3]float64{0, 1, -0.2}, [3]float64{0, 0, 1}, 1))

	assert.Positive(t, d)
	for _, tile := range tiles {
		if tile.OnScreen {
			assert.GreaterOrEqual(t, tile.Mip, 0)
			assert.LessOrEqual(t, tile.Mip, 4)
		}
	}
}

func TestEstimatorWorkersMatchSerial(t *testing.T) {
	mvp := camera([3]float64{0.3, -1.2, 2.5}, [3]float64{-0.3, 1.2, -2.5}, [3]float64{0, 1, 0}, 16.0/9.0)

	serial, ds := estimate(t, NewEstimator(16, 16, 5, 1), mvp)
	parallel, dp := estimate(t, NewEstimator(16, 16, 5, 4), mvp)

	assert.Equal(t, serial, parallel)
	assert.Equal(t, ds, dp)
}

func TestEstimatorCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := NewEstimator(4, 4, 3, 2)
	mvp := camera([3]float64{0, 0, 3}, [3]float64{0, 0, -1}, [3]float64{0, 1, 0}, 1)
	assert.ErrorIs(t, e.Project(ctx, mvp, texture4k, screen1k), context.Canceled)
}
