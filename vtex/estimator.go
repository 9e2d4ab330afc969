package vtex

import (
	"context"
	"math"

	lin "github.com/xlab/linmath"
	"golang.org/x/sync/errgroup"
)

const (
	// clip w at or below this is treated as behind the camera
	behindEpsilon = 1e-6
	// screen area in pixels² below which a tile's projection is degenerate
	degenerateArea = 1e-6
	// absorbs rounding when density is an exact power of two
	mipEpsilon = 1e-9
)

type vertex struct {
	// clip space
	x, y, w float64
	// screen space, valid only when in front of the camera
	sx, sy float64
}

func (v vertex) behind() bool { return v.w <= behindEpsilon }

// Estimator projects a (rows+1) x (cols+1) mesh laid over the texture onto
// the viewport and derives the mip level each tile needs.
//
// The texture covers the model space quad x, y in [-1, 1] at z = 0. Vertex
// (r, c) sits at UV (c/cols, r/rows).
type Estimator struct {
	rows      int
	cols      int
	mipLevels int
	workers   int

	texture Extent
	screen  Extent

	mesh [][]vertex
	// rowEdges[r][c] is the screen length of the horizontal edge from vertex
	// (r, c) to (r, c+1); colEdges[c][r] the vertical edge from (r, c) to
	// (r+1, c). Adjacent tiles share them. Negative means unmeasurable.
	rowEdges [][]float64
	colEdges [][]float64
}

// NewEstimator allocates the mesh and axis tables for a tile grid.
func NewEstimator(tileRows, tileCols, mipLevels, workers int) *Estimator {
	e := &Estimator{
		rows:      tileRows,
		cols:      tileCols,
		mipLevels: mipLevels,
		workers:   max(workers, 1),
		mesh:      make([][]vertex, tileRows+1),
		rowEdges:  make([][]float64, tileRows+1),
		colEdges:  make([][]float64, tileCols+1),
	}
	for r := range e.mesh {
		e.mesh[r] = make([]vertex, tileCols+1)
		e.rowEdges[r] = make([]float64, tileCols)
	}
	for c := range e.colEdges {
		e.colEdges[c] = make([]float64, tileRows)
	}
	return e
}

// Project transforms the mesh by mvp and rebuilds the axis tables. Rows are
// spread over the configured workers; every row writes only its own slots.
func (e *Estimator) Project(ctx context.Context, mvp *lin.Mat4x4, texture, screen Extent) error {
	e.texture, e.screen = texture, screen

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for r := range e.mesh {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			e.projectRow(mvp, r)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	g, gctx = errgroup.WithContext(ctx)
	g.SetLimit(e.workers)
	for r := range e.rowEdges {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for c := range e.rowEdges[r] {
				e.rowEdges[r][c] = edge(e.mesh[r][c], e.mesh[r][c+1])
			}
			return nil
		})
	}
	for c := range e.colEdges {
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			for r := range e.colEdges[c] {
				e.colEdges[c][r] = edge(e.mesh[r][c], e.mesh[r+1][c])
			}
			return nil
		})
	}
	return g.Wait()
}

func (e *Estimator) projectRow(mvp *lin.Mat4x4, r int) {
	v := float64(r) / float64(e.rows)
	for c := range e.mesh[r] {
		u := float64(c) / float64(e.cols)
		x, y, _, w := transform(mvp, 2*u-1, 2*v-1, 0)

		vx := vertex{x: x, y: y, w: w}
		if !vx.behind() {
			vx.sx = (x/w + 1) * 0.5 * float64(e.screen.Width)
			vx.sy = (y/w + 1) * 0.5 * float64(e.screen.Height)
		}
		e.mesh[r][c] = vx
	}
}

// transform multiplies the column-major m by (x, y, z, 1) in float64,
// which linmath's float32 Vec4 product would not.
func transform(m *lin.Mat4x4, x, y, z float64) (cx, cy, cz, cw float64) {
	in := [4]float64{x, y, z, 1}
	var out [4]float64
	for i := 0; i < 4; i++ {
		for j := 0; j < 4; j++ {
			out[j] += float64(m[i][j]) * in[i]
		}
	}
	return out[0], out[1], out[2], out[3]
}

func edge(a, b vertex) float64 {
	if a.behind() || b.behind() {
		return -1
	}
	return math.Hypot(b.sx-a.sx, b.sy-a.sy)
}

// Estimate writes the required tile table into out, which must hold
// rows*cols entries, and returns how many on-screen tiles were degenerate.
func (e *Estimator) Estimate(out []Tile) (degenerate int) {
	for r := 0; r < e.rows; r++ {
		for c := 0; c < e.cols; c++ {
			t, d := e.TileMip(r, c)
			out[r*e.cols+c] = t
			if d {
				degenerate++
			}
		}
	}
	return degenerate
}

// TileMip computes the requirement of a single tile. degenerate is true when
// the tile is on screen but its footprint could not be measured, in which
// case the coarsest level is returned.
func (e *Estimator) TileMip(r, c int) (t Tile, degenerate bool) {
	corners := [4]vertex{e.mesh[r][c], e.mesh[r][c+1], e.mesh[r+1][c+1], e.mesh[r+1][c]}
	if !e.visible(corners) {
		return Tile{}, false
	}
	coarsest := Tile{OnScreen: true, Mip: e.mipLevels - 1}

	top, bottom := e.rowEdges[r][c], e.rowEdges[r+1][c]
	left, right := e.colEdges[c][r], e.colEdges[c+1][r]
	if top < 0 || bottom < 0 || left < 0 || right < 0 {
		return coarsest, true
	}

	pixW, pixH := max(top, bottom), max(left, right)
	if !(pixW > 0) || !(pixH > 0) || area(corners) <= degenerateArea {
		return coarsest, true
	}

	texelW := float64(e.texture.Width) / float64(e.cols)
	texelH := float64(e.texture.Height) / float64(e.rows)
	density := max(texelW/pixW, texelH/pixH)
	if math.IsInf(density, 0) || math.IsNaN(density) {
		return coarsest, true
	}

	mip := 0
	if density > 1 {
		mip = int(math.Ceil(math.Log2(density) - mipEpsilon))
	}
	return Tile{OnScreen: true, Mip: min(max(mip, 0), e.mipLevels-1)}, false
}

// visible is false when every corner is behind the camera or every corner
// lies outside the same side of the view volume.
func (e *Estimator) visible(corners [4]vertex) bool {
	behind := 0
	var left, right, below, above int
	for _, v := range corners {
		if v.behind() {
			behind++
			continue
		}
		switch {
		case v.x < -v.w:
			left++
		case v.x > v.w:
			right++
		}
		switch {
		case v.y < -v.w:
			below++
		case v.y > v.w:
			above++
		}
	}
	if behind == len(corners) {
		return false
	}
	if behind > 0 {
		return true
	}
	n := len(corners)
	return left != n && right != n && below != n && above != n
}

// area is the absolute screen area of the quad spanned by the corners.
func area(q [4]vertex) float64 {
	var s float64
	for i := range q {
		j := (i + 1) % len(q)
		s += q[i].sx*q[j].sy - q[j].sx*q[i].sy
	}
	return math.Abs(s) / 2
}
