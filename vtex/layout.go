package vtex

import (
	"sort"

	"github.com/cockroachdb/errors"
)

// MipLevel describes one level of the texture's mip chain and where its pages
// start in the flattened page array.
type MipLevel struct {
	Width  uint32
	Height uint32
	// Rows and Columns of the page grid, rounded up to whole blocks.
	Rows      int
	Columns   int
	PageCount int
	BaseIndex int
}

// Contains reports whether the flattened page index belongs to this level.
func (m MipLevel) Contains(page int) bool {
	return page >= m.BaseIndex && page < m.BaseIndex+m.PageCount
}

// Layout is the page geometry of a full mip chain, finest level first.
type Layout struct {
	Levels      []MipLevel
	BlockWidth  uint32
	BlockHeight uint32
	TotalPages  int
}

// NewLayout computes the page grid of every mip level. Dimensions halve per
// level and never drop below one texel.
func NewLayout(baseWidth, baseHeight, blockWidth, blockHeight, mipLevels uint32) (*Layout, error) {
	if baseWidth == 0 || baseHeight == 0 {
		return nil, errors.Newf("base extent %dx%d must be non-zero", baseWidth, baseHeight)
	}
	if blockWidth == 0 || blockHeight == 0 {
		return nil, errors.Newf("block granularity %dx%d must be non-zero", blockWidth, blockHeight)
	}
	if mipLevels == 0 {
		return nil, errors.New("mip chain needs at least one level")
	}

	l := &Layout{
		Levels:      make([]MipLevel, mipLevels),
		BlockWidth:  blockWidth,
		BlockHeight: blockHeight,
	}

	w, h := baseWidth, baseHeight
	for i := range l.Levels {
		rows := int((h + blockHeight - 1) / blockHeight)
		cols := int((w + blockWidth - 1) / blockWidth)
		l.Levels[i] = MipLevel{
			Width:     w,
			Height:    h,
			Rows:      rows,
			Columns:   cols,
			PageCount: rows * cols,
			BaseIndex: l.TotalPages,
		}
		l.TotalPages += rows * cols

		if w > 1 {
			w >>= 1
		}
		if h > 1 {
			h >>= 1
		}
	}
	return l, nil
}

// MipLevelOf resolves a flattened page index to its mip level. An index that
// no level claims means the layout itself is broken, so it panics.
func (l *Layout) MipLevelOf(page int) int {
	i := sort.Search(len(l.Levels), func(i int) bool {
		lvl := l.Levels[i]
		return page < lvl.BaseIndex+lvl.PageCount
	})
	if i == len(l.Levels) || !l.Levels[i].Contains(page) {
		panic(errors.AssertionFailedf("page %d outside mip chain of %d pages", page, l.TotalPages))
	}
	return i
}

// Locate returns the mip level, row and column of a page.
func (l *Layout) Locate(page int) (mip, row, col int) {
	mip = l.MipLevelOf(page)
	lvl := l.Levels[mip]
	local := page - lvl.BaseIndex
	return mip, local / lvl.Columns, local % lvl.Columns
}

// PageIndex is the inverse of Locate.
func (l *Layout) PageIndex(mip, row, col int) int {
	lvl := l.Levels[mip]
	return lvl.BaseIndex + row*lvl.Columns + col
}

// Region returns the texel rectangle a page covers. Pages on the right and
// bottom edge are clipped to the level's extent.
func (l *Layout) Region(page int) Region {
	mip, row, col := l.Locate(page)
	lvl := l.Levels[mip]

	x := uint32(col) * l.BlockWidth
	y := uint32(row) * l.BlockHeight
	return Region{
		Mip:    uint32(mip),
		X:      x,
		Y:      y,
		Width:  min(l.BlockWidth, lvl.Width-x),
		Height: min(l.BlockHeight, lvl.Height-y),
	}
}
