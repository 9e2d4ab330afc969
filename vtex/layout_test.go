package vtex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLayout4096(t *testing.T) {
	l, err := NewLayout(4096, 4096, 128, 128, 5)
	require.NoError(t, err)

	wantPages := []int{1024, 256, 64, 16, 4}
	wantBase := []int{0, 1024, 1280, 1344, 1360}
	for i, lvl := range l.Levels {
		assert.Equal(t, wantPages[i], lvl.PageCount, "level %d pages", i)
		assert.Equal(t, wantBase[i], lvl.BaseIndex, "level %d base", i)
		assert.Equal(t, uint32(4096>>i), lvl.Width)
	}
	assert.Equal(t, 32, l.Levels[0].Rows)
	assert.Equal(t, 32, l.Levels[0].Columns)
	assert.Equal(t, 1364, l.TotalPages)
}

func TestLayoutRunningSums(t *testing.T) {
	cases := []struct {
		w, h, bw, bh, levels uint32
	}{
		{4096, 4096, 128, 128, 5},
		{1000, 300, 128, 64, 10},
		{1, 1, 128, 128, 3},
		{8192, 2048, 256, 128, 14},
		{513, 257, 32, 32, 1},
	}
	for _, tc := range cases {
		l, err := NewLayout(tc.w, tc.h, tc.bw, tc.bh, tc.levels)
		require.NoError(t, err)

		sum := 0
		for i, lvl := range l.Levels {
			assert.Equal(t, sum, lvl.BaseIndex, "%v level %d", tc, i)
			assert.GreaterOrEqual(t, lvl.Width, uint32(1))
			assert.GreaterOrEqual(t, lvl.Height, uint32(1))
			sum += lvl.PageCount
		}
		assert.Equal(t, sum, l.TotalPages)
		assert.Equal(t, 0, l.Levels[0].BaseIndex)
	}
}

func TestLayoutRejectsZero(t *testing.T) {
	_, err := NewLayout(0, 16, 8, 8, 1)
	assert.Error(t, err)
	_, err = NewLayout(16, 16, 0, 8, 1)
	assert.Error(t, err)
	_, err = NewLayout(16, 16, 8, 8, 0)
	assert.Error(t, err)
}

func TestMipLevelOfTotal(t *testing.T) {
	l, err := NewLayout(1000, 300, 128, 64, 10)
	require.NoError(t, err)

	for page := 0; page < l.TotalPages; page++ {
		mip := l.MipLevelOf(page)
		claims := 0
		for _, lvl := range l.Levels {
			if lvl.Contains(page) {
				claims++
			}
		}
		require.Equal(t, 1, claims, "page %d", page)
		require.True(t, l.Levels[mip].Contains(page), "page %d resolved to %d", page, mip)
	}
}

func TestMipLevelOfPanicsOutsideChain(t *testing.T) {
	l, err := NewLayout(256, 256, 128, 128, 2)
	require.NoError(t, err)

	assert.Panics(t, func() { l.MipLevelOf(l.TotalPages) })
	assert.Panics(t, func() { l.MipLevelOf(-1) })
}

func TestLocateRoundTrip(t *testing.T) {
	l, err := NewLayout(4096, 4096, 128, 128, 5)
	require.NoError(t, err)

	mip, row, col := l.Locate(42)
	assert.Equal(t, 0, mip)
	assert.Equal(t, 1, row)
	assert.Equal(t, 10, col)

	for page := 0; page < l.TotalPages; page++ {
		mip, row, col := l.Locate(page)
		require.Equal(t, page, l.PageIndex(mip, row, col))
	}
}

func TestRegionClipsEdgePages(t *testing.T) {
	l, err := NewLayout(300, 200, 128, 128, 1)
	require.NoError(t, err)
	require.Equal(t, 3, l.Levels[0].Columns)
	require.Equal(t, 2, l.Levels[0].Rows)

	r := l.Region(l.PageIndex(0, 1, 2))
	assert.Equal(t, Region{Mip: 0, X: 256, Y: 128, Width: 44, Height: 72}, r)

	r = l.Region(0)
	assert.Equal(t, Region{Width: 128, Height: 128}, r)
}
