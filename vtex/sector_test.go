package vtex

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestSectorPoolFillsFrontSector(t *testing.T) {
	dev := newFakeDevice()
	pool := NewSectorPool(dev, 64, 4, 0)

	seen := map[uint64]bool{}
	var first SectorID
	for page := 0; page < 4; page++ {
		a, err := pool.Acquire(page)
		require.NoError(t, err)
		if page == 0 {
			first = a.Sector
		}
		assert.Equal(t, first, a.Sector)
		assert.False(t, seen[a.Offset], "offset %d handed out twice", a.Offset)
		seen[a.Offset] = true
	}
	assert.Equal(t, 1, pool.Describe())
	assert.Equal(t, 1, dev.allocs)

	free, pages, ok := pool.SectorUsage(first)
	require.True(t, ok)
	assert.Zero(t, free)
	assert.Equal(t, []int{0, 1, 2, 3}, pages)
}

func TestSectorPoolFullSectorNeverSelected(t *testing.T) {
	dev := newFakeDevice()
	pool := NewSectorPool(dev, 64, 2, 0)

	a0, _ := pool.Acquire(0)
	a1, _ := pool.Acquire(1)
	a2, err := pool.Acquire(2)
	require.NoError(t, err)

	assert.Equal(t, a0.Sector, a1.Sector)
	assert.NotEqual(t, a0.Sector, a2.Sector)
	assert.Equal(t, 2, pool.Describe())
}

func TestSectorPoolReleasedOffsetIsReused(t *testing.T) {
	dev := newFakeDevice()
	pool := NewSectorPool(dev, 64, 2, 0)

	a0, _ := pool.Acquire(0)
	_, _ = pool.Acquire(1)
	a2, _ := pool.Acquire(2)
	_, _ = pool.Acquire(3)
	require.Equal(t, 2, pool.Describe())

	// Free a slot in the older sector, which is not at the front.
	pool.Release(0, a0)
	a4, err := pool.Acquire(4)
	require.NoError(t, err)
	assert.Equal(t, a0.Sector, a4.Sector)
	assert.Equal(t, a0.Offset, a4.Offset)
	assert.NotEqual(t, a2.Sector, a4.Sector)
	assert.Equal(t, 2, dev.allocs)
}

func TestSectorPoolPrefersMostFreeSlots(t *testing.T) {
	dev := newFakeDevice()
	pool := NewSectorPool(dev, 64, 4, 0)

	var allocs []Allocation
	for page := 0; page < 8; page++ {
		a, err := pool.Acquire(page)
		require.NoError(t, err)
		allocs = append(allocs, a)
	}
	older, newer := allocs[0].Sector, allocs[4].Sector

	pool.Release(4, allocs[4])
	pool.Release(0, allocs[0])
	pool.Release(1, allocs[1])

	a, err := pool.Acquire(8)
	require.NoError(t, err)
	assert.Equal(t, older, a.Sector)
	assert.Equal(t, uint64(0), a.Offset)

	free, _, _ := pool.SectorUsage(newer)
	assert.Equal(t, 1, free)
}

func TestSectorPoolFreesEmptySector(t *testing.T) {
	dev := newFakeDevice()
	pool := NewSectorPool(dev, 64, 4, 0)

	a0, _ := pool.Acquire(0)
	a1, _ := pool.Acquire(1)
	require.Equal(t, 1, pool.Describe())

	pool.Release(0, a0)
	assert.Equal(t, 1, pool.Describe())
	assert.Zero(t, dev.frees)

	pool.Release(1, a1)
	assert.Equal(t, 0, pool.Describe())
	assert.Equal(t, 1, dev.frees)
	assert.Empty(t, dev.live)

	_, _, ok := pool.SectorUsage(a0.Sector)
	assert.False(t, ok)

	// The lapsed ID is skipped and a fresh sector is allocated.
	a2, err := pool.Acquire(2)
	require.NoError(t, err)
	assert.NotEqual(t, a0.Sector, a2.Sector)
	assert.Equal(t, 1, pool.Describe())
}

func TestSectorPoolIgnoresDoubleRelease(t *testing.T) {
	dev := newFakeDevice()
	pool := NewSectorPool(dev, 64, 4, 0)

	a0, _ := pool.Acquire(0)
	_, _ = pool.Acquire(1)
	pool.Release(0, a0)
	pool.Release(0, a0)

	free, pages, ok := pool.SectorUsage(a0.Sector)
	require.True(t, ok)
	assert.Equal(t, 3, free)
	assert.Equal(t, []int{1}, pages)
}

func TestSectorPoolAllocationFailure(t *testing.T) {
	ctrl := gomock.NewController(t)
	dev := NewMockDevice(ctrl)
	dev.EXPECT().Allocate(uint64(64*8), uint32(3)).Return(nil, assert.AnError)

	pool := NewSectorPool(dev, 64, 8, 3)
	_, err := pool.Acquire(7)
	require.Error(t, err)
	assert.True(t, IsAllocationFailure(err))
	assert.ErrorIs(t, err, assert.AnError)
	assert.Zero(t, pool.Describe())
}
