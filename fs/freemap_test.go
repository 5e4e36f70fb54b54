package fs

import (
	"testing"

	bitmap "github.com/boljen/go-bitmap"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valbaum/slfs"
	"github.com/valbaum/slfs/blockdev"
)

func newTestFreeMap(geo slfs.Geometry, t *testing.T) *freeMap {
	t.Helper()

	dev, err := blockdev.NewMemory(geo.BlockSize, geo.TotalBlocks)
	require.NoError(t, err)

	m := newFreeMap(dev, geo)
	require.NoError(t, m.initialize())
	return m
}

func TestFreeMapInitializePolarity(t *testing.T) {
	geo := slfs.Geometry{BlockSize: 64, TotalBlocks: 64, InodeCount: 24, MaxOpenFiles: 5}
	m := newTestFreeMap(geo, t)

	// Metadata blocks are off the free list, every data block is on it.
	for index := 0; index < geo.TotalBlocks; index++ {
		free, err := m.isFree(index)
		require.NoError(t, err)
		assert.Equalf(t, index >= geo.DataStart(), free, "wrong bit for block %d", index)
	}

	count, err := m.countFree()
	require.NoError(t, err)
	assert.Equal(t, geo.TotalBlocks-geo.DataStart(), count)
}

func TestFreeMapFindFreeScanOrder(t *testing.T) {
	geo := slfs.Geometry{BlockSize: 64, TotalBlocks: 64, InodeCount: 24, MaxOpenFiles: 5}
	m := newTestFreeMap(geo, t)

	// The scanner returns the lowest index on the free list.
	index, err := m.findFree()
	require.NoError(t, err)
	assert.Equal(t, geo.DataStart(), index)

	require.NoError(t, m.markUsed(index))
	next, err := m.findFree()
	require.NoError(t, err)
	assert.Equal(t, index+1, next)

	// Releasing the first block makes it the scanner's answer again.
	require.NoError(t, m.markFree(index))
	again, err := m.findFree()
	require.NoError(t, err)
	assert.Equal(t, index, again)
}

func TestFreeMapExhaustion(t *testing.T) {
	geo := slfs.Geometry{BlockSize: 16, TotalBlocks: 20, InodeCount: 4, MaxOpenFiles: 1}
	m := newTestFreeMap(geo, t)

	for index := geo.DataStart(); index < geo.TotalBlocks; index++ {
		require.NoError(t, m.markUsed(index))
	}

	index, err := m.findFree()
	require.NoError(t, err)
	assert.Equal(t, -1, index, "an empty free list must yield -1")
}

func TestFreeMapIgnoresTailBits(t *testing.T) {
	// One 16-byte bitmap block covers 128 bits but the device only has 20
	// blocks. Set bits past the device's end must never be returned.
	geo := slfs.Geometry{BlockSize: 16, TotalBlocks: 20, InodeCount: 4, MaxOpenFiles: 1}
	m := newTestFreeMap(geo, t)

	for index := geo.DataStart(); index < geo.TotalBlocks; index++ {
		require.NoError(t, m.markUsed(index))
	}

	bits, err := m.dev.ReadBlock(geo.BitmapStart())
	require.NoError(t, err)
	bitmap.Bitmap(bits).Set(25, true)
	require.NoError(t, m.dev.WriteBlock(geo.BitmapStart(), bits))

	index, err := m.findFree()
	require.NoError(t, err)
	assert.Equal(t, -1, index, "tail bits past the device end are not candidates")
}

func TestFreeMapBounds(t *testing.T) {
	geo := slfs.Geometry{BlockSize: 16, TotalBlocks: 20, InodeCount: 4, MaxOpenFiles: 1}
	m := newTestFreeMap(geo, t)

	assert.ErrorIs(t, m.markUsed(-1), slfs.ErrOutOfRange)
	assert.ErrorIs(t, m.markUsed(geo.TotalBlocks), slfs.ErrOutOfRange)
	assert.ErrorIs(t, m.markFree(geo.TotalBlocks), slfs.ErrOutOfRange)

	_, err := m.isFree(-1)
	assert.ErrorIs(t, err, slfs.ErrOutOfRange)
}

func TestFreeMapBitPlacement(t *testing.T) {
	// Bit k lives at byte k/8 of its bitmap block, LSB first.
	geo := slfs.Geometry{BlockSize: 64, TotalBlocks: 64, InodeCount: 24, MaxOpenFiles: 5}
	m := newTestFreeMap(geo, t)

	bits, err := m.dev.ReadBlock(geo.BitmapStart())
	require.NoError(t, err)

	// Data blocks start at 8, so byte 0 (blocks 0..7) is clear and byte 1
	// (blocks 8..15) is fully set.
	assert.EqualValues(t, 0x00, bits[0])
	assert.EqualValues(t, 0xFF, bits[1])

	require.NoError(t, m.markUsed(10))
	bits, err = m.dev.ReadBlock(geo.BitmapStart())
	require.NoError(t, err)
	assert.EqualValues(t, 0xFF&^(1<<2), bits[1], "block 10 is bit 2 of byte 1")
}
