package fs

import (
	"fmt"

	bitmap "github.com/boljen/go-bitmap"
	"github.com/valbaum/slfs"
	"github.com/valbaum/slfs/blockdev"
)

// freeMap maintains the free-block bitmap region of the device. Bit k lives
// at byte k/8 of bitmap block k/(8*B), LSB first.
//
// The polarity is inherited from the reference system and is the inverse of
// the usual convention: a SET bit means the block is on the free list and
// will be returned by findFree. Allocating a block clears its bit; releasing
// it sets the bit again. Metadata blocks are never on the free list.
type freeMap struct {
	dev *blockdev.Device
	geo slfs.Geometry
}

func newFreeMap(dev *blockdev.Device, geo slfs.Geometry) *freeMap {
	return &freeMap{dev: dev, geo: geo}
}

// bitsPerBlock returns how many block indices one bitmap block covers.
func (m *freeMap) bitsPerBlock() int {
	return m.geo.BlockSize * 8
}

// initialize rewrites the bitmap region so that exactly the data blocks are
// on the free list. Bits past TotalBlocks in the last bitmap block are left
// clear; findFree never considers them either way.
func (m *freeMap) initialize() error {
	for relative := 0; relative < m.geo.BitmapBlocks(); relative++ {
		bits := bitmap.NewSlice(m.bitsPerBlock())
		blockBits := bitmap.Bitmap(bits)

		first := relative * m.bitsPerBlock()
		for offset := 0; offset < m.bitsPerBlock(); offset++ {
			index := first + offset
			if index >= m.geo.DataStart() && index < m.geo.TotalBlocks {
				blockBits.Set(offset, true)
			}
		}

		err := m.dev.WriteBlock(m.geo.BitmapStart()+relative, bits)
		if err != nil {
			return err
		}
	}
	return nil
}

// locate maps a block index to its bitmap block and the bit offset within it.
func (m *freeMap) locate(index int) (bitmapBlock, bitOffset int) {
	return m.geo.BitmapStart() + index/m.bitsPerBlock(), index % m.bitsPerBlock()
}

func (m *freeMap) checkIndex(index int) error {
	if index < 0 || index >= m.geo.TotalBlocks {
		return slfs.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid block number: %d not in range [0, %d)",
				index,
				m.geo.TotalBlocks,
			),
		)
	}
	return nil
}

// findFree returns the lowest block index on the free list, or -1 if there
// is none. The scan walks bitmap blocks in order, bytes in order, bits LSB
// to MSB, and stops as soon as a bit position's computed index reaches
// TotalBlocks: the tail bits of the last bitmap block are never candidates.
func (m *freeMap) findFree() (int, error) {
	for relative := 0; relative < m.geo.BitmapBlocks(); relative++ {
		bits, err := m.dev.ReadBlock(m.geo.BitmapStart() + relative)
		if err != nil {
			return -1, err
		}

		blockBits := bitmap.Bitmap(bits)
		first := relative * m.bitsPerBlock()
		for offset := 0; offset < m.bitsPerBlock(); offset++ {
			if first+offset >= m.geo.TotalBlocks {
				return -1, nil
			}
			if blockBits.Get(offset) {
				return first + offset, nil
			}
		}
	}
	return -1, nil
}

// setBit rewrites a single bit through a read-modify-write of its bitmap
// block.
func (m *freeMap) setBit(index int, value bool) error {
	if err := m.checkIndex(index); err != nil {
		return err
	}

	bitmapBlock, bitOffset := m.locate(index)
	bits, err := m.dev.ReadBlock(bitmapBlock)
	if err != nil {
		return err
	}

	bitmap.Bitmap(bits).Set(bitOffset, value)
	return m.dev.WriteBlock(bitmapBlock, bits)
}

// markUsed takes a block off the free list.
func (m *freeMap) markUsed(index int) error {
	return m.setBit(index, false)
}

// markFree puts a block back on the free list.
func (m *freeMap) markFree(index int) error {
	return m.setBit(index, true)
}

// isFree reports whether a block is on the free list.
func (m *freeMap) isFree(index int) (bool, error) {
	if err := m.checkIndex(index); err != nil {
		return false, err
	}

	bitmapBlock, bitOffset := m.locate(index)
	bits, err := m.dev.ReadBlock(bitmapBlock)
	if err != nil {
		return false, err
	}
	return bitmap.Bitmap(bits).Get(bitOffset), nil
}

// countFree returns the number of blocks on the free list.
func (m *freeMap) countFree() (int, error) {
	count := 0
	for index := 0; index < m.geo.TotalBlocks; index++ {
		free, err := m.isFree(index)
		if err != nil {
			return 0, err
		}
		if free {
			count++
		}
	}
	return count, nil
}
