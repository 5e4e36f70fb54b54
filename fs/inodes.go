package fs

import (
	"fmt"

	"github.com/valbaum/slfs"
	"github.com/valbaum/slfs/blockdev"
)

// inodeTable reads and writes inode records in the table region of the
// device. Records are 16 bytes and packed end to end, so a record may
// straddle exactly two consecutive blocks; both are read and the record is
// extracted from, or spliced into, the pair. There is no caching: the
// authoritative copy of every inode is on the device.
type inodeTable struct {
	dev *blockdev.Device
	geo slfs.Geometry
}

func newInodeTable(dev *blockdev.Device, geo slfs.Geometry) *inodeTable {
	return &inodeTable{dev: dev, geo: geo}
}

func (t *inodeTable) checkIndex(index int) error {
	if index < 0 || index >= t.geo.InodeCount {
		return slfs.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid inode number: %d not in range [0, %d)",
				index,
				t.geo.InodeCount,
			),
		)
	}
	return nil
}

// span gives the device blocks covering inode `index` and the record's byte
// offset within the first of them.
func (t *inodeTable) span(index int) (firstBlock, offset int, straddles bool) {
	byteOffset := t.geo.InodesStart()*t.geo.BlockSize + index*slfs.InodeSize
	firstBlock = byteOffset / t.geo.BlockSize
	offset = byteOffset % t.geo.BlockSize
	straddles = offset+slfs.InodeSize > t.geo.BlockSize
	return
}

// readRecord returns the raw 16 bytes of inode `index`.
func (t *inodeTable) readRecord(index int) ([]byte, error) {
	firstBlock, offset, straddles := t.span(index)

	record, err := t.dev.ReadBlock(firstBlock)
	if err != nil {
		return nil, err
	}
	if !straddles {
		return record[offset : offset+slfs.InodeSize], nil
	}

	second, err := t.dev.ReadBlock(firstBlock + 1)
	if err != nil {
		return nil, err
	}
	tail := slfs.InodeSize - (t.geo.BlockSize - offset)
	return append(record[offset:], second[:tail]...), nil
}

// ReadInode decodes inode `index` from the device.
func (t *inodeTable) ReadInode(index int) (Inode, error) {
	if err := t.checkIndex(index); err != nil {
		return Inode{}, err
	}

	record, err := t.readRecord(index)
	if err != nil {
		return Inode{}, err
	}
	return DecodeInode(record)
}

// WriteInode encodes `ino` into the covering block or block pair via
// read-modify-write.
func (t *inodeTable) WriteInode(index int, ino Inode) error {
	if err := t.checkIndex(index); err != nil {
		return err
	}

	record := make([]byte, slfs.InodeSize)
	if err := EncodeInode(ino, record); err != nil {
		return err
	}

	firstBlock, offset, straddles := t.span(index)
	block, err := t.dev.ReadBlock(firstBlock)
	if err != nil {
		return err
	}

	if !straddles {
		copy(block[offset:], record)
		return t.dev.WriteBlock(firstBlock, block)
	}

	head := t.geo.BlockSize - offset
	copy(block[offset:], record[:head])
	if err := t.dev.WriteBlock(firstBlock, block); err != nil {
		return err
	}

	second, err := t.dev.ReadBlock(firstBlock + 1)
	if err != nil {
		return err
	}
	copy(second, record[head:])
	return t.dev.WriteBlock(firstBlock+1, second)
}

// FindFree returns the lowest free inode index, or -1 when the table is
// fully allocated.
func (t *inodeTable) FindFree() (int, error) {
	for index := 0; index < t.geo.InodeCount; index++ {
		ino, err := t.ReadInode(index)
		if err != nil {
			return -1, err
		}
		if ino.IsFree() {
			return index, nil
		}
	}
	return -1, nil
}
