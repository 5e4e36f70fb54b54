package slfs

import (
	"fmt"
	"math"
)

// FSVersion is the format version written to the superblock. Mounting a
// device whose superblock carries any other version fails.
const FSVersion = 1

// InodeDirect is the number of direct block pointers in an inode.
const InodeDirect = 3

// InodeSize is the on-device size of one inode: a signed 32-bit length
// followed by InodeDirect signed 32-bit block indices.
const InodeSize = 4 + 4*InodeDirect

// SuperblockSize is the on-device size of the superblock record: four signed
// 32-bit fields (version, block size, total blocks, inode count).
const SuperblockSize = 16

// NameBytes is the maximum length of a file name, in bytes.
const NameBytes = 4

// DirEntrySize is the on-device size of one directory slot: the name padded
// with NUL bytes, followed by a signed 32-bit inode index.
const DirEntrySize = NameBytes + 4

// DirectoryInode is the index of the inode that always holds the directory.
const DirectoryInode = 0

// Geometry holds the immutable parameters of a mounted device. BlockSize,
// TotalBlocks, and InodeCount are authoritative from the superblock;
// MaxOpenFiles is a runtime parameter supplied by the caller.
type Geometry struct {
	// BlockSize is the size of one device block, in bytes.
	BlockSize int
	// TotalBlocks is the number of blocks on the device.
	TotalBlocks int
	// InodeCount is the number of inodes in the inode table. Inode 0 is
	// always the directory.
	InodeCount int
	// MaxOpenFiles is the number of user files that can be open at once.
	// The open file table has MaxOpenFiles+1 slots; slot 0 is reserved for
	// the directory.
	MaxOpenFiles int
}

// Validate checks that the parameters describe a usable device: the
// superblock and a whole inode must each fit in a block, and the layout must
// leave at least one data block.
func (geo Geometry) Validate() error {
	if geo.BlockSize < SuperblockSize || geo.BlockSize < InodeSize {
		return ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"block size must be at least %d bytes, got %d",
				maxInt(SuperblockSize, InodeSize),
				geo.BlockSize,
			),
		)
	}
	if geo.InodeCount < 1 {
		return ErrInvalidArgument.WithMessage(
			fmt.Sprintf("need at least one inode, got %d", geo.InodeCount),
		)
	}
	if geo.MaxOpenFiles < 1 {
		return ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"need at least one open file table slot, got %d",
				geo.MaxOpenFiles,
			),
		)
	}
	if geo.TotalBlocks <= geo.DataStart() {
		return ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"%d blocks leave no room for data: metadata alone occupies %d",
				geo.TotalBlocks,
				geo.DataStart(),
			),
		)
	}
	return nil
}

// BitmapBlocks returns the number of blocks occupied by the free-block
// bitmap: one bit per device block, rounded up to whole blocks.
func (geo Geometry) BitmapBlocks() int {
	bitsPerBlock := geo.BlockSize * 8
	return (geo.TotalBlocks + bitsPerBlock - 1) / bitsPerBlock
}

// InodeBlocks returns the number of blocks occupied by the inode table.
func (geo Geometry) InodeBlocks() int {
	return (geo.InodeCount*InodeSize + geo.BlockSize - 1) / geo.BlockSize
}

// BitmapStart returns the index of the first bitmap block.
func (geo Geometry) BitmapStart() int {
	return 1
}

// InodesStart returns the index of the first inode table block.
func (geo Geometry) InodesStart() int {
	return 1 + geo.BitmapBlocks()
}

// DataStart returns the index of the first data block.
func (geo Geometry) DataStart() int {
	return 1 + geo.BitmapBlocks() + geo.InodeBlocks()
}

// MaxFileSize returns the largest file the direct block pointers can reach,
// in bytes.
func (geo Geometry) MaxFileSize() int {
	size := geo.BlockSize * InodeDirect
	if size > math.MaxInt32 {
		return math.MaxInt32
	}
	return size
}

// MaxDirEntries returns the number of slots the directory can grow to.
func (geo Geometry) MaxDirEntries() int {
	return geo.MaxFileSize() / DirEntrySize
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
