// Package fs implements the single-level file system: the on-device layout
// (superblock, free-block bitmap, inode table, directory) and the operations
// that maintain it.
package fs

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/noxer/bytewriter"
	"github.com/valbaum/slfs"
	"github.com/valbaum/slfs/blockdev"
)

// freeSentinel marks a free inode (in its length field) and an unused direct
// block slot.
const freeSentinel = int32(-1)

// Superblock is the decoded form of the metadata record at the start of
// block 0. All fields are stored big-endian.
type Superblock struct {
	Version     int32
	BlockSize   int32
	TotalBlocks int32
	InodeCount  int32
}

// Geometry combines the superblock's authoritative parameters with the
// caller-supplied open file limit.
func (sb Superblock) Geometry(maxOpenFiles int) slfs.Geometry {
	return slfs.Geometry{
		BlockSize:    int(sb.BlockSize),
		TotalBlocks:  int(sb.TotalBlocks),
		InodeCount:   int(sb.InodeCount),
		MaxOpenFiles: maxOpenFiles,
	}
}

// EncodeSuperblock writes the superblock record at the start of `dst`, which
// must be at least SuperblockSize bytes. The remainder of `dst` is untouched.
func EncodeSuperblock(sb Superblock, dst []byte) error {
	if len(dst) < slfs.SuperblockSize {
		return slfs.ErrSizeMismatch.WithMessage(
			fmt.Sprintf(
				"superblock needs %d bytes, got %d", slfs.SuperblockSize, len(dst),
			),
		)
	}

	writer := bytewriter.New(dst)
	for _, field := range []int32{sb.Version, sb.BlockSize, sb.TotalBlocks, sb.InodeCount} {
		if err := binary.Write(writer, binary.BigEndian, field); err != nil {
			return slfs.ErrReadWrite.Wrap(err)
		}
	}
	return nil
}

// DecodeSuperblock reads a superblock record from the start of `src`.
func DecodeSuperblock(src []byte) (Superblock, error) {
	var sb Superblock
	if len(src) < slfs.SuperblockSize {
		return sb, slfs.ErrSizeMismatch.WithMessage(
			fmt.Sprintf(
				"superblock needs %d bytes, got %d", slfs.SuperblockSize, len(src),
			),
		)
	}

	reader := bytes.NewReader(src[:slfs.SuperblockSize])
	for _, field := range []*int32{&sb.Version, &sb.BlockSize, &sb.TotalBlocks, &sb.InodeCount} {
		if err := binary.Read(reader, binary.BigEndian, field); err != nil {
			return Superblock{}, slfs.ErrReadWrite.Wrap(err)
		}
	}
	return sb, nil
}

// Inode is the plain-value form of one inode table entry. Length is
// freeSentinel iff the inode is free; used Blocks slots always form a prefix.
type Inode struct {
	Length int32
	Blocks [slfs.InodeDirect]int32
}

// NewFreeInode returns an inode in its unallocated state.
func NewFreeInode() Inode {
	ino := Inode{Length: freeSentinel}
	for i := range ino.Blocks {
		ino.Blocks[i] = freeSentinel
	}
	return ino
}

// IsFree reports whether the inode is unallocated.
func (ino Inode) IsFree() bool {
	return ino.Length == freeSentinel
}

// UsedBlocks returns the indices of the data blocks the inode references,
// skipping unused slots.
func (ino Inode) UsedBlocks() []int {
	blocks := make([]int, 0, slfs.InodeDirect)
	for _, blk := range ino.Blocks {
		if blk != freeSentinel {
			blocks = append(blocks, int(blk))
		}
	}
	return blocks
}

// EncodeInode writes the 16-byte inode record at the start of `dst`.
func EncodeInode(ino Inode, dst []byte) error {
	if len(dst) < slfs.InodeSize {
		return slfs.ErrSizeMismatch.WithMessage(
			fmt.Sprintf("inode needs %d bytes, got %d", slfs.InodeSize, len(dst)),
		)
	}

	writer := bytewriter.New(dst)
	if err := binary.Write(writer, binary.BigEndian, ino.Length); err != nil {
		return slfs.ErrReadWrite.Wrap(err)
	}
	if err := binary.Write(writer, binary.BigEndian, ino.Blocks); err != nil {
		return slfs.ErrReadWrite.Wrap(err)
	}
	return nil
}

// DecodeInode reads a 16-byte inode record from the start of `src`.
func DecodeInode(src []byte) (Inode, error) {
	var ino Inode
	if len(src) < slfs.InodeSize {
		return ino, slfs.ErrSizeMismatch.WithMessage(
			fmt.Sprintf("inode needs %d bytes, got %d", slfs.InodeSize, len(src)),
		)
	}

	reader := bytes.NewReader(src[:slfs.InodeSize])
	if err := binary.Read(reader, binary.BigEndian, &ino.Length); err != nil {
		return Inode{}, slfs.ErrReadWrite.Wrap(err)
	}
	if err := binary.Read(reader, binary.BigEndian, &ino.Blocks); err != nil {
		return Inode{}, slfs.ErrReadWrite.Wrap(err)
	}
	return ino, nil
}

// DirEntry is one 8-byte directory slot: the name padded with NUL bytes,
// then the big-endian inode index. A free slot is all zeroes.
type DirEntry struct {
	Name  [slfs.NameBytes]byte
	Inode int32
}

// NewDirEntry builds a directory entry for `name`, which must be between 1
// and NameBytes bytes of UTF-8.
func NewDirEntry(name string, inodeIndex int) (DirEntry, error) {
	if name == "" {
		return DirEntry{}, slfs.ErrInvalidArgument.WithMessage("file name is empty")
	}
	if len(name) > slfs.NameBytes {
		return DirEntry{}, slfs.ErrNameTooLong.WithMessage(
			fmt.Sprintf(
				"%q is %d bytes; names are limited to %d",
				name,
				len(name),
				slfs.NameBytes,
			),
		)
	}

	entry := DirEntry{Inode: int32(inodeIndex)}
	copy(entry.Name[:], name)
	return entry, nil
}

// IsFree reports whether the slot is unused. Free slots are all zero by
// construction, so checking the name field suffices.
func (entry DirEntry) IsFree() bool {
	return entry.Name == [slfs.NameBytes]byte{}
}

// NameString returns the entry's name with the NUL padding stripped.
func (entry DirEntry) NameString() string {
	end := bytes.IndexByte(entry.Name[:], 0)
	if end < 0 {
		end = slfs.NameBytes
	}
	return string(entry.Name[:end])
}

// EncodeDirEntry writes the 8-byte slot record at the start of `dst`.
func EncodeDirEntry(entry DirEntry, dst []byte) error {
	if len(dst) < slfs.DirEntrySize {
		return slfs.ErrSizeMismatch.WithMessage(
			fmt.Sprintf(
				"directory entry needs %d bytes, got %d", slfs.DirEntrySize, len(dst),
			),
		)
	}

	writer := bytewriter.New(dst)
	if _, err := writer.Write(entry.Name[:]); err != nil {
		return slfs.ErrReadWrite.Wrap(err)
	}
	if err := binary.Write(writer, binary.BigEndian, entry.Inode); err != nil {
		return slfs.ErrReadWrite.Wrap(err)
	}
	return nil
}

// DecodeDirEntry reads an 8-byte slot record from the start of `src`.
func DecodeDirEntry(src []byte) (DirEntry, error) {
	var entry DirEntry
	if len(src) < slfs.DirEntrySize {
		return entry, slfs.ErrSizeMismatch.WithMessage(
			fmt.Sprintf(
				"directory entry needs %d bytes, got %d", slfs.DirEntrySize, len(src),
			),
		)
	}

	copy(entry.Name[:], src[:slfs.NameBytes])
	entry.Inode = int32(binary.BigEndian.Uint32(src[slfs.NameBytes:slfs.DirEntrySize]))
	return entry, nil
}

// formatDevice lays down a fresh file system: the superblock, a bitmap with
// every data block on the free list, and an inode table where inode 0 is the
// empty directory and every other inode is free.
func formatDevice(dev *blockdev.Device, geo slfs.Geometry) error {
	block := make([]byte, geo.BlockSize)
	sb := Superblock{
		Version:     slfs.FSVersion,
		BlockSize:   int32(geo.BlockSize),
		TotalBlocks: int32(geo.TotalBlocks),
		InodeCount:  int32(geo.InodeCount),
	}
	if err := EncodeSuperblock(sb, block); err != nil {
		return err
	}
	if err := dev.WriteBlock(0, block); err != nil {
		return err
	}

	freeMap := newFreeMap(dev, geo)
	if err := freeMap.initialize(); err != nil {
		return err
	}

	table := newInodeTable(dev, geo)
	directory := NewFreeInode()
	directory.Length = 0
	if err := table.WriteInode(slfs.DirectoryInode, directory); err != nil {
		return err
	}
	for index := 1; index < geo.InodeCount; index++ {
		if err := table.WriteInode(index, NewFreeInode()); err != nil {
			return err
		}
	}
	return nil
}
