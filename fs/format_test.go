package fs_test

import (
	"encoding/binary"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/valbaum/slfs"
	"github.com/valbaum/slfs/fs"
)

func TestSuperblockCodecIdentity(t *testing.T) {
	sb := fs.Superblock{
		Version:     slfs.FSVersion,
		BlockSize:   64,
		TotalBlocks: 64,
		InodeCount:  24,
	}

	block := make([]byte, 64)
	require.NoError(t, fs.EncodeSuperblock(sb, block))

	decoded, err := fs.DecodeSuperblock(block)
	require.NoError(t, err)
	assert.Equal(t, sb, decoded)
}

func TestSuperblockWireFormat(t *testing.T) {
	block := make([]byte, 64)
	require.NoError(t, fs.EncodeSuperblock(fs.Superblock{
		Version:     1,
		BlockSize:   64,
		TotalBlocks: 64,
		InodeCount:  24,
	}, block))

	// Four big-endian i32 fields, then zero padding.
	assert.EqualValues(t, 1, binary.BigEndian.Uint32(block[0:4]))
	assert.EqualValues(t, 64, binary.BigEndian.Uint32(block[4:8]))
	assert.EqualValues(t, 64, binary.BigEndian.Uint32(block[8:12]))
	assert.EqualValues(t, 24, binary.BigEndian.Uint32(block[12:16]))
	for i := slfs.SuperblockSize; i < len(block); i++ {
		require.Zerof(t, block[i], "byte %d past the record must stay zero", i)
	}
}

func TestSuperblockDecodeShortBuffer(t *testing.T) {
	_, err := fs.DecodeSuperblock(make([]byte, slfs.SuperblockSize-1))
	assert.ErrorIs(t, err, slfs.ErrSizeMismatch)
}

func TestInodeCodecIdentity(t *testing.T) {
	inodes := []fs.Inode{
		fs.NewFreeInode(),
		{Length: 0, Blocks: [slfs.InodeDirect]int32{9, -1, -1}},
		{Length: 129, Blocks: [slfs.InodeDirect]int32{12, 40, 63}},
	}

	for _, ino := range inodes {
		record := make([]byte, slfs.InodeSize)
		require.NoError(t, fs.EncodeInode(ino, record))

		decoded, err := fs.DecodeInode(record)
		require.NoError(t, err)
		assert.Equal(t, ino, decoded)
	}
}

func TestInodeWireFormat(t *testing.T) {
	record := make([]byte, slfs.InodeSize)
	require.NoError(t, fs.EncodeInode(fs.Inode{
		Length: 100,
		Blocks: [slfs.InodeDirect]int32{8, 9, -1},
	}, record))

	assert.EqualValues(t, 100, int32(binary.BigEndian.Uint32(record[0:4])))
	assert.EqualValues(t, 8, int32(binary.BigEndian.Uint32(record[4:8])))
	assert.EqualValues(t, 9, int32(binary.BigEndian.Uint32(record[8:12])))
	assert.EqualValues(t, -1, int32(binary.BigEndian.Uint32(record[12:16])))
}

func TestInodeStateHelpers(t *testing.T) {
	free := fs.NewFreeInode()
	assert.True(t, free.IsFree())
	assert.Empty(t, free.UsedBlocks())

	allocated := fs.Inode{Length: 65, Blocks: [slfs.InodeDirect]int32{10, 11, -1}}
	assert.False(t, allocated.IsFree())
	assert.Equal(t, []int{10, 11}, allocated.UsedBlocks())
}

func TestDirEntryCodecIdentity(t *testing.T) {
	entry, err := fs.NewDirEntry("ab", 7)
	require.NoError(t, err)

	record := make([]byte, slfs.DirEntrySize)
	require.NoError(t, fs.EncodeDirEntry(entry, record))

	decoded, err := fs.DecodeDirEntry(record)
	require.NoError(t, err)
	assert.Equal(t, entry, decoded)
	assert.Equal(t, "ab", decoded.NameString())
	assert.EqualValues(t, 7, decoded.Inode)
}

func TestDirEntryWireFormat(t *testing.T) {
	entry, err := fs.NewDirEntry("ab", 7)
	require.NoError(t, err)

	record := make([]byte, slfs.DirEntrySize)
	require.NoError(t, fs.EncodeDirEntry(entry, record))

	assert.Equal(t, []byte{'a', 'b', 0, 0}, record[:4], "name must be NUL-padded")
	assert.EqualValues(t, 7, binary.BigEndian.Uint32(record[4:8]))
}

func TestDirEntryNameValidation(t *testing.T) {
	_, err := fs.NewDirEntry("", 1)
	assert.ErrorIs(t, err, slfs.ErrInvalidArgument)

	_, err = fs.NewDirEntry("toolong", 1)
	assert.ErrorIs(t, err, slfs.ErrNameTooLong)

	full, err := fs.NewDirEntry("abcd", 1)
	require.NoError(t, err)
	assert.Equal(t, "abcd", full.NameString())
}

func TestDirEntryFreeSlot(t *testing.T) {
	var zero fs.DirEntry
	assert.True(t, zero.IsFree())

	named, err := fs.NewDirEntry("a", 0)
	require.NoError(t, err)
	assert.False(t, named.IsFree())
}
