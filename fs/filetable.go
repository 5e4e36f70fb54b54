package fs

import (
	"fmt"

	"github.com/valbaum/slfs"
)

// openFileEntry is the in-RAM state of one open file: the owning inode (by
// index and by cached value), the byte cursor, and a single-block write-back
// buffer. currentLink is always position / BlockSize; bufferedLink names the
// direct pointer whose block currently sits in buffer, or -1 when the buffer
// holds nothing.
type openFileEntry struct {
	inUse        bool
	inodeIndex   int
	inode        Inode
	position     int
	currentLink  int
	bufferedLink int
	buffer       []byte
	modified     bool
}

func (fsys *FileSystem) resetEntry(slot int) {
	fsys.table[slot] = openFileEntry{
		bufferedLink: -1,
		buffer:       make([]byte, fsys.geo.BlockSize),
	}
}

func (fsys *FileSystem) openEntry(slot, inodeIndex int, ino Inode) {
	fsys.resetEntry(slot)
	entry := &fsys.table[slot]
	entry.inUse = true
	entry.inodeIndex = inodeIndex
	entry.inode = ino
}

// loadCurrentBlock makes the buffer hold the block that currentLink points
// at, flushing a modified buffer first and allocating a fresh block when the
// link has none yet. When the device is out of free blocks the file's length
// is pinned at the current position, the inode is persisted, and the write
// fails; earlier blocks of the file keep the data already flushed to them.
func (fsys *FileSystem) loadCurrentBlock(entry *openFileEntry) error {
	if entry.currentLink < 0 || entry.currentLink >= slfs.InodeDirect {
		return slfs.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"block link %d not in range [0, %d)",
				entry.currentLink,
				slfs.InodeDirect,
			),
		)
	}

	if entry.modified {
		target := int(entry.inode.Blocks[entry.bufferedLink])
		if err := fsys.dev.WriteBlock(target, entry.buffer); err != nil {
			return err
		}
		entry.modified = false
	}

	if entry.inode.Blocks[entry.currentLink] != freeSentinel {
		block, err := fsys.dev.ReadBlock(int(entry.inode.Blocks[entry.currentLink]))
		if err != nil {
			return err
		}
		entry.buffer = block
	} else {
		index, err := fsys.freeMap.findFree()
		if err != nil {
			return err
		}
		if index == -1 {
			entry.inode.Length = int32(entry.position)
			if err := fsys.inodes.WriteInode(entry.inodeIndex, entry.inode); err != nil {
				return err
			}
			return slfs.ErrReadWrite.WithMessage("no free space left on the device")
		}

		entry.inode.Blocks[entry.currentLink] = int32(index)
		if err := fsys.freeMap.markUsed(index); err != nil {
			return err
		}
		if err := fsys.inodes.WriteInode(entry.inodeIndex, entry.inode); err != nil {
			return err
		}
		entry.buffer = make([]byte, fsys.geo.BlockSize)
	}

	entry.bufferedLink = entry.currentLink
	return nil
}

// readEntry copies `count` bytes out of the file at the cursor, walking
// across block boundaries through the buffer.
func (fsys *FileSystem) readEntry(entry *openFileEntry, count int) ([]byte, error) {
	if count < 0 {
		return nil, slfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("cannot read %d bytes", count),
		)
	}
	if entry.position+count > int(entry.inode.Length) {
		return nil, slfs.ErrReadWrite.WithMessage(
			fmt.Sprintf(
				"end of file reached before %d bytes: position %d, length %d",
				count,
				entry.position,
				entry.inode.Length,
			),
		)
	}

	output := make([]byte, 0, count)
	for len(output) < count {
		if entry.currentLink != entry.bufferedLink {
			if err := fsys.loadCurrentBlock(entry); err != nil {
				return nil, err
			}
		}

		offset := entry.position % fsys.geo.BlockSize
		chunk := minInt(count-len(output), fsys.geo.BlockSize-offset)
		output = append(output, entry.buffer[offset:offset+chunk]...)
		entry.position += chunk
		entry.currentLink = entry.position / fsys.geo.BlockSize
	}
	return output, nil
}

// writeEntryBytes copies `data` into the file at the cursor through the
// buffer, marking it modified; crossing a block boundary flushes the old
// block and loads or allocates the next. The size cap is enforced by the
// caller before anything is mutated. Afterwards the length is extended if
// the cursor moved past it and the inode is persisted.
func (fsys *FileSystem) writeEntryBytes(entry *openFileEntry, data []byte) error {
	written := 0
	for written < len(data) {
		if entry.currentLink != entry.bufferedLink {
			if err := fsys.loadCurrentBlock(entry); err != nil {
				return err
			}
		}

		offset := entry.position % fsys.geo.BlockSize
		chunk := minInt(len(data)-written, fsys.geo.BlockSize-offset)
		copy(entry.buffer[offset:], data[written:written+chunk])
		entry.modified = true
		written += chunk
		entry.position += chunk
		entry.currentLink = entry.position / fsys.geo.BlockSize
	}

	if entry.position > int(entry.inode.Length) {
		entry.inode.Length = int32(entry.position)
	}
	return fsys.inodes.WriteInode(entry.inodeIndex, entry.inode)
}

// seekEntry moves the cursor. Seeking exactly to the length is allowed; the
// buffer is neither flushed nor preloaded here, so the operation is O(1) and
// the next read or write observes the link mismatch and reloads.
func (fsys *FileSystem) seekEntry(entry *openFileEntry, position int) error {
	if position < 0 || position > int(entry.inode.Length) {
		return slfs.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"seek offset %d not in range [0, %d]",
				position,
				entry.inode.Length,
			),
		)
	}

	entry.position = position
	entry.currentLink = position / fsys.geo.BlockSize
	return nil
}

// flushEntry writes out a modified buffer and persists the inode without
// disturbing the cursor.
func (fsys *FileSystem) flushEntry(entry *openFileEntry) error {
	if entry.modified {
		target := int(entry.inode.Blocks[entry.bufferedLink])
		if err := fsys.dev.WriteBlock(target, entry.buffer); err != nil {
			return err
		}
		entry.modified = false
	}
	return fsys.inodes.WriteInode(entry.inodeIndex, entry.inode)
}

func minInt(a, b int) int {
	if a < b {
		return a
	}
	return b
}
