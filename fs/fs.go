package fs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/valbaum/slfs"
	"github.com/valbaum/slfs/blockdev"
)

// directorySlot is the open file table slot permanently bound to the
// directory file. User files occupy slots 1..MaxOpenFiles.
const directorySlot = 0

// FileSystem is the façade over the device, free-block bitmap, inode table,
// and open file table. It owns all of them exclusively; every operation runs
// to completion before the next one is accepted, so no locking is needed.
type FileSystem struct {
	dev     *blockdev.Device
	geo     slfs.Geometry
	freeMap *freeMap
	inodes  *inodeTable
	table   []openFileEntry
}

// EntryInfo is one row of a directory listing.
type EntryInfo struct {
	Name   string
	Length int
}

// Stats summarizes resource usage on a mounted file system.
type Stats struct {
	TotalBlocks int
	FreeBlocks  int
	InodeCount  int
	FreeInodes  int
	OpenFiles   int
}

func newFileSystem(dev *blockdev.Device, geo slfs.Geometry) (*FileSystem, error) {
	fsys := &FileSystem{
		dev:     dev,
		geo:     geo,
		freeMap: newFreeMap(dev, geo),
		inodes:  newInodeTable(dev, geo),
		table:   make([]openFileEntry, geo.MaxOpenFiles+1),
	}
	for slot := range fsys.table {
		fsys.resetEntry(slot)
	}

	directory, err := fsys.inodes.ReadInode(slfs.DirectoryInode)
	if err != nil {
		return nil, err
	}
	fsys.openEntry(directorySlot, slfs.DirectoryInode, directory)
	return fsys, nil
}

// Format initializes a fresh file system on `dev` and mounts it.
func Format(dev *blockdev.Device, geo slfs.Geometry) (*FileSystem, error) {
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	if dev.BytesPerBlock() != geo.BlockSize || dev.TotalBlocks() != geo.TotalBlocks {
		return nil, slfs.ErrSizeMismatch.WithMessage(
			fmt.Sprintf(
				"device is %d blocks of %d bytes, geometry wants %d of %d",
				dev.TotalBlocks(),
				dev.BytesPerBlock(),
				geo.TotalBlocks,
				geo.BlockSize,
			),
		)
	}

	if err := formatDevice(dev, geo); err != nil {
		return nil, err
	}
	return newFileSystem(dev, geo)
}

// Mount attaches to a device that already carries a file system. The
// superblock's parameters are authoritative; only the open file limit comes
// from the caller. A version other than FSVersion fails with
// ErrVersionMismatch and the device is left untouched.
func Mount(dev *blockdev.Device, maxOpenFiles int) (*FileSystem, error) {
	block, err := dev.ReadBlock(0)
	if err != nil {
		return nil, err
	}
	sb, err := DecodeSuperblock(block)
	if err != nil {
		return nil, err
	}
	if sb.Version != slfs.FSVersion {
		return nil, slfs.ErrVersionMismatch.WithMessage(
			fmt.Sprintf(
				"superblock version %#x, this implementation handles %d",
				sb.Version,
				slfs.FSVersion,
			),
		)
	}

	geo := sb.Geometry(maxOpenFiles)
	if err := geo.Validate(); err != nil {
		return nil, err
	}
	return newFileSystem(dev, geo)
}

// Geometry returns the mounted parameters.
func (fsys *FileSystem) Geometry() slfs.Geometry {
	return fsys.geo
}

// Device returns the underlying block device.
func (fsys *FileSystem) Device() *blockdev.Device {
	return fsys.dev
}

// userEntry resolves a user slot number, rejecting the directory slot and
// slots with nothing open.
func (fsys *FileSystem) userEntry(slot int) (*openFileEntry, error) {
	if slot < 1 || slot > fsys.geo.MaxOpenFiles {
		return nil, slfs.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"file index %d not in range [1, %d]",
				slot,
				fsys.geo.MaxOpenFiles,
			),
		)
	}
	entry := &fsys.table[slot]
	if !entry.inUse {
		return nil, slfs.ErrNotFound.WithMessage(
			fmt.Sprintf("no open file at index %d", slot),
		)
	}
	return entry, nil
}

// Create allocates a new empty file: a directory slot, a free inode, and the
// file's first data block. The commit is deliberately not transactional; a
// failure partway through leaves the reservations in place, matching the
// reference behavior.
func (fsys *FileSystem) Create(name string) error {
	dirent, err := NewDirEntry(name, 0)
	if err != nil {
		return err
	}

	existing, _, err := fsys.findEntry(name)
	if err != nil {
		return err
	}
	if existing != -1 {
		return slfs.ErrExists.WithMessage(fmt.Sprintf("file %q", name))
	}

	slot, err := fsys.findFreeSlot()
	if err != nil {
		return err
	}
	if slot == -1 {
		return slfs.ErrNoSpace.WithMessage("the directory is full")
	}

	inodeIndex, err := fsys.inodes.FindFree()
	if err != nil {
		return err
	}
	if inodeIndex == -1 {
		return slfs.ErrNoSpace.WithMessage("no free inodes")
	}

	dataBlock, err := fsys.freeMap.findFree()
	if err != nil {
		return err
	}
	if dataBlock == -1 {
		return slfs.ErrNoSpace.WithMessage("no free blocks")
	}

	ino := NewFreeInode()
	ino.Length = 0
	ino.Blocks[0] = int32(dataBlock)
	if err := fsys.freeMap.markUsed(dataBlock); err != nil {
		return err
	}
	if err := fsys.inodes.WriteInode(inodeIndex, ino); err != nil {
		return err
	}

	dirent.Inode = int32(inodeIndex)
	return fsys.writeSlot(slot, dirent)
}

// Destroy removes a file, closing it first if it is open, and returns its
// inode and data blocks to the free pools. Reclamation happens only after
// the directory entry is cleared.
func (fsys *FileSystem) Destroy(name string) error {
	slot, dirent, err := fsys.findEntry(name)
	if err != nil {
		return err
	}
	if slot == -1 {
		return slfs.ErrNotFound.WithMessage(fmt.Sprintf("file %q", name))
	}

	inodeIndex := int(dirent.Inode)
	ino, err := fsys.inodes.ReadInode(inodeIndex)
	if err != nil {
		return err
	}
	usedBlocks := ino.UsedBlocks()

	for openSlot := 1; openSlot <= fsys.geo.MaxOpenFiles; openSlot++ {
		if fsys.table[openSlot].inUse && fsys.table[openSlot].inodeIndex == inodeIndex {
			if err := fsys.Close(openSlot); err != nil {
				return err
			}
		}
	}

	if err := fsys.clearEntry(slot); err != nil {
		return err
	}
	if err := fsys.inodes.WriteInode(inodeIndex, NewFreeInode()); err != nil {
		return err
	}
	for _, block := range usedBlocks {
		if err := fsys.freeMap.markFree(block); err != nil {
			return err
		}
	}
	return nil
}

// Open resolves a name and binds it to the lowest free user slot, with the
// cursor at 0 and an empty buffer.
func (fsys *FileSystem) Open(name string) (int, error) {
	slot, dirent, err := fsys.findEntry(name)
	if err != nil {
		return -1, err
	}
	if slot == -1 {
		return -1, slfs.ErrNotFound.WithMessage(fmt.Sprintf("file %q", name))
	}

	ino, err := fsys.inodes.ReadInode(int(dirent.Inode))
	if err != nil {
		return -1, err
	}

	for index := 1; index <= fsys.geo.MaxOpenFiles; index++ {
		if !fsys.table[index].inUse {
			fsys.openEntry(index, int(dirent.Inode), ino)
			return index, nil
		}
	}
	return -1, slfs.ErrTooManyOpenFiles.WithMessage(
		fmt.Sprintf("all %d file indices are taken", fsys.geo.MaxOpenFiles),
	)
}

// Close flushes an open file's buffer, persists its inode, and releases the
// slot.
func (fsys *FileSystem) Close(slot int) error {
	entry, err := fsys.userEntry(slot)
	if err != nil {
		return err
	}
	if err := fsys.flushEntry(entry); err != nil {
		return err
	}
	fsys.resetEntry(slot)
	return nil
}

// Read copies `count` bytes from the file's cursor position.
func (fsys *FileSystem) Read(slot, count int) ([]byte, error) {
	entry, err := fsys.userEntry(slot)
	if err != nil {
		return nil, err
	}
	return fsys.readEntry(entry, count)
}

// Write copies `data` into the file at the cursor. Writes that would push
// the file past the maximum size fail before any mutation.
func (fsys *FileSystem) Write(slot int, data []byte) error {
	entry, err := fsys.userEntry(slot)
	if err != nil {
		return err
	}
	if entry.position+len(data) > fsys.geo.MaxFileSize() {
		return slfs.ErrReadWrite.WithMessage(
			fmt.Sprintf(
				"writing %d bytes at position %d exceeds the maximum file size %d",
				len(data),
				entry.position,
				fsys.geo.MaxFileSize(),
			),
		)
	}
	return fsys.writeEntryBytes(entry, data)
}

// Seek moves an open file's cursor to an absolute position within [0, length].
func (fsys *FileSystem) Seek(slot, position int) error {
	entry, err := fsys.userEntry(slot)
	if err != nil {
		return err
	}
	return fsys.seekEntry(entry, position)
}

// Directory lists the files in creation-slot order with their current
// lengths, read fresh from each entry's inode.
func (fsys *FileSystem) Directory() ([]EntryInfo, error) {
	listing := []EntryInfo{}
	for slot := 0; slot < fsys.directorySlots(); slot++ {
		dirent, err := fsys.readSlot(slot)
		if err != nil {
			return nil, err
		}
		if dirent.IsFree() {
			continue
		}

		ino, err := fsys.inodes.ReadInode(int(dirent.Inode))
		if err != nil {
			return nil, err
		}
		listing = append(listing, EntryInfo{
			Name:   dirent.NameString(),
			Length: int(ino.Length),
		})
	}
	return listing, nil
}

// Sync flushes every open file's buffer and the directory's to the device
// without closing anything.
func (fsys *FileSystem) Sync() error {
	var aggregate *multierror.Error
	for slot := range fsys.table {
		if fsys.table[slot].inUse {
			aggregate = multierror.Append(aggregate, fsys.flushEntry(&fsys.table[slot]))
		}
	}
	return aggregate.ErrorOrNil()
}

// Unmount closes every open user file and flushes the directory. Per-slot
// failures don't stop the sweep; they are aggregated into one error.
func (fsys *FileSystem) Unmount() error {
	var aggregate *multierror.Error
	for slot := 1; slot <= fsys.geo.MaxOpenFiles; slot++ {
		if fsys.table[slot].inUse {
			aggregate = multierror.Append(aggregate, fsys.Close(slot))
		}
	}
	aggregate = multierror.Append(aggregate, fsys.flushEntry(fsys.directory()))
	return aggregate.ErrorOrNil()
}

// Stats counts free resources by sweeping the bitmap and inode table.
func (fsys *FileSystem) Stats() (Stats, error) {
	freeBlocks, err := fsys.freeMap.countFree()
	if err != nil {
		return Stats{}, err
	}

	freeInodes := 0
	for index := 0; index < fsys.geo.InodeCount; index++ {
		ino, err := fsys.inodes.ReadInode(index)
		if err != nil {
			return Stats{}, err
		}
		if ino.IsFree() {
			freeInodes++
		}
	}

	openFiles := 0
	for slot := 1; slot <= fsys.geo.MaxOpenFiles; slot++ {
		if fsys.table[slot].inUse {
			openFiles++
		}
	}

	return Stats{
		TotalBlocks: fsys.geo.TotalBlocks,
		FreeBlocks:  freeBlocks,
		InodeCount:  fsys.geo.InodeCount,
		FreeInodes:  freeInodes,
		OpenFiles:   openFiles,
	}, nil
}
