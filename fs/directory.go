package fs

import (
	"fmt"

	"github.com/valbaum/slfs"
)

// The directory is an ordinary file stored at inode 0 and accessed through
// the reserved slot 0 of the open file table, so all of its I/O goes through
// the same buffered block path as user files. Its data is a packed sequence
// of DirEntrySize slots.

// directory returns the always-open table entry for the directory file.
func (fsys *FileSystem) directory() *openFileEntry {
	return &fsys.table[directorySlot]
}

// directorySlots returns the number of slots the directory currently holds.
func (fsys *FileSystem) directorySlots() int {
	return int(fsys.directory().inode.Length) / slfs.DirEntrySize
}

// readSlot decodes directory slot `slot`.
func (fsys *FileSystem) readSlot(slot int) (DirEntry, error) {
	entry := fsys.directory()
	if err := fsys.seekEntry(entry, slot*slfs.DirEntrySize); err != nil {
		return DirEntry{}, err
	}
	record, err := fsys.readEntry(entry, slfs.DirEntrySize)
	if err != nil {
		return DirEntry{}, err
	}
	return DecodeDirEntry(record)
}

// writeSlot encodes `dirent` into directory slot `slot`, growing the
// directory through the normal write path when the slot lies at the end.
func (fsys *FileSystem) writeSlot(slot int, dirent DirEntry) error {
	record := make([]byte, slfs.DirEntrySize)
	if err := EncodeDirEntry(dirent, record); err != nil {
		return err
	}

	entry := fsys.directory()
	if err := fsys.seekEntry(entry, slot*slfs.DirEntrySize); err != nil {
		return err
	}
	return fsys.writeEntryBytes(entry, record)
}

// findEntry returns the slot whose name matches, or -1 if the name is not
// present. Matching uses the name bytes up to the first NUL.
func (fsys *FileSystem) findEntry(name string) (int, DirEntry, error) {
	for slot := 0; slot < fsys.directorySlots(); slot++ {
		dirent, err := fsys.readSlot(slot)
		if err != nil {
			return -1, DirEntry{}, err
		}
		if !dirent.IsFree() && dirent.NameString() == name {
			return slot, dirent, nil
		}
	}
	return -1, DirEntry{}, nil
}

// findFreeSlot returns the first unused slot, reusing holes left by
// destroyed files before appending. It returns -1 when the directory is at
// its maximum size.
func (fsys *FileSystem) findFreeSlot() (int, error) {
	used := fsys.directorySlots()
	for slot := 0; slot < used; slot++ {
		dirent, err := fsys.readSlot(slot)
		if err != nil {
			return -1, err
		}
		if dirent.IsFree() {
			return slot, nil
		}
	}

	if used >= fsys.geo.MaxDirEntries() {
		return -1, nil
	}
	return used, nil
}

// clearEntry zeroes out directory slot `slot`.
func (fsys *FileSystem) clearEntry(slot int) error {
	if slot < 0 || slot >= fsys.directorySlots() {
		return slfs.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"directory slot %d not in range [0, %d)",
				slot,
				fsys.directorySlots(),
			),
		)
	}

	entry := fsys.directory()
	if err := fsys.seekEntry(entry, slot*slfs.DirEntrySize); err != nil {
		return err
	}
	return fsys.writeEntryBytes(entry, make([]byte, slfs.DirEntrySize))
}
