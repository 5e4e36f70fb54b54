package fs

import (
	"fmt"

	"github.com/hashicorp/go-multierror"
	"github.com/valbaum/slfs"
)

// Check sweeps the structural invariants of a mounted file system and
// returns every violation found, aggregated into one error. A healthy file
// system returns nil. The sweep changes no file system state, but reading
// the directory moves its cursor and can flush its buffered block to the
// device.
//
// Checked invariants:
//  1. every allocated inode's used block slots form a contiguous prefix;
//  2. no block referenced by an inode is still on the free list;
//  3. no two inodes reference the same block;
//  4. directory entries point at allocated inodes;
//  5. open cursors never sit past their file's length;
//  6. the superblock version matches this implementation.
func Check(fsys *FileSystem) error {
	var violations *multierror.Error

	block, err := fsys.dev.ReadBlock(0)
	if err != nil {
		return err
	}
	sb, err := DecodeSuperblock(block)
	if err != nil {
		return err
	}
	if sb.Version != slfs.FSVersion {
		violations = multierror.Append(violations, fmt.Errorf(
			"superblock version is %d, want %d", sb.Version, slfs.FSVersion,
		))
	}

	owners := map[int]int{}
	for index := 0; index < fsys.geo.InodeCount; index++ {
		ino, err := fsys.inodes.ReadInode(index)
		if err != nil {
			return err
		}
		if ino.IsFree() {
			continue
		}

		sawUnused := false
		for link, blk := range ino.Blocks {
			if blk == freeSentinel {
				sawUnused = true
				continue
			}
			if sawUnused {
				violations = multierror.Append(violations, fmt.Errorf(
					"inode %d: used block slot %d follows an unused one",
					index,
					link,
				))
			}

			if owner, taken := owners[int(blk)]; taken {
				violations = multierror.Append(violations, fmt.Errorf(
					"block %d referenced by both inode %d and inode %d",
					blk,
					owner,
					index,
				))
			} else {
				owners[int(blk)] = index
			}

			free, err := fsys.freeMap.isFree(int(blk))
			if err != nil {
				return err
			}
			if free {
				violations = multierror.Append(violations, fmt.Errorf(
					"block %d referenced by inode %d is still on the free list",
					blk,
					index,
				))
			}
		}
	}

	for slot := 0; slot < fsys.directorySlots(); slot++ {
		dirent, err := fsys.readSlot(slot)
		if err != nil {
			return err
		}
		if dirent.IsFree() {
			continue
		}

		ino, err := fsys.inodes.ReadInode(int(dirent.Inode))
		if err != nil {
			return err
		}
		if ino.IsFree() {
			violations = multierror.Append(violations, fmt.Errorf(
				"directory entry %q points at free inode %d",
				dirent.NameString(),
				dirent.Inode,
			))
		}
	}

	for slot := 1; slot <= fsys.geo.MaxOpenFiles; slot++ {
		entry := &fsys.table[slot]
		if entry.inUse && entry.position > int(entry.inode.Length) {
			violations = multierror.Append(violations, fmt.Errorf(
				"open file at index %d: cursor %d is past length %d",
				slot,
				entry.position,
				entry.inode.Length,
			))
		}
	}

	return violations.ErrorOrNil()
}
