// Package backup persists a whole device image to a file and restores it
// bit-identically.
//
// The container format is deterministic: a fixed header (magic, container
// version, block size, block count, all big-endian), a snapshot ID derived
// from the image contents, then the raw device bytes. The snapshot ID is a
// content-addressed UUID, so saving the same device twice produces the same
// file, and restore can detect a corrupted payload.
package backup

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"os"

	"github.com/google/uuid"
	log "github.com/sirupsen/logrus"
	"github.com/valbaum/slfs"
	"github.com/valbaum/slfs/blockdev"
	"github.com/valbaum/slfs/fs"
	"github.com/xaionaro-go/bytesextra"
)

var magic = [4]byte{'S', 'L', 'F', 'S'}

// ContainerVersion identifies the backup file layout, independent of the
// on-device FSVersion.
const ContainerVersion = 1

// snapshotNamespace is the fixed UUID namespace for content-addressed
// snapshot IDs.
var snapshotNamespace = uuid.MustParse("8c9d6bd1-52a4-4be7-ab4f-3c9a17a5ce41")

type header struct {
	Magic       [4]byte
	Version     int32
	BlockSize   int32
	TotalBlocks int32
	SnapshotID  [16]byte
}

// SnapshotID returns the content-addressed ID of a device image.
func SnapshotID(image []byte) uuid.UUID {
	return uuid.NewSHA1(snapshotNamespace, image)
}

// Save flushes the file system and writes the device image to `path`,
// returning the snapshot ID. The file system stays mounted and usable.
func Save(fsys *fs.FileSystem, path string) (uuid.UUID, error) {
	if err := fsys.Sync(); err != nil {
		return uuid.UUID{}, err
	}

	image, err := fsys.Device().Snapshot()
	if err != nil {
		return uuid.UUID{}, err
	}
	id := SnapshotID(image)

	hdr := header{
		Magic:       magic,
		Version:     ContainerVersion,
		BlockSize:   int32(fsys.Device().BytesPerBlock()),
		TotalBlocks: int32(fsys.Device().TotalBlocks()),
		SnapshotID:  id,
	}

	var payload bytes.Buffer
	if err := binary.Write(&payload, binary.BigEndian, hdr); err != nil {
		return uuid.UUID{}, slfs.ErrReadWrite.Wrap(err)
	}
	if _, err := payload.Write(image); err != nil {
		return uuid.UUID{}, slfs.ErrReadWrite.Wrap(err)
	}

	if err := os.WriteFile(path, payload.Bytes(), 0o644); err != nil {
		return uuid.UUID{}, slfs.ErrReadWrite.Wrap(err)
	}

	log.WithFields(log.Fields{
		"path":     path,
		"blocks":   hdr.TotalBlocks,
		"snapshot": id,
	}).Info("device image saved")
	return id, nil
}

// Restore reads a backup file, rebuilds the device bit-identically, and
// mounts it. The superblock supplies every parameter except the open file
// limit, which the caller passes in.
func Restore(path string, maxOpenFiles int) (*fs.FileSystem, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, slfs.ErrReadWrite.Wrap(err)
	}

	stream := bytesextra.NewReadWriteSeeker(raw)
	var hdr header
	if err := binary.Read(stream, binary.BigEndian, &hdr); err != nil {
		return nil, slfs.ErrReadWrite.Wrap(err)
	}
	if hdr.Magic != magic {
		return nil, slfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf("%q is not a device backup", path),
		)
	}
	if hdr.Version != ContainerVersion {
		return nil, slfs.ErrVersionMismatch.WithMessage(
			fmt.Sprintf(
				"backup container version %d, this implementation handles %d",
				hdr.Version,
				ContainerVersion,
			),
		)
	}
	if hdr.BlockSize < 1 || hdr.TotalBlocks < 1 {
		return nil, slfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"backup header declares %d blocks of %d bytes",
				hdr.TotalBlocks,
				hdr.BlockSize,
			),
		)
	}

	image := make([]byte, int(hdr.BlockSize)*int(hdr.TotalBlocks))
	if _, err := io.ReadFull(stream, image); err != nil {
		return nil, slfs.ErrReadWrite.WithMessage(
			fmt.Sprintf("backup payload is truncated: %s", err),
		)
	}
	if id := SnapshotID(image); id != uuid.UUID(hdr.SnapshotID) {
		return nil, slfs.ErrReadWrite.WithMessage(
			fmt.Sprintf(
				"backup payload does not match its snapshot ID %s",
				uuid.UUID(hdr.SnapshotID),
			),
		)
	}

	dev, err := blockdev.FromImage(int(hdr.BlockSize), image)
	if err != nil {
		return nil, err
	}
	fsys, err := fs.Mount(dev, maxOpenFiles)
	if err != nil {
		return nil, err
	}

	log.WithFields(log.Fields{
		"path":     path,
		"blocks":   hdr.TotalBlocks,
		"snapshot": uuid.UUID(hdr.SnapshotID),
	}).Info("device image restored")
	return fsys, nil
}
