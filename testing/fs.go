// Package testing provides shared fixtures for the file system tests.
package testing

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"
	"github.com/valbaum/slfs"
	"github.com/valbaum/slfs/blockdev"
	"github.com/valbaum/slfs/fs"
)

// DefaultGeometry is the reference configuration used throughout the tests:
// 64 blocks of 64 bytes, 24 inodes, 5 open files.
func DefaultGeometry() slfs.Geometry {
	return slfs.Geometry{
		BlockSize:    64,
		TotalBlocks:  64,
		InodeCount:   24,
		MaxOpenFiles: 5,
	}
}

// NewTestDevice creates a zeroed in-memory device for `geo`, failing the
// test on error.
func NewTestDevice(geo slfs.Geometry, t *testing.T) *blockdev.Device {
	t.Helper()

	dev, err := blockdev.NewMemory(geo.BlockSize, geo.TotalBlocks)
	require.NoErrorf(
		t,
		err,
		"failed to create a device with %d blocks of %d bytes",
		geo.TotalBlocks,
		geo.BlockSize,
	)
	return dev
}

// NewTestFS formats a fresh file system with `geo` on a new in-memory
// device, failing the test on error.
func NewTestFS(geo slfs.Geometry, t *testing.T) *fs.FileSystem {
	t.Helper()

	fsys, err := fs.Format(NewTestDevice(geo, t), geo)
	require.NoError(t, err, "failed to format a fresh file system")
	return fsys
}

// FillBytes returns `count` repetitions of the byte `value`.
func FillBytes(value byte, count int) []byte {
	return bytes.Repeat([]byte{value}, count)
}
