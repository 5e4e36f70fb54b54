// Package blockdev implements the emulated block device: a fixed number of
// fixed-size blocks that can only be read and written whole.
package blockdev

import (
	"fmt"
	"io"

	"github.com/valbaum/slfs"
	"github.com/xaionaro-go/bytesextra"
)

// Device is a block-granular view of an in-memory byte store. Everything
// above it sees I/O only as whole-block copies, which keeps the file system
// algorithms independent of the storage medium.
type Device struct {
	blockSize   int
	totalBlocks int
	stream      io.ReadWriteSeeker
}

// NewMemory creates a zero-filled device with the given block size and block
// count.
func NewMemory(blockSize, totalBlocks int) (*Device, error) {
	if blockSize < 1 || totalBlocks < 1 {
		return nil, slfs.ErrInvalidArgument.WithMessage(
			fmt.Sprintf(
				"device geometry must be positive, got %d blocks of %d bytes",
				totalBlocks,
				blockSize,
			),
		)
	}
	storage := make([]byte, blockSize*totalBlocks)
	return &Device{
		blockSize:   blockSize,
		totalBlocks: totalBlocks,
		stream:      bytesextra.NewReadWriteSeeker(storage),
	}, nil
}

// FromImage creates a device backed by a private copy of `image`. The image
// length must be an exact multiple of the block size.
func FromImage(blockSize int, image []byte) (*Device, error) {
	if blockSize < 1 || len(image) == 0 || len(image)%blockSize != 0 {
		return nil, slfs.ErrSizeMismatch.WithMessage(
			fmt.Sprintf(
				"image of %d bytes is not a whole number of %d-byte blocks",
				len(image),
				blockSize,
			),
		)
	}
	storage := make([]byte, len(image))
	copy(storage, image)
	return &Device{
		blockSize:   blockSize,
		totalBlocks: len(image) / blockSize,
		stream:      bytesextra.NewReadWriteSeeker(storage),
	}, nil
}

// BytesPerBlock returns the size of a single block, in bytes.
func (dev *Device) BytesPerBlock() int {
	return dev.blockSize
}

// TotalBlocks returns the number of blocks on the device.
func (dev *Device) TotalBlocks() int {
	return dev.totalBlocks
}

// Size returns the capacity of the device, in bytes.
func (dev *Device) Size() int64 {
	return int64(dev.blockSize) * int64(dev.totalBlocks)
}

func (dev *Device) checkIndex(index int) error {
	if index < 0 || index >= dev.totalBlocks {
		return slfs.ErrOutOfRange.WithMessage(
			fmt.Sprintf(
				"invalid block number: %d not in range [0, %d)",
				index,
				dev.totalBlocks,
			),
		)
	}
	return nil
}

func (dev *Device) seekToBlock(index int) error {
	_, err := dev.stream.Seek(int64(index)*int64(dev.blockSize), io.SeekStart)
	if err != nil {
		return slfs.ErrReadWrite.Wrap(err)
	}
	return nil
}

// ReadBlock returns a copy of block `index`.
func (dev *Device) ReadBlock(index int) ([]byte, error) {
	if err := dev.checkIndex(index); err != nil {
		return nil, err
	}
	if err := dev.seekToBlock(index); err != nil {
		return nil, err
	}

	buffer := make([]byte, dev.blockSize)
	if _, err := io.ReadFull(dev.stream, buffer); err != nil {
		return nil, slfs.ErrReadWrite.Wrap(err)
	}
	return buffer, nil
}

// WriteBlock replaces block `index` with `data`, which must be exactly one
// block long.
func (dev *Device) WriteBlock(index int, data []byte) error {
	if err := dev.checkIndex(index); err != nil {
		return err
	}
	if len(data) != dev.blockSize {
		return slfs.ErrSizeMismatch.WithMessage(
			fmt.Sprintf("expected %d bytes, got %d", dev.blockSize, len(data)),
		)
	}
	if err := dev.seekToBlock(index); err != nil {
		return err
	}
	if _, err := dev.stream.Write(data); err != nil {
		return slfs.ErrReadWrite.Wrap(err)
	}
	return nil
}

// Snapshot returns a copy of the entire device contents.
func (dev *Device) Snapshot() ([]byte, error) {
	if _, err := dev.stream.Seek(0, io.SeekStart); err != nil {
		return nil, slfs.ErrReadWrite.Wrap(err)
	}
	image := make([]byte, dev.Size())
	if _, err := io.ReadFull(dev.stream, image); err != nil {
		return nil, slfs.ErrReadWrite.Wrap(err)
	}
	return image, nil
}
