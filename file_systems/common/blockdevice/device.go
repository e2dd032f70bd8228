// Package blockdevice provides the sector-addressed storage a file system sits
// on: an in-memory image that's loaded from and saved to a backing file.
package blockdevice

import (
	c "github.com/dargueta/simfs/file_systems/common"
)

// Device is a fixed-size array of sectors that can be persisted to a file.
//
// All sector buffers passed to ReadSector and WriteSector must be exactly
// BytesPerSector bytes. Implementations return an [errors.EINVAL] error for
// buffers of the wrong size or sector indices out of range.
type Device interface {
	BytesPerSector() uint
	TotalSectors() uint

	// Init discards the current image and replaces it with one filled with
	// null bytes.
	Init() error

	// Load replaces the current image with the contents of the file at `path`.
	// If the file doesn't exist the error matches [errors.ErrNotFound]; any
	// other failure matches [errors.ErrIOFailed].
	//
	// A file shorter than the image is loaded into the beginning of the image,
	// and the rest of the image is zeroed. Bytes past the end of the image are
	// ignored. Callers that care about the size can check [Device.LoadedSize].
	Load(path string) error

	// LoadedSize gives the size of the file most recently loaded, in bytes. It
	// returns -1 if nothing has been loaded since the last Init.
	LoadedSize() int64

	// Save writes the entire image to the file at `path`, replacing it.
	Save(path string) error

	ReadSector(index c.PhysicalBlock, buffer []byte) error
	WriteSector(index c.PhysicalBlock, buffer []byte) error
}
