package blockdevice

import (
	"bytes"
	"io"
	"os"
	"path/filepath"

	"github.com/dargueta/simfs/errors"
	c "github.com/dargueta/simfs/file_systems/common"
	"github.com/dargueta/simfs/file_systems/common/blockcache"
	"github.com/dargueta/simfs/utilities/compression"
	"github.com/xaionaro-go/bytesextra"
)

// ImageDevice keeps an entire disk image in memory. Sector writes go to a block
// cache and only reach the image buffer when the device is saved.
type ImageDevice struct {
	bytesPerSector uint
	totalSectors   uint
	stream         io.ReadWriteSeeker
	cache          *blockcache.SectorCache
	loadedSize     int64
}

// NewImageDevice creates a device with a zeroed image of the given size.
func NewImageDevice(bytesPerSector, totalSectors uint) *ImageDevice {
	device := &ImageDevice{
		bytesPerSector: bytesPerSector,
		totalSectors:   totalSectors,
	}
	device.replaceImage(make([]byte, device.imageSize()))
	return device
}

func (device *ImageDevice) imageSize() int64 {
	return int64(device.bytesPerSector) * int64(device.totalSectors)
}

// replaceImage swaps out the backing buffer. Anything in the cache is lost.
func (device *ImageDevice) replaceImage(image []byte) {
	device.stream = bytesextra.NewReadWriteSeeker(image)
	device.cache = blockcache.OverStream(
		device.stream, device.bytesPerSector, device.totalSectors)
	device.loadedSize = -1
}

func (device *ImageDevice) BytesPerSector() uint {
	return device.bytesPerSector
}

func (device *ImageDevice) TotalSectors() uint {
	return device.totalSectors
}

func (device *ImageDevice) LoadedSize() int64 {
	return device.loadedSize
}

func (device *ImageDevice) Init() error {
	device.replaceImage(make([]byte, device.imageSize()))
	return nil
}

func (device *ImageDevice) Load(path string) error {
	file, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return errors.NewFromError(errors.ENOENT, err)
		}
		return errors.NewFromError(errors.EIO, err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return errors.NewFromError(errors.EIO, err)
	}

	image := make([]byte, device.imageSize())
	_, err = io.ReadFull(file, image)
	if err != nil && err != io.ErrUnexpectedEOF && err != io.EOF {
		return errors.NewFromError(errors.EIO, err)
	}

	device.replaceImage(image)
	device.loadedSize = info.Size()
	return nil
}

// flushToStream writes all dirty sectors into the image buffer and rewinds it.
func (device *ImageDevice) flushToStream() error {
	if _, err := device.cache.Flush(); err != nil {
		return err
	}
	_, err := device.stream.Seek(0, io.SeekStart)
	return err
}

// Save writes the image to a temporary file next to `path` and then renames it
// over `path`, so an interrupted save never leaves a truncated image behind.
func (device *ImageDevice) Save(path string) error {
	if err := device.flushToStream(); err != nil {
		return errors.NewFromError(errors.EIO, err)
	}

	tempFile, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return errors.NewFromError(errors.EIO, err)
	}
	tempPath := tempFile.Name()

	_, copyErr := io.Copy(tempFile, io.LimitReader(device.stream, device.imageSize()))
	var syncErr error
	if copyErr == nil {
		syncErr = tempFile.Sync()
	}
	closeErr := tempFile.Close()

	if err := errors.Combine(copyErr, syncErr, closeErr); err != nil {
		os.Remove(tempPath)
		return errors.NewFromError(errors.EIO, err)
	}

	if err := os.Rename(tempPath, path); err != nil {
		os.Remove(tempPath)
		return errors.NewFromError(errors.EIO, err)
	}
	return nil
}

func (device *ImageDevice) ReadSector(index c.PhysicalBlock, buffer []byte) error {
	return device.cache.ReadSector(index, buffer)
}

func (device *ImageDevice) WriteSector(index c.PhysicalBlock, buffer []byte) error {
	return device.cache.WriteSector(index, buffer)
}

// Snapshot writes a compressed copy of the image to `output`, returning the
// number of compressed bytes written. Unsaved writes are included.
func (device *ImageDevice) Snapshot(output io.Writer) (int64, error) {
	if err := device.flushToStream(); err != nil {
		return 0, errors.NewFromError(errors.EIO, err)
	}
	return compression.CompressImage(io.LimitReader(device.stream, device.imageSize()), output)
}

// Restore replaces the image with a snapshot created by [ImageDevice.Snapshot].
// The decompressed snapshot must be exactly the size of the image.
func (device *ImageDevice) Restore(input io.Reader) error {
	var image bytes.Buffer
	if _, err := compression.DecompressImage(input, &image); err != nil {
		return errors.NewFromError(errors.EIO, err)
	}

	if int64(image.Len()) != device.imageSize() {
		return errors.Newf(
			errors.EUCLEAN,
			"snapshot is %d bytes, expected %d",
			image.Len(),
			device.imageSize())
	}

	device.replaceImage(image.Bytes())
	return nil
}
