package sfs

import (
	"log/slog"

	"github.com/dargueta/simfs"
	"github.com/dargueta/simfs/disks"
	"github.com/dargueta/simfs/errors"
	"github.com/dargueta/simfs/file_systems/common/allocator"
	"github.com/dargueta/simfs/file_systems/common/blockdevice"
	"github.com/google/uuid"
)

// FileSystem is a mounted image. It isn't safe for concurrent use.
type FileSystem struct {
	path      string
	layout    *disks.Layout
	device    blockdevice.Device
	log       *slog.Logger
	volumeID  uuid.UUID
	inodes    *InodeTable
	inodeMap  *allocator.SectorBitmap
	sectors   *allocator.SectorBitmap
	openFiles []openFile
}

var _ simfs.Driver = (*FileSystem)(nil)

type options struct {
	geometry disks.Geometry
	logger   *slog.Logger
	device   blockdevice.Device
}

// Option configures [Boot] and [Format].
type Option func(*options)

// WithGeometry sets the geometry of the image. The default is
// [disks.DefaultGeometry].
func WithGeometry(geometry disks.Geometry) Option {
	return func(o *options) {
		o.geometry = geometry
	}
}

// WithLogger sets where the file system logs to. By default nothing is logged.
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithDevice makes the file system use an existing device instead of creating
// one. Its sector size and count must match the geometry.
func WithDevice(device blockdevice.Device) Option {
	return func(o *options) {
		o.device = device
	}
}

func newFileSystem(path string, opts []Option) (*FileSystem, error) {
	o := options{
		geometry: disks.DefaultGeometry(),
		logger:   simfs.NoopLogger(),
	}
	for _, opt := range opts {
		opt(&o)
	}

	layout, err := disks.ComputeLayout(o.geometry)
	if err != nil {
		return nil, err
	}

	device := o.device
	if device == nil {
		device = blockdevice.NewImageDevice(o.geometry.SectorSize, o.geometry.TotalSectors)
	} else if device.BytesPerSector() != o.geometry.SectorSize ||
		device.TotalSectors() != o.geometry.TotalSectors {
		return nil, errors.Newf(
			errors.EINVAL,
			"device has %d sectors of %d bytes, geometry %s needs %d of %d",
			device.TotalSectors(),
			device.BytesPerSector(),
			o.geometry.Slug,
			o.geometry.TotalSectors,
			o.geometry.SectorSize)
	}

	inodeMap, err := allocator.New(device, layout.InodeBitmap, o.geometry.MaxFiles)
	if err != nil {
		return nil, err
	}
	sectors, err := allocator.New(device, layout.SectorBitmap, o.geometry.TotalSectors)
	if err != nil {
		return nil, err
	}

	fs := &FileSystem{
		path:     path,
		layout:   &layout,
		device:   device,
		log:      o.logger.With("image", path),
		inodeMap: inodeMap,
		sectors:  sectors,
	}
	fs.inodes = newInodeTable(device, fs.layout, inodeMap)
	fs.resetOpenFiles()
	return fs, nil
}

// Boot mounts the image stored at `path`. If the file doesn't exist, a new
// image is formatted and saved there.
func Boot(path string, opts ...Option) (*FileSystem, error) {
	fs, err := newFileSystem(path, opts)
	if err != nil {
		return nil, err
	}

	if err = fs.device.Init(); err != nil {
		return nil, errors.Wrap(err, "initializing device")
	}

	err = fs.device.Load(path)
	if errors.Is(err, errors.ErrNotFound) {
		fs.log.Info("image doesn't exist, formatting", "geometry", fs.layout.Geometry.Slug)
		if err = fs.format(); err != nil {
			return nil, err
		}
		if err = fs.Sync(); err != nil {
			return nil, err
		}
		return fs, nil
	} else if err != nil {
		return nil, errors.Wrap(err, "can't load image %q", path)
	}

	if err = fs.mount(); err != nil {
		return nil, errors.Wrap(err, "can't mount %q", path)
	}
	return fs, nil
}

// Format creates a new, empty image at `path`, replacing any existing file.
func Format(path string, opts ...Option) (*FileSystem, error) {
	fs, err := newFileSystem(path, opts)
	if err != nil {
		return nil, err
	}
	if err = fs.format(); err != nil {
		return nil, err
	}
	if err = fs.Sync(); err != nil {
		return nil, err
	}
	return fs, nil
}

// mount validates the image loaded into the device.
func (fs *FileSystem) mount() error {
	loadedSize := fs.device.LoadedSize()
	if loadedSize != fs.layout.ImageSize() {
		return errors.Newf(
			errors.EUCLEAN,
			"image is %d bytes, expected %d for geometry %s",
			loadedSize,
			fs.layout.ImageSize(),
			fs.layout.Geometry.Slug)
	}

	buffer := make([]byte, fs.layout.Geometry.SectorSize)
	if err := fs.device.ReadSector(fs.layout.Superblock.Start, buffer); err != nil {
		return errors.Wrap(err, "reading superblock")
	}

	volumeID, err := decodeSuperblock(buffer)
	if err != nil {
		return err
	}

	fs.volumeID = volumeID
	fs.resetOpenFiles()
	fs.log.Info("mounted image", "volumeID", volumeID, "geometry", fs.layout.Geometry.Slug)
	return nil
}

// format writes an empty file system to the device: the superblock, both
// bitmaps, and an inode table containing only the root directory.
func (fs *FileSystem) format() error {
	if err := fs.device.Init(); err != nil {
		return errors.Wrap(err, "initializing device")
	}

	volumeID := uuid.New()
	buffer := make([]byte, fs.layout.Geometry.SectorSize)
	if err := encodeSuperblock(volumeID, buffer); err != nil {
		return err
	}
	if err := fs.device.WriteSector(fs.layout.Superblock.Start, buffer); err != nil {
		return errors.Wrap(err, "writing superblock")
	}

	if err := fs.inodeMap.Init(1); err != nil {
		return errors.Wrap(err, "formatting inode bitmap")
	}
	if err := fs.sectors.Init(uint(fs.layout.FirstDataSector())); err != nil {
		return errors.Wrap(err, "formatting sector bitmap")
	}
	if err := fs.inodes.format(); err != nil {
		return errors.Wrap(err, "formatting inode table")
	}

	fs.volumeID = volumeID
	fs.resetOpenFiles()
	fs.log.Info(
		"formatted image",
		"volumeID", volumeID,
		"geometry", fs.layout.Geometry.Slug,
		"dataSectors", fs.layout.Data.Count)
	return nil
}

// Sync writes the whole image to the file it was booted from.
func (fs *FileSystem) Sync() error {
	if err := fs.device.Save(fs.path); err != nil {
		return errors.Wrap(err, "can't save image to %q", fs.path)
	}
	fs.log.Debug("synced image")
	return nil
}

// Stat reports the geometry of the image and how much of it is in use.
func (fs *FileSystem) Stat() (simfs.FSStat, error) {
	usedInodes, err := fs.inodeMap.CountSet()
	if err != nil {
		return simfs.FSStat{}, err
	}
	usedSectors, err := fs.sectors.CountSet()
	if err != nil {
		return simfs.FSStat{}, err
	}

	geometry := fs.layout.Geometry
	reserved := uint(fs.layout.FirstDataSector())
	totalSectors := fs.sectors.TotalBits()
	totalInodes := fs.inodeMap.TotalBits()
	return simfs.FSStat{
		VolumeID:          fs.volumeID,
		BytesPerSector:    geometry.SectorSize,
		TotalSectors:      totalSectors,
		DataSectors:       fs.layout.Data.Count,
		FreeDataSectors:   totalSectors - max(usedSectors, reserved),
		TotalInodes:       totalInodes,
		FreeInodes:        totalInodes - usedInodes,
		MaxOpenFiles:      geometry.MaxOpenFiles,
		OpenFiles:         fs.countOpenFiles(),
		MaxFileSize:       fs.layout.MaxFileSize,
		MaxNameLength:     disks.MaxNameLength,
		MaxDirectoryFiles: fs.layout.MaxDirectoryEntries,
	}, nil
}

// Layout gives the layout of the mounted image.
func (fs *FileSystem) Layout() disks.Layout {
	return *fs.layout
}

// VolumeID is the ID generated when the image was formatted.
func (fs *FileSystem) VolumeID() uuid.UUID {
	return fs.volumeID
}

// Device gives the device the file system is stored on.
func (fs *FileSystem) Device() blockdevice.Device {
	return fs.device
}
