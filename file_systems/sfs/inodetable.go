package sfs

import (
	"github.com/dargueta/simfs"
	"github.com/dargueta/simfs/disks"
	"github.com/dargueta/simfs/errors"
	c "github.com/dargueta/simfs/file_systems/common"
	"github.com/dargueta/simfs/file_systems/common/allocator"
	"github.com/dargueta/simfs/file_systems/common/blockdevice"
)

// InodeTable reads and writes inode records, and allocates inode numbers using
// the inode bitmap.
type InodeTable struct {
	device blockdevice.Device
	layout *disks.Layout
	bitmap *allocator.SectorBitmap
}

func newInodeTable(
	device blockdevice.Device, layout *disks.Layout, bitmap *allocator.SectorBitmap,
) *InodeTable {
	return &InodeTable{
		device: device,
		layout: layout,
		bitmap: bitmap,
	}
}

func (table *InodeTable) checkInumber(inumber simfs.Inumber) error {
	if uint(inumber) >= table.layout.Geometry.MaxFiles {
		return errors.Newf(
			errors.EINVAL,
			"inode %d not in range [0, %d)",
			inumber,
			table.layout.Geometry.MaxFiles)
	}
	return nil
}

// Read loads an inode from disk.
func (table *InodeTable) Read(inumber simfs.Inumber) (Inode, error) {
	return newInodeSectorCache(table).Read(inumber)
}

// Write stores an inode, leaving the other inodes in the same sector untouched.
func (table *InodeTable) Write(inumber simfs.Inumber, inode *Inode) error {
	if err := table.checkInumber(inumber); err != nil {
		return err
	}

	sector, offset := table.layout.InodeLocation(uint(inumber))
	buffer := make([]byte, table.layout.Geometry.SectorSize)
	if err := table.device.ReadSector(sector, buffer); err != nil {
		return errors.Wrap(err, "reading inode %d", inumber)
	}

	err := encodeInode(table.layout, inode, buffer[offset:offset+table.layout.InodeSize])
	if err != nil {
		return errors.Wrap(err, "encoding inode %d", inumber)
	}

	if err = table.device.WriteSector(sector, buffer); err != nil {
		return errors.Wrap(err, "writing inode %d", inumber)
	}
	return nil
}

// Allocate claims the lowest free inode number and initializes its record as
// an empty object of the given type. It fails with ENOSPC if every inode is in
// use.
func (table *InodeTable) Allocate(fileType simfs.FileType) (simfs.Inumber, error) {
	index, err := table.bitmap.FirstUnused()
	if errors.Is(err, allocator.ErrFull) {
		return 0, errors.Newf(
			errors.ENOSPC,
			"inode table full (%d inodes)",
			table.layout.Geometry.MaxFiles)
	} else if err != nil {
		return 0, errors.Wrap(err, "allocating inode")
	}

	inumber := simfs.Inumber(index)
	inode := newInode(table.layout, fileType)
	if err = table.Write(inumber, &inode); err != nil {
		return 0, errors.Combine(err, table.bitmap.Reset(index))
	}
	return inumber, nil
}

// Free zeroes an inode's record and releases its number. It doesn't touch the
// sectors the inode refers to.
func (table *InodeTable) Free(inumber simfs.Inumber) error {
	if inumber == simfs.RootInumber {
		return errors.NewWithMessage(errors.EBUSY, "can't free the root directory's inode")
	}

	empty := newInode(table.layout, simfs.TypeFile)
	if err := table.Write(inumber, &empty); err != nil {
		return err
	}
	return table.bitmap.Reset(uint(inumber))
}

// IsAllocated determines if an inode number is in use.
func (table *InodeTable) IsAllocated(inumber simfs.Inumber) (bool, error) {
	if err := table.checkInumber(inumber); err != nil {
		return false, err
	}
	return table.bitmap.IsSet(uint(inumber))
}

// format zeroes the whole inode table and writes an empty root directory.
func (table *InodeTable) format() error {
	blank := make([]byte, table.layout.Geometry.SectorSize)
	for i := uint(0); i < table.layout.InodeTable.Count; i++ {
		sector := table.layout.InodeTable.Start + c.PhysicalBlock(i)
		if err := table.device.WriteSector(sector, blank); err != nil {
			return errors.Wrap(err, "clearing inode table sector %d", sector)
		}
	}

	root := newInode(table.layout, simfs.TypeDirectory)
	return table.Write(simfs.RootInumber, &root)
}

////////////////////////////////////////////////////////////////////////////////

// inodeSectorCache remembers the last inode table sector it read. Path
// resolution reads many inodes that tend to be close together, so this avoids
// rereading the same sector for each one. It must not outlive the operation
// that created it, since it never sees writes.
type inodeSectorCache struct {
	table  *InodeTable
	sector c.PhysicalBlock
	loaded bool
	buffer []byte
	misses int
}

func newInodeSectorCache(table *InodeTable) *inodeSectorCache {
	return &inodeSectorCache{
		table:  table,
		buffer: make([]byte, table.layout.Geometry.SectorSize),
	}
}

func (cache *inodeSectorCache) Read(inumber simfs.Inumber) (Inode, error) {
	if err := cache.table.checkInumber(inumber); err != nil {
		return Inode{}, err
	}

	layout := cache.table.layout
	sector, offset := layout.InodeLocation(uint(inumber))
	if !cache.loaded || cache.sector != sector {
		cache.loaded = false
		if err := cache.table.device.ReadSector(sector, cache.buffer); err != nil {
			return Inode{}, errors.Wrap(err, "reading inode %d", inumber)
		}
		cache.sector = sector
		cache.loaded = true
		cache.misses++
	}

	inode, err := decodeInode(layout, cache.buffer[offset:offset+layout.InodeSize])
	if err != nil {
		return Inode{}, errors.Wrap(err, "inode %d is corrupted", inumber)
	}
	return inode, nil
}
