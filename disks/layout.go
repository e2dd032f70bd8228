package disks

import (
	"math"

	"github.com/dargueta/simfs/errors"
	c "github.com/dargueta/simfs/file_systems/common"
)

// Sizes of the fixed-layout records stored on disk. All integers are 32 bits.
const (
	// InodeHeaderSize covers the size and type fields that precede an inode's
	// sector list.
	InodeHeaderSize = 8
	// SectorIndexSize is the size of one entry in an inode's sector list.
	SectorIndexSize = 4
	// NameFieldSize is the size of the name field of a directory entry,
	// including the terminating null byte.
	NameFieldSize = 16
	// MaxNameLength is the number of significant characters in a name.
	MaxNameLength = NameFieldSize - 1
	DirentSize    = NameFieldSize + 4
	// MaxPathLength is the longest absolute path accepted, in bytes.
	MaxPathLength = 256
)

// Layout gives the location of every region of an image. It's derived entirely
// from a [Geometry], so two images with the same geometry have the same layout.
//
//	sector 0                  superblock
//	InodeBitmap               one bit per inode
//	SectorBitmap              one bit per sector on the device
//	InodeTable                InodesPerSector records per sector, never split
//	Data                      everything else
type Layout struct {
	Geometry     Geometry
	Superblock   c.SectorRange
	InodeBitmap  c.SectorRange
	SectorBitmap c.SectorRange
	InodeTable   c.SectorRange
	Data         c.SectorRange

	InodeSize           uint
	InodesPerSector     uint
	DirentsPerSector    uint
	MaxFileSize         int64
	MaxDirectoryEntries uint
}

// InodeSizeFor returns the size of one inode record for the given geometry.
func InodeSizeFor(g Geometry) uint {
	return InodeHeaderSize + SectorIndexSize*g.MaxSectorsPerFile
}

// bitmapSectors gives the number of sectors needed to hold `totalBits` bits.
func bitmapSectors(totalBits, sectorSize uint) uint {
	return c.CeilDiv(c.CeilDiv(totalBits, 8), sectorSize)
}

// ComputeLayout calculates the layout of an image with the given geometry. It
// fails with EINVAL if the geometry can't produce a usable image.
func ComputeLayout(g Geometry) (Layout, error) {
	switch {
	case g.SectorSize == 0, g.TotalSectors == 0, g.MaxFiles == 0,
		g.MaxSectorsPerFile == 0, g.MaxOpenFiles == 0:
		return Layout{}, errors.Newf(errors.EINVAL, "every capacity in geometry %s must be nonzero", g)
	case g.TotalSectors > math.MaxInt32 || g.MaxFiles > math.MaxInt32:
		return Layout{}, errors.Newf(
			errors.EINVAL,
			"geometry %s exceeds the 32-bit sector and inode number limits",
			g)
	}

	inodeSize := InodeSizeFor(g)
	if g.SectorSize < inodeSize || g.SectorSize < DirentSize {
		return Layout{}, errors.Newf(
			errors.EINVAL,
			"a %d-byte sector can't hold a %d-byte inode and a %d-byte directory entry",
			g.SectorSize,
			inodeSize,
			DirentSize)
	}

	layout := Layout{
		Geometry:         g,
		InodeSize:        inodeSize,
		InodesPerSector:  g.SectorSize / inodeSize,
		DirentsPerSector: g.SectorSize / DirentSize,
		MaxFileSize:      int64(g.MaxSectorsPerFile) * int64(g.SectorSize),
	}
	layout.MaxDirectoryEntries = g.MaxSectorsPerFile * layout.DirentsPerSector

	layout.Superblock = c.SectorRange{Start: 0, Count: 1}
	layout.InodeBitmap = c.SectorRange{
		Start: layout.Superblock.End(),
		Count: bitmapSectors(g.MaxFiles, g.SectorSize),
	}
	layout.SectorBitmap = c.SectorRange{
		Start: layout.InodeBitmap.End(),
		Count: bitmapSectors(g.TotalSectors, g.SectorSize),
	}
	layout.InodeTable = c.SectorRange{
		Start: layout.SectorBitmap.End(),
		Count: c.CeilDiv(g.MaxFiles, layout.InodesPerSector),
	}

	firstData := layout.InodeTable.End()
	if uint(firstData) >= g.TotalSectors {
		return Layout{}, errors.Newf(
			errors.EINVAL,
			"metadata for geometry %s needs %d sectors, leaving no room for data",
			g,
			firstData)
	}
	layout.Data = c.SectorRange{
		Start: firstData,
		Count: g.TotalSectors - uint(firstData),
	}
	return layout, nil
}

// FirstDataSector is the index of the first sector that can be allocated to a
// file or directory. Every sector before it is reserved.
func (l *Layout) FirstDataSector() c.PhysicalBlock {
	return l.Data.Start
}

// ImageSize gives the exact size of a valid image file, in bytes.
func (l *Layout) ImageSize() int64 {
	return l.Geometry.TotalSizeBytes()
}

// InodeLocation returns the sector holding inode `inumber` and the byte offset
// of the record within that sector.
func (l *Layout) InodeLocation(inumber uint) (c.PhysicalBlock, uint) {
	sector := l.InodeTable.Start + c.PhysicalBlock(inumber/l.InodesPerSector)
	return sector, (inumber % l.InodesPerSector) * l.InodeSize
}
