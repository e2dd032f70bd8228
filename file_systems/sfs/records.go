package sfs

import (
	"bytes"
	"encoding/binary"

	"github.com/dargueta/simfs"
	"github.com/dargueta/simfs/disks"
	"github.com/dargueta/simfs/errors"
	c "github.com/dargueta/simfs/file_systems/common"
	"github.com/google/uuid"
	"github.com/noxer/bytewriter"
)

// MagicNumber identifies an image as belonging to this file system.
const MagicNumber = uint32(0xdeadbeef)

type rawSuperblock struct {
	Magic    uint32
	VolumeID [16]byte
}

////////////////////////////////////////////////////////////////////////////////
// Sector slots

// SectorSlot is one entry in an inode's sector list. It's either empty or holds
// the index of an allocated data sector.
type SectorSlot struct {
	sector c.PhysicalBlock
	valid  bool
}

// NoSector is an empty slot.
var NoSector = SectorSlot{}

// SomeSector creates a slot referring to `sector`.
func SomeSector(sector c.PhysicalBlock) SectorSlot {
	return SectorSlot{sector: sector, valid: true}
}

// Get returns the sector and true, or false if the slot is empty.
func (s SectorSlot) Get() (c.PhysicalBlock, bool) {
	return s.sector, s.valid
}

func (s SectorSlot) IsAllocated() bool {
	return s.valid
}

////////////////////////////////////////////////////////////////////////////////
// Inodes

// Inode is the decoded form of an inode record.
type Inode struct {
	// Size is the size in bytes for a file, or the number of entries for a
	// directory.
	Size int64
	Type simfs.FileType
	// Data always has exactly MaxSectorsPerFile slots.
	Data []SectorSlot
}

// newInode creates an empty inode of the given type for the given layout.
func newInode(layout *disks.Layout, fileType simfs.FileType) Inode {
	return Inode{
		Type: fileType,
		Data: make([]SectorSlot, layout.Geometry.MaxSectorsPerFile),
	}
}

// AllocatedSectors returns the sectors in the inode's slot list, in slot order.
func (inode *Inode) AllocatedSectors() []c.PhysicalBlock {
	result := make([]c.PhysicalBlock, 0, len(inode.Data))
	for _, slot := range inode.Data {
		if sector, ok := slot.Get(); ok {
			result = append(result, sector)
		}
	}
	return result
}

// encodeInode writes the on-disk form of `inode` into `buffer`, which must be
// at least InodeSize bytes.
func encodeInode(layout *disks.Layout, inode *Inode, buffer []byte) error {
	if uint(len(inode.Data)) != layout.Geometry.MaxSectorsPerFile {
		return errors.Newf(
			errors.EINVAL,
			"inode has %d sector slots, expected %d",
			len(inode.Data),
			layout.Geometry.MaxSectorsPerFile)
	}
	if inode.Size < 0 || inode.Size > int64(^uint32(0)>>1) {
		return errors.Newf(errors.EINVAL, "inode size %d can't be stored", inode.Size)
	}

	fields := make([]int32, 0, 2+len(inode.Data))
	fields = append(fields, int32(inode.Size), int32(inode.Type))
	for _, slot := range inode.Data {
		if sector, ok := slot.Get(); ok {
			fields = append(fields, int32(sector))
		} else {
			fields = append(fields, 0)
		}
	}

	writer := bytewriter.New(buffer)
	if err := binary.Write(writer, binary.LittleEndian, fields); err != nil {
		return errors.NewFromError(errors.EINVAL, err)
	}
	return nil
}

// decodeInode parses an inode record, rejecting ones that can't be valid.
func decodeInode(layout *disks.Layout, buffer []byte) (Inode, error) {
	if uint(len(buffer)) < layout.InodeSize {
		return Inode{}, errors.Newf(
			errors.EINVAL,
			"inode buffer is %d bytes, need %d",
			len(buffer),
			layout.InodeSize)
	}

	size := int32(binary.LittleEndian.Uint32(buffer[0:4]))
	fileType := simfs.FileType(int32(binary.LittleEndian.Uint32(buffer[4:8])))
	if size < 0 {
		return Inode{}, errors.Newf(errors.EUCLEAN, "inode has negative size %d", size)
	}
	if fileType != simfs.TypeFile && fileType != simfs.TypeDirectory {
		return Inode{}, errors.Newf(errors.EUCLEAN, "inode has invalid type %d", fileType)
	}

	inode := Inode{
		Size: int64(size),
		Type: fileType,
		Data: make([]SectorSlot, layout.Geometry.MaxSectorsPerFile),
	}

	for i := range inode.Data {
		offset := disks.InodeHeaderSize + i*disks.SectorIndexSize
		rawSector := int32(binary.LittleEndian.Uint32(buffer[offset : offset+4]))
		if rawSector == 0 {
			continue
		}
		if rawSector < 0 || !layout.Data.Contains(c.PhysicalBlock(rawSector)) {
			return Inode{}, errors.Newf(
				errors.EUCLEAN,
				"slot %d refers to sector %d, outside the data region %s",
				i,
				rawSector,
				layout.Data)
		}
		inode.Data[i] = SomeSector(c.PhysicalBlock(rawSector))
	}
	return inode, nil
}

////////////////////////////////////////////////////////////////////////////////
// Directory entries

// encodeDirent writes a directory entry into `buffer`, which must be at least
// DirentSize bytes. The name must already have been validated.
func encodeDirent(name string, inumber simfs.Inumber, buffer []byte) error {
	if len(name) > disks.MaxNameLength {
		return errors.Newf(errors.ENAMETOOLONG, "name %q is longer than %d characters", name, disks.MaxNameLength)
	}

	var nameField [disks.NameFieldSize]byte
	copy(nameField[:], name)

	writer := bytewriter.New(buffer)
	if _, err := writer.Write(nameField[:]); err != nil {
		return errors.NewFromError(errors.EINVAL, err)
	}
	if err := binary.Write(writer, binary.LittleEndian, int32(inumber)); err != nil {
		return errors.NewFromError(errors.EINVAL, err)
	}
	return nil
}

// decodeDirent parses a directory entry.
func decodeDirent(layout *disks.Layout, buffer []byte) (simfs.DirectoryEntry, error) {
	if len(buffer) < disks.DirentSize {
		return simfs.DirectoryEntry{}, errors.Newf(
			errors.EINVAL,
			"directory entry buffer is %d bytes, need %d",
			len(buffer),
			disks.DirentSize)
	}

	nameField := buffer[:disks.NameFieldSize]
	if end := bytes.IndexByte(nameField, 0); end >= 0 {
		nameField = nameField[:end]
	} else {
		return simfs.DirectoryEntry{}, errors.New(errors.EUCLEAN)
	}

	rawInumber := int32(binary.LittleEndian.Uint32(buffer[disks.NameFieldSize:disks.DirentSize]))
	if rawInumber < 0 || uint(rawInumber) >= layout.Geometry.MaxFiles {
		return simfs.DirectoryEntry{}, errors.Newf(
			errors.EUCLEAN,
			"directory entry %q refers to inode %d, not in [0, %d)",
			nameField,
			rawInumber,
			layout.Geometry.MaxFiles)
	}

	return simfs.DirectoryEntry{
		Name:  string(nameField),
		Inode: simfs.Inumber(rawInumber),
	}, nil
}

////////////////////////////////////////////////////////////////////////////////
// Superblock

func encodeSuperblock(volumeID uuid.UUID, buffer []byte) error {
	writer := bytewriter.New(buffer)
	raw := rawSuperblock{Magic: MagicNumber, VolumeID: volumeID}
	if err := binary.Write(writer, binary.LittleEndian, &raw); err != nil {
		return errors.NewFromError(errors.EINVAL, err)
	}
	return nil
}

// decodeSuperblock validates the magic number and returns the volume ID.
func decodeSuperblock(buffer []byte) (uuid.UUID, error) {
	var raw rawSuperblock
	err := binary.Read(bytes.NewReader(buffer), binary.LittleEndian, &raw)
	if err != nil {
		return uuid.Nil, errors.NewFromError(errors.EMEDIUMTYPE, err)
	}
	if raw.Magic != MagicNumber {
		return uuid.Nil, errors.Newf(
			errors.EMEDIUMTYPE,
			"bad magic number: expected %#08x, got %#08x",
			MagicNumber,
			raw.Magic)
	}
	return uuid.UUID(raw.VolumeID), nil
}
