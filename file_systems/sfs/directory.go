package sfs

import (
	"github.com/dargueta/simfs"
	"github.com/dargueta/simfs/disks"
	"github.com/dargueta/simfs/errors"
	c "github.com/dargueta/simfs/file_systems/common"
)

// direntLocation gives the sector holding entry `index` of a directory, and the
// byte offset of the entry within that sector.
func (fs *FileSystem) direntLocation(directory *Inode, index uint) (c.PhysicalBlock, uint, error) {
	slotIndex := index / fs.layout.DirentsPerSector
	if slotIndex >= uint(len(directory.Data)) {
		return 0, 0, errors.Newf(
			errors.EUCLEAN,
			"directory entry %d is past the last sector slot",
			index)
	}

	sector, ok := directory.Data[slotIndex].Get()
	if !ok {
		return 0, 0, errors.Newf(
			errors.EUCLEAN,
			"directory entry %d is in unallocated slot %d",
			index,
			slotIndex)
	}
	return sector, (index % fs.layout.DirentsPerSector) * disks.DirentSize, nil
}

// scanEntries calls `fn` for each entry of a directory in storage order until
// it returns false. Each sector is read only once.
func (fs *FileSystem) scanEntries(
	directory *Inode, fn func(index uint, entry simfs.DirectoryEntry) bool,
) error {
	buffer := make([]byte, fs.layout.Geometry.SectorSize)
	loaded := c.InvalidPhysicalBlock

	for index := uint(0); index < uint(directory.Size); index++ {
		sector, offset, err := fs.direntLocation(directory, index)
		if err != nil {
			return err
		}
		if sector != loaded {
			if err = fs.device.ReadSector(sector, buffer); err != nil {
				return errors.Wrap(err, "reading directory sector %d", sector)
			}
			loaded = sector
		}

		entry, err := decodeDirent(fs.layout, buffer[offset:offset+disks.DirentSize])
		if err != nil {
			return errors.Wrap(err, "directory entry %d", index)
		}
		if !fn(index, entry) {
			break
		}
	}
	return nil
}

// findEntry returns the first entry of a directory for which `match` returns
// true.
func (fs *FileSystem) findEntry(
	directory *Inode, match func(simfs.DirectoryEntry) bool,
) (uint, simfs.DirectoryEntry, bool, error) {
	var foundIndex uint
	var foundEntry simfs.DirectoryEntry
	found := false

	err := fs.scanEntries(directory, func(index uint, entry simfs.DirectoryEntry) bool {
		if match(entry) {
			foundIndex = index
			foundEntry = entry
			found = true
			return false
		}
		return true
	})
	return foundIndex, foundEntry, found, err
}

// readEntry loads a single directory entry by index.
func (fs *FileSystem) readEntry(directory *Inode, index uint) (simfs.DirectoryEntry, error) {
	sector, offset, err := fs.direntLocation(directory, index)
	if err != nil {
		return simfs.DirectoryEntry{}, err
	}

	buffer := make([]byte, fs.layout.Geometry.SectorSize)
	if err = fs.device.ReadSector(sector, buffer); err != nil {
		return simfs.DirectoryEntry{}, errors.Wrap(err, "reading directory sector %d", sector)
	}
	return decodeDirent(fs.layout, buffer[offset:offset+disks.DirentSize])
}

// writeEntryBytes overwrites one directory entry with a raw record. A nil
// record zeroes the entry.
func (fs *FileSystem) writeEntryBytes(directory *Inode, index uint, record []byte) error {
	sector, offset, err := fs.direntLocation(directory, index)
	if err != nil {
		return err
	}

	buffer := make([]byte, fs.layout.Geometry.SectorSize)
	if err = fs.device.ReadSector(sector, buffer); err != nil {
		return errors.Wrap(err, "reading directory sector %d", sector)
	}

	target := buffer[offset : offset+disks.DirentSize]
	if record == nil {
		clear(target)
	} else {
		copy(target, record)
	}

	if err = fs.device.WriteSector(sector, buffer); err != nil {
		return errors.Wrap(err, "writing directory sector %d", sector)
	}
	return nil
}

// createEntry allocates a new inode of the given type and appends an entry for
// it to the directory `parentInumber`. The caller must ensure `name` is legal
// and not already present.
func (fs *FileSystem) createEntry(
	fileType simfs.FileType, parentInumber simfs.Inumber, name string,
) (simfs.Inumber, error) {
	childInumber, err := fs.inodes.Allocate(fileType)
	if err != nil {
		return 0, err
	}

	// Until the entry is written nothing refers to the new inode, so it can
	// be given back on failure.
	release := func(cause error) (simfs.Inumber, error) {
		return 0, errors.Combine(cause, fs.inodes.Free(childInumber))
	}

	parent, err := fs.inodes.Read(parentInumber)
	if err != nil {
		return release(err)
	}
	if parent.Type != simfs.TypeDirectory {
		return release(errors.Newf(errors.ENOTDIR, "inode %d isn't a directory", parentInumber))
	}
	if uint(parent.Size) >= fs.layout.MaxDirectoryEntries {
		return release(errors.Newf(
			errors.ENOSPC,
			"directory full (%d entries)",
			fs.layout.MaxDirectoryEntries))
	}

	index := uint(parent.Size)
	slotIndex := index / fs.layout.DirentsPerSector
	offset := (index % fs.layout.DirentsPerSector) * disks.DirentSize
	buffer := make([]byte, fs.layout.Geometry.SectorSize)

	sector, haveSector := parent.Data[slotIndex].Get()
	switch {
	case !haveSector && offset != 0:
		return release(errors.Newf(
			errors.EUCLEAN,
			"directory %d has %d entries but slot %d is empty",
			parentInumber,
			parent.Size,
			slotIndex))
	case !haveSector:
		// First entry in a new sector.
		sector, err = fs.allocateSector()
		if err != nil {
			return release(err)
		}
		parent.Data[slotIndex] = SomeSector(sector)
	case offset != 0:
		if err = fs.device.ReadSector(sector, buffer); err != nil {
			return release(errors.Wrap(err, "reading directory sector %d", sector))
		}
	}

	err = encodeDirent(name, childInumber, buffer[offset:offset+disks.DirentSize])
	if err != nil {
		return release(err)
	}
	if err = fs.device.WriteSector(sector, buffer); err != nil {
		return 0, errors.Wrap(err, "writing directory sector %d", sector)
	}

	parent.Size++
	if err = fs.inodes.Write(parentInumber, &parent); err != nil {
		return 0, err
	}

	fs.log.Debug(
		"created directory entry",
		"parent", parentInumber,
		"name", name,
		"inode", childInumber,
		"type", fileType)
	return childInumber, nil
}

// removeEntry deletes the object `childInumber` and its entry in the directory
// `parentInumber`. Files have their sectors freed; directories must be empty.
// The directory is compacted by moving its last entry into the vacated spot.
func (fs *FileSystem) removeEntry(
	fileType simfs.FileType, parentInumber, childInumber simfs.Inumber,
) error {
	child, err := fs.inodes.Read(childInumber)
	if err != nil {
		return err
	}

	if child.Type != fileType {
		if child.Type == simfs.TypeDirectory {
			return errors.Newf(errors.EISDIR, "inode %d is a directory", childInumber)
		}
		return errors.Newf(errors.ENOTDIR, "inode %d isn't a directory", childInumber)
	}
	if child.Type == simfs.TypeDirectory && child.Size > 0 {
		return errors.Newf(
			errors.ENOTEMPTY,
			"directory %d has %d entries",
			childInumber,
			child.Size)
	}

	for _, sector := range child.AllocatedSectors() {
		if err = fs.sectors.Reset(uint(sector)); err != nil {
			return errors.Wrap(err, "freeing sector %d of inode %d", sector, childInumber)
		}
	}
	if err = fs.inodes.Free(childInumber); err != nil {
		return err
	}

	parent, err := fs.inodes.Read(parentInumber)
	if err != nil {
		return err
	}

	index, _, found, err := fs.findEntry(&parent, func(e simfs.DirectoryEntry) bool {
		return e.Inode == childInumber
	})
	if err != nil {
		return err
	}
	if !found {
		return errors.Newf(
			errors.EUCLEAN,
			"directory %d has no entry for inode %d",
			parentInumber,
			childInumber)
	}

	last := uint(parent.Size) - 1
	if index != last {
		lastEntry, err := fs.readEntry(&parent, last)
		if err != nil {
			return err
		}
		record := make([]byte, disks.DirentSize)
		if err = encodeDirent(lastEntry.Name, lastEntry.Inode, record); err != nil {
			return err
		}
		if err = fs.writeEntryBytes(&parent, index, record); err != nil {
			return err
		}
	}
	if err = fs.writeEntryBytes(&parent, last, nil); err != nil {
		return err
	}

	parent.Size--
	if uint(parent.Size)%fs.layout.DirentsPerSector == 0 {
		// The last sector no longer holds any entries.
		slotIndex := uint(parent.Size) / fs.layout.DirentsPerSector
		if sector, ok := parent.Data[slotIndex].Get(); ok {
			if err = fs.sectors.Reset(uint(sector)); err != nil {
				return errors.Wrap(err, "freeing directory sector %d", sector)
			}
			parent.Data[slotIndex] = NoSector
		}
	}

	if err = fs.inodes.Write(parentInumber, &parent); err != nil {
		return err
	}

	fs.log.Debug(
		"removed directory entry",
		"parent", parentInumber,
		"inode", childInumber,
		"type", fileType)
	return nil
}

// allocateSector claims a data sector, translating a full bitmap into ENOSPC.
func (fs *FileSystem) allocateSector() (c.PhysicalBlock, error) {
	index, err := fs.sectors.FirstUnused()
	if err != nil {
		if errors.Is(err, errors.ErrNoSpaceOnDevice) {
			return 0, errors.Newf(errors.ENOSPC, "no free data sectors")
		}
		return 0, errors.Wrap(err, "allocating data sector")
	}
	return c.PhysicalBlock(index), nil
}

func (fs *FileSystem) createFileOrDirectory(fileType simfs.FileType, path string) error {
	resolved, err := fs.resolvePath(path)
	if err != nil {
		return errors.Wrap(err, "can't create %q", path)
	}
	if resolved.Found {
		return errors.Newf(errors.EEXIST, "%q already exists", path)
	}
	if resolved.parentMissing {
		return errors.Newf(errors.EINVAL, "can't create %q: parent directory doesn't exist", path)
	}

	_, err = fs.createEntry(fileType, resolved.Parent, resolved.Name)
	if err != nil {
		return errors.Wrap(err, "can't create %q", path)
	}
	fs.log.Info("created", "path", path, "type", fileType)
	return nil
}

// resolveForUnlink resolves a path that must exist. Paths that can't be valid
// are reported as not found.
func (fs *FileSystem) resolveForUnlink(path string) (resolvedPath, error) {
	resolved, err := fs.resolvePath(path)
	if err != nil {
		if errors.ErrnoOf(err) == errors.EINVAL {
			return resolvedPath{}, errors.NewFromError(errors.ENOENT, err)
		}
		return resolvedPath{}, err
	}
	if !resolved.Found {
		return resolvedPath{}, errors.Newf(errors.ENOENT, "%q doesn't exist", path)
	}
	return resolved, nil
}

// CreateFile creates an empty file. The parent directory must exist.
func (fs *FileSystem) CreateFile(path string) error {
	return fs.createFileOrDirectory(simfs.TypeFile, path)
}

// CreateDirectory creates an empty directory. The parent directory must exist.
func (fs *FileSystem) CreateDirectory(path string) error {
	return fs.createFileOrDirectory(simfs.TypeDirectory, path)
}

// UnlinkFile deletes a file and frees its sectors. It fails with EBUSY if the
// file is open.
func (fs *FileSystem) UnlinkFile(path string) error {
	resolved, err := fs.resolveForUnlink(path)
	if err != nil {
		return err
	}
	if fs.isOpen(resolved.Child) {
		return errors.Newf(errors.EBUSY, "%q is open", path)
	}

	if err = fs.removeEntry(simfs.TypeFile, resolved.Parent, resolved.Child); err != nil {
		return errors.Wrap(err, "can't unlink %q", path)
	}
	fs.log.Info("unlinked file", "path", path)
	return nil
}

// UnlinkDirectory deletes an empty directory. The root can't be removed.
func (fs *FileSystem) UnlinkDirectory(path string) error {
	resolved, err := fs.resolveForUnlink(path)
	if err != nil {
		return err
	}
	if resolved.Child == simfs.RootInumber {
		return errors.NewWithMessage(errors.EBUSY, "can't remove the root directory")
	}

	if err = fs.removeEntry(simfs.TypeDirectory, resolved.Parent, resolved.Child); err != nil {
		return errors.Wrap(err, "can't remove %q", path)
	}
	fs.log.Info("removed directory", "path", path)
	return nil
}
