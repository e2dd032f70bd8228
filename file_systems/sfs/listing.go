package sfs

import (
	"path"

	"github.com/dargueta/simfs"
	"github.com/dargueta/simfs/disks"
	"github.com/dargueta/simfs/errors"
)

// resolveDirectory finds an existing directory and loads its inode.
func (fs *FileSystem) resolveDirectory(dirPath string) (simfs.Inumber, Inode, error) {
	inumber, inode, err := fs.StatPath(dirPath)
	if err != nil {
		return 0, Inode{}, err
	}
	if inode.Type != simfs.TypeDirectory {
		return 0, Inode{}, errors.Newf(errors.ENOTDIR, "%q isn't a directory", dirPath)
	}
	return inumber, inode, nil
}

// StatPath returns the inode of the file or directory at `objectPath`.
func (fs *FileSystem) StatPath(objectPath string) (simfs.Inumber, Inode, error) {
	resolved, err := fs.resolvePath(objectPath)
	if err != nil {
		return 0, Inode{}, err
	}
	if !resolved.Found {
		return 0, Inode{}, errors.Newf(errors.ENOENT, "%q doesn't exist", objectPath)
	}

	inode, err := fs.inodes.Read(resolved.Child)
	if err != nil {
		return 0, Inode{}, err
	}
	return resolved.Child, inode, nil
}

// DirectorySize gives the number of bytes needed to hold all of a directory's
// entries.
func (fs *FileSystem) DirectorySize(dirPath string) (int, error) {
	_, inode, err := fs.resolveDirectory(dirPath)
	if err != nil {
		return 0, err
	}
	return int(inode.Size) * disks.DirentSize, nil
}

// ReadDirectoryInto copies a directory's raw entries into `buffer` in storage
// order and returns the number of entries. The buffer must be at least
// [FileSystem.DirectorySize] bytes.
func (fs *FileSystem) ReadDirectoryInto(dirPath string, buffer []byte) (int, error) {
	_, inode, err := fs.resolveDirectory(dirPath)
	if err != nil {
		return 0, err
	}

	required := int(inode.Size) * disks.DirentSize
	if len(buffer) < required {
		return 0, errors.Newf(
			errors.ERANGE,
			"listing %q needs %d bytes, buffer is %d",
			dirPath,
			required,
			len(buffer))
	}

	sectorBuffer := make([]byte, fs.layout.Geometry.SectorSize)
	remaining := uint(inode.Size)
	copied := 0

	for slotIndex := 0; remaining > 0; slotIndex++ {
		if slotIndex >= len(inode.Data) {
			return 0, errors.Newf(errors.EUCLEAN, "directory %q has too many entries", dirPath)
		}
		sector, ok := inode.Data[slotIndex].Get()
		if !ok {
			return 0, errors.Newf(
				errors.EUCLEAN,
				"directory %q has %d entries but slot %d is empty",
				dirPath,
				inode.Size,
				slotIndex)
		}
		if err = fs.device.ReadSector(sector, sectorBuffer); err != nil {
			return 0, errors.Wrap(err, "reading directory sector %d", sector)
		}

		entriesHere := min(remaining, fs.layout.DirentsPerSector)
		chunkSize := int(entriesHere) * disks.DirentSize
		copy(buffer[copied:copied+chunkSize], sectorBuffer[:chunkSize])
		copied += chunkSize
		remaining -= entriesHere
	}
	return int(inode.Size), nil
}

// ReadDirectory returns every entry of a directory in storage order. `capacity`
// is the size of the caller's buffer, in bytes, and must be at least
// [FileSystem.DirectorySize].
func (fs *FileSystem) ReadDirectory(dirPath string, capacity int) ([]simfs.DirectoryEntry, error) {
	size, err := fs.DirectorySize(dirPath)
	if err != nil {
		return nil, err
	}
	if capacity < size {
		return nil, errors.Newf(
			errors.ERANGE,
			"listing %q needs %d bytes, capacity is %d",
			dirPath,
			size,
			capacity)
	}

	buffer := make([]byte, size)
	count, err := fs.ReadDirectoryInto(dirPath, buffer)
	if err != nil {
		return nil, err
	}

	entries := make([]simfs.DirectoryEntry, count)
	for i := range entries {
		offset := i * disks.DirentSize
		entries[i], err = decodeDirent(fs.layout, buffer[offset:offset+disks.DirentSize])
		if err != nil {
			return nil, errors.Wrap(err, "entry %d of %q", i, dirPath)
		}
	}
	return entries, nil
}

// WalkFunc is called by [FileSystem.Walk] for every object under the starting
// directory. Returning an error stops the walk and makes Walk return it.
type WalkFunc func(objectPath string, entry simfs.DirectoryEntry, inode Inode) error

// Walk recursively visits everything under the directory `dirPath`, depth
// first. Children of a directory are visited right after it.
func (fs *FileSystem) Walk(dirPath string, fn WalkFunc) error {
	inumber, inode, err := fs.resolveDirectory(dirPath)
	if err != nil {
		return err
	}
	return fs.walkDirectory(path.Clean(dirPath), inumber, &inode, fn)
}

func (fs *FileSystem) walkDirectory(
	dirPath string, inumber simfs.Inumber, directory *Inode, fn WalkFunc,
) error {
	var entries []simfs.DirectoryEntry
	err := fs.scanEntries(directory, func(_ uint, entry simfs.DirectoryEntry) bool {
		entries = append(entries, entry)
		return true
	})
	if err != nil {
		return errors.Wrap(err, "listing directory %d", inumber)
	}

	for _, entry := range entries {
		childPath := path.Join(dirPath, entry.Name)
		child, err := fs.inodes.Read(entry.Inode)
		if err != nil {
			return err
		}
		if err = fn(childPath, entry, child); err != nil {
			return err
		}
		if child.Type == simfs.TypeDirectory {
			if err = fs.walkDirectory(childPath, entry.Inode, &child, fn); err != nil {
				return err
			}
		}
	}
	return nil
}
