package sfs

import (
	"github.com/dargueta/simfs"
	"github.com/dargueta/simfs/errors"
	c "github.com/dargueta/simfs/file_systems/common"
)

// openFile is one slot in the open file table. A descriptor is the index of its
// slot.
type openFile struct {
	inumber simfs.Inumber
	// size is the file's size when it was opened, updated by writes through
	// any descriptor.
	size   int64
	cursor int64
	open   bool
}

func (fs *FileSystem) resetOpenFiles() {
	fs.openFiles = make([]openFile, fs.layout.Geometry.MaxOpenFiles)
}

func (fs *FileSystem) isOpen(inumber simfs.Inumber) bool {
	for i := range fs.openFiles {
		if fs.openFiles[i].open && fs.openFiles[i].inumber == inumber {
			return true
		}
	}
	return false
}

func (fs *FileSystem) countOpenFiles() uint {
	count := uint(0)
	for i := range fs.openFiles {
		if fs.openFiles[i].open {
			count++
		}
	}
	return count
}

func (fs *FileSystem) getOpenFile(fd int) (*openFile, error) {
	if fd < 0 || fd >= len(fs.openFiles) || !fs.openFiles[fd].open {
		return nil, errors.Newf(errors.EBADF, "%d isn't an open file descriptor", fd)
	}
	return &fs.openFiles[fd], nil
}

// sectorSpan gives the index of the sector containing byte `position` of a
// file, the offset of that byte within the sector, and how many bytes of
// [position, end) fall in that sector.
func (fs *FileSystem) sectorSpan(position, end int64) (uint, int64, int64) {
	sectorSize := int64(fs.layout.Geometry.SectorSize)
	offset := position % sectorSize
	return uint(position / sectorSize), offset, min(sectorSize-offset, end-position)
}

// OpenFile opens a file and returns a descriptor positioned at its start. The
// lowest free descriptor is always used.
func (fs *FileSystem) OpenFile(path string) (int, error) {
	resolved, err := fs.resolvePath(path)
	if err != nil {
		return -1, errors.Wrap(err, "can't open %q", path)
	}
	if !resolved.Found {
		return -1, errors.Newf(errors.ENOENT, "%q doesn't exist", path)
	}

	inode, err := fs.inodes.Read(resolved.Child)
	if err != nil {
		return -1, err
	}
	if inode.Type != simfs.TypeFile {
		return -1, errors.Newf(errors.EISDIR, "%q is a directory", path)
	}

	for fd := range fs.openFiles {
		if fs.openFiles[fd].open {
			continue
		}
		fs.openFiles[fd] = openFile{
			inumber: resolved.Child,
			size:    inode.Size,
			open:    true,
		}
		fs.log.Debug("opened file", "path", path, "fd", fd, "inode", resolved.Child)
		return fd, nil
	}
	return -1, errors.Newf(
		errors.EMFILE,
		"all %d file descriptors are in use",
		len(fs.openFiles))
}

// ReadInto reads from the descriptor's position into `buffer`, stopping at the
// end of the file. It returns the number of bytes read, which is 0 at the end
// of the file.
func (fs *FileSystem) ReadInto(fd int, buffer []byte) (int, error) {
	handle, err := fs.getOpenFile(fd)
	if err != nil {
		return 0, err
	}
	if handle.cursor >= handle.size || len(buffer) == 0 {
		return 0, nil
	}

	inode, err := fs.inodes.Read(handle.inumber)
	if err != nil {
		return 0, err
	}

	end := min(handle.cursor+int64(len(buffer)), handle.size)
	sectorBuffer := make([]byte, fs.layout.Geometry.SectorSize)
	bytesRead := 0

	for handle.cursor < end {
		slotIndex, offset, chunkSize := fs.sectorSpan(handle.cursor, end)
		if slotIndex >= uint(len(inode.Data)) {
			return bytesRead, errors.Newf(
				errors.EFBIG,
				"offset %d is past the largest possible file",
				handle.cursor)
		}

		sector, ok := inode.Data[slotIndex].Get()
		if !ok {
			return bytesRead, errors.Newf(
				errors.EUCLEAN,
				"inode %d is %d bytes but slot %d is empty",
				handle.inumber,
				handle.size,
				slotIndex)
		}
		if err = fs.device.ReadSector(sector, sectorBuffer); err != nil {
			return bytesRead, errors.Wrap(err, "reading sector %d of inode %d", sector, handle.inumber)
		}

		copy(buffer[bytesRead:], sectorBuffer[offset:offset+chunkSize])
		bytesRead += int(chunkSize)
		handle.cursor += chunkSize
	}
	return bytesRead, nil
}

// ReadFile reads up to `size` bytes from the descriptor's position. At the end
// of the file it returns an empty slice.
func (fs *FileSystem) ReadFile(fd int, size int) ([]byte, error) {
	if size < 0 {
		return nil, errors.Newf(errors.EINVAL, "can't read %d bytes", size)
	}
	if _, err := fs.getOpenFile(fd); err != nil {
		return nil, err
	}

	buffer := make([]byte, size)
	n, err := fs.ReadInto(fd, buffer)
	return buffer[:n], err
}

// WriteFile writes all of `data` at the descriptor's position, allocating
// sectors as needed. Afterwards the file ends at the new position.
//
// If the device runs out of space partway through, the data written so far
// stays on disk but the file's size isn't changed.
func (fs *FileSystem) WriteFile(fd int, data []byte) (int, error) {
	handle, err := fs.getOpenFile(fd)
	if err != nil {
		return 0, err
	}

	end := handle.cursor + int64(len(data))
	if end > fs.layout.MaxFileSize {
		return 0, errors.Newf(
			errors.EFBIG,
			"writing %d bytes at offset %d exceeds the maximum file size of %d",
			len(data),
			handle.cursor,
			fs.layout.MaxFileSize)
	}

	inode, err := fs.inodes.Read(handle.inumber)
	if err != nil {
		return 0, err
	}

	sectorSize := int64(fs.layout.Geometry.SectorSize)
	sectorBuffer := make([]byte, sectorSize)
	position := handle.cursor
	written := int64(0)
	allocated := false

	for position < end {
		slotIndex, offset, chunkSize := fs.sectorSpan(position, end)

		sector, ok := inode.Data[slotIndex].Get()
		if !ok {
			sector, err = fs.allocateSector()
			if err != nil {
				return int(written), fs.abortWrite(handle, &inode, allocated, err)
			}
			inode.Data[slotIndex] = SomeSector(sector)
			allocated = true
			clear(sectorBuffer)
		} else if chunkSize < sectorSize {
			if err = fs.device.ReadSector(sector, sectorBuffer); err != nil {
				return int(written), fs.abortWrite(
					handle, &inode, allocated, errors.Wrap(err, "reading sector %d", sector))
			}
		}

		copy(sectorBuffer[offset:offset+chunkSize], data[written:written+chunkSize])
		if err = fs.device.WriteSector(sector, sectorBuffer); err != nil {
			return int(written), fs.abortWrite(
				handle, &inode, allocated, errors.Wrap(err, "writing sector %d", sector))
		}

		position += chunkSize
		written += chunkSize
		handle.cursor = position
	}

	inode.Size = position
	if err = fs.inodes.Write(handle.inumber, &inode); err != nil {
		return int(written), err
	}
	for i := range fs.openFiles {
		if fs.openFiles[i].open && fs.openFiles[i].inumber == handle.inumber {
			fs.openFiles[i].size = position
		}
	}

	fs.log.Debug("wrote file", "fd", fd, "inode", handle.inumber, "bytes", len(data), "size", position)
	return len(data), nil
}

// abortWrite handles a write failing partway through. Nothing is rolled back,
// but sectors allocated so far are recorded in the inode so they aren't leaked.
// The size is left alone.
func (fs *FileSystem) abortWrite(handle *openFile, inode *Inode, allocated bool, cause error) error {
	fs.log.Warn("write failed", "inode", handle.inumber, "cursor", handle.cursor, "error", cause)
	if !allocated {
		return cause
	}

	stored, err := fs.inodes.Read(handle.inumber)
	if err != nil {
		return errors.Combine(cause, err)
	}
	stored.Data = inode.Data
	return errors.Combine(cause, fs.inodes.Write(handle.inumber, &stored))
}

// SeekFile moves the descriptor's position. The offset may be anywhere from the
// start of the file up to and including its end.
func (fs *FileSystem) SeekFile(fd int, offset int64) (int64, error) {
	handle, err := fs.getOpenFile(fd)
	if err != nil {
		return 0, err
	}
	if offset < 0 || offset > handle.size {
		return handle.cursor, errors.Newf(
			errors.ESPIPE,
			"offset %d not in range [0, %d]",
			offset,
			handle.size)
	}
	handle.cursor = offset
	return offset, nil
}

// CloseFile releases a descriptor so it can be reused.
func (fs *FileSystem) CloseFile(fd int) error {
	handle, err := fs.getOpenFile(fd)
	if err != nil {
		return err
	}
	fs.log.Debug("closed file", "fd", fd, "inode", handle.inumber)
	*handle = openFile{}
	return nil
}

// sectorsForSize gives the number of sectors needed to hold `size` bytes.
func (fs *FileSystem) sectorsForSize(size int64) uint {
	return c.CeilDiv(uint(size), fs.layout.Geometry.SectorSize)
}
