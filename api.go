package simfs

import (
	"github.com/google/uuid"
)

// Inumber is the index of an inode in the inode table.
type Inumber uint32

// RootInumber is the inode of the root directory. It's allocated when the image
// is formatted and can never be removed.
const RootInumber = Inumber(0)

// FileType is the kind of object an inode describes. The numeric values are the
// ones stored on disk.
type FileType int32

const (
	TypeFile      = FileType(0)
	TypeDirectory = FileType(1)
)

func (t FileType) String() string {
	switch t {
	case TypeFile:
		return "file"
	case TypeDirectory:
		return "directory"
	default:
		return "unknown"
	}
}

// DirectoryEntry is a single (name, inode) pair as stored in a directory.
type DirectoryEntry struct {
	Name  string
	Inode Inumber
}

// FSStat gives usage information about a mounted file system.
type FSStat struct {
	VolumeID          uuid.UUID
	BytesPerSector    uint
	TotalSectors      uint
	DataSectors       uint
	FreeDataSectors   uint
	TotalInodes       uint
	FreeInodes        uint
	MaxOpenFiles      uint
	OpenFiles         uint
	MaxFileSize       int64
	MaxNameLength     uint
	MaxDirectoryFiles uint
}

// FileDriver is the interface for drivers supporting descriptor-based file I/O.
type FileDriver interface {
	// CreateFile creates an empty regular file. The parent directory must exist.
	CreateFile(path string) error
	// UnlinkFile deletes a regular file. It fails if the file is open.
	UnlinkFile(path string) error
	// OpenFile returns a new descriptor positioned at the start of the file.
	OpenFile(path string) (int, error)
	// ReadFile reads up to `size` bytes from the descriptor's position. At the
	// end of the file this returns an empty slice and no error.
	ReadFile(fd int, size int) ([]byte, error)
	// WriteFile writes all of `data` at the descriptor's position, allocating
	// sectors as needed.
	WriteFile(fd int, data []byte) (int, error)
	// SeekFile moves the descriptor's position. `offset` may be equal to the
	// file size but not greater.
	SeekFile(fd int, offset int64) (int64, error)
	CloseFile(fd int) error
}

// DirectoryDriver is the interface for drivers supporting directory operations.
type DirectoryDriver interface {
	CreateDirectory(path string) error
	// UnlinkDirectory removes an empty directory.
	UnlinkDirectory(path string) error
	// DirectorySize gives the size of the directory's packed entries, in bytes.
	DirectorySize(path string) (int, error)
	// ReadDirectory returns every entry of the directory. `capacity` is the
	// caller's buffer size in bytes and must be at least [DirectorySize].
	ReadDirectory(path string, capacity int) ([]DirectoryEntry, error)
}

// Driver is the interface for drivers implementing all driver capabilities.
type Driver interface {
	FileDriver
	DirectoryDriver

	// Sync writes the entire disk image to the backing file.
	Sync() error

	// Stat returns usage information for the file system.
	Stat() (FSStat, error)
}
