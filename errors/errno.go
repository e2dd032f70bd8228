// POSIX-style error codes used by every layer of the file system. The syscall
// package doesn't define all of these on every platform (EUCLEAN and
// EMEDIUMTYPE in particular), so the values here are our own and are not
// interchangeable with syscall.Errno.

package errors

import (
	"fmt"
)

type Errno int

const (
	EOK Errno = iota
	ENOENT
	EIO
	EBADF
	EBUSY
	EEXIST
	ENOTDIR
	EISDIR
	EINVAL
	EMFILE
	EFBIG
	ENOSPC
	ESPIPE
	ERANGE
	ENAMETOOLONG
	ENOTEMPTY
	ENOTSUP
	EUCLEAN
	EMEDIUMTYPE
)

var errorMessagesByCode = map[Errno]string{
	EOK:          "Success",
	ENOENT:       "No such file or directory",
	EIO:          "Input/output error",
	EBADF:        "Bad file descriptor",
	EBUSY:        "Device or resource busy",
	EEXIST:       "File exists",
	ENOTDIR:      "Not a directory",
	EISDIR:       "Is a directory",
	EINVAL:       "Invalid argument",
	EMFILE:       "Too many open files",
	EFBIG:        "File too large",
	ENOSPC:       "No space left on device",
	ESPIPE:       "Illegal seek",
	ERANGE:       "Numerical result out of range",
	ENAMETOOLONG: "File name too long",
	ENOTEMPTY:    "Directory not empty",
	ENOTSUP:      "Operation not supported",
	EUCLEAN:      "Structure needs cleaning",
	EMEDIUMTYPE:  "Wrong medium type",
}

var ErrNotFound = New(ENOENT)
var ErrIOFailed = New(EIO)
var ErrInvalidFileDescriptor = New(EBADF)
var ErrBusy = New(EBUSY)
var ErrExists = New(EEXIST)
var ErrNotADirectory = New(ENOTDIR)
var ErrIsADirectory = New(EISDIR)
var ErrInvalidArgument = New(EINVAL)
var ErrTooManyOpenFiles = New(EMFILE)
var ErrFileTooLarge = New(EFBIG)
var ErrNoSpaceOnDevice = New(ENOSPC)
var ErrIllegalSeek = New(ESPIPE)
var ErrResultOutOfRange = New(ERANGE)
var ErrNameTooLong = New(ENAMETOOLONG)
var ErrDirectoryNotEmpty = New(ENOTEMPTY)
var ErrNotSupported = New(ENOTSUP)
var ErrFileSystemCorrupted = New(EUCLEAN)
var ErrInvalidFileSystem = New(EMEDIUMTYPE)

// StrError returns the human-readable description of an error code.
func StrError(code Errno) string {
	message, ok := errorMessagesByCode[code]
	if ok {
		return message
	}
	return fmt.Sprintf("error %d not recognized.", int(code))
}

// String implements [fmt.Stringer].
func (code Errno) String() string {
	return StrError(code)
}
