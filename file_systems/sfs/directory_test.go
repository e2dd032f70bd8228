package sfs_test

import (
	"fmt"
	"strings"
	"testing"

	"github.com/dargueta/simfs"
	"github.com/dargueta/simfs/disks"
	"github.com/dargueta/simfs/errors"
	"github.com/dargueta/simfs/file_systems/sfs"
	simfstesting "github.com/dargueta/simfs/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// miniGeometry has 128-byte sectors and two sectors per file, so directories
// hold at most 12 entries.
var miniGeometry = disks.Geometry{
	Name:              "Mini",
	Slug:              "mini",
	SectorSize:        128,
	TotalSectors:      256,
	MaxFiles:          64,
	MaxSectorsPerFile: 2,
	MaxOpenFiles:      4,
}

func listNames(t *testing.T, fs *sfs.FileSystem, path string) []string {
	entries, err := fs.ReadDirectory(path, 100000)
	require.NoError(t, err)

	names := make([]string, len(entries))
	for i, entry := range entries {
		names[i] = entry.Name
	}
	return names
}

func inodeOf(t *testing.T, fs *sfs.FileSystem, dirPath, name string) simfs.Inumber {
	entries, err := fs.ReadDirectory(dirPath, 100000)
	require.NoError(t, err)
	for _, entry := range entries {
		if entry.Name == name {
			return entry.Inode
		}
	}
	require.Failf(t, "entry not found", "%q has no entry %q", dirPath, name)
	return 0
}

func freeDataSectors(t *testing.T, fs *sfs.FileSystem) uint {
	stat, err := fs.Stat()
	require.NoError(t, err)
	return stat.FreeDataSectors
}

func TestCreate__ListedInCreationOrder(t *testing.T) {
	fs, _ := bootTiny(t)

	require.NoError(t, fs.CreateFile("/zeta"))
	require.NoError(t, fs.CreateDirectory("/alpha"))
	require.NoError(t, fs.CreateFile("/mid.txt"))

	assert.Equal(t, []string{"zeta", "alpha", "mid.txt"}, listNames(t, fs, "/"))
	assert.EqualValues(t, 1, inodeOf(t, fs, "/", "zeta"))
	assert.EqualValues(t, 2, inodeOf(t, fs, "/", "alpha"))
	assert.EqualValues(t, 3, inodeOf(t, fs, "/", "mid.txt"))

	size, err := fs.DirectorySize("/")
	require.NoError(t, err)
	assert.Equal(t, 60, size)
}

func TestCreate__Nested(t *testing.T) {
	fs, _ := bootTiny(t)

	require.NoError(t, fs.CreateDirectory("/a"))
	require.NoError(t, fs.CreateDirectory("/a/b"))
	require.NoError(t, fs.CreateFile("/a/b/c"))
	require.NoError(t, fs.CreateFile("//a///b//d/"), "repeated slashes are ignored")

	assert.Equal(t, []string{"c", "d"}, listNames(t, fs, "/a/b"))
	assert.Equal(t, []string{"b"}, listNames(t, fs, "/a/"))
}

func TestCreate__AlreadyExists(t *testing.T) {
	fs, _ := bootTiny(t)
	require.NoError(t, fs.CreateFile("/x"))

	assert.ErrorIs(t, fs.CreateFile("/x"), errors.ErrExists)
	assert.ErrorIs(t, fs.CreateDirectory("/x"), errors.ErrExists)
	assert.ErrorIs(t, fs.CreateDirectory("/"), errors.ErrExists)
	assert.Equal(t, []string{"x"}, listNames(t, fs, "/"))
}

func TestCreate__InvalidPaths(t *testing.T) {
	fs, _ := bootTiny(t)
	require.NoError(t, fs.CreateFile("/file"))

	testCases := []struct {
		path     string
		expected error
	}{
		{"relative", errors.ErrInvalidArgument},
		{"", errors.ErrInvalidArgument},
		{"/has space", errors.ErrInvalidArgument},
		{"/star*", errors.ErrInvalidArgument},
		{"/abcdefghijklmnop", errors.ErrInvalidArgument},
		{"/missing/child", errors.ErrInvalidArgument},
		{"/file/child", errors.ErrNotADirectory},
		{"/" + strings.Repeat("a/", 128), errors.ErrNameTooLong},
	}

	for _, test := range testCases {
		t.Run(test.path, func(t *testing.T) {
			assert.ErrorIs(t, fs.CreateFile(test.path), test.expected)
			assert.ErrorIs(t, fs.CreateDirectory(test.path), test.expected)
		})
	}

	assert.Equal(t, []string{"file"}, listNames(t, fs, "/"))
}

func TestCreate__LongestLegalName(t *testing.T) {
	fs, _ := bootTiny(t)
	require.NoError(t, fs.CreateFile("/A-b_c.012345678"))
	assert.Equal(t, []string{"A-b_c.012345678"}, listNames(t, fs, "/"))

	assert.ErrorIs(t, fs.CreateFile("/A-b_c.0123456789"), errors.ErrInvalidArgument)
	assert.ErrorIs(t, fs.CreateDirectory("/A-b_c.0123456789"), errors.ErrInvalidArgument)
	assert.Equal(t, []string{"A-b_c.012345678"}, listNames(t, fs, "/"))
}

// A missing parent makes the path unusable for creation, but lookups of the
// same path still report it as not found.
func TestCreate__MissingParent(t *testing.T) {
	fs, _ := bootTiny(t)

	err := fs.CreateFile("/nope/x")
	assert.ErrorIs(t, err, errors.ErrInvalidArgument)
	assert.Equal(t, errors.EINVAL, errors.ErrnoOf(err))
	err = fs.CreateDirectory("/nope/deeper/x")
	assert.Equal(t, errors.EINVAL, errors.ErrnoOf(err))

	_, err = fs.OpenFile("/nope/x")
	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.ErrorIs(t, fs.UnlinkFile("/nope/x"), errors.ErrNotFound)
	assert.ErrorIs(t, fs.UnlinkDirectory("/nope/x"), errors.ErrNotFound)
	assert.Empty(t, listNames(t, fs, "/"))
}

func TestIsLegalName(t *testing.T) {
	for _, name := range []string{"a", "A.b", "..", "x-y_z", "123456789012345"} {
		assert.Truef(t, sfs.IsLegalName(name), "%q should be legal", name)
	}
	for _, name := range []string{"", "a b", "a/b", "1234567890123456", "é", "a\x00"} {
		assert.Falsef(t, sfs.IsLegalName(name), "%q should be illegal", name)
	}
}

// Removing an entry moves the last one into its place.
func TestUnlink__CompactsDirectory(t *testing.T) {
	fs, _ := bootTiny(t)
	for _, name := range []string{"a", "b", "c", "d"} {
		require.NoError(t, fs.CreateFile("/"+name))
	}

	require.NoError(t, fs.UnlinkFile("/b"))
	assert.Equal(t, []string{"a", "d", "c"}, listNames(t, fs, "/"))

	require.NoError(t, fs.UnlinkFile("/c"))
	assert.Equal(t, []string{"a", "d"}, listNames(t, fs, "/"))

	require.NoError(t, fs.UnlinkFile("/a"))
	require.NoError(t, fs.UnlinkFile("/d"))
	assert.Empty(t, listNames(t, fs, "/"))
}

func TestUnlink__ReleasesInode(t *testing.T) {
	fs, _ := bootTiny(t)
	require.NoError(t, fs.CreateFile("/one"))
	require.NoError(t, fs.CreateFile("/two"))
	require.NoError(t, fs.UnlinkFile("/one"))

	require.NoError(t, fs.CreateFile("/three"))
	assert.EqualValues(t, 1, inodeOf(t, fs, "/", "three"), "lowest free inode is reused")
}

func TestUnlink__ReleasesFileSectors(t *testing.T) {
	fs, _ := bootTiny(t)
	require.NoError(t, fs.CreateFile("/data"))
	afterCreate := freeDataSectors(t, fs)

	fd, err := fs.OpenFile("/data")
	require.NoError(t, err)
	_, err = fs.WriteFile(fd, make([]byte, 512*3))
	require.NoError(t, err)
	require.NoError(t, fs.CloseFile(fd))
	assert.Equal(t, afterCreate-3, freeDataSectors(t, fs))

	require.NoError(t, fs.UnlinkFile("/data"))
	// The root's only entry is gone, so its sector is freed too.
	assert.Equal(t, afterCreate+1, freeDataSectors(t, fs))
}

func TestUnlink__Errors(t *testing.T) {
	fs, _ := bootTiny(t)
	require.NoError(t, fs.CreateDirectory("/dir"))
	require.NoError(t, fs.CreateFile("/dir/file"))
	require.NoError(t, fs.CreateDirectory("/empty"))
	require.NoError(t, fs.CreateFile("/open"))
	_, err := fs.OpenFile("/open")
	require.NoError(t, err)

	assert.ErrorIs(t, fs.UnlinkFile("/missing"), errors.ErrNotFound)
	assert.ErrorIs(t, fs.UnlinkFile("/bad name"), errors.ErrNotFound)
	assert.ErrorIs(t, fs.UnlinkFile("/dir"), errors.ErrIsADirectory)
	assert.ErrorIs(t, fs.UnlinkFile("/"), errors.ErrIsADirectory)
	assert.ErrorIs(t, fs.UnlinkFile("/open"), errors.ErrBusy)

	assert.ErrorIs(t, fs.UnlinkDirectory("/missing"), errors.ErrNotFound)
	assert.ErrorIs(t, fs.UnlinkDirectory("/dir/file"), errors.ErrNotADirectory)
	assert.ErrorIs(t, fs.UnlinkDirectory("/dir"), errors.ErrDirectoryNotEmpty)
	assert.ErrorIs(t, fs.UnlinkDirectory("/"), errors.ErrBusy)

	// Nothing was removed by the failed calls.
	assert.Equal(t, []string{"dir", "empty", "open"}, listNames(t, fs, "/"))
	assert.Equal(t, []string{"file"}, listNames(t, fs, "/dir"))

	require.NoError(t, fs.UnlinkDirectory("/empty"))
	require.NoError(t, fs.UnlinkFile("/dir/file"))
	require.NoError(t, fs.UnlinkDirectory("/dir"))
	assert.Equal(t, []string{"open"}, listNames(t, fs, "/"))
}

// A directory gains a sector when its entries spill over, and gives it back
// when they shrink again.
func TestDirectory__GrowsAndShrinks(t *testing.T) {
	fs, _ := bootTiny(t)
	initial := freeDataSectors(t, fs)

	// 25 entries fit in one 512-byte sector.
	for i := 0; i < 25; i++ {
		require.NoError(t, fs.CreateDirectory(fmt.Sprintf("/d%02d", i)))
	}
	assert.Equal(t, initial-1, freeDataSectors(t, fs))

	require.NoError(t, fs.CreateDirectory("/d25"))
	assert.Equal(t, initial-2, freeDataSectors(t, fs))

	require.NoError(t, fs.UnlinkDirectory("/d03"))
	assert.Equal(t, initial-1, freeDataSectors(t, fs))

	names := listNames(t, fs, "/")
	require.Len(t, names, 25)
	assert.Equal(t, "d25", names[3])
}

func TestDirectory__Full(t *testing.T) {
	fs, _ := simfstesting.BootFileSystem(t, miniGeometry)

	for i := 0; i < 12; i++ {
		require.NoError(t, fs.CreateFile(fmt.Sprintf("/f%d", i)))
	}
	before, err := fs.Stat()
	require.NoError(t, err)

	err = fs.CreateFile("/overflow")
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)

	after, err := fs.Stat()
	require.NoError(t, err)
	assert.Equal(t, before.FreeInodes, after.FreeInodes, "inode wasn't released")
	assert.Equal(t, before.FreeDataSectors, after.FreeDataSectors)
	assert.Len(t, listNames(t, fs, "/"), 12)
}

func TestInodeTable__Full(t *testing.T) {
	fs, _ := bootTiny(t)

	// Inode 0 is the root, leaving 63.
	for i := 0; i < 63; i++ {
		require.NoError(t, fs.CreateFile(fmt.Sprintf("/f%d", i)))
	}

	err := fs.CreateFile("/one-more")
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)
	assert.Len(t, listNames(t, fs, "/"), 63)

	require.NoError(t, fs.UnlinkFile("/f10"))
	assert.NoError(t, fs.CreateFile("/one-more"))
	assert.EqualValues(t, 11, inodeOf(t, fs, "/", "one-more"))
}

// crampedGeometry has only 29 data sectors and 8 inodes. Directories hold six
// entries per sector.
var crampedGeometry = disks.Geometry{
	Name:              "Cramped",
	Slug:              "cramped",
	SectorSize:        128,
	TotalSectors:      40,
	MaxFiles:          8,
	MaxSectorsPerFile: 24,
	MaxOpenFiles:      2,
}

func fillFile(t *testing.T, fs *sfs.FileSystem, path string, size int) {
	require.NoError(t, fs.CreateFile(path))
	fd, err := fs.OpenFile(path)
	require.NoError(t, err)
	_, err = fs.WriteFile(fd, make([]byte, size))
	require.NoError(t, err)
	require.NoError(t, fs.CloseFile(fd))
}

// Creating an entry needs a new sector once the directory's last one is full.
// If there isn't one, the new inode is given back.
func TestCreate__NoSpaceForEntry(t *testing.T) {
	fs, _ := simfstesting.BootFileSystem(t, crampedGeometry)

	fillFile(t, fs, "/hog", 24*128)
	fillFile(t, fs, "/hog2", 4*128)
	require.Zero(t, freeDataSectors(t, fs))

	for i := 0; i < 4; i++ {
		require.NoError(t, fs.CreateDirectory(fmt.Sprintf("/d%d", i)))
	}
	before, err := fs.Stat()
	require.NoError(t, err)
	require.EqualValues(t, 1, before.FreeInodes)

	err = fs.CreateFile("/seventh")
	assert.ErrorIs(t, err, errors.ErrNoSpaceOnDevice)

	after, err := fs.Stat()
	require.NoError(t, err)
	assert.EqualValues(t, 1, after.FreeInodes, "inode wasn't released")
	assert.Len(t, listNames(t, fs, "/"), 6)

	// Freeing a sector makes room.
	require.NoError(t, fs.UnlinkFile("/hog2"))
	assert.NoError(t, fs.CreateFile("/seventh"))
}
