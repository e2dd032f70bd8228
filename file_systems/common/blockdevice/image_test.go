package blockdevice_test

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/dargueta/simfs/errors"
	c "github.com/dargueta/simfs/file_systems/common"
	"github.com/dargueta/simfs/file_systems/common/blockdevice"
	simfstest "github.com/dargueta/simfs/testing"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestImageDevice__ReadWrite(t *testing.T) {
	device := blockdevice.NewImageDevice(128, 32)
	assert.EqualValues(t, 128, device.BytesPerSector())
	assert.EqualValues(t, 32, device.TotalSectors())
	assert.EqualValues(t, -1, device.LoadedSize())

	buffer := make([]byte, 128)
	require.NoError(t, device.ReadSector(31, buffer))
	assert.Equal(t, make([]byte, 128), buffer, "fresh image isn't zeroed")

	written := simfstest.CreateRandomImage(128, 1, t)
	require.NoError(t, device.WriteSector(7, written))
	require.NoError(t, device.ReadSector(7, buffer))
	assert.Equal(t, written, buffer)
}

func TestImageDevice__BadArguments(t *testing.T) {
	device := blockdevice.NewImageDevice(128, 32)

	err := device.ReadSector(32, make([]byte, 128))
	assert.ErrorIs(t, err, errors.ErrInvalidArgument, "sector past end")

	err = device.WriteSector(0, make([]byte, 127))
	assert.ErrorIs(t, err, errors.ErrInvalidArgument, "short buffer")

	err = device.ReadSector(0, make([]byte, 256))
	assert.ErrorIs(t, err, errors.ErrInvalidArgument, "long buffer")
}

func TestImageDevice__LoadMissing(t *testing.T) {
	device := blockdevice.NewImageDevice(128, 32)
	err := device.Load(filepath.Join(t.TempDir(), "nope.img"))

	assert.ErrorIs(t, err, errors.ErrNotFound)
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestImageDevice__LoadDirectoryFails(t *testing.T) {
	device := blockdevice.NewImageDevice(128, 32)
	// Opening a directory works on most platforms but reading it doesn't.
	err := device.Load(t.TempDir())
	assert.ErrorIs(t, err, errors.ErrIOFailed)
	assert.NotErrorIs(t, err, errors.ErrNotFound)
}

func TestImageDevice__SaveLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "disk.img")
	image := simfstest.CreateRandomImage(64, 16, t)

	device := blockdevice.NewImageDevice(64, 16)
	for i := uint(0); i < 16; i++ {
		require.NoError(t, device.WriteSector(c.PhysicalBlock(i), image[i*64:(i+1)*64]))
	}
	require.NoError(t, device.Save(path))

	saved, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, image, saved)

	// No temporary files should be left behind.
	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	other := blockdevice.NewImageDevice(64, 16)
	require.NoError(t, other.Load(path))
	assert.EqualValues(t, 1024, other.LoadedSize())

	buffer := make([]byte, 64)
	require.NoError(t, other.ReadSector(9, buffer))
	assert.Equal(t, image[9*64:10*64], buffer)
}

func TestImageDevice__LoadShortFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "short.img")
	require.NoError(t, os.WriteFile(path, bytes.Repeat([]byte{0xff}, 100), 0o644))

	device := blockdevice.NewImageDevice(64, 4)
	require.NoError(t, device.Load(path))
	assert.EqualValues(t, 100, device.LoadedSize())

	buffer := make([]byte, 64)
	require.NoError(t, device.ReadSector(1, buffer))
	assert.Equal(t, bytes.Repeat([]byte{0xff}, 36), buffer[:36])
	assert.Equal(t, make([]byte, 28), buffer[36:])
}

func TestImageDevice__InitDiscardsImage(t *testing.T) {
	device := blockdevice.NewImageDevice(64, 4)
	require.NoError(t, device.WriteSector(2, bytes.Repeat([]byte{1}, 64)))
	require.NoError(t, device.Init())

	buffer := make([]byte, 64)
	require.NoError(t, device.ReadSector(2, buffer))
	assert.Equal(t, make([]byte, 64), buffer)
}

func TestImageDevice__SnapshotRestore(t *testing.T) {
	device := blockdevice.NewImageDevice(512, 64)
	payload := simfstest.CreateRandomImage(512, 1, t)
	require.NoError(t, device.WriteSector(40, payload))

	var snapshot bytes.Buffer
	n, err := device.Snapshot(&snapshot)
	require.NoError(t, err)
	assert.EqualValues(t, snapshot.Len(), n)
	assert.Less(t, snapshot.Len(), 512*64/4, "mostly empty image should compress well")

	restored := blockdevice.NewImageDevice(512, 64)
	require.NoError(t, restored.Restore(&snapshot))

	buffer := make([]byte, 512)
	require.NoError(t, restored.ReadSector(40, buffer))
	assert.Equal(t, payload, buffer)
}

func TestImageDevice__RestoreWrongSize(t *testing.T) {
	var snapshot bytes.Buffer
	_, err := blockdevice.NewImageDevice(512, 8).Snapshot(&snapshot)
	require.NoError(t, err)

	err = blockdevice.NewImageDevice(512, 16).Restore(&snapshot)
	assert.ErrorIs(t, err, errors.ErrFileSystemCorrupted)
}
