package testing

import (
	"bytes"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/dargueta/simfs"
	"github.com/dargueta/simfs/disks"
	"github.com/dargueta/simfs/file_systems/sfs"
	"github.com/dargueta/simfs/utilities/compression"
	"github.com/stretchr/testify/require"
	"github.com/xaionaro-go/bytesextra"
)

// testLogWriter sends log output to the test's log, so it's only shown for
// failing tests or with -v.
type testLogWriter struct {
	t *testing.T
}

func (w testLogWriter) Write(p []byte) (int, error) {
	w.t.Log(string(bytes.TrimRight(p, "\n")))
	return len(p), nil
}

// NewTestLogger creates a logger that writes debug-level output to the test log.
func NewTestLogger(t *testing.T) *slog.Logger {
	return simfs.NewTextLogger(testLogWriter{t}, slog.LevelDebug)
}

// GetGeometry returns a predefined geometry, failing the test if it doesn't
// exist.
func GetGeometry(t *testing.T, slug string) disks.Geometry {
	geometry, err := disks.GetPredefinedGeometry(slug)
	require.NoErrorf(t, err, "no predefined geometry %q", slug)
	return geometry
}

// BootFileSystem formats a new image in a temporary directory and mounts it.
// It returns the file system and the path to the image. Additional options are
// applied after the geometry and logger.
func BootFileSystem(
	t *testing.T, geometry disks.Geometry, opts ...sfs.Option,
) (*sfs.FileSystem, string) {
	imagePath := filepath.Join(t.TempDir(), geometry.Slug+".img")
	allOptions := append(
		[]sfs.Option{sfs.WithGeometry(geometry), sfs.WithLogger(NewTestLogger(t))},
		opts...)

	fs, err := sfs.Boot(imagePath, allOptions...)
	require.NoError(t, err, "failed to boot new image")
	return fs, imagePath
}

// RebootFileSystem mounts an existing image again, discarding any unsynced
// changes made through other FileSystem objects.
func RebootFileSystem(t *testing.T, imagePath string, geometry disks.Geometry) *sfs.FileSystem {
	fs, err := sfs.Boot(imagePath, sfs.WithGeometry(geometry), sfs.WithLogger(NewTestLogger(t)))
	require.NoError(t, err, "failed to reboot image")
	return fs
}

// CompressFileSystem takes a snapshot of a synced image in the format
// [ExpandImage] expects.
func CompressFileSystem(t *testing.T, imagePath string) []byte {
	source, err := os.Open(imagePath)
	require.NoError(t, err)
	defer source.Close()

	var output bytes.Buffer
	_, err = compression.CompressImage(source, &output)
	require.NoError(t, err)
	return output.Bytes()
}

// ExpandImage decompresses a snapshot made by [CompressFileSystem] and checks
// that it's exactly the size `geometry` calls for. The returned stream is a
// private copy and can't grow.
func ExpandImage(
	t *testing.T, compressedImageBytes []byte, geometry disks.Geometry,
) io.ReadWriteSeeker {
	require.NotEmpty(t, compressedImageBytes, "snapshot is empty")

	image, err := compression.DecompressImageToBytes(bytes.NewReader(compressedImageBytes))
	require.NoError(t, err, "snapshot is corrupted")
	require.EqualValues(
		t,
		geometry.TotalSizeBytes(),
		len(image),
		"snapshot doesn't match the %s geometry",
		geometry.Slug)
	return bytesextra.NewReadWriteSeeker(image)
}

// WriteDiskImage expands a snapshot into a new image file in a temporary
// directory and returns its path.
func WriteDiskImage(t *testing.T, compressedImageBytes []byte, geometry disks.Geometry) string {
	stream := ExpandImage(t, compressedImageBytes, geometry)

	imagePath := filepath.Join(t.TempDir(), "expanded.img")
	output, err := os.Create(imagePath)
	require.NoError(t, err)
	defer output.Close()

	_, err = io.Copy(output, stream)
	require.NoError(t, err)
	return imagePath
}
