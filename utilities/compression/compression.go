package compression

import (
	"bytes"
	"io"

	"github.com/klauspost/compress/gzip"
)

// CompressImage compresses a disk image using RLE8 and gzip. It returns the
// number of compressed bytes written to `output`.
func CompressImage(input io.Reader, output io.Writer) (int64, error) {
	counter := &countingWriter{w: output}

	// Images are small enough that the highest compression level costs nothing
	// noticeable.
	gzWriter, err := gzip.NewWriterLevel(counter, gzip.BestCompression)
	if err != nil {
		return 0, err
	}

	if _, err := CompressRLE8(input, gzWriter); err != nil {
		gzWriter.Close()
		return counter.n, err
	}
	if err := gzWriter.Close(); err != nil {
		return counter.n, err
	}
	return counter.n, nil
}

// DecompressImage takes a gzipped, RLE8-encoded disk image and decompresses it
// to the original raw bytes. It returns the decompressed size of the image.
func DecompressImage(input io.Reader, output io.Writer) (int64, error) {
	gzReader, err := gzip.NewReader(input)
	if err != nil {
		return 0, err
	}
	defer gzReader.Close()
	return DecompressRLE8(gzReader, output)
}

// DecompressImageToBytes is [DecompressImage] returning a new byte slice.
func DecompressImageToBytes(input io.Reader) ([]byte, error) {
	var buffer bytes.Buffer
	if _, err := DecompressImage(input, &buffer); err != nil {
		return nil, err
	}
	return buffer.Bytes(), nil
}
