package compression_test

import (
	"bytes"
	"crypto/rand"
	"io"
	"testing"

	"github.com/dargueta/simfs/utilities/compression"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type rle8TestCase struct {
	Name    string
	Decoded []byte
	Encoded []byte
}

var rle8TestCases = []rle8TestCase{
	{"empty", []byte{}, []byte{}},
	{"single byte", []byte{7}, []byte{7}},
	{"pair only", []byte{4, 4}, []byte{4, 4, 0}},
	{"no runs", []byte{0, 1, 2, 3, 4}, []byte{0, 1, 2, 3, 4}},
	{"pair at end", []byte{6, 1, 3, 0, 0}, []byte{6, 1, 3, 0, 0, 0}},
	{"triple at end", []byte{6, 1, 0, 0, 0}, []byte{6, 1, 0, 0, 1}},
	{"short run", []byte{9, 5, 5, 5, 5, 5, 3, 7}, []byte{9, 5, 5, 3, 3, 7}},
	{
		"adjacent runs",
		[]byte{9, 5, 5, 5, 5, 5, 5, 3, 3, 3, 3, 7, 2, 6},
		[]byte{9, 5, 5, 4, 3, 3, 2, 7, 2, 6},
	},
	{"257", bytes.Repeat([]byte{8}, 257), []byte{8, 8, 255}},
	{"258", bytes.Repeat([]byte{8}, 258), []byte{8, 8, 255, 8}},
	{"259", bytes.Repeat([]byte{8}, 259), []byte{8, 8, 255, 8, 8, 0}},
	{"300", bytes.Repeat([]byte{'X'}, 300), []byte{'X', 'X', 255, 'X', 'X', 41}},
	{
		"empty sector",
		make([]byte, 512),
		[]byte{0, 0, 255, 0, 0, 253},
	},
}

func TestCompressRLE8(t *testing.T) {
	for _, test := range rle8TestCases {
		t.Run(test.Name, func(t *testing.T) {
			var output bytes.Buffer
			n, err := compression.CompressRLE8(bytes.NewReader(test.Decoded), &output)
			require.NoError(t, err)
			assert.EqualValues(t, len(test.Encoded), n, "wrong byte count returned")
			assert.Truef(
				t, bytes.Equal(test.Encoded, output.Bytes()), "encoded data is wrong: %v", output.Bytes())
		})
	}
}

func TestDecompressRLE8(t *testing.T) {
	for _, test := range rle8TestCases {
		t.Run(test.Name, func(t *testing.T) {
			var output bytes.Buffer
			n, err := compression.DecompressRLE8(bytes.NewReader(test.Encoded), &output)
			require.NoError(t, err)
			assert.EqualValues(t, len(test.Decoded), n, "wrong byte count returned")
			assert.True(t, bytes.Equal(test.Decoded, output.Bytes()), "decoded data is wrong")
		})
	}
}

func TestDecompressRLE8__MissingRepeatCount(t *testing.T) {
	var output bytes.Buffer
	_, err := compression.DecompressRLE8(bytes.NewReader([]byte{1, 2, 2}), &output)
	assert.ErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestRoundTripImageCompression(t *testing.T) {
	randomData := make([]byte, 119)
	rand.Read(randomData)

	sparseImage := make([]byte, 512*128)
	copy(sparseImage[0:], []byte{0xef, 0xbe, 0xad, 0xde})
	copy(sparseImage[512*40:], randomData)

	for name, data := range map[string][]byte{
		"homogenous":   bytes.Repeat([]byte{100}, 9174),
		"empty":        {},
		"heterogenous": randomData,
		"sparse image": sparseImage,
	} {
		t.Run(name, func(t *testing.T) {
			var compressed bytes.Buffer
			n, err := compression.CompressImage(bytes.NewReader(data), &compressed)
			require.NoError(t, err)
			assert.EqualValues(t, compressed.Len(), n)

			decompressed, err := compression.DecompressImageToBytes(&compressed)
			require.NoError(t, err)
			assert.True(t, bytes.Equal(data, decompressed), "round trip changed the data")
		})
	}
}

func TestCompressImage__SparseImageIsSmall(t *testing.T) {
	var compressed bytes.Buffer
	_, err := compression.CompressImage(bytes.NewReader(make([]byte, 512*10000)), &compressed)
	require.NoError(t, err)
	assert.Less(t, compressed.Len(), 1024)
}
