package compression

import (
	"bufio"
	"fmt"
	"io"
)

// maxRunLength is the longest run a single RLE8 group can represent.
const maxRunLength = 257

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}

// CompressRLE8 reads bytes from the input and writes the RLE8 encoding of them
// to the output until the input is exhausted. It returns the number of bytes
// written to `output`.
func CompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	counter := &countingWriter{w: output}
	sink := bufio.NewWriter(counter)

	var runByte byte
	runLength := 0

	emitRun := func() error {
		for runLength >= 2 {
			groupLength := runLength
			if groupLength > maxRunLength {
				groupLength = maxRunLength
			}
			if _, err := sink.Write([]byte{runByte, runByte, byte(groupLength - 2)}); err != nil {
				return err
			}
			runLength -= groupLength
		}
		if runLength == 1 {
			if err := sink.WriteByte(runByte); err != nil {
				return err
			}
		}
		runLength = 0
		return nil
	}

	for {
		currentByte, err := source.ReadByte()
		if err == io.EOF {
			break
		} else if err != nil {
			return counter.n, fmt.Errorf("error reading input: %w", err)
		}

		if runLength > 0 && currentByte == runByte {
			runLength++
			continue
		}
		if err := emitRun(); err != nil {
			return counter.n, fmt.Errorf("failed to write to output: %w", err)
		}
		runByte = currentByte
		runLength = 1
	}

	if err := emitRun(); err != nil {
		return counter.n, fmt.Errorf("failed to write to output: %w", err)
	}
	if err := sink.Flush(); err != nil {
		return counter.n, fmt.Errorf("failed to write to output: %w", err)
	}
	return counter.n, nil
}

// DecompressRLE8 expands RLE8-encoded data. It returns the number of bytes
// written to `output`.
func DecompressRLE8(input io.Reader, output io.Writer) (int64, error) {
	source := bufio.NewReader(input)
	counter := &countingWriter{w: output}
	sink := bufio.NewWriter(counter)

	// -1 means the next byte can't complete a pair, either because we're at the
	// start of the stream or a group just ended.
	previous := -1

	for {
		currentByte, err := source.ReadByte()
		if err == io.EOF {
			break
		} else if err != nil {
			return counter.n, fmt.Errorf("error reading input: %w", err)
		}

		if int(currentByte) != previous {
			if err := sink.WriteByte(currentByte); err != nil {
				return counter.n, fmt.Errorf("failed to write to output: %w", err)
			}
			previous = int(currentByte)
			continue
		}

		extra, err := source.ReadByte()
		if err == io.EOF {
			return counter.n, fmt.Errorf(
				"%w: missing repeat count after two %02x bytes",
				io.ErrUnexpectedEOF,
				currentByte,
			)
		} else if err != nil {
			return counter.n, fmt.Errorf("error reading input: %w", err)
		}

		// One copy of the byte was already written when it was first seen.
		for i := 0; i <= int(extra); i++ {
			if err := sink.WriteByte(currentByte); err != nil {
				return counter.n, fmt.Errorf("failed to write to output: %w", err)
			}
		}
		previous = -1
	}

	if err := sink.Flush(); err != nil {
		return counter.n, fmt.Errorf("failed to write to output: %w", err)
	}
	return counter.n, nil
}
