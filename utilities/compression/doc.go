// Package compression shrinks disk images for storage and transfer.
//
// Freshly formatted images are almost entirely null bytes, so they're first
// run-length encoded and the result is then gzipped. The run-length scheme is
// RLE8 as used by the BMP format: a byte B that occurs N >= 2 times in a row is
// written as B B (N-2). Runs longer than 257 bytes are split into several runs,
// so 300 "X" becomes `X X 255 X X 41`. A byte occurring exactly twice costs
// three bytes, which gzip absorbs well enough in practice.
package compression
