// Package sfs implements a small inode-based file system on top of a
// [blockdevice.Device].
//
// # Layout
//
// The image is divided into five regions, in this order (see [disks.Layout]):
//
//   - Sector 0, the superblock. The first four bytes are the magic number
//     0xdeadbeef stored little-endian, followed by a 16-byte volume ID.
//   - The inode bitmap, one bit per inode.
//   - The sector bitmap, one bit per sector on the device. Every sector before
//     the data region is permanently marked as used.
//   - The inode table. Inodes never straddle a sector boundary, so the end of
//     each inode table sector may be unused.
//   - The data region, holding file contents and directory entries.
//
// All integers are stored as 32-bit little-endian values.
//
// # Inodes
//
// An inode is its size, its type (0 for a file, 1 for a directory), and a fixed
// number of sector slots. A slot containing 0 is unallocated; sector 0 is the
// superblock so it can never belong to a file. For files, the size is in bytes.
// For directories, it's the number of entries.
//
// Inode 0 is always the root directory.
//
// # Directories
//
// A directory's entries are 20 bytes each: a null-padded name of up to 15
// characters and an inode number. Entries are packed with no gaps, so a
// directory of N entries uses entries [0, N). Removing an entry moves the last
// entry into its place.
package sfs
