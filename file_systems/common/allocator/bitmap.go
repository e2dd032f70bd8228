// Package allocator implements first-fit allocation of numbered resources (inodes,
// sectors) tracked by a bitmap stored in a range of device sectors.
//
// Bits are numbered from the most significant bit of the first byte of the first
// sector: resource 0 is bit 7 of byte 0, resource 8 is bit 7 of byte 1, and so
// on. A set bit means the resource is in use. Bits past the last resource are
// padding and are always zero.
package allocator

import (
	"github.com/boljen/go-bitmap"
	"github.com/dargueta/simfs/errors"
	c "github.com/dargueta/simfs/file_systems/common"
	"github.com/dargueta/simfs/file_systems/common/blockdevice"
)

// ErrFull is returned by [SectorBitmap.FirstUnused] when every resource is in
// use. It matches any [errors.ENOSPC] error.
var ErrFull = errors.NewWithMessage(errors.ENOSPC, "bitmap is full")

// SectorBitmap is an allocation bitmap stored on a device. It keeps no state in
// memory; every call reads the sectors it needs and writes back the sectors it
// changes before returning.
type SectorBitmap struct {
	device    blockdevice.Device
	sectors   c.SectorRange
	totalBits uint
}

// New creates a bitmap for `totalBits` resources stored in `sectors`. It doesn't
// touch the device.
func New(device blockdevice.Device, sectors c.SectorRange, totalBits uint) (*SectorBitmap, error) {
	capacity := sectors.Count * device.BytesPerSector() * 8
	if totalBits == 0 || totalBits > capacity {
		return nil, errors.Newf(
			errors.EINVAL,
			"can't store %d bits in %d sectors (capacity %d bits)",
			totalBits,
			sectors.Count,
			capacity)
	}
	if uint(sectors.End()) > device.TotalSectors() {
		return nil, errors.Newf(
			errors.EINVAL,
			"bitmap sectors %s extend past the end of the device (%d sectors)",
			sectors,
			device.TotalSectors())
	}

	return &SectorBitmap{
		device:    device,
		sectors:   sectors,
		totalBits: totalBits,
	}, nil
}

// msbIndex maps the index of a bit counted MSB-first within each byte to the
// LSB-first numbering go-bitmap uses.
func msbIndex(bit uint) int {
	return int(bit&^7 | (7 - bit&7))
}

// TotalBits gives the number of objects the bitmap tracks.
func (b *SectorBitmap) TotalBits() uint {
	return b.totalBits
}

func (b *SectorBitmap) bitsPerSector() uint {
	return b.device.BytesPerSector() * 8
}

// locate returns the sector holding bit `index` and the bit's offset within it.
func (b *SectorBitmap) locate(index uint) (c.PhysicalBlock, uint) {
	return b.sectors.Start + c.PhysicalBlock(index/b.bitsPerSector()), index % b.bitsPerSector()
}

func (b *SectorBitmap) checkIndex(index uint) error {
	if index >= b.totalBits {
		return errors.Newf(errors.EINVAL, "bit %d not in range [0, %d)", index, b.totalBits)
	}
	return nil
}

// Init clears the entire bitmap, including padding, and then marks resources
// [0, reserved) as in use. Every sector in the range is written exactly once.
func (b *SectorBitmap) Init(reserved uint) error {
	if reserved > b.totalBits {
		return errors.Newf(
			errors.EINVAL,
			"can't reserve %d bits in a bitmap of %d",
			reserved,
			b.totalBits)
	}

	buffer := make([]byte, b.device.BytesPerSector())
	bitsPerSector := b.bitsPerSector()

	for i := uint(0); i < b.sectors.Count; i++ {
		clear(buffer)

		firstBit := i * bitsPerSector
		if reserved > firstBit {
			reservedHere := min(reserved-firstBit, bitsPerSector)
			for j := uint(0); j < reservedHere/8; j++ {
				buffer[j] = 0xff
			}
			for bit := reservedHere &^ 7; bit < reservedHere; bit++ {
				bitmap.Set(buffer, msbIndex(bit), true)
			}
		}

		sector := b.sectors.Start + c.PhysicalBlock(i)
		if err := b.device.WriteSector(sector, buffer); err != nil {
			return errors.Wrap(err, "initializing bitmap sector %d", sector)
		}
	}
	return nil
}

// FirstUnused finds the lowest-numbered free resource, marks it as used, and
// writes the modified sector back to the device before returning its index.
func (b *SectorBitmap) FirstUnused() (uint, error) {
	buffer := make([]byte, b.device.BytesPerSector())
	bitsPerSector := b.bitsPerSector()

	for i := uint(0); i < b.sectors.Count && i*bitsPerSector < b.totalBits; i++ {
		sector := b.sectors.Start + c.PhysicalBlock(i)
		if err := b.device.ReadSector(sector, buffer); err != nil {
			return 0, errors.Wrap(err, "reading bitmap sector %d", sector)
		}

		for byteIndex, value := range buffer {
			if value == 0xff {
				continue
			}

			for bitInByte := uint(0); bitInByte < 8; bitInByte++ {
				bit := uint(byteIndex)*8 + bitInByte
				index := i*bitsPerSector + bit
				if index >= b.totalBits {
					return 0, ErrFull
				}
				if bitmap.Get(buffer, msbIndex(bit)) {
					continue
				}

				bitmap.Set(buffer, msbIndex(bit), true)
				if err := b.device.WriteSector(sector, buffer); err != nil {
					return 0, errors.Wrap(err, "writing bitmap sector %d", sector)
				}
				return index, nil
			}
		}
	}
	return 0, ErrFull
}

// Reset marks a resource as free. Freeing a resource that's already free is
// not an error, and doesn't write anything.
func (b *SectorBitmap) Reset(index uint) error {
	if err := b.checkIndex(index); err != nil {
		return err
	}

	sector, bit := b.locate(index)
	buffer := make([]byte, b.device.BytesPerSector())
	if err := b.device.ReadSector(sector, buffer); err != nil {
		return errors.Wrap(err, "reading bitmap sector %d", sector)
	}

	if !bitmap.Get(buffer, msbIndex(bit)) {
		return nil
	}

	bitmap.Set(buffer, msbIndex(bit), false)
	if err := b.device.WriteSector(sector, buffer); err != nil {
		return errors.Wrap(err, "writing bitmap sector %d", sector)
	}
	return nil
}

// IsSet determines if a resource is in use.
func (b *SectorBitmap) IsSet(index uint) (bool, error) {
	if err := b.checkIndex(index); err != nil {
		return false, err
	}

	sector, bit := b.locate(index)
	buffer := make([]byte, b.device.BytesPerSector())
	if err := b.device.ReadSector(sector, buffer); err != nil {
		return false, errors.Wrap(err, "reading bitmap sector %d", sector)
	}
	return bitmap.Get(buffer, msbIndex(bit)), nil
}

// ForEachSet calls `fn` with the index of every resource in use, in ascending
// order.
func (b *SectorBitmap) ForEachSet(fn func(index uint)) error {
	buffer := make([]byte, b.device.BytesPerSector())
	bitsPerSector := b.bitsPerSector()

	for i := uint(0); i < b.sectors.Count; i++ {
		sector := b.sectors.Start + c.PhysicalBlock(i)
		if err := b.device.ReadSector(sector, buffer); err != nil {
			return errors.Wrap(err, "reading bitmap sector %d", sector)
		}

		for bit := uint(0); bit < bitsPerSector; bit++ {
			index := i*bitsPerSector + bit
			if index >= b.totalBits {
				return nil
			}
			if bitmap.Get(buffer, msbIndex(bit)) {
				fn(index)
			}
		}
	}
	return nil
}

// CountSet gives the number of resources in use.
func (b *SectorBitmap) CountSet() (uint, error) {
	count := uint(0)
	err := b.ForEachSet(func(uint) { count++ })
	return count, err
}
