// Package common contains definitions of fundamental types shared by the block
// device, allocator, and file system layers.
package common

import (
	"fmt"
	"math"
)

// PhysicalBlock is the absolute index of a sector on the device.
type PhysicalBlock uint

const InvalidPhysicalBlock = PhysicalBlock(math.MaxUint)

// SectorRange is a contiguous run of sectors on the device.
type SectorRange struct {
	Start PhysicalBlock
	Count uint
}

// End returns the index of the first sector after the range.
func (r SectorRange) End() PhysicalBlock {
	return r.Start + PhysicalBlock(r.Count)
}

// Contains determines if `sector` is in the range.
func (r SectorRange) Contains(sector PhysicalBlock) bool {
	return sector >= r.Start && sector < r.End()
}

func (r SectorRange) String() string {
	return fmt.Sprintf("[%d, %d)", r.Start, r.End())
}

// CeilDiv divides, rounding up.
func CeilDiv(numerator, denominator uint) uint {
	return (numerator + denominator - 1) / denominator
}
