// Package blockcache keeps a write-back copy of an image's sectors in memory.
// A sector is fetched from the backing storage the first time it's read, and
// only sectors modified since the last [SectorCache.Flush] are written back.
//
// All access is one whole sector at a time, and sector indices begin at 0.
package blockcache

import (
	"io"

	"github.com/boljen/go-bitmap"
	"github.com/dargueta/simfs/errors"
	c "github.com/dargueta/simfs/file_systems/common"
)

// FetchFunc copies a single sector from the backing storage into `buffer`.
// The cache guarantees that `sector` is in range and that `buffer` is exactly
// one sector long.
type FetchFunc func(sector c.PhysicalBlock, buffer []byte) error

// FlushFunc writes `buffer` to a single sector of the backing storage, with the
// same guarantees as [FetchFunc].
type FlushFunc func(sector c.PhysicalBlock, buffer []byte) error

type SectorCache struct {
	bytesPerSector uint
	totalSectors   uint
	loaded         bitmap.Bitmap
	dirty          bitmap.Bitmap
	fetch          FetchFunc
	flush          FlushFunc
	data           []byte
}

func New(bytesPerSector, totalSectors uint, fetch FetchFunc, flush FlushFunc) *SectorCache {
	return &SectorCache{
		bytesPerSector: bytesPerSector,
		totalSectors:   totalSectors,
		loaded:         bitmap.NewSlice(int(totalSectors)),
		dirty:          bitmap.NewSlice(int(totalSectors)),
		fetch:          fetch,
		flush:          flush,
		data:           make([]byte, bytesPerSector*totalSectors),
	}
}

// OverStream creates a cache whose backing storage is `stream`, with sector N
// at byte offset N * bytesPerSector.
func OverStream(stream io.ReadWriteSeeker, bytesPerSector, totalSectors uint) *SectorCache {
	seek := func(sector c.PhysicalBlock) error {
		_, err := stream.Seek(int64(sector)*int64(bytesPerSector), io.SeekStart)
		return err
	}

	fetch := func(sector c.PhysicalBlock, buffer []byte) error {
		if err := seek(sector); err != nil {
			return err
		}
		_, err := io.ReadFull(stream, buffer)
		return err
	}
	flush := func(sector c.PhysicalBlock, buffer []byte) error {
		if err := seek(sector); err != nil {
			return err
		}
		_, err := stream.Write(buffer)
		return err
	}
	return New(bytesPerSector, totalSectors, fetch, flush)
}

func (cache *SectorCache) BytesPerSector() uint {
	return cache.bytesPerSector
}

func (cache *SectorCache) TotalSectors() uint {
	return cache.totalSectors
}

func (cache *SectorCache) checkAccess(sector c.PhysicalBlock, buffer []byte) error {
	if uint(len(buffer)) != cache.bytesPerSector {
		return errors.Newf(
			errors.EINVAL,
			"sector buffer must be %d bytes, got %d",
			cache.bytesPerSector,
			len(buffer))
	}
	if uint(sector) >= cache.totalSectors {
		return errors.Newf(
			errors.EINVAL,
			"sector %d not in range [0, %d)",
			sector,
			cache.totalSectors)
	}
	return nil
}

func (cache *SectorCache) slice(sector c.PhysicalBlock) []byte {
	start := uint(sector) * cache.bytesPerSector
	return cache.data[start : start+cache.bytesPerSector]
}

// ReadSector copies a sector into `buffer`, fetching it first if this is the
// first access since the cache was created or invalidated.
func (cache *SectorCache) ReadSector(sector c.PhysicalBlock, buffer []byte) error {
	if err := cache.checkAccess(sector, buffer); err != nil {
		return err
	}

	// Dirty sectors are always loaded.
	if !cache.loaded.Get(int(sector)) {
		if err := cache.fetch(sector, cache.slice(sector)); err != nil {
			return errors.Wrap(err, "fetching sector %d", sector)
		}
		cache.loaded.Set(int(sector), true)
	}
	copy(buffer, cache.slice(sector))
	return nil
}

// WriteSector replaces the cached contents of a sector and marks it dirty.
// Nothing is fetched since the whole sector is overwritten.
func (cache *SectorCache) WriteSector(sector c.PhysicalBlock, buffer []byte) error {
	if err := cache.checkAccess(sector, buffer); err != nil {
		return err
	}
	copy(cache.slice(sector), buffer)
	cache.loaded.Set(int(sector), true)
	cache.dirty.Set(int(sector), true)
	return nil
}

// Flush writes every dirty sector to the backing storage in ascending order
// and returns how many were written. If one fails, the sectors before it are
// clean and it and everything after it stay dirty.
func (cache *SectorCache) Flush() (uint, error) {
	var flushed uint
	for i := uint(0); i < cache.totalSectors; i++ {
		if !cache.dirty.Get(int(i)) {
			continue
		}
		sector := c.PhysicalBlock(i)
		if err := cache.flush(sector, cache.slice(sector)); err != nil {
			return flushed, errors.Wrap(err, "flushing sector %d", sector)
		}
		cache.dirty.Set(int(i), false)
		flushed++
	}
	return flushed, nil
}

// Invalidate discards everything in the cache, including unflushed writes.
func (cache *SectorCache) Invalidate() {
	for i := range cache.loaded {
		cache.loaded[i] = 0
		cache.dirty[i] = 0
	}
}

func (cache *SectorCache) IsDirty(sector c.PhysicalBlock) bool {
	return uint(sector) < cache.totalSectors && cache.dirty.Get(int(sector))
}

// DirtyCount gives the number of sectors waiting to be flushed.
func (cache *SectorCache) DirtyCount() uint {
	var count uint
	for i := 0; i < int(cache.totalSectors); i++ {
		if cache.dirty.Get(i) {
			count++
		}
	}
	return count
}
