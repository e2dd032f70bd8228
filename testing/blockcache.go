// Package testing holds helpers shared by the tests of every package. Nothing
// here should be imported by non-test code.
package testing

import (
	"crypto/rand"
	"testing"

	"github.com/dargueta/simfs/errors"
	c "github.com/dargueta/simfs/file_systems/common"
	"github.com/dargueta/simfs/file_systems/common/blockcache"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// CreateRandomImage returns `totalSectors * bytesPerSector` random bytes, or
// aborts the test.
func CreateRandomImage(bytesPerSector, totalSectors uint, t *testing.T) []byte {
	image := make([]byte, bytesPerSector*totalSectors)
	_, err := rand.Read(image)
	require.NoErrorf(
		t,
		err,
		"failed to fill %d sectors of %d bytes with random data",
		totalSectors,
		bytesPerSector)
	return image
}

// SectorStore is in-memory backing storage for a [blockcache.SectorCache]. It
// counts every fetch and flush the cache makes, and fails the test if the cache
// ever hands it an out-of-range sector or a wrong-sized buffer.
type SectorStore struct {
	Data           []byte
	ReadOnly       bool
	Fetches        int
	Flushes        int
	bytesPerSector uint
	totalSectors   uint
	t              *testing.T
}

// NewSectorStore wraps `data` as sector storage. Pass nil to get random data.
func NewSectorStore(t *testing.T, bytesPerSector, totalSectors uint, data []byte) *SectorStore {
	if data == nil {
		data = CreateRandomImage(bytesPerSector, totalSectors, t)
	}
	require.EqualValues(t, bytesPerSector*totalSectors, len(data), "backing data is the wrong size")

	return &SectorStore{
		Data:           data,
		bytesPerSector: bytesPerSector,
		totalSectors:   totalSectors,
		t:              t,
	}
}

func (store *SectorStore) sectorSlice(sector c.PhysicalBlock, buffer []byte) ([]byte, error) {
	if uint(sector) >= store.totalSectors || uint(len(buffer)) != store.bytesPerSector {
		err := errors.Newf(
			errors.EIO,
			"cache accessed sector %d of [0, %d) with a %d-byte buffer",
			sector,
			store.totalSectors,
			len(buffer))
		store.t.Error(err)
		return nil, err
	}
	start := uint(sector) * store.bytesPerSector
	return store.Data[start : start+store.bytesPerSector], nil
}

func (store *SectorStore) fetch(sector c.PhysicalBlock, buffer []byte) error {
	source, err := store.sectorSlice(sector, buffer)
	if err != nil {
		return err
	}
	store.Fetches++
	copy(buffer, source)
	return nil
}

func (store *SectorStore) flush(sector c.PhysicalBlock, buffer []byte) error {
	if store.ReadOnly {
		err := errors.Newf(errors.ENOTSUP, "cache flushed sector %d of a read-only store", sector)
		store.t.Error(err)
		return err
	}
	target, err := store.sectorSlice(sector, buffer)
	if err != nil {
		return err
	}
	store.Flushes++
	copy(target, buffer)
	return nil
}

// NewCache creates a cache backed by this store.
func (store *SectorStore) NewCache() *blockcache.SectorCache {
	cache := blockcache.New(store.bytesPerSector, store.totalSectors, store.fetch, store.flush)
	assert.EqualValues(store.t, store.bytesPerSector, cache.BytesPerSector())
	assert.EqualValues(store.t, store.totalSectors, cache.TotalSectors())
	return cache
}
