package disks_test

import (
	"testing"

	"github.com/dargueta/simfs/disks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPredefinedGeometries__Loaded(t *testing.T) {
	geometries := disks.PredefinedGeometries()
	require.NotEmpty(t, geometries)

	slugs := make([]string, 0, len(geometries))
	for _, geometry := range geometries {
		slugs = append(slugs, geometry.Slug)
	}
	assert.IsIncreasing(t, slugs, "geometries should be sorted by slug")
	assert.Contains(t, slugs, disks.DefaultGeometrySlug)
	assert.Contains(t, slugs, "tiny")
}

func TestDefaultGeometry(t *testing.T) {
	geometry := disks.DefaultGeometry()
	assert.EqualValues(t, 512, geometry.SectorSize)
	assert.EqualValues(t, 10000, geometry.TotalSectors)
	assert.EqualValues(t, 1000, geometry.MaxFiles)
	assert.EqualValues(t, 30, geometry.MaxSectorsPerFile)
	assert.EqualValues(t, 256, geometry.MaxOpenFiles)
	assert.EqualValues(t, 5120000, geometry.TotalSizeBytes())
}

func TestGeometry__QuotedNotes(t *testing.T) {
	geometry, err := disks.GetPredefinedGeometry("floppy-128")
	require.NoError(t, err)
	assert.Equal(t, `128-byte records, 8" single density`, geometry.Notes)
	assert.EqualValues(t, 128, geometry.SectorSize)
}
