package disks

import (
	_ "embed"
	"fmt"
	"os"
	"sort"

	"github.com/gocarina/gocsv"
	"gopkg.in/yaml.v2"
)

// Geometry gives the fixed capacities of an image. They're set when the image is
// formatted and can't change afterwards.
type Geometry struct {
	Name string `csv:"name" yaml:"name"`
	Slug string `csv:"slug" yaml:"slug"`

	// SectorSize is the number of bytes in a sector, the unit of every read and
	// write to the device.
	SectorSize uint `csv:"sector_size" yaml:"sector_size"`
	// TotalSectors is the number of sectors in the image, including the ones
	// used for metadata.
	TotalSectors uint `csv:"total_sectors" yaml:"total_sectors"`
	// MaxFiles is the number of inodes, and thus the maximum number of files
	// and directories combined (the root directory included).
	MaxFiles          uint `csv:"max_files" yaml:"max_files"`
	MaxSectorsPerFile uint `csv:"max_sectors_per_file" yaml:"max_sectors_per_file"`
	// MaxOpenFiles is the size of the open file table. It isn't stored on disk.
	MaxOpenFiles uint   `csv:"max_open_files" yaml:"max_open_files"`
	Notes        string `csv:"notes" yaml:"notes,omitempty"`
}

// TotalSizeBytes gives the size of the image file.
func (g *Geometry) TotalSizeBytes() int64 {
	return int64(g.SectorSize) * int64(g.TotalSectors)
}

func (g Geometry) String() string {
	name := g.Slug
	if name == "" {
		name = "custom"
	}
	return fmt.Sprintf(
		"%s (%d x %d B, %d files, %d sectors/file)",
		name,
		g.TotalSectors,
		g.SectorSize,
		g.MaxFiles,
		g.MaxSectorsPerFile,
	)
}

////////////////////////////////////////////////////////////////////////////////

//go:embed geometries.csv
var geometriesRawCSV string
var predefinedGeometries map[string]Geometry

// DefaultGeometrySlug identifies the geometry used when none is given.
const DefaultGeometrySlug = "default"

// GetPredefinedGeometry returns the predefined geometry with the given slug.
func GetPredefinedGeometry(slug string) (Geometry, error) {
	geometry, ok := predefinedGeometries[slug]
	if ok {
		return geometry, nil
	}

	err := fmt.Errorf("no predefined geometry exists with slug %q", slug)
	return Geometry{}, err
}

// DefaultGeometry returns the geometry used when the caller doesn't give one.
func DefaultGeometry() Geometry {
	return predefinedGeometries[DefaultGeometrySlug]
}

// PredefinedGeometries returns all predefined geometries, sorted by slug.
func PredefinedGeometries() []Geometry {
	result := make([]Geometry, 0, len(predefinedGeometries))
	for _, geometry := range predefinedGeometries {
		result = append(result, geometry)
	}
	sort.Slice(result, func(i, j int) bool { return result[i].Slug < result[j].Slug })
	return result
}

// LoadGeometryFile reads a geometry from a YAML file. Unknown keys are an error.
// The geometry is validated before it's returned.
func LoadGeometryFile(path string) (Geometry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Geometry{}, fmt.Errorf("reading geometry file: %w", err)
	}

	var geometry Geometry
	if err := yaml.UnmarshalStrict(data, &geometry); err != nil {
		return Geometry{}, fmt.Errorf("unmarshaling geometry file %q: %w", path, err)
	}

	if _, err := ComputeLayout(geometry); err != nil {
		return Geometry{}, fmt.Errorf("geometry in %q is unusable: %w", path, err)
	}
	return geometry, nil
}

func init() {
	var rows []Geometry
	if err := gocsv.UnmarshalString(geometriesRawCSV, &rows); err != nil {
		panic(fmt.Errorf("failed to decode predefined geometries: %w", err))
	}

	predefinedGeometries = make(map[string]Geometry, len(rows))
	for i, row := range rows {
		_, exists := predefinedGeometries[row.Slug]
		if exists {
			panic(fmt.Errorf("duplicate definition for geometry %q found on row %d", row.Slug, i+1))
		}
		if _, err := ComputeLayout(row); err != nil {
			panic(fmt.Errorf("predefined geometry %q is invalid: %w", row.Slug, err))
		}
		predefinedGeometries[row.Slug] = row
	}
}
