package sfs

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/dargueta/simfs"
	"github.com/dargueta/simfs/errors"
	c "github.com/dargueta/simfs/file_systems/common"
)

// CheckReport is the result of [FileSystem.Check].
type CheckReport struct {
	Files       uint
	Directories uint
	// ReachableInodes is every inode found by walking the tree from the root.
	ReachableInodes *roaring.Bitmap
	// ReferencedSectors is every data sector used by a reachable inode.
	ReferencedSectors *roaring.Bitmap
	// Problems describes each inconsistency found. It's empty if the image is
	// consistent.
	Problems []string
}

func (report *CheckReport) OK() bool {
	return len(report.Problems) == 0
}

func (report *CheckReport) addProblem(format string, args ...any) {
	report.Problems = append(report.Problems, fmt.Sprintf(format, args...))
}

type pendingDirectory struct {
	path    string
	inumber simfs.Inumber
}

// Check walks the whole tree and compares what it finds against the bitmaps.
// Inconsistencies are listed in the report; an error is returned only if the
// device fails.
func (fs *FileSystem) Check() (CheckReport, error) {
	report := CheckReport{
		ReachableInodes:   roaring.New(),
		ReferencedSectors: roaring.New(),
	}

	allocatedInodes := roaring.New()
	err := fs.inodeMap.ForEachSet(func(index uint) { allocatedInodes.Add(uint32(index)) })
	if err != nil {
		return report, err
	}
	allocatedSectors := roaring.New()
	err = fs.sectors.ForEachSet(func(index uint) { allocatedSectors.Add(uint32(index)) })
	if err != nil {
		return report, err
	}

	for sector := c.PhysicalBlock(0); sector < fs.layout.FirstDataSector(); sector++ {
		if !allocatedSectors.Contains(uint32(sector)) {
			report.addProblem("reserved sector %d isn't marked as used", sector)
		}
	}

	report.ReachableInodes.Add(uint32(simfs.RootInumber))
	queue := []pendingDirectory{{path: "/", inumber: simfs.RootInumber}}

	for len(queue) > 0 {
		current := queue[0]
		queue = queue[1:]

		inode, err := fs.inodes.Read(current.inumber)
		if errors.ErrnoOf(err) == errors.EUCLEAN {
			report.addProblem("%s: %s", current.path, err)
			continue
		} else if err != nil {
			return report, err
		}

		fs.checkSectors(&report, current.path, &inode, allocatedSectors)
		if inode.Type != simfs.TypeDirectory {
			report.addProblem("%s: expected a directory, found a %s", current.path, inode.Type)
			continue
		}
		report.Directories++

		if uint(inode.Size) > fs.layout.MaxDirectoryEntries {
			report.addProblem("%s: has %d entries, limit is %d",
				current.path, inode.Size, fs.layout.MaxDirectoryEntries)
			continue
		}

		seenNames := map[string]bool{}
		var entries []simfs.DirectoryEntry
		err = fs.scanEntries(&inode, func(_ uint, entry simfs.DirectoryEntry) bool {
			entries = append(entries, entry)
			return true
		})
		if errors.ErrnoOf(err) == errors.EUCLEAN {
			report.addProblem("%s: %s", current.path, err)
			continue
		} else if err != nil {
			return report, err
		}

		for _, entry := range entries {
			childPath := joinPath(current.path, entry.Name)
			if !IsLegalName(entry.Name) {
				report.addProblem("%s: illegal name", childPath)
			}
			if seenNames[entry.Name] {
				report.addProblem("%s: duplicate name", childPath)
			}
			seenNames[entry.Name] = true

			if !report.ReachableInodes.CheckedAdd(uint32(entry.Inode)) {
				report.addProblem("%s: inode %d is linked more than once", childPath, entry.Inode)
				continue
			}
			if !allocatedInodes.Contains(uint32(entry.Inode)) {
				report.addProblem("%s: inode %d isn't marked as used", childPath, entry.Inode)
			}

			child, err := fs.inodes.Read(entry.Inode)
			if errors.ErrnoOf(err) == errors.EUCLEAN {
				report.addProblem("%s: %s", childPath, err)
				continue
			} else if err != nil {
				return report, err
			}

			if child.Type == simfs.TypeDirectory {
				queue = append(queue, pendingDirectory{path: childPath, inumber: entry.Inode})
				continue
			}

			report.Files++
			fs.checkSectors(&report, childPath, &child, allocatedSectors)
			if child.Size > fs.layout.MaxFileSize {
				report.addProblem("%s: size %d exceeds the maximum of %d",
					childPath, child.Size, fs.layout.MaxFileSize)
				continue
			}
			for i := uint(0); i < fs.sectorsForSize(child.Size); i++ {
				if !child.Data[i].IsAllocated() {
					report.addProblem("%s: slot %d is empty but inside the file", childPath, i)
				}
			}
		}
	}

	orphans := roaring.AndNot(allocatedInodes, report.ReachableInodes)
	for _, inumber := range orphans.ToArray() {
		report.addProblem("inode %d is marked as used but unreachable", inumber)
	}

	leaked := allocatedSectors.Clone()
	leaked.RemoveRange(0, uint64(fs.layout.FirstDataSector()))
	leaked.AndNot(report.ReferencedSectors)
	for _, sector := range leaked.ToArray() {
		report.addProblem("sector %d is marked as used but not referenced", sector)
	}

	fs.log.Info(
		"checked image",
		"files", report.Files,
		"directories", report.Directories,
		"problems", len(report.Problems))
	return report, nil
}

func (fs *FileSystem) checkSectors(
	report *CheckReport, objectPath string, inode *Inode, allocatedSectors *roaring.Bitmap,
) {
	for _, sector := range inode.AllocatedSectors() {
		if !report.ReferencedSectors.CheckedAdd(uint32(sector)) {
			report.addProblem("%s: sector %d is used more than once", objectPath, sector)
		}
		if !allocatedSectors.Contains(uint32(sector)) {
			report.addProblem("%s: sector %d isn't marked as used", objectPath, sector)
		}
	}
}

func joinPath(parent, name string) string {
	if parent == "/" {
		return "/" + name
	}
	return parent + "/" + name
}
