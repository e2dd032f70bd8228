package sfs

import (
	"regexp"
	"strings"

	"github.com/dargueta/simfs"
	"github.com/dargueta/simfs/disks"
	"github.com/dargueta/simfs/errors"
)

var legalNamePattern = regexp.MustCompile(`^[A-Za-z0-9._-]+$`)

// IsLegalName determines if `name` can be used as a file or directory name.
func IsLegalName(name string) bool {
	return len(name) > 0 && len(name) <= disks.MaxNameLength && legalNamePattern.MatchString(name)
}

// resolvedPath is the result of walking a path.
type resolvedPath struct {
	// Parent is the directory containing the last component. For "/" it's the
	// root itself.
	Parent simfs.Inumber
	// Child is the inode of the last component. Only meaningful if Found is
	// true.
	Child simfs.Inumber
	Found bool
	// Name is the last component, or "" for the root.
	Name string
	// parentMissing is set if an intermediate directory didn't exist. Parent
	// is then the last directory that did.
	parentMissing bool
}

// splitPath validates an absolute path and breaks it into its components.
// Repeated slashes are ignored.
func splitPath(path string) ([]string, error) {
	if len(path) > disks.MaxPathLength {
		return nil, errors.Newf(
			errors.ENAMETOOLONG,
			"path is %d bytes, limit is %d",
			len(path),
			disks.MaxPathLength)
	}
	if !strings.HasPrefix(path, "/") {
		return nil, errors.Newf(errors.EINVAL, "path %q isn't absolute", path)
	}

	components := strings.FieldsFunc(path, func(r rune) bool { return r == '/' })
	for _, name := range components {
		if !IsLegalName(name) {
			return nil, errors.Newf(errors.EINVAL, "illegal name %q in path %q", name, path)
		}
	}
	return components, nil
}

// resolvePath walks `path` from the root.
//
// Errors are reserved for paths that can never be valid: relative paths, illegal
// names, and paths going through a file. A path that's merely missing gives a
// result with Found set to false.
func (fs *FileSystem) resolvePath(path string) (resolvedPath, error) {
	components, err := splitPath(path)
	if err != nil {
		return resolvedPath{}, err
	}

	result := resolvedPath{
		Parent: simfs.RootInumber,
		Child:  simfs.RootInumber,
		Found:  true,
	}
	cache := newInodeSectorCache(fs.inodes)

	for i, name := range components {
		result.Name = name
		if !result.Found {
			// Can't descend into something that doesn't exist. Keep going to
			// validate the rest of the names, but nothing below here exists.
			result.parentMissing = true
			continue
		}

		result.Parent = result.Child
		directory, err := cache.Read(result.Parent)
		if err != nil {
			return resolvedPath{}, err
		}
		if directory.Type != simfs.TypeDirectory {
			return resolvedPath{}, errors.Newf(
				errors.ENOTDIR,
				"%q is not a directory",
				"/"+strings.Join(components[:i], "/"))
		}

		_, entry, found, err := fs.findEntry(&directory, func(e simfs.DirectoryEntry) bool {
			return e.Name == name
		})
		if err != nil {
			return resolvedPath{}, err
		}
		result.Found = found
		result.Child = entry.Inode
	}

	fs.log.Debug(
		"resolved path",
		"path", path,
		"parent", result.Parent,
		"child", result.Child,
		"found", result.Found,
		"inodeReads", cache.misses)
	return result, nil
}
