package main

import (
	"fmt"
	"io"
	"log"
	"os"
	"path"

	"github.com/dargueta/simfs"
	"github.com/dargueta/simfs/disks"
	"github.com/dargueta/simfs/errors"
	"github.com/dargueta/simfs/file_systems/sfs"
	"github.com/dargueta/simfs/utilities/compression"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "simfs",
		Usage: "Manage simple inode-based file system images",
		Flags: globalFlags,
		Commands: []*cli.Command{
			{
				Name:   "format",
				Usage:  "Create or wipe an image",
				Action: formatImage,
			},
			{
				Name:   "info",
				Usage:  "Show the geometry and usage of an image",
				Action: withFileSystem(showInfo),
			},
			{
				Name:   "geometries",
				Usage:  "List the predefined geometries",
				Action: listGeometries,
			},
			{
				Name:      "ls",
				Usage:     "List a directory",
				ArgsUsage: "[PATH]",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "recursive", Aliases: []string{"r"}},
				},
				Action: withFileSystem(listDirectory),
			},
			{
				Name:      "mkdir",
				Usage:     "Create a directory",
				ArgsUsage: "PATH",
				Action:    withPathAndSync(func(fs *sfs.FileSystem, p string) error { return fs.CreateDirectory(p) }),
			},
			{
				Name:      "rmdir",
				Usage:     "Remove an empty directory",
				ArgsUsage: "PATH",
				Action:    withPathAndSync(func(fs *sfs.FileSystem, p string) error { return fs.UnlinkDirectory(p) }),
			},
			{
				Name:      "touch",
				Usage:     "Create an empty file",
				ArgsUsage: "PATH",
				Action:    withPathAndSync(func(fs *sfs.FileSystem, p string) error { return fs.CreateFile(p) }),
			},
			{
				Name:      "rm",
				Usage:     "Delete a file",
				ArgsUsage: "PATH",
				Action:    withPathAndSync(func(fs *sfs.FileSystem, p string) error { return fs.UnlinkFile(p) }),
			},
			{
				Name:      "put",
				Usage:     "Copy a file from the host into the image",
				ArgsUsage: "HOST_FILE PATH",
				Action:    withFileSystem(putFile),
			},
			{
				Name:      "cat",
				Usage:     "Write the contents of a file to stdout",
				ArgsUsage: "PATH",
				Action:    withFileSystem(catFile),
			},
			{
				Name:   "check",
				Usage:  "Verify the image is consistent",
				Action: withFileSystem(checkImage),
			},
			{
				Name:      "pack",
				Usage:     "Compress an image file with RLE8 and gzip",
				ArgsUsage: "IMAGE_FILE OUTPUT_FILE",
				Action:    packImage,
			},
			{
				Name:      "unpack",
				Usage:     "Expand an image compressed with `pack`",
				ArgsUsage: "PACKED_FILE OUTPUT_FILE",
				Action:    unpackImage,
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		log.Fatalf("fatal error: %s", err.Error())
	}
}

type fsAction func(fs *sfs.FileSystem, ctx *cli.Context) error

func withFileSystem(action fsAction) cli.ActionFunc {
	return func(ctx *cli.Context) error {
		config, err := configFromContext(ctx)
		if err != nil {
			return err
		}
		opts, err := config.Options()
		if err != nil {
			return err
		}

		fs, err := sfs.Boot(config.Image, opts...)
		if err != nil {
			return err
		}
		return action(fs, ctx)
	}
}

// withPathAndSync runs an operation taking exactly one path argument, then
// saves the image.
func withPathAndSync(operation func(fs *sfs.FileSystem, path string) error) cli.ActionFunc {
	return withFileSystem(func(fs *sfs.FileSystem, ctx *cli.Context) error {
		if ctx.NArg() != 1 {
			return cli.Exit("expected exactly one path", 2)
		}
		if err := operation(fs, ctx.Args().First()); err != nil {
			return err
		}
		return fs.Sync()
	})
}

func formatImage(ctx *cli.Context) error {
	config, err := configFromContext(ctx)
	if err != nil {
		return err
	}
	opts, err := config.Options()
	if err != nil {
		return err
	}

	fs, err := sfs.Format(config.Image, opts...)
	if err != nil {
		return err
	}
	fmt.Printf("Formatted %s, volume ID %s\n", config.Image, fs.VolumeID())
	return nil
}

func showInfo(fs *sfs.FileSystem, ctx *cli.Context) error {
	stat, err := fs.Stat()
	if err != nil {
		return err
	}
	layout := fs.Layout()

	fmt.Printf("Volume ID:        %s\n", stat.VolumeID)
	fmt.Printf("Geometry:         %s\n", layout.Geometry)
	fmt.Printf("Sector size:      %d\n", stat.BytesPerSector)
	fmt.Printf("Total sectors:    %d\n", stat.TotalSectors)
	fmt.Printf("Inode bitmap:     %s\n", layout.InodeBitmap)
	fmt.Printf("Sector bitmap:    %s\n", layout.SectorBitmap)
	fmt.Printf("Inode table:      %s\n", layout.InodeTable)
	fmt.Printf("Data sectors:     %s, %d free\n", layout.Data, stat.FreeDataSectors)
	fmt.Printf("Inodes:           %d, %d free\n", stat.TotalInodes, stat.FreeInodes)
	fmt.Printf("Max file size:    %d\n", stat.MaxFileSize)
	fmt.Printf("Max dir entries:  %d\n", stat.MaxDirectoryFiles)
	return nil
}

func listGeometries(ctx *cli.Context) error {
	for _, geometry := range disks.PredefinedGeometries() {
		fmt.Printf("%-12s %s\n", geometry.Slug, geometry)
	}
	return nil
}

func listDirectory(fs *sfs.FileSystem, ctx *cli.Context) error {
	dirPath := "/"
	if ctx.NArg() > 0 {
		dirPath = ctx.Args().First()
	}

	if ctx.Bool("recursive") {
		return fs.Walk(dirPath, func(objectPath string, entry simfs.DirectoryEntry, inode sfs.Inode) error {
			printEntry(objectPath, entry, inode)
			return nil
		})
	}

	size, err := fs.DirectorySize(dirPath)
	if err != nil {
		return err
	}
	entries, err := fs.ReadDirectory(dirPath, size)
	if err != nil {
		return err
	}
	for _, entry := range entries {
		_, inode, err := fs.StatPath(path.Join(dirPath, entry.Name))
		if err != nil {
			return err
		}
		printEntry(entry.Name, entry, inode)
	}
	return nil
}

func printEntry(name string, entry simfs.DirectoryEntry, inode sfs.Inode) {
	kind := "-"
	if inode.Type == simfs.TypeDirectory {
		kind = "d"
		name += "/"
	}
	fmt.Printf("%s %5d %8d  %s\n", kind, entry.Inode, inode.Size, name)
}

func putFile(fs *sfs.FileSystem, ctx *cli.Context) error {
	if ctx.NArg() != 2 {
		return cli.Exit("expected a host file and a destination path", 2)
	}
	data, err := os.ReadFile(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	target := ctx.Args().Get(1)

	err = fs.CreateFile(target)
	if err != nil && !errors.Is(err, errors.ErrExists) {
		return err
	}

	fd, err := fs.OpenFile(target)
	if err != nil {
		return err
	}
	if _, err = fs.WriteFile(fd, data); err != nil {
		return errors.Combine(err, fs.CloseFile(fd))
	}
	if err = fs.CloseFile(fd); err != nil {
		return err
	}
	return fs.Sync()
}

func catFile(fs *sfs.FileSystem, ctx *cli.Context) error {
	if ctx.NArg() != 1 {
		return cli.Exit("expected exactly one path", 2)
	}

	fd, err := fs.OpenFile(ctx.Args().First())
	if err != nil {
		return err
	}
	defer fs.CloseFile(fd)

	buffer := make([]byte, fs.Layout().Geometry.SectorSize)
	for {
		n, err := fs.ReadInto(fd, buffer)
		if err != nil {
			return err
		}
		if n == 0 {
			return nil
		}
		if _, err = os.Stdout.Write(buffer[:n]); err != nil {
			return err
		}
	}
}

func checkImage(fs *sfs.FileSystem, ctx *cli.Context) error {
	report, err := fs.Check()
	if err != nil {
		return err
	}

	fmt.Printf(
		"%d files, %d directories, %d data sectors in use\n",
		report.Files,
		report.Directories,
		report.ReferencedSectors.GetCardinality())
	for _, problem := range report.Problems {
		fmt.Println(problem)
	}
	if !report.OK() {
		return cli.Exit(fmt.Sprintf("%d problems found", len(report.Problems)), 1)
	}
	return nil
}

func transformFile(ctx *cli.Context, transform func(io.Reader, io.Writer) (int64, error)) error {
	if ctx.NArg() != 2 {
		return cli.Exit("expected an input file and an output file", 2)
	}

	source, err := os.Open(ctx.Args().Get(0))
	if err != nil {
		return err
	}
	defer source.Close()

	output, err := os.Create(ctx.Args().Get(1))
	if err != nil {
		return err
	}

	written, err := transform(source, output)
	if err = errors.Combine(err, output.Close()); err != nil {
		return err
	}
	fmt.Printf("Wrote %d bytes to %s\n", written, ctx.Args().Get(1))
	return nil
}

func packImage(ctx *cli.Context) error {
	return transformFile(ctx, compression.CompressImage)
}

func unpackImage(ctx *cli.Context) error {
	return transformFile(ctx, compression.DecompressImage)
}
