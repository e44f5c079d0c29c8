// Command mkfsimg formats a disk image with vesper's on-disk filesystem and
// copies a skeleton directory's files into it, replacing the original
// mkfs utility's ufs/easy-fs image builder with one that drives the blkfs
// façade directly.
package main

import (
	"fmt"
	"os"
	"path/filepath"

	"vesper/blkfs"
)

// maxNameLen mirrors blkfs's unexported dirNameLen: the root directory
// packs each name into a fixed 28-byte field, so there is exactly one
// namespace level and no path component may exceed it.
const maxNameLen = 28

// nblocks sizes the image generously for a handful of small skeleton
// files: a superblock block, inode bitmap/table blocks, a data bitmap
// block, and headroom for data.
const nblocks = 4096

func copyFile(fs *blkfs.Fs_t, name, hostPath string) error {
	data, err := os.ReadFile(hostPath)
	if err != nil {
		return err
	}
	f, ferr := fs.Create(name)
	if ferr != 0 {
		return fmt.Errorf("create %q: %d", name, ferr)
	}
	if len(data) == 0 {
		return nil
	}
	n, werr := f.WriteAt(0, data)
	if werr != 0 {
		return fmt.Errorf("write %q: %d", name, werr)
	}
	if n != len(data) {
		return fmt.Errorf("write %q: wrote %d of %d bytes", name, n, len(data))
	}
	return nil
}

// addSkel populates fs with every regular file found directly inside
// skeldir. Subdirectories are reported and skipped: blkfs has a single
// flat namespace, so a nested skeleton layout has nowhere to go.
func addSkel(fs *blkfs.Fs_t, skeldir string) error {
	entries, err := os.ReadDir(skeldir)
	if err != nil {
		return err
	}
	for _, ent := range entries {
		if ent.IsDir() {
			fmt.Printf("mkfsimg: skipping subdirectory %q (flat namespace only)\n", ent.Name())
			continue
		}
		name := ent.Name()
		if len(name) > maxNameLen {
			return fmt.Errorf("name %q exceeds %d bytes", name, maxNameLen)
		}
		if err := copyFile(fs, name, filepath.Join(skeldir, name)); err != nil {
			return err
		}
	}
	return nil
}

func createImage(path string, nblocks int) (*blkfs.FileDisk_t, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	if err := f.Truncate(int64(nblocks) * blkfs.BSIZE); err != nil {
		f.Close()
		return nil, err
	}
	f.Close()
	return blkfs.OpenFileDisk(path)
}

// main builds a fresh filesystem image at the given path and copies every
// top-level file of the skeleton directory into it.
func main() {
	if len(os.Args) != 3 {
		fmt.Printf("Usage: mkfsimg <output image> <skel dir>\n")
		os.Exit(1)
	}
	image, skeldir := os.Args[1], os.Args[2]

	disk, err := createImage(image, nblocks)
	if err != nil {
		fmt.Printf("mkfsimg: %v\n", err)
		os.Exit(1)
	}
	defer disk.Close()

	fs, ferr := blkfs.MkFS(disk)
	if ferr != 0 {
		fmt.Printf("mkfsimg: MkFS: %d\n", ferr)
		os.Exit(1)
	}

	if err := addSkel(fs, skeldir); err != nil {
		fmt.Printf("mkfsimg: %v\n", err)
		os.Exit(1)
	}

	names, lerr := fs.Ls()
	if lerr != 0 {
		fmt.Printf("mkfsimg: Ls: %d\n", lerr)
		os.Exit(1)
	}
	fmt.Printf("mkfsimg: wrote %d file(s) to %s\n", len(names), image)
}
