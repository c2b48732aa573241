// Package webroot serves a directory tree through net/http's file server,
// backed by a billy filesystem. In production the filesystem is an osfs
// chroot rooted at the served directory, so resolved paths cannot escape it;
// tests swap in memfs.
package webroot

import (
	"errors"
	"io"
	"io/fs"
	"mime"
	"net/http"
	"path"

	"github.com/go-git/go-billy/v5"
)

func init() {
	// Some OS mime tables have no entry for wasm, and browsers refuse
	// streaming instantiation without the exact content type.
	_ = mime.AddExtensionType(".wasm", "application/wasm")
}

// Handler returns an http.Handler serving fsys with the base library's file
// semantics: index.html for directories that have one, a generated listing
// for those that don't, Range and conditional requests, sniffed or
// extension-derived content types.
func Handler(fsys billy.Filesystem) http.Handler {
	return http.FileServer(FileSystem(fsys))
}

// FileSystem adapts fsys to http.FileSystem. billy files carry no Stat or
// directory listing of their own, so the adapter answers those through the
// filesystem instead.
func FileSystem(fsys billy.Filesystem) http.FileSystem {
	return &fileSystem{fs: fsys}
}

type fileSystem struct {
	fs billy.Filesystem
}

func (f *fileSystem) Open(name string) (http.File, error) {
	name = path.Clean("/" + name)

	info, err := f.fs.Stat(name)
	if err != nil {
		return nil, mapErr("open", name, err)
	}
	if info.IsDir() {
		return &dir{fs: f.fs, name: name, info: info}, nil
	}

	bf, err := f.fs.Open(name)
	if err != nil {
		return nil, mapErr("open", name, err)
	}
	return &file{File: bf, info: info}, nil
}

// mapErr rewrites billy's jail sentinel so net/http answers 404 rather than
// 500 for paths that cross the root.
func mapErr(op, name string, err error) error {
	if errors.Is(err, billy.ErrCrossedBoundary) {
		return &fs.PathError{Op: op, Path: name, Err: fs.ErrNotExist}
	}
	return err
}

// file is a regular file. Read, Seek, and Close come from the billy file;
// the FileInfo rides along from Open.
type file struct {
	billy.File
	info fs.FileInfo
}

func (f *file) Stat() (fs.FileInfo, error) {
	return f.info, nil
}

func (f *file) Readdir(int) ([]fs.FileInfo, error) {
	return nil, &fs.PathError{Op: "readdir", Path: f.Name(), Err: errors.New("not a directory")}
}

// dir is a directory handle. Listings are read lazily on the first Readdir
// and paged through an offset, matching os.File semantics.
type dir struct {
	fs     billy.Filesystem
	name   string
	info   fs.FileInfo
	loaded bool
	ents   []fs.FileInfo
	pos    int
}

func (d *dir) Stat() (fs.FileInfo, error) {
	return d.info, nil
}

func (d *dir) Readdir(count int) ([]fs.FileInfo, error) {
	if !d.loaded {
		ents, err := d.fs.ReadDir(d.name)
		if err != nil {
			return nil, mapErr("readdir", d.name, err)
		}
		d.ents = ents
		d.loaded = true
	}
	if count <= 0 {
		ents := d.ents[d.pos:]
		d.pos = len(d.ents)
		return ents, nil
	}
	if d.pos >= len(d.ents) {
		return nil, io.EOF
	}
	end := d.pos + count
	if end > len(d.ents) {
		end = len(d.ents)
	}
	ents := d.ents[d.pos:end]
	d.pos = end
	return ents, nil
}

func (d *dir) Read([]byte) (int, error) {
	return 0, &fs.PathError{Op: "read", Path: d.name, Err: errors.New("is a directory")}
}

func (d *dir) Seek(offset int64, whence int) (int64, error) {
	if offset == 0 && whence == io.SeekStart {
		d.pos = 0
		return 0, nil
	}
	return 0, &fs.PathError{Op: "seek", Path: d.name, Err: errors.New("not supported on a directory")}
}

func (d *dir) Close() error {
	return nil
}
