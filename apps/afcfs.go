// SPDX-License-Identifier: GPL-2.0-only

package apps

import (
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"github.com/jkcoxson/minimuxer/idevice"
	"github.com/jkcoxson/minimuxer/shim"
)

// maxTreeDepth bounds FileManager.Tree's recursion (spec.md §4.8).
const maxTreeDepth = 3

// FileManager is the general-purpose AFC file manager: list, stat, read,
// write, mkdir, delete-recursive, and a bounded-depth tree walk, each
// opening its own AFC session.
type FileManager struct {
	device idevice.Device
	logger log.Logger
}

func NewFileManager(device idevice.Device, logger log.Logger) *FileManager {
	return &FileManager{device: device, logger: logger}
}

func (m *FileManager) client() (idevice.AFCClient, error) {
	afc, err := m.device.NewAFCClient(afcLabel)
	if err != nil {
		return nil, shim.NewError(shim.ErrCreateAfc, err)
	}
	return afc, nil
}

// stripFileURI removes a "file://" prefix external callers may pass;
// internal code works in plain paths (spec.md §8).
func stripFileURI(path string) string {
	return strings.TrimPrefix(path, "file://")
}

func (m *FileManager) List(path string) ([]string, error) {
	afc, err := m.client()
	if err != nil {
		return nil, err
	}
	defer afc.Close()

	entries, err := afc.ListDirectory(stripFileURI(path))
	if err != nil {
		return nil, shim.NewError(shim.ErrRWAfc, err)
	}
	return entries, nil
}

// Stat returns the file's type indicator and size, the subset of
// get_file_info fields minimuxer-shim surfaces.
func (m *FileManager) Stat(path string) (idevice.AFCFileInfo, error) {
	afc, err := m.client()
	if err != nil {
		return idevice.AFCFileInfo{}, err
	}
	defer afc.Close()

	info, err := afc.Stat(stripFileURI(path))
	if err != nil {
		return idevice.AFCFileInfo{}, shim.NewError(shim.ErrRWAfc, err)
	}
	return info, nil
}

func (m *FileManager) Read(path string, size uint64) ([]byte, error) {
	afc, err := m.client()
	if err != nil {
		return nil, err
	}
	defer afc.Close()

	file, err := afc.OpenRead(stripFileURI(path))
	if err != nil {
		return nil, shim.NewError(shim.ErrRWAfc, err)
	}
	defer file.Close()

	data, err := file.Read(size)
	if err != nil {
		return nil, shim.NewError(shim.ErrRWAfc, err)
	}
	return data, nil
}

func (m *FileManager) Write(path string, data []byte) error {
	afc, err := m.client()
	if err != nil {
		return err
	}
	defer afc.Close()

	file, err := afc.OpenWrite(stripFileURI(path))
	if err != nil {
		return shim.NewError(shim.ErrRWAfc, err)
	}
	defer file.Close()

	if err := file.Write(data); err != nil {
		return shim.NewError(shim.ErrRWAfc, err)
	}
	return nil
}

func (m *FileManager) MkDir(path string) error {
	afc, err := m.client()
	if err != nil {
		return err
	}
	defer afc.Close()

	if err := afc.MkDir(stripFileURI(path)); err != nil {
		return shim.NewError(shim.ErrRWAfc, err)
	}
	return nil
}

func (m *FileManager) DeleteRecursive(path string) error {
	afc, err := m.client()
	if err != nil {
		return err
	}
	defer afc.Close()

	if err := afc.RemoveAll(stripFileURI(path)); err != nil {
		return shim.NewError(shim.ErrRWAfc, err)
	}
	level.Debug(m.logger).Log("msg", "removed path and contents", "path", path)
	return nil
}

// Entry is a single node of a Tree walk.
type Entry struct {
	Path     string  `json:"path"`
	Parent   string  `json:"parent"`
	IsFile   bool    `json:"is_file"`
	Size     *uint64 `json:"size,omitempty"`
	Children []Entry `json:"children,omitempty"`
}

// Tree walks path up to maxTreeDepth levels deep, returning a recursive
// directory entry. A stat or directory-listing failure on a node is logged
// at debug level rather than failing the whole walk: a node that cannot be
// stat'ed is kept as a file entry with no size, and a directory that
// cannot be listed is kept with no children.
func (m *FileManager) Tree(path string) (Entry, error) {
	afc, err := m.client()
	if err != nil {
		return Entry{}, err
	}
	defer afc.Close()

	return m.walk(afc, path, "", 0), nil
}

func (m *FileManager) walk(afc idevice.AFCClient, path, parent string, depth int) Entry {
	entry := Entry{Path: path, Parent: parent}

	info, err := afc.Stat(path)
	if err != nil {
		level.Debug(m.logger).Log("msg", "failed to stat path during tree walk", "path", path, "err", err)
		entry.IsFile = true
		return entry
	}

	if info.IFMT != "S_IFDIR" {
		entry.IsFile = true
		size := info.Size
		entry.Size = &size
		return entry
	}

	if depth >= maxTreeDepth {
		return entry
	}

	names, err := afc.ListDirectory(path)
	if err != nil {
		level.Debug(m.logger).Log("msg", "failed to list directory during tree walk", "path", path, "err", err)
		return entry
	}
	for _, name := range names {
		if name == "." || name == ".." {
			continue
		}
		childPath := path + "/" + name
		entry.Children = append(entry.Children, m.walk(afc, childPath, path, depth+1))
	}
	return entry
}
