package filesystem

import (
	"fmt"

	"github.com/brettbedarf/devfs"
	"github.com/brettbedarf/devfs/internal/util"
	"github.com/google/uuid"
)

// Stat is the metadata reported by [FileSystem.Rstat]
type Stat struct {
	ID   ID
	Type devfs.StreamType
	Size int64 // always 0
	FsID uuid.UUID
}

// Lookup resolves name inside the directory dir and returns the child's id
func (fs *FileSystem) Lookup(dir ID, name string) (ID, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	d, ok := fs.lookupByID(dir)
	if !ok {
		return NoID, devfs.ErrNotFound
	}
	v, err := fs.findInDir(d, name)
	if err != nil {
		return NoID, err
	}
	return v.id, nil
}

// GetVnode resolves id to its node. reenter is true when the caller is already
// inside a namespace operation holding the instance lock; the index is safe to
// read either way.
func (fs *FileSystem) GetVnode(id ID, reenter bool) (*Vnode, error) {
	v, ok := fs.lookupByID(id)
	if !ok {
		return nil, fmt.Errorf("%w: vnode %d", devfs.ErrNotFound, id)
	}
	return v, nil
}

// PutVnode releases a reference obtained from GetVnode. Nodes live until
// unpublished or unmounted, so there is nothing to drop.
func (fs *FileSystem) PutVnode(v *Vnode, reenter bool) error {
	return nil
}

// RemoveVnode destroys a node the caller has already unlinked. A node that is
// still in a directory means the tree is corrupt, and that panics. Removing a
// node that is already gone gives devfs.ErrNotFound.
func (fs *FileSystem) RemoveVnode(v *Vnode, reenter bool) error {
	if !reenter {
		fs.mu.Lock()
		defer fs.mu.Unlock()
	}

	if v.parent != NoID {
		logger := util.GetLogger("Devfs.RemoveVnode")
		logger.Panic().
			Uint64("id", uint64(v.id)).
			Uint64("parent", uint64(v.parent)).
			Msg("Removing vnode that is still linked into a directory")
	}
	return fs.deleteVnode(v, false)
}

// Sync has nothing to flush
func (fs *FileSystem) Sync() error {
	return nil
}

// Fsync has nothing to flush
func (fs *FileSystem) Fsync(c *Cookie) error {
	return nil
}

// pager returns v's driver if it supports paging. The driver is called
// without fs.mu held.
func (fs *FileSystem) pager(v *Vnode) (devfs.Pager, bool) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	s, ok := v.stream.(*devStream)
	if !ok || s.calls == nil {
		return nil, false
	}
	p, ok := s.calls.(devfs.Pager)
	return p, ok
}

// CanPage reports whether v is a device whose driver can back pages
func (fs *FileSystem) CanPage(v *Vnode) bool {
	p, ok := fs.pager(v)
	return ok && p.CanPage()
}

// ReadPage forwards to the driver; directories and non-paging devices get
// devfs.ErrNotAllowed
func (fs *FileSystem) ReadPage(v *Vnode, vecs [][]byte, pos int64) (int, error) {
	p, ok := fs.pager(v)
	if !ok {
		return 0, devfs.ErrNotAllowed
	}
	return p.ReadPage(vecs, pos)
}

// WritePage forwards to the driver; see [FileSystem.ReadPage]
func (fs *FileSystem) WritePage(v *Vnode, vecs [][]byte, pos int64) (int, error) {
	p, ok := fs.pager(v)
	if !ok {
		return 0, devfs.ErrNotAllowed
	}
	return p.WritePage(vecs, pos)
}

// Create always fails: nodes only appear through Publish
func (fs *FileSystem) Create(dir ID, name string, st devfs.StreamType) (ID, error) {
	return NoID, devfs.ErrReadOnlyFilesystem
}

// Unlink always fails: see [FileSystem.Unpublish]
func (fs *FileSystem) Unlink(dir ID, name string) error {
	return devfs.ErrReadOnlyFilesystem
}

func (fs *FileSystem) Rename(oldDir ID, oldName string, newDir ID, newName string) error {
	return devfs.ErrReadOnlyFilesystem
}

// Rstat reports v's id and stream type. Nothing in devfs has a size.
func (fs *FileSystem) Rstat(v *Vnode) (Stat, error) {
	return Stat{ID: v.id, Type: v.Type(), FsID: fs.fsid}, nil
}

// Wstat always fails: there is no mutable metadata
func (fs *FileSystem) Wstat(v *Vnode, st Stat) error {
	return devfs.ErrNotAllowed
}
