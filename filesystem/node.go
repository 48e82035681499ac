package filesystem

import (
	"strings"

	"github.com/brettbedarf/devfs"
)

// ID identifies a Vnode within one mounted instance; ids are never reused
type ID uint64

// NoID is the null link used for "no sibling", "empty directory", "cursor exhausted"
const NoID ID = 0

// Vnode is a namespace entry: a directory or a published device.
// All links to other nodes are ids resolved through the instance index, so a
// node can be dropped from the index without walking the tree.
type Vnode struct {
	id     ID
	name   string // immutable
	parent ID     // protected by FileSystem.mu; root is its own parent
	next   ID     // next sibling in parent's child list; protected by FileSystem.mu
	stream stream // variant fixed at creation
}

// stream is the node payload: exactly one of *dirStream or *devStream
type stream interface {
	streamType() devfs.StreamType
}

// dirStream holds a directory's children (most recently inserted first) and
// the jar of open directory cookies iterating it
type dirStream struct {
	head ID
	jar  map[*dirCursor]struct{}
}

func newDirStream() *dirStream {
	return &dirStream{jar: make(map[*dirCursor]struct{})}
}

func (*dirStream) streamType() devfs.StreamType { return devfs.StreamDir }

// devStream binds a node to a driver's operation table. The table is borrowed.
// Both fields are set once at publish and never written again.
type devStream struct {
	fullPath string // path the device was published at; diagnostics and driver open
	calls    devfs.Device
}

func (*devStream) streamType() devfs.StreamType { return devfs.StreamDevice }

// ID returns the node's id
func (v *Vnode) ID() ID {
	return v.id
}

// Name returns the node's immutable name; the root's name is ""
func (v *Vnode) Name() string {
	return v.name
}

// Type returns the node's stream type
func (v *Vnode) Type() devfs.StreamType {
	if v.stream == nil {
		return devfs.StreamAny
	}
	return v.stream.streamType()
}

// IsDir reports whether v is a directory
func (v *Vnode) IsDir() bool {
	_, ok := v.stream.(*dirStream)
	return ok
}

// Device returns the bound operation table and published path for device nodes
func (v *Vnode) Device() (devfs.Device, string, bool) {
	if s, ok := v.stream.(*devStream); ok {
		return s.calls, s.fullPath, true
	}
	return nil, "", false
}

// createVnode allocates a node with a fresh id and a copy of name.
// The caller sets the stream and links it in. Caller must hold fs.mu.
func (fs *FileSystem) createVnode(name string) (*Vnode, error) {
	if fs.cfg.MaxVnodes > 0 && fs.live >= fs.cfg.MaxVnodes {
		return nil, devfs.ErrOutOfMemory
	}
	v := &Vnode{
		id:   ID(fs.lastID.Add(1)),
		name: strings.Clone(name),
	}
	fs.live++
	return v, nil
}

// deleteVnode drops v from the index. Unless force is set, v must be an empty
// directory or a device and must not be linked under a parent. A node that is
// no longer in the index gives devfs.ErrNotFound. Caller must hold fs.mu.
func (fs *FileSystem) deleteVnode(v *Vnode, force bool) error {
	if !fs.attached(v) {
		return devfs.ErrNotFound
	}
	if !force {
		if ds, ok := v.stream.(*dirStream); ok && ds.head != NoID {
			return devfs.ErrNotAllowed
		}
		if v.parent != NoID || v.next != NoID {
			return devfs.ErrNotAllowed
		}
	}

	if fs.indexRemove(v) {
		fs.live--
	}
	return nil
}
