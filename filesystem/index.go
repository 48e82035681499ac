package filesystem

// The index is an xsync.Map keyed by id, so reads are safe whether or not
// fs.mu is held. Writes still happen under fs.mu to stay ordered with the tree.

func (fs *FileSystem) indexInsert(v *Vnode) {
	fs.index.Store(v.id, v)
}

// indexRemove only drops the entry if it still maps to v and reports whether
// it did. Caller must hold fs.mu.
func (fs *FileSystem) indexRemove(v *Vnode) bool {
	if !fs.attached(v) {
		return false
	}
	fs.index.Delete(v.id)
	return true
}

// lookupByID resolves an id; see [FileSystem.GetVnode] for the locking contract
func (fs *FileSystem) lookupByID(id ID) (*Vnode, bool) {
	if id == NoID {
		return nil, false
	}
	return fs.index.Load(id)
}

// attached reports whether v is still the live node for its id
func (fs *FileSystem) attached(v *Vnode) bool {
	cur, ok := fs.index.Load(v.id)
	return ok && cur == v
}

// NodeCount returns the number of nodes in the index, root included
func (fs *FileSystem) NodeCount() int {
	return fs.index.Size()
}
