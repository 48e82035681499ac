package filesystem

import "github.com/brettbedarf/devfs"

// All functions in this file require fs.mu to be held.

// findInDir resolves name inside dir. "." is dir itself and ".." its parent
// (the root is its own parent). First match wins, names compare exactly.
func (fs *FileSystem) findInDir(dir *Vnode, name string) (*Vnode, error) {
	ds, ok := dir.stream.(*dirStream)
	if !ok {
		return nil, devfs.ErrNotADirectory
	}

	switch name {
	case ".":
		return dir, nil
	case "..":
		if p, ok := fs.lookupByID(dir.parent); ok {
			return p, nil
		}
		return nil, devfs.ErrNotFound
	}

	for id := ds.head; id != NoID; {
		v, ok := fs.lookupByID(id)
		if !ok {
			break
		}
		if v.name == name {
			return v, nil
		}
		id = v.next
	}
	return nil, devfs.ErrNotFound
}

// insertInDir prepends v to dir's child list and makes dir its parent
func (fs *FileSystem) insertInDir(dir, v *Vnode) error {
	ds, ok := dir.stream.(*dirStream)
	if !ok {
		return devfs.ErrNotADirectory
	}

	v.next = ds.head
	ds.head = v.id
	v.parent = dir.id
	return nil
}

// removeFromDir unlinks v from dir's child list. Every open cookie on dir that
// points at v is moved on to v's next sibling first, so no cursor is left
// referencing a node that may be deleted.
func (fs *FileSystem) removeFromDir(dir, v *Vnode) error {
	ds, ok := dir.stream.(*dirStream)
	if !ok {
		return devfs.ErrNotADirectory
	}

	var prev *Vnode
	for id := ds.head; id != NoID; {
		cur, ok := fs.lookupByID(id)
		if !ok {
			break
		}
		if cur == v {
			fs.updateDirCookies(ds, v)
			if prev != nil {
				prev.next = v.next
			} else {
				ds.head = v.next
			}
			v.next = NoID
			v.parent = NoID
			return nil
		}
		prev = cur
		id = cur.next
	}
	return devfs.ErrNotFound
}

// updateDirCookies retargets jar cursors away from v
func (fs *FileSystem) updateDirCookies(ds *dirStream, v *Vnode) {
	for c := range ds.jar {
		if c.cursor == v.id {
			c.cursor = v.next
		}
	}
}

// isDirEmpty is true iff dir is a directory without children
func (fs *FileSystem) isDirEmpty(dir *Vnode) bool {
	ds, ok := dir.stream.(*dirStream)
	return ok && ds.head == NoID
}

func insertCookieInJar(ds *dirStream, c *dirCursor) {
	ds.jar[c] = struct{}{}
}

func removeCookieFromJar(ds *dirStream, c *dirCursor) {
	delete(ds.jar, c)
}
