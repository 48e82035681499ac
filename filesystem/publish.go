package filesystem

import (
	"errors"
	"fmt"
	"strings"

	"github.com/brettbedarf/devfs"
	"github.com/brettbedarf/devfs/internal/util"
)

// splitPath breaks a publish path into components. Paths are relative to the
// root, so a leading slash, a trailing slash or an empty component is invalid.
func splitPath(path string) ([]string, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: empty path", devfs.ErrInvalidArgs)
	}
	parts := strings.Split(path, "/")
	for _, p := range parts {
		if p == "" {
			return nil, fmt.Errorf("%w: empty component in %q", devfs.ErrInvalidArgs, path)
		}
	}
	return parts, nil
}

// Publish binds dev to path on the process-wide instance. Publishing before
// [Mount] is a bring-up ordering bug and panics.
func Publish(path string, dev devfs.Device) (ID, error) {
	fs := Mounted()
	if fs == nil {
		logger := util.GetLogger("Devfs.Publish")
		logger.Panic().Str("path", path).Msg("Publish called before devfs was mounted")
	}
	return fs.Publish(path, dev)
}

// Publish binds dev to path, creating missing intermediate directories, and
// returns the new device node's id. The whole walk runs under the instance
// lock. Intermediate directories created before a failure are kept.
func (fs *FileSystem) Publish(path string, dev devfs.Device) (ID, error) {
	logger := util.GetLogger("Devfs.Publish")

	if dev == nil {
		return NoID, fmt.Errorf("%w: nil device for %q", devfs.ErrInvalidArgs, path)
	}
	parts, err := splitPath(path)
	if err != nil {
		return NoID, err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.mounted {
		return NoID, devfs.ErrIO
	}
	dir, ok := fs.lookupByID(fs.root)
	if !ok {
		return NoID, devfs.ErrIO
	}

	last := len(parts) - 1
	for _, name := range parts[:last] {
		v, err := fs.findInDir(dir, name)
		switch {
		case err == nil:
			if !v.IsDir() {
				logger.Debug().Str("path", path).Str("component", name).Msg("Intermediate component is a device")
				return NoID, fmt.Errorf("%w: %s in %q is not a directory", devfs.ErrAlreadyExists, name, path)
			}
		case errors.Is(err, devfs.ErrNotFound):
			v, err = fs.createVnode(name)
			if err != nil {
				logger.Error().Err(err).Str("path", path).Str("component", name).Msg("Failed to create directory")
				return NoID, err
			}
			v.stream = newDirStream()
			fs.indexInsert(v)
			if err := fs.insertInDir(dir, v); err != nil {
				return NoID, err
			}
			logger.Debug().Str("path", path).Str("dir", name).Uint64("id", uint64(v.id)).Msg("Created directory")
		default:
			return NoID, err
		}
		dir = v
	}

	leaf := parts[last]
	if _, err := fs.findInDir(dir, leaf); err == nil {
		logger.Debug().Str("path", path).Msg("Device already published")
		return NoID, fmt.Errorf("%w: %q", devfs.ErrAlreadyExists, path)
	} else if !errors.Is(err, devfs.ErrNotFound) {
		return NoID, err
	}

	v, err := fs.createVnode(leaf)
	if err != nil {
		logger.Error().Err(err).Str("path", path).Msg("Failed to create device node")
		return NoID, err
	}

	fullPath := path
	if limit := fs.cfg.MaxPathLen; limit > 0 && len(fullPath) > limit {
		logger.Warn().Str("path", path).Int("max", limit).Msg("Device path truncated")
		fullPath = fullPath[:limit]
	}
	v.stream = &devStream{fullPath: strings.Clone(fullPath), calls: dev}
	fs.indexInsert(v)
	if err := fs.insertInDir(dir, v); err != nil {
		_ = fs.deleteVnode(v, false)
		return NoID, err
	}

	logger.Info().Str("path", path).Uint64("id", uint64(v.id)).Msg("Published device")
	return v.id, nil
}

// Unpublish removes the device node at path. Open directory cookies that were
// about to return it move on to its next sibling; open device cookies keep
// working against the driver. Intermediate directories stay in place.
func (fs *FileSystem) Unpublish(path string) error {
	logger := util.GetLogger("Devfs.Unpublish")

	parts, err := splitPath(path)
	if err != nil {
		return err
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	if !fs.mounted {
		return devfs.ErrIO
	}
	v, err := fs.walk(parts)
	if err != nil {
		return err
	}
	if v.IsDir() {
		return fmt.Errorf("%w: %q is a directory", devfs.ErrWrongStreamType, path)
	}
	parent, ok := fs.lookupByID(v.parent)
	if !ok {
		return devfs.ErrNotFound
	}
	if err := fs.removeFromDir(parent, v); err != nil {
		return err
	}
	if err := fs.RemoveVnode(v, true); err != nil {
		return err
	}

	logger.Info().Str("path", path).Uint64("id", uint64(v.id)).Msg("Unpublished device")
	return nil
}

// LookupPath resolves a slash-separated path from the root. "" is the root.
func (fs *FileSystem) LookupPath(path string) (*Vnode, error) {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if path == "" {
		if v, ok := fs.lookupByID(fs.root); ok {
			return v, nil
		}
		return nil, devfs.ErrNotFound
	}
	parts, err := splitPath(path)
	if err != nil {
		return nil, err
	}
	return fs.walk(parts)
}

// walk follows parts from the root. Caller must hold fs.mu.
func (fs *FileSystem) walk(parts []string) (*Vnode, error) {
	v, ok := fs.lookupByID(fs.root)
	if !ok {
		return nil, devfs.ErrNotFound
	}
	for _, name := range parts {
		next, err := fs.findInDir(v, name)
		if err != nil {
			return nil, err
		}
		v = next
	}
	return v, nil
}
