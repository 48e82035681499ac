package filesystem

import (
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/devfs"
	"github.com/brettbedarf/devfs/config"
	"github.com/brettbedarf/devfs/internal/util"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v4"
)

// FileSystem is the device namespace: a synthetic tree of directories and
// published devices. Only one instance may be mounted per process.
//
// A single mutex serializes every change to the index and to directory child
// and jar lists, plus every read of directory structure. Calls into drivers
// are never made with it held.
type FileSystem struct {
	cfg     *config.Config
	fsid    uuid.UUID
	mu      sync.Mutex
	lastID  atomic.Uint64           // last vnode id handed out
	live    int                     // allocated nodes, for MaxVnodes; protected by mu
	index   *xsync.Map[ID, *Vnode] // every node by id, root included
	root    ID                      // protected by mu; NoID once unmounted
	mounted bool                    // protected by mu
}

var (
	// the one and only mounted instance
	theDevfs *FileSystem
	mountMu  sync.Mutex
)

// newFS builds an instance with its root directory. It is not registered as
// the process-wide instance; see [Mount].
func newFS(cfg *config.Config) (*FileSystem, error) {
	if cfg == nil {
		cfg = config.NewDefaultConfig()
	}
	fs := &FileSystem{
		cfg:   cfg,
		fsid:  uuid.New(),
		index: xsync.NewMap[ID, *Vnode](),
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	root, err := fs.createVnode("")
	if err != nil {
		return nil, err
	}
	root.parent = root.id
	root.stream = newDirStream()
	fs.indexInsert(root)
	fs.root = root.id
	fs.mounted = true
	return fs, nil
}

// Mount creates the process-wide device namespace. It fails with
// devfs.ErrAlreadyMounted while another instance is mounted.
func Mount(cfg *config.Config) (*FileSystem, error) {
	logger := util.GetLogger("Devfs.Mount")

	mountMu.Lock()
	defer mountMu.Unlock()

	if theDevfs != nil {
		logger.Error().Str("fsid", theDevfs.fsid.String()).Msg("Double mount of devfs attempted")
		return nil, devfs.ErrAlreadyMounted
	}

	fs, err := newFS(cfg)
	if err != nil {
		logger.Error().Err(err).Msg("Failed to mount devfs")
		return nil, err
	}
	theDevfs = fs
	logger.Info().Str("fsid", fs.fsid.String()).Uint64("root", uint64(fs.root)).Msg("Mounted devfs")
	return fs, nil
}

// Mounted returns the process-wide instance, or nil before [Mount]
func Mounted() *FileSystem {
	mountMu.Lock()
	defer mountMu.Unlock()
	return theDevfs
}

// Unmount force-deletes every node in the index, whatever state the tree is
// in, and releases the process-wide slot. Unmounting twice is a no-op.
func (fs *FileSystem) Unmount() error {
	logger := util.GetLogger("Devfs.Unmount")

	mountMu.Lock()
	defer mountMu.Unlock()

	fs.mu.Lock()
	if fs.mounted {
		deleted := 0
		fs.index.Range(func(_ ID, v *Vnode) bool {
			_ = fs.deleteVnode(v, true)
			deleted++
			return true
		})
		fs.index.Clear()
		fs.root = NoID
		fs.mounted = false
		logger.Info().Str("fsid", fs.fsid.String()).Int("vnodes", deleted).Msg("Unmounted devfs")
	}
	fs.mu.Unlock()

	if theDevfs == fs {
		theDevfs = nil
	}
	return nil
}

// FsID returns the UUID assigned to this instance at mount
func (fs *FileSystem) FsID() uuid.UUID {
	return fs.fsid
}

// Config returns the configuration the instance was mounted with
func (fs *FileSystem) Config() *config.Config {
	return fs.cfg
}

// RootID returns the id of the root directory, NoID once unmounted
func (fs *FileSystem) RootID() ID {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return fs.root
}

// Root returns the root directory node
func (fs *FileSystem) Root() (*Vnode, error) {
	return fs.GetVnode(fs.RootID(), false)
}
