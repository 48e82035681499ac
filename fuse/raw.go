package fuse

import (
	"errors"
	"io"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/brettbedarf/devfs"
	"github.com/brettbedarf/devfs/filesystem"
	"github.com/brettbedarf/devfs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v4"
)

// XAttrMAC exposes the devfs.IoctlGetMAC ioctl, which FUSE has no clean
// way to carry, as an extended attribute on device nodes
const XAttrMAC = "user.devfs.mac"

const macLen = 6

// handle is one FUSE file handle. The kernel may issue concurrent requests on
// the same handle but a cookie must only be used by one caller at a time.
type handle struct {
	mu      sync.Mutex
	cookie  *filesystem.Cookie
	pending *filesystem.Dirent // read from the cursor but not yet sent
	offset  uint64             // next readdir offset the kernel should ask for
}

// FuseRaw implements the low-level FUSE wire protocol
// It serves as protocol adapter between FUSE and the device namespace
// See https://www.man7.org/linux//man-pages/man4/fuse.4.html
type FuseRaw struct {
	fuse.RawFileSystem
	fs      *filesystem.FileSystem
	server  *fuse.Server
	handles *xsync.Map[uint64, *handle]
	lastFh  atomic.Uint64

	attrTimeout  time.Duration
	entryTimeout time.Duration
	uid, gid     uint32
}

func NewFuseRaw(fs *filesystem.FileSystem) *FuseRaw {
	cfg := fs.Config()
	return &FuseRaw{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fs:            fs,
		handles:       xsync.NewMap[uint64, *handle](),
		attrTimeout:   seconds(cfg.AttrTimeout),
		entryTimeout:  seconds(cfg.EntryTimeout),
		uid:           uint32(os.Getuid()),
		gid:           uint32(os.Getgid()),
	}
}

func seconds(s float64) time.Duration {
	return time.Duration(s * float64(time.Second))
}

func (r *FuseRaw) Init(s *fuse.Server) {
	logger := util.GetLogger("Fuse.Init")
	logger.Debug().Str("fsid", r.fs.FsID().String()).Msg("FUSE initialized")
	r.server = s
}

func (r *FuseRaw) OnUnmount() {
	logger := util.GetLogger("Fuse.OnUnmount")
	logger.Info().Msg("FUSE unmounted")
}

func (r *FuseRaw) String() string {
	return "FuseRaw"
}

// toStatus maps namespace and driver errors onto errnos
func toStatus(err error) fuse.Status {
	var errno syscall.Errno
	switch {
	case err == nil:
		return fuse.OK
	case errors.As(err, &errno):
		return fuse.Status(errno)
	case errors.Is(err, devfs.ErrNotFound):
		return fuse.ENOENT
	case errors.Is(err, devfs.ErrAlreadyExists):
		return fuse.Status(syscall.EEXIST)
	case errors.Is(err, devfs.ErrNotADirectory):
		return fuse.ENOTDIR
	case errors.Is(err, devfs.ErrWrongStreamType):
		return fuse.EINVAL
	case errors.Is(err, devfs.ErrReadOnlyFilesystem):
		return fuse.Status(syscall.EROFS)
	case errors.Is(err, devfs.ErrNotAllowed):
		return fuse.EPERM
	case errors.Is(err, devfs.ErrInvalidArgs):
		return fuse.EINVAL
	case errors.Is(err, devfs.ErrInsufficientBuffer):
		return fuse.Status(syscall.ENOBUFS)
	case errors.Is(err, devfs.ErrOutOfMemory):
		return fuse.Status(syscall.ENOMEM)
	case errors.Is(err, devfs.ErrAlreadyMounted):
		return fuse.EBUSY
	default:
		return fuse.EIO
	}
}

// fillAttr reports directories as read-only dirs and devices as regular files
// of size 0. Devices cannot be S_IFCHR: the kernel would route their I/O to a
// host driver instead of back to us.
func (r *FuseRaw) fillAttr(v *filesystem.Vnode, attr *fuse.Attr) error {
	st, err := r.fs.Rstat(v)
	if err != nil {
		return err
	}
	*attr = fuse.Attr{
		Ino:   uint64(st.ID),
		Size:  uint64(st.Size),
		Owner: fuse.Owner{Uid: r.uid, Gid: r.gid},
	}
	if st.Type == devfs.StreamDir {
		attr.Mode = syscall.S_IFDIR | 0o555
		attr.Nlink = 2
	} else {
		attr.Mode = syscall.S_IFREG | 0o666
		attr.Nlink = 1
	}
	return nil
}

func (r *FuseRaw) fillEntry(v *filesystem.Vnode, out *fuse.EntryOut) error {
	if err := r.fillAttr(v, &out.Attr); err != nil {
		return err
	}
	out.NodeId = uint64(v.ID())
	out.SetAttrTimeout(r.attrTimeout)
	out.SetEntryTimeout(r.entryTimeout)
	return nil
}

// Lookup is called by the kernel when the VFS wants to know
// about a file inside a directory.
func (r *FuseRaw) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	logger := util.GetLogger("Fuse.Lookup")
	logger.Trace().Uint64("parent", header.NodeId).Str("name", name).Msg("Lookup called")

	id, err := r.fs.Lookup(filesystem.ID(header.NodeId), name)
	if err != nil {
		return toStatus(err)
	}
	v, err := r.fs.GetVnode(id, false)
	if err != nil {
		return toStatus(err)
	}
	defer r.fs.PutVnode(v, false)

	return toStatus(r.fillEntry(v, out))
}

// Forget is called when the kernel discards entries from its dentry cache.
// Nodes live until unpublished or unmounted, so there is nothing to drop.
func (r *FuseRaw) Forget(nodeid, nlookup uint64) {
	logger := util.GetLogger("Fuse.Forget")
	logger.Trace().Uint64("nodeid", nodeid).Uint64("nlookup", nlookup).Msg("Forget called")
}

func (r *FuseRaw) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	v, err := r.fs.GetVnode(filesystem.ID(input.NodeId), false)
	if err != nil {
		return toStatus(err)
	}
	defer r.fs.PutVnode(v, false)

	if err := r.fillAttr(v, &out.Attr); err != nil {
		return toStatus(err)
	}
	out.SetTimeout(r.attrTimeout)
	return fuse.OK
}

// SetAttr only accepts truncation to 0, which shells send for "> file"
func (r *FuseRaw) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	v, err := r.fs.GetVnode(filesystem.ID(input.NodeId), false)
	if err != nil {
		return toStatus(err)
	}
	defer r.fs.PutVnode(v, false)

	truncate := input.Valid&fuse.FATTR_SIZE != 0 && input.Size == 0 &&
		input.Valid&(fuse.FATTR_MODE|fuse.FATTR_UID|fuse.FATTR_GID) == 0
	if !truncate || v.IsDir() {
		return toStatus(r.fs.Wstat(v, filesystem.Stat{ID: v.ID(), Size: int64(input.Size)}))
	}

	if err := r.fillAttr(v, &out.Attr); err != nil {
		return toStatus(err)
	}
	out.SetTimeout(r.attrTimeout)
	return fuse.OK
}

func (r *FuseRaw) openHandle(nodeID uint64, st devfs.StreamType, flags uint32) (uint64, error) {
	v, err := r.fs.GetVnode(filesystem.ID(nodeID), false)
	if err != nil {
		return 0, err
	}
	defer r.fs.PutVnode(v, false)

	c, err := r.fs.Open(v, st, int(flags))
	if err != nil {
		return 0, err
	}
	fh := r.lastFh.Add(1)
	r.handles.Store(fh, &handle{cookie: c})
	return fh, nil
}

func (r *FuseRaw) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	logger := util.GetLogger("Fuse.Open")

	fh, err := r.openHandle(input.NodeId, devfs.StreamDevice, input.Flags)
	if errors.Is(err, devfs.ErrWrongStreamType) {
		return fuse.Status(syscall.EISDIR)
	}
	if err != nil {
		logger.Debug().Err(err).Uint64("nodeid", input.NodeId).Msg("Open failed")
		return toStatus(err)
	}
	out.Fh = fh
	// devices have no size, so the page cache would only ever see EOF
	out.OpenFlags = fuse.FOPEN_DIRECT_IO
	return fuse.OK
}

func (r *FuseRaw) OpenDir(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	fh, err := r.openHandle(input.NodeId, devfs.StreamDir, input.Flags)
	if errors.Is(err, devfs.ErrWrongStreamType) {
		return fuse.ENOTDIR
	}
	if err != nil {
		return toStatus(err)
	}
	out.Fh = fh
	out.OpenFlags = fuse.FOPEN_DIRECT_IO
	return fuse.OK
}

// fillDir feeds entries from the handle's cursor to add until add reports a
// full buffer. The entry that did not fit is kept for the next call.
//
// The cursor can only be rewound to the head, so offset 0 restarts the listing
// and any other offset continues from where the cursor is; seekdir to an
// earlier position is not honoured. "." and ".." are not listed; the kernel
// resolves them itself.
func (r *FuseRaw) fillDir(h *handle, offset uint64, add func(filesystem.Dirent) bool) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	if offset == 0 && h.offset != 0 {
		if err := r.fs.Seek(h.cookie, 0, io.SeekStart); err != nil {
			return err
		}
		h.pending = nil
		h.offset = 0
	}

	for {
		var d filesystem.Dirent
		if h.pending != nil {
			d = *h.pending
		} else {
			next, err := r.fs.ReadDirent(h.cookie)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				return err
			}
			d = next
		}

		if !add(d) {
			h.pending = &d
			return nil
		}
		h.pending = nil
		h.offset++
	}
}

func dirEntry(d filesystem.Dirent) fuse.DirEntry {
	mode := uint32(syscall.S_IFREG)
	if d.Type == devfs.StreamDir {
		mode = syscall.S_IFDIR
	}
	return fuse.DirEntry{Name: d.Name, Ino: uint64(d.ID), Mode: mode}
}

func (r *FuseRaw) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	logger := util.GetLogger("Fuse.ReadDir")
	logger.Trace().Uint64("fh", input.Fh).Uint64("offset", input.Offset).Msg("ReadDir called")

	h, ok := r.handles.Load(input.Fh)
	if !ok {
		return fuse.Status(syscall.EBADF)
	}
	err := r.fillDir(h, input.Offset, func(d filesystem.Dirent) bool {
		return out.AddDirEntry(dirEntry(d))
	})
	return toStatus(err)
}

func (r *FuseRaw) ReadDirPlus(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	h, ok := r.handles.Load(input.Fh)
	if !ok {
		return fuse.Status(syscall.EBADF)
	}
	err := r.fillDir(h, input.Offset, func(d filesystem.Dirent) bool {
		eo := out.AddDirLookupEntry(dirEntry(d))
		if eo == nil {
			return false
		}
		// a child removed since the cursor passed it is still listed, without attributes
		if v, err := r.fs.GetVnode(d.ID, false); err == nil {
			_ = r.fillEntry(v, eo)
		}
		return true
	})
	return toStatus(err)
}

func (r *FuseRaw) ReleaseDir(input *fuse.ReleaseIn) {
	r.release(input.Fh)
}

func (r *FuseRaw) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	logger := util.GetLogger("Fuse.Read")

	h, ok := r.handles.Load(input.Fh)
	if !ok {
		return nil, fuse.Status(syscall.EBADF)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	size := min(int(input.Size), len(buf))
	n, err := r.fs.Read(h.cookie, buf[:size], int64(input.Offset), size)
	if err != nil {
		logger.Debug().Err(err).Uint64("fh", input.Fh).Int("size", size).Msg("Read failed")
		return nil, toStatus(err)
	}
	logger.Trace().Uint64("fh", input.Fh).Int("n", n).Msg("Read")
	return fuse.ReadResultData(buf[:n]), fuse.OK
}

func (r *FuseRaw) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	logger := util.GetLogger("Fuse.Write")

	h, ok := r.handles.Load(input.Fh)
	if !ok {
		return 0, fuse.Status(syscall.EBADF)
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	n, err := r.fs.Write(h.cookie, data, int64(input.Offset), len(data))
	if err != nil {
		logger.Debug().Err(err).Uint64("fh", input.Fh).Int("size", len(data)).Msg("Write failed")
		return 0, toStatus(err)
	}
	return uint32(n), fuse.OK
}

func (r *FuseRaw) Fsync(cancel <-chan struct{}, input *fuse.FsyncIn) fuse.Status {
	h, ok := r.handles.Load(input.Fh)
	if !ok {
		return fuse.Status(syscall.EBADF)
	}
	return toStatus(r.fs.Fsync(h.cookie))
}

func (r *FuseRaw) Flush(cancel <-chan struct{}, input *fuse.FlushIn) fuse.Status {
	return fuse.OK
}

func (r *FuseRaw) Release(cancel <-chan struct{}, input *fuse.ReleaseIn) {
	r.release(input.Fh)
}

// release closes and frees the cookie behind fh
func (r *FuseRaw) release(fh uint64) {
	logger := util.GetLogger("Fuse.Release")

	h, ok := r.handles.LoadAndDelete(fh)
	if !ok {
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()

	if err := r.fs.Close(h.cookie); err != nil {
		logger.Debug().Err(err).Uint64("fh", fh).Msg("Close failed")
	}
	if err := r.fs.FreeCookie(h.cookie); err != nil {
		logger.Debug().Err(err).Uint64("fh", fh).Msg("Free failed")
	}
}

// GetXAttr serves [XAttrMAC] by running the MAC ioctl on a short-lived cookie
func (r *FuseRaw) GetXAttr(cancel <-chan struct{}, header *fuse.InHeader, attr string, dest []byte) (uint32, fuse.Status) {
	if attr != XAttrMAC {
		return 0, fuse.Status(syscall.ENODATA)
	}
	v, err := r.fs.GetVnode(filesystem.ID(header.NodeId), false)
	if err != nil {
		return 0, toStatus(err)
	}
	defer r.fs.PutVnode(v, false)
	if v.IsDir() {
		return 0, fuse.Status(syscall.ENODATA)
	}
	if len(dest) == 0 {
		return macLen, fuse.OK
	}
	if len(dest) < macLen {
		return 0, fuse.Status(syscall.ERANGE)
	}

	c, err := r.fs.Open(v, devfs.StreamDevice, 0)
	if err != nil {
		return 0, toStatus(err)
	}
	defer func() {
		_ = r.fs.Close(c)
		_ = r.fs.FreeCookie(c)
	}()

	if err := r.fs.Ioctl(c, devfs.IoctlGetMAC, dest[:macLen], macLen); err != nil {
		if errors.Is(err, devfs.ErrInvalidArgs) {
			// the driver has no MAC
			return 0, fuse.Status(syscall.ENODATA)
		}
		return 0, toStatus(err)
	}
	return macLen, fuse.OK
}

// Everything below would change the namespace, which only Publish may do.

func (r *FuseRaw) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	_, err := r.fs.Create(filesystem.ID(input.NodeId), name, devfs.StreamDir)
	return toStatus(err)
}

func (r *FuseRaw) Mknod(cancel <-chan struct{}, input *fuse.MknodIn, name string, out *fuse.EntryOut) fuse.Status {
	_, err := r.fs.Create(filesystem.ID(input.NodeId), name, devfs.StreamDevice)
	return toStatus(err)
}

func (r *FuseRaw) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	_, err := r.fs.Create(filesystem.ID(input.NodeId), name, devfs.StreamDevice)
	return toStatus(err)
}

func (r *FuseRaw) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return toStatus(r.fs.Unlink(filesystem.ID(header.NodeId), name))
}

func (r *FuseRaw) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return toStatus(r.fs.Unlink(filesystem.ID(header.NodeId), name))
}

func (r *FuseRaw) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName string, newName string) fuse.Status {
	return toStatus(r.fs.Rename(filesystem.ID(input.NodeId), oldName, filesystem.ID(input.Newdir), newName))
}

// OpenHandles returns the number of FUSE file handles not yet released
func (r *FuseRaw) OpenHandles() int {
	return r.handles.Size()
}
