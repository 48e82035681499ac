package filesystem

import (
	"fmt"
	"io"
	"sync/atomic"

	"github.com/brettbedarf/devfs"
	"github.com/brettbedarf/devfs/internal/util"
)

type cookieState int32

const (
	cookieOpen cookieState = iota
	cookieClosed
	cookieFreed
)

// Cookie is the per-open state returned by [FileSystem.Open]. It is owned by
// the caller that opened it and must not be used from two goroutines at once.
// Lifecycle is open -> closed -> freed; a cookie is never reopened.
type Cookie struct {
	vnode  ID
	oflags int
	state  atomic.Int32
	sess   session
}

// session is the open-file variant: exactly one of *dirCursor or *devSession
type session interface {
	streamType() devfs.StreamType
}

// dirCursor enumerates a directory; it sits in the directory's jar while open
type dirCursor struct {
	dir    ID
	cursor ID // next child to return; protected by fs.mu
}

func (*dirCursor) streamType() devfs.StreamType { return devfs.StreamDir }

// devSession carries everything the data path needs so it never touches the
// namespace after open
type devSession struct {
	calls   devfs.Device
	dcookie devfs.DevCookie
	name    string
}

func (*devSession) streamType() devfs.StreamType { return devfs.StreamDevice }

// Type returns the stream type the cookie was opened on
func (c *Cookie) Type() devfs.StreamType {
	return c.sess.streamType()
}

// VnodeID returns the id of the node the cookie was opened on
func (c *Cookie) VnodeID() ID {
	return c.vnode
}

// Flags returns the open flags passed to [FileSystem.Open]
func (c *Cookie) Flags() int {
	return c.oflags
}

func (c *Cookie) is(st cookieState) bool {
	return cookieState(c.state.Load()) == st
}

// Dirent is one directory entry as returned by [FileSystem.ReadDirent]
type Dirent struct {
	ID   ID
	Name string
	Type devfs.StreamType
}

// Open creates a cookie on v. st must be devfs.StreamAny or v's stream type.
// Directory cookies snapshot the current head as their cursor and join the
// directory's jar. Device cookies call the driver's Open with fs.mu released.
func (fs *FileSystem) Open(v *Vnode, st devfs.StreamType, oflags int) (*Cookie, error) {
	logger := util.GetLogger("Devfs.Open")

	if st != devfs.StreamAny && st != v.Type() {
		return nil, fmt.Errorf("%w: %s is a %s, want %s", devfs.ErrWrongStreamType, v.name, v.Type(), st)
	}

	fs.mu.Lock()
	if !fs.attached(v) {
		fs.mu.Unlock()
		return nil, devfs.ErrNotFound
	}

	switch s := v.stream.(type) {
	case *dirStream:
		dc := &dirCursor{dir: v.id, cursor: s.head}
		insertCookieInJar(s, dc)
		fs.mu.Unlock()
		logger.Trace().Uint64("id", uint64(v.id)).Msg("Opened directory")
		return &Cookie{vnode: v.id, oflags: oflags, sess: dc}, nil

	case *devStream:
		calls, name := s.calls, s.fullPath
		// the driver may block or call back into the namespace
		fs.mu.Unlock()

		dcookie, err := calls.Open(name)
		if err != nil {
			logger.Debug().Err(err).Str("path", name).Msg("Driver open failed")
			return nil, err
		}
		logger.Trace().Str("path", name).Msg("Opened device")
		return &Cookie{
			vnode:  v.id,
			oflags: oflags,
			sess:   &devSession{calls: calls, dcookie: dcookie, name: name},
		}, nil

	default:
		fs.mu.Unlock()
		return nil, devfs.ErrWrongStreamType
	}
}

// Read on a directory copies the next child's name plus a NUL terminator into
// buf and advances the cursor; it returns 0 once the directory is exhausted.
// On a device it forwards to the driver without taking fs.mu.
func (fs *FileSystem) Read(c *Cookie, buf []byte, pos int64, length int) (int, error) {
	if !c.is(cookieOpen) {
		return 0, devfs.ErrInvalidArgs
	}

	switch s := c.sess.(type) {
	case *dirCursor:
		fs.mu.Lock()
		defer fs.mu.Unlock()

		v, ok := fs.lookupByID(s.cursor)
		if !ok {
			return 0, nil
		}
		n := len(v.name) + 1
		if n > length || n > len(buf) {
			return 0, devfs.ErrInsufficientBuffer
		}
		copy(buf, v.name)
		buf[n-1] = 0
		s.cursor = v.next
		return n, nil

	case *devSession:
		return s.calls.Read(s.dcookie, buf, pos, length)
	}
	return 0, devfs.ErrInvalidArgs
}

// ReadDirent is the structured form of a directory Read. It returns io.EOF
// once the cursor is exhausted.
func (fs *FileSystem) ReadDirent(c *Cookie) (Dirent, error) {
	if !c.is(cookieOpen) {
		return Dirent{}, devfs.ErrInvalidArgs
	}
	s, ok := c.sess.(*dirCursor)
	if !ok {
		return Dirent{}, devfs.ErrNotADirectory
	}

	fs.mu.Lock()
	defer fs.mu.Unlock()

	v, ok := fs.lookupByID(s.cursor)
	if !ok {
		return Dirent{}, io.EOF
	}
	s.cursor = v.next
	return Dirent{ID: v.id, Name: v.name, Type: v.Type()}, nil
}

// Write forwards to the driver; directories are read-only
func (fs *FileSystem) Write(c *Cookie, buf []byte, pos int64, length int) (int, error) {
	if !c.is(cookieOpen) {
		return 0, devfs.ErrInvalidArgs
	}

	switch s := c.sess.(type) {
	case *dirCursor:
		return 0, devfs.ErrReadOnlyFilesystem
	case *devSession:
		return s.calls.Write(s.dcookie, buf, pos, length)
	}
	return 0, devfs.ErrInvalidArgs
}

// Seek on a directory only accepts (0, io.SeekStart), which rewinds the cursor
// to the directory's current head. Devices get the call forwarded.
func (fs *FileSystem) Seek(c *Cookie, pos int64, whence int) error {
	if !c.is(cookieOpen) {
		return devfs.ErrInvalidArgs
	}

	switch s := c.sess.(type) {
	case *dirCursor:
		if whence != io.SeekStart || pos != 0 {
			return devfs.ErrInvalidArgs
		}
		fs.mu.Lock()
		defer fs.mu.Unlock()

		s.cursor = NoID
		if dir, ok := fs.lookupByID(s.dir); ok {
			if ds, ok := dir.stream.(*dirStream); ok {
				s.cursor = ds.head
			}
		}
		return nil

	case *devSession:
		return s.calls.Seek(s.dcookie, pos, whence)
	}
	return devfs.ErrInvalidArgs
}

// Ioctl forwards to the driver; directories have no ioctls
func (fs *FileSystem) Ioctl(c *Cookie, op int, buf []byte, length int) error {
	if !c.is(cookieOpen) {
		return devfs.ErrInvalidArgs
	}

	switch s := c.sess.(type) {
	case *devSession:
		return s.calls.Ioctl(s.dcookie, op, buf, length)
	}
	return devfs.ErrInvalidArgs
}

// Close ends I/O on the cookie. It is a no-op for directories and forwards to
// the driver for devices. The cookie must still be freed with [FileSystem.FreeCookie].
func (fs *FileSystem) Close(c *Cookie) error {
	if !c.state.CompareAndSwap(int32(cookieOpen), int32(cookieClosed)) {
		return devfs.ErrNotAllowed
	}

	if s, ok := c.sess.(*devSession); ok {
		return s.calls.Close(s.dcookie)
	}
	return nil
}

// FreeCookie releases the cookie. Directory cookies leave their directory's
// jar; device cookies are handed back to the driver.
func (fs *FileSystem) FreeCookie(c *Cookie) error {
	if cookieState(c.state.Swap(int32(cookieFreed))) == cookieFreed {
		return devfs.ErrNotAllowed
	}

	switch s := c.sess.(type) {
	case *dirCursor:
		fs.mu.Lock()
		defer fs.mu.Unlock()
		if dir, ok := fs.lookupByID(s.dir); ok {
			if ds, ok := dir.stream.(*dirStream); ok {
				removeCookieFromJar(ds, s)
			}
		}
		s.cursor = NoID
		return nil

	case *devSession:
		return s.calls.FreeCookie(s.dcookie)
	}
	return nil
}
