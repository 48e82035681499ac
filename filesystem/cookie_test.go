package filesystem

import (
	"errors"
	"io"
	"testing"

	"github.com/brettbedarf/devfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestOpen_WrongStreamType(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	dev := publishTestDevice(t, fs, "null")
	root, err := fs.Root()
	require.NoError(t, err)

	_, err = fs.Open(root, devfs.StreamDevice, 0)
	assert.ErrorIs(t, err, devfs.ErrWrongStreamType)

	_, err = fs.Open(dev, devfs.StreamDir, 0)
	assert.ErrorIs(t, err, devfs.ErrWrongStreamType)

	c, err := fs.Open(root, devfs.StreamAny, 0)
	require.NoError(t, err)
	assert.Equal(t, devfs.StreamDir, c.Type())

	c, err = fs.Open(dev, devfs.StreamAny, 2)
	require.NoError(t, err)
	assert.Equal(t, devfs.StreamDevice, c.Type())
	assert.Equal(t, dev.ID(), c.VnodeID())
	assert.Equal(t, 2, c.Flags())
}

func TestOpen_Unpublished(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	dev := publishTestDevice(t, fs, "null")
	require.NoError(t, fs.Unpublish("null"))

	_, err := fs.Open(dev, devfs.StreamAny, 0)
	assert.ErrorIs(t, err, devfs.ErrNotFound)
}

func TestDirCookie_Read(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	publishTestDevice(t, fs, "zero")
	publishTestDevice(t, fs, "null")
	root, err := fs.Root()
	require.NoError(t, err)

	t.Run("NamesNulTerminated", func(t *testing.T) {
		c, err := fs.Open(root, devfs.StreamDir, 0)
		require.NoError(t, err)

		buf := make([]byte, 16)
		n, err := fs.Read(c, buf, 0, len(buf))
		require.NoError(t, err)
		assert.Equal(t, 5, n)
		assert.Equal(t, []byte("null\x00"), buf[:n])
	})

	t.Run("InsufficientBuffer", func(t *testing.T) {
		c, err := fs.Open(root, devfs.StreamDir, 0)
		require.NoError(t, err)

		// "null" needs 5 bytes with its terminator
		buf := make([]byte, 16)
		_, err = fs.Read(c, buf, 0, 4)
		assert.ErrorIs(t, err, devfs.ErrInsufficientBuffer)

		_, err = fs.Read(c, buf[:4], 0, 16)
		assert.ErrorIs(t, err, devfs.ErrInsufficientBuffer)

		// the cursor did not move
		n, err := fs.Read(c, buf, 0, 5)
		require.NoError(t, err)
		assert.Equal(t, "null", string(buf[:n-1]))
	})

	t.Run("Exhausted", func(t *testing.T) {
		c, err := fs.Open(root, devfs.StreamDir, 0)
		require.NoError(t, err)

		assert.Equal(t, []string{"null", "zero"}, readNames(t, fs, c))

		n, err := fs.Read(c, make([]byte, 16), 0, 16)
		require.NoError(t, err)
		assert.Zero(t, n)
	})
}

func TestDirCookie_ReadDirent(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	dev := publishTestDevice(t, fs, "net/0")
	root, err := fs.Root()
	require.NoError(t, err)

	c, err := fs.Open(root, devfs.StreamDir, 0)
	require.NoError(t, err)

	d, err := fs.ReadDirent(c)
	require.NoError(t, err)
	assert.Equal(t, "net", d.Name)
	assert.Equal(t, devfs.StreamDir, d.Type)
	assert.Equal(t, dev.parent, d.ID)

	_, err = fs.ReadDirent(c)
	assert.ErrorIs(t, err, io.EOF)

	devCookie, err := fs.Open(dev, devfs.StreamDevice, 0)
	require.NoError(t, err)
	_, err = fs.ReadDirent(devCookie)
	assert.ErrorIs(t, err, devfs.ErrNotADirectory)
}

func TestDirCookie_Seek(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	publishTestDevice(t, fs, "a")
	root, err := fs.Root()
	require.NoError(t, err)

	c, err := fs.Open(root, devfs.StreamDir, 0)
	require.NoError(t, err)
	require.Equal(t, []string{"a"}, readNames(t, fs, c))

	tests := []struct {
		name   string
		pos    int64
		whence int
	}{
		{"NonZeroStart", 1, io.SeekStart},
		{"Current", 0, io.SeekCurrent},
		{"End", 0, io.SeekEnd},
		{"BadWhence", 0, 42},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, fs.Seek(c, tt.pos, tt.whence), devfs.ErrInvalidArgs)
		})
	}

	// rewind picks up the current head, including entries published since open
	publishTestDevice(t, fs, "b")
	require.NoError(t, fs.Seek(c, 0, io.SeekStart))
	assert.Equal(t, []string{"b", "a"}, readNames(t, fs, c))
}

func TestDirCookie_NotADevice(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	root, err := fs.Root()
	require.NoError(t, err)
	c, err := fs.Open(root, devfs.StreamDir, 0)
	require.NoError(t, err)

	_, err = fs.Write(c, []byte("x"), 0, 1)
	assert.ErrorIs(t, err, devfs.ErrReadOnlyFilesystem)

	assert.ErrorIs(t, fs.Ioctl(c, devfs.IoctlGetMAC, make([]byte, 6), 6), devfs.ErrInvalidArgs)
}

func TestDirCookie_FreeLeavesJar(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	root, err := fs.Root()
	require.NoError(t, err)
	ds := root.stream.(*dirStream)

	c1, err := fs.Open(root, devfs.StreamDir, 0)
	require.NoError(t, err)
	c2, err := fs.Open(root, devfs.StreamDir, 0)
	require.NoError(t, err)
	assert.Len(t, ds.jar, 2)

	require.NoError(t, fs.Close(c1))
	assert.Len(t, ds.jar, 2)
	require.NoError(t, fs.FreeCookie(c1))
	assert.Len(t, ds.jar, 1)

	// free straight from open is allowed
	require.NoError(t, fs.FreeCookie(c2))
	assert.Empty(t, ds.jar)
}

func TestDirCookie_ConcurrentRemoval(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	for _, name := range []string{"a", "b", "c", "d"} {
		publishTestDevice(t, fs, name)
	}
	root, err := fs.Root()
	require.NoError(t, err)

	// two readers sit on different entries when "c" goes away
	onC, err := fs.Open(root, devfs.StreamDir, 0)
	require.NoError(t, err)
	d, err := fs.ReadDirent(onC)
	require.NoError(t, err)
	require.Equal(t, "d", d.Name)

	onB, err := fs.Open(root, devfs.StreamDir, 0)
	require.NoError(t, err)
	for range 2 {
		_, err = fs.ReadDirent(onB)
		require.NoError(t, err)
	}

	require.NoError(t, fs.Unpublish("c"))

	assert.Equal(t, []string{"b", "a"}, readNames(t, fs, onC))
	assert.Equal(t, []string{"b", "a"}, readNames(t, fs, onB))
}

func TestDevCookie_Forwarding(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	dev := newMockDevice()
	dev.On("Open", "net/rtl8139/0").Return("dc", nil)
	dev.On("Read", "dc", mock.Anything, int64(7), 4).Return(func(_ devfs.DevCookie, buf []byte, _ int64, _ int) int {
		return copy(buf, "ping")
	}, nil)
	dev.On("Write", "dc", []byte("pong"), int64(3), 4).Return(4, nil)
	dev.On("Seek", "dc", int64(10), io.SeekCurrent).Return(nil)
	dev.On("Ioctl", "dc", devfs.IoctlGetMAC, mock.Anything, 6).Return(nil)
	dev.On("Close", "dc").Return(nil)
	dev.On("FreeCookie", "dc").Return(nil)

	id, err := fs.Publish("net/rtl8139/0", dev)
	require.NoError(t, err)
	v, err := fs.GetVnode(id, false)
	require.NoError(t, err)

	c, err := fs.Open(v, devfs.StreamDevice, 0)
	require.NoError(t, err)

	buf := make([]byte, 4)
	n, err := fs.Read(c, buf, 7, 4)
	require.NoError(t, err)
	assert.Equal(t, "ping", string(buf[:n]))

	n, err = fs.Write(c, []byte("pong"), 3, 4)
	require.NoError(t, err)
	assert.Equal(t, 4, n)

	require.NoError(t, fs.Seek(c, 10, io.SeekCurrent))
	require.NoError(t, fs.Ioctl(c, devfs.IoctlGetMAC, make([]byte, 6), 6))
	require.NoError(t, fs.Close(c))
	require.NoError(t, fs.FreeCookie(c))

	dev.AssertExpectations(t)
}

func TestDevCookie_DriverOpenFails(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	dev := newMockDevice()
	driverErr := errors.New("no carrier")
	dev.On("Open", "eth0").Return(nil, driverErr)

	id, err := fs.Publish("eth0", dev)
	require.NoError(t, err)
	v, err := fs.GetVnode(id, false)
	require.NoError(t, err)

	c, err := fs.Open(v, devfs.StreamAny, 0)
	assert.ErrorIs(t, err, driverErr)
	assert.Nil(t, c)
}

func TestDevCookie_OpenDoesNotHoldLock(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	dev := newMockDevice()
	id, err := fs.Publish("loop", dev)
	require.NoError(t, err)

	// a driver that publishes from inside Open would deadlock if fs.mu were held
	dev.On("Open", "loop").Return(nil, nil).Run(func(mock.Arguments) {
		_, err := fs.Publish("loop-child/0", nopDevice{})
		assert.NoError(t, err)
	})

	v, err := fs.GetVnode(id, false)
	require.NoError(t, err)
	_, err = fs.Open(v, devfs.StreamDevice, 0)
	require.NoError(t, err)

	_, err = fs.LookupPath("loop-child/0")
	assert.NoError(t, err)
}

func TestCookie_StateMachine(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	dev := newMockDevice()
	dev.On("Open", "null").Return("dc", nil)
	dev.On("Close", "dc").Return(nil).Once()
	dev.On("FreeCookie", "dc").Return(nil).Once()

	id, err := fs.Publish("null", dev)
	require.NoError(t, err)
	v, err := fs.GetVnode(id, false)
	require.NoError(t, err)

	c, err := fs.Open(v, devfs.StreamDevice, 0)
	require.NoError(t, err)

	require.NoError(t, fs.Close(c))
	assert.ErrorIs(t, fs.Close(c), devfs.ErrNotAllowed)

	// closed cookies do no I/O and never reach the driver
	_, err = fs.Read(c, make([]byte, 1), 0, 1)
	assert.ErrorIs(t, err, devfs.ErrInvalidArgs)
	_, err = fs.Write(c, make([]byte, 1), 0, 1)
	assert.ErrorIs(t, err, devfs.ErrInvalidArgs)
	assert.ErrorIs(t, fs.Seek(c, 0, io.SeekStart), devfs.ErrInvalidArgs)
	assert.ErrorIs(t, fs.Ioctl(c, 1, nil, 0), devfs.ErrInvalidArgs)

	require.NoError(t, fs.FreeCookie(c))
	assert.ErrorIs(t, fs.FreeCookie(c), devfs.ErrNotAllowed)
	assert.ErrorIs(t, fs.Close(c), devfs.ErrNotAllowed)

	dev.AssertExpectations(t)
}

func TestDevCookie_SurvivesUnpublish(t *testing.T) {
	t.Parallel()

	fs := newTestFS(t)
	dev := newMockDevice()
	dev.On("Open", "null").Return("dc", nil)
	dev.On("Write", "dc", mock.Anything, int64(0), 3).Return(3, nil)

	id, err := fs.Publish("null", dev)
	require.NoError(t, err)
	v, err := fs.GetVnode(id, false)
	require.NoError(t, err)
	c, err := fs.Open(v, devfs.StreamDevice, 0)
	require.NoError(t, err)

	require.NoError(t, fs.Unpublish("null"))

	n, err := fs.Write(c, []byte("abc"), 0, 3)
	require.NoError(t, err)
	assert.Equal(t, 3, n)
}
