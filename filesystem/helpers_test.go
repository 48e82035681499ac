package filesystem

import (
	"testing"

	"github.com/brettbedarf/devfs"
	"github.com/brettbedarf/devfs/config"
	"github.com/brettbedarf/devfs/internal/mocks"
	"github.com/stretchr/testify/require"
)

func createTestConfig() *config.Config {
	cfg := config.NewDefaultConfig()
	cfg.MaxPathLen = config.DefaultMaxPathLen
	return cfg
}

// newTestFS returns a private, unregistered instance so tests can run in parallel
func newTestFS(t *testing.T, opts ...func(*config.Config)) *FileSystem {
	t.Helper()

	cfg := createTestConfig()
	for _, opt := range opts {
		opt(cfg)
	}
	fs, err := newFS(cfg)
	require.NoError(t, err)
	return fs
}

// nopDevice is a driver whose calls all succeed and do nothing
type nopDevice struct{}

func (nopDevice) Open(string) (devfs.DevCookie, error) { return struct{}{}, nil }
func (nopDevice) Close(devfs.DevCookie) error { return nil }
func (nopDevice) FreeCookie(devfs.DevCookie) error { return nil }
func (nopDevice) Seek(devfs.DevCookie, int64, int) error { return nil }
func (nopDevice) Ioctl(devfs.DevCookie, int, []byte, int) error { return nil }
func (nopDevice) Read(devfs.DevCookie, []byte, int64, int) (int, error) { return 0, nil }
func (nopDevice) Write(devfs.DevCookie, []byte, int64, int) (int, error) { return 0, nil }

// publishTestDevice publishes a nopDevice and returns its node
func publishTestDevice(t *testing.T, fs *FileSystem, path string) *Vnode {
	t.Helper()

	id, err := fs.Publish(path, nopDevice{})
	require.NoError(t, err)
	v, err := fs.GetVnode(id, false)
	require.NoError(t, err)
	return v
}

func newMockDevice() *mocks.MockDevice {
	return &mocks.MockDevice{}
}

// readNames drains a directory cookie through Read
func readNames(t *testing.T, fs *FileSystem, c *Cookie) []string {
	t.Helper()

	var names []string
	buf := make([]byte, 256)
	for {
		n, err := fs.Read(c, buf, 0, len(buf))
		require.NoError(t, err)
		if n == 0 {
			return names
		}
		require.Equal(t, byte(0), buf[n-1])
		names = append(names, string(buf[:n-1]))
	}
}
