// Package null is the bit bucket: reads hit end of file, writes vanish.
// It can also back pages, which read as zeroes.
package null

import (
	"github.com/brettbedarf/devfs"
)

// Device implements devfs.Device and devfs.Pager
type Device struct{}

// New ignores its options; there is nothing to configure
func New(map[string]string) (*Device, error) {
	return &Device{}, nil
}

func (*Device) Open(string) (devfs.DevCookie, error) { return nil, nil }

func (*Device) Close(devfs.DevCookie) error { return nil }

func (*Device) FreeCookie(devfs.DevCookie) error { return nil }

func (*Device) Seek(devfs.DevCookie, int64, int) error { return nil }

func (*Device) Ioctl(devfs.DevCookie, int, []byte, int) error {
	return devfs.ErrInvalidArgs
}

func (*Device) Read(_ devfs.DevCookie, _ []byte, _ int64, length int) (int, error) {
	if length < 0 {
		return 0, devfs.ErrInvalidArgs
	}
	return 0, nil
}

func (*Device) Write(_ devfs.DevCookie, _ []byte, _ int64, length int) (int, error) {
	if length < 0 {
		return 0, devfs.ErrInvalidArgs
	}
	return length, nil
}

func (*Device) CanPage() bool { return true }

func (*Device) ReadPage(vecs [][]byte, _ int64) (int, error) {
	n := 0
	for _, v := range vecs {
		clear(v)
		n += len(v)
	}
	return n, nil
}

func (*Device) WritePage(vecs [][]byte, _ int64) (int, error) {
	n := 0
	for _, v := range vecs {
		n += len(v)
	}
	return n, nil
}

var (
	_ devfs.Device = (*Device)(nil)
	_ devfs.Pager  = (*Device)(nil)
)
