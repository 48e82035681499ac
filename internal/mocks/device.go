package mocks

import (
	"github.com/brettbedarf/devfs"
	"github.com/stretchr/testify/mock"
)

// MockDevice implements devfs.Device for testing across packages
type MockDevice struct {
	mock.Mock
}

func (m *MockDevice) Open(name string) (devfs.DevCookie, error) {
	args := m.Called(name)
	return args.Get(0), args.Error(1)
}

func (m *MockDevice) Close(cookie devfs.DevCookie) error {
	return m.Called(cookie).Error(0)
}

func (m *MockDevice) FreeCookie(cookie devfs.DevCookie) error {
	return m.Called(cookie).Error(0)
}

func (m *MockDevice) Seek(cookie devfs.DevCookie, pos int64, whence int) error {
	return m.Called(cookie, pos, whence).Error(0)
}

func (m *MockDevice) Ioctl(cookie devfs.DevCookie, op int, buf []byte, length int) error {
	args := m.Called(cookie, op, buf, length)

	// Handle function return types that fill buf
	if fn, ok := args.Get(0).(func(devfs.DevCookie, int, []byte, int) error); ok {
		return fn(cookie, op, buf, length)
	}
	return args.Error(0)
}

func (m *MockDevice) Read(cookie devfs.DevCookie, buf []byte, pos int64, length int) (int, error) {
	args := m.Called(cookie, buf, pos, length)

	// Handle function return types (for tests that fill buf)
	if fn, ok := args.Get(0).(func(devfs.DevCookie, []byte, int64, int) int); ok {
		return fn(cookie, buf, pos, length), args.Error(1)
	}

	if args.Get(0) == nil {
		return 0, args.Error(1)
	}
	return args.Get(0).(int), args.Error(1)
}

func (m *MockDevice) Write(cookie devfs.DevCookie, buf []byte, pos int64, length int) (int, error) {
	args := m.Called(cookie, buf, pos, length)

	if args.Get(0) == nil {
		return 0, args.Error(1)
	}
	return args.Get(0).(int), args.Error(1)
}

var _ devfs.Device = (*MockDevice)(nil)

// MockPagerDevice is a MockDevice that also implements devfs.Pager
type MockPagerDevice struct {
	MockDevice
}

func (m *MockPagerDevice) CanPage() bool {
	return m.Called().Bool(0)
}

func (m *MockPagerDevice) ReadPage(vecs [][]byte, pos int64) (int, error) {
	args := m.Called(vecs, pos)
	return args.Int(0), args.Error(1)
}

func (m *MockPagerDevice) WritePage(vecs [][]byte, pos int64) (int, error) {
	args := m.Called(vecs, pos)
	return args.Int(0), args.Error(1)
}

var (
	_ devfs.Device = (*MockPagerDevice)(nil)
	_ devfs.Pager  = (*MockPagerDevice)(nil)
)
