// Package devfs contains the domain contract shared between the device namespace
// and the drivers that publish into it
package devfs

// StreamType tags the payload of a namespace node
type StreamType int

const (
	// StreamAny is only valid as a requested type on open and matches every node
	StreamAny StreamType = iota
	StreamDir
	StreamDevice
)

func (t StreamType) String() string {
	switch t {
	case StreamAny:
		return "any"
	case StreamDir:
		return "dir"
	case StreamDevice:
		return "device"
	}
	return "unknown"
}

// IoctlGetMAC is the reserved ioctl op that copies a NIC's hardware address
// into the caller's buffer
const IoctlGetMAC = 10000

// DevCookie is the opaque per-open session handle a driver hands back from Open
type DevCookie any

// Device is the operation table a driver publishes at a namespace path.
// The namespace only borrows it; the driver must outlive its published node.
//
// Calls on the same cookie are never made concurrently by the namespace
// but may block for as long as the driver needs.
type Device interface {
	// Open starts a session; name is the full path the device was published at
	Open(name string) (DevCookie, error)
	Close(cookie DevCookie) error
	FreeCookie(cookie DevCookie) error

	// Seek repositions the session; whence is one of io.SeekStart, io.SeekCurrent, io.SeekEnd
	Seek(cookie DevCookie, pos int64, whence int) error

	// Ioctl runs an out-of-band op, filling up to length bytes of buf
	Ioctl(cookie DevCookie, op int, buf []byte, length int) error

	// Read reads up to length bytes into buf and returns the number read.
	// length is passed through from the caller untouched and may be invalid.
	Read(cookie DevCookie, buf []byte, pos int64, length int) (int, error)

	// Write writes length bytes of buf and returns the number written.
	// length is passed through from the caller untouched and may be invalid.
	Write(cookie DevCookie, buf []byte, pos int64, length int) (int, error)
}

// Pager is implemented by devices that can back memory pages.
// A Device that does not implement it is treated as not pageable.
type Pager interface {
	CanPage() bool
	ReadPage(vecs [][]byte, pos int64) (int, error)
	WritePage(vecs [][]byte, pos int64) (int, error)
}
