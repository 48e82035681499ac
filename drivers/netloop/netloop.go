// Package netloop is a simulated Ethernet NIC. Frames written to any session
// are queued and handed to readers, as if the wire looped back on itself.
package netloop

import (
	"fmt"
	"net"
	"strconv"
	"sync"
	"sync/atomic"

	"github.com/brettbedarf/devfs"
	"github.com/brettbedarf/devfs/internal/util"
	"github.com/dustin/go-humanize"
)

const (
	// MaxFrame is the largest frame the NIC transmits; reads need room for one
	MaxFrame = 1500

	DefaultMAC   = "02:00:5e:10:00:01"
	DefaultQueue = 64
)

// Option keys accepted by [New]
const (
	OptMAC      = "mac"
	OptQueue    = "queue"
	OptNonBlock = "nonblock"
)

// NIC is one simulated network card. It implements devfs.Device.
type NIC struct {
	mac      net.HardwareAddr
	nonblock bool
	frames   chan []byte

	detachOnce sync.Once
	detached   chan struct{}

	rxBytes atomic.Uint64
	txBytes atomic.Uint64
	dropped atomic.Uint64
}

// session is the cookie handed out by Open
type session struct {
	name   string
	closed chan struct{}
	once   sync.Once
	rx, tx atomic.Uint64
}

// New builds a NIC from driver options: mac (EUI-48, default [DefaultMAC]),
// queue (frames buffered before drops, default [DefaultQueue]) and nonblock
// (reads return 0 instead of waiting on an empty queue).
func New(opts map[string]string) (*NIC, error) {
	macStr := DefaultMAC
	if v, ok := opts[OptMAC]; ok {
		macStr = v
	}
	mac, err := net.ParseMAC(macStr)
	if err != nil {
		return nil, fmt.Errorf("(netloop) %s: %w", OptMAC, err)
	}
	if len(mac) != 6 {
		return nil, fmt.Errorf("(netloop) %s: %q is not an ethernet address", OptMAC, macStr)
	}

	queue := DefaultQueue
	if v, ok := opts[OptQueue]; ok {
		if queue, err = strconv.Atoi(v); err != nil || queue < 1 {
			return nil, fmt.Errorf("(netloop) %s: invalid queue length %q", OptQueue, v)
		}
	}

	var nonblock bool
	if v, ok := opts[OptNonBlock]; ok {
		if nonblock, err = strconv.ParseBool(v); err != nil {
			return nil, fmt.Errorf("(netloop) %s: %w", OptNonBlock, err)
		}
	}

	return &NIC{
		mac:      mac,
		nonblock: nonblock,
		frames:   make(chan []byte, queue),
		detached: make(chan struct{}),
	}, nil
}

// MAC returns the card's hardware address
func (n *NIC) MAC() net.HardwareAddr {
	return n.mac
}

// Detach simulates the card disappearing. Every later call fails with
// devfs.ErrIO and blocked readers wake up.
func (n *NIC) Detach() {
	n.detachOnce.Do(func() {
		close(n.detached)
		logger := util.GetLogger("Netloop")
		logger.Warn().Str("mac", n.mac.String()).Msg("NIC detached")
	})
}

func (n *NIC) isDetached() bool {
	select {
	case <-n.detached:
		return true
	default:
		return false
	}
}

// Stats returns total bytes received, transmitted and frames dropped on a full queue
func (n *NIC) Stats() (rx, tx, dropped uint64) {
	return n.rxBytes.Load(), n.txBytes.Load(), n.dropped.Load()
}

func (n *NIC) Open(name string) (devfs.DevCookie, error) {
	if n.isDetached() {
		return nil, devfs.ErrIO
	}
	logger := util.GetLogger("Netloop")
	logger.Debug().Str("dev", name).Str("mac", n.mac.String()).Msg("Session opened")
	return &session{name: name, closed: make(chan struct{})}, nil
}

// Close wakes any reader blocked on the session
func (n *NIC) Close(cookie devfs.DevCookie) error {
	s, ok := cookie.(*session)
	if !ok {
		return devfs.ErrInvalidArgs
	}
	s.once.Do(func() { close(s.closed) })

	logger := util.GetLogger("Netloop")
	logger.Debug().
		Str("dev", s.name).
		Str("rx", humanize.Bytes(s.rx.Load())).
		Str("tx", humanize.Bytes(s.tx.Load())).
		Msg("Session closed")
	return nil
}

func (n *NIC) FreeCookie(cookie devfs.DevCookie) error {
	return nil
}

// Seek is meaningless on a NIC
func (n *NIC) Seek(cookie devfs.DevCookie, pos int64, whence int) error {
	return devfs.ErrNotAllowed
}

// Read waits for the next frame and copies it into buf. The caller must offer
// room for a full frame; nothing is copied otherwise.
func (n *NIC) Read(cookie devfs.DevCookie, buf []byte, pos int64, length int) (int, error) {
	if length < MaxFrame || len(buf) < MaxFrame {
		return 0, devfs.ErrInsufficientBuffer
	}
	if n.isDetached() {
		return 0, devfs.ErrIO
	}
	s, ok := cookie.(*session)
	if !ok {
		return 0, devfs.ErrInvalidArgs
	}

	var frame []byte
	if n.nonblock {
		select {
		case frame = <-n.frames:
		default:
			return 0, nil
		}
	} else {
		select {
		case frame = <-n.frames:
		case <-s.closed:
			return 0, nil
		case <-n.detached:
			return 0, devfs.ErrIO
		}
	}

	c := copy(buf, frame)
	s.rx.Add(uint64(c))
	n.rxBytes.Add(uint64(c))
	logger := util.GetLogger("Netloop")
	logger.Trace().Str("dev", s.name).Int("len", c).Msg("rx")
	return c, nil
}

// Write transmits length bytes of buf as one frame. A full queue drops the
// frame the way a real card would, and the write still succeeds.
func (n *NIC) Write(cookie devfs.DevCookie, buf []byte, pos int64, length int) (int, error) {
	if length > MaxFrame {
		return 0, devfs.ErrInsufficientBuffer
	}
	if length < 0 || length > len(buf) {
		return 0, devfs.ErrInvalidArgs
	}
	if n.isDetached() {
		return 0, devfs.ErrIO
	}
	s, ok := cookie.(*session)
	if !ok {
		return 0, devfs.ErrInvalidArgs
	}

	frame := make([]byte, length)
	copy(frame, buf)
	select {
	case n.frames <- frame:
	default:
		if d := n.dropped.Add(1); d == 1 || d%100 == 0 {
			logger := util.GetLogger("Netloop")
			logger.Warn().Str("dev", s.name).Uint64("dropped", d).Msg("Queue full, dropping frames")
		}
	}

	s.tx.Add(uint64(length))
	n.txBytes.Add(uint64(length))
	return length, nil
}

// Ioctl supports devfs.IoctlGetMAC only
func (n *NIC) Ioctl(cookie devfs.DevCookie, op int, buf []byte, length int) error {
	if n.isDetached() {
		return devfs.ErrIO
	}

	switch op {
	case devfs.IoctlGetMAC:
		if length < len(n.mac) || len(buf) < len(n.mac) {
			return devfs.ErrInsufficientBuffer
		}
		copy(buf, n.mac)
		return nil
	default:
		return devfs.ErrInvalidArgs
	}
}

var _ devfs.Device = (*NIC)(nil)
