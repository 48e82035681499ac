package devfs

import "errors"

var (
	// ErrNotFound is returned when a name or id does not resolve to a node.
	ErrNotFound = errors.New("not found")

	// ErrAlreadyExists is returned when publishing over an existing node.
	ErrAlreadyExists = errors.New("already exists")

	// ErrNotADirectory is returned when a directory operation targets a device.
	ErrNotADirectory = errors.New("not a directory")

	// ErrWrongStreamType is returned when open asks for a stream type the
	// node does not have.
	ErrWrongStreamType = errors.New("wrong stream type")

	// ErrReadOnlyFilesystem is returned for any mutation outside of publish.
	ErrReadOnlyFilesystem = errors.New("read-only filesystem")

	// ErrNotAllowed is returned for structural violations such as deleting
	// a linked or non-empty node, or changing metadata.
	ErrNotAllowed = errors.New("operation not allowed")

	// ErrInvalidArgs is returned for bad seek targets, bad ioctl ops and
	// malformed lengths or paths.
	ErrInvalidArgs = errors.New("invalid arguments")

	// ErrInsufficientBuffer is returned when the caller's buffer cannot hold
	// a name or a fixed size payload.
	ErrInsufficientBuffer = errors.New("insufficient buffer")

	// ErrOutOfMemory is returned when the node store is at capacity.
	ErrOutOfMemory = errors.New("out of memory")

	// ErrAlreadyMounted is returned when a second instance is mounted.
	ErrAlreadyMounted = errors.New("already mounted")

	// ErrIO is returned by drivers whose hardware is gone.
	ErrIO = errors.New("i/o error")
)
