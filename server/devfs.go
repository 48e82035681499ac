package server

import (
	"fmt"

	"github.com/brettbedarf/devfs/config"
	"github.com/brettbedarf/devfs/drivers"
	"github.com/brettbedarf/devfs/filesystem"
	dfuse "github.com/brettbedarf/devfs/fuse"
	"github.com/brettbedarf/devfs/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
)

// DevFs owns the mounted device namespace and, once served, the FUSE server
// exposing it at a host mount point
type DevFs struct {
	*filesystem.FileSystem
	cfg    *config.Config
	server *fuse.Server
}

// New mounts the process-wide namespace for cfg. It fails if one is already mounted.
func New(cfg *config.Config) (*DevFs, error) {
	fs, err := filesystem.Mount(cfg)
	if err != nil {
		return nil, err
	}
	return &DevFs{FileSystem: fs, cfg: fs.Config()}, nil
}

// PublishConfigured builds every device listed in the config with the drivers
// in reg and publishes it. Devices that fail are logged and skipped; the
// number published is returned along with the first error.
func (fs *DevFs) PublishConfigured(reg *drivers.Registry) (int, error) {
	logger := util.GetLogger("Server.Publish")

	var firstErr error
	published := 0
	for _, d := range fs.cfg.Devices {
		dev, err := reg.New(d.Driver, d.Options)
		if err == nil {
			_, err = fs.Publish(d.Path, dev)
		}
		if err != nil {
			logger.Error().Err(err).Str("path", d.Path).Str("driver", d.Driver).Msg("Failed to publish configured device")
			if firstErr == nil {
				firstErr = fmt.Errorf("device %q: %w", d.Path, err)
			}
			continue
		}
		published++
	}
	return published, firstErr
}

// Serve mounts and serves the filesystem at the given mountPoint.
func (fs *DevFs) Serve(mountPoint string) error {
	raw := dfuse.NewFuseRaw(fs.FileSystem)
	opts := fs.cfg.MountOptions
	srv, err := fuse.NewServer(raw, mountPoint, &fuse.MountOptions{
		Name:   opts.Name,
		FsName: opts.FsName,
		Debug:  opts.Debug,
		Logger: util.NewLogLogger("FuseServer", util.DebugLevel),
	})
	if err != nil {
		return err
	}
	fs.server = srv

	go srv.Serve()
	return srv.WaitMount()
}

func (fs *DevFs) ServeAsync(mountPoint string) <-chan error {
	done := make(chan error, 1)

	go func() {
		done <- fs.Serve(mountPoint)
		close(done)
	}()

	return done
}

// Unmount detaches the FUSE mount, if any, then tears the namespace down.
func (fs *DevFs) Unmount() error {
	if fs.server != nil {
		if err := fs.server.Unmount(); err != nil {
			return err
		}
		fs.server = nil
	}
	return fs.FileSystem.Unmount()
}
