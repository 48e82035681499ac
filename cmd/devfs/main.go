package main

import (
	"flag"
	"os"
	"os/exec"
	"os/signal"
	"syscall"

	"github.com/brettbedarf/devfs/config"
	"github.com/brettbedarf/devfs/drivers"
	"github.com/brettbedarf/devfs/internal/util"
	"github.com/brettbedarf/devfs/server"
)

func main() {
	// Parse command line arguments
	var (
		configPath string
		envPath    string
		verbose    int
		umount     bool
	)
	flag.StringVar(&configPath, "config", "", "Path to a YAML or JSON config file listing devices to publish")
	flag.StringVar(&configPath, "c", "", "--config (shorthand)")
	flag.StringVar(&envPath, "env", "", "Path to a KEY=value env file with DEVFS_* overrides")
	flag.StringVar(&envPath, "e", "", "--env (shorthand)")
	flag.BoolVar(&umount, "umount", false,
		"Unmount the fs first if needed before mounting again. Useful for debuggers that don't exit properly.")
	flag.BoolVar(&umount, "u", false, "--umount (shorthand)")
	flag.IntVar(&verbose, "verbose", 3, "Log verbosity level between 1 (error) and 5 (trace). Default is 3 (info).")
	flag.IntVar(&verbose, "v", 3, "--verbose (shorthand)")
	flag.Parse()

	verboseSet := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "verbose" || f.Name == "v" {
			verboseSet = true
		}
	})

	// Initialize logger
	util.InitializeLogger(util.LevelFromVerbosity(verbose))
	logger := util.GetLogger("main")

	mnt := flag.Arg(0)
	logger.Info().Int("verbose", verbose).Str("config", configPath).Str("mnt", mnt).Msg("devfs initializing")
	// Check if mount point is provided
	if mnt == "" {
		logger.Fatal().Msg("Mount point not specified; it must be passed as the argument")
	}
	// Try unmount if requested
	if umount { // send cli command
		cmd := exec.Command("fusermount", "-u", mnt)
		// we ignore error here if not already mounted
		cmd.Run() // nolint:errcheck
	}

	// defaults < config file < env file < flags
	cfg := config.NewDefaultConfig()
	if configPath != "" {
		override, err := config.LoadConfigOverrideFile(configPath)
		if err != nil {
			logger.Fatal().Err(err).Str("config", configPath).Msg("Failed to load config file")
		}
		cfg.Merge(override)
	}
	if envPath != "" {
		override, err := config.LoadEnvOverride(envPath)
		if err != nil {
			logger.Fatal().Err(err).Str("env", envPath).Msg("Failed to load env file")
		}
		cfg.Merge(override)
	}
	if verboseSet {
		cfg.Merge(&config.ConfigOverride{LogLvl: &verbose})
	}
	util.InitializeLogger(cfg.LogLvl)

	// Init the fs
	fs, err := server.New(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("Failed to create devfs")
	}

	// Register all built-in drivers and publish the configured devices
	reg := drivers.NewRegistry()
	drivers.RegisterBuiltins(reg)
	if len(cfg.Devices) == 0 {
		logger.Warn().Msg("No devices configured; serving an empty namespace")
	}
	n, err := fs.PublishConfigured(reg)
	if err != nil {
		logger.Warn().Err(err).Int("published", n).Int("configured", len(cfg.Devices)).Msg("Some devices were not published")
	} else {
		logger.Info().Int("published", n).Msg("Published configured devices")
	}

	// Serve
	if err := fs.Serve(mnt); err != nil {
		logger.Fatal().Err(err).Msg("Failed to mount filesystem")
	}

	// Setup signal handling for graceful shutdown
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, syscall.SIGINT, syscall.SIGTERM, syscall.SIGQUIT)

	logger.Info().Str("mountpoint", mnt).Str("fsid", fs.FsID().String()).Msg("Filesystem mounted successfully")

	// Wait for termination signal
	sig := <-signalChan
	logger.Info().Str("signal", sig.String()).Msg("Received signal, unmounting filesystem")

	// Unmount the filesystem
	if err := fs.Unmount(); err != nil {
		logger.Error().Err(err).Msg("Failed to unmount filesystem")
	} else {
		logger.Info().Msg("Filesystem unmounted successfully")
	}
}
