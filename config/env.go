package config

import (
	"fmt"
	"strconv"

	"github.com/joho/godotenv"
)

// Environment file keys understood by [LoadEnvOverride]
const (
	EnvDebug        = "DEVFS_DEBUG"
	EnvFsName       = "DEVFS_FS_NAME"
	EnvName         = "DEVFS_NAME"
	EnvLogLvl       = "DEVFS_LOG_LEVEL"
	EnvMaxVnodes    = "DEVFS_MAX_VNODES"
	EnvMaxPathLen   = "DEVFS_MAX_PATH_LEN"
	EnvAttrTimeout  = "DEVFS_ATTR_TIMEOUT"
	EnvEntryTimeout = "DEVFS_ENTRY_TIMEOUT"
)

// LoadEnvOverride reads KEY=value env files and returns the DEVFS_* keys as an
// override. Missing keys stay nil; malformed values are an error.
func LoadEnvOverride(filenames ...string) (*ConfigOverride, error) {
	envMap, err := godotenv.Read(filenames...)
	if err != nil {
		return nil, fmt.Errorf("(config-godotenv) %w", err)
	}
	return overrideFromEnvMap(envMap)
}

func overrideFromEnvMap(envMap map[string]string) (*ConfigOverride, error) {
	var o ConfigOverride
	var err error

	if o.Debug, err = envValue(envMap, EnvDebug, strconv.ParseBool); err != nil {
		return nil, err
	}
	if v, ok := envMap[EnvFsName]; ok {
		o.FsName = &v
	}
	if v, ok := envMap[EnvName]; ok {
		o.Name = &v
	}
	if o.LogLvl, err = envValue(envMap, EnvLogLvl, strconv.Atoi); err != nil {
		return nil, err
	}
	if o.MaxVnodes, err = envValue(envMap, EnvMaxVnodes, strconv.Atoi); err != nil {
		return nil, err
	}
	if o.MaxPathLen, err = envValue(envMap, EnvMaxPathLen, strconv.Atoi); err != nil {
		return nil, err
	}
	if o.AttrTimeout, err = envValue(envMap, EnvAttrTimeout, parseFloat); err != nil {
		return nil, err
	}
	if o.EntryTimeout, err = envValue(envMap, EnvEntryTimeout, parseFloat); err != nil {
		return nil, err
	}
	return &o, nil
}

func envValue[T any](envMap map[string]string, key string, parse func(string) (T, error)) (*T, error) {
	raw, ok := envMap[key]
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s=%q: %w", key, raw, err)
	}
	return &v, nil
}

func parseFloat(s string) (float64, error) {
	return strconv.ParseFloat(s, 64)
}
