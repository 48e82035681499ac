package drivers

import (
	"github.com/brettbedarf/devfs"
	"github.com/brettbedarf/devfs/drivers/netloop"
	"github.com/brettbedarf/devfs/drivers/null"
)

type BuiltInDriverKind = string

const (
	NetloopDriverKind BuiltInDriverKind = "netloop"
	NullDriverKind    BuiltInDriverKind = "null"
)

// RegisterBuiltins registers all built-in drivers by default
// or only the specific ones if kinds are provided
func RegisterBuiltins(r *Registry, kinds ...BuiltInDriverKind) {
	if len(kinds) == 0 {
		kinds = append(kinds, NetloopDriverKind, NullDriverKind)
	}

	for _, kind := range kinds {
		switch kind {
		case NetloopDriverKind:
			r.Register(kind, func(opts map[string]string) (devfs.Device, error) {
				nic, err := netloop.New(opts)
				if err != nil {
					return nil, err
				}
				return nic, nil
			})
		case NullDriverKind:
			r.Register(kind, func(opts map[string]string) (devfs.Device, error) {
				dev, err := null.New(opts)
				if err != nil {
					return nil, err
				}
				return dev, nil
			})
		}
	}
}
