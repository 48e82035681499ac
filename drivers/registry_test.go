package drivers

import (
	"fmt"
	"sync"
	"testing"

	"github.com/brettbedarf/devfs"
	"github.com/brettbedarf/devfs/drivers/netloop"
	"github.com/brettbedarf/devfs/drivers/null"
	"github.com/brettbedarf/devfs/internal/mocks"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func factoryFor(dev devfs.Device) Factory {
	return func(map[string]string) (devfs.Device, error) { return dev, nil }
}

func TestRegister_MultipleKinds(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	dev1 := &mocks.MockDevice{}
	dev2 := &mocks.MockDevice{}

	r.Register("test1", factoryFor(dev1))
	r.Register("test2", factoryFor(dev2))

	got, err := r.New("test1", nil)
	require.NoError(t, err)
	assert.Same(t, dev1, got)

	got, err = r.New("test2", nil)
	require.NoError(t, err)
	assert.Same(t, dev2, got)

	assert.ElementsMatch(t, []string{"test1", "test2"}, r.Kinds())
}

func TestRegister_DuplicateKind(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	dev1 := &mocks.MockDevice{}
	dev2 := &mocks.MockDevice{}

	r.Register("test", factoryFor(dev1))
	r.Register("test", factoryFor(dev2))

	got, err := r.New("test", nil)
	require.NoError(t, err)
	assert.Same(t, dev1, got)
}

func TestRegister_Concurrent(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	var wg sync.WaitGroup

	for i := range 100 {
		wg.Go(func() {
			kind := fmt.Sprintf("test%d", i)
			dev := &mocks.MockDevice{}
			r.Register(kind, factoryFor(dev))
			got, err := r.New(kind, nil)
			assert.NoError(t, err)
			assert.Same(t, dev, got)
		})
	}
	wg.Wait()

	assert.Len(t, r.Kinds(), 100)
}

func TestNew_UnregisteredKind(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	_, err := r.New("nonexistent", nil)
	assert.Error(t, err)
}

func TestNew_FactoryError(t *testing.T) {
	t.Parallel()

	r := NewRegistry()
	expErr := fmt.Errorf("test error")
	r.Register("test", func(map[string]string) (devfs.Device, error) { return nil, expErr })

	_, err := r.New("test", nil)
	assert.Equal(t, expErr, err)
}

func TestRegisterBuiltins(t *testing.T) {
	t.Parallel()

	t.Run("All", func(t *testing.T) {
		r := NewRegistry()
		RegisterBuiltins(r)

		dev, err := r.New(NetloopDriverKind, map[string]string{netloop.OptMAC: "52:54:00:12:34:56"})
		require.NoError(t, err)
		assert.IsType(t, &netloop.NIC{}, dev)

		dev, err = r.New(NullDriverKind, nil)
		require.NoError(t, err)
		assert.IsType(t, &null.Device{}, dev)
	})

	t.Run("Subset", func(t *testing.T) {
		r := NewRegistry()
		RegisterBuiltins(r, NullDriverKind)

		assert.Equal(t, []string{NullDriverKind}, r.Kinds())
	})

	t.Run("BadOptions", func(t *testing.T) {
		r := NewRegistry()
		RegisterBuiltins(r)

		dev, err := r.New(NetloopDriverKind, map[string]string{netloop.OptMAC: "nope"})
		assert.Error(t, err)
		assert.Nil(t, dev)
	})
}
