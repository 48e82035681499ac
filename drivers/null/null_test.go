package null

import (
	"testing"

	"github.com/brettbedarf/devfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDevice(t *testing.T) {
	t.Parallel()

	d, err := New(nil)
	require.NoError(t, err)
	c, err := d.Open("null")
	require.NoError(t, err)

	n, err := d.Read(c, make([]byte, 8), 0, 8)
	require.NoError(t, err)
	assert.Zero(t, n)

	n, err = d.Write(c, make([]byte, 8), 0, 8)
	require.NoError(t, err)
	assert.Equal(t, 8, n)

	_, err = d.Write(c, nil, 0, -1)
	assert.ErrorIs(t, err, devfs.ErrInvalidArgs)
	_, err = d.Read(c, nil, 0, -1)
	assert.ErrorIs(t, err, devfs.ErrInvalidArgs)

	assert.ErrorIs(t, d.Ioctl(c, devfs.IoctlGetMAC, make([]byte, 6), 6), devfs.ErrInvalidArgs)
	assert.NoError(t, d.Seek(c, 100, 0))
	assert.NoError(t, d.Close(c))
	assert.NoError(t, d.FreeCookie(c))
}

func TestDevice_Paging(t *testing.T) {
	t.Parallel()

	d := &Device{}
	require.True(t, d.CanPage())

	vecs := [][]byte{[]byte("dirty"), []byte("page")}
	n, err := d.ReadPage(vecs, 0)
	require.NoError(t, err)
	assert.Equal(t, 9, n)
	assert.Equal(t, make([]byte, 5), vecs[0])
	assert.Equal(t, make([]byte, 4), vecs[1])

	n, err = d.WritePage([][]byte{make([]byte, 4096)}, 4096)
	require.NoError(t, err)
	assert.Equal(t, 4096, n)
}
