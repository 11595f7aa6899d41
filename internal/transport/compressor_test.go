package transport

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLZ4CompressorRoundTrip(t *testing.T) {
	c := &lz4Compressor{}
	assert.Equal(t, "lz4", c.Name())

	var compressed bytes.Buffer
	w, err := c.Compress(&compressed)
	require.NoError(t, err)

	payload := []byte("hello world, this is a payload that should compress and decompress cleanly")
	_, err = w.Write(payload)
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := c.Decompress(&compressed)
	require.NoError(t, err)
	out, err := io.ReadAll(r)
	require.NoError(t, err)

	assert.Equal(t, payload, out)
}
