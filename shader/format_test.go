package shader

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestOutputRoundTrip(t *testing.T) {
	code := []byte{0x03, 0x02, 0x23, 0x07, 1, 2, 3, 4}
	in := &Output{Bytecode: code, Hash: HashBytecode(code), Includes: []string{"/a/common.wgsl", "/b/brdf.wgsl"}}
	data, err := in.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, 16+4+(4+14)+(4+12)+8+len(code), len(data))

	var out Output
	require.NoError(t, out.UnmarshalBinary(data))
	assert.Equal(t, in, &out)

	again, err := out.MarshalBinary()
	require.NoError(t, err)
	assert.Equal(t, data, again, "encoding is deterministic")
}

func TestOutputCorrupt(t *testing.T) {
	code := []byte{9, 9, 9}
	in := &Output{Bytecode: code, Hash: HashBytecode(code)}
	data, err := in.MarshalBinary()
	require.NoError(t, err)

	var out Output
	assert.ErrorIs(t, out.UnmarshalBinary(data[:len(data)-1]), ErrCacheFormat)

	data[len(data)-1] = 8
	assert.ErrorIs(t, out.UnmarshalBinary(data), ErrCacheFormat)
}
