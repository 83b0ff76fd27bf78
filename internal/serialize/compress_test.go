package serialize

import (
	"bytes"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompressRLEKnownOutput(t *testing.T) {
	var w Writer
	require.NoError(t, Compress(&w, []byte{1, 5, 5, 1}, 0))
	assert.Equal(t, []byte{0, 0, 0, 4, 0, 1, 1, 5, 0, 1}, w.Bytes())

	out, err := Decompress(NewReader(w.Bytes()), 0)
	require.NoError(t, err)
	assert.Equal(t, []byte{1, 5, 5, 1}, out)
}

func TestCompressRLELongRuns(t *testing.T) {
	data := bytes.Repeat([]byte{7}, 600)
	data = append(data, 1, 2, 3)

	var w Writer
	require.NoError(t, Compress(&w, data, 7))
	// 600 = 256 + 256 + 88, затем три одиночных значения
	assert.Equal(t, 4+2*6, w.Len())

	out, err := Decompress(NewReader(w.Bytes()), 7)
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestCompressZstdRoundTrip(t *testing.T) {
	data := make([]byte, 4096)
	for i := range data {
		data[i] = byte(i / 64)
	}

	var w Writer
	require.NoError(t, Compress(&w, data, VersionHighest))
	// Хвост после сжатого потока не должен читаться декодером.
	w.U8(0xAB)

	r := NewReader(w.Bytes())
	out, err := Decompress(r, VersionHighest)
	require.NoError(t, err)
	assert.Equal(t, data, out)
	assert.Equal(t, uint8(0xAB), r.U8())
}

func TestDecompressTruncated(t *testing.T) {
	var w Writer
	require.NoError(t, Compress(&w, []byte{1, 2, 3, 4, 5}, 4))
	b := w.Bytes()

	_, err := Decompress(NewReader(b[:len(b)-1]), 4)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrSerialization))

	w = Writer{}
	require.NoError(t, Compress(&w, []byte{1, 2, 3, 4, 5}, 8))
	b = w.Bytes()
	_, err = Decompress(NewReader(b[:len(b)-2]), 8)
	assert.True(t, errors.Is(err, ErrSerialization))
}

func TestReaderStickyError(t *testing.T) {
	r := NewReader([]byte{0, 1, 2})
	assert.Equal(t, uint16(1), r.U16())
	assert.Equal(t, uint32(0), r.U32())
	assert.Equal(t, uint8(0), r.U8())
	assert.True(t, errors.Is(r.Err(), ErrSerialization))
}

func TestVersionSupport(t *testing.T) {
	for v := VersionLowest; v <= VersionHighest; v++ {
		assert.NoError(t, CheckVersion(v))
	}
	assert.True(t, errors.Is(CheckVersion(VersionHighest+1), ErrVersionMismatch))
	assert.False(t, Compressed(3))
	assert.True(t, Compressed(4))
	assert.False(t, Compressed(5))
	assert.False(t, Compressed(6))
	assert.True(t, Compressed(7))
	assert.True(t, Compressed(8))
}
