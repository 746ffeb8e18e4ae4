package index

import (
	"crypto/sha256"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cloo-solutions/docqa/internal/domain"
)

func TestCodec_RoundTrip(t *testing.T) {
	idx := sampleIndex(t)

	data, err := Encode(idx)
	require.NoError(t, err)

	decoded, err := Decode(data)
	require.NoError(t, err)

	assert.Equal(t, idx.Chunks(), decoded.Chunks())
	assert.Equal(t, idx.Vectors(), decoded.Vectors())
	assert.Equal(t, idx.Metadata(), decoded.Metadata())

	q := []float32{0.3, 0.7, 0.1}
	want, err := idx.Query(q, 3)
	require.NoError(t, err)
	got, err := decoded.Query(q, 3)
	require.NoError(t, err)
	assert.Equal(t, want, got)
}

func TestCodec_Deterministic(t *testing.T) {
	a, err := Encode(sampleIndex(t))
	require.NoError(t, err)
	b, err := Encode(sampleIndex(t))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.Equal(t, Checksum(a), Checksum(b))
}

func TestDecode_Corrupt(t *testing.T) {
	valid, err := Encode(sampleIndex(t))
	require.NoError(t, err)

	mutate := func(f func(b []byte) []byte) []byte {
		cp := append([]byte(nil), valid...)
		return f(cp)
	}

	tests := map[string][]byte{
		"empty":     {},
		"truncated": valid[:headerSize-1],
		"bad magic": mutate(func(b []byte) []byte { b[0] = 'X'; return b }),
		"bad version": mutate(func(b []byte) []byte {
			binary.BigEndian.PutUint16(b[len(magic):], 99)
			return b
		}),
		"payload flipped": mutate(func(b []byte) []byte { b[len(b)-2] ^= 0xff; return b }),
		"payload cut":     valid[:len(valid)-5],
		"trailing bytes":  append(append([]byte(nil), valid...), '!'),
		"random":          []byte("definitely not an index, but long enough to pass the header size check......."),
	}

	for name, data := range tests {
		t.Run(name, func(t *testing.T) {
			_, err := Decode(data)
			require.Error(t, err)
			assert.True(t, errors.Is(err, domain.ErrIndexCorrupt), err.Error())
		})
	}
}

func TestDecode_RejectsUnknownFields(t *testing.T) {
	body := []byte(`{"metadata":{},"dimensions":1,"entries":[{"position":0,"text":"a","page":0,"vector":[1]}],"exec":"rm -rf"}`)
	data := wrap(body)

	_, err := Decode(data)
	assert.True(t, errors.Is(err, domain.ErrIndexCorrupt))
}

func TestDecode_RejectsInconsistentVectors(t *testing.T) {
	body := []byte(`{"metadata":{},"dimensions":2,"entries":[{"position":0,"text":"a","page":0,"vector":[1]}]}`)

	_, err := Decode(wrap(body))
	assert.True(t, errors.Is(err, domain.ErrIndexCorrupt))
}

func TestDecode_RejectsEmptyIndex(t *testing.T) {
	body := []byte(`{"metadata":{},"dimensions":2,"entries":[]}`)

	_, err := Decode(wrap(body))
	assert.True(t, errors.Is(err, domain.ErrIndexCorrupt))
}

// wrap frames a raw payload with a valid header.
func wrap(body []byte) []byte {
	header := make([]byte, headerSize)
	copy(header, magic)
	binary.BigEndian.PutUint16(header[len(magic):], FormatVersion)
	binary.BigEndian.PutUint64(header[len(magic)+4:], uint64(len(body)))
	sum := sha256.Sum256(body)
	copy(header[len(magic)+12:], sum[:])
	return append(header, body...)
}
