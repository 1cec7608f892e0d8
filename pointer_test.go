package mmdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestEncodePointerSizeBoundaries(t *testing.T) {
	tests := []struct {
		offset uint
		length int
	}{
		{0, 2},
		{2047, 2},
		{2048, 3},
		{526335, 3},
		{526336, 4},
		{134744063, 4},
		{134744064, 5},
	}

	for _, tt := range tests {
		b, err := encodePointer(tt.offset)
		require.NoError(t, err)
		require.Lenf(t, b, tt.length, "offset %d", tt.offset)
	}
}

func TestPointerRoundTrip(t *testing.T) {
	offsets := []uint{0, 1, 2047, 2048, 526335, 526336, 134744063, 134744064, 0xFFFFFFFF}
	for _, offset := range offsets {
		b, err := encodePointer(offset)
		require.NoError(t, err)

		got, err := decodePointerBytes(b)
		require.NoError(t, err)
		require.Equal(t, offset, got)
	}
}

func TestEncodePointerOverflow(t *testing.T) {
	_, err := encodePointer(0x100000000)
	require.Error(t, err)
}

func TestDecodePointerBytesRejectsNonPointer(t *testing.T) {
	_, err := decodePointerBytes([]byte{0x40, 0x01})
	require.Error(t, err)
}

func TestDecodePointerBytesRejectsWrongLength(t *testing.T) {
	_, err := decodePointerBytes([]byte{0x20})
	require.Error(t, err)
}
