package mmdb

import "github.com/sbng/mrt2mmdb/internal/mmdberrors"

// Pointer size-class thresholds, shared by the encoder (which emits
// pointers) and the trimmer (which must invert them back to a raw
// data-section offset). Single-sourced here per the authoritative form of
// the pointer-emit rules: the source this was ported from carried several
// inconsistent copies of this arithmetic.
const (
	pointerThreshold1 = 2048
	pointerThreshold2 = 526336
	pointerThreshold3 = 134744064
	maxValueLength     = 16843036 // length field ceiling; see spec §4.A
)

// encodePointer returns the control-byte-prefixed wire bytes for a pointer
// to data-section offset p.
func encodePointer(p uint) ([]byte, error) {
	switch {
	case p < pointerThreshold1:
		return []byte{
			0x20 | byte((p>>8)&0x07),
			byte(p & 0xFF),
		}, nil
	case p < pointerThreshold2:
		v := p - pointerThreshold1
		return []byte{
			0x28 | byte((v>>16)&0x07),
			byte((v >> 8) & 0xFF),
			byte(v & 0xFF),
		}, nil
	case p < pointerThreshold3:
		v := p - pointerThreshold2
		return []byte{
			0x30 | byte((v>>24)&0x07),
			byte((v >> 16) & 0xFF),
			byte((v >> 8) & 0xFF),
			byte(v & 0xFF),
		}, nil
	case p <= 0xFFFFFFFF:
		return []byte{
			0x38,
			byte((p >> 24) & 0xFF),
			byte((p >> 16) & 0xFF),
			byte((p >> 8) & 0xFF),
			byte(p & 0xFF),
		}, nil
	default:
		return nil, mmdberrors.NewInvalidPointerError(p)
	}
}

// decodePointerBytes inverts encodePointer: given the full wire bytes of a
// pointer value (control byte included), it returns the data-section
// offset the pointer targets.
func decodePointerBytes(b []byte) (uint, error) {
	if len(b) == 0 {
		return 0, mmdberrors.NewInvalidDatabaseError("empty pointer")
	}
	ctrl := b[0]
	if ctrl>>5 != 1 {
		return 0, mmdberrors.NewInvalidDatabaseError("not a pointer control byte: %#x", ctrl)
	}
	size := ctrl & 0x1F
	pointerSize := ((size >> 3) & 0x3) + 1
	if uint(len(b)) != uint(pointerSize)+1 {
		return 0, mmdberrors.NewInvalidDatabaseError(
			"pointer length mismatch: got %d bytes, want %d", len(b), pointerSize+1,
		)
	}

	var prefix uint
	if pointerSize != 4 {
		prefix = uint(size & 0x7)
	}

	unpacked := prefix
	for _, bb := range b[1:] {
		unpacked = (unpacked << 8) | uint(bb)
	}

	var valueOffset uint
	switch pointerSize {
	case 1:
		valueOffset = 0
	case 2:
		valueOffset = pointerThreshold1
	case 3:
		valueOffset = pointerThreshold2
	case 4:
		valueOffset = 0
	}

	return unpacked + valueOffset, nil
}
