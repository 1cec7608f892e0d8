package mmdb

import (
	"github.com/sbng/mrt2mmdb/cache"
	"github.com/sbng/mrt2mmdb/internal/decoder"
	"github.com/sbng/mrt2mmdb/internal/mmdberrors"
)

// decodeValue recursively decodes the Value located at offset in d's
// buffer, interning strings through c when non-nil.
func decodeValue(d *decoder.DataDecoder, offset uint, c cache.Cache, depth int) (Value, uint, error) {
	if depth > decoder.MaximumDataStructureDepth {
		return nil, 0, mmdberrors.NewInvalidDatabaseError(
			"exceeded maximum data structure depth; database is likely corrupt",
		)
	}

	kind, size, dataOffset, err := d.DecodeCtrlData(offset)
	if err != nil {
		return nil, 0, err
	}

	switch kind {
	case decoder.KindPointer:
		pointer, newOffset, err := d.DecodePointer(size, dataOffset)
		if err != nil {
			return nil, 0, err
		}
		val, _, err := decodeValue(d, pointer, c, depth+1)
		return val, newOffset, err

	case decoder.KindMap:
		m := make(Map, size)
		next := dataOffset
		for range size {
			key, keyOffset, err := decodeMapKey(d, next, c)
			if err != nil {
				return nil, 0, err
			}
			val, valOffset, err := decodeValue(d, keyOffset, c, depth+1)
			if err != nil {
				return nil, 0, err
			}
			m[key] = val
			next = valOffset
		}
		return m, next, nil

	case decoder.KindSlice:
		arr := make(Array, 0, size)
		next := dataOffset
		for range size {
			val, valOffset, err := decodeValue(d, next, c, depth+1)
			if err != nil {
				return nil, 0, err
			}
			arr = append(arr, val)
			next = valOffset
		}
		return arr, next, nil

	case decoder.KindString:
		s, newOffset, err := decodeInternedString(d, size, dataOffset, c)
		return String(s), newOffset, err

	case decoder.KindBytes:
		b, newOffset, err := d.DecodeBytes(size, dataOffset)
		return Bytes(b), newOffset, err

	case decoder.KindUint16:
		v, newOffset, err := d.DecodeUint16(size, dataOffset)
		return Uint16(v), newOffset, err

	case decoder.KindUint32:
		v, newOffset, err := d.DecodeUint32(size, dataOffset)
		return Uint32(v), newOffset, err

	case decoder.KindUint64:
		v, newOffset, err := d.DecodeUint64(size, dataOffset)
		return Uint64(v), newOffset, err

	case decoder.KindUint128:
		v, newOffset, err := d.DecodeUint128(size, dataOffset)
		return NewUint128(v), newOffset, err

	case decoder.KindInt32:
		v, newOffset, err := d.DecodeInt32(size, dataOffset)
		return Int32(v), newOffset, err

	case decoder.KindFloat64:
		v, newOffset, err := d.DecodeFloat64(size, dataOffset)
		return Double(v), newOffset, err

	case decoder.KindFloat32:
		v, newOffset, err := d.DecodeFloat32(size, dataOffset)
		return Float(v), newOffset, err

	case decoder.KindBool:
		v, newOffset, err := d.DecodeBool(size, dataOffset)
		return Bool(v), newOffset, err

	default:
		return nil, 0, mmdberrors.NewInvalidDatabaseError("unknown type: %v", kind)
	}
}

// decodeMapKey decodes one map key, following a pointer if the key was
// cached as a pointer to a previously-written string.
func decodeMapKey(d *decoder.DataDecoder, offset uint, c cache.Cache) (string, uint, error) {
	kind, size, dataOffset, err := d.DecodeCtrlData(offset)
	if err != nil {
		return "", 0, err
	}
	if kind == decoder.KindPointer {
		pointer, newOffset, err := d.DecodePointer(size, dataOffset)
		if err != nil {
			return "", 0, err
		}
		key, _, err := decodeMapKey(d, pointer, c)
		return key, newOffset, err
	}
	if kind != decoder.KindString {
		return "", 0, mmdberrors.NewInvalidDatabaseError(
			"unexpected type when decoding map key: %v", kind,
		)
	}
	return decodeInternedString(d, size, dataOffset, c)
}

func decodeInternedString(d *decoder.DataDecoder, size, offset uint, c cache.Cache) (string, uint, error) {
	newOffset := offset + size
	if newOffset > uint(len(d.Buffer())) {
		return "", 0, mmdberrors.NewOffsetError()
	}
	if c == nil {
		s, next, err := d.DecodeString(size, offset)
		return s, next, err
	}
	return c.InternAt(offset, size, d.Buffer()), newOffset, nil
}
