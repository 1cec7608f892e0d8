package mmdb

import (
	"encoding/binary"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/sbng/mrt2mmdb/internal/decoder"
	"github.com/sbng/mrt2mmdb/internal/mmdberrors"
)

// Encoder turns Values into MMDB data-section bytes. With caching enabled,
// a deep canonical fingerprint of each value is used to detect repeats:
// the first occurrence of a value is written out and a pointer to it is
// handed back; later occurrences are satisfied purely from the pointer
// cache, without writing any more payload bytes.
//
// An Encoder is not safe for concurrent use.
type Encoder struct {
	cache    bool
	buf      []byte
	pointers map[string][]byte
}

// NewEncoder creates an Encoder. When cache is true, repeated sub-values
// are deduplicated into pointer references.
func NewEncoder(cache bool) *Encoder {
	e := &Encoder{cache: cache, buf: make([]byte, 0, 4096)}
	if cache {
		e.pointers = make(map[string][]byte)
	}
	return e
}

// Bytes returns the accumulated data section.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes written to the data section so far.
func (e *Encoder) Len() uint {
	return uint(len(e.buf))
}

// Encode appends the encoded form of v to the data section and returns the
// bytes the caller should store as the reference to v: with caching
// disabled this is the raw encoded bytes just appended; with caching
// enabled it is a pointer, freshly minted on a cache miss or reused from
// an earlier identical value on a cache hit. Encode is for top-level
// values whose reference is stored outside the data section (a search
// tree leaf record); values nested inside a map or array go through
// encodeCached instead, which embeds that reference in place.
func (e *Encoder) Encode(v Value) ([]byte, error) {
	if !e.cache {
		start := uint(len(e.buf))
		if err := e.encodeValue(v); err != nil {
			return nil, err
		}
		return e.buf[start:], nil
	}

	fp := fingerprint(v)
	if ptr, ok := e.pointers[fp]; ok {
		return ptr, nil
	}

	start := uint(len(e.buf))
	if err := e.encodeValue(v); err != nil {
		return nil, err
	}
	ptr, err := encodePointer(start)
	if err != nil {
		return nil, err
	}
	e.pointers[fp] = ptr
	return ptr, nil
}

// EncodeMeta encodes a metadata map, forcing the integer widths the format
// requires for well-known metadata keys regardless of the magnitude of the
// value (node_count and the *_version fields are uint32/uint16; build_epoch
// is uint64, even when small enough to fit a narrower width).
func (e *Encoder) EncodeMeta(m map[string]Value) ([]byte, error) {
	fixed := make(Map, len(m))
	for k, v := range m {
		fixed[k] = forceMetaWidth(k, v)
	}
	start := uint(len(e.buf))
	if err := e.encodeValue(fixed); err != nil {
		return nil, err
	}
	return e.buf[start:], nil
}

func forceMetaWidth(key string, v Value) Value {
	switch key {
	case "node_count", "ip_version", "binary_format_major_version", "binary_format_minor_version", "record_size":
		switch t := v.(type) {
		case Uint16:
			if key == "node_count" {
				return Uint32(t)
			}
			return t
		case Uint32:
			if key == "node_count" {
				return t
			}
			return Uint16(t)
		case Int32:
			if key == "node_count" {
				return Uint32(t)
			}
			return Uint16(t)
		}
	case "build_epoch":
		switch t := v.(type) {
		case Uint16:
			return Uint64(t)
		case Uint32:
			return Uint64(t)
		case Int32:
			return Uint64(t)
		}
	}
	return v
}

// AutoInt picks the narrowest representable integer Value for n: smallest
// unsigned width that fits non-negative values, Int32 for negatives.
func AutoInt(n int64) Value {
	if n < 0 {
		return Int32(n)
	}
	switch {
	case n <= math.MaxUint16:
		return Uint16(n)
	case n <= math.MaxUint32:
		return Uint32(n)
	default:
		return Uint64(n)
	}
}

func (e *Encoder) encodeValue(v Value) error {
	switch t := v.(type) {
	case Map:
		return e.encodeMap(t)
	case Array:
		return e.encodeArray(t)
	case String:
		return e.encodeLengthPrefixed(decoder.KindString, []byte(t))
	case Bytes:
		return e.encodeLengthPrefixed(decoder.KindBytes, []byte(t))
	case Uint16:
		return e.encodeUint(decoder.KindUint16, uint64(t), 2)
	case Uint32:
		return e.encodeUint(decoder.KindUint32, uint64(t), 4)
	case Uint64:
		return e.encodeUint(decoder.KindUint64, uint64(t), 8)
	case Uint128:
		return e.encodeUint128(t)
	case Int32:
		return e.encodeInt32(t)
	case Double:
		return e.encodeDouble(t)
	case Float:
		return e.encodeFloat(t)
	case Bool:
		return e.encodeBool(t)
	default:
		return mmdberrors.NewInvalidDatabaseError("unencodable value of type %T", v)
	}
}

func (e *Encoder) encodeMap(m Map) error {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	if err := e.writeCtrl(decoder.KindMap, uint(len(keys))); err != nil {
		return err
	}
	for _, k := range keys {
		if err := e.encodeCached(String(k)); err != nil {
			return err
		}
		if err := e.encodeCached(m[k]); err != nil {
			return err
		}
	}
	return nil
}

func (e *Encoder) encodeArray(a Array) error {
	if err := e.writeCtrl(decoder.KindSlice, uint(len(a))); err != nil {
		return err
	}
	for _, elem := range a {
		if err := e.encodeCached(elem); err != nil {
			return err
		}
	}
	return nil
}

// encodeCached writes v in place at the current buffer tail, consulting
// the pointer cache first: a repeat of an earlier value embeds a pointer
// to that earlier location instead of re-encoding v. Every key and value
// nested inside a map or array goes through here, not just top-level
// Encode calls, so a sub-value repeated across otherwise-distinct records
// (an ASN organization string shared by many prefixes, say) still
// coalesces into a single data-section entry.
func (e *Encoder) encodeCached(v Value) error {
	if !e.cache {
		return e.encodeValue(v)
	}

	fp := fingerprint(v)
	if ptr, ok := e.pointers[fp]; ok {
		e.buf = append(e.buf, ptr...)
		return nil
	}

	start := uint(len(e.buf))
	if err := e.encodeValue(v); err != nil {
		return err
	}
	ptr, err := encodePointer(start)
	if err != nil {
		return err
	}
	e.pointers[fp] = ptr
	return nil
}

func (e *Encoder) encodeLengthPrefixed(kind decoder.Kind, data []byte) error {
	if err := e.writeCtrl(kind, uint(len(data))); err != nil {
		return err
	}
	e.buf = append(e.buf, data...)
	return nil
}

// encodeUint writes val as a minimal-length big-endian integer: leading
// zero bytes are stripped, and a zero value encodes as a zero-length
// payload, per the wire format's uint encoding rule.
func (e *Encoder) encodeUint(kind decoder.Kind, val uint64, maxWidth int) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], val)
	trimmed := buf[8-maxWidth:]
	i := 0
	for i < len(trimmed) && trimmed[i] == 0 {
		i++
	}
	return e.encodeLengthPrefixed(kind, trimmed[i:])
}

func (e *Encoder) encodeUint128(t Uint128) error {
	if t.Int == nil {
		return e.encodeLengthPrefixed(decoder.KindUint128, nil)
	}
	if t.Int.Sign() < 0 {
		return mmdberrors.NewEncodeOverflowError("uint128 value is negative")
	}
	b := t.Int.Bytes()
	if len(b) > 16 {
		return mmdberrors.NewEncodeOverflowError("uint128 value exceeds 128 bits")
	}
	return e.encodeLengthPrefixed(decoder.KindUint128, b)
}

func (e *Encoder) encodeInt32(t Int32) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], uint32(t))
	return e.encodeLengthPrefixed(decoder.KindInt32, buf[:])
}

func (e *Encoder) encodeDouble(t Double) error {
	var buf [8]byte
	binary.BigEndian.PutUint64(buf[:], math.Float64bits(float64(t)))
	return e.encodeLengthPrefixed(decoder.KindFloat64, buf[:])
}

func (e *Encoder) encodeFloat(t Float) error {
	var buf [4]byte
	binary.BigEndian.PutUint32(buf[:], math.Float32bits(float32(t)))
	return e.encodeLengthPrefixed(decoder.KindFloat32, buf[:])
}

func (e *Encoder) encodeBool(t Bool) error {
	size := uint(0)
	if t {
		size = 1
	}
	return e.writeCtrl(decoder.KindBool, size)
}

// writeCtrl writes the control byte (and extended-type byte, and any
// length-extension bytes) for kind and length, per the five-bit length
// field with extensions described in the wire format.
func (e *Encoder) writeCtrl(kind decoder.Kind, length uint) error {
	if length >= maxValueLength {
		return mmdberrors.NewEncodeOverflowError(
			"value length %d exceeds format maximum", length,
		)
	}

	typeID := uint(kind)
	var ctrl byte
	var extType byte
	extended := typeID > 7
	if extended {
		extType = byte(typeID - 7)
	} else {
		ctrl = byte(typeID << 5)
	}

	switch {
	case length < 29:
		ctrl |= byte(length)
		e.buf = append(e.buf, ctrl)
		if extended {
			e.buf = append(e.buf, extType)
		}
	case length < 285:
		ctrl |= 29
		e.buf = append(e.buf, ctrl)
		if extended {
			e.buf = append(e.buf, extType)
		}
		e.buf = append(e.buf, byte(length-29))
	case length < 65821:
		ctrl |= 30
		e.buf = append(e.buf, ctrl)
		if extended {
			e.buf = append(e.buf, extType)
		}
		v := length - 285
		e.buf = append(e.buf, byte(v>>8), byte(v))
	default:
		ctrl |= 31
		e.buf = append(e.buf, ctrl)
		if extended {
			e.buf = append(e.buf, extType)
		}
		v := length - 65821
		e.buf = append(e.buf, byte(v>>16), byte(v>>8), byte(v))
	}
	return nil
}

// fingerprint builds a canonical string for v suitable for pointer-cache
// lookups. Map keys are sorted here regardless of any wire-order
// consideration, so that two maps built in different insertion orders but
// with identical contents coalesce into one data-section entry.
func fingerprint(v Value) string {
	var b strings.Builder
	writeFingerprint(&b, v)
	return b.String()
}

func writeFingerprint(b *strings.Builder, v Value) {
	switch t := v.(type) {
	case Map:
		keys := make([]string, 0, len(t))
		for k := range t {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString("M{")
		for _, k := range keys {
			b.WriteString(strconv.Itoa(len(k)))
			b.WriteByte(':')
			b.WriteString(k)
			b.WriteByte('=')
			writeFingerprint(b, t[k])
			b.WriteByte(';')
		}
		b.WriteByte('}')
	case Array:
		b.WriteString("A[")
		for _, elem := range t {
			writeFingerprint(b, elem)
			b.WriteByte(',')
		}
		b.WriteByte(']')
	case String:
		b.WriteString("s:")
		b.WriteString(strconv.Itoa(len(t)))
		b.WriteByte(':')
		b.WriteString(string(t))
	case Bytes:
		b.WriteString("b:")
		b.WriteString(strconv.Itoa(len(t)))
		b.WriteByte(':')
		b.Write(t)
	case Uint16:
		b.WriteString("u16:")
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case Uint32:
		b.WriteString("u32:")
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case Uint64:
		b.WriteString("u64:")
		b.WriteString(strconv.FormatUint(uint64(t), 10))
	case Uint128:
		b.WriteString("u128:")
		if t.Int != nil {
			b.WriteString(t.Int.String())
		} else {
			b.WriteString("0")
		}
	case Int32:
		b.WriteString("i32:")
		b.WriteString(strconv.FormatInt(int64(t), 10))
	case Double:
		b.WriteString("f64:")
		b.WriteString(strconv.FormatFloat(float64(t), 'x', -1, 64))
	case Float:
		b.WriteString("f32:")
		b.WriteString(strconv.FormatFloat(float64(t), 'x', -1, 32))
	case Bool:
		b.WriteString("bo:")
		b.WriteString(strconv.FormatBool(bool(t)))
	}
}
