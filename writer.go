package mmdb

import (
	"bufio"
	"io"
	"net/netip"

	"github.com/pkg/errors"

	"github.com/sbng/mrt2mmdb/internal/mmdberrors"
)

var dataSectionSeparator = make([]byte, dataSectionSeparatorSize)

// Options configures a Tree. NewTree replaces a zero IPVersion or
// RecordSize with the default documented on that field; the other fields
// are used as given. DefaultOptions returns the reference writer's
// persisted defaults.
type Options struct {
	// BuildEpoch is the database build timestamp as a Unix epoch value.
	// Defaults to 0; callers building reproducible output should set it
	// explicitly rather than rely on wall-clock time.
	BuildEpoch int64

	// DatabaseType indicates the structure of each data record.
	DatabaseType string

	// Description maps language code to database description.
	Description map[string]string

	// IPVersion is 4 or 6. Defaults to 6.
	IPVersion int

	// Languages lists locale codes the database may localize into.
	Languages []string

	// RecordSize is 24, 28 or 32 bits. Defaults to 28.
	RecordSize int

	// IPv4Compatible shifts inserted IPv4 prefixes into ::ffff:0:0/96 of
	// an IPv6 tree. Only meaningful when IPVersion is 6. DefaultOptions sets
	// it to true; left at false, inserting an IPv4 prefix into an IPv6 tree
	// fails with UnsupportedPrefixError.
	IPv4Compatible bool
}

// Tree is a binary radix trie over IP prefixes, staged in memory until
// Finalize and WriteTo serialize it to the MMDB wire format.
//
// A Tree is not safe for concurrent use.
type Tree struct {
	opts       Options
	treeDepth  int
	root       *node
	nodeCount  uint
}

type node struct {
	children [2]*node
	value    *Value
	nodeNum  uint
}

func (n *node) isLeaf() bool {
	return n.children[0] == nil && n.children[1] == nil
}

// DefaultOptions returns the persisted writer defaults: a 28-bit-record
// IPv6 tree with IPv4 prefixes shifted into ::ffff:0:0/96.
func DefaultOptions() Options {
	return Options{
		IPVersion:      6,
		RecordSize:     28,
		IPv4Compatible: true,
	}
}

// NewTree creates a Tree ready for Insert calls.
func NewTree(opts Options) (*Tree, error) {
	if opts.IPVersion == 0 {
		opts.IPVersion = 6
	}
	if opts.RecordSize == 0 {
		opts.RecordSize = 28
	}
	if opts.RecordSize != 24 && opts.RecordSize != 28 && opts.RecordSize != 32 {
		return nil, errors.Errorf("unsupported record size: %d", opts.RecordSize)
	}
	depth := 32
	switch opts.IPVersion {
	case 6:
		depth = 128
	case 4:
		depth = 32
	default:
		return nil, errors.Errorf("unsupported IPVersion: %d", opts.IPVersion)
	}

	return &Tree{
		opts:      opts,
		treeDepth: depth,
		root:      &node{},
	}, nil
}

// Insert stores value at prefix. The caller is responsible for inserting
// from most-specific to least-specific prefix: insertion only fills
// previously-empty leaves under the prefix's subtree, so a later, broader
// insert never clobbers an earlier, narrower one.
func (t *Tree) Insert(prefix netip.Prefix, value Value) error {
	ip, bits, err := t.normalize(prefix)
	if err != nil {
		return err
	}
	if bits == 0 {
		return errors.New("cannot insert a value into the root node of the tree")
	}
	t.nodeCount = 0 // invalidates any prior Finalize
	fillToDepth(t.root, ip, bits, 0, value)
	return nil
}

func (t *Tree) normalize(prefix netip.Prefix) ([16]byte, int, error) {
	addr := prefix.Addr()
	bits := prefix.Bits()

	if t.treeDepth == 32 {
		if !addr.Is4() {
			return [16]byte{}, 0, mmdberrors.NewUnsupportedPrefixError(prefix.String())
		}
		var ip [16]byte
		a4 := addr.As4()
		copy(ip[:4], a4[:])
		return ip, bits, nil
	}

	// treeDepth == 128
	if addr.Is4() {
		if !t.opts.IPv4Compatible {
			return [16]byte{}, 0, mmdberrors.NewUnsupportedPrefixError(prefix.String())
		}
		var ip [16]byte
		ip[10], ip[11] = 0xff, 0xff
		a4 := addr.As4()
		copy(ip[12:], a4[:])
		return ip, bits + 96, nil
	}
	return addr.As16(), bits, nil
}

// fillToDepth descends to the subtree root at prefixLen bits, splitting
// leaves into children as needed, then fills only the empty leaves beneath
// it with value.
func fillToDepth(n *node, ip [16]byte, prefixLen, depth int, value Value) {
	if depth == prefixLen {
		fillEmptyLeaves(n, value)
		return
	}
	bit := bitAt(ip, depth)
	if n.isLeaf() {
		left := node{value: clonePtr(n.value)}
		right := node{value: clonePtr(n.value)}
		n.children[0] = &left
		n.children[1] = &right
		n.value = nil
	}
	fillToDepth(n.children[bit], ip, prefixLen, depth+1, value)
}

func fillEmptyLeaves(n *node, value Value) {
	if n.isLeaf() {
		if n.value == nil {
			v := value
			n.value = &v
		}
		return
	}
	fillEmptyLeaves(n.children[0], value)
	fillEmptyLeaves(n.children[1], value)
}

func clonePtr(v *Value) *Value {
	if v == nil {
		return nil
	}
	cp := *v
	return &cp
}

func bitAt(ip [16]byte, depth int) uint {
	byteIdx := depth >> 3
	bitPos := 7 - (depth & 7)
	return uint(ip[byteIdx]>>bitPos) & 1
}

// Finalize assigns sequential indices to internal nodes in depth-first
// order, fixing node_count. Finalize must be called, and Insert must not be
// called again, before WriteTo.
func (t *Tree) Finalize() {
	t.nodeCount = assignIndices(t.root, 0)
}

func assignIndices(n *node, next uint) uint {
	if n.isLeaf() {
		return next
	}
	n.nodeNum = next
	next++
	next = assignIndices(n.children[0], next)
	next = assignIndices(n.children[1], next)
	return next
}

// WriteTo serializes the finalized tree, data section and metadata to w.
func (t *Tree) WriteTo(w io.Writer) (int64, error) {
	if t.nodeCount == 0 {
		return 0, errors.New("the Tree is not finalized; call Finalize before WriteTo")
	}

	buf := bufio.NewWriter(w)
	recordBuf := make([]byte, 2*t.opts.RecordSize/8)
	dataEncoder := NewEncoder(true)

	written, numBytes, err := t.writeNode(buf, t.root, dataEncoder, recordBuf)
	if err != nil {
		_ = buf.Flush()
		return numBytes, err
	}
	if written != t.nodeCount {
		_ = buf.Flush()
		return numBytes, errors.Errorf(
			"nodes written (%d) does not match node_count (%d)", written, t.nodeCount,
		)
	}

	nb, err := buf.Write(dataSectionSeparator)
	numBytes += int64(nb)
	if err != nil {
		_ = buf.Flush()
		return numBytes, errors.Wrap(err, "error writing data section separator")
	}

	nb, err = buf.Write(dataEncoder.Bytes())
	numBytes += int64(nb)
	if err != nil {
		_ = buf.Flush()
		return numBytes, errors.Wrap(err, "error writing data section")
	}

	nb, err = buf.Write(metadataStartMarker)
	numBytes += int64(nb)
	if err != nil {
		_ = buf.Flush()
		return numBytes, errors.Wrap(err, "error writing metadata start marker")
	}

	metaEncoder := NewEncoder(false)
	metaBytes, err := metaEncoder.EncodeMeta(t.metadataValue())
	if err != nil {
		_ = buf.Flush()
		return numBytes, errors.Wrap(err, "error encoding metadata")
	}
	nb, err = buf.Write(metaBytes)
	numBytes += int64(nb)
	if err != nil {
		_ = buf.Flush()
		return numBytes, errors.Wrap(err, "error writing metadata")
	}

	if err := buf.Flush(); err != nil {
		return numBytes, errors.Wrap(err, "error flushing buffer")
	}
	return numBytes, nil
}

func (t *Tree) metadataValue() map[string]Value {
	meta := Metadata{
		NodeCount:                t.nodeCount,
		RecordSize:               uint(t.opts.RecordSize),
		IPVersion:                uint(t.opts.IPVersion),
		BinaryFormatMajorVersion: 2,
		BinaryFormatMinorVersion: 0,
		BuildEpoch:               uint64(t.opts.BuildEpoch),
		DatabaseType:             t.opts.DatabaseType,
		Languages:                t.opts.Languages,
		Description:              t.opts.Description,
	}
	m := meta.toValue()
	out := make(map[string]Value, len(m))
	for k, v := range m {
		out[k] = v
	}
	return out
}

func (t *Tree) writeNode(
	w io.Writer,
	n *node,
	dataEncoder *Encoder,
	recordBuf []byte,
) (uint, int64, error) {
	if n.isLeaf() {
		return 0, 0, nil
	}

	if err := t.copyRecord(recordBuf, n.children, dataEncoder); err != nil {
		return 0, 0, err
	}

	nb, err := w.Write(recordBuf)
	numBytes := int64(nb)
	written := uint(1)
	if err != nil {
		return written, numBytes, errors.Wrap(err, "error writing node")
	}

	leftWritten, leftBytes, err := t.writeNode(w, n.children[0], dataEncoder, recordBuf)
	written += leftWritten
	numBytes += leftBytes
	if err != nil {
		return written, numBytes, err
	}

	rightWritten, rightBytes, err := t.writeNode(w, n.children[1], dataEncoder, recordBuf)
	written += rightWritten
	numBytes += rightBytes
	return written, numBytes, err
}

func (t *Tree) recordValueForChild(n *node, dataEncoder *Encoder) (uint, error) {
	if n.isLeaf() {
		if n.value == nil {
			return t.nodeCount, nil
		}
		ptrBytes, err := dataEncoder.Encode(*n.value)
		if err != nil {
			return 0, err
		}
		offset, err := decodePointerBytes(ptrBytes)
		if err != nil {
			return 0, err
		}
		return t.nodeCount + dataSectionSeparatorSize + offset, nil
	}
	return n.nodeNum, nil
}

func (t *Tree) copyRecord(buf []byte, children [2]*node, dataEncoder *Encoder) error {
	left, err := t.recordValueForChild(children[0], dataEncoder)
	if err != nil {
		return err
	}
	right, err := t.recordValueForChild(children[1], dataEncoder)
	if err != nil {
		return err
	}

	maxValue := uint(1) << uint(t.opts.RecordSize)
	if left >= maxValue || right >= maxValue {
		return mmdberrors.NewEncodeOverflowError(
			"record value exceeds record_size of %d bits", t.opts.RecordSize,
		)
	}

	switch t.opts.RecordSize {
	case 24:
		buf[0] = byte(left >> 16)
		buf[1] = byte(left >> 8)
		buf[2] = byte(left)
		buf[3] = byte(right >> 16)
		buf[4] = byte(right >> 8)
		buf[5] = byte(right)
	case 28:
		buf[0] = byte(left >> 16)
		buf[1] = byte(left >> 8)
		buf[2] = byte(left)
		buf[3] = byte((((left >> 24) & 0x0F) << 4) | ((right >> 24) & 0x0F))
		buf[4] = byte(right >> 16)
		buf[5] = byte(right >> 8)
		buf[6] = byte(right)
	case 32:
		buf[0] = byte(left >> 24)
		buf[1] = byte(left >> 16)
		buf[2] = byte(left >> 8)
		buf[3] = byte(left)
		buf[4] = byte(right >> 24)
		buf[5] = byte(right >> 16)
		buf[6] = byte(right >> 8)
		buf[7] = byte(right)
	default:
		return errors.Errorf("unsupported record size of %d", t.opts.RecordSize)
	}
	return nil
}
