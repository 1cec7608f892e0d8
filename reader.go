// Package mmdb reads, writes and trims MaxMind DB ("MMDB") files: the
// binary-search-tree-over-IP-prefixes format used by GeoIP2/GeoLite2 and
// compatible databases.
//
// # Basic usage
//
//	db, err := mmdb.Open("GeoLite2-City.mmdb")
//	if err != nil {
//		log.Fatal(err)
//	}
//	defer db.Close()
//
//	ip := netip.MustParseAddr("81.2.69.142")
//	value, ok, err := db.Get(ip)
//	if err != nil {
//		log.Fatal(err)
//	}
//
// # Thread safety
//
// Get is safe for concurrent use once Open or FromBytes has returned: the
// backing buffer is read-only for the lifetime of the Reader. Networks
// stores its stopping error on the Reader for NetworksErr, so concurrent
// Networks iterations on one Reader are not safe, and Close must not run
// concurrently with any other method.
package mmdb

import (
	"bytes"
	"errors"
	"io"
	"iter"
	"net/netip"
	"os"

	"github.com/edsrzf/mmap-go"

	"github.com/sbng/mrt2mmdb/cache"
	"github.com/sbng/mrt2mmdb/internal/decoder"
	"github.com/sbng/mrt2mmdb/internal/mmdberrors"
)

const dataSectionSeparatorSize = 16

// metadataSearchWindow bounds how far from the end of the file the metadata
// magic is searched for, matching the reference implementation's backward
// scan rather than a full-file search.
const metadataSearchWindow = 128 * 1024

var metadataStartMarker = []byte("\xAB\xCD\xEFMaxMind.com")

// Reader holds a parsed MMDB file: its metadata and the bytes needed to
// walk the search tree and decode data-section values.
type Reader struct {
	buffer            []byte
	mapping           mmap.MMap
	Metadata          Metadata
	dataStart         uint
	dataEnd           uint
	ipv4Start         uint
	ipv4StartBitDepth int
	cacheProvider     cache.Provider
	lastNetworksErr   error
}

// Open memory-maps file and parses it as an MMDB. If mapping fails (for
// example on a filesystem without mmap support), the file is read into
// memory in full instead.
func Open(file string) (*Reader, error) {
	f, err := os.Open(file)
	if err != nil {
		return nil, err
	}
	defer f.Close() //nolint:errcheck // best-effort close of the fd, mapping owns the data now

	stat, err := f.Stat()
	if err != nil {
		return nil, err
	}
	if stat.Size() == 0 {
		return nil, errors.New("mmdb: file is empty")
	}

	m, err := mmap.Map(f, mmap.RDONLY, 0)
	if err != nil {
		data, ferr := io.ReadAll(f)
		if ferr != nil {
			return nil, ferr
		}
		r, perr := FromBytes(data)
		if perr != nil {
			return nil, perr
		}
		return r, nil
	}

	r, err := FromBytes(m)
	if err != nil {
		_ = m.Unmap()
		return nil, err
	}
	r.mapping = m
	return r, nil
}

// Close releases the memory mapping backing the Reader, if any.
func (r *Reader) Close() error {
	var err error
	if r.mapping != nil {
		err = r.mapping.Unmap()
		r.mapping = nil
	}
	r.buffer = nil
	return err
}

// FromBytes parses buffer as an MMDB file already resident in memory.
func FromBytes(buffer []byte) (*Reader, error) {
	searchFrom := 0
	if len(buffer) > metadataSearchWindow {
		searchFrom = len(buffer) - metadataSearchWindow
	}
	idx := bytes.LastIndex(buffer[searchFrom:], metadataStartMarker)
	if idx == -1 {
		return nil, mmdberrors.NewInvalidDatabaseError(
			"error opening database: invalid MaxMind DB file",
		)
	}
	metadataStart := searchFrom + idx + len(metadataStartMarker)

	metaDecoder := decoder.NewDataDecoder(buffer[metadataStart:])
	metaValue, _, err := decodeValue(&metaDecoder, 0, nil, 0)
	if err != nil {
		return nil, err
	}
	metadata, err := metadataFromValue(metaValue)
	if err != nil {
		return nil, err
	}

	treeSize := metadata.treeSize()
	dataStart := treeSize + dataSectionSeparatorSize
	dataEnd := uint(metadataStart - len(metadataStartMarker))
	if dataStart > dataEnd {
		return nil, mmdberrors.NewInvalidDatabaseError("the MaxMind DB contains invalid metadata")
	}

	r := &Reader{
		buffer:        buffer,
		Metadata:      metadata,
		dataStart:     dataStart,
		dataEnd:       dataEnd,
		cacheProvider: cache.NewSharedProvider(cache.DefaultOptions()),
	}
	r.setIPv4Start()
	return r, nil
}

// Get returns the value associated with ip, and whether a non-empty record
// was found.
func (r *Reader) Get(ip netip.Addr) (Value, bool, error) {
	if r.buffer == nil {
		return nil, false, errors.New("mmdb: cannot call Get on a closed database")
	}

	node, _, err := r.lookupPointer(ip)
	if err != nil {
		return nil, false, err
	}
	if node == 0 {
		return nil, false, nil
	}

	offset, err := r.resolveDataOffset(node)
	if err != nil {
		return nil, false, err
	}

	d := r.dataSectionDecoder()
	c := r.cacheProvider.Acquire()
	defer r.cacheProvider.Release(c)
	val, _, err := decodeValue(&d, offset, c, 0)
	return val, err == nil, err
}

func (r *Reader) dataSectionDecoder() decoder.DataDecoder {
	return decoder.NewDataDecoder(r.buffer[r.dataStart:r.dataEnd])
}

func (r *Reader) lookupPointer(ip netip.Addr) (uint, int, error) {
	if r.Metadata.IPVersion == 4 && ip.Is6() {
		return 0, 0, mmdberrors.NewInvalidDatabaseError(
			"you attempted to look up an IPv6 address in an IPv4-only database",
		)
	}

	node, prefixLen := r.traverseTree(ip, 0, 128)
	nodeCount := r.Metadata.NodeCount
	switch {
	case node == nodeCount:
		return 0, prefixLen, nil
	case node > nodeCount:
		return node, prefixLen, nil
	default:
		return 0, 0, mmdberrors.NewInvalidDatabaseError("invalid node in search tree")
	}
}

// ipv4MappedPrefix is the first 96 bits of ::ffff:0:0/96, the subtree
// IPv4 addresses are embedded under.
var ipv4MappedPrefix = [12]byte{0, 0, 0, 0, 0, 0, 0, 0, 0, 0, 0xff, 0xff}

func (r *Reader) setIPv4Start() {
	if r.Metadata.IPVersion != 6 {
		// An IPv4 tree is walked over the last 32 bits of the address's
		// 16-byte form, starting at the root.
		r.ipv4StartBitDepth = 96
		return
	}
	nodeCount := r.Metadata.NodeCount
	node := uint(0)
	i := 0
	for ; i < 96 && node < nodeCount; i++ {
		byteIdx := i >> 3
		bitPos := 7 - (i & 7)
		bit := uint(ipv4MappedPrefix[byteIdx]>>bitPos) & 1
		node = r.readNode(node, bit)
	}
	r.ipv4Start = node
	r.ipv4StartBitDepth = i
}

// readNode reads one side (0=left, 1=right) of the node at the given node
// index, honoring the record-size-specific bit packing rules. For 28-bit
// records the two records of a node share one middle byte: its high nibble
// holds the left record's top bits, its low nibble the right record's.
func (r *Reader) readNode(node, bit uint) uint {
	buffer := r.buffer
	switch r.Metadata.RecordSize {
	case 24:
		offset := node*6 + bit*3
		return (uint(buffer[offset]) << 16) | (uint(buffer[offset+1]) << 8) | uint(buffer[offset+2])
	case 28:
		base := node * 7
		shared := uint(buffer[base+3])
		var high uint
		if bit == 0 {
			high = (shared & 0xF0) << 20
		} else {
			high = (shared & 0x0F) << 24
		}
		offset := base + bit*4
		return high | (uint(buffer[offset]) << 16) | (uint(buffer[offset+1]) << 8) | uint(buffer[offset+2])
	case 32:
		offset := node*8 + bit*4
		return (uint(buffer[offset]) << 24) | (uint(buffer[offset+1]) << 16) |
			(uint(buffer[offset+2]) << 8) | uint(buffer[offset+3])
	default:
		return 0
	}
}

func (r *Reader) traverseTree(ip netip.Addr, node uint, stopBit int) (uint, int) {
	i := 0
	if ip.Is4() || ip.Is4In6() {
		i = r.ipv4StartBitDepth
		node = r.ipv4Start
	}
	nodeCount := r.Metadata.NodeCount
	ip16 := ip.As16()

	for ; i < stopBit && node < nodeCount; i++ {
		byteIdx := i >> 3
		bitPos := 7 - (i & 7)
		bit := uint(ip16[byteIdx]>>bitPos) & 1
		node = r.readNode(node, bit)
	}
	return node, i
}

func (r *Reader) resolveDataOffset(node uint) (uint, error) {
	if node < r.Metadata.NodeCount+dataSectionSeparatorSize {
		return 0, mmdberrors.NewInvalidDatabaseError("the MaxMind DB file's search tree is corrupt")
	}
	offset := node - r.Metadata.NodeCount - dataSectionSeparatorSize
	if offset >= uint(len(r.buffer)) {
		return 0, mmdberrors.NewInvalidDatabaseError("the MaxMind DB file's search tree is corrupt")
	}
	return offset, nil
}

// LeafSlot identifies the physical file offset of the record-sized slot
// that a lookup terminated on, and the record's current (pre-patch) value.
// The trimmer uses this to rewrite leaf pointers without re-walking the
// tree on write.
type LeafSlot struct {
	// FileOffset is the byte offset of the node containing the slot.
	FileOffset uint
	// Bit is 0 for the left record, 1 for the right record.
	Bit uint
	// Value is the record's raw value (child index, empty marker, or data
	// reference) as currently stored.
	Value uint
	// PrefixLen is the number of address bits consumed before the walk
	// terminated.
	PrefixLen int
}

// FindLeafSlot walks the tree for ip and returns the location of the
// terminal record slot, without decoding any data-section value.
func (r *Reader) FindLeafSlot(ip netip.Addr) (LeafSlot, error) {
	i := 0
	node := uint(0)
	if ip.Is4() || ip.Is4In6() {
		i = r.ipv4StartBitDepth
		node = r.ipv4Start
	}
	nodeCount := r.Metadata.NodeCount
	ip16 := ip.As16()

	var bit uint
	for ; i < 128 && node < nodeCount; i++ {
		byteIdx := i >> 3
		bitPos := 7 - (i & 7)
		bit = uint(ip16[byteIdx]>>bitPos) & 1
		next := r.readNode(node, bit)
		if next >= nodeCount {
			return LeafSlot{
				FileOffset: r.nodeByteOffset(node),
				Bit:        bit,
				Value:      next,
				PrefixLen:  i + 1,
			}, nil
		}
		node = next
	}
	return LeafSlot{}, mmdberrors.NewMissingRecordError("no terminal record found for %s", ip)
}

func (r *Reader) nodeByteOffset(node uint) uint {
	return node * (2 * r.Metadata.RecordSize / 8)
}

// Networks iterates every (prefix, value) pair represented by non-empty
// leaves in the search tree, in tree order. Leaves under ::ffff:0:0/96 of an
// IPv6 tree are yielded as IPv4 prefixes. If a data-section value fails
// to decode, iteration stops early; call NetworksErr afterward to check.
func (r *Reader) Networks() iter.Seq2[netip.Prefix, Value] {
	return func(yield func(netip.Prefix, Value) bool) {
		r.lastNetworksErr = nil
		d := r.dataSectionDecoder()
		c := r.cacheProvider.Acquire()
		defer r.cacheProvider.Release(c)

		var walk func(node uint, ip [16]byte, depth int) bool
		walk = func(node uint, ip [16]byte, depth int) bool {
			nodeCount := r.Metadata.NodeCount
			if node > nodeCount {
				offset, err := r.resolveDataOffset(node)
				if err != nil {
					r.lastNetworksErr = err
					return false
				}
				val, _, err := decodeValue(&d, offset, c, 0)
				if err != nil {
					r.lastNetworksErr = err
					return false
				}
				prefix := prefixFromBits(ip, depth, r.Metadata.IPVersion)
				return yield(prefix, val)
			}
			if node == nodeCount {
				return true
			}
			for _, bit := range [2]uint{0, 1} {
				childIP := ip
				if bit == 1 {
					setBit(&childIP, depth)
				}
				if !walk(r.readNode(node, bit), childIP, depth+1) {
					return false
				}
			}
			return true
		}

		walk(0, [16]byte{}, 0)
	}
}

// NetworksErr reports the error, if any, that stopped the most recent
// Networks iteration early.
func (r *Reader) NetworksErr() error {
	return r.lastNetworksErr
}

func setBit(ip *[16]byte, depth int) {
	byteIdx := depth >> 3
	bitPos := 7 - (depth & 7)
	ip[byteIdx] |= 1 << bitPos
}

func prefixFromBits(ip [16]byte, depth int, ipVersion uint) netip.Prefix {
	if ipVersion != 6 {
		return netip.PrefixFrom(netip.AddrFrom4([4]byte{ip[0], ip[1], ip[2], ip[3]}), depth)
	}
	if depth >= 96 && [12]byte(ip[:12]) == ipv4MappedPrefix {
		return netip.PrefixFrom(netip.AddrFrom4([4]byte(ip[12:])), depth-96)
	}
	return netip.PrefixFrom(netip.AddrFrom16(ip), depth)
}
