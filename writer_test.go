package mmdb

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

// buildTestDB inserts prefixes into a fresh Tree in the given order and
// returns a Reader over the serialized result.
func buildTestDB(t *testing.T, opts Options, inserts []struct {
	prefix string
	value  Value
}) *Reader {
	t.Helper()
	tree, err := NewTree(opts)
	require.NoError(t, err)

	for _, ins := range inserts {
		err := tree.Insert(netip.MustParsePrefix(ins.prefix), ins.value)
		require.NoError(t, err)
	}
	tree.Finalize()

	var buf bytes.Buffer
	_, err = tree.WriteTo(&buf)
	require.NoError(t, err)

	r, err := FromBytes(buf.Bytes())
	require.NoError(t, err)
	return r
}

func TestLongestPrefixMatch(t *testing.T) {
	opts := DefaultOptions()
	opts.DatabaseType = "test"
	opts.Description = map[string]string{"en": "test db"}

	// Caller sorts longest-first.
	inserts := []struct {
		prefix string
		value  Value
	}{
		{"10.1.0.0/16", Map{"who": String("C")}},
		{"10.0.0.0/8", Map{"who": String("B")}},
		{"0.0.0.0/0", Map{"who": String("A")}},
	}

	r := buildTestDB(t, opts, inserts)
	defer r.Close()

	cases := map[string]string{
		"10.1.2.3": "C",
		"10.2.0.1": "B",
		"8.8.8.8":  "A",
	}
	for addr, want := range cases {
		v, ok, err := r.Get(netip.MustParseAddr(addr))
		require.NoError(t, err)
		require.True(t, ok)
		require.Equal(t, String(want), v.(Map)["who"])
	}
}

func TestIPv4InIPv6Tree(t *testing.T) {
	opts := DefaultOptions()
	opts.DatabaseType = "test"
	opts.Description = map[string]string{"en": "test db"}

	r := buildTestDB(t, opts, []struct {
		prefix string
		value  Value
	}{
		{"10.0.0.0/8", Map{"asn": Uint32(1)}},
	})
	defer r.Close()

	v1, ok, err := r.Get(netip.MustParseAddr("10.1.2.3"))
	require.NoError(t, err)
	require.True(t, ok)

	v2, ok, err := r.Get(netip.MustParseAddr("::ffff:10.1.2.3"))
	require.NoError(t, err)
	require.True(t, ok)

	require.Equal(t, v1, v2)
	require.Equal(t, Uint32(1), v1.(Map)["asn"])
}

func TestIPv4OnlyWriterRejectsIPv6(t *testing.T) {
	tree, err := NewTree(Options{IPVersion: 4, RecordSize: 28})
	require.NoError(t, err)

	err = tree.Insert(netip.MustParsePrefix("::1/128"), Map{})
	require.Error(t, err)
	var unsupported UnsupportedPrefixError
	require.ErrorAs(t, err, &unsupported)
}

func TestNetworksYieldsEveryInsertedPrefix(t *testing.T) {
	opts := DefaultOptions()
	opts.DatabaseType = "test"
	opts.Description = map[string]string{"en": "x"}

	// Caller sorts longest-first.
	r := buildTestDB(t, opts, []struct {
		prefix string
		value  Value
	}{
		{"192.168.1.0/24", Map{"v": Uint16(2)}},
		{"192.168.0.0/16", Map{"v": Uint16(1)}},
	})
	defer r.Close()

	seen := map[string]Value{}
	for prefix, v := range r.Networks() {
		seen[prefix.String()] = v
	}
	require.NoError(t, r.NetworksErr())
	require.Equal(t, Uint16(2), seen["192.168.1.0/24"].(Map)["v"])
}

func TestMetadataNodeCountMatchesFinalize(t *testing.T) {
	opts := DefaultOptions()
	opts.DatabaseType = "test"
	opts.Description = map[string]string{"en": "x"}

	tree, err := NewTree(opts)
	require.NoError(t, err)
	require.NoError(t, tree.Insert(netip.MustParsePrefix("1.2.3.0/24"), Map{"a": Uint16(1)}))
	tree.Finalize()

	var buf bytes.Buffer
	_, err = tree.WriteTo(&buf)
	require.NoError(t, err)

	r, err := FromBytes(buf.Bytes())
	require.NoError(t, err)
	defer r.Close()

	require.Equal(t, tree.nodeCount, r.Metadata.NodeCount)
	require.Contains(t, []uint{24, 28, 32}, r.Metadata.RecordSize)
	require.NoError(t, r.Verify())
}
