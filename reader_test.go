package mmdb

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFindLeafSlotMatchesGet(t *testing.T) {
	opts := DefaultOptions()
	opts.DatabaseType = "test"
	opts.Description = map[string]string{"en": "x"}

	r := buildTestDB(t, opts, []struct {
		prefix string
		value  Value
	}{
		{"203.0.113.0/24", Map{"v": Uint16(7)}},
	})
	defer r.Close()

	addr := netip.MustParseAddr("203.0.113.5")
	slot, err := r.FindLeafSlot(addr)
	require.NoError(t, err)
	require.Greater(t, slot.Value, r.Metadata.NodeCount)

	v, ok, err := r.Get(addr)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, Uint16(7), v.(Map)["v"])
}

func TestGetMissingAddressReturnsFalse(t *testing.T) {
	opts := DefaultOptions()
	opts.DatabaseType = "test"
	opts.Description = map[string]string{"en": "x"}

	r := buildTestDB(t, opts, []struct {
		prefix string
		value  Value
	}{
		{"203.0.113.0/24", Map{"v": Uint16(7)}},
	})
	defer r.Close()

	_, ok, err := r.Get(netip.MustParseAddr("198.51.100.1"))
	require.NoError(t, err)
	require.False(t, ok)
}

func TestGetOnIPv4OnlyDatabaseRejectsIPv6(t *testing.T) {
	tree, err := NewTree(Options{
		IPVersion:    4,
		RecordSize:   28,
		DatabaseType: "test",
		Description:  map[string]string{"en": "x"},
	})
	require.NoError(t, err)
	require.NoError(t, tree.Insert(netip.MustParsePrefix("1.2.3.0/24"), Map{"v": Uint16(1)}))
	tree.Finalize()

	var buf bytes.Buffer
	_, err = tree.WriteTo(&buf)
	require.NoError(t, err)

	r, err := FromBytes(buf.Bytes())
	require.NoError(t, err)
	defer r.Close()

	_, _, err = r.Get(netip.MustParseAddr("::1"))
	require.Error(t, err)
}
