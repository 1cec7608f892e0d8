package mmdb

import (
	"bytes"
	"net/netip"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestVerifyAcceptsWellFormedDatabase(t *testing.T) {
	opts := DefaultOptions()
	opts.DatabaseType = "test"
	opts.Description = map[string]string{"en": "x"}

	r := buildTestDB(t, opts, []struct {
		prefix string
		value  Value
	}{
		{"1.2.3.0/24", Map{"v": Uint16(1)}},
	})
	defer r.Close()

	require.NoError(t, r.Verify())
}

func TestVerifyRejectsBadMetadata(t *testing.T) {
	opts := DefaultOptions()
	opts.DatabaseType = "" // required key left empty
	opts.Description = map[string]string{"en": "x"}

	tree, err := NewTree(opts)
	require.NoError(t, err)
	require.NoError(t, tree.Insert(netip.MustParsePrefix("1.2.3.0/24"), Map{"v": Uint16(1)}))
	tree.Finalize()

	var buf bytes.Buffer
	_, err = tree.WriteTo(&buf)
	require.NoError(t, err)

	r, err := FromBytes(buf.Bytes())
	require.NoError(t, err)
	defer r.Close()

	require.Error(t, r.Verify())
}

func TestVerifyDetectsCorruptDataSeparator(t *testing.T) {
	opts := DefaultOptions()
	opts.DatabaseType = "test"
	opts.Description = map[string]string{"en": "x"}

	tree, err := NewTree(opts)
	require.NoError(t, err)
	require.NoError(t, tree.Insert(netip.MustParsePrefix("1.2.3.0/24"), Map{"v": Uint16(1)}))
	tree.Finalize()

	var buf bytes.Buffer
	_, err = tree.WriteTo(&buf)
	require.NoError(t, err)

	raw := buf.Bytes()
	treeSize := tree.nodeCount * (2 * uint(tree.opts.RecordSize) / 8)
	raw[treeSize] = 0xFF // corrupt the separator

	r, err := FromBytes(raw)
	require.NoError(t, err)
	defer r.Close()

	require.Error(t, r.Verify())
}
