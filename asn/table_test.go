package asn

import (
	"bytes"
	"net/netip"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	mmdb "github.com/sbng/mrt2mmdb"
)

func writeMMDBFixture(t *testing.T) string {
	t.Helper()
	opts := mmdb.DefaultOptions()
	opts.DatabaseType = "test"
	opts.Description = map[string]string{"en": "x"}

	tree, err := mmdb.NewTree(opts)
	require.NoError(t, err)

	require.NoError(t, tree.Insert(netip.MustParsePrefix("1.0.0.0/24"), mmdb.Map{
		"autonomous_system_number":        mmdb.Uint32(13335),
		"autonomous_system_organization": mmdb.String("Cloudflare, Inc."),
	}))
	require.NoError(t, tree.Insert(netip.MustParsePrefix("8.8.8.0/24"), mmdb.Map{
		"autonomous_system_number":        mmdb.Uint32(15169),
		"autonomous_system_organization": mmdb.String("Google LLC"),
	}))
	tree.Finalize()

	var buf bytes.Buffer
	_, err = tree.WriteTo(&buf)
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "asn.mmdb")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))
	return path
}

func TestFromMMDBCollectsASNDescriptions(t *testing.T) {
	path := writeMMDBFixture(t)

	table, err := FromMMDB(path)
	require.NoError(t, err)

	require.Equal(t, "Cloudflare, Inc.", table["13335"])
	require.Equal(t, "Google LLC", table["15169"])
}

func TestMergeCustomOverridesBase(t *testing.T) {
	base := Table{"1": "Base Org", "2": "Keep Me"}
	custom := Table{"1": "Custom Org"}

	merged := Merge(base, custom, false)
	require.Equal(t, "Custom Org", merged["1"])
	require.Equal(t, "Keep Me", merged["2"])
}

func TestMergeCustomOnlyIgnoresBase(t *testing.T) {
	base := Table{"1": "Base Org", "2": "Keep Me"}
	custom := Table{"1": "Custom Org"}

	merged := Merge(base, custom, true)
	require.Equal(t, Table{"1": "Custom Org"}, merged)
}
