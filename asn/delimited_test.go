package asn

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestFromDelimitedAutoDetectsComma(t *testing.T) {
	csv := "13335,US,Cloudflare Inc.,US\n15169,US,Google LLC,US\n"
	table, err := FromDelimited(strings.NewReader(csv), DialectOptions{})
	require.NoError(t, err)

	require.Equal(t, "Cloudflare Inc.", table["13335"])
	require.Equal(t, "Google LLC", table["15169"])
}

func TestFromDelimitedAutoDetectsTab(t *testing.T) {
	tsv := "13335\tUS\tCloudflare Inc.\n15169\tUS\tGoogle LLC\n"
	table, err := FromDelimited(strings.NewReader(tsv), DialectOptions{})
	require.NoError(t, err)

	require.Equal(t, "Cloudflare Inc.", table["13335"])
	require.Equal(t, "Google LLC", table["15169"])
}

func TestFromDelimitedSkipsShortRows(t *testing.T) {
	csv := "13335,US\n15169,US,Google LLC\n"
	table, err := FromDelimited(strings.NewReader(csv), DialectOptions{})
	require.NoError(t, err)

	require.NotContains(t, table, "13335")
	require.Equal(t, "Google LLC", table["15169"])
}

func TestFromDelimitedExplicitDelimiterOverridesSniff(t *testing.T) {
	csv := "13335;US;Cloudflare Inc.\n"
	table, err := FromDelimited(strings.NewReader(csv), DialectOptions{Delimiter: ';'})
	require.NoError(t, err)
	require.Equal(t, "Cloudflare Inc.", table["13335"])
}
