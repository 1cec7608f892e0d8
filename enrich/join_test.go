package enrich

import (
	"testing"

	"github.com/stretchr/testify/require"

	mmdb "github.com/sbng/mrt2mmdb"
	"github.com/sbng/mrt2mmdb/asn"
	"github.com/sbng/mrt2mmdb/mrt"
)

func TestJoinReportsMissingASN(t *testing.T) {
	routes := map[string]mrt.Route{
		"10.0.0.0/8": {Prefix: "10.0.0.0/8", ASPath: []string{"1", "2", "3", "99999"}},
	}
	table := asn.Table{"1": "One", "2": "Two", "3": "Three"}

	records, missing := Join(routes, table)

	require.Len(t, records, 1)
	require.Equal(t, int64(99999), records[0].AutonomousSystemNumber)
	require.Equal(t, "", records[0].AutonomousSystemOrganization)
	require.Len(t, missing, 1)
	require.IsType(t, mmdb.MissingRecordError{}, missing[0])
	require.Contains(t, missing[0].Error(), "99999")
}

func TestJoinSanitizesASSetPunctuation(t *testing.T) {
	routes := map[string]mrt.Route{
		"10.0.0.0/8": {Prefix: "10.0.0.0/8", ASPath: []string{"1", "{99}"}},
	}
	table := asn.Table{"99": "Ninety Nine"}

	records, missing := Join(routes, table)
	require.Empty(t, missing)
	require.Equal(t, int64(99), records[0].AutonomousSystemNumber)
	require.Equal(t, "Ninety Nine", records[0].AutonomousSystemOrganization)
}

func TestJoinSkipsRoutesWithEmptyPath(t *testing.T) {
	routes := map[string]mrt.Route{
		"10.0.0.0/8": {Prefix: "10.0.0.0/8", ASPath: nil},
	}
	records, missing := Join(routes, asn.Table{})
	require.Empty(t, records)
	require.Empty(t, missing)
}

func TestSortedPrefixesOrdersByDecreasingLength(t *testing.T) {
	records := []Record{
		{Prefix: "10.0.0.0/8"},
		{Prefix: "10.1.0.0/16"},
		{Prefix: "0.0.0.0/0"},
	}
	sorted := SortedPrefixes(records)

	lengths := make([]int, len(sorted))
	for i, r := range sorted {
		lengths[i] = prefixLength(r.Prefix)
	}
	require.Equal(t, []int{16, 8, 0}, lengths)
}
