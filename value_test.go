package mmdb

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestRemoveKeysRecursesIntoMapsAndArrays(t *testing.T) {
	v := Map{
		"network": String("1.2.3.0/24"),
		"location": Map{
			"latitude":    Double(1.1),
			"longitude":   Double(2.2),
			"time_zone":   String("UTC"),
			"geoname_id": Uint32(42),
		},
		"subdivisions": Array{
			Map{"geoname_id": Uint32(1), "iso_code": String("CA")},
		},
	}

	drop := map[string]struct{}{
		"time_zone":  {},
		"geoname_id": {},
	}

	got := RemoveKeys(v, drop)

	m := got.(Map)
	require.Equal(t, String("1.2.3.0/24"), m["network"])

	loc := m["location"].(Map)
	require.Equal(t, Double(1.1), loc["latitude"])
	require.Equal(t, Double(2.2), loc["longitude"])
	require.NotContains(t, loc, "time_zone")
	require.NotContains(t, loc, "geoname_id")

	subs := m["subdivisions"].(Array)
	sub0 := subs[0].(Map)
	require.NotContains(t, sub0, "geoname_id")
	require.Equal(t, String("CA"), sub0["iso_code"])
}

func TestRemoveKeysEmptyDropSetIsIdentity(t *testing.T) {
	v := Map{"a": Uint16(1), "b": Array{String("x")}}
	got := RemoveKeys(v, map[string]struct{}{})
	require.Equal(t, v, got)
}

func TestRemoveKeysScalarUnchanged(t *testing.T) {
	got := RemoveKeys(Uint32(7), map[string]struct{}{"anything": {}})
	require.Equal(t, Uint32(7), got)
}
