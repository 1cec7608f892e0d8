package mrt

import (
	"slices"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestExtractRoutesConcatenatesASSetSegment(t *testing.T) {
	entries := []RIBEntry{
		{
			Prefix: "10.0.0.0",
			Length: 8,
			PathAttributes: []PathAttribute{
				{
					Type: "AS_PATH",
					Value: []PathAttributeValue{
						{Type: "AS_SEQUENCE", Value: []string{"1", "2", "3"}},
						{Type: "AS_SET", Value: []string{"{99}"}},
					},
				},
			},
		},
	}

	routes := ExtractRoutes(slices.Values(entries))
	route, ok := routes["10.0.0.0/8"]
	require.True(t, ok)
	require.Equal(t, []string{"1", "2", "3", "{99}"}, route.ASPath)
}

func TestExtractRoutesSkipsEmptyPathAttributes(t *testing.T) {
	entries := []RIBEntry{
		{
			Prefix: "192.0.2.0",
			Length: 24,
			PathAttributes: []PathAttribute{
				{Type: "AS_PATH", Value: []PathAttributeValue{{Type: "AS_SEQUENCE", Value: nil}}},
			},
		},
	}

	routes := ExtractRoutes(slices.Values(entries))
	require.Empty(t, routes)
}

func TestExtractRoutesSkipsEntriesWithNoPathAttributes(t *testing.T) {
	entries := []RIBEntry{
		{Prefix: "192.0.2.0", Length: 24},
	}
	routes := ExtractRoutes(slices.Values(entries))
	require.Empty(t, routes)
}

func TestExtractRoutesLastEntryWins(t *testing.T) {
	entries := []RIBEntry{
		{
			Prefix: "10.0.0.0", Length: 8,
			PathAttributes: []PathAttribute{
				{Value: []PathAttributeValue{{Value: []string{"1"}}}},
			},
		},
		{
			Prefix: "10.0.0.0", Length: 8,
			PathAttributes: []PathAttribute{
				{Value: []PathAttributeValue{{Value: []string{"2"}}}},
			},
		},
	}
	routes := ExtractRoutes(slices.Values(entries))
	require.Equal(t, []string{"2"}, routes["10.0.0.0/8"].ASPath)
}
