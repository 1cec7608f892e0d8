// Package mrt gives shape to the external MRT-parsing collaborator's
// output: already-parsed RIB entries in, a prefix-to-AS-path map out.
// Decoding the MRT binary wire format itself is out of scope; callers
// supply entries from whatever parser they have (a binary-format reader,
// a fixture, a replay log).
package mrt

import (
	"iter"
	"strconv"
)

// PathAttributeValue is one element of a path attribute's value list, as
// produced by a dict-of-dicts-style MRT parser: an AS_SEQUENCE or AS_SET
// segment carries its ASNs as strings in Value.
type PathAttributeValue struct {
	Type  string
	Value []string
}

// PathAttribute is one BGP path attribute attached to a RIB entry.
type PathAttribute struct {
	Type  string
	Value []PathAttributeValue
}

// RIBEntry is one TABLE_DUMP2 RIB entry: a prefix and the path attributes
// of the route that reached it.
type RIBEntry struct {
	Prefix         string
	Length         int
	PathAttributes []PathAttribute
}

// Route is the prefix-keyed result of ExtractRoutes: a route's AS path,
// in path order, with any following AS-set segment appended.
type Route struct {
	Prefix string
	ASPath []string
}

// ExtractRoutes reads entries and emits one Route per prefix whose first
// path attribute's value list is non-empty, keyed by "<addr>/<len>". A
// later entry for the same prefix overwrites an earlier one.
func ExtractRoutes(entries iter.Seq[RIBEntry]) map[string]Route {
	routes := make(map[string]Route)
	for e := range entries {
		if len(e.PathAttributes) == 0 {
			continue
		}
		attr := e.PathAttributes[0]
		if len(attr.Value) == 0 || len(attr.Value[0].Value) == 0 {
			continue
		}

		prefix := e.Prefix + "/" + strconv.Itoa(e.Length)
		asPath := append([]string{}, attr.Value[0].Value...)
		if len(attr.Value) > 1 {
			asPath = append(asPath, attr.Value[1].Value...)
		}
		routes[prefix] = Route{Prefix: prefix, ASPath: asPath}
	}
	return routes
}
