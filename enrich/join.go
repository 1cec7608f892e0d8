// Package enrich joins extracted MRT routes against an ASN description
// table to produce the final records handed to the search-tree writer.
package enrich

import (
	"sort"
	"strconv"
	"strings"

	mmdb "github.com/sbng/mrt2mmdb"
	"github.com/sbng/mrt2mmdb/asn"
	"github.com/sbng/mrt2mmdb/mrt"
)

// Record is one prefix's final enriched payload.
type Record struct {
	Prefix                       string
	AutonomousSystemNumber       int64
	AutonomousSystemOrganization string
	Path                         string
}

// Join resolves each route's destination ASN (the last AS-path element,
// after stripping AS-set punctuation) against table and emits one
// Record per route. Routes whose destination ASN has no entry in table
// still produce a record, with an empty organization, and a
// MissingRecordError is appended to missing rather than treated as
// fatal.
func Join(routes map[string]mrt.Route, table asn.Table) (records []Record, missing []mmdb.MissingRecordError) {
	records = make([]Record, 0, len(routes))
	for prefix, route := range routes {
		if len(route.ASPath) == 0 {
			continue
		}
		destASN := sanitizeASN(route.ASPath[len(route.ASPath)-1])

		org, ok := table[destASN]
		if !ok {
			missing = append(missing, mmdb.NewMissingRecordError(
				"no ASN description for %s (prefix %s)", destASN, prefix,
			))
		}

		records = append(records, Record{
			Prefix:                       prefix,
			AutonomousSystemNumber:       parseASN(destASN),
			AutonomousSystemOrganization: org,
			Path:                         strings.Join(route.ASPath, " "),
		})
	}
	return records, missing
}

// sanitizeASN strips AS-set delimiter punctuation ("{", "}", ",") that
// mrtparse-style AS-path segments carry for AS_SET elements.
func sanitizeASN(s string) string {
	s = strings.ReplaceAll(s, "{", "")
	s = strings.ReplaceAll(s, "}", "")
	s = strings.ReplaceAll(s, ",", "")
	return strings.TrimSpace(s)
}

func parseASN(s string) int64 {
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

// SortedPrefixes orders records by decreasing prefix length so that,
// when inserted into the writer in this order, longer (more specific)
// prefixes win inside overlapping coverage.
func SortedPrefixes(records []Record) []Record {
	out := make([]Record, len(records))
	copy(out, records)
	sort.SliceStable(out, func(i, j int) bool {
		return prefixLength(out[i].Prefix) > prefixLength(out[j].Prefix)
	})
	return out
}

func prefixLength(prefix string) int {
	idx := strings.LastIndexByte(prefix, '/')
	if idx == -1 {
		return 0
	}
	n, _ := strconv.Atoi(prefix[idx+1:])
	return n
}
