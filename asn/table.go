// Package asn assembles an autonomous-system-number to description
// lookup table from a reference MMDB and/or a delimited text file.
package asn

import (
	"strconv"

	mmdb "github.com/sbng/mrt2mmdb"
)

// Table maps an ASN (as a decimal string, matching the source data's own
// key shape) to its organization description.
type Table map[string]string

// FromMMDB builds a Table by iterating every (prefix, payload) pair of
// the MMDB at path and collecting autonomous_system_number →
// autonomous_system_organization. Entries missing either field are
// skipped. On ASN collisions the last value iterated wins.
func FromMMDB(path string) (Table, error) {
	r, err := mmdb.Open(path)
	if err != nil {
		return nil, err
	}
	defer r.Close()

	table := make(Table)
	for _, payload := range r.Networks() {
		m, ok := payload.(mmdb.Map)
		if !ok {
			continue
		}
		asn, ok := asnKey(m["autonomous_system_number"])
		if !ok {
			continue
		}
		org, ok := m["autonomous_system_organization"].(mmdb.String)
		if !ok {
			continue
		}
		table[asn] = string(org)
	}
	if err := r.NetworksErr(); err != nil {
		return nil, err
	}
	return table, nil
}

func asnKey(v mmdb.Value) (string, bool) {
	switch t := v.(type) {
	case mmdb.Uint16:
		return strconv.FormatUint(uint64(t), 10), true
	case mmdb.Uint32:
		return strconv.FormatUint(uint64(t), 10), true
	case mmdb.Uint64:
		return strconv.FormatUint(uint64(t), 10), true
	case mmdb.Int32:
		return strconv.FormatInt(int64(t), 10), true
	default:
		return "", false
	}
}

// Merge layers custom on top of base: custom entries overwrite base
// entries with the same ASN key. If customOnly is set, base is ignored
// entirely and the result is just custom.
func Merge(base, custom Table, customOnly bool) Table {
	if customOnly {
		out := make(Table, len(custom))
		for k, v := range custom {
			out[k] = v
		}
		return out
	}

	out := make(Table, len(base)+len(custom))
	for k, v := range base {
		out[k] = v
	}
	for k, v := range custom {
		out[k] = v
	}
	return out
}
