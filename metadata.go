package mmdb

import "github.com/sbng/mrt2mmdb/internal/mmdberrors"

// Metadata is the decoded contents of an MMDB file's metadata map.
type Metadata struct {
	NodeCount                uint   `maxminddb:"node_count"`
	RecordSize               uint   `maxminddb:"record_size"`
	IPVersion                uint   `maxminddb:"ip_version"`
	BinaryFormatMajorVersion uint   `maxminddb:"binary_format_major_version"`
	BinaryFormatMinorVersion uint   `maxminddb:"binary_format_minor_version"`
	BuildEpoch               uint64 `maxminddb:"build_epoch"`
	DatabaseType             string `maxminddb:"database_type"`
	Languages                []string `maxminddb:"languages"`
	Description              map[string]string `maxminddb:"description"`
}

// treeSize returns the byte length of the binary search tree for this
// metadata's node_count and record_size.
func (m Metadata) treeSize() uint {
	return (2 * m.RecordSize / 8) * m.NodeCount
}

// metadataFromValue converts a decoded Value (expected to be a Map) into a
// Metadata struct, validating the required keys along the way.
func metadataFromValue(v Value) (Metadata, error) {
	m, ok := v.(Map)
	if !ok {
		return Metadata{}, mmdberrors.NewInvalidDatabaseError("metadata is not a map")
	}

	var meta Metadata
	var err error
	meta.NodeCount, err = requireUint(m, "node_count")
	if err != nil {
		return Metadata{}, err
	}
	meta.RecordSize, err = requireUint(m, "record_size")
	if err != nil {
		return Metadata{}, err
	}
	if meta.RecordSize != 24 && meta.RecordSize != 28 && meta.RecordSize != 32 {
		return Metadata{}, mmdberrors.NewInvalidDatabaseError(
			"unsupported record_size: %d", meta.RecordSize,
		)
	}
	meta.IPVersion, err = requireUint(m, "ip_version")
	if err != nil {
		return Metadata{}, err
	}
	meta.BinaryFormatMajorVersion, err = requireUint(m, "binary_format_major_version")
	if err != nil {
		return Metadata{}, err
	}
	if meta.BinaryFormatMajorVersion != 2 {
		return Metadata{}, mmdberrors.NewInvalidDatabaseError(
			"unsupported binary_format_major_version: %d", meta.BinaryFormatMajorVersion,
		)
	}
	meta.BinaryFormatMinorVersion, _ = requireUint(m, "binary_format_minor_version")

	if be, ok := m["build_epoch"]; ok {
		meta.BuildEpoch = asUint64(be)
	}
	if dt, ok := m["database_type"].(String); ok {
		meta.DatabaseType = string(dt)
	}
	if langs, ok := m["languages"].(Array); ok {
		for _, l := range langs {
			if s, ok := l.(String); ok {
				meta.Languages = append(meta.Languages, string(s))
			}
		}
	}
	if desc, ok := m["description"].(Map); ok {
		meta.Description = make(map[string]string, len(desc))
		for k, val := range desc {
			if s, ok := val.(String); ok {
				meta.Description[k] = string(s)
			}
		}
	}
	return meta, nil
}

func requireUint(m Map, key string) (uint, error) {
	v, ok := m[key]
	if !ok {
		return 0, mmdberrors.NewInvalidDatabaseError("metadata missing required key %q", key)
	}
	return uint(asUint64(v)), nil
}

func asUint64(v Value) uint64 {
	switch t := v.(type) {
	case Uint16:
		return uint64(t)
	case Uint32:
		return uint64(t)
	case Uint64:
		return uint64(t)
	case Int32:
		return uint64(t)
	case Uint128:
		if t.Int != nil {
			return t.Int.Uint64()
		}
	}
	return 0
}

// toValue converts Metadata back into the Map the encoder expects.
func (m Metadata) toValue() Map {
	desc := Map{}
	for k, v := range m.Description {
		desc[k] = String(v)
	}
	langs := Array{}
	for _, l := range m.Languages {
		langs = append(langs, String(l))
	}
	return Map{
		"node_count":                  Uint32(m.NodeCount),
		"record_size":                 Uint16(m.RecordSize),
		"ip_version":                  Uint16(m.IPVersion),
		"binary_format_major_version": Uint16(m.BinaryFormatMajorVersion),
		"binary_format_minor_version": Uint16(m.BinaryFormatMinorVersion),
		"build_epoch":                 Uint64(m.BuildEpoch),
		"database_type":               String(m.DatabaseType),
		"languages":                   langs,
		"description":                 desc,
	}
}
