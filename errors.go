package mmdb

import "github.com/sbng/mrt2mmdb/internal/mmdberrors"

// InvalidDatabaseError is returned when the database contains invalid data
// and cannot be parsed: a missing metadata magic, an unsupported
// binary_format_major_version, a truncated tree or data section, or an
// unknown type tag.
type InvalidDatabaseError = mmdberrors.InvalidDatabaseError

// InvalidPointerError is returned when the encoder is asked to emit a
// pointer to an offset that does not fit in 32 bits. Pointers read from a
// database are not reported with this kind: a pointer whose byte count does
// not match its control byte, or whose target lies past the data section,
// surfaces as an InvalidDatabaseError.
type InvalidPointerError = mmdberrors.InvalidPointerError

// UnsupportedPrefixError is returned when an IPv6 prefix is inserted into
// an IPv4-only writer.
type UnsupportedPrefixError = mmdberrors.UnsupportedPrefixError

// EncodeOverflowError is returned when a value's length reaches the format
// limit of 16,843,036 bytes, or an integer exceeds its declared width.
type EncodeOverflowError = mmdberrors.EncodeOverflowError

// MissingRecordError is returned when an enrichment join finds no ASN
// description for a route, and internally when a tree walk runs off the
// end of the search tree without landing on a terminal record. Both are
// collected by their callers (enrich.Join appends to a list; Reader
// treats it as its own fatal result) rather than panicking.
type MissingRecordError = mmdberrors.MissingRecordError

// NewMissingRecordError builds a MissingRecordError from a format string,
// for callers outside the mmdb package (the enrichment pipeline) that
// need to report their own missing-record condition through the same
// typed error Reader uses internally.
func NewMissingRecordError(format string, args ...any) MissingRecordError {
	return mmdberrors.NewMissingRecordError(format, args...)
}
