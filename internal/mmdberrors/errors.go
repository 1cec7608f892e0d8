// Package mmdberrors defines the typed error kinds returned by the mmdb
// codec, writer and trimmer.
package mmdberrors

import "fmt"

// InvalidDatabaseError is returned when the database contains invalid data
// and cannot be parsed.
type InvalidDatabaseError struct {
	message string
}

// NewOffsetError returns an InvalidDatabaseError for a read past the end of
// the data section.
func NewOffsetError() InvalidDatabaseError {
	return InvalidDatabaseError{"unexpected end of database"}
}

// NewInvalidDatabaseError builds an InvalidDatabaseError from a format string.
func NewInvalidDatabaseError(format string, args ...any) InvalidDatabaseError {
	return InvalidDatabaseError{fmt.Sprintf(format, args...)}
}

func (e InvalidDatabaseError) Error() string {
	return e.message
}

// InvalidPointerError is returned when the encoder is asked to emit a
// pointer to an offset that does not fit in any of the four pointer size
// classes. Decoded pointers are not checked against this kind.
type InvalidPointerError struct {
	Offset uint
}

// NewInvalidPointerError builds an InvalidPointerError for the given offset.
func NewInvalidPointerError(offset uint) InvalidPointerError {
	return InvalidPointerError{Offset: offset}
}

func (e InvalidPointerError) Error() string {
	return fmt.Sprintf("mmdb: invalid pointer to offset %d", e.Offset)
}

// UnsupportedPrefixError is returned when a network cannot be represented in
// the tree being built, for example an IPv6 prefix inserted into an
// IPv4-only tree.
type UnsupportedPrefixError struct {
	Prefix string
}

// NewUnsupportedPrefixError builds an UnsupportedPrefixError for the prefix.
func NewUnsupportedPrefixError(prefix string) UnsupportedPrefixError {
	return UnsupportedPrefixError{Prefix: prefix}
}

func (e UnsupportedPrefixError) Error() string {
	return fmt.Sprintf("mmdb: unsupported prefix %s", e.Prefix)
}

// EncodeOverflowError is returned when a value cannot be encoded because it
// overflows the width the caller requested, or the format's length limits.
type EncodeOverflowError struct {
	message string
}

// NewEncodeOverflowError builds an EncodeOverflowError from a format string.
func NewEncodeOverflowError(format string, args ...any) EncodeOverflowError {
	return EncodeOverflowError{fmt.Sprintf(format, args...)}
}

func (e EncodeOverflowError) Error() string {
	return e.message
}

// MissingRecordError is returned when a lookup that expects to find
// something comes up empty: a search-tree walk that runs off the tree
// without reaching a terminal record (the trimmer locating a leaf's data
// pointer), or an enrichment join that has no ASN description for a
// route.
type MissingRecordError struct {
	message string
}

// NewMissingRecordError builds a MissingRecordError from a format string.
func NewMissingRecordError(format string, args ...any) MissingRecordError {
	return MissingRecordError{fmt.Sprintf(format, args...)}
}

func (e MissingRecordError) Error() string {
	return e.message
}
