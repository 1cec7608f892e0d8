package mmdb

import "github.com/sbng/mrt2mmdb/internal/mmdberrors"

type verifier struct {
	reader *Reader
}

// Verify checks that the database is valid: metadata is well-formed, the
// search tree is walkable, the data-section separator is all zero bytes,
// and every leaf's data-section value decodes without error. It is
// stricter than strictly necessary for read compatibility and may reject
// databases that a lenient reader would still serve.
func (r *Reader) Verify() error {
	v := verifier{r}
	if err := v.verifyMetadata(); err != nil {
		return err
	}
	if err := v.verifyDataSectionSeparator(); err != nil {
		return err
	}
	return v.verifySearchTree()
}

func (v *verifier) verifyMetadata() error {
	m := v.reader.Metadata

	if m.BinaryFormatMajorVersion != 2 {
		return testError("binary_format_major_version", 2, m.BinaryFormatMajorVersion)
	}
	if m.BinaryFormatMinorVersion != 0 {
		return testError("binary_format_minor_version", 0, m.BinaryFormatMinorVersion)
	}
	if m.DatabaseType == "" {
		return testError("database_type", "non-empty string", m.DatabaseType)
	}
	if len(m.Description) == 0 {
		return testError("description", "non-empty map", m.Description)
	}
	if m.IPVersion != 4 && m.IPVersion != 6 {
		return testError("ip_version", "4 or 6", m.IPVersion)
	}
	if m.RecordSize != 24 && m.RecordSize != 28 && m.RecordSize != 32 {
		return testError("record_size", "24, 28, or 32", m.RecordSize)
	}
	if m.NodeCount == 0 {
		return testError("node_count", "positive integer", m.NodeCount)
	}
	return nil
}

func (v *verifier) verifyDataSectionSeparator() error {
	separator := v.reader.buffer[v.reader.Metadata.treeSize() : v.reader.dataStart]
	for _, b := range separator {
		if b != 0 {
			return mmdberrors.NewInvalidDatabaseError(
				"unexpected byte in data separator: %v", separator,
			)
		}
	}
	return nil
}

// verifySearchTree iterates every network the tree exposes, which forces a
// decode of every reachable data-section value; a malformed tree or a
// corrupt data-section entry surfaces here as an error.
func (v *verifier) verifySearchTree() error {
	for range v.reader.Networks() {
	}
	return v.reader.NetworksErr()
}

func testError(field string, expected, actual any) error {
	return mmdberrors.NewInvalidDatabaseError(
		"%v - Expected: %v Actual: %v", field, expected, actual,
	)
}
