package asn

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"io"
	"strings"
)

// DialectOptions configures FromDelimited. The zero value auto-detects
// the delimiter from the first 1 KiB of input.
type DialectOptions struct {
	// Delimiter overrides dialect auto-detection when non-zero.
	Delimiter rune
}

// FromDelimited reads a CSV or TSV stream where column 0 is the ASN and
// column 2 is its description; a header row, if present, is harmless
// since it never collides with a real ASN lookup. Rows with fewer than
// 3 columns are skipped, since some TSV exports omit the trailing
// country column.
func FromDelimited(r io.Reader, opts DialectOptions) (Table, error) {
	br := bufio.NewReaderSize(r, 4096)

	delim := opts.Delimiter
	if delim == 0 {
		delim = sniffDelimiter(br)
	}

	cr := csv.NewReader(br)
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true

	table := make(Table)
	for {
		record, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(record) < 3 {
			continue
		}
		table[strings.TrimSpace(record[0])] = record[2]
	}
	return table, nil
}

// sniffDelimiter peeks at up to 1 KiB of br without consuming it and
// picks tab over comma when tabs are the more frequent separator,
// matching the reference tool's "sniff the first 1 KiB" dialect check.
func sniffDelimiter(br *bufio.Reader) rune {
	peek, _ := br.Peek(1024)
	if bytes.Count(peek, []byte{'\t'}) > bytes.Count(peek, []byte{','}) {
		return '\t'
	}
	return ','
}
