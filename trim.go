package mmdb

import (
	"io"
	"os"

	"github.com/pkg/errors"

	"github.com/sbng/mrt2mmdb/internal/mmdberrors"
)

// Trim produces a new MMDB file at inPath + ".trim" whose data section has
// been replaced with a re-encoded version that omits the keys in dropKeys,
// recursively, from every map at any depth. The tree keeps its shape and
// the metadata section is copied verbatim, but every non-empty leaf record
// is rewritten to point at its payload's new data offset. Payloads are
// re-encoded in the order Networks visits them, so those record values,
// and with them the tree bytes, can differ from the input's even when
// dropKeys is empty.
func Trim(inPath string, dropKeys []string) (string, error) {
	outPath := inPath + ".trim"
	if err := copyFile(inPath, outPath); err != nil {
		return "", errors.Wrap(err, "error copying database for trim")
	}

	reader, err := Open(inPath)
	if err != nil {
		return "", err
	}
	defer reader.Close()

	drop := make(map[string]struct{}, len(dropKeys))
	for _, k := range dropKeys {
		drop[k] = struct{}{}
	}

	enc := NewEncoder(true)

	type leafPatch struct {
		fileOffset uint
		bit        uint
		value      uint
	}
	var patches []leafPatch

	maxRecordValue := uint(1) << reader.Metadata.RecordSize

	for prefix, payload := range reader.Networks() {
		trimmed := RemoveKeys(payload, drop)
		ptrBytes, err := enc.Encode(trimmed)
		if err != nil {
			return "", err
		}
		offset, err := decodePointerBytes(ptrBytes)
		if err != nil {
			return "", err
		}

		recordValue := offset + reader.Metadata.NodeCount + dataSectionSeparatorSize
		if recordValue >= maxRecordValue {
			return "", mmdberrors.NewEncodeOverflowError(
				"trimmed data offset %d no longer fits in %d-bit records",
				offset, reader.Metadata.RecordSize,
			)
		}

		slot, err := reader.FindLeafSlot(prefix.Addr())
		if err != nil {
			return "", err
		}
		patches = append(patches, leafPatch{slot.FileOffset, slot.Bit, recordValue})
	}
	if err := reader.NetworksErr(); err != nil {
		return "", err
	}

	out, err := os.OpenFile(outPath, os.O_RDWR, 0o644)
	if err != nil {
		return "", err
	}
	defer out.Close() //nolint:errcheck // best-effort close, errors surfaced on write/truncate above

	recordBytes := 2 * reader.Metadata.RecordSize / 8
	slotBuf := make([]byte, recordBytes)
	for _, p := range patches {
		if _, err := out.ReadAt(slotBuf, int64(p.fileOffset)); err != nil {
			return "", errors.Wrap(err, "error reading record slot")
		}
		patchRecord(slotBuf, p.bit, p.value, reader.Metadata.RecordSize)
		if _, err := out.WriteAt(slotBuf, int64(p.fileOffset)); err != nil {
			return "", errors.Wrap(err, "error patching record slot")
		}
	}

	treeSize := reader.Metadata.treeSize()
	dataStart := treeSize + dataSectionSeparatorSize
	newData := enc.Bytes()
	metaSection := reader.buffer[reader.dataEnd:]

	if _, err := out.WriteAt(newData, int64(dataStart)); err != nil {
		return "", errors.Wrap(err, "error writing trimmed data section")
	}
	metaOffset := int64(dataStart) + int64(len(newData))
	if _, err := out.WriteAt(metaSection, metaOffset); err != nil {
		return "", errors.Wrap(err, "error writing preserved metadata section")
	}
	if err := out.Truncate(metaOffset + int64(len(metaSection))); err != nil {
		return "", errors.Wrap(err, "error truncating trimmed file")
	}

	return outPath, nil
}

// patchRecord overwrites one side (0=left, 1=right) of an already-decoded
// record-sized slot with value, preserving the other side's bits. For
// 28-bit records the two sides share byte index 3, so only its relevant
// nibble is touched.
func patchRecord(buf []byte, bit, value, recordSize uint) {
	switch recordSize {
	case 24:
		offset := bit * 3
		buf[offset] = byte(value >> 16)
		buf[offset+1] = byte(value >> 8)
		buf[offset+2] = byte(value)
	case 28:
		if bit == 0 {
			buf[0] = byte(value >> 16)
			buf[1] = byte(value >> 8)
			buf[2] = byte(value)
			buf[3] = (buf[3] & 0x0F) | byte((value>>24)&0x0F)<<4
		} else {
			buf[4] = byte(value >> 16)
			buf[5] = byte(value >> 8)
			buf[6] = byte(value)
			buf[3] = (buf[3] & 0xF0) | byte((value>>24)&0x0F)
		}
	case 32:
		offset := bit * 4
		buf[offset] = byte(value >> 24)
		buf[offset+1] = byte(value >> 16)
		buf[offset+2] = byte(value >> 8)
		buf[offset+3] = byte(value)
	}
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	stat, err := in.Stat()
	if err != nil {
		return err
	}

	out, err := os.OpenFile(dst, os.O_RDWR|os.O_CREATE|os.O_TRUNC, stat.Mode())
	if err != nil {
		return err
	}
	defer out.Close()

	_, err = io.Copy(out, in)
	return err
}
