package cart

import (
	"encoding/binary"
	"fmt"
	"io"
)

// writeBlob writes a length-prefixed byte slice.
func writeBlob(w io.Writer, b []byte) error {
	if err := binary.Write(w, binary.BigEndian, uint32(len(b))); err != nil {
		return err
	}
	_, err := w.Write(b)
	return err
}

// readBlobInto reads a length-prefixed byte slice into dst. The stored length
// must match exactly: a mismatch means the save state belongs to a different
// cartridge and is treated as corrupt.
func readBlobInto(r io.Reader, dst []byte) error {
	var n uint32
	if err := binary.Read(r, binary.BigEndian, &n); err != nil {
		return err
	}
	if int(n) != len(dst) {
		return fmt.Errorf("cart: state RAM size %d does not match cartridge RAM size %d", n, len(dst))
	}
	_, err := io.ReadFull(r, dst)
	return err
}
