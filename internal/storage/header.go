package storage

import (
	"encoding/binary"
	"fmt"
	"strings"
)

const (
	Signature = "PRODDB1"
	Version   = 1

	// Signature(16) + Version(4) + RecordCount(4) + DataOffset(8) + IndexOffset(8) + FreeSpaceOffset(8),
	// zero padded to 128 bytes.
	HeaderSize = 128

	signatureWidth = 16
	versionPos     = signatureWidth
	countPos       = versionPos + 4
	dataOffPos     = countPos + 4
	indexOffPos    = dataOffPos + 8
	freeOffPos     = indexOffPos + 8
	headerUsed     = freeOffPos + 8
)

// unusedOffset is written to the legacy index/free-space fields.
const unusedOffset = -1

// Header is the fixed metadata block at offset 0 of a database file.
type Header struct {
	Signature   string
	Version     int32
	RecordCount int32
	DataOffset  int64

	// IndexOffset and FreeSpaceOffset are reserved. They are always
	// written as -1 and never read back for any decision.
	IndexOffset     int64
	FreeSpaceOffset int64
}

// NewHeader returns the header of an empty database.
func NewHeader() Header {
	return Header{
		Signature:       Signature,
		Version:         Version,
		RecordCount:     0,
		DataOffset:      HeaderSize,
		IndexOffset:     unusedOffset,
		FreeSpaceOffset: unusedOffset,
	}
}

// Encode writes the header into dst, which must hold at least HeaderSize bytes.
// Bytes past the used fields are zeroed.
func (h *Header) Encode(dst []byte) {
	dst = dst[:HeaderSize]
	clear(dst)
	putFixedString(dst[0:signatureWidth], h.Signature)
	binary.BigEndian.PutUint32(dst[versionPos:countPos], uint32(h.Version))
	binary.BigEndian.PutUint32(dst[countPos:dataOffPos], uint32(h.RecordCount))
	binary.BigEndian.PutUint64(dst[dataOffPos:indexOffPos], uint64(h.DataOffset))
	binary.BigEndian.PutUint64(dst[indexOffPos:freeOffPos], uint64(h.IndexOffset))
	binary.BigEndian.PutUint64(dst[freeOffPos:headerUsed], uint64(h.FreeSpaceOffset))
}

// Bytes returns the encoded header.
func (h *Header) Bytes() []byte {
	buf := make([]byte, HeaderSize)
	h.Encode(buf)
	return buf
}

// Decode reads a header from src. src must be exactly HeaderSize bytes long.
func (h *Header) Decode(src []byte) error {
	if len(src) != HeaderSize {
		return fmt.Errorf("%w: header is %d bytes, want %d", ErrInvalidFormat, len(src), HeaderSize)
	}

	h.Signature = strings.TrimFunc(string(src[0:signatureWidth]), isControlOrSpace)
	h.Version = int32(binary.BigEndian.Uint32(src[versionPos:countPos]))
	h.RecordCount = int32(binary.BigEndian.Uint32(src[countPos:dataOffPos]))
	h.DataOffset = int64(binary.BigEndian.Uint64(src[dataOffPos:indexOffPos]))
	h.IndexOffset = int64(binary.BigEndian.Uint64(src[indexOffPos:freeOffPos]))
	h.FreeSpaceOffset = int64(binary.BigEndian.Uint64(src[freeOffPos:headerUsed]))
	return nil
}

// isControlOrSpace matches the padding stripped around a stored signature:
// NUL, ASCII control characters and space.
func isControlOrSpace(r rune) bool {
	return r <= ' '
}

// IsValid reports whether the header belongs to a database this package can read.
func (h *Header) IsValid() bool {
	return h.Signature == Signature &&
		h.Version == Version &&
		h.DataOffset >= HeaderSize
}
