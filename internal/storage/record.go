package storage

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strings"
	"unicode/utf8"
)

const (
	NameSize         = 100
	VolumeWeightSize = 20
	DescriptionSize  = 200

	// ID(4) + Price(8) + BrandID(4) + CategoryID(4) + Name(100) + VolumeWeight(20) + Description(200) = 340 bytes
	RecordSize = 4 + 8 + 4 + 4 + NameSize + VolumeWeightSize + DescriptionSize

	idPos           = 0
	pricePos        = idPos + 4
	brandPos        = pricePos + 8
	categoryPos     = brandPos + 4
	namePos         = categoryPos + 4
	volumeWeightPos = namePos + NameSize
	descPos         = volumeWeightPos + VolumeWeightSize
)

// Product is one fixed-size record of the store.
type Product struct {
	ID           int32   `json:"id"`
	Name         string  `json:"name"`
	Price        float64 `json:"price"`
	BrandID      int32   `json:"brandId"`
	CategoryID   int32   `json:"categoryId"`
	VolumeWeight string  `json:"volumeWeight"`
	Description  string  `json:"description"`
}

// IsValid reports whether p is a live record. A zeroed slot never is.
func (p *Product) IsValid() bool {
	return p.ID > 0 && strings.TrimSpace(p.Name) != "" && p.Price > 0
}

// Encode writes p into dst, which must hold at least RecordSize bytes.
// Strings longer than their field are cut at the last whole rune that fits.
func (p *Product) Encode(dst []byte) {
	dst = dst[:RecordSize]
	binary.BigEndian.PutUint32(dst[idPos:pricePos], uint32(p.ID))
	binary.BigEndian.PutUint64(dst[pricePos:brandPos], math.Float64bits(p.Price))
	binary.BigEndian.PutUint32(dst[brandPos:categoryPos], uint32(p.BrandID))
	binary.BigEndian.PutUint32(dst[categoryPos:namePos], uint32(p.CategoryID))
	putFixedString(dst[namePos:volumeWeightPos], p.Name)
	putFixedString(dst[volumeWeightPos:descPos], p.VolumeWeight)
	putFixedString(dst[descPos:RecordSize], p.Description)
}

// Bytes returns the encoded record.
func (p *Product) Bytes() []byte {
	buf := make([]byte, RecordSize)
	p.Encode(buf)
	return buf
}

// Decode reads a record from src. It never fails: garbage decodes to some
// Product whose validity the caller checks with IsValid.
// Note: the caller must pass at least RecordSize bytes.
func (p *Product) Decode(src []byte) {
	p.ID = int32(binary.BigEndian.Uint32(src[idPos:pricePos]))
	p.Price = math.Float64frombits(binary.BigEndian.Uint64(src[pricePos:brandPos]))
	p.BrandID = int32(binary.BigEndian.Uint32(src[brandPos:categoryPos]))
	p.CategoryID = int32(binary.BigEndian.Uint32(src[categoryPos:namePos]))
	p.Name = getFixedString(src[namePos:volumeWeightPos])
	p.VolumeWeight = getFixedString(src[volumeWeightPos:descPos])
	p.Description = getFixedString(src[descPos:RecordSize])
}

func (p Product) String() string {
	return fmt.Sprintf("Product[ID=%d, Name=%s, Price=%.2f, Brand=%d, Category=%d]",
		p.ID, p.Name, p.Price, p.BrandID, p.CategoryID)
}

// putFixedString copies s into dst and zero fills the rest of dst.
func putFixedString(dst []byte, s string) {
	s = truncateUTF8(s, len(dst))
	n := copy(dst, s)
	clear(dst[n:])
}

// getFixedString returns the bytes of src up to the first NUL.
func getFixedString(src []byte) string {
	if i := bytes.IndexByte(src, 0); i >= 0 {
		src = src[:i]
	}
	return string(src)
}

// truncateUTF8 returns the longest prefix of s of at most limit bytes that does
// not end inside a multi-byte sequence.
func truncateUTF8(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}
