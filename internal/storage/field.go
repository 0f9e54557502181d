package storage

import (
	"fmt"
	"strconv"
	"strings"
)

// Field names a searchable column of a Product.
type Field int

const (
	FieldID Field = iota
	FieldName
	FieldPrice
	FieldBrandID
	FieldCategoryID
	FieldVolumeWeight
	FieldDescription
)

var fieldNames = [...]string{
	FieldID:           "id",
	FieldName:         "name",
	FieldPrice:        "price",
	FieldBrandID:      "brandId",
	FieldCategoryID:   "categoryId",
	FieldVolumeWeight: "volumeWeight",
	FieldDescription:  "description",
}

// Fields lists every field in record order.
func Fields() []Field {
	return []Field{FieldID, FieldName, FieldPrice, FieldBrandID, FieldCategoryID, FieldVolumeWeight, FieldDescription}
}

func (f Field) String() string {
	if f < 0 || int(f) >= len(fieldNames) {
		return fmt.Sprintf("Field(%d)", int(f))
	}
	return fieldNames[f]
}

// ParseField resolves a field by its name, ignoring case.
func ParseField(name string) (Field, error) {
	for i, n := range fieldNames {
		if strings.EqualFold(n, strings.TrimSpace(name)) {
			return Field(i), nil
		}
	}
	return 0, fmt.Errorf("unknown field %q", name)
}

// ParseValue converts raw user input to the value type FindRecordsByField
// expects for f: int32 for id, brandId and categoryId, float64 for price and
// the trimmed string otherwise.
func (f Field) ParseValue(raw string) (any, error) {
	raw = strings.TrimSpace(raw)
	switch f {
	case FieldID, FieldBrandID, FieldCategoryID:
		n, err := strconv.ParseInt(raw, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("%s must be an integer: %w", f, err)
		}
		return int32(n), nil
	case FieldPrice:
		v, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			return nil, fmt.Errorf("%s must be a number: %w", f, err)
		}
		return v, nil
	default:
		return raw, nil
	}
}

// text returns the value of a free-text field. ok is false for numeric fields.
func (f Field) text(p *Product) (s string, ok bool) {
	switch f {
	case FieldName:
		return p.Name, true
	case FieldVolumeWeight:
		return p.VolumeWeight, true
	case FieldDescription:
		return p.Description, true
	default:
		return "", false
	}
}

func asInt32(v any) (int32, bool) {
	switch n := v.(type) {
	case int32:
		return n, true
	case int:
		return int32(n), int(int32(n)) == n
	case int64:
		return int32(n), int64(int32(n)) == n
	default:
		return 0, false
	}
}

func asFloat64(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}
