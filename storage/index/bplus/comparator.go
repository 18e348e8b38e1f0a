package bplus

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"math"

	"storagecore/types"
)

// ColumnType is a composite key column's declared type, used to build
// a type-aware comparator rather than falling back to raw byte
// comparison for every column.
type ColumnType int

const (
	ColumnInt ColumnType = iota
	ColumnFloat
	ColumnString
)

func (t ColumnType) String() string {
	switch t {
	case ColumnInt:
		return "int"
	case ColumnFloat:
		return "float"
	case ColumnString:
		return "string"
	default:
		return "?"
	}
}

// ColumnSpec describes one column of a composite index key: its type
// and its fixed encoded width in bytes. Every column in an index's key
// is fixed-width, so a key's total length is the sum of its columns'
// Length values, and column boundaries never need to be discovered by
// scanning.
type ColumnSpec struct {
	Type   ColumnType
	Length int
}

const (
	intColumnWidth   = 8
	floatColumnWidth = 8
)

// EncodeInt64 packs v into a fixed 8-byte big-endian two's complement
// column value.
func EncodeInt64(v int64) []byte {
	buf := make([]byte, intColumnWidth)
	binary.BigEndian.PutUint64(buf, uint64(v))
	return buf
}

// EncodeFloat64 packs v into a fixed 8-byte column value carrying its
// raw IEEE 754 bit pattern.
func EncodeFloat64(v float64) []byte {
	buf := make([]byte, floatColumnWidth)
	binary.BigEndian.PutUint64(buf, math.Float64bits(v))
	return buf
}

// EncodeString packs s into a fixed-width column value, truncating or
// zero-padding on the right to width bytes.
func EncodeString(s string, width int) []byte {
	buf := make([]byte, width)
	copy(buf, s)
	return buf
}

// EncodeKey packs values into a single composite key per columns, in
// column order. values[i] must be int64 for ColumnInt, float64 for
// ColumnFloat, or string for ColumnString.
func EncodeKey(columns []ColumnSpec, values []interface{}) (types.Key, error) {
	if len(values) != len(columns) {
		return nil, fmt.Errorf("bplus: encode key: got %d values for %d columns", len(values), len(columns))
	}
	total := 0
	for _, c := range columns {
		total += c.Length
	}
	key := make(types.Key, 0, total)
	for i, c := range columns {
		switch c.Type {
		case ColumnInt:
			v, ok := values[i].(int64)
			if !ok {
				return nil, fmt.Errorf("bplus: encode key: column %d wants int64", i)
			}
			key = append(key, EncodeInt64(v)...)
		case ColumnFloat:
			v, ok := values[i].(float64)
			if !ok {
				return nil, fmt.Errorf("bplus: encode key: column %d wants float64", i)
			}
			key = append(key, EncodeFloat64(v)...)
		case ColumnString:
			v, ok := values[i].(string)
			if !ok {
				return nil, fmt.Errorf("bplus: encode key: column %d wants string", i)
			}
			key = append(key, EncodeString(v, c.Length)...)
		default:
			return nil, fmt.Errorf("bplus: encode key: unknown column type %v", c.Type)
		}
	}
	return key, nil
}

// DefaultComparator orders keys by raw byte comparison. Used when a
// tree carries no column specs (an uninterpreted opaque key), and as
// the string-column comparison rule inside NewComparator.
func DefaultComparator(a, b types.Key) int { return bytes.Compare(a, b) }

// NewComparator builds a per-column, type-aware comparator over a
// composite key packed as columns back to back in declaration order:
// integers and floats are decoded and compared numerically rather than
// byte-wise, since a two's-complement or IEEE 754 bit pattern doesn't
// order the same way its value does once negative numbers are in play;
// fixed-width strings compare with their trailing zero padding
// stripped. Falls back to DefaultComparator when columns is empty.
func NewComparator(columns []ColumnSpec) func(a, b types.Key) int {
	if len(columns) == 0 {
		return DefaultComparator
	}
	return func(a, b types.Key) int {
		offset := 0
		for _, col := range columns {
			end := offset + col.Length
			ca := sliceColumn(a, offset, end)
			cb := sliceColumn(b, offset, end)
			if c := compareColumn(col, ca, cb); c != 0 {
				return c
			}
			offset = end
		}
		return 0
	}
}

func sliceColumn(k types.Key, offset, end int) []byte {
	if offset >= len(k) {
		return nil
	}
	if end > len(k) {
		end = len(k)
	}
	return k[offset:end]
}

func compareColumn(col ColumnSpec, ca, cb []byte) int {
	switch col.Type {
	case ColumnInt:
		ia, ib := decodeInt64(ca), decodeInt64(cb)
		switch {
		case ia < ib:
			return -1
		case ia > ib:
			return 1
		default:
			return 0
		}
	case ColumnFloat:
		fa, fb := decodeFloat64(ca), decodeFloat64(cb)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		default:
			return 0
		}
	default: // ColumnString
		return bytes.Compare(bytes.TrimRight(ca, "\x00"), bytes.TrimRight(cb, "\x00"))
	}
}

func decodeInt64(b []byte) int64 {
	var buf [intColumnWidth]byte
	copy(buf[:], b)
	return int64(binary.BigEndian.Uint64(buf[:]))
}

func decodeFloat64(b []byte) float64 {
	var buf [floatColumnWidth]byte
	copy(buf[:], b)
	return math.Float64frombits(binary.BigEndian.Uint64(buf[:]))
}
