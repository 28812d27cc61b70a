package fgb

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/paulmach/orb/geojson"
)

// InferColumns derives a schema from the properties of features. Columns are
// sorted by name. A column holding both integers and floats becomes Double;
// any other mix of kinds becomes String, or JSON when a value is structured.
func InferColumns(features []*geojson.Feature) []Column {
	types := map[string]ColumnType{}
	for _, f := range features {
		if f == nil {
			continue
		}
		for name, value := range f.Properties {
			t, ok := valueType(value)
			if !ok {
				if _, seen := types[name]; !seen {
					types[name] = ColumnString
				}
				continue
			}
			if prev, seen := types[name]; seen {
				t = promote(prev, t)
			}
			types[name] = t
		}
	}

	names := make([]string, 0, len(types))
	for name := range types {
		names = append(names, name)
	}
	sort.Strings(names)

	columns := make([]Column, len(names))
	for i, name := range names {
		columns[i] = Column{Name: name, Type: types[name]}
	}
	return columns
}

// valueType returns the column type for a Go value; nil reports false.
func valueType(v interface{}) (ColumnType, bool) {
	switch v := v.(type) {
	case nil:
		return 0, false
	case bool:
		return ColumnBool, true
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return ColumnLong, true
	case float32:
		return ColumnDouble, true
	case float64:
		if v == math.Trunc(v) && math.Abs(v) < 1<<53 {
			return ColumnLong, true
		}
		return ColumnDouble, true
	case json.Number:
		if _, err := v.Int64(); err == nil {
			return ColumnLong, true
		}
		return ColumnDouble, true
	case string:
		return ColumnString, true
	case time.Time:
		return ColumnDateTime, true
	default:
		return ColumnJSON, true
	}
}

func promote(a, b ColumnType) ColumnType {
	switch {
	case a == b:
		return a
	case a == ColumnJSON || b == ColumnJSON:
		return ColumnJSON
	case (a == ColumnLong && b == ColumnDouble) || (a == ColumnDouble && b == ColumnLong):
		return ColumnDouble
	default:
		return ColumnString
	}
}

// encodeProperties encodes props as FlatGeobuf property bytes: for each
// non-null value a little-endian uint16 column index followed by the value.
func encodeProperties(props geojson.Properties, columns []Column) ([]byte, error) {
	var buf []byte
	for i, col := range columns {
		value, ok := props[col.Name]
		if !ok || value == nil {
			continue
		}

		buf = binary.LittleEndian.AppendUint16(buf, uint16(i))

		var err error
		buf, err = appendValue(buf, col, value)
		if err != nil {
			return nil, err
		}
	}
	return buf, nil
}

func appendValue(buf []byte, col Column, value interface{}) ([]byte, error) {
	switch col.Type {
	case flattypes.ColumnTypeBool:
		b, ok := value.(bool)
		if !ok {
			return nil, mismatch(col, value)
		}
		if b {
			return append(buf, 1), nil
		}
		return append(buf, 0), nil

	case flattypes.ColumnTypeByte, flattypes.ColumnTypeUByte:
		n, ok := toInt64(value)
		if !ok {
			return nil, mismatch(col, value)
		}
		return append(buf, byte(n)), nil

	case flattypes.ColumnTypeShort, flattypes.ColumnTypeUShort:
		n, ok := toInt64(value)
		if !ok {
			return nil, mismatch(col, value)
		}
		return binary.LittleEndian.AppendUint16(buf, uint16(n)), nil

	case flattypes.ColumnTypeInt, flattypes.ColumnTypeUInt:
		n, ok := toInt64(value)
		if !ok {
			return nil, mismatch(col, value)
		}
		return binary.LittleEndian.AppendUint32(buf, uint32(n)), nil

	case flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		n, ok := toInt64(value)
		if !ok {
			return nil, mismatch(col, value)
		}
		return binary.LittleEndian.AppendUint64(buf, uint64(n)), nil

	case flattypes.ColumnTypeFloat:
		f, ok := toFloat64(value)
		if !ok {
			return nil, mismatch(col, value)
		}
		return binary.LittleEndian.AppendUint32(buf, math.Float32bits(float32(f))), nil

	case flattypes.ColumnTypeDouble:
		f, ok := toFloat64(value)
		if !ok {
			return nil, mismatch(col, value)
		}
		return binary.LittleEndian.AppendUint64(buf, math.Float64bits(f)), nil

	case flattypes.ColumnTypeString:
		return appendSized(buf, []byte(toString(value))), nil

	case flattypes.ColumnTypeDateTime:
		if t, ok := value.(time.Time); ok {
			return appendSized(buf, []byte(t.UTC().Format(time.RFC3339))), nil
		}
		return appendSized(buf, []byte(toString(value))), nil

	case flattypes.ColumnTypeJson:
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("%w: column %q: %v", ErrPropertyMismatch, col.Name, err)
		}
		return appendSized(buf, data), nil

	case flattypes.ColumnTypeBinary:
		b, ok := value.([]byte)
		if !ok {
			return nil, mismatch(col, value)
		}
		return appendSized(buf, b), nil

	default:
		return nil, fmt.Errorf("%w: %q has type %d", ErrInvalidColumn, col.Name, col.Type)
	}
}

func appendSized(buf, data []byte) []byte {
	buf = binary.LittleEndian.AppendUint32(buf, uint32(len(data)))
	return append(buf, data...)
}

func mismatch(col Column, value interface{}) error {
	return fmt.Errorf("%w: column %q (%s) cannot hold %T", ErrPropertyMismatch, col.Name, col.TypeName(), value)
}

// decodeProperties decodes FlatGeobuf property bytes. Integer columns decode
// to int64, floating point columns to float64, text columns to string.
func decodeProperties(data []byte, columns []Column) (geojson.Properties, error) {
	props := geojson.Properties{}

	for off := 0; off < len(data); {
		if off+2 > len(data) {
			return nil, fmt.Errorf("%w: truncated column index", ErrInvalidColumn)
		}
		idx := int(binary.LittleEndian.Uint16(data[off:]))
		off += 2

		if idx >= len(columns) {
			return nil, fmt.Errorf("%w: index %d of %d columns", ErrInvalidColumn, idx, len(columns))
		}
		col := columns[idx]

		value, n, err := readValue(data[off:], col)
		if err != nil {
			return nil, err
		}
		off += n
		props[col.Name] = value
	}

	return props, nil
}

func readValue(data []byte, col Column) (interface{}, int, error) {
	need := func(n int) error {
		if len(data) < n {
			return fmt.Errorf("%w: truncated value for %q", ErrInvalidColumn, col.Name)
		}
		return nil
	}

	switch col.Type {
	case flattypes.ColumnTypeBool:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return data[0] != 0, 1, nil

	case flattypes.ColumnTypeByte:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return int64(int8(data[0])), 1, nil

	case flattypes.ColumnTypeUByte:
		if err := need(1); err != nil {
			return nil, 0, err
		}
		return int64(data[0]), 1, nil

	case flattypes.ColumnTypeShort:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return int64(int16(binary.LittleEndian.Uint16(data))), 2, nil

	case flattypes.ColumnTypeUShort:
		if err := need(2); err != nil {
			return nil, 0, err
		}
		return int64(binary.LittleEndian.Uint16(data)), 2, nil

	case flattypes.ColumnTypeInt:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return int64(int32(binary.LittleEndian.Uint32(data))), 4, nil

	case flattypes.ColumnTypeUInt:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return int64(binary.LittleEndian.Uint32(data)), 4, nil

	case flattypes.ColumnTypeLong, flattypes.ColumnTypeULong:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return int64(binary.LittleEndian.Uint64(data)), 8, nil

	case flattypes.ColumnTypeFloat:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		return float64(math.Float32frombits(binary.LittleEndian.Uint32(data))), 4, nil

	case flattypes.ColumnTypeDouble:
		if err := need(8); err != nil {
			return nil, 0, err
		}
		return math.Float64frombits(binary.LittleEndian.Uint64(data)), 8, nil

	case flattypes.ColumnTypeString, flattypes.ColumnTypeDateTime,
		flattypes.ColumnTypeJson, flattypes.ColumnTypeBinary:
		if err := need(4); err != nil {
			return nil, 0, err
		}
		size := int(binary.LittleEndian.Uint32(data))
		if err := need(4 + size); err != nil {
			return nil, 0, err
		}
		raw := data[4 : 4+size]

		switch col.Type {
		case flattypes.ColumnTypeBinary:
			return append([]byte(nil), raw...), 4 + size, nil
		case flattypes.ColumnTypeJson:
			var v interface{}
			if err := json.Unmarshal(raw, &v); err != nil {
				return string(raw), 4 + size, nil
			}
			return v, 4 + size, nil
		default:
			return string(raw), 4 + size, nil
		}

	default:
		return nil, 0, fmt.Errorf("%w: %q has type %d", ErrInvalidColumn, col.Name, col.Type)
	}
}

func toInt64(v interface{}) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		return int64(v), true
	case float32:
		return int64(v), true
	case float64:
		return int64(v), true
	case json.Number:
		if n, err := v.Int64(); err == nil {
			return n, true
		}
	}
	return 0, false
}

func toFloat64(v interface{}) (float64, bool) {
	if f, ok := v.(float64); ok {
		return f, true
	}
	if f, ok := v.(float32); ok {
		return float64(f), true
	}
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	n, ok := toInt64(v)
	return float64(n), ok
}

func toString(v interface{}) string {
	switch v := v.(type) {
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		data, err := json.Marshal(v)
		if err != nil {
			return fmt.Sprint(v)
		}
		return string(data)
	}
}
