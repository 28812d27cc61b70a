// Package fgb reads and writes FlatGeobuf files as orb GeoJSON features.
//
// Property columns use a fixed, name-sorted schema so that every feature in a
// file encodes its values in the column's declared type. Strings, JSON and
// date-time values are length-prefixed as in files produced by GDAL.
package fgb

import (
	"errors"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
)

// Common errors returned by this package.
var (
	ErrNoFeatures       = errors.New("fgb: no features to write")
	ErrTruncated        = errors.New("fgb: truncated feature data")
	ErrInvalidColumn    = errors.New("fgb: invalid column")
	ErrPropertyMismatch = errors.New("fgb: property type mismatch")
)

// magic opens every FlatGeobuf file; the header size follows it.
var magic = []byte{0x66, 0x67, 0x62, 0x03, 0x66, 0x67, 0x62, 0x00}

// ColumnType is a FlatGeobuf property column type.
type ColumnType = flattypes.ColumnType

// Column types produced by schema inference.
const (
	ColumnBool     = flattypes.ColumnTypeBool
	ColumnLong     = flattypes.ColumnTypeLong
	ColumnDouble   = flattypes.ColumnTypeDouble
	ColumnString   = flattypes.ColumnTypeString
	ColumnJSON     = flattypes.ColumnTypeJson
	ColumnDateTime = flattypes.ColumnTypeDateTime
)

// CRS represents a coordinate reference system.
type CRS struct {
	Code        int    // EPSG code
	Name        string
	Description string
}

// WGS84 returns EPSG:4326, the CRS of the fire perimeter collections.
func WGS84() *CRS {
	return &CRS{
		Code: 4326,
		Name: "WGS 84",
	}
}

// Column describes a property column.
type Column struct {
	Name string
	Type ColumnType
}

// TypeName returns the FlatGeobuf name of the column type ("Long", "String", ...).
func (c Column) TypeName() string {
	return flattypes.EnumNamesColumnType[c.Type]
}

// Options configures FlatGeobuf writing.
type Options struct {
	Name         string // layer name
	Description  string
	IncludeIndex bool // packed R-tree for bbox search
	CRS          *CRS

	// Columns fixes the schema. When empty it is inferred from the features.
	Columns []Column
}

// DefaultOptions returns indexed WGS84 output options.
func DefaultOptions() *Options {
	return &Options{
		IncludeIndex: true,
		CRS:          WGS84(),
	}
}

// Header contains metadata about a FlatGeobuf file.
type Header struct {
	Name          string
	Description   string
	GeometryType  string
	FeaturesCount uint64
	Envelope      [4]float64 // minX, minY, maxX, maxY
	CRS           *CRS
	HasIndex      bool
	Columns       []Column
}
