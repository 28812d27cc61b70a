// Package perimeter interprets fire perimeter features: attribute access,
// perimeter timestamps, centroids, filtering and per-fire summaries.
//
// The features API names the fire id property "fireid" while the local
// FlatGeobuf exports call it "fireID"; every accessor accepts both.
package perimeter

import (
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
)

// Property names used by the perimeter collections.
const (
	PropFireID      = "fireid"
	PropFireIDLocal = "fireID"
	PropRegion      = "region"
	PropPrimaryKey  = "primarykey"
	PropFarea       = "farea"
	PropTime        = "t"
)

var (
	ErrNoFireID    = errors.New("perimeter: missing fire id")
	ErrNoTimestamp = errors.New("perimeter: missing or unparseable timestamp")
)

// timeLayouts are tried in order; zone-less values are read as UTC.
var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02 15:04:05Z07:00",
	"2006-01-02T15:04",
	"2006-01-02",
}

// FireID returns the fire id of f from "fireid" or "fireID".
func FireID(f *geojson.Feature) (int, error) {
	for _, key := range []string{PropFireID, PropFireIDLocal} {
		if v, ok := f.Properties[key]; ok && v != nil {
			if n, ok := toFloat(v); ok {
				return int(n), nil
			}
		}
	}
	return 0, ErrNoFireID
}

// Region returns the region property, or "".
func Region(f *geojson.Feature) string {
	return f.Properties.MustString(PropRegion, "")
}

// PrimaryKey returns the primarykey property, or "".
func PrimaryKey(f *geojson.Feature) string {
	return f.Properties.MustString(PropPrimaryKey, "")
}

// Farea returns the fire area property and whether it was present.
func Farea(f *geojson.Feature) (float64, bool) {
	v, ok := f.Properties[PropFarea]
	if !ok || v == nil {
		return 0, false
	}
	return toFloat(v)
}

// PerimeterTime parses the timestamp carried in the last "|" separated
// segment of primarykey, e.g. "CONUS|415|2024-08-01T12:00:00".
func PerimeterTime(f *geojson.Feature) (time.Time, error) {
	key := PrimaryKey(f)
	if key == "" {
		return time.Time{}, ErrNoTimestamp
	}
	segment := key[strings.LastIndex(key, "|")+1:]
	return ParseTime(segment)
}

// ObservedTime returns the "t" property as a time.
func ObservedTime(f *geojson.Feature) (time.Time, error) {
	switch v := f.Properties[PropTime].(type) {
	case time.Time:
		return v.UTC(), nil
	case string:
		return ParseTime(v)
	default:
		return time.Time{}, ErrNoTimestamp
	}
}

// ParseTime parses the timestamp formats found in perimeter attributes.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, layout := range timeLayouts {
		if t, err := time.ParseInLocation(layout, s, time.UTC); err == nil {
			return t.UTC(), nil
		}
	}
	return time.Time{}, ErrNoTimestamp
}

// Centroid returns the area weighted centroid of the feature geometry.
// Geometries without area or length fall back to the center of their bound.
func Centroid(f *geojson.Feature) (orb.Point, bool) {
	if f == nil || f.Geometry == nil {
		return orb.Point{}, false
	}

	c, area := planar.CentroidArea(f.Geometry)
	if area == 0 && c == (orb.Point{}) {
		return f.Geometry.Bound().Center(), true
	}
	return c, true
}

func toFloat(v interface{}) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case int:
		return float64(v), true
	case int32:
		return float64(v), true
	case int64:
		return float64(v), true
	case uint32:
		return float64(v), true
	case uint64:
		return float64(v), true
	case json.Number:
		n, err := v.Float64()
		return n, err == nil
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		return n, err == nil
	default:
		return 0, false
	}
}
