package fgb

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

func square(x, y, size float64) orb.Polygon {
	return orb.Polygon{{{x, y}, {x + size, y}, {x + size, y + size}, {x, y + size}, {x, y}}}
}

func writeAndRead(t *testing.T, features []*geojson.Feature, opts *Options) *Reader {
	t.Helper()

	var buf bytes.Buffer
	if err := WriteFeatures(&buf, features, opts); err != nil {
		t.Fatalf("WriteFeatures failed: %v", err)
	}

	data := buf.Bytes()
	if !bytes.HasPrefix(data, magic[:7]) {
		t.Fatalf("missing FlatGeobuf magic bytes: % x", data[:8])
	}

	r, err := NewReader(data)
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	return r
}

func TestNewReader_Invalid(t *testing.T) {
	tests := []struct {
		name string
		data []byte
	}{
		{"empty", []byte{}},
		{"not flatgeobuf", []byte("not a flatgeobuf file")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewReader(tt.data); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestRoundTrip_Perimeters(t *testing.T) {
	var features []*geojson.Feature
	for i := 0; i < 5; i++ {
		f := geojson.NewFeature(square(float64(i*10), 40, 1))
		f.Properties = geojson.Properties{
			"fireID":     float64(415 + i),
			"region":     "CONUS",
			"farea":      12.5 * float64(i+1),
			"primarykey": "CONUS|415|2024-08-0" + string(rune('1'+i)) + "T12:00:00",
			"isactive":   i%2 == 0,
		}
		features = append(features, f)
	}

	r := writeAndRead(t, features, &Options{Name: "perimeters", IncludeIndex: true, CRS: WGS84()})

	h := r.Header()
	if h.Name != "perimeters" {
		t.Errorf("Name = %q", h.Name)
	}
	if h.FeaturesCount != 5 {
		t.Errorf("FeaturesCount = %d, want 5", h.FeaturesCount)
	}
	if h.GeometryType != "Polygon" {
		t.Errorf("GeometryType = %q, want Polygon", h.GeometryType)
	}
	if h.CRS == nil || h.CRS.Code != 4326 {
		t.Errorf("CRS = %+v, want EPSG:4326", h.CRS)
	}
	if !h.HasIndex {
		t.Error("expected spatial index")
	}

	wantColumns := []Column{
		{Name: "farea", Type: ColumnDouble},
		{Name: "fireID", Type: ColumnLong},
		{Name: "isactive", Type: ColumnBool},
		{Name: "primarykey", Type: ColumnString},
		{Name: "region", Type: ColumnString},
	}
	if len(h.Columns) != len(wantColumns) {
		t.Fatalf("got %d columns, want %d", len(h.Columns), len(wantColumns))
	}
	for i, c := range wantColumns {
		if h.Columns[i] != c {
			t.Errorf("column %d = %+v (%s), want %+v", i, h.Columns[i], h.Columns[i].TypeName(), c)
		}
	}

	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d features, want 5", len(got))
	}

	byID := map[int64]*geojson.Feature{}
	for _, f := range got {
		id, ok := f.Properties["fireID"].(int64)
		if !ok {
			t.Fatalf("fireID decoded as %T", f.Properties["fireID"])
		}
		byID[id] = f
	}

	f := byID[417]
	if f == nil {
		t.Fatal("fire 417 missing")
	}
	if f.Properties["region"] != "CONUS" {
		t.Errorf("region = %v", f.Properties["region"])
	}
	if f.Properties["farea"] != 37.5 {
		t.Errorf("farea = %v, want 37.5", f.Properties["farea"])
	}
	if f.Properties["isactive"] != true {
		t.Errorf("isactive = %v, want true", f.Properties["isactive"])
	}

	poly, ok := f.Geometry.(orb.Polygon)
	if !ok {
		t.Fatalf("geometry is %T, want orb.Polygon", f.Geometry)
	}
	if !orb.Equal(poly, square(20, 40, 1)) {
		t.Errorf("geometry = %v", poly)
	}
}

func TestRoundTrip_MultiPolygonWithHole(t *testing.T) {
	withHole := orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {2, 4}, {4, 4}, {4, 2}, {2, 2}},
	}
	mp := orb.MultiPolygon{withHole, square(20, 20, 5)}

	f := geojson.NewFeature(mp)
	f.Properties = geojson.Properties{"fireid": 1}

	r := writeAndRead(t, []*geojson.Feature{f}, nil)

	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 1 {
		t.Fatalf("got %d features, want 1", len(got))
	}
	if !orb.Equal(got[0].Geometry, mp) {
		t.Errorf("geometry = %v, want %v", got[0].Geometry, mp)
	}
}

func TestRoundTrip_Points(t *testing.T) {
	var features []*geojson.Feature
	for i := 0; i < 10; i++ {
		f := geojson.NewFeature(orb.Point{float64(i), float64(i * 2)})
		f.Properties = geojson.Properties{"index": i}
		features = append(features, f)
	}

	r := writeAndRead(t, features, nil)

	got, err := r.Search(orb.Bound{Min: orb.Point{2, 4}, Max: orb.Point{4, 8}})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(got) != 3 {
		t.Errorf("Search returned %d features, want 3", len(got))
	}
}

func TestRoundTrip_NullsAndSparseProperties(t *testing.T) {
	a := geojson.NewFeature(orb.Point{0, 0})
	a.Properties = geojson.Properties{"name": "a", "note": nil}
	b := geojson.NewFeature(orb.Point{1, 1})
	b.Properties = geojson.Properties{"count": 3}

	r := writeAndRead(t, []*geojson.Feature{a, b}, nil)

	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}

	for _, f := range got {
		if _, ok := f.Properties["note"]; ok {
			t.Error("null property should not be written")
		}
		switch f.Properties["name"] {
		case "a":
			if _, ok := f.Properties["count"]; ok {
				t.Error("feature a should not have count")
			}
		case nil:
			if f.Properties["count"] != int64(3) {
				t.Errorf("count = %v", f.Properties["count"])
			}
		}
	}
}

func TestWriteFeatures_Empty(t *testing.T) {
	var buf bytes.Buffer

	err := WriteFeatures(&buf, nil, nil)
	if !errors.Is(err, ErrNoFeatures) {
		t.Errorf("expected ErrNoFeatures, got %v", err)
	}

	noGeom := &geojson.Feature{Type: "Feature", Properties: geojson.Properties{"a": 1}}
	err = WriteFeatures(&buf, []*geojson.Feature{noGeom}, nil)
	if !errors.Is(err, ErrNoFeatures) {
		t.Errorf("expected ErrNoFeatures for geometry-less features, got %v", err)
	}
}

func TestWriteFeatures_ExplicitColumnsMismatch(t *testing.T) {
	f := geojson.NewFeature(orb.Point{0, 0})
	f.Properties = geojson.Properties{"active": "yes"}

	opts := DefaultOptions()
	opts.Columns = []Column{{Name: "active", Type: ColumnBool}}

	var buf bytes.Buffer
	err := WriteFeatures(&buf, []*geojson.Feature{f}, opts)
	if !errors.Is(err, ErrPropertyMismatch) {
		t.Errorf("expected ErrPropertyMismatch, got %v", err)
	}
	if buf.Len() != 0 {
		t.Error("nothing should be written on a mismatch")
	}
}

func TestInferColumns(t *testing.T) {
	ts := time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC)

	features := []*geojson.Feature{
		{Properties: geojson.Properties{"n": 1, "mixed": 1, "s": "x", "when": ts, "obj": map[string]interface{}{"a": 1}}},
		{Properties: geojson.Properties{"n": 2, "mixed": 1.5, "s": 7}},
		nil,
		{Properties: geojson.Properties{"empty": nil}},
	}

	got := InferColumns(features)
	want := map[string]ColumnType{
		"empty": ColumnString,
		"mixed": ColumnDouble,
		"n":     ColumnLong,
		"obj":   ColumnJSON,
		"s":     ColumnString,
		"when":  ColumnDateTime,
	}

	if len(got) != len(want) {
		t.Fatalf("got %d columns, want %d: %+v", len(got), len(want), got)
	}
	for i, c := range got {
		if i > 0 && got[i-1].Name >= c.Name {
			t.Errorf("columns not sorted: %q before %q", got[i-1].Name, c.Name)
		}
		if want[c.Name] != c.Type {
			t.Errorf("column %q type = %s, want %s", c.Name, c.TypeName(), Column{Type: want[c.Name]}.TypeName())
		}
	}
}

func TestEncodeProperties_StringLayout(t *testing.T) {
	columns := []Column{{Name: "a", Type: ColumnLong}, {Name: "region", Type: ColumnString}}

	data, err := encodeProperties(geojson.Properties{"region": "AK"}, columns)
	if err != nil {
		t.Fatalf("encodeProperties failed: %v", err)
	}

	// column index 1, uint32 length 2, "AK"
	want := []byte{0x01, 0x00, 0x02, 0x00, 0x00, 0x00, 'A', 'K'}
	if !bytes.Equal(data, want) {
		t.Errorf("encoded = % x, want % x", data, want)
	}

	props, err := decodeProperties(data, columns)
	if err != nil {
		t.Fatalf("decodeProperties failed: %v", err)
	}
	if props["region"] != "AK" || len(props) != 1 {
		t.Errorf("decoded = %v", props)
	}
}

func TestDecodeProperties_Truncated(t *testing.T) {
	columns := []Column{{Name: "farea", Type: ColumnDouble}}

	tests := []struct {
		name string
		data []byte
	}{
		{"short index", []byte{0x00}},
		{"short value", []byte{0x00, 0x00, 0x01, 0x02}},
		{"unknown column", []byte{0x05, 0x00, 0x01}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := decodeProperties(tt.data, columns)
			if !errors.Is(err, ErrInvalidColumn) {
				t.Errorf("expected ErrInvalidColumn, got %v", err)
			}
		})
	}
}

func TestDateTimeColumn(t *testing.T) {
	ts := time.Date(2024, 8, 1, 12, 0, 0, 0, time.FixedZone("MDT", -6*3600))
	columns := []Column{{Name: "perim_t", Type: ColumnDateTime}}

	data, err := encodeProperties(geojson.Properties{"perim_t": ts}, columns)
	if err != nil {
		t.Fatalf("encodeProperties failed: %v", err)
	}

	props, err := decodeProperties(data, columns)
	if err != nil {
		t.Fatalf("decodeProperties failed: %v", err)
	}
	if props["perim_t"] != "2024-08-01T18:00:00Z" {
		t.Errorf("perim_t = %v", props["perim_t"])
	}
}

// untypedGenerator emits features whose geometries carry no type of their
// own, the way GDAL writes layers with a declared geometry type.
type untypedGenerator struct {
	geoms []orb.Geometry
	next  int
}

func (g *untypedGenerator) Generate() *writer.Feature {
	if g.next >= len(g.geoms) {
		return nil
	}
	geom := g.geoms[g.next]
	g.next++

	builder := flatbuffers.NewBuilder(1024)
	feature := writer.NewFeature(builder)
	feature.SetGeometry(untypedGeometry(geom, builder))
	return feature
}

func untypedGeometry(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	g := writer.NewGeometry(builder)
	switch v := geom.(type) {
	case orb.Polygon:
		xy, ends := polygonXY(v)
		g.SetXY(xy)
		g.SetEnds(ends)
	case orb.MultiPolygon:
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			parts = append(parts, *untypedGeometry(poly, builder))
		}
		g.SetParts(parts)
	case orb.MultiLineString:
		parts := make([][]orb.Point, len(v))
		for i, ls := range v {
			parts[i] = ls
		}
		xy, ends := partsXY(parts)
		g.SetXY(xy)
		g.SetEnds(ends)
	}
	return g
}

func writeUntyped(t *testing.T, layer flattypes.GeometryType, geoms ...orb.Geometry) []byte {
	t.Helper()

	header := writer.NewHeader(flatbuffers.NewBuilder(1024))
	header.SetGeometryType(layer)

	var buf bytes.Buffer
	if _, err := writer.NewWriter(header, false, &untypedGenerator{geoms: geoms}, nil).Write(&buf); err != nil {
		t.Fatalf("write layer: %v", err)
	}
	return buf.Bytes()
}

func TestReadAll_HeaderGeometryType(t *testing.T) {
	withHole := orb.Polygon{
		{{0, 0}, {10, 0}, {10, 10}, {0, 10}, {0, 0}},
		{{2, 2}, {2, 4}, {4, 4}, {4, 2}, {2, 2}},
	}

	tests := []struct {
		name  string
		layer flattypes.GeometryType
		geoms []orb.Geometry
	}{
		{
			name:  "polygon",
			layer: flattypes.GeometryTypePolygon,
			geoms: []orb.Geometry{square(0, 0, 1), withHole},
		},
		{
			name:  "multipolygon with untyped parts",
			layer: flattypes.GeometryTypeMultiPolygon,
			geoms: []orb.Geometry{orb.MultiPolygon{withHole, square(20, 20, 5)}},
		},
		{
			name:  "multilinestring",
			layer: flattypes.GeometryTypeMultiLineString,
			geoms: []orb.Geometry{orb.MultiLineString{{{0, 0}, {1, 1}}, {{2, 2}, {3, 3}, {4, 2}}}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewReader(writeUntyped(t, tt.layer, tt.geoms...))
			if err != nil {
				t.Fatalf("NewReader failed: %v", err)
			}
			if r.Header().HasIndex {
				t.Fatal("expected a layer without index")
			}

			got, err := r.ReadAll()
			if err != nil {
				t.Fatalf("ReadAll failed: %v", err)
			}
			if len(got) != len(tt.geoms) {
				t.Fatalf("got %d features, want %d", len(got), len(tt.geoms))
			}
			for i, f := range got {
				if f.Geometry == nil {
					t.Fatalf("feature %d: nil geometry", i)
				}
				if !orb.Equal(f.Geometry, tt.geoms[i]) {
					t.Errorf("feature %d: geometry = %v, want %v", i, f.Geometry, tt.geoms[i])
				}
			}
		})
	}
}

func TestReadAll_WithoutIndex(t *testing.T) {
	var features []*geojson.Feature
	for i := 0; i < 5; i++ {
		f := geojson.NewFeature(square(float64(i*10), 0, 2))
		f.Properties = geojson.Properties{"fireid": i, "region": "CONUS"}
		features = append(features, f)
	}

	r := writeAndRead(t, features, &Options{IncludeIndex: false})
	if r.Header().HasIndex {
		t.Fatal("expected a layer without index")
	}

	got, err := r.ReadAll()
	if err != nil {
		t.Fatalf("ReadAll failed: %v", err)
	}
	if len(got) != 5 {
		t.Fatalf("got %d features, want 5", len(got))
	}
	// without an index features keep file order
	for i, f := range got {
		if id := f.Properties["fireid"]; id != int64(i) {
			t.Errorf("feature %d: fireid = %v", i, id)
		}
		if !orb.Equal(f.Geometry, features[i].Geometry) {
			t.Errorf("feature %d: geometry = %v", i, f.Geometry)
		}
	}

	found, err := r.Search(orb.Bound{Min: orb.Point{9, -1}, Max: orb.Point{21, 1}})
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(found) != 2 {
		t.Errorf("Search returned %d features, want 2", len(found))
	}
}

func TestReadAll_TruncatedFeatures(t *testing.T) {
	var buf bytes.Buffer
	f := geojson.NewFeature(square(0, 0, 1))
	if err := WriteFeatures(&buf, []*geojson.Feature{f, f}, &Options{}); err != nil {
		t.Fatalf("WriteFeatures failed: %v", err)
	}

	data := buf.Bytes()
	r, err := NewReader(data[:len(data)-8])
	if err != nil {
		t.Fatalf("NewReader failed: %v", err)
	}
	if _, err := r.ReadAll(); !errors.Is(err, ErrTruncated) {
		t.Errorf("expected ErrTruncated, got %v", err)
	}
}
