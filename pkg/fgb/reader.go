package fgb

import (
	"encoding/binary"
	"fmt"
	"math"

	flatgeobuf "github.com/flatgeobuf/flatgeobuf/src/go"
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Reader provides read access to FlatGeobuf data held in memory.
type Reader struct {
	fgb       *flatgeobuf.FlatGeoBuf
	data      []byte
	header    *Header
	columns   []Column
	layerType flattypes.GeometryType
}

// NewReader parses the header of a FlatGeobuf file.
func NewReader(data []byte) (*Reader, error) {
	fgb, err := flatgeobuf.NewWithData(data)
	if err != nil {
		return nil, fmt.Errorf("open flatgeobuf: %w", err)
	}

	r := &Reader{fgb: fgb, data: data}
	r.header = r.readHeader()
	r.layerType = fgb.Header().GeometryType()
	r.columns = r.header.Columns
	return r, nil
}

// Header returns metadata about the file.
func (r *Reader) Header() *Header {
	return r.header
}

func (r *Reader) readHeader() *Header {
	h := r.fgb.Header()

	header := &Header{
		Name:          string(h.Name()),
		Description:   string(h.Description()),
		GeometryType:  flattypes.EnumNamesGeometryType[h.GeometryType()],
		FeaturesCount: h.FeaturesCount(),
		HasIndex:      h.IndexNodeSize() > 0,
	}

	if h.EnvelopeLength() >= 4 {
		header.Envelope = [4]float64{h.Envelope(0), h.Envelope(1), h.Envelope(2), h.Envelope(3)}
	}

	var crs flattypes.Crs
	if h.Crs(&crs) != nil {
		header.CRS = &CRS{
			Code:        int(crs.Code()),
			Name:        string(crs.Name()),
			Description: string(crs.Description()),
		}
	}

	for i := 0; i < h.ColumnsLength(); i++ {
		var col flattypes.Column
		if h.Columns(&col, i) {
			header.Columns = append(header.Columns, Column{
				Name: string(col.Name()),
				Type: col.Type(),
			})
		}
	}

	return header
}

// ReadAll reads every feature of the file. Indexed files are read through
// their spatial index, others feature by feature.
func (r *Reader) ReadAll() ([]*geojson.Feature, error) {
	if !r.header.HasIndex {
		return r.scan(nil)
	}
	if r.header.FeaturesCount == 0 {
		return []*geojson.Feature{}, nil
	}

	env := r.header.Envelope
	if env == [4]float64{} {
		return r.search(-math.MaxFloat64, -math.MaxFloat64, math.MaxFloat64, math.MaxFloat64)
	}
	return r.search(env[0], env[1], env[2], env[3])
}

// Search returns the features whose bounding boxes intersect bound. Files
// without an index are scanned.
func (r *Reader) Search(bound orb.Bound) ([]*geojson.Feature, error) {
	if !r.header.HasIndex {
		return r.scan(func(f *geojson.Feature) bool {
			return f.Geometry != nil && bound.Intersects(f.Geometry.Bound())
		})
	}
	return r.search(bound.Min[0], bound.Min[1], bound.Max[0], bound.Max[1])
}

// scan walks the size-prefixed features that follow the header of a file
// without an index, keeping those accepted by keep (all when nil).
func (r *Reader) scan(keep func(*geojson.Feature) bool) ([]*geojson.Feature, error) {
	if len(r.data) < len(magic)+4 {
		return nil, ErrTruncated
	}
	headerSize := int(binary.LittleEndian.Uint32(r.data[len(magic):]))
	off := len(magic) + 4 + headerSize

	features := []*geojson.Feature{}
	for off < len(r.data) {
		if off+4 > len(r.data) {
			return nil, fmt.Errorf("feature at offset %d: %w", off, ErrTruncated)
		}
		size := int(binary.LittleEndian.Uint32(r.data[off:]))
		if size == 0 || off+4+size > len(r.data) {
			return nil, fmt.Errorf("feature at offset %d: %w", off, ErrTruncated)
		}

		f := flattypes.GetSizePrefixedRootAsFeature(r.data, flatbuffers.UOffsetT(off))
		feature, err := r.convert(f)
		if err != nil {
			return nil, err
		}
		if feature != nil && (keep == nil || keep(feature)) {
			features = append(features, feature)
		}
		off += 4 + size
	}
	return features, nil
}

func (r *Reader) search(minX, minY, maxX, maxY float64) ([]*geojson.Feature, error) {
	found, err := r.fgb.Search(minX, minY, maxX, maxY)
	if err != nil {
		return nil, fmt.Errorf("search index: %w", err)
	}

	features := make([]*geojson.Feature, 0, len(found))
	for _, f := range found {
		feature, err := r.convert(f)
		if err != nil {
			return nil, err
		}
		if feature != nil {
			features = append(features, feature)
		}
	}
	return features, nil
}

// convert turns a stored feature into a GeoJSON feature. Features without a
// geometry keep their properties and a nil geometry.
func (r *Reader) convert(f *flattypes.Feature) (*geojson.Feature, error) {
	if f == nil {
		return nil, nil
	}

	var geom orb.Geometry
	var g flattypes.Geometry
	if f.Geometry(&g) != nil {
		geom = decodeGeometry(&g, r.layerType)
	}

	feature := &geojson.Feature{
		Type:       "Feature",
		Geometry:   geom,
		Properties: geojson.Properties{},
	}

	if n := f.PropertiesLength(); n > 0 && len(r.columns) > 0 {
		data := make([]byte, n)
		for i := range data {
			data[i] = f.Properties(i)
		}
		props, err := decodeProperties(data, r.columns)
		if err != nil {
			return nil, err
		}
		feature.Properties = props
	}

	return feature, nil
}
