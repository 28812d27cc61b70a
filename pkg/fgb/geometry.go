package fgb

import (
	"github.com/flatgeobuf/flatgeobuf/src/go/flattypes"
	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
)

// geometryType maps an orb geometry to its FlatGeobuf type.
func geometryType(geom orb.Geometry) flattypes.GeometryType {
	switch geom.(type) {
	case orb.Point:
		return flattypes.GeometryTypePoint
	case orb.MultiPoint:
		return flattypes.GeometryTypeMultiPoint
	case orb.LineString:
		return flattypes.GeometryTypeLineString
	case orb.MultiLineString:
		return flattypes.GeometryTypeMultiLineString
	case orb.Ring, orb.Polygon, orb.Bound:
		return flattypes.GeometryTypePolygon
	case orb.MultiPolygon:
		return flattypes.GeometryTypeMultiPolygon
	case orb.Collection:
		return flattypes.GeometryTypeGeometryCollection
	default:
		return flattypes.GeometryTypeUnknown
	}
}

// layerGeometryType returns the common geometry type of all non-nil
// geometries, or Unknown when they differ.
func layerGeometryType(geoms []orb.Geometry) flattypes.GeometryType {
	layer := flattypes.GeometryTypeUnknown
	first := true
	for _, g := range geoms {
		if g == nil {
			continue
		}
		t := geometryType(g)
		if first {
			layer, first = t, false
			continue
		}
		if t != layer {
			return flattypes.GeometryTypeUnknown
		}
	}
	return layer
}

// encodeGeometry converts an orb geometry to a FlatGeobuf geometry.
func encodeGeometry(geom orb.Geometry, builder *flatbuffers.Builder) *writer.Geometry {
	if geom == nil {
		return nil
	}

	g := writer.NewGeometry(builder)

	switch v := geom.(type) {
	case orb.Point:
		g.SetType(flattypes.GeometryTypePoint)
		g.SetXY([]float64{v[0], v[1]})

	case orb.MultiPoint:
		g.SetType(flattypes.GeometryTypeMultiPoint)
		g.SetXY(pointsXY(v))

	case orb.LineString:
		g.SetType(flattypes.GeometryTypeLineString)
		g.SetXY(pointsXY(v))

	case orb.MultiLineString:
		g.SetType(flattypes.GeometryTypeMultiLineString)
		parts := make([][]orb.Point, len(v))
		for i, ls := range v {
			parts[i] = ls
		}
		xy, ends := partsXY(parts)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.Ring:
		return encodeGeometry(orb.Polygon{v}, builder)

	case orb.Bound:
		return encodeGeometry(v.ToPolygon(), builder)

	case orb.Polygon:
		g.SetType(flattypes.GeometryTypePolygon)
		xy, ends := polygonXY(v)
		g.SetXY(xy)
		g.SetEnds(ends)

	case orb.MultiPolygon:
		g.SetType(flattypes.GeometryTypeMultiPolygon)
		parts := make([]writer.Geometry, 0, len(v))
		for _, poly := range v {
			parts = append(parts, *encodeGeometry(poly, builder))
		}
		g.SetParts(parts)

	case orb.Collection:
		g.SetType(flattypes.GeometryTypeGeometryCollection)
		parts := make([]writer.Geometry, 0, len(v))
		for _, child := range v {
			if part := encodeGeometry(child, builder); part != nil {
				parts = append(parts, *part)
			}
		}
		g.SetParts(parts)

	default:
		return nil
	}

	return g
}

// decodeGeometry converts a FlatGeobuf geometry to an orb geometry. Writers
// such as GDAL leave the geometry type Unknown when the header declares it,
// so layer is used in that case.
func decodeGeometry(g *flattypes.Geometry, layer flattypes.GeometryType) orb.Geometry {
	if g == nil {
		return nil
	}

	typ := g.Type()
	if typ == flattypes.GeometryTypeUnknown {
		typ = layer
	}

	switch typ {
	case flattypes.GeometryTypePoint:
		pts := readPoints(g, 0, g.XyLength()/2)
		if len(pts) == 0 {
			return nil
		}
		return pts[0]

	case flattypes.GeometryTypeMultiPoint:
		return orb.MultiPoint(readPoints(g, 0, g.XyLength()/2))

	case flattypes.GeometryTypeLineString:
		return orb.LineString(readPoints(g, 0, g.XyLength()/2))

	case flattypes.GeometryTypeMultiLineString:
		var mls orb.MultiLineString
		if g.PartsLength() == 0 {
			for _, part := range readParts(g) {
				mls = append(mls, orb.LineString(part))
			}
			return mls
		}
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				mls = append(mls, orb.LineString(readPoints(&part, 0, part.XyLength()/2)))
			}
		}
		return mls

	case flattypes.GeometryTypePolygon:
		return readPolygon(g)

	case flattypes.GeometryTypeMultiPolygon:
		if g.PartsLength() == 0 {
			return orb.MultiPolygon{readPolygon(g)}
		}
		mp := make(orb.MultiPolygon, 0, g.PartsLength())
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				mp = append(mp, readPolygon(&part))
			}
		}
		return mp

	case flattypes.GeometryTypeGeometryCollection:
		coll := make(orb.Collection, 0, g.PartsLength())
		for i := 0; i < g.PartsLength(); i++ {
			var part flattypes.Geometry
			if g.Parts(&part, i) {
				if child := decodeGeometry(&part, flattypes.GeometryTypeUnknown); child != nil {
					coll = append(coll, child)
				}
			}
		}
		return coll

	default:
		return nil
	}
}

func pointsXY(pts []orb.Point) []float64 {
	xy := make([]float64, 0, len(pts)*2)
	for _, p := range pts {
		xy = append(xy, p[0], p[1])
	}
	return xy
}

// partsXY flattens parts into one coordinate array plus cumulative end
// offsets, counted in points.
func partsXY(parts [][]orb.Point) ([]float64, []uint32) {
	var xy []float64
	ends := make([]uint32, 0, len(parts))
	var n uint32
	for _, part := range parts {
		xy = append(xy, pointsXY(part)...)
		n += uint32(len(part))
		ends = append(ends, n)
	}
	return xy, ends
}

func polygonXY(poly orb.Polygon) ([]float64, []uint32) {
	parts := make([][]orb.Point, len(poly))
	for i, r := range poly {
		parts[i] = r
	}
	return partsXY(parts)
}

func readPoints(g *flattypes.Geometry, from, to int) []orb.Point {
	if n := g.XyLength() / 2; to > n {
		to = n
	}
	if from > to {
		return nil
	}
	pts := make([]orb.Point, 0, to-from)
	for i := from; i < to; i++ {
		pts = append(pts, orb.Point{g.Xy(2 * i), g.Xy(2*i + 1)})
	}
	return pts
}

// readParts splits the coordinates of g at its end offsets. A geometry
// without ends is a single part.
func readParts(g *flattypes.Geometry) [][]orb.Point {
	n := g.XyLength() / 2
	if n == 0 {
		return nil
	}
	if g.EndsLength() == 0 {
		return [][]orb.Point{readPoints(g, 0, n)}
	}

	parts := make([][]orb.Point, 0, g.EndsLength())
	start := 0
	for i := 0; i < g.EndsLength(); i++ {
		end := int(g.Ends(i))
		parts = append(parts, readPoints(g, start, end))
		start = end
	}
	return parts
}

func readPolygon(g *flattypes.Geometry) orb.Polygon {
	parts := readParts(g)
	poly := make(orb.Polygon, 0, len(parts))
	for _, p := range parts {
		poly = append(poly, orb.Ring(p))
	}
	return poly
}
