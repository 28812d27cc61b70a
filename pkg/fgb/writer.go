package fgb

import (
	"io"

	"github.com/flatgeobuf/flatgeobuf/src/go/writer"
	flatbuffers "github.com/google/flatbuffers/go"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// WriteFeatures writes features as a FlatGeobuf layer. Features without a
// supported geometry are skipped. Property values must fit their column
// type or ErrPropertyMismatch is returned before anything is written.
func WriteFeatures(w io.Writer, features []*geojson.Feature, opts *Options) error {
	if opts == nil {
		opts = DefaultOptions()
	}

	columns := opts.Columns
	if len(columns) == 0 {
		columns = InferColumns(features)
	}

	// Encode up front so a bad value fails before the header is written.
	encoded := make([]encodedFeature, 0, len(features))
	geoms := make([]orb.Geometry, 0, len(features))
	for _, f := range features {
		if f == nil || f.Geometry == nil {
			continue
		}
		props, err := encodeProperties(f.Properties, columns)
		if err != nil {
			return err
		}
		encoded = append(encoded, encodedFeature{geometry: f.Geometry, properties: props})
		geoms = append(geoms, f.Geometry)
	}
	if len(encoded) == 0 {
		return ErrNoFeatures
	}

	builder := flatbuffers.NewBuilder(4096)

	header := writer.NewHeader(builder)
	header.SetGeometryType(layerGeometryType(geoms))
	if opts.Name != "" {
		header.SetName(opts.Name)
	}
	if opts.Description != "" {
		header.SetDescription(opts.Description)
	}

	if len(columns) > 0 {
		cols := make([]*writer.Column, len(columns))
		for i, c := range columns {
			col := writer.NewColumn(builder)
			col.SetName(c.Name)
			col.SetTitle(c.Name)
			col.SetType(c.Type)
			col.SetNullable(true)
			cols[i] = col
		}
		header.SetColumns(cols)
	}

	if opts.CRS != nil {
		crs := writer.NewCrs(builder)
		crs.SetOrg("EPSG")
		if opts.CRS.Code > 0 {
			crs.SetCode(int32(opts.CRS.Code))
		}
		if opts.CRS.Name != "" {
			crs.SetName(opts.CRS.Name)
		}
		if opts.CRS.Description != "" {
			crs.SetDescription(opts.CRS.Description)
		}
		header.SetCrs(crs)
	}

	gen := &featureGenerator{features: encoded}
	_, err := writer.NewWriter(header, opts.IncludeIndex, gen, nil).Write(w)
	return err
}

type encodedFeature struct {
	geometry   orb.Geometry
	properties []byte
}

// featureGenerator feeds pre-encoded features to the FlatGeobuf writer.
type featureGenerator struct {
	features []encodedFeature
	next     int
}

func (g *featureGenerator) Generate() *writer.Feature {
	for g.next < len(g.features) {
		f := g.features[g.next]
		g.next++

		builder := flatbuffers.NewBuilder(1024)
		geom := encodeGeometry(f.geometry, builder)
		if geom == nil {
			continue
		}

		feature := writer.NewFeature(builder)
		feature.SetGeometry(geom)
		if len(f.properties) > 0 {
			feature.SetProperties(f.properties)
		}
		return feature
	}
	return nil
}
