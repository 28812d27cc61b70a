// Package source provides the fire perimeter queries used by the export
// jobs, backed either by an OGC API Features server or by a local
// FlatGeobuf file.
package source

import (
	"context"
	"errors"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"

	"github.com/zebbecker/fire-weather-utils/pkg/perimeter"
)

// DefaultCollection is the near-real-time large fire perimeter collection.
const DefaultCollection = "public.eis_fire_lf_perimeter_nrt"

// ErrUnknownKind is returned for a source kind other than remote or local.
var ErrUnknownKind = errors.New("source: unknown kind")

// Kinds of perimeter sources.
const (
	KindRemote = "remote"
	KindLocal  = "local"
)

// Paging modes of a remote source: offset walks with the paginator, or
// rel=next links followed by the client.
const (
	PagingOffset = "offset"
	PagingNext   = "next"
)

// Source answers the perimeter queries of the export jobs.
type Source interface {
	// FirePerimeters returns every perimeter of one fire in one region.
	FirePerimeters(ctx context.Context, fireID int, region string) ([]*geojson.Feature, error)

	// ActivePerimeters returns the perimeters observed inside the window.
	ActivePerimeters(ctx context.Context, w perimeter.Window) ([]*geojson.Feature, error)

	// FireHistories returns every perimeter of the given fires intersecting
	// bbox, including those observed outside any discovery window. A nil
	// bbox does not restrict the result.
	FireHistories(ctx context.Context, ids []int, bbox *orb.Bound) ([]*geojson.Feature, error)
}
