package source

import (
	"context"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocloud.dev/blob"

	"github.com/zebbecker/fire-weather-utils/pkg/fgb"
	"github.com/zebbecker/fire-weather-utils/pkg/perimeter"
)

// Local answers queries from perimeters held in memory, typically loaded
// from a FlatGeobuf export. Time windows are inclusive on both ends.
type Local struct {
	features []*geojson.Feature
	logger   zerolog.Logger
}

// NewLocal creates a local source over features.
func NewLocal(features []*geojson.Feature) *Local {
	return &Local{
		features: features,
		logger:   log.With().Str("component", "local-source").Logger(),
	}
}

// OpenLocal loads the FlatGeobuf file stored under key in bucket.
func OpenLocal(ctx context.Context, bucket *blob.Bucket, key string) (*Local, error) {
	data, err := bucket.ReadAll(ctx, key)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}

	r, err := fgb.NewReader(data)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", key, err)
	}

	features, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read features of %s: %w", key, err)
	}

	l := NewLocal(features)
	l.logger.Info().
		Str("key", key).
		Int("rows", len(features)).
		Int("columns", len(r.Header().Columns)).
		Msg("Loaded perimeters")

	return l, nil
}

// Len returns the number of perimeters held.
func (l *Local) Len() int {
	return len(l.features)
}

// FirePerimeters implements Source.
func (l *Local) FirePerimeters(ctx context.Context, fireID int, region string) ([]*geojson.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return perimeter.Filter(l.features, fireID, region), nil
}

// ActivePerimeters implements Source.
func (l *Local) ActivePerimeters(ctx context.Context, w perimeter.Window) ([]*geojson.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	out := []*geojson.Feature{}
	for _, f := range l.features {
		if w.Contains(f) {
			out = append(out, f)
		}
	}
	return out, nil
}

// FireHistories implements Source.
func (l *Local) FireHistories(ctx context.Context, ids []int, bbox *orb.Bound) ([]*geojson.Feature, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	area := perimeter.Window{BBox: bbox}
	out := []*geojson.Feature{}
	for _, f := range perimeter.FilterFires(l.features, ids) {
		if area.Intersects(f) {
			out = append(out, f)
		}
	}
	return out, nil
}
