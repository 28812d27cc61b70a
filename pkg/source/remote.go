package source

import (
	"context"
	"fmt"
	"net/url"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/zebbecker/fire-weather-utils/pkg/ogcapi"
	"github.com/zebbecker/fire-weather-utils/pkg/perimeter"
)

// DefaultMaxIDsPerQuery bounds the length of "fireid IN (...)" filters.
const DefaultMaxIDsPerQuery = 200

// Fetcher retrieves the complete result set of a features query.
// *pagination.Paginator implements it.
type Fetcher interface {
	FetchAll(ctx context.Context, collectionID string, params url.Values) ([]*geojson.Feature, error)
}

// FetcherFunc adapts a function to the Fetcher interface, e.g.
// FetcherFunc(client.ItemsByNextLink) for servers paged by rel=next links.
type FetcherFunc func(ctx context.Context, collectionID string, params url.Values) ([]*geojson.Feature, error)

// FetchAll calls f.
func (f FetcherFunc) FetchAll(ctx context.Context, collectionID string, params url.Values) ([]*geojson.Feature, error) {
	return f(ctx, collectionID, params)
}

// RemoteConfig holds remote source configuration.
type RemoteConfig struct {
	// Collection queried for perimeters.
	Collection string

	// Extra parameters sent with every query, e.g. "f": "json".
	Extra url.Values

	// MaxIDsPerQuery splits history queries into batches of at most this
	// many fire ids.
	MaxIDsPerQuery int

	// Limit is sent as the page size of every query when set. The offset
	// paginator overrides it; next-link fetchers keep it for every page.
	Limit int
}

// DefaultRemoteConfig returns the configuration for the NRT collection.
func DefaultRemoteConfig() RemoteConfig {
	return RemoteConfig{
		Collection:     DefaultCollection,
		MaxIDsPerQuery: DefaultMaxIDsPerQuery,
	}
}

// Remote queries an OGC API Features collection.
type Remote struct {
	fetcher Fetcher
	config  RemoteConfig
	logger  zerolog.Logger
}

// NewRemote creates a remote source that pages through fetcher.
func NewRemote(fetcher Fetcher, config RemoteConfig) *Remote {
	if config.Collection == "" {
		config.Collection = DefaultCollection
	}
	if config.MaxIDsPerQuery <= 0 {
		config.MaxIDsPerQuery = DefaultMaxIDsPerQuery
	}

	return &Remote{
		fetcher: fetcher,
		config:  config,
		logger:  log.With().Str("component", "remote-source").Logger(),
	}
}

// FirePerimeters implements Source.
func (r *Remote) FirePerimeters(ctx context.Context, fireID int, region string) ([]*geojson.Feature, error) {
	q := ogcapi.ItemsQuery{
		Filter: perimeter.FireFilter(fireID, region),
		Extra:  r.config.Extra,
		Limit:  r.config.Limit,
	}

	features, err := r.fetcher.FetchAll(ctx, r.config.Collection, q.Values())
	if err != nil {
		return nil, fmt.Errorf("fetch perimeters of fire %d in %s: %w", fireID, region, err)
	}

	r.logger.Info().
		Int("fire_id", fireID).
		Str("region", region).
		Int("perimeters", len(features)).
		Msg("Fetched fire perimeters")

	return features, nil
}

// ActivePerimeters implements Source.
func (r *Remote) ActivePerimeters(ctx context.Context, w perimeter.Window) ([]*geojson.Feature, error) {
	q := ogcapi.ItemsQuery{
		BBox:  w.BBox,
		Start: w.Start,
		Stop:  w.Stop,
		Extra: r.config.Extra,
		Limit: r.config.Limit,
	}

	features, err := r.fetcher.FetchAll(ctx, r.config.Collection, q.Values())
	if err != nil {
		return nil, fmt.Errorf("fetch active perimeters: %w", err)
	}

	r.logger.Info().
		Str("datetime", ogcapi.FormatInterval(w.Start, w.Stop)).
		Int("perimeters", len(features)).
		Msg("Fetched active perimeters")

	return features, nil
}

// FireHistories implements Source. An empty id list returns without a
// request.
func (r *Remote) FireHistories(ctx context.Context, ids []int, bbox *orb.Bound) ([]*geojson.Feature, error) {
	all := []*geojson.Feature{}

	for start := 0; start < len(ids); start += r.config.MaxIDsPerQuery {
		end := min(start+r.config.MaxIDsPerQuery, len(ids))
		batch := ids[start:end]

		q := ogcapi.ItemsQuery{
			BBox:   bbox,
			Filter: perimeter.FireIDsFilter(batch),
			Extra:  r.config.Extra,
			Limit:  r.config.Limit,
		}

		features, err := r.fetcher.FetchAll(ctx, r.config.Collection, q.Values())
		if err != nil {
			return nil, fmt.Errorf("fetch history of %d fires: %w", len(batch), err)
		}
		all = append(all, features...)
	}

	r.logger.Info().
		Int("fires", len(ids)).
		Int("perimeters", len(all)).
		Msg("Fetched fire histories")

	return all, nil
}
