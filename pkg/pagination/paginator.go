package pagination

import (
	"context"
	"errors"
	"net/url"
	"strconv"

	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// DefaultPageSize is the number of features requested per page when no
// page size is configured.
const DefaultPageSize = 100

// Query parameters owned by the paginator.
const (
	ParamLimit  = "limit"
	ParamOffset = "offset"
)

// ErrEmptyCollection is returned when FetchAll is called without a collection id.
var ErrEmptyCollection = errors.New("pagination: empty collection id")

// Prometheus metrics for pagination runs.
var (
	pagesFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fire_pagination_pages_total",
		Help: "Total pages fetched by collection",
	}, []string{"collection"})

	featuresFetchedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fire_pagination_features_total",
		Help: "Total features fetched by collection",
	}, []string{"collection"})

	shortPagesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fire_pagination_short_pages_total",
		Help: "Walks ended by a short page before numberMatched features were seen",
	}, []string{"collection"})
)

// Page is one response of a features query.
type Page struct {
	// Features in server order.
	Features []*geojson.Feature

	// NumberMatched is the total number of features matching the query,
	// independent of limit and offset. Zero when the server did not report it.
	NumberMatched int
}

// Querier is the features query capability the paginator walks.
type Querier interface {
	// Query requests one page of a collection. params carries filter
	// criteria plus limit and offset.
	Query(ctx context.Context, collectionID string, params url.Values) (*Page, error)
}

// QuerierFunc adapts a plain function to the Querier interface.
type QuerierFunc func(ctx context.Context, collectionID string, params url.Values) (*Page, error)

// Query calls f.
func (f QuerierFunc) Query(ctx context.Context, collectionID string, params url.Values) (*Page, error) {
	return f(ctx, collectionID, params)
}

// Config holds paginator configuration
type Config struct {
	// PageSize is the maximum number of features requested per page
	PageSize int
	// MaxPages caps the number of pages fetched; 0 fetches every page
	MaxPages int
	// ShowProgress logs the running feature count after every page
	ShowProgress bool
}

// DefaultConfig returns the default paginator configuration
func DefaultConfig() Config {
	return Config{
		PageSize:     DefaultPageSize,
		MaxPages:     0,
		ShowProgress: true,
	}
}

// Paginator retrieves complete result sets from a Querier.
type Paginator struct {
	querier Querier
	config  Config
	logger  zerolog.Logger
}

// New creates a new paginator
func New(querier Querier, config Config) *Paginator {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.MaxPages < 0 {
		config.MaxPages = 0
	}

	return &Paginator{
		querier: querier,
		config:  config,
		logger:  log.With().Str("component", "paginator").Logger(),
	}
}

// WithLogger returns a copy of the paginator that logs to logger.
func (p *Paginator) WithLogger(logger zerolog.Logger) *Paginator {
	cp := *p
	cp.logger = logger
	return &cp
}

// Config returns the effective configuration after defaults were applied.
func (p *Paginator) Config() Config {
	return p.config
}

// FetchAll retrieves every feature of collectionID matching params, in page
// order and within-page order. params is not modified.
func (p *Paginator) FetchAll(ctx context.Context, collectionID string, params url.Values) ([]*geojson.Feature, error) {
	if collectionID == "" {
		return nil, ErrEmptyCollection
	}

	pageSize := p.config.PageSize

	first, err := p.querier.Query(ctx, collectionID, withPaging(params, 1, -1))
	if err != nil {
		return nil, err
	}

	total := 0
	if first != nil && first.NumberMatched > 0 {
		total = first.NumberMatched
	}

	if total == 0 {
		if p.config.ShowProgress {
			p.logger.Info().
				Str("collection", collectionID).
				Msg("No matching features")
		}
		return []*geojson.Feature{}, nil
	}

	pages := (total + pageSize - 1) / pageSize
	if p.config.MaxPages > 0 && p.config.MaxPages < pages {
		pages = p.config.MaxPages
	}

	p.logger.Debug().
		Str("collection", collectionID).
		Int("total", total).
		Int("pages", pages).
		Int("page_size", pageSize).
		Msg("Starting page fetch")

	features := make([]*geojson.Feature, 0, min(total, pages*pageSize))

	for i := 0; i < pages; i++ {
		page, err := p.querier.Query(ctx, collectionID, withPaging(params, pageSize, i*pageSize))
		if err != nil {
			return nil, err
		}

		var got []*geojson.Feature
		if page != nil {
			got = page.Features
		}
		features = append(features, got...)

		pagesFetchedTotal.WithLabelValues(collectionID).Inc()
		featuresFetchedTotal.WithLabelValues(collectionID).Add(float64(len(got)))

		if p.config.ShowProgress {
			p.logger.Info().
				Str("collection", collectionID).
				Int("page", i+1).
				Int("pages", pages).
				Int("fetched", len(features)).
				Int("total", total).
				Msg("Fetch progress")
		}

		if len(got) < pageSize {
			if len(features) < total && i < pages-1 {
				shortPagesTotal.WithLabelValues(collectionID).Inc()
				p.logger.Warn().
					Str("collection", collectionID).
					Int("page", i+1).
					Int("returned", len(got)).
					Int("fetched", len(features)).
					Int("total", total).
					Msg("Short page before numberMatched reached, stopping")
			}
			break
		}
	}

	return features, nil
}

// withPaging copies params and sets limit, and offset when offset >= 0.
func withPaging(params url.Values, limit, offset int) url.Values {
	out := make(url.Values, len(params)+2)
	for k, v := range params {
		if k == ParamLimit || k == ParamOffset {
			continue
		}
		out[k] = append([]string(nil), v...)
	}
	out.Set(ParamLimit, strconv.Itoa(limit))
	if offset >= 0 {
		out.Set(ParamOffset, strconv.Itoa(offset))
	}
	return out
}
