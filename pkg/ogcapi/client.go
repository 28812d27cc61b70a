// Package ogcapi provides an OGC API Features HTTP client that plugs into
// the pagination package.
package ogcapi

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/tidwall/gjson"

	"github.com/zebbecker/fire-weather-utils/pkg/pagination"
)

// Prometheus metrics for features API requests.
var (
	requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ogcapi_requests_total",
		Help: "Total features API requests by collection and status",
	}, []string{"collection", "status"})

	requestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "ogcapi_request_duration_seconds",
		Help:    "Features API request duration in seconds by collection",
		Buckets: []float64{0.1, 0.5, 1, 2, 5, 10, 30},
	}, []string{"collection"})

	errorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "ogcapi_errors_total",
		Help: "Total features API errors by class",
	}, []string{"class"})
)

// collectionsLabel is the metrics label used for the /collections listing.
const collectionsLabel = "_collections"

// Version is reported in the default User-Agent.
const Version = "0.1.0"

// Client is an OGC API Features client.
type Client struct {
	httpClient *http.Client
	baseURL    *url.URL
	config     Config
	logger     zerolog.Logger
}

// Config holds the client configuration.
type Config struct {
	// BaseURL is the landing page of the features API,
	// e.g. "https://firenrt.delta-backend.com".
	BaseURL string

	// User-Agent header sent on every request.
	UserAgent string

	// Timeout per HTTP request. Zero disables the timeout.
	Timeout time.Duration
}

// DefaultConfig returns a default configuration for baseURL.
func DefaultConfig(baseURL string) Config {
	return Config{
		BaseURL:   baseURL,
		UserAgent: "fire-weather-utils/" + Version,
		Timeout:   60 * time.Second,
	}
}

// New creates a new features API client.
func New(cfg Config) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, ErrMissingBaseURL
	}

	if cfg.UserAgent == "" {
		return nil, ErrMissingUserAgent
	}

	base, err := url.Parse(cfg.BaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse base url: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("base url must be http(s), got %q", cfg.BaseURL)
	}

	return &Client{
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
		baseURL: base,
		config:  cfg,
		logger:  log.With().Str("component", "ogcapi-client").Logger(),
	}, nil
}

// Link is a hypermedia link of an items response.
type Link struct {
	Href string
	Rel  string
	Type string
}

// ItemsResponse is a decoded /collections/{id}/items document.
type ItemsResponse struct {
	Features       []*geojson.Feature
	NumberMatched  int
	NumberReturned int
	Links          []Link
}

// Next returns the href of the rel=next link, or "" on the last page.
func (r *ItemsResponse) Next() string {
	for _, l := range r.Links {
		if l.Rel == "next" {
			return l.Href
		}
	}
	return ""
}

// Items fetches one items document of a collection.
func (c *Client) Items(ctx context.Context, collectionID string, params url.Values) (*ItemsResponse, error) {
	u := c.itemsURL(collectionID, params)
	return c.items(ctx, collectionID, u)
}

// Query implements pagination.Querier.
func (c *Client) Query(ctx context.Context, collectionID string, params url.Values) (*pagination.Page, error) {
	resp, err := c.Items(ctx, collectionID, params)
	if err != nil {
		return nil, err
	}

	return &pagination.Page{
		Features:      resp.Features,
		NumberMatched: resp.NumberMatched,
	}, nil
}

// ItemsByNextLink fetches every feature of a query by following rel=next
// links from the first response, the paging mode some servers prefer over
// offsets.
func (c *Client) ItemsByNextLink(ctx context.Context, collectionID string, params url.Values) ([]*geojson.Feature, error) {
	u := c.itemsURL(collectionID, params)
	visited := map[string]bool{}

	var features []*geojson.Feature
	for pages := 1; ; pages++ {
		visited[u.String()] = true

		resp, err := c.items(ctx, collectionID, u)
		if err != nil {
			return nil, err
		}
		features = append(features, resp.Features...)

		next := resp.Next()
		if next == "" {
			c.logger.Debug().
				Str("collection", collectionID).
				Int("pages", pages).
				Int("features", len(features)).
				Msg("Reached last page")
			return features, nil
		}

		ref, err := url.Parse(next)
		if err != nil {
			return nil, &APIError{
				ErrorClass: ErrorClassDecode,
				Message:    "invalid next link",
				URL:        next,
				Err:        err,
			}
		}
		u = u.ResolveReference(ref)

		if visited[u.String()] {
			return nil, fmt.Errorf("%w: %s", ErrLinkLoop, u)
		}

		c.logger.Debug().
			Str("collection", collectionID).
			Int("page", pages+1).
			Str("next", u.String()).
			Msg("Retrieving next page")
	}
}

// Collections lists the collection ids served by the API.
func (c *Client) Collections(ctx context.Context) ([]string, error) {
	u := c.baseURL.JoinPath("collections")

	body, err := c.get(ctx, collectionsLabel, u)
	if err != nil {
		return nil, err
	}

	if !gjson.ValidBytes(body) {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		return nil, &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			Message:    "collections document is not valid JSON",
			URL:        u.String(),
		}
	}

	ids := []string{}
	for _, id := range gjson.GetBytes(body, "collections.#.id").Array() {
		ids = append(ids, id.String())
	}
	return ids, nil
}

// SetHTTPClient sets a custom HTTP client (for testing).
func (c *Client) SetHTTPClient(client *http.Client) {
	c.httpClient = client
}

// itemsURL builds {base}/collections/{id}/items?params.
func (c *Client) itemsURL(collectionID string, params url.Values) *url.URL {
	u := c.baseURL.JoinPath("collections", collectionID, "items")
	if len(params) > 0 {
		u.RawQuery = params.Encode()
	}
	return u
}

// items fetches and decodes one items document.
func (c *Client) items(ctx context.Context, collectionID string, u *url.URL) (*ItemsResponse, error) {
	body, err := c.get(ctx, collectionID, u)
	if err != nil {
		return nil, err
	}

	resp, err := decodeItems(body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassDecode)).Inc()
		c.logger.Warn().
			Err(err).
			Str("collection", collectionID).
			Str("url", u.String()).
			Msg("Malformed items response")
		return nil, &APIError{
			StatusCode: http.StatusOK,
			ErrorClass: ErrorClassDecode,
			Message:    "malformed items response",
			URL:        u.String(),
			Err:        err,
		}
	}

	c.logger.Debug().
		Str("collection", collectionID).
		Int("returned", len(resp.Features)).
		Int("matched", resp.NumberMatched).
		Msg("Items page decoded")

	return resp, nil
}

// get performs a GET request and returns the body of a 2xx response.
func (c *Client) get(ctx context.Context, label string, u *url.URL) ([]byte, error) {
	startTime := time.Now()
	defer func() {
		requestDuration.WithLabelValues(label).Observe(time.Since(startTime).Seconds())
	}()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("User-Agent", c.config.UserAgent)
	req.Header.Set("Accept", "application/geo+json, application/json;q=0.9")

	c.logger.Debug().
		Str("collection", label).
		Str("url", u.String()).
		Msg("Executing features request")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		requestsTotal.WithLabelValues(label, "network_error").Inc()
		c.logger.Error().Err(err).Str("url", u.String()).Msg("HTTP request failed")
		return nil, &APIError{
			ErrorClass: ErrorClassNetwork,
			Message:    "request failed",
			URL:        u.String(),
			Err:        err,
		}
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(label, strconv.Itoa(resp.StatusCode)).Inc()

	if class := classifyStatus(resp.StatusCode); class != "" {
		errorsTotal.WithLabelValues(string(class)).Inc()
		c.logger.Warn().
			Str("collection", label).
			Int("status", resp.StatusCode).
			Str("error_class", string(class)).
			Msg("Features API request error")
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: class,
			Message:    resp.Status,
			URL:        u.String(),
		}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		errorsTotal.WithLabelValues(string(ErrorClassNetwork)).Inc()
		return nil, &APIError{
			StatusCode: resp.StatusCode,
			ErrorClass: ErrorClassNetwork,
			Message:    "read response body",
			URL:        u.String(),
			Err:        err,
		}
	}

	return body, nil
}

// decodeItems decodes an items document. numberMatched, numberReturned and
// links are optional; a missing or non-numeric count decodes as zero.
func decodeItems(body []byte) (*ItemsResponse, error) {
	fc, err := geojson.UnmarshalFeatureCollection(body)
	if err != nil {
		return nil, err
	}

	resp := &ItemsResponse{
		Features:       fc.Features,
		NumberMatched:  count(gjson.GetBytes(body, "numberMatched")),
		NumberReturned: count(gjson.GetBytes(body, "numberReturned")),
	}
	if resp.Features == nil {
		resp.Features = []*geojson.Feature{}
	}

	for _, l := range gjson.GetBytes(body, "links").Array() {
		resp.Links = append(resp.Links, Link{
			Href: l.Get("href").String(),
			Rel:  l.Get("rel").String(),
			Type: l.Get("type").String(),
		})
	}

	return resp, nil
}

// count reads a non-negative integer member; anything else is zero.
func count(r gjson.Result) int {
	if r.Type != gjson.Number {
		return 0
	}
	n := r.Int()
	if n < 0 {
		return 0
	}
	return int(n)
}
