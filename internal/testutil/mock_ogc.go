// Package testutil provides testing utilities for the features API client
// and the perimeter workflows.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// DefaultLimit is the page size the mock uses when a request has no limit.
const DefaultLimit = 10

// MatchFunc decides whether a stored feature matches a request's filter
// parameters.
type MatchFunc func(params url.Values, feature gjson.Result) bool

// MockOGC is a configurable mock OGC API Features server for testing.
type MockOGC struct {
	server      *httptest.Server
	mu          sync.RWMutex
	collections map[string][][]byte
	handlers    map[string]http.HandlerFunc
	match       MatchFunc

	// OmitNumberMatched drops numberMatched from items responses.
	OmitNumberMatched bool
	// NextLinks adds rel=next links to items responses.
	NextLinks bool

	// Tracking
	RequestCount      int
	Requests          []url.Values
	LastRequestHeader http.Header
}

// NewMockOGC creates a new mock features server.
func NewMockOGC() *MockOGC {
	mock := &MockOGC{
		collections: make(map[string][][]byte),
		handlers:    make(map[string]http.HandlerFunc),
	}

	mock.server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mock.mu.Lock()
		mock.RequestCount++
		mock.Requests = append(mock.Requests, r.URL.Query())
		mock.LastRequestHeader = r.Header.Clone()
		handler, exists := mock.handlers[r.URL.Path]
		mock.mu.Unlock()

		if exists {
			handler(w, r)
			return
		}

		mock.defaultHandler(w, r)
	}))

	return mock
}

// URL returns the mock server URL.
func (m *MockOGC) URL() string {
	return m.server.URL
}

// Close shuts down the mock server.
func (m *MockOGC) Close() {
	m.server.Close()
}

// Reset clears all tracking counters.
func (m *MockOGC) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RequestCount = 0
	m.Requests = nil
	m.LastRequestHeader = nil
}

// SetHandler sets a custom handler for a specific path.
func (m *MockOGC) SetHandler(path string, handler http.HandlerFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers[path] = handler
}

// SetStatus makes every request to path fail with status.
func (m *MockOGC) SetStatus(path string, status int) {
	m.SetHandler(path, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		fmt.Fprintf(w, `{"code": %d, "description": %q}`, status, http.StatusText(status))
	})
}

// SetMatcher installs the filter used for items requests. Without one every
// feature matches.
func (m *MockOGC) SetMatcher(match MatchFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.match = match
}

// AddFeatures appends GeoJSON features to a collection.
func (m *MockOGC) AddFeatures(collectionID string, features ...[]byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.collections[collectionID] = append(m.collections[collectionID], features...)
}

// GetRequestCount returns the number of requests made to the server.
func (m *MockOGC) GetRequestCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.RequestCount
}

// GetRequests returns the query parameters of every request so far.
func (m *MockOGC) GetRequests() []url.Values {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]url.Values(nil), m.Requests...)
}

// ItemsPath returns the items path of a collection.
func ItemsPath(collectionID string) string {
	return "/collections/" + collectionID + "/items"
}

// defaultHandler serves /collections and /collections/{id}/items.
func (m *MockOGC) defaultHandler(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimSuffix(r.URL.Path, "/")

	if path == "/collections" {
		m.serveCollections(w)
		return
	}

	if strings.HasPrefix(path, "/collections/") && strings.HasSuffix(path, "/items") {
		id := strings.TrimSuffix(strings.TrimPrefix(path, "/collections/"), "/items")
		m.serveItems(w, r, id)
		return
	}

	http.NotFound(w, r)
}

func (m *MockOGC) serveCollections(w http.ResponseWriter) {
	m.mu.RLock()
	doc := []byte(`{"collections":[]}`)
	for id := range m.collections {
		doc, _ = sjson.SetBytes(doc, "collections.-1", map[string]string{"id": id, "title": id})
	}
	m.mu.RUnlock()

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

func (m *MockOGC) serveItems(w http.ResponseWriter, r *http.Request, collectionID string) {
	m.mu.RLock()
	stored, ok := m.collections[collectionID]
	match := m.match
	omitMatched := m.OmitNumberMatched
	nextLinks := m.NextLinks
	m.mu.RUnlock()

	if !ok {
		http.Error(w, `{"code":"NotFound","description":"Collection not found"}`, http.StatusNotFound)
		return
	}

	params := r.URL.Query()

	var matched [][]byte
	for _, f := range stored {
		if match == nil || match(params, gjson.ParseBytes(f)) {
			matched = append(matched, f)
		}
	}

	limit := DefaultLimit
	if v := params.Get("limit"); v != "" {
		limit, _ = strconv.Atoi(v)
	}
	offset, _ := strconv.Atoi(params.Get("offset"))

	end := offset + limit
	if end > len(matched) {
		end = len(matched)
	}
	var page [][]byte
	if offset < end {
		page = matched[offset:end]
	}

	doc := FeatureCollectionJSON(page)
	if !omitMatched {
		doc, _ = sjson.SetBytes(doc, "numberMatched", len(matched))
	}
	doc, _ = sjson.SetBytes(doc, "numberReturned", len(page))

	if nextLinks && end < len(matched) {
		next := url.Values{}
		for k, v := range params {
			next[k] = v
		}
		next.Set("limit", strconv.Itoa(limit))
		next.Set("offset", strconv.Itoa(end))
		doc, _ = sjson.SetBytes(doc, "links.-1", map[string]string{
			"rel":  "next",
			"type": "application/geo+json",
			"href": ItemsPath(collectionID) + "?" + next.Encode(),
		})
	}

	w.Header().Set("Content-Type", "application/geo+json")
	w.WriteHeader(http.StatusOK)
	w.Write(doc)
}

// FeatureCollectionJSON assembles raw features into a FeatureCollection document.
func FeatureCollectionJSON(features [][]byte) []byte {
	doc := []byte(`{"type":"FeatureCollection","features":[]}`)
	for _, f := range features {
		doc, _ = sjson.SetRawBytes(doc, "features.-1", f)
	}
	return doc
}

// Perimeter describes a synthetic fire perimeter feature.
type Perimeter struct {
	FireID     int
	Region     string
	Timestamp  string // appended to primarykey and used for t
	Farea      float64
	X, Y, Size float64 // square footprint
	// FireIDKey overrides the fire id property name ("fireid" by default).
	FireIDKey string
}

// Feature builds the perimeter as an orb feature.
func (p Perimeter) Feature() *geojson.Feature {
	size := p.Size
	if size == 0 {
		size = 1
	}
	poly := orb.Polygon{{
		{p.X, p.Y}, {p.X + size, p.Y}, {p.X + size, p.Y + size}, {p.X, p.Y + size}, {p.X, p.Y},
	}}

	key := p.FireIDKey
	if key == "" {
		key = "fireid"
	}

	f := geojson.NewFeature(poly)
	f.Properties = geojson.Properties{
		key:          p.FireID,
		"region":     p.Region,
		"primarykey": fmt.Sprintf("%s|%d|%s", p.Region, p.FireID, p.Timestamp),
		"farea":      p.Farea,
		"t":          p.Timestamp,
	}
	return f
}

// JSON renders the perimeter as a GeoJSON feature.
func (p Perimeter) JSON() []byte {
	data, err := json.Marshal(p.Feature())
	if err != nil {
		panic(err)
	}
	return data
}

// PointFeatures renders n point features carrying a "seq" property.
func PointFeatures(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		f := geojson.NewFeature(orb.Point{float64(i), float64(i)})
		f.Properties = geojson.Properties{"seq": i}
		data, err := json.Marshal(f)
		if err != nil {
			panic(err)
		}
		out[i] = data
	}
	return out
}

// MatchFireFilter matches filters of the form "fireid=N AND region='R'" and
// "fireid IN (a,b,c)", the two shapes the perimeter workflows send.
func MatchFireFilter(params url.Values, feature gjson.Result) bool {
	filter := params.Get("filter")
	if filter == "" {
		return true
	}

	fireID := feature.Get("properties.fireid").Int()
	region := feature.Get("properties.region").String()

	if rest, ok := strings.CutPrefix(filter, "fireid IN ("); ok {
		for _, id := range strings.Split(strings.TrimSuffix(rest, ")"), ",") {
			if n, err := strconv.ParseInt(strings.TrimSpace(id), 10, 64); err == nil && n == fireID {
				return true
			}
		}
		return false
	}

	for _, clause := range strings.Split(filter, " AND ") {
		key, value, ok := strings.Cut(clause, "=")
		if !ok {
			continue
		}
		switch key {
		case "fireid":
			if n, err := strconv.ParseInt(value, 10, 64); err != nil || n != fireID {
				return false
			}
		case "region":
			if strings.Trim(value, "'") != region {
				return false
			}
		}
	}
	return true
}
