package ogcapi

import (
	"net/url"
	"strconv"
	"time"

	"github.com/paulmach/orb"
)

// ItemsQuery holds the filter parameters of an items request.
// Zero values are omitted.
type ItemsQuery struct {
	// BBox restricts results to features intersecting the box (WGS84).
	BBox *orb.Bound

	// Start and Stop bound the datetime interval. A zero end is open ("..").
	Start time.Time
	Stop  time.Time

	// Filter is a CQL2 text expression, e.g. "fireid=415 AND region='CONUS'".
	Filter string

	// Limit is the page size for single requests. The paginator overrides it.
	Limit int

	// Extra parameters passed through verbatim (e.g. "f": "json").
	Extra url.Values
}

// Values encodes the query as request parameters.
func (q ItemsQuery) Values() url.Values {
	v := url.Values{}
	for k, vals := range q.Extra {
		v[k] = append([]string(nil), vals...)
	}

	if q.BBox != nil {
		v.Set("bbox", FormatBBox(*q.BBox))
	}

	if !q.Start.IsZero() || !q.Stop.IsZero() {
		v.Set("datetime", FormatInterval(q.Start, q.Stop))
	}

	if q.Filter != "" {
		v.Set("filter", q.Filter)
	}

	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}

	return v
}

// FormatBBox renders a bound as "minx,miny,maxx,maxy".
func FormatBBox(b orb.Bound) string {
	return formatFloat(b.Min[0]) + "," + formatFloat(b.Min[1]) + "," +
		formatFloat(b.Max[0]) + "," + formatFloat(b.Max[1])
}

// FormatInterval renders an RFC 3339 interval, using ".." for an open end.
func FormatInterval(start, stop time.Time) string {
	return formatInstant(start) + "/" + formatInstant(stop)
}

func formatInstant(t time.Time) string {
	if t.IsZero() {
		return ".."
	}
	return t.UTC().Format(time.RFC3339)
}

func formatFloat(f float64) string {
	return strconv.FormatFloat(f, 'f', -1, 64)
}
