package perimeter

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zebbecker/fire-weather-utils/internal/testutil"
)

func feature(props geojson.Properties) *geojson.Feature {
	f := geojson.NewFeature(orb.Point{0, 0})
	f.Properties = props
	return f
}

func TestFireID(t *testing.T) {
	tests := []struct {
		name    string
		props   geojson.Properties
		want    int
		wantErr bool
	}{
		{name: "api float", props: geojson.Properties{"fireid": 415.0}, want: 415},
		{name: "local key", props: geojson.Properties{"fireID": int64(72552)}, want: 72552},
		{name: "json number", props: geojson.Properties{"fireid": json.Number("17")}, want: 17},
		{name: "numeric string", props: geojson.Properties{"fireid": "72552.0"}, want: 72552},
		{name: "null falls through to local key", props: geojson.Properties{"fireid": nil, "fireID": 3}, want: 3},
		{name: "missing", props: geojson.Properties{"region": "CONUS"}, wantErr: true},
		{name: "not numeric", props: geojson.Properties{"fireid": "abc"}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FireID(feature(tt.props))
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrNoFireID)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestFarea(t *testing.T) {
	v, ok := Farea(feature(geojson.Properties{"farea": int64(12)}))
	assert.True(t, ok)
	assert.Equal(t, 12.0, v)

	_, ok = Farea(feature(geojson.Properties{}))
	assert.False(t, ok)
}

func TestPerimeterTime(t *testing.T) {
	tests := []struct {
		key  string
		want time.Time
		ok   bool
	}{
		{"CONUS|415|2024-08-01T12:00:00", time.Date(2024, 8, 1, 12, 0, 0, 0, time.UTC), true},
		{"CONUS|415|2024-08-01T12:00:00+02:00", time.Date(2024, 8, 1, 10, 0, 0, 0, time.UTC), true},
		{"CONUS|415|2024-08-01 06:30:00", time.Date(2024, 8, 1, 6, 30, 0, 0, time.UTC), true},
		{"2024-08-01", time.Date(2024, 8, 1, 0, 0, 0, 0, time.UTC), true},
		{"CONUS|415|", time.Time{}, false},
		{"CONUS|415|PM", time.Time{}, false},
		{"", time.Time{}, false},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			got, err := PerimeterTime(feature(geojson.Properties{"primarykey": tt.key}))
			if !tt.ok {
				assert.ErrorIs(t, err, ErrNoTimestamp)
				return
			}
			require.NoError(t, err)
			assert.True(t, tt.want.Equal(got), "got %v, want %v", got, tt.want)
		})
	}
}

func TestObservedTime(t *testing.T) {
	got, err := ObservedTime(feature(geojson.Properties{"t": "2024-12-01T00:00:00"}))
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), got)

	_, err = ObservedTime(feature(geojson.Properties{"t": 12}))
	assert.ErrorIs(t, err, ErrNoTimestamp)
}

func TestCentroid(t *testing.T) {
	square := testutil.Perimeter{FireID: 1, X: 10, Y: 20, Size: 2}.Feature()
	c, ok := Centroid(square)
	require.True(t, ok)
	assert.InDelta(t, 11.0, c[0], 1e-9)
	assert.InDelta(t, 21.0, c[1], 1e-9)

	point := geojson.NewFeature(orb.Point{-120.5, 38.25})
	c, ok = Centroid(point)
	require.True(t, ok)
	assert.Equal(t, orb.Point{-120.5, 38.25}, c)

	_, ok = Centroid(&geojson.Feature{Properties: geojson.Properties{}})
	assert.False(t, ok)
}

func TestFilter(t *testing.T) {
	features := []*geojson.Feature{
		testutil.Perimeter{FireID: 415, Region: "CONUS", Timestamp: "2024-08-02T00:00:00"}.Feature(),
		testutil.Perimeter{FireID: 415, Region: "AK", Timestamp: "2024-08-01T00:00:00"}.Feature(),
		testutil.Perimeter{FireID: 416, Region: "CONUS", Timestamp: "2024-08-01T00:00:00"}.Feature(),
		testutil.Perimeter{FireID: 415, Region: "CONUS", Timestamp: "2024-08-01T00:00:00", FireIDKey: "fireID"}.Feature(),
	}

	got := Filter(features, 415, "CONUS")
	require.Len(t, got, 2)
	assert.Same(t, features[0], got[0])
	assert.Same(t, features[3], got[1])

	assert.Empty(t, Filter(features, 999, "CONUS"))
	assert.NotNil(t, Filter(nil, 1, "CONUS"))
}

func TestFilterFires(t *testing.T) {
	features := []*geojson.Feature{
		testutil.Perimeter{FireID: 1}.Feature(),
		testutil.Perimeter{FireID: 2}.Feature(),
		testutil.Perimeter{FireID: 3}.Feature(),
	}

	got := FilterFires(features, []int{3, 1})
	require.Len(t, got, 2)
	assert.Same(t, features[0], got[0])
	assert.Same(t, features[2], got[1])
}

func TestSortByPerimeterTime(t *testing.T) {
	a := testutil.Perimeter{FireID: 1, Timestamp: "2024-08-03T00:00:00"}.Feature()
	b := testutil.Perimeter{FireID: 1, Timestamp: "2024-08-01T00:00:00"}.Feature()
	bTie := testutil.Perimeter{FireID: 1, Timestamp: "2024-08-01T00:00:00", Farea: 2}.Feature()
	bad := testutil.Perimeter{FireID: 1, Timestamp: "garbage"}.Feature()
	c := testutil.Perimeter{FireID: 1, Timestamp: "2024-08-02T12:00:00"}.Feature()

	features := []*geojson.Feature{bad, a, b, bTie, c}
	SortByPerimeterTime(features)

	assert.Equal(t, []*geojson.Feature{b, bTie, c, a, bad}, features)
}

func TestWindowAndActiveFireIDs(t *testing.T) {
	conus := orb.Bound{Min: orb.Point{-126.4, 24.0}, Max: orb.Point{-61.4, 49.4}}
	w := Window{
		Start: time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC),
		Stop:  time.Date(2024, 12, 8, 0, 0, 0, 0, time.UTC),
		BBox:  &conus,
	}

	features := []*geojson.Feature{
		testutil.Perimeter{FireID: 7, Timestamp: "2024-12-08T00:00:00", X: -100, Y: 40}.Feature(),  // stop inclusive
		testutil.Perimeter{FireID: 5, Timestamp: "2024-12-01T00:00:00", X: -100, Y: 40}.Feature(),  // start inclusive
		testutil.Perimeter{FireID: 7, Timestamp: "2024-12-03T00:00:00", X: -100, Y: 40}.Feature(),  // duplicate
		testutil.Perimeter{FireID: 9, Timestamp: "2024-11-30T23:59:59", X: -100, Y: 40}.Feature(),  // before start
		testutil.Perimeter{FireID: 11, Timestamp: "2024-12-04T00:00:00", X: 30, Y: 60}.Feature(),   // outside bbox
		testutil.Perimeter{FireID: 13, Timestamp: "2024-12-04T00:00:00", X: -61.9, Y: 49}.Feature(), // straddles edge
	}

	assert.Equal(t, []int{7, 5, 13}, ActiveFireIDs(features, w))
	assert.Equal(t, []int{7, 5, 9, 11, 13}, FireIDs(features, nil))
	assert.Empty(t, ActiveFireIDs(nil, w))
}

func TestFilters(t *testing.T) {
	assert.Equal(t, "fireid=415 AND region='CONUS'", FireFilter(415, "CONUS"))
	assert.Equal(t, "fireid=1 AND region='O''Brien'", FireFilter(1, "O'Brien"))
	assert.Equal(t, "fireid IN (1,22,333)", FireIDsFilter([]int{1, 22, 333}))
}

func TestSummarize(t *testing.T) {
	features := []*geojson.Feature{
		testutil.Perimeter{FireID: 2, Region: "CONUS", Timestamp: "2024-12-02T00:00:00", Farea: 10, X: 0, Y: 0}.Feature(),
		testutil.Perimeter{FireID: 1, Region: "CONUS", Timestamp: "2024-12-05T00:00:00", Farea: 3, X: 4, Y: 4}.Feature(),
		testutil.Perimeter{FireID: 2, Region: "CONUS", Timestamp: "2024-12-04T00:00:00", Farea: 8, X: 2, Y: 2, Size: 2}.Feature(),
		testutil.Perimeter{FireID: 2, Region: "CONUS", Timestamp: "2024-12-01T00:00:00", Farea: 1, X: 9, Y: 9}.Feature(),
	}

	got := Summarize(features)
	require.Len(t, got, 2)

	fire2 := got[0]
	assert.Equal(t, 2, fire2.FireID)
	assert.Equal(t, time.Date(2024, 12, 1, 0, 0, 0, 0, time.UTC), fire2.StartT)
	assert.Equal(t, time.Date(2024, 12, 4, 0, 0, 0, 0, time.UTC), fire2.LatestT)
	assert.Equal(t, 10.0, fire2.MaxFarea)
	assert.Equal(t, "CONUS", fire2.Region)
	assert.InDelta(t, 3.0, fire2.Centroid[0], 1e-9)
	assert.InDelta(t, 3.0, fire2.Centroid[1], 1e-9)

	assert.Equal(t, 1, got[1].FireID)
	assert.Equal(t, got[1].StartT, got[1].LatestT)
}

func TestSummarize_FallsBackToPrimaryKey(t *testing.T) {
	f := testutil.Perimeter{FireID: 4, Region: "AK", Timestamp: "2024-07-01T00:00:00", Farea: 2}.Feature()
	delete(f.Properties, "t")

	got := Summarize([]*geojson.Feature{f})
	require.Len(t, got, 1)
	assert.Equal(t, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC), got[0].StartT)
	assert.Equal(t, "AK", got[0].Region)
}
