package perimeter

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// Filter returns the perimeters of one fire in one region, in input order.
func Filter(features []*geojson.Feature, fireID int, region string) []*geojson.Feature {
	out := []*geojson.Feature{}
	for _, f := range features {
		id, err := FireID(f)
		if err != nil || id != fireID {
			continue
		}
		if Region(f) != region {
			continue
		}
		out = append(out, f)
	}
	return out
}

// FilterFires returns the perimeters whose fire id is in ids.
func FilterFires(features []*geojson.Feature, ids []int) []*geojson.Feature {
	want := make(map[int]bool, len(ids))
	for _, id := range ids {
		want[id] = true
	}

	out := []*geojson.Feature{}
	for _, f := range features {
		if id, err := FireID(f); err == nil && want[id] {
			out = append(out, f)
		}
	}
	return out
}

// SortByPerimeterTime sorts perimeters by their primarykey timestamp,
// oldest first. Ties keep input order; unparseable timestamps sort last.
func SortByPerimeterTime(features []*geojson.Feature) {
	keys := make(map[*geojson.Feature]time.Time, len(features))
	for _, f := range features {
		if t, err := PerimeterTime(f); err == nil {
			keys[f] = t
		}
	}

	sort.SliceStable(features, func(i, j int) bool {
		ti, iok := keys[features[i]]
		tj, jok := keys[features[j]]
		switch {
		case iok && jok:
			return ti.Before(tj)
		default:
			return iok && !jok
		}
	})
}

// Window selects perimeters observed within [Start, Stop], optionally
// intersecting BBox.
type Window struct {
	Start time.Time
	Stop  time.Time
	BBox  *orb.Bound
}

// Contains reports whether f was observed inside the window. Features
// without an observation time never match.
func (w Window) Contains(f *geojson.Feature) bool {
	t, err := ObservedTime(f)
	if err != nil {
		return false
	}
	if !w.Start.IsZero() && t.Before(w.Start) {
		return false
	}
	if !w.Stop.IsZero() && t.After(w.Stop) {
		return false
	}
	return w.Intersects(f)
}

// Intersects reports whether the bound of f intersects the window's BBox.
// A window without BBox intersects everything.
func (w Window) Intersects(f *geojson.Feature) bool {
	if w.BBox == nil {
		return true
	}
	if f.Geometry == nil {
		return false
	}
	return w.BBox.Intersects(f.Geometry.Bound())
}

// ActiveFireIDs returns the ids of fires with a perimeter inside w, in order
// of first appearance.
func ActiveFireIDs(features []*geojson.Feature, w Window) []int {
	return FireIDs(features, w.Contains)
}

// FireIDs returns the distinct fire ids of the features accepted by keep,
// in order of first appearance. A nil keep accepts every feature.
func FireIDs(features []*geojson.Feature, keep func(*geojson.Feature) bool) []int {
	seen := map[int]bool{}
	ids := []int{}
	for _, f := range features {
		if keep != nil && !keep(f) {
			continue
		}
		id, err := FireID(f)
		if err != nil || seen[id] {
			continue
		}
		seen[id] = true
		ids = append(ids, id)
	}
	return ids
}

// FireFilter builds the CQL2 text filter selecting one fire in one region.
func FireFilter(fireID int, region string) string {
	return PropFireID + "=" + strconv.Itoa(fireID) +
		" AND " + PropRegion + "='" + strings.ReplaceAll(region, "'", "''") + "'"
}

// FireIDsFilter builds the CQL2 text filter selecting a set of fires.
func FireIDsFilter(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return PropFireID + " IN (" + strings.Join(parts, ",") + ")"
}
