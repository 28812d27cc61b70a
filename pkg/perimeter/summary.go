package perimeter

import (
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FireSummary condenses the perimeter history of one fire.
type FireSummary struct {
	FireID   int
	StartT   time.Time // earliest observation
	LatestT  time.Time // latest observation
	MaxFarea float64
	Centroid orb.Point // of the latest perimeter
	Region   string    // of the latest perimeter
}

// Summarize groups perimeters by fire and summarizes each group. Fires are
// returned in order of first appearance. The observation time is "t", or
// the primarykey timestamp when "t" is missing; perimeters with neither are
// counted for area only.
func Summarize(features []*geojson.Feature) []FireSummary {
	type acc struct {
		summary FireSummary
		latest  *geojson.Feature
		timed   bool
	}

	byID := map[int]*acc{}
	order := []int{}

	for _, f := range features {
		id, err := FireID(f)
		if err != nil {
			continue
		}

		a, ok := byID[id]
		if !ok {
			a = &acc{summary: FireSummary{FireID: id}}
			byID[id] = a
			order = append(order, id)
		}

		if farea, ok := Farea(f); ok && farea > a.summary.MaxFarea {
			a.summary.MaxFarea = farea
		}

		t, err := ObservedTime(f)
		if err != nil {
			t, err = PerimeterTime(f)
		}
		if err != nil {
			if a.latest == nil {
				a.latest = f
			}
			continue
		}

		if !a.timed || t.Before(a.summary.StartT) {
			a.summary.StartT = t
		}
		if !a.timed || !t.Before(a.summary.LatestT) {
			a.summary.LatestT = t
			a.latest = f
		}
		a.timed = true
	}

	summaries := make([]FireSummary, 0, len(order))
	for _, id := range order {
		a := byID[id]
		if a.latest != nil {
			a.summary.Centroid, _ = Centroid(a.latest)
			a.summary.Region = Region(a.latest)
		}
		summaries = append(summaries, a.summary)
	}
	return summaries
}
