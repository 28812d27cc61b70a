// Package jobs runs the perimeter export workflows: per-fire area history,
// per-fire perimeter layers and large fire centroid summaries.
package jobs

import (
	"context"
	"errors"
	"fmt"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog/log"

	"github.com/zebbecker/fire-weather-utils/pkg/export"
	"github.com/zebbecker/fire-weather-utils/pkg/perimeter"
	"github.com/zebbecker/fire-weather-utils/pkg/source"
)

// Job names accepted by the CLI.
const (
	NameAreaHistory        = "farea-history"
	NamePerimeters         = "perimeters"
	NameLargeFireCentroids = "largefire-centroids"
)

// ErrNoFires is returned when a per-fire job is given no fire ids.
var ErrNoFires = errors.New("jobs: no fire ids")

var filesWrittenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fire_export_files_total",
	Help: "Export files written by job",
}, []string{"job"})

var firesSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "fire_export_fires_skipped_total",
	Help: "Fires without matching perimeters by job",
}, []string{"job"})

// Report lists what a job produced.
type Report struct {
	Written []string // keys written
	Skipped []int    // fire ids without perimeters
}

// Fires selects fires by id within one region.
type Fires struct {
	Region string
	IDs    []int
}

// Centroids configures a large fire centroid run.
type Centroids struct {
	Window   perimeter.Window
	Prefix   string // output file prefix
	BBoxName string // optional name of the window's bbox in the file name
}

// AreaHistory writes the time-ordered area history of each fire. Fires
// without perimeters are logged and skipped.
func AreaHistory(ctx context.Context, src source.Source, out *export.Writer, fires Fires) (*Report, error) {
	return perFire(ctx, NameAreaHistory, src, fires, func(ctx context.Context, id int, features []*geojson.Feature) (string, error) {
		return out.AreaHistoryCSV(ctx, fires.Region, id, features)
	})
}

// Perimeters writes the time-ordered perimeters of each fire as a
// FlatGeobuf layer. Fires without perimeters are logged and skipped.
func Perimeters(ctx context.Context, src source.Source, out *export.Writer, fires Fires) (*Report, error) {
	return perFire(ctx, NamePerimeters, src, fires, func(ctx context.Context, id int, features []*geojson.Feature) (string, error) {
		return out.PerimetersFGB(ctx, fires.Region, id, features)
	})
}

type writeFunc func(ctx context.Context, fireID int, features []*geojson.Feature) (string, error)

func perFire(ctx context.Context, job string, src source.Source, fires Fires, write writeFunc) (*Report, error) {
	if len(fires.IDs) == 0 {
		return nil, ErrNoFires
	}

	logger := log.With().Str("component", "jobs").Str("job", job).Str("region", fires.Region).Logger()
	report := &Report{Written: []string{}, Skipped: []int{}}

	for _, id := range fires.IDs {
		features, err := src.FirePerimeters(ctx, id, fires.Region)
		if err != nil {
			return report, err
		}

		if len(features) == 0 {
			logger.Warn().Int("fire_id", id).Msg("No fires found matching region and fire id")
			firesSkippedTotal.WithLabelValues(job).Inc()
			report.Skipped = append(report.Skipped, id)
			continue
		}

		perimeter.SortByPerimeterTime(features)

		key, err := write(ctx, id, features)
		if err != nil {
			return report, fmt.Errorf("fire %d: %w", id, err)
		}

		logger.Info().
			Int("fire_id", id).
			Int("perimeters", len(features)).
			Str("key", key).
			Msg("Exported fire")
		filesWrittenTotal.WithLabelValues(job).Inc()
		report.Written = append(report.Written, key)
	}

	return report, nil
}

// LargeFireCentroids finds the fires active in the window, fetches their
// full histories and writes one summary row per fire.
func LargeFireCentroids(ctx context.Context, src source.Source, out *export.Writer, c Centroids) (*Report, error) {
	logger := log.With().Str("component", "jobs").Str("job", NameLargeFireCentroids).Logger()
	report := &Report{Written: []string{}, Skipped: []int{}}

	active, err := src.ActivePerimeters(ctx, c.Window)
	if err != nil {
		return report, err
	}

	ids := perimeter.FireIDs(active, nil)
	logger.Info().Int("fires", len(ids)).Msg("Unique fire ids in time range")
	if len(ids) == 0 {
		return report, nil
	}

	history, err := src.FireHistories(ctx, ids, c.Window.BBox)
	if err != nil {
		return report, err
	}

	summaries := perimeter.Summarize(history)
	logger.Info().Int("fires", len(summaries)).Msg("Summarized fires")

	name := export.SummaryName(c.Prefix, c.BBoxName, c.Window.Start, c.Window.Stop)
	key, err := out.FireSummariesCSV(ctx, name, summaries)
	if err != nil {
		return report, err
	}

	filesWrittenTotal.WithLabelValues(NameLargeFireCentroids).Inc()
	report.Written = append(report.Written, key)
	return report, nil
}

// BBoxFromSlice builds a bound from [minx, miny, maxx, maxy]; an empty
// slice means no bbox.
func BBoxFromSlice(v []float64) (*orb.Bound, error) {
	switch len(v) {
	case 0:
		return nil, nil
	case 4:
		if v[0] > v[2] || v[1] > v[3] {
			return nil, fmt.Errorf("bbox %v: min exceeds max", v)
		}
		b := orb.Bound{Min: orb.Point{v[0], v[1]}, Max: orb.Point{v[2], v[3]}}
		return &b, nil
	default:
		return nil, fmt.Errorf("bbox needs 4 values, got %d", len(v))
	}
}
