// Package export writes perimeter products into a gocloud.dev blob bucket:
// area history and fire summary CSVs, and FlatGeobuf perimeter layers.
package export

import (
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"path"
	"strconv"
	"time"

	"github.com/paulmach/orb/encoding/wkt"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gocloud.dev/blob"

	"github.com/zebbecker/fire-weather-utils/pkg/fgb"
	"github.com/zebbecker/fire-weather-utils/pkg/perimeter"
)

// PropPerimeterTime is the property added to exported perimeters.
const PropPerimeterTime = "perim_t"

// ErrNothingToWrite is returned when an export has no rows.
var ErrNothingToWrite = errors.New("export: nothing to write")

var (
	areaHistoryHeader = []string{"primarykey", "farea", "centroid"}
	summaryHeader     = []string{"fireid", "start_t", "latest_t", "max_farea", "centroid", "region"}
)

// Writer writes export files below a directory of a bucket.
type Writer struct {
	bucket *blob.Bucket
	dir    string
	logger zerolog.Logger
}

// NewWriter creates a writer storing files under dir ("" for the bucket root).
func NewWriter(bucket *blob.Bucket, dir string) *Writer {
	return &Writer{
		bucket: bucket,
		dir:    dir,
		logger: log.With().Str("component", "export").Logger(),
	}
}

// AreaHistoryName returns the file name of a fire's area history.
func AreaHistoryName(region string, fireID int) string {
	return fmt.Sprintf("farea_%s_%d.csv", region, fireID)
}

// PerimetersName returns the file name of a fire's perimeter layer.
func PerimetersName(region string, fireID int) string {
	return fmt.Sprintf("perimeters_%s_%d.fgb", region, fireID)
}

// SummaryName returns the file name of a fire summary table, e.g.
// "Centroids_CONUS_20241201_20241208.csv". An empty bboxName is left out.
func SummaryName(prefix, bboxName string, start, stop time.Time) string {
	name := prefix
	if bboxName != "" {
		name += "_" + bboxName
	}
	return fmt.Sprintf("%s_%s_%s.csv", name, start.UTC().Format("20060102"), stop.UTC().Format("20060102"))
}

// AreaHistoryCSV writes the primarykey, farea and centroid of each
// perimeter, in the given order, and returns the key written.
func (w *Writer) AreaHistoryCSV(ctx context.Context, region string, fireID int, features []*geojson.Feature) (string, error) {
	if len(features) == 0 {
		return "", ErrNothingToWrite
	}

	rows := make([][]string, 0, len(features))
	for _, f := range features {
		farea := ""
		if v, ok := perimeter.Farea(f); ok {
			farea = formatFloat(v)
		}
		rows = append(rows, []string{perimeter.PrimaryKey(f), farea, centroidWKT(f)})
	}

	return w.writeCSV(ctx, AreaHistoryName(region, fireID), areaHistoryHeader, rows)
}

// FireSummariesCSV writes one row per fire summary and returns the key written.
func (w *Writer) FireSummariesCSV(ctx context.Context, name string, summaries []perimeter.FireSummary) (string, error) {
	if len(summaries) == 0 {
		return "", ErrNothingToWrite
	}

	rows := make([][]string, 0, len(summaries))
	for _, s := range summaries {
		rows = append(rows, []string{
			strconv.Itoa(s.FireID),
			formatTime(s.StartT),
			formatTime(s.LatestT),
			formatFloat(s.MaxFarea),
			wkt.MarshalString(s.Centroid),
			s.Region,
		})
	}

	return w.writeCSV(ctx, name, summaryHeader, rows)
}

// PerimetersFGB writes the perimeters as a FlatGeobuf layer with a perim_t
// attribute taken from primarykey, and returns the key written. The input
// features are not modified.
func (w *Writer) PerimetersFGB(ctx context.Context, region string, fireID int, features []*geojson.Feature) (string, error) {
	if len(features) == 0 {
		return "", ErrNothingToWrite
	}

	out := make([]*geojson.Feature, len(features))
	for i, f := range features {
		props := f.Properties.Clone()
		if props == nil {
			props = geojson.Properties{}
		}
		if t, err := perimeter.PerimeterTime(f); err == nil {
			props[PropPerimeterTime] = t
		}
		out[i] = &geojson.Feature{Type: "Feature", Geometry: f.Geometry, Properties: props}
	}

	name := PerimetersName(region, fireID)
	key := path.Join(w.dir, name)

	bw, err := w.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: "application/flatgeobuf"})
	if err != nil {
		return "", fmt.Errorf("create %s: %w", key, err)
	}

	opts := fgb.DefaultOptions()
	opts.Name = name
	if err := fgb.WriteFeatures(bw, out, opts); err != nil {
		bw.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := bw.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", key, err)
	}

	w.logger.Info().
		Str("key", key).
		Int("perimeters", len(out)).
		Msg("Wrote perimeters")

	return key, nil
}

func (w *Writer) writeCSV(ctx context.Context, name string, header []string, rows [][]string) (string, error) {
	key := path.Join(w.dir, name)

	bw, err := w.bucket.NewWriter(ctx, key, &blob.WriterOptions{ContentType: "text/csv"})
	if err != nil {
		return "", fmt.Errorf("create %s: %w", key, err)
	}

	cw := csv.NewWriter(bw)
	err = cw.Write(header)
	if err == nil {
		err = cw.WriteAll(rows)
	}
	if err != nil {
		bw.Close()
		return "", fmt.Errorf("write %s: %w", key, err)
	}
	if err := bw.Close(); err != nil {
		return "", fmt.Errorf("close %s: %w", key, err)
	}

	w.logger.Info().
		Str("key", key).
		Int("rows", len(rows)).
		Msg("Wrote table")

	return key, nil
}

func centroidWKT(f *geojson.Feature) string {
	c, ok := perimeter.Centroid(f)
	if !ok {
		return ""
	}
	return wkt.MarshalString(c)
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
