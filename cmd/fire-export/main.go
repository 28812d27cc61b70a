// Command fire-export writes fire perimeter exports from the FEDS features
// API or a local FlatGeobuf snapshot.
//
// Usage:
//
//	fire-export -config config.yaml farea-history
//	fire-export -config config.yaml perimeters
//	fire-export -config config.yaml largefire-centroids
//	fire-export collections
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"gocloud.dev/blob"
	_ "gocloud.dev/blob/fileblob"
	_ "gocloud.dev/blob/memblob"

	"github.com/zebbecker/fire-weather-utils/pkg/config"
	"github.com/zebbecker/fire-weather-utils/pkg/export"
	"github.com/zebbecker/fire-weather-utils/pkg/jobs"
	"github.com/zebbecker/fire-weather-utils/pkg/logging"
	"github.com/zebbecker/fire-weather-utils/pkg/metrics"
	"github.com/zebbecker/fire-weather-utils/pkg/ogcapi"
	"github.com/zebbecker/fire-weather-utils/pkg/pagination"
	"github.com/zebbecker/fire-weather-utils/pkg/perimeter"
	"github.com/zebbecker/fire-weather-utils/pkg/source"
)

const jobCollections = "collections"

var errUsage = errors.New("usage: fire-export [-config file] farea-history|perimeters|largefire-centroids|collections")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdout, os.Stderr))
}

// run executes one job and returns the process exit code.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("fire-export", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to a YAML config file")
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 1 {
		fmt.Fprintln(stderr, errUsage)
		return 2
	}
	job := fs.Arg(0)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(stderr, "fire-export: %v\n", err)
		return 1
	}

	logging.Setup(logging.Config{
		Level:  logging.LogLevel(cfg.Log.Level),
		Pretty: cfg.Log.Pretty,
		Output: stderr,
		Fields: map[string]interface{}{"job": job},
	})
	logger := logging.NewLogger("fire-export")

	report, err := runJob(ctx, cfg, job, stdout)

	if cfg.Metrics.Textfile != "" {
		if merr := metrics.WriteTextfile(cfg.Metrics.Textfile, nil); merr != nil {
			logger.Warn().Err(merr).Str("path", cfg.Metrics.Textfile).Msg("Failed to write metrics")
		}
	}

	if err != nil {
		logger.Error().Err(err).Msg("Job failed")
		return 1
	}

	if report != nil {
		logger.Info().
			Int("written", len(report.Written)).
			Ints("skipped", report.Skipped).
			Msg("Job finished")
	}
	return 0
}

func runJob(ctx context.Context, cfg *config.Config, job string, stdout io.Writer) (*jobs.Report, error) {
	switch job {
	case jobCollections, jobs.NameAreaHistory, jobs.NamePerimeters, jobs.NameLargeFireCentroids:
	default:
		return nil, fmt.Errorf("unknown job %q: %w", job, errUsage)
	}

	client, err := ogcapi.New(ogcapi.Config{
		BaseURL:   cfg.API.BaseURL,
		UserAgent: cfg.API.UserAgent,
		Timeout:   cfg.API.Timeout,
	})
	if err != nil {
		return nil, err
	}

	if job == jobCollections {
		ids, err := client.Collections(ctx)
		if err != nil {
			return nil, err
		}
		for _, id := range ids {
			fmt.Fprintln(stdout, id)
		}
		return nil, nil
	}

	src, err := openSource(ctx, cfg, client)
	if err != nil {
		return nil, err
	}

	outBucket, err := openBucket(ctx, cfg.Output.Bucket)
	if err != nil {
		return nil, err
	}
	defer outBucket.Close()
	out := export.NewWriter(outBucket, cfg.Output.Prefix)

	switch job {
	case jobs.NameAreaHistory, jobs.NamePerimeters:
		fires, err := loadFires(ctx, cfg.Fires)
		if err != nil {
			return nil, err
		}
		if job == jobs.NameAreaHistory {
			return jobs.AreaHistory(ctx, src, out, fires)
		}
		return jobs.Perimeters(ctx, src, out, fires)

	default:
		c, err := centroids(cfg.Window)
		if err != nil {
			return nil, err
		}
		return jobs.LargeFireCentroids(ctx, src, out, c)
	}
}

// openSource pages through the features API, by offset or by next links,
// or loads a local snapshot.
func openSource(ctx context.Context, cfg *config.Config, client *ogcapi.Client) (source.Source, error) {
	switch cfg.Source.Kind {
	case source.KindRemote:
		remote := source.RemoteConfig{
			Collection:     cfg.API.Collection,
			MaxIDsPerQuery: cfg.API.MaxIDsPerQuery,
		}
		if cfg.API.Paging == source.PagingNext {
			remote.Limit = cfg.API.PageSize
			return source.NewRemote(source.FetcherFunc(client.ItemsByNextLink), remote), nil
		}

		paginator := pagination.New(client, pagination.Config{
			PageSize:     cfg.API.PageSize,
			MaxPages:     cfg.API.MaxPages,
			ShowProgress: cfg.API.ShowProgress,
		})
		return source.NewRemote(paginator, remote), nil

	case source.KindLocal:
		bucket, err := openBucket(ctx, cfg.Source.Bucket)
		if err != nil {
			return nil, err
		}
		defer bucket.Close()

		local, err := source.OpenLocal(ctx, bucket, cfg.Source.Key)
		if err != nil {
			return nil, err
		}
		return local, nil

	default:
		return nil, fmt.Errorf("%w: %q", source.ErrUnknownKind, cfg.Source.Kind)
	}
}

// loadFires merges the configured ids with those of the optional id list.
func loadFires(ctx context.Context, cfg config.FiresConfig) (jobs.Fires, error) {
	fires := jobs.Fires{Region: cfg.Region, IDs: append([]int(nil), cfg.IDs...)}
	if cfg.IDsKey == "" {
		return fires, nil
	}

	bucket, err := openBucket(ctx, cfg.IDsBucket)
	if err != nil {
		return fires, err
	}
	defer bucket.Close()

	ids, err := export.ReadFireIDs(ctx, bucket, cfg.IDsKey)
	if err != nil {
		return fires, err
	}
	fires.IDs = append(fires.IDs, ids...)
	return fires, nil
}

func centroids(cfg config.WindowConfig) (jobs.Centroids, error) {
	start, stop, err := cfg.Times()
	if err != nil {
		return jobs.Centroids{}, err
	}
	bbox, err := jobs.BBoxFromSlice(cfg.BBox)
	if err != nil {
		return jobs.Centroids{}, err
	}

	return jobs.Centroids{
		Window:   perimeter.Window{Start: start, Stop: stop, BBox: bbox},
		Prefix:   cfg.Prefix,
		BBoxName: cfg.BBoxName,
	}, nil
}

// openBucket opens a gocloud bucket URL. Plain paths open a local directory.
func openBucket(ctx context.Context, location string) (*blob.Bucket, error) {
	uri := location
	if !strings.Contains(location, "://") {
		abs, err := filepath.Abs(location)
		if err != nil {
			return nil, fmt.Errorf("resolve %s: %w", location, err)
		}
		uri = "file://" + filepath.ToSlash(abs)
	}

	bucket, err := blob.OpenBucket(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("open bucket %s: %w", location, err)
	}
	return bucket, nil
}
