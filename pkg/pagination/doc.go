// Package pagination walks an OGC API Features collection with offset paging.
//
// OGC API Features servers report the size of a filtered result set in the
// numberMatched member but return at most `limit` features per response. The
// Paginator issues a one-feature count request to learn that total, then requests
// pages of PageSize features at increasing offsets until the result set is
// exhausted.
//
// Example usage:
//
//	cfg := pagination.DefaultConfig()
//	cfg.ShowProgress = true
//	p := pagination.New(ogcClient, cfg)
//	features, err := p.FetchAll(ctx, "public.eis_fire_lf_perimeter_nrt", url.Values{
//		"filter": {"fireid=415 AND region='CONUS'"},
//	})
//
// The paginator:
//   - Requests limit=1 first to read numberMatched (absent counts as zero)
//   - Returns an empty result without paging when nothing matches
//   - Fetches ceil(total/PageSize) pages, capped by MaxPages when set
//   - Owns the limit and offset parameters, overriding caller values
//   - Stops at the first page shorter than PageSize
//   - Fetches one page at a time and never retries
//
// Any error from the Querier aborts the walk and is returned as is; features
// gathered before the failure are discarded.
package pagination
