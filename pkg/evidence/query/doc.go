// Package query validates evidence queries and builds them from request
// parameters.
//
// # Query Validation
//
//   - Limit >= 0 and <= MaxLimit
//   - Offset >= 0
//   - Sort field is one of timestamp, duration, verdict
//   - Sort order is asc or desc
//   - Time range is valid (start <= end)
//   - Verdict, checkpoint and policy ID are well formed
//
// # Basic Usage
//
//	q, err := query.FromValues(r.URL.Query())
//	if err != nil {
//	    return err
//	}
//	records, err := store.Query(ctx, q)
package query
