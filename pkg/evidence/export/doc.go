// Package export writes evidence records as JSON or CSV.
//
// # Export Formats
//
//   - JSON: an array of records, optionally pretty-printed
//   - CSV: one row per record with a header; the rule trail and anomalies
//     are flattened into ';'-separated cells
//
// # Basic Usage
//
//	exp, err := export.ForFormat("csv", false)
//	if err != nil {
//	    return err
//	}
//	err = export.Stream(ctx, store, &evidence.Query{Verdict: "deny"}, exp, os.Stdout)
//
// # Streaming
//
// ExportStream consumes the record channel returned by Storage.QueryStream,
// so exports never hold the full result set in memory.
//
// # Error Handling
//
// Exporters return *evidence.ExportError when encoding or writing fails.
package export
