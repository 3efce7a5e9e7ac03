package export

import (
	"context"
	"fmt"
	"io"

	"nanogov/governor/pkg/evidence"
)

// Supported export formats.
const (
	FormatJSON  = "json"
	FormatJSONL = "jsonl"
	FormatCSV   = "csv"
)

// StreamExporter is an exporter that can also consume a record channel.
type StreamExporter interface {
	evidence.Exporter
	ExportStream(ctx context.Context, recordsCh <-chan *evidence.Record, w io.Writer) error
}

// ForFormat returns the exporter for format. pretty indents JSON arrays;
// CSV output always carries a header row.
func ForFormat(format string, pretty bool) (StreamExporter, error) {
	switch format {
	case FormatJSON, "":
		return NewJSONExporter(pretty), nil
	case FormatJSONL:
		return NewJSONLinesExporter(), nil
	case FormatCSV:
		return NewCSVExporter(true), nil
	default:
		return nil, evidence.NewExportError(format, 0, fmt.Errorf("unsupported format %q", format))
	}
}

// ContentType is the HTTP media type of format.
func ContentType(format string) string {
	switch format {
	case FormatCSV:
		return "text/csv"
	case FormatJSONL:
		return "application/x-ndjson"
	default:
		return "application/json"
	}
}

// Stream runs query against store and writes every matching record to w
// without holding the result set in memory.
func Stream(ctx context.Context, store evidence.Storage, query *evidence.Query, exp StreamExporter, w io.Writer) error {
	records, errs, err := store.QueryStream(ctx, query)
	if err != nil {
		return err
	}
	if err := exp.ExportStream(ctx, records, w); err != nil {
		// Drain so the producer goroutine can exit.
		for range records {
		}
		return err
	}
	return <-errs
}
