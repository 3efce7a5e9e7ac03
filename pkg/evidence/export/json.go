package export

import (
	"context"
	"encoding/json"
	"io"

	"nanogov/governor/pkg/evidence"
)

// JSONExporter writes records as one JSON array, or as newline-delimited
// JSON objects when Lines is set.
type JSONExporter struct {
	Pretty bool
	Lines  bool
}

// NewJSONExporter creates an array exporter. pretty indents each record.
func NewJSONExporter(pretty bool) *JSONExporter {
	return &JSONExporter{Pretty: pretty}
}

// NewJSONLinesExporter creates an exporter that writes one record per line.
func NewJSONLinesExporter() *JSONExporter {
	return &JSONExporter{Lines: true}
}

func (e *JSONExporter) format() string {
	if e.Lines {
		return FormatJSONL
	}
	return FormatJSON
}

// Export writes records to w. A nil slice is written as an empty array.
func (e *JSONExporter) Export(ctx context.Context, records []*evidence.Record, w io.Writer) error {
	aw := e.writer(w)
	if err := aw.open(); err != nil {
		return err
	}
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := aw.write(r); err != nil {
			return err
		}
	}
	return aw.close()
}

// ExportStream writes records as they arrive on recordsCh and finishes the
// document when the channel is closed.
func (e *JSONExporter) ExportStream(ctx context.Context, recordsCh <-chan *evidence.Record, w io.Writer) error {
	aw := e.writer(w)
	if err := aw.open(); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r, ok := <-recordsCh:
			if !ok {
				return aw.close()
			}
			if err := aw.write(r); err != nil {
				return err
			}
		}
	}
}

func (e *JSONExporter) writer(w io.Writer) *recordWriter {
	return &recordWriter{w: w, exp: e}
}

// recordWriter tracks separators and the count reported on failure.
type recordWriter struct {
	w     io.Writer
	exp   *JSONExporter
	count int
}

func (rw *recordWriter) fail(err error) error {
	return evidence.NewExportError(rw.exp.format(), rw.count, err)
}

func (rw *recordWriter) raw(s string) error {
	if _, err := io.WriteString(rw.w, s); err != nil {
		return rw.fail(err)
	}
	return nil
}

func (rw *recordWriter) open() error {
	if rw.exp.Lines {
		return nil
	}
	return rw.raw("[")
}

func (rw *recordWriter) write(r *evidence.Record) error {
	var data []byte
	var err error
	if rw.exp.Pretty && !rw.exp.Lines {
		data, err = json.MarshalIndent(r, "  ", "  ")
	} else {
		data, err = json.Marshal(r)
	}
	if err != nil {
		return rw.fail(err)
	}

	switch {
	case rw.exp.Lines:
	case rw.count > 0 && rw.exp.Pretty:
		err = rw.raw(",\n  ")
	case rw.count > 0:
		err = rw.raw(",")
	case rw.exp.Pretty:
		err = rw.raw("\n  ")
	}
	if err != nil {
		return err
	}
	if _, err := rw.w.Write(data); err != nil {
		return rw.fail(err)
	}
	if rw.exp.Lines {
		if err := rw.raw("\n"); err != nil {
			return err
		}
	}
	rw.count++
	return nil
}

func (rw *recordWriter) close() error {
	switch {
	case rw.exp.Lines:
		return nil
	case rw.exp.Pretty && rw.count > 0:
		return rw.raw("\n]")
	default:
		return rw.raw("]")
	}
}
