package ingest

import (
	"fmt"
	"strings"
)

// SchemaError means the header row is missing required columns. It is fatal
// before any row is processed.
type SchemaError struct {
	Missing []string
}

func (e *SchemaError) Error() string {
	return fmt.Sprintf("missing required columns: %s", strings.Join(e.Missing, ", "))
}

// RowError records one row that failed conversion. Row errors are skipped,
// not fatal, unless no row in the stream converts at all.
type RowError struct {
	Line int64
	Msg  string
}

func (e RowError) Error() string {
	return fmt.Sprintf("line %d: %s", e.Line, e.Msg)
}

// maxReportedRowErrors bounds how many individual row errors an
// AggregateRowError carries; the rest are only counted.
const maxReportedRowErrors = 10

// AggregateRowError is returned when every row in the stream failed
// conversion. It lists the first few row errors and the total count.
type AggregateRowError struct {
	Total int64
	First []RowError
}

func (e *AggregateRowError) Error() string {
	var b strings.Builder
	fmt.Fprintf(&b, "no rows converted successfully (%d errors)", e.Total)
	for _, re := range e.First {
		b.WriteString("; ")
		b.WriteString(re.Error())
	}
	return b.String()
}
