package queryengine

import (
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/raphaelgruber/parq/internal/jobstore"
)

// FormatTable renders at most capRows result rows as compact ASCII for the
// rendering prompt.
func FormatTable(res *Result, capRows int) string {
	var sb strings.Builder
	table := tablewriter.NewWriter(&sb)
	table.SetHeader(res.Columns)
	table.SetAutoFormatHeaders(false)
	table.SetAutoWrapText(false)

	n := len(res.Rows)
	if n > capRows {
		n = capRows
	}
	for _, row := range res.Rows[:n] {
		table.Append(row)
	}
	table.Render()

	if n < len(res.Rows) || res.Truncated {
		sb.WriteString("(additional rows omitted)\n")
	}
	return sb.String()
}

// SchemaText renders the persisted schema for the synthesis prompt, one
// column per line in declared order.
func SchemaText(cols []jobstore.SchemaColumn) string {
	var sb strings.Builder
	for _, c := range cols {
		sb.WriteString(c.Column)
		sb.WriteString(": ")
		sb.WriteString(c.Type)
		sb.WriteByte('\n')
	}
	return sb.String()
}

// EngineSchemaText renders a DESCRIBE result the same way, for datasets
// queried without a job record (the dev CLI).
func EngineSchemaText(cols []ColumnInfo) string {
	var sb strings.Builder
	for _, c := range cols {
		sb.WriteString(c.Name)
		sb.WriteString(": ")
		sb.WriteString(c.Type)
		sb.WriteByte('\n')
	}
	return sb.String()
}
