// Package queryengine answers natural-language questions about a converted
// dataset: it attaches the Parquet to an in-process DuckDB instance, asks
// the LLM for a single SELECT statement, executes it under wall-clock and
// row caps, and asks the LLM again to render the result in plain language.
package queryengine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/marcboeker/go-duckdb/v2"

	"github.com/raphaelgruber/parq/internal/faults"
)

// Engine is one in-process DuckDB instance with a single Parquet attached
// as the view 'data'. An engine serves exactly one query request; nothing
// is shared between requests.
type Engine struct {
	db *sql.DB
}

// EngineOptions caps the embedded engine's resources.
type EngineOptions struct {
	Threads  int
	MemLimit string
	TempDir  string
}

// OpenEngine starts an in-memory DuckDB with the given resource caps.
func OpenEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	db, err := sql.Open("duckdb", "")
	if err != nil {
		return nil, fmt.Errorf("open duckdb: %w", err)
	}

	settings := []string{
		fmt.Sprintf("SET threads TO %d", opts.Threads),
		fmt.Sprintf("SET memory_limit = '%s'", opts.MemLimit),
	}
	if opts.TempDir != "" {
		settings = append(settings, fmt.Sprintf("SET temp_directory = '%s'", opts.TempDir))
	}
	for _, stmt := range settings {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			db.Close()
			return nil, fmt.Errorf("configure duckdb: %w", err)
		}
	}
	return &Engine{db: db}, nil
}

// Close releases the engine.
func (e *Engine) Close() error {
	return e.db.Close()
}

// AttachParquet exposes the Parquet file at path as the view 'data'. The
// synthesis prompt promises the LLM that table name, so it is fixed here.
func (e *Engine) AttachParquet(ctx context.Context, path string) error {
	stmt := fmt.Sprintf("CREATE OR REPLACE VIEW data AS SELECT * FROM read_parquet('%s')", escapeSingleQuotes(path))
	if _, err := e.db.ExecContext(ctx, stmt); err != nil {
		return fmt.Errorf("attach parquet %s: %w", path, err)
	}
	return nil
}

// ColumnInfo is one column as the engine sees it.
type ColumnInfo struct {
	Name string
	Type string
}

// DescribeSchema reports the attached dataset's columns in table order.
func (e *Engine) DescribeSchema(ctx context.Context) ([]ColumnInfo, error) {
	rows, err := e.db.QueryContext(ctx, "DESCRIBE SELECT * FROM data LIMIT 0")
	if err != nil {
		return nil, fmt.Errorf("describe dataset: %w", err)
	}
	defer rows.Close()

	var cols []ColumnInfo
	for rows.Next() {
		var name, typ string
		var null, key, dflt, extra sql.Null[string]
		if err := rows.Scan(&name, &typ, &null, &key, &dflt, &extra); err != nil {
			return nil, fmt.Errorf("scan describe row: %w", err)
		}
		cols = append(cols, ColumnInfo{Name: name, Type: typ})
	}
	return cols, rows.Err()
}

// Result is one executed query's output, already stringified for the
// rendering prompt.
type Result struct {
	Columns   []string
	Rows      [][]string
	Truncated bool
}

// Execute runs one SELECT under a wall-clock cap and a result-row cap.
// Hitting the row cap truncates the result and flags it rather than
// failing; hitting the deadline surfaces faults.ErrQueryTimeout.
func (e *Engine) Execute(ctx context.Context, sqlText string, timeout time.Duration, maxRows int) (*Result, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	rows, err := e.db.QueryContext(ctx, sqlText)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("query exceeded %s: %w", timeout, faults.ErrQueryTimeout)
		}
		return nil, fmt.Errorf("execute query: %w", err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("result columns: %w", err)
	}

	res := &Result{Columns: cols}
	values := make([]any, len(cols))
	ptrs := make([]any, len(cols))
	for i := range values {
		ptrs[i] = &values[i]
	}

	for rows.Next() {
		if len(res.Rows) >= maxRows {
			res.Truncated = true
			break
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("scan result row: %w", err)
		}
		row := make([]string, len(cols))
		for i, v := range values {
			row[i] = formatValue(v)
		}
		res.Rows = append(res.Rows, row)
	}
	if err := rows.Err(); err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("query exceeded %s: %w", timeout, faults.ErrQueryTimeout)
		}
		return nil, fmt.Errorf("read result rows: %w", err)
	}
	return res, nil
}

// formatValue stringifies one cell for the rendering prompt.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "NULL"
	case []byte:
		return string(val)
	case string:
		return val
	case time.Time:
		return val.UTC().Format(time.RFC3339Nano)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	case float32:
		return strconv.FormatFloat(float64(val), 'g', -1, 32)
	default:
		return fmt.Sprintf("%v", val)
	}
}

func escapeSingleQuotes(s string) string {
	return strings.ReplaceAll(s, "'", "''")
}
