package batch

import (
	"fmt"

	"github.com/raphaelgruber/parq/internal/config"
	"github.com/raphaelgruber/parq/internal/csvio"
	"github.com/raphaelgruber/parq/internal/faults"
	"github.com/raphaelgruber/parq/internal/schema"
)

// Limits bounds a single batch. A batch is emitted when either bound is
// reached, whichever binds first.
type Limits struct {
	MaxRows  int
	MaxBytes int
}

// RowError reports a row rejected under the strict policy. Callers count
// it against the bad-row budget and continue.
type RowError struct {
	Ordinal int64
	Column  string
	Reason  string
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d, column %q: %s", e.Ordinal, e.Column, e.Reason)
}

// Builder accumulates typed values for the included columns of a declared
// schema.
type Builder struct {
	cols     []builderColumn
	limits   Limits
	strict   bool
	opts     schema.CoerceOptions
	pool     *internPool
	rows     int
	estBytes int
	scratch  []schema.Value

	// NulledCells counts coerce-null substitutions per column.
	NulledCells map[string]int64
}

type builderColumn struct {
	col      schema.Column
	csvIndex int
	data     ColumnData
}

// NewBuilder validates the CSV header against the declared schema and
// prepares column buffers. Every declared column must appear in the header
// and the header must not carry columns the caller did not declare.
func NewBuilder(declared schema.Schema, header []string, limits Limits, policy string, poolSize int, opts schema.CoerceOptions) (*Builder, error) {
	if len(header) != len(declared.Columns) {
		return nil, fmt.Errorf("header has %d columns, schema declares %d: %w",
			len(header), len(declared.Columns), faults.ErrSchemaMismatch)
	}

	byName := make(map[string]int, len(header))
	for i, name := range header {
		byName[name] = i
	}
	for _, c := range declared.Columns {
		if _, ok := byName[c.Name]; !ok {
			return nil, fmt.Errorf("declared column %q not in header: %w", c.Name, faults.ErrSchemaMismatch)
		}
	}

	var cols []builderColumn
	for _, c := range declared.Included() {
		idx, ok := byName[c.Name]
		if !ok {
			return nil, fmt.Errorf("declared column %q not in header: %w", c.Name, faults.ErrSchemaMismatch)
		}
		cols = append(cols, builderColumn{
			col:      c,
			csvIndex: idx,
			data:     ColumnData{Name: c.Name, Type: c.Type},
		})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("no included columns: %w", faults.ErrSchemaMismatch)
	}

	return &Builder{
		cols:        cols,
		limits:      limits,
		strict:      policy == config.PolicyStrict,
		opts:        opts,
		pool:        newInternPool(poolSize),
		scratch:     make([]schema.Value, len(cols)),
		NulledCells: make(map[string]int64),
	}, nil
}

// Append coerces one record into the column buffers. Under the strict
// policy a coercion failure rejects the whole row and returns *RowError;
// under coerce-null the cell becomes a typed null and the row is kept.
func (b *Builder) Append(rec csvio.Record) error {
	for i := range b.cols {
		bc := &b.cols[i]
		field := ""
		if bc.csvIndex < len(rec.Fields) {
			field = string(rec.Fields[bc.csvIndex].Bytes)
		}

		v, err := schema.Coerce(bc.col.Type, field, b.opts)
		if err != nil {
			if b.strict {
				return &RowError{Ordinal: rec.Ordinal, Column: bc.col.Name, Reason: err.Error()}
			}
			v = schema.NullValue(bc.col.Type)
			b.NulledCells[bc.col.Name]++
		}
		if v.Type == schema.TypeString && !v.Null {
			v.Str = b.pool.intern(v.Str)
		}
		b.scratch[i] = v
	}

	for i := range b.cols {
		b.cols[i].data.append(b.scratch[i])
		b.estBytes += b.scratch[i].EstimatedSize()
	}
	b.rows++
	return nil
}

// Full reports whether either batch bound has been reached.
func (b *Builder) Full() bool {
	return b.rows >= b.limits.MaxRows || b.estBytes >= b.limits.MaxBytes
}

// Len returns the number of buffered rows.
func (b *Builder) Len() int {
	return b.rows
}

// Flush hands off the accumulated batch and resets the builder. The intern
// pool is flushed with the batch so pooled strings never outlive the rows
// that reference them. Returns nil when no rows are buffered.
func (b *Builder) Flush() *Batch {
	if b.rows == 0 {
		return nil
	}

	out := &Batch{Columns: make([]ColumnData, len(b.cols)), Rows: b.rows}
	for i := range b.cols {
		out.Columns[i] = b.cols[i].data
		b.cols[i].data = ColumnData{Name: b.cols[i].col.Name, Type: b.cols[i].col.Type}
	}
	b.rows = 0
	b.estBytes = 0
	b.pool.flush()
	return out
}

// internPool deduplicates string cells within a batch. Cardinality is
// bounded: once the pool fills, further strings pass through uninterned.
type internPool struct {
	max     int
	entries map[string]string
}

func newInternPool(max int) *internPool {
	return &internPool{max: max, entries: make(map[string]string, min(max, 1024))}
}

func (p *internPool) intern(s string) string {
	if cached, ok := p.entries[s]; ok {
		return cached
	}
	if len(p.entries) < p.max {
		p.entries[s] = s
	}
	return s
}

func (p *internPool) flush() {
	clear(p.entries)
}
