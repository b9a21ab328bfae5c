// Package batch coerces raw CSV fields into typed per-column buffers and
// groups them into bounded record batches.
package batch

import (
	"github.com/raphaelgruber/parq/internal/schema"
)

// ColumnData is one column's buffer within a batch. Nulls always has one
// entry per row; exactly one of the typed slices is populated, selected by
// Type.
type ColumnData struct {
	Name string
	Type schema.Type

	Nulls   []bool
	Strings []string
	Ints    []int64
	Floats  []float64
	Bools   []bool
	Days    []int32
	Nanos   []int64
}

// Batch is an ordered tuple of equal-length column buffers representing a
// contiguous slice of rows. Ownership transfers to the consumer on emit.
type Batch struct {
	Columns []ColumnData
	Rows    int
}

func (c *ColumnData) append(v schema.Value) {
	c.Nulls = append(c.Nulls, v.Null)
	switch c.Type {
	case schema.TypeString:
		c.Strings = append(c.Strings, v.Str)
	case schema.TypeInteger:
		c.Ints = append(c.Ints, v.Int)
	case schema.TypeFloat:
		c.Floats = append(c.Floats, v.Float)
	case schema.TypeBoolean:
		c.Bools = append(c.Bools, v.Bool)
	case schema.TypeDate:
		c.Days = append(c.Days, v.Days)
	case schema.TypeDateTime, schema.TypeTimestamp:
		c.Nanos = append(c.Nanos, v.Nanos)
	}
}
