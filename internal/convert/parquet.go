// Package convert runs the streaming CSV→Parquet pipeline: a producer task
// that frames, parses, and coerces rows into record batches, and a consumer
// task that encodes the batches columnarly and streams the Parquet bytes
// out, joined over one bounded channel.
package convert

import (
	"fmt"
	"io"
	"reflect"

	"github.com/parquet-go/parquet-go"

	"github.com/raphaelgruber/parq/internal/batch"
	"github.com/raphaelgruber/parq/internal/faults"
	"github.com/raphaelgruber/parq/internal/schema"
)

// schemaField names a leaf node. Group fields in this package carry their
// declared position instead of the map ordering parquet.Group would impose.
type schemaField struct {
	parquet.Node
	name string
}

func (f schemaField) Name() string { return f.name }

func (f schemaField) Value(reflect.Value) reflect.Value { return reflect.Value{} }

// orderedGroup is a group node whose field order follows the declared
// schema. It delegates everything except Fields to an equivalent
// parquet.Group.
type orderedGroup struct {
	parquet.Node
	fields []parquet.Field
}

func (g orderedGroup) Fields() []parquet.Field { return g.fields }

// leafNode maps a logical type to its Parquet leaf. Every column is
// optional; nullability is always on.
func leafNode(t schema.Type) (parquet.Node, error) {
	switch t {
	case schema.TypeString:
		return parquet.Optional(parquet.String()), nil
	case schema.TypeInteger:
		return parquet.Optional(parquet.Int(64)), nil
	case schema.TypeFloat:
		return parquet.Optional(parquet.Leaf(parquet.DoubleType)), nil
	case schema.TypeBoolean:
		return parquet.Optional(parquet.Leaf(parquet.BooleanType)), nil
	case schema.TypeDate:
		return parquet.Optional(parquet.Date()), nil
	case schema.TypeDateTime, schema.TypeTimestamp:
		return parquet.Optional(parquet.Timestamp(parquet.Nanosecond)), nil
	default:
		return nil, fmt.Errorf("unknown logical type %q", t)
	}
}

// ParquetSchema builds the output schema for the included columns, in
// declared order.
func ParquetSchema(declared schema.Schema) (*parquet.Schema, error) {
	included := declared.Included()
	if len(included) == 0 {
		return nil, fmt.Errorf("no included columns: %w", faults.ErrSchemaMismatch)
	}

	unordered := parquet.Group{}
	fields := make([]parquet.Field, 0, len(included))
	for _, col := range included {
		node, err := leafNode(col.Type)
		if err != nil {
			return nil, err
		}
		unordered[col.Name] = node
		fields = append(fields, schemaField{Node: node, name: col.Name})
	}

	root := orderedGroup{Node: unordered, fields: fields}
	return parquet.NewSchema("data", root), nil
}

// appendRowValues appends one row's values to dst in column order.
func appendRowValues(dst parquet.Row, b *batch.Batch, row int) parquet.Row {
	for col := range b.Columns {
		c := &b.Columns[col]
		if c.Nulls[row] {
			dst = append(dst, parquet.NullValue().Level(0, 0, col))
			continue
		}

		var v parquet.Value
		switch c.Type {
		case schema.TypeString:
			v = parquet.ValueOf(c.Strings[row])
		case schema.TypeInteger:
			v = parquet.ValueOf(c.Ints[row])
		case schema.TypeFloat:
			v = parquet.ValueOf(c.Floats[row])
		case schema.TypeBoolean:
			v = parquet.ValueOf(c.Bools[row])
		case schema.TypeDate:
			v = parquet.ValueOf(c.Days[row])
		case schema.TypeDateTime, schema.TypeTimestamp:
			v = parquet.ValueOf(c.Nanos[row])
		}
		dst = append(dst, v.Level(0, 1, col))
	}
	return dst
}

// writeSlabRows bounds how many rows are materialised as parquet values at
// a time, keeping the encoder inside its memory share regardless of batch
// size.
const writeSlabRows = 65536

// WriteBatches consumes batches in arrival order and writes one Parquet
// row group per batch with Snappy compression. The footer is written only
// after the final batch; an error aborts without completing the file.
func WriteBatches(dst io.Writer, pqSchema *parquet.Schema, batches <-chan *batch.Batch) (int64, error) {
	writer := parquet.NewGenericWriter[any](dst, pqSchema, parquet.Compression(&parquet.Snappy))

	var total int64
	rows := make([]parquet.Row, 0, writeSlabRows)
	for b := range batches {
		for base := 0; base < b.Rows; base += writeSlabRows {
			limit := min(base+writeSlabRows, b.Rows)
			rows = rows[:0]
			for i := base; i < limit; i++ {
				rows = append(rows, appendRowValues(make(parquet.Row, 0, len(b.Columns)), b, i))
			}
			if _, err := writer.WriteRows(rows); err != nil {
				return total, fmt.Errorf("write row group: %w: %w", faults.ErrWriterFailure, err)
			}
		}
		// One row group per batch.
		if err := writer.Flush(); err != nil {
			return total, fmt.Errorf("flush row group: %w: %w", faults.ErrWriterFailure, err)
		}
		total += int64(b.Rows)
	}

	if err := writer.Close(); err != nil {
		return total, fmt.Errorf("close parquet writer: %w: %w", faults.ErrWriterFailure, err)
	}
	return total, nil
}
