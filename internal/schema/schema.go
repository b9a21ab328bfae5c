// Package schema defines the logical type set shared by the conversion
// pipeline, the job store, and the query engine, together with the coercion
// rules that turn raw CSV fields into typed values.
package schema

import (
	"encoding/json"
	"fmt"
)

// Type is one of the seven logical types a column can declare.
type Type string

const (
	TypeString    Type = "string"
	TypeInteger   Type = "integer"
	TypeFloat     Type = "float"
	TypeBoolean   Type = "boolean"
	TypeDate      Type = "date"
	TypeDateTime  Type = "datetime"
	TypeTimestamp Type = "timestamp"
)

// ParseType validates a logical type name.
func ParseType(s string) (Type, error) {
	switch Type(s) {
	case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeDate, TypeDateTime, TypeTimestamp:
		return Type(s), nil
	default:
		return "", fmt.Errorf("unknown logical type %q", s)
	}
}

// Column describes a single declared CSV column. Only included columns
// appear in the job record schema and in the Parquet output.
type Column struct {
	Name     string
	Type     Type
	Included bool
}

// Schema is the ordered set of declared columns. Order is significant: the
// Parquet column order equals the declared order of the included columns.
type Schema struct {
	Columns []Column
}

// Included returns the columns that survive into the Parquet output, in
// declared order.
func (s Schema) Included() []Column {
	cols := make([]Column, 0, len(s.Columns))
	for _, c := range s.Columns {
		if c.Included {
			cols = append(cols, c)
		}
	}
	return cols
}

// ColumnSpec is the wire form of a column declaration as sent by the caller.
// Included defaults to true when omitted.
type ColumnSpec struct {
	Column   string `json:"column"`
	Type     string `json:"type"`
	Included *bool  `json:"included,omitempty"`
}

// FromSpecs builds a Schema from the caller-supplied payload, validating
// every type name and preserving order.
func FromSpecs(specs []ColumnSpec) (Schema, error) {
	if len(specs) == 0 {
		return Schema{}, fmt.Errorf("empty column payload")
	}
	cols := make([]Column, 0, len(specs))
	seen := make(map[string]bool, len(specs))
	for _, spec := range specs {
		if spec.Column == "" {
			return Schema{}, fmt.Errorf("column with empty name")
		}
		if seen[spec.Column] {
			return Schema{}, fmt.Errorf("duplicate column %q", spec.Column)
		}
		seen[spec.Column] = true

		t, err := ParseType(spec.Type)
		if err != nil {
			return Schema{}, fmt.Errorf("column %q: %w", spec.Column, err)
		}
		included := spec.Included == nil || *spec.Included
		cols = append(cols, Column{Name: spec.Column, Type: t, Included: included})
	}
	return Schema{Columns: cols}, nil
}

// Specs returns the wire form of the schema, in declared order.
func (s Schema) Specs() []ColumnSpec {
	specs := make([]ColumnSpec, 0, len(s.Columns))
	for _, c := range s.Columns {
		included := c.Included
		specs = append(specs, ColumnSpec{Column: c.Name, Type: string(c.Type), Included: &included})
	}
	return specs
}

// UnmarshalPayload parses the JSON payload array from the creation request.
func UnmarshalPayload(data []byte) (Schema, error) {
	var specs []ColumnSpec
	if err := json.Unmarshal(data, &specs); err != nil {
		return Schema{}, fmt.Errorf("parse column payload: %w", err)
	}
	return FromSpecs(specs)
}
