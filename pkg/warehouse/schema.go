// Package warehouse loads typed rows into analytical tables with truncate or
// append semantics.
package warehouse

import (
	"errors"
	"fmt"
	"strings"
)

// Schema errors.
var (
	// ErrEmptySchema is returned for a table without fields.
	ErrEmptySchema = errors.New("schema has no fields")

	// ErrRowWidth is returned when a row does not match the schema width.
	ErrRowWidth = errors.New("row width does not match schema")
)

// FieldType is a warehouse column type.
type FieldType string

const (
	TypeString    FieldType = "STRING"
	TypeInteger   FieldType = "INTEGER"
	TypeFloat     FieldType = "FLOAT"
	TypeBoolean   FieldType = "BOOLEAN"
	TypeDate      FieldType = "DATE"
	TypeTimestamp FieldType = "TIMESTAMP"
)

// Field is one column.
type Field struct {
	Name string
	Type FieldType
}

// Schema is an ordered column list.
type Schema []Field

// Names returns the column names in order.
func (s Schema) Names() []string {
	names := make([]string, len(s))
	for i, f := range s {
		names[i] = f.Name
	}
	return names
}

// Index returns the position of the named column, or -1.
func (s Schema) Index(name string) int {
	for i, f := range s {
		if f.Name == name {
			return i
		}
	}
	return -1
}

// Validate checks for empty, duplicate or untyped columns.
func (s Schema) Validate() error {
	if len(s) == 0 {
		return ErrEmptySchema
	}
	seen := make(map[string]bool, len(s))
	for _, f := range s {
		if strings.TrimSpace(f.Name) == "" {
			return fmt.Errorf("field with empty name")
		}
		if seen[f.Name] {
			return fmt.Errorf("duplicate field %q", f.Name)
		}
		seen[f.Name] = true
		switch f.Type {
		case TypeString, TypeInteger, TypeFloat, TypeBoolean, TypeDate, TypeTimestamp:
		default:
			return fmt.Errorf("field %q: unknown type %q", f.Name, f.Type)
		}
	}
	return nil
}

// WriteDisposition is the load mode.
type WriteDisposition string

const (
	// WriteTruncate replaces every existing row.
	WriteTruncate WriteDisposition = "truncate"

	// WriteAppend adds rows to the existing ones.
	WriteAppend WriteDisposition = "append"
)

// Table is a destination table.
type Table struct {
	Name   string
	Schema Schema
}

// Row holds one value per schema field, in schema order.
type Row []any

func checkRows(table Table, rows []Row) error {
	if err := table.Schema.Validate(); err != nil {
		return fmt.Errorf("table %s: %w", table.Name, err)
	}
	for i, r := range rows {
		if len(r) != len(table.Schema) {
			return fmt.Errorf("table %s row %d: %w (%d != %d)", table.Name, i, ErrRowWidth, len(r), len(table.Schema))
		}
	}
	return nil
}
