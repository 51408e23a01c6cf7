package schema

import (
	"fmt"

	"github.com/rusticdb/rusticdb/internal/rerrors"
)

// Table is a schema: an ordered list of columns, with the partition-key and
// clustering-column flags a wide-column primary key requires. Invariants enforced by
// NewTable: at least one partition-key column, unique column names, and
// clustering columns carrying a consistent declared sequence (the order they
// appear in Columns, which callers must already have arranged correctly —
// see cql.CreateTable which derives Columns from the PRIMARY KEY clause).
type Table struct {
	Name    string
	Columns []Column
}

// NewTable validates and constructs a Table.
func NewTable(name string, columns []Column) (*Table, error) {
	seen := make(map[string]bool, len(columns))
	hasPartitionKey := false
	for _, c := range columns {
		if seen[c.Name] {
			return nil, rerrors.New(rerrors.Schema, fmt.Sprintf("duplicate column %q", c.Name))
		}
		seen[c.Name] = true
		if c.IsPartitionKey {
			hasPartitionKey = true
		}
	}
	if !hasPartitionKey {
		return nil, rerrors.New(rerrors.Schema, "table must declare at least one partition-key column")
	}
	return &Table{Name: name, Columns: append([]Column(nil), columns...)}, nil
}

// Column looks up a column definition by name.
func (t *Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// PartitionKeyColumns returns the partition-key columns in declared order.
func (t *Table) PartitionKeyColumns() []Column {
	var out []Column
	for _, c := range t.Columns {
		if c.IsPartitionKey {
			out = append(out, c)
		}
	}
	return out
}

// ClusteringColumns returns the clustering columns in declared order.
func (t *Table) ClusteringColumns() []Column {
	var out []Column
	for _, c := range t.Columns {
		if c.IsClusteringColumn {
			out = append(out, c)
		}
	}
	return out
}

// ColumnNames returns every column name in declared order, the order the
// storage engine's CSV header uses.
func (t *Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// AddColumn appends a new, non-primary-key column. Primary-key columns can
// only be established at CREATE TABLE time; altering one returns a Schema
// error.
func (t *Table) AddColumn(c Column) error {
	if _, ok := t.Column(c.Name); ok {
		return rerrors.New(rerrors.Schema, fmt.Sprintf("column %q already exists", c.Name))
	}
	if c.IsPartitionKey || c.IsClusteringColumn {
		return rerrors.New(rerrors.Schema, "cannot add a primary-key column via ALTER TABLE")
	}
	t.Columns = append(t.Columns, c)
	return nil
}

// RemoveColumn drops a non-primary-key column.
func (t *Table) RemoveColumn(name string) error {
	for i, c := range t.Columns {
		if c.Name != name {
			continue
		}
		if c.IsPartitionKey || c.IsClusteringColumn {
			return rerrors.New(rerrors.Schema, fmt.Sprintf("cannot drop primary-key column %q", name))
		}
		t.Columns = append(t.Columns[:i:i], t.Columns[i+1:]...)
		return nil
	}
	return rerrors.New(rerrors.Schema, fmt.Sprintf("unknown column %q", name))
}

// RenameColumn renames a column, primary-key or not (the data file header is
// rewritten by the storage engine; cell positions are unaffected since the
// rename is purely nominal).
func (t *Table) RenameColumn(oldName, newName string) error {
	if _, ok := t.Column(newName); ok {
		return rerrors.New(rerrors.Schema, fmt.Sprintf("column %q already exists", newName))
	}
	for i := range t.Columns {
		if t.Columns[i].Name == oldName {
			t.Columns[i].Name = newName
			return nil
		}
	}
	return rerrors.New(rerrors.Schema, fmt.Sprintf("unknown column %q", oldName))
}

// Clone returns a copy whose Columns slice is independent of t's, so later
// column changes on one do not show through the other. An OpenQuery is
// handed the live catalog entry, not a Clone.
func (t *Table) Clone() *Table {
	cp := *t
	cp.Columns = append([]Column(nil), t.Columns...)
	return &cp
}
