// Copyright 2020 DataStax
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package message

import (
	"fmt"
	"io"

	"github.com/rusticdb/rusticdb/internal/protocol/primitive"
)

// ResultKind is the first 4 bytes of a RESULT body. Prepared and
// SchemaChange are numbered for wire compatibility but never produced:
// this node has no prepared-statement cache and DDL results are reported
// as Void; schema-change push notifications are out of scope.
type ResultKind int32

const (
	KindVoid         ResultKind = 1
	KindRows         ResultKind = 2
	KindSetKeyspace  ResultKind = 3
	KindPrepared     ResultKind = 4
	KindSchemaChange ResultKind = 5
)

// RowsResult is the Rows-kind body: column names followed by each matched
// row's cell values, already stringified by the executor (storage.Row is
// itself a map[string]string). The wire shape is the client protocol's
// own: [int] counts with [bytes] names and values. The internode RowSet
// uses a different encoding (its own length prefixes, a selected-column
// list and per-row timestamps).
type RowsResult struct {
	Columns []string
	Rows    [][]string
}

// SetKeyspaceResult is the SetKeyspace-kind body, returned by USE.
type SetKeyspaceResult struct {
	Keyspace string
}

// Result is the RESULT message, a tagged union over ResultKind the way
// cql.Query is a tagged union over QueryKind.
type Result struct {
	Kind        ResultKind
	Rows        *RowsResult
	SetKeyspace *SetKeyspaceResult
}

func (m *Result) IsResponse() bool            { return true }
func (m *Result) GetOpCode() primitive.OpCode { return primitive.OpCodeResult }
func (m *Result) String() string {
	switch m.Kind {
	case KindRows:
		return fmt.Sprintf("RESULT ROWS (%d columns, %d rows)", len(m.Rows.Columns), len(m.Rows.Rows))
	case KindSetKeyspace:
		return fmt.Sprintf("RESULT SET_KEYSPACE %q", m.SetKeyspace.Keyspace)
	default:
		return "RESULT VOID"
	}
}

func NewVoidResult() *Result { return &Result{Kind: KindVoid} }

func NewRowsResult(columns []string, rows [][]string) *Result {
	return &Result{Kind: KindRows, Rows: &RowsResult{Columns: columns, Rows: rows}}
}

func NewSetKeyspaceResult(keyspace string) *Result {
	return &Result{Kind: KindSetKeyspace, SetKeyspace: &SetKeyspaceResult{Keyspace: keyspace}}
}

// appliedColumn is the column name Cassandra's own LWT statements (INSERT
// ... IF NOT EXISTS, UPDATE/DELETE ... IF) use to report whether the
// condition held; this module's own conditional-statement result rides
// the same convention instead of inventing a new result kind.
const appliedColumn = "[applied]"

// NewAppliedResult reports a conditional statement's outcome as a
// single-column, single-row Rows result, the real protocol's own encoding
// for LWT results.
func NewAppliedResult(applied bool) *Result {
	return NewRowsResult([]string{appliedColumn}, [][]string{{fmt.Sprintf("%t", applied)}})
}

func encodeResult(m *Result, dest io.Writer) error {
	if err := primitive.WriteInt(int32(m.Kind), dest); err != nil {
		return fmt.Errorf("cannot write result kind: %w", err)
	}
	switch m.Kind {
	case KindVoid:
		return nil
	case KindRows:
		return encodeRows(m.Rows, dest)
	case KindSetKeyspace:
		if err := primitive.WriteString(m.SetKeyspace.Keyspace, dest); err != nil {
			return fmt.Errorf("cannot write set-keyspace name: %w", err)
		}
		return nil
	default:
		return fmt.Errorf("cannot encode unsupported result kind %d", m.Kind)
	}
}

func encodeRows(r *RowsResult, dest io.Writer) error {
	if err := primitive.WriteInt(int32(len(r.Columns)), dest); err != nil {
		return fmt.Errorf("cannot write column count: %w", err)
	}
	for _, col := range r.Columns {
		if err := primitive.WriteBytes([]byte(col), dest); err != nil {
			return fmt.Errorf("cannot write column name %q: %w", col, err)
		}
	}
	if err := primitive.WriteInt(int32(len(r.Rows)), dest); err != nil {
		return fmt.Errorf("cannot write row count: %w", err)
	}
	for _, row := range r.Rows {
		if err := primitive.WriteInt(int32(len(row)), dest); err != nil {
			return fmt.Errorf("cannot write row value count: %w", err)
		}
		for _, v := range row {
			if err := primitive.WriteBytes([]byte(v), dest); err != nil {
				return fmt.Errorf("cannot write row value %q: %w", v, err)
			}
		}
	}
	return nil
}

func decodeResult(source io.Reader) (*Result, error) {
	kind, err := primitive.ReadInt(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read result kind: %w", err)
	}
	switch ResultKind(kind) {
	case KindVoid:
		return NewVoidResult(), nil
	case KindRows:
		rows, err := decodeRows(source)
		if err != nil {
			return nil, err
		}
		return &Result{Kind: KindRows, Rows: rows}, nil
	case KindSetKeyspace:
		ks, err := primitive.ReadString(source)
		if err != nil {
			return nil, fmt.Errorf("cannot read set-keyspace name: %w", err)
		}
		return NewSetKeyspaceResult(ks), nil
	default:
		return nil, fmt.Errorf("cannot decode unsupported result kind %d", kind)
	}
}

func decodeRows(source io.Reader) (*RowsResult, error) {
	ncols, err := primitive.ReadInt(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read column count: %w", err)
	}
	columns := make([]string, ncols)
	for i := range columns {
		b, err := primitive.ReadBytes(source)
		if err != nil {
			return nil, fmt.Errorf("cannot read column name: %w", err)
		}
		columns[i] = string(b)
	}
	nrows, err := primitive.ReadInt(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read row count: %w", err)
	}
	rows := make([][]string, nrows)
	for i := range rows {
		nvals, err := primitive.ReadInt(source)
		if err != nil {
			return nil, fmt.Errorf("cannot read row value count: %w", err)
		}
		row := make([]string, nvals)
		for j := range row {
			b, err := primitive.ReadBytes(source)
			if err != nil {
				return nil, fmt.Errorf("cannot read row value: %w", err)
			}
			row[j] = string(b)
		}
		rows[i] = row
	}
	return &RowsResult{Columns: columns, Rows: rows}, nil
}
