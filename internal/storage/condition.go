package storage

import (
	"fmt"

	"github.com/rusticdb/rusticdb/internal/cql"
	"github.com/rusticdb/rusticdb/internal/rerrors"
	"github.com/rusticdb/rusticdb/internal/schema"
)

// rowMap builds a column-name -> cell-value map for one row, the shape
// update.rs's create_column_value_map and condition.execute both consume.
func rowMap(t *schema.Table, cols []string) map[string]string {
	out := make(map[string]string, len(t.Columns))
	for i, c := range t.Columns {
		if i < len(cols) {
			out[c.Name] = cols[i]
		} else {
			out[c.Name] = ""
		}
	}
	return out
}

// evaluateCondition walks a Condition tree against one row, using each
// leaf's column type (via the table schema) to compare values the same way
// the clustering-key scan does.
func evaluateCondition(cond *cql.Condition, t *schema.Table, row map[string]string) (bool, error) {
	if cond == nil {
		return true, nil
	}
	if !cond.IsLeaf() {
		left, err := evaluateCondition(cond.Left, t, row)
		if err != nil {
			return false, err
		}
		right, err := evaluateCondition(cond.Right, t, row)
		if err != nil {
			return false, err
		}
		if cond.Logical == cql.LogicalOr {
			return left || right, nil
		}
		return left && right, nil
	}

	col, ok := t.Column(cond.Column)
	if !ok {
		return false, rerrors.New(rerrors.Schema, fmt.Sprintf("unknown column %q in condition", cond.Column))
	}
	rowValue, present := row[cond.Column]
	if !present {
		return false, nil
	}
	cmp, err := col.Compare(rowValue, cond.Value)
	if err != nil {
		return false, err
	}
	switch cond.Operator {
	case cql.OpEq:
		return cmp == 0, nil
	case cql.OpLt:
		return cmp < 0, nil
	case cql.OpGt:
		return cmp > 0, nil
	case cql.OpLte:
		return cmp <= 0, nil
	case cql.OpGte:
		return cmp >= 0, nil
	default:
		return false, rerrors.New(rerrors.Internal, "unknown operator")
	}
}
