package storage

import (
	"bufio"
	"os"
	"sort"

	"github.com/rusticdb/rusticdb/internal/cql"
	"github.com/rusticdb/rusticdb/internal/schema"
)

// Row is one result row: a column-name -> cell-value map, in the shape
// the client protocol's RESULT encoder consumes.
type Row map[string]string

// TimedRow pairs a projected row with its stored write timestamp, the form
// a coordinator needs to reconcile the same primary key reported by more
// than one replica (last-write-wins).
type TimedRow struct {
	Cells     Row
	Timestamp int64
}

// Select scans keyspace.table's primary row file (replicated rows are
// never queried directly; they exist only for durability) and returns
// every row matching where, projected onto columns (nil/empty means every
// declared column), optionally sorted by orderBy.
//
// No select.go exists in the retrieved Rust sources alongside insert.rs/
// update.rs/delete.rs; this scan reuses their shared row-parsing idiom
// (split on ';' for the write timestamp, ',' for cells) rather than
// introducing a new one.
func (e *Engine) Select(keyspace string, t *schema.Table, where *cql.Condition, columns []string, orderBy *cql.OrderBy) ([]Row, error) {
	timed, err := e.scanTimed(keyspace, t, where, columns, orderBy)
	if err != nil {
		return nil, err
	}
	rows := make([]Row, len(timed))
	for i, tr := range timed {
		rows[i] = tr.Cells
	}
	return rows, nil
}

// SelectWithTimestamps is Select's sibling for the coordinator's
// cross-replica read reconciliation: identical scan, but each row keeps the
// write timestamp it was stored with.
func (e *Engine) SelectWithTimestamps(keyspace string, t *schema.Table, where *cql.Condition, columns []string, orderBy *cql.OrderBy) ([]TimedRow, error) {
	return e.scanTimed(keyspace, t, where, columns, orderBy)
}

func (e *Engine) scanTimed(keyspace string, t *schema.Table, where *cql.Condition, columns []string, orderBy *cql.OrderBy) ([]TimedRow, error) {
	path := e.dataFilePath(keyspace, t.Name, false)
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ioErr(err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	var rows []TimedRow
	first := true
	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			continue
		}
		cols, ts, ok := splitRow(line)
		if !ok {
			continue
		}
		full := rowMap(t, cols)
		match, err := evaluateCondition(where, t, full)
		if err != nil {
			return nil, err
		}
		if !match {
			continue
		}
		rows = append(rows, TimedRow{Cells: projectRow(full, columns), Timestamp: ts})
	}
	if err := scanner.Err(); err != nil {
		return nil, ioErr(err)
	}

	if orderBy != nil {
		col, ok := t.Column(orderBy.Column)
		sort.SliceStable(rows, func(i, j int) bool {
			cmp := 0
			if ok {
				c, _ := col.Compare(rows[i].Cells[orderBy.Column], rows[j].Cells[orderBy.Column])
				cmp = c
			}
			if orderBy.Direction == cql.OrderDesc {
				return cmp > 0
			}
			return cmp < 0
		})
	}

	return rows, nil
}

func projectRow(full Row, columns []string) Row {
	if len(columns) == 0 {
		return full
	}
	out := make(Row, len(columns))
	for _, c := range columns {
		out[c] = full[c]
	}
	return out
}
