package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rusticdb/rusticdb/internal/cql"
	"github.com/rusticdb/rusticdb/internal/rerrors"
	"github.com/rusticdb/rusticdb/internal/schema"
)

// Update applies a SET clause to every row matching WHERE (and, if present,
// IF); if no row matches it inserts a new row built from WHERE's
// equalities, mirroring update.rs's add_new_row_in_update fallback.
// Returns applied=false only when an IF clause was present and failed on
// every row it was checked against (the "[applied] false" RESULT case).
func (e *Engine) Update(keyspace string, t *schema.Table, q *cql.Update, replication bool, timestamp int64) (applied bool, err error) {
	lock := e.tableLock(keyspace, t.Name)
	lock.Lock()
	defer lock.Unlock()

	path := e.dataFilePath(keyspace, t.Name, replication)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, ioErr(err)
	}

	existing, openErr := os.Open(path)
	if openErr != nil {
		return false, rerrors.New(rerrors.Schema, fmt.Sprintf("table %q has no data file", t.Name))
	}
	defer existing.Close()

	tmp := tempPath(dir)
	tmpFile, err := os.Create(tmp)
	if err != nil {
		return false, ioErr(err)
	}
	w := bufio.NewWriter(tmpFile)

	scanner := bufio.NewScanner(existing)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)

	foundMatch := false
	ifSucceededOnce := false
	ifFailedOnce := false
	first := true

	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			fmt.Fprintln(w, line)
			continue
		}
		cols, _, ok := splitRow(line)
		if !ok {
			fmt.Fprintln(w, line)
			continue
		}
		row := rowMap(t, cols)

		whereMatch, werr := evaluateCondition(q.Where, t, row)
		if werr != nil {
			tmpFile.Close()
			os.Remove(tmp)
			return false, werr
		}
		if !whereMatch {
			fmt.Fprintln(w, line)
			continue
		}
		foundMatch = true

		if q.If != nil {
			ifMatch, ierr := evaluateCondition(q.If, t, row)
			if ierr != nil {
				tmpFile.Close()
				os.Remove(tmp)
				return false, ierr
			}
			if !ifMatch {
				ifFailedOnce = true
				fmt.Fprintln(w, line)
				continue
			}
			ifSucceededOnce = true
		}

		newCols := append([]string(nil), cols...)
		for _, assign := range q.Set {
			col, ok := t.Column(assign.Column)
			if !ok {
				tmpFile.Close()
				os.Remove(tmp)
				return false, rerrors.New(rerrors.Schema, fmt.Sprintf("unknown column %q", assign.Column))
			}
			if col.IsPartitionKey || col.IsClusteringColumn {
				tmpFile.Close()
				os.Remove(tmp)
				return false, rerrors.New(rerrors.Schema, "cannot modify a primary-key column via UPDATE")
			}
			idx := columnIndex(t, assign.Column)
			for idx >= len(newCols) {
				newCols = append(newCols, "")
			}
			newCols[idx] = assign.Value
		}
		fmt.Fprintln(w, joinRow(newCols, timestamp))
	}
	if err := scanner.Err(); err != nil {
		tmpFile.Close()
		os.Remove(tmp)
		return false, ioErr(err)
	}

	if !foundMatch {
		newRow, nerr := buildRowFromEqualities(t, q.Where)
		if nerr != nil {
			tmpFile.Close()
			os.Remove(tmp)
			return false, nerr
		}
		for _, assign := range q.Set {
			col, ok := t.Column(assign.Column)
			if !ok {
				tmpFile.Close()
				os.Remove(tmp)
				return false, rerrors.New(rerrors.Schema, fmt.Sprintf("unknown column %q", assign.Column))
			}
			if col.IsPartitionKey || col.IsClusteringColumn {
				tmpFile.Close()
				os.Remove(tmp)
				return false, rerrors.New(rerrors.Schema, "cannot modify a primary-key column via UPDATE")
			}
			idx := columnIndex(t, assign.Column)
			newRow[idx] = assign.Value
		}
		fmt.Fprintln(w, joinRow(newRow, timestamp))
	}

	if err := w.Flush(); err != nil {
		tmpFile.Close()
		os.Remove(tmp)
		return false, ioErr(err)
	}
	if err := tmpFile.Close(); err != nil {
		return false, ioErr(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return false, ioErr(err)
	}

	if q.If != nil && foundMatch && ifFailedOnce && !ifSucceededOnce {
		return false, nil
	}
	return true, nil
}

func columnIndex(t *schema.Table, name string) int {
	for i, c := range t.Columns {
		if c.Name == name {
			return i
		}
	}
	return -1
}

// buildRowFromEqualities constructs a brand-new row's cells from the
// equality leaves of a WHERE clause, used when UPDATE targets a row that
// does not yet exist (update.rs's add_new_row_in_update).
func buildRowFromEqualities(t *schema.Table, where *cql.Condition) ([]string, error) {
	leaves, ok := where.Flatten()
	if !ok {
		return nil, rerrors.New(rerrors.InvalidCondition, "WHERE clause must AND-join equality conditions to create a new row")
	}
	row := make([]string, len(t.Columns))
	set := make(map[string]bool)
	for _, leaf := range leaves {
		if leaf.Operator != cql.OpEq {
			continue
		}
		idx := columnIndex(t, leaf.Column)
		if idx < 0 {
			return nil, rerrors.New(rerrors.Schema, fmt.Sprintf("unknown column %q", leaf.Column))
		}
		row[idx] = leaf.Value
		set[leaf.Column] = true
	}
	for _, c := range t.PartitionKeyColumns() {
		if !set[c.Name] {
			return nil, rerrors.New(rerrors.InvalidCondition, "WHERE clause must supply every partition-key column to create a new row")
		}
	}
	for _, c := range t.ClusteringColumns() {
		if !set[c.Name] {
			return nil, rerrors.New(rerrors.InvalidCondition, "WHERE clause must supply every clustering column to create a new row")
		}
	}
	return row, nil
}
