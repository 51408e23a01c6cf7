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

// Delete removes whole rows (or, when q.Columns is set, blanks specific
// cells) matching WHERE and, if present, IF. Returns applied=false when
// IfExists is set and no row matched.
func (e *Engine) Delete(keyspace string, t *schema.Table, q *cql.Delete, replication bool) (applied bool, err error) {
	lock := e.tableLock(keyspace, t.Name)
	lock.Lock()
	defer lock.Unlock()

	path := e.dataFilePath(keyspace, t.Name, replication)
	indexPath := e.indexFilePath(keyspace, t.Name, replication)
	dir := filepath.Dir(path)

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

	clusterKeys := clusteringKeyIndices(t)
	var offset int64
	var indexEntries []indexEntry
	matched := false
	first := true

	for scanner.Scan() {
		line := scanner.Text()
		if first {
			first = false
			fmt.Fprintln(w, line)
			offset += int64(len(line)) + 1
			continue
		}
		cols, ts, ok := splitRow(line)
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
		shouldAct := whereMatch
		if shouldAct && q.If != nil {
			ifMatch, ierr := evaluateCondition(q.If, t, row)
			if ierr != nil {
				tmpFile.Close()
				os.Remove(tmp)
				return false, ierr
			}
			shouldAct = ifMatch
		}
		if shouldAct {
			matched = true
		}

		switch {
		case shouldAct && len(q.Columns) > 0:
			newCols := append([]string(nil), cols...)
			for _, colName := range q.Columns {
				if idx := columnIndex(t, colName); idx >= 0 && idx < len(newCols) {
					newCols[idx] = ""
				}
			}
			newLine := joinRow(newCols, ts)
			fmt.Fprintln(w, newLine)
			recordIndex(&indexEntries, clusterKeys, newCols, offset, offset+int64(len(newLine)))
			offset += int64(len(newLine)) + 1
		case shouldAct:
			// whole row removed: neither written nor indexed
		default:
			fmt.Fprintln(w, line)
			recordIndex(&indexEntries, clusterKeys, cols, offset, offset+int64(len(line)))
			offset += int64(len(line)) + 1
		}
	}
	if err := scanner.Err(); err != nil {
		tmpFile.Close()
		os.Remove(tmp)
		return false, ioErr(err)
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

	if len(clusterKeys) > 0 {
		sortIndexEntries(indexEntries, clusterKeys[0].inverse.Invert())
	}
	if err := writeIndexFile(indexPath, indexEntries); err != nil {
		return false, err
	}

	if q.IfExists && !matched {
		return false, nil
	}
	return true, nil
}
