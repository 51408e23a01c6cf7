package storage

import (
	"bufio"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rusticdb/rusticdb/internal/schema"
)

type clusterIdx struct {
	idx     int
	col     schema.Column
	inverse schema.ClusteringOrder
}

// clusteringKeyIndices returns, for each clustering column in declared
// order, its position in t.Columns and the *inverted* declared order. The
// insert scan compares using the inverted order so that a naive forward
// append-on-equal-or-greater produces a file sorted in the declared order
// (see schema.ClusteringOrder.Invert's doc comment).
func clusteringKeyIndices(t *schema.Table) []clusterIdx {
	var out []clusterIdx
	for i, c := range t.Columns {
		if c.IsClusteringColumn {
			out = append(out, clusterIdx{idx: i, col: c, inverse: c.ClusteringOrder.Invert()})
		}
	}
	return out
}

type indexEntry struct {
	key        string
	start, end int64
}

// Insert writes values (in t.Columns order) into keyspace.table, replacing
// any row whose partition-key and clustering-key cells all match exactly
// (unless ifNotExists is set,
// in which case the existing row wins) and otherwise splicing the new row
// into its sorted position. Both row and index files are rewritten via
// copy-then-atomic-rename. Returns applied=false when ifNotExists collided
// with an existing row.
func (e *Engine) Insert(keyspace string, t *schema.Table, values []string, replication, ifNotExists bool, timestamp int64) (applied bool, err error) {
	lock := e.tableLock(keyspace, t.Name)
	lock.Lock()
	defer lock.Unlock()

	path := e.dataFilePath(keyspace, t.Name, replication)
	indexPath := e.indexFilePath(keyspace, t.Name, replication)
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return false, ioErr(err)
	}

	clusterKeys := clusteringKeyIndices(t)

	tmp := tempPath(dir)
	tmpFile, err := os.Create(tmp)
	if err != nil {
		return false, ioErr(err)
	}
	w := bufio.NewWriter(tmpFile)

	header := strings.Join(t.ColumnNames(), ",")
	var offset int64
	inserted := false
	applied = true
	var indexEntries []indexEntry

	existing, openErr := os.Open(path)
	hadFile := openErr == nil
	if hadFile {
		defer existing.Close()
		scanner := bufio.NewScanner(existing)
		scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
		first := true
		for scanner.Scan() {
			line := scanner.Text()
			if first {
				first = false
				header = line
				fmt.Fprintln(w, line)
				offset += int64(len(line)) + 1
				continue
			}
			cols, existingTs, ok := splitRow(line)
			if !ok {
				continue
			}

			samePartition := true
			for i, c := range t.Columns {
				if c.IsPartitionKey && cellAt(cols, i) != cellAt(values, i) {
					samePartition = false
					break
				}
			}

			cmp := 0
			for _, ck := range clusterKeys {
				rowVal := cellAt(cols, ck.idx)
				newVal := cellAt(values, ck.idx)
				if rowVal == newVal {
					continue
				}
				c, cerr := ck.col.Compare(rowVal, newVal)
				if cerr != nil {
					tmpFile.Close()
					os.Remove(tmp)
					return false, cerr
				}
				if ck.inverse == schema.Asc {
					cmp = -c
				} else {
					cmp = c
				}
				break
			}

			switch {
			case cmp == 0 && samePartition:
				if ifNotExists {
					writeRow(w, line)
					recordIndex(&indexEntries, clusterKeys, cols, offset, offset+int64(len(line)))
					offset += int64(len(line)) + 1
					applied = false
					inserted = true
					continue
				}
				winner, winnerTs := values, timestamp
				if existingTs > timestamp {
					winner, winnerTs = cols, existingTs
				}
				newLine := joinRow(winner, winnerTs)
				writeRow(w, newLine)
				recordIndex(&indexEntries, clusterKeys, winner, offset, offset+int64(len(newLine)))
				offset += int64(len(newLine)) + 1
				inserted = true
				continue
			case cmp > 0 && !inserted:
				newLine := joinRow(values, timestamp)
				writeRow(w, newLine)
				recordIndex(&indexEntries, clusterKeys, values, offset, offset+int64(len(newLine)))
				offset += int64(len(newLine)) + 1
				inserted = true
			}

			writeRow(w, line)
			recordIndex(&indexEntries, clusterKeys, cols, offset, offset+int64(len(line)))
			offset += int64(len(line)) + 1
		}
		if err := scanner.Err(); err != nil {
			tmpFile.Close()
			os.Remove(tmp)
			return false, ioErr(err)
		}
	} else {
		fmt.Fprintln(w, header)
		offset += int64(len(header)) + 1
	}

	if !inserted {
		newLine := joinRow(values, timestamp)
		writeRow(w, newLine)
		recordIndex(&indexEntries, clusterKeys, values, offset, offset+int64(len(newLine)))
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

	return applied, nil
}

func cellAt(cols []string, idx int) string {
	if idx < 0 || idx >= len(cols) {
		return ""
	}
	return cols[idx]
}

func writeRow(w *bufio.Writer, line string) {
	fmt.Fprintln(w, line)
}

// recordIndex appends a byte-range entry for the row's leading
// clustering-key value.
func recordIndex(entries *[]indexEntry, clusterKeys []clusterIdx, cols []string, start, end int64) {
	if len(clusterKeys) == 0 {
		return
	}
	key := cellAt(cols, clusterKeys[0].idx)
	*entries = append(*entries, indexEntry{key: key, start: start, end: end})
}

// sortIndexEntries orders entries by key according to the leading
// clustering column's declared order.
func sortIndexEntries(entries []indexEntry, order schema.ClusteringOrder) {
	sort.SliceStable(entries, func(i, j int) bool {
		if order == schema.Desc {
			return entries[i].key > entries[j].key
		}
		return entries[i].key < entries[j].key
	})
}

func writeIndexFile(path string, entries []indexEntry) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return ioErr(err)
	}
	tmp := tempPath(dir)
	f, err := os.Create(tmp)
	if err != nil {
		return ioErr(err)
	}
	w := bufio.NewWriter(f)
	fmt.Fprintln(w, dataHeader)
	for _, e := range entries {
		fmt.Fprintf(w, "%s,%d,%d\n", e.key, e.start, e.end)
	}
	if err := w.Flush(); err != nil {
		f.Close()
		os.Remove(tmp)
		return ioErr(err)
	}
	if err := f.Close(); err != nil {
		return ioErr(err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return ioErr(err)
	}
	return nil
}

func tempPath(dir string) string {
	return filepath.Join(dir, fmt.Sprintf(".%d.tmp", Now()))
}
