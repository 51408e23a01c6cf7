// Package storage implements the wide-column storage engine: one table
// maps to one row file plus one clustering-key index file, written with a
// copy-rewrite-then-atomic-rename discipline so a reader never observes a
// half-written file.
//
// Grounded on node/src/storage_engine/{table_operations,insert,update,
// delete,data_redistribution}.rs. Rust's per-table mutability is replaced
// here by a per-(keyspace,table) sync.Mutex serializing writers; readers
// take no lock (os.Open + rename gives them either the old or new file,
// never a torn one).
package storage

import (
	"bufio"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/rusticdb/rusticdb/internal/rerrors"
	"github.com/rusticdb/rusticdb/internal/schema"
)

const (
	dataHeader  = "clustering_column,start_byte,end_byte"
	replicaDir  = "replication"
	csvExt      = ".csv"
	indexSuffix = "_index.csv"
)

// Engine is the on-disk storage backend for a single node, rooted at Root
// and namespaced by IP per node.get_keyspace_path's
// "keyspaces_of_<ip_with_dots_as_underscores>" convention.
type Engine struct {
	Root string
	IP   net.IP

	mu     sync.Mutex // guards tableLocks
	tables map[string]*sync.Mutex
}

// New constructs an Engine rooted at root for the node identified by ip.
func New(root string, ip net.IP) *Engine {
	return &Engine{Root: root, IP: ip, tables: make(map[string]*sync.Mutex)}
}

func (e *Engine) tableLock(keyspace, table string) *sync.Mutex {
	e.mu.Lock()
	defer e.mu.Unlock()
	key := keyspace + "." + table
	l, ok := e.tables[key]
	if !ok {
		l = &sync.Mutex{}
		e.tables[key] = l
	}
	return l
}

// KeyspacePath returns the node-namespaced directory a keyspace's tables
// live under: <root>/keyspaces_of_<ip_with_underscores>/<keyspace>.
func (e *Engine) KeyspacePath(keyspace string) string {
	ipFolder := "keyspaces_of_" + strings.ReplaceAll(e.IP.String(), ".", "_")
	return filepath.Join(e.Root, ipFolder, keyspace)
}

func (e *Engine) dataFilePath(keyspace, table string, replication bool) string {
	dir := e.KeyspacePath(keyspace)
	if replication {
		dir = filepath.Join(dir, replicaDir)
	}
	return filepath.Join(dir, table+csvExt)
}

func (e *Engine) indexFilePath(keyspace, table string, replication bool) string {
	dir := e.KeyspacePath(keyspace)
	if replication {
		dir = filepath.Join(dir, replicaDir)
	}
	return filepath.Join(dir, table+indexSuffix)
}

func ioErr(err error) error {
	return rerrors.Wrap(rerrors.IO, err, "storage engine I/O failure")
}

// CreateTable lays down the primary and replication row/index files for a
// new table, each carrying just the CSV header line.
func (e *Engine) CreateTable(keyspace string, t *schema.Table) error {
	ksPath := e.KeyspacePath(keyspace)
	replPath := filepath.Join(ksPath, replicaDir)
	if err := os.MkdirAll(ksPath, 0o755); err != nil {
		return ioErr(err)
	}
	if err := os.MkdirAll(replPath, 0o755); err != nil {
		return ioErr(err)
	}

	header := strings.Join(t.ColumnNames(), ",")
	for _, replication := range []bool{false, true} {
		if err := writeHeaderFile(e.dataFilePath(keyspace, t.Name, replication), header); err != nil {
			return err
		}
		if err := writeHeaderFile(e.indexFilePath(keyspace, t.Name, replication), dataHeader); err != nil {
			return err
		}
	}
	return nil
}

func writeHeaderFile(path, header string) error {
	f, err := os.Create(path)
	if err != nil {
		return ioErr(err)
	}
	defer f.Close()
	if _, err := fmt.Fprintln(f, header); err != nil {
		return ioErr(err)
	}
	return nil
}

// DropTable removes a table's primary and replication row/index files.
func (e *Engine) DropTable(keyspace, table string) error {
	for _, replication := range []bool{false, true} {
		if err := os.Remove(e.dataFilePath(keyspace, table, replication)); err != nil && !os.IsNotExist(err) {
			return ioErr(err)
		}
		if err := os.Remove(e.indexFilePath(keyspace, table, replication)); err != nil && !os.IsNotExist(err) {
			return ioErr(err)
		}
	}
	return nil
}

// AddColumn appends a new header column to both the primary and
// replication row files, leaving existing rows unchanged (new cells read
// back as empty strings).
func (e *Engine) AddColumn(keyspace, table, column string) error {
	for _, replication := range []bool{false, true} {
		if err := e.rewriteHeader(e.dataFilePath(keyspace, table, replication), func(cols []string) []string {
			return append(cols, column)
		}); err != nil {
			return err
		}
	}
	return nil
}

// RemoveColumn drops a header column and the corresponding cell from every
// row of both row files.
func (e *Engine) RemoveColumn(keyspace, table, column string) error {
	for _, replication := range []bool{false, true} {
		path := e.dataFilePath(keyspace, table, replication)
		idx := -1
		if err := e.rewriteHeader(path, func(cols []string) []string {
			for i, c := range cols {
				if c == column {
					idx = i
					break
				}
			}
			if idx < 0 {
				return cols
			}
			return append(cols[:idx], cols[idx+1:]...)
		}); err != nil {
			return err
		}
		if idx >= 0 {
			if err := e.rewriteRows(path, func(cols []string) []string {
				if idx >= len(cols) {
					return cols
				}
				return append(cols[:idx], cols[idx+1:]...)
			}); err != nil {
				return err
			}
		}
	}
	return nil
}

// RenameColumn renames a header column in both row files; cell data is
// unaffected since rows are positional.
func (e *Engine) RenameColumn(keyspace, table, oldName, newName string) error {
	for _, replication := range []bool{false, true} {
		if err := e.rewriteHeader(e.dataFilePath(keyspace, table, replication), func(cols []string) []string {
			for i, c := range cols {
				if c == oldName {
					cols[i] = newName
				}
			}
			return cols
		}); err != nil {
			return err
		}
	}
	return nil
}

func (e *Engine) rewriteHeader(path string, transform func([]string) []string) error {
	lines, err := readAllLines(path)
	if err != nil {
		return err
	}
	if len(lines) == 0 {
		lines = []string{""}
	}
	header := strings.Split(lines[0], ",")
	lines[0] = strings.Join(transform(header), ",")
	return atomicWriteLines(path, lines)
}

// rewriteRows applies transform to every data row's column slice (not the
// header, and not the trailing ";timestamp" suffix).
func (e *Engine) rewriteRows(path string, transform func([]string) []string) error {
	lines, err := readAllLines(path)
	if err != nil {
		return err
	}
	for i := 1; i < len(lines); i++ {
		cols, ts, ok := splitRow(lines[i])
		if !ok {
			continue
		}
		lines[i] = joinRow(transform(cols), ts)
	}
	return atomicWriteLines(path, lines)
}

func readAllLines(path string) ([]string, error) {
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, ioErr(err)
	}
	defer f.Close()
	var lines []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	if err := scanner.Err(); err != nil {
		return nil, ioErr(err)
	}
	return lines, nil
}

func atomicWriteLines(path string, lines []string) error {
	dir := filepath.Dir(path)
	tmp := filepath.Join(dir, fmt.Sprintf(".%d.tmp", time.Now().UnixNano()))
	f, err := os.Create(tmp)
	if err != nil {
		return ioErr(err)
	}
	w := bufio.NewWriter(f)
	for _, l := range lines {
		if _, err := fmt.Fprintln(w, l); err != nil {
			f.Close()
			return ioErr(err)
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
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

// splitRow parses a data line of the form "col1,col2,...;timestamp".
func splitRow(line string) (cols []string, timestamp int64, ok bool) {
	semi := strings.LastIndexByte(line, ';')
	if semi < 0 {
		return nil, 0, false
	}
	ts, err := strconv.ParseInt(line[semi+1:], 10, 64)
	if err != nil {
		return nil, 0, false
	}
	return strings.Split(line[:semi], ","), ts, true
}

func joinRow(cols []string, timestamp int64) string {
	return strings.Join(cols, ",") + ";" + strconv.FormatInt(timestamp, 10)
}

// Now returns the write timestamp used for last-write-wins reconciliation,
// in microseconds since the Unix epoch.
func Now() int64 { return time.Now().UnixMicro() }
