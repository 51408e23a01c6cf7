package schema

import (
	"fmt"
	"sync"

	"github.com/rusticdb/rusticdb/internal/rerrors"
)

// Keyspace carries a replication strategy and factor, and owns a set of
// Tables. Only SimpleStrategy is modeled; cross-datacenter topologies are
// out of scope.
type Keyspace struct {
	Name              string
	ReplicationFactor int

	mu     sync.RWMutex
	tables map[string]*Table
}

// NewKeyspace constructs a Keyspace with RF >= 1.
func NewKeyspace(name string, rf int) (*Keyspace, error) {
	if rf < 1 {
		return nil, rerrors.New(rerrors.Schema, "replication_factor must be >= 1")
	}
	return &Keyspace{Name: name, ReplicationFactor: rf, tables: make(map[string]*Table)}, nil
}

// AddTable registers a new table, failing if one with the same name exists.
func (k *Keyspace) AddTable(t *Table) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.tables[t.Name]; ok {
		return rerrors.New(rerrors.Schema, fmt.Sprintf("table %q already exists", t.Name))
	}
	k.tables[t.Name] = t
	return nil
}

// DropTable removes a table.
func (k *Keyspace) DropTable(name string) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.tables[name]; !ok {
		return rerrors.New(rerrors.Schema, fmt.Sprintf("unknown table %q", name))
	}
	delete(k.tables, name)
	return nil
}

// Table returns the named table (the catalog's live entry, not a copy), or a
// Schema error.
func (k *Keyspace) Table(name string) (*Table, error) {
	k.mu.RLock()
	defer k.mu.RUnlock()
	t, ok := k.tables[name]
	if !ok {
		return nil, rerrors.New(rerrors.Schema, fmt.Sprintf("unknown table %q", name))
	}
	return t, nil
}

// Tables returns every table in the keyspace.
func (k *Keyspace) Tables() []*Table {
	k.mu.RLock()
	defer k.mu.RUnlock()
	out := make([]*Table, 0, len(k.tables))
	for _, t := range k.tables {
		out = append(out, t)
	}
	return out
}

// Catalog is the process-wide set of keyspaces, guarded by its own
// reader-writer lock; the partitioner keeps a separate one.
type Catalog struct {
	mu        sync.RWMutex
	keyspaces map[string]*Keyspace
	current   string // default keyspace name for the process; connections may override per-session
}

func NewCatalog() *Catalog {
	return &Catalog{keyspaces: make(map[string]*Keyspace)}
}

// AddKeyspace registers a new keyspace, unique process-wide.
func (c *Catalog) AddKeyspace(ks *Keyspace) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keyspaces[ks.Name]; ok {
		return rerrors.New(rerrors.Schema, fmt.Sprintf("keyspace %q already exists", ks.Name))
	}
	c.keyspaces[ks.Name] = ks
	return nil
}

// DropKeyspace removes a keyspace.
func (c *Catalog) DropKeyspace(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, ok := c.keyspaces[name]; !ok {
		return rerrors.New(rerrors.Schema, fmt.Sprintf("unknown keyspace %q", name))
	}
	delete(c.keyspaces, name)
	return nil
}

// Keyspace returns the named keyspace.
func (c *Catalog) Keyspace(name string) (*Keyspace, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	ks, ok := c.keyspaces[name]
	if !ok {
		return nil, rerrors.New(rerrors.Schema, fmt.Sprintf("unknown keyspace %q", name))
	}
	return ks, nil
}

// Keyspaces returns every registered keyspace.
func (c *Catalog) Keyspaces() []*Keyspace {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]*Keyspace, 0, len(c.keyspaces))
	for _, ks := range c.keyspaces {
		out = append(out, ks)
	}
	return out
}
