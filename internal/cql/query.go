package cql

import "github.com/rusticdb/rusticdb/internal/schema"

// Query is the tagged union of every statement the parser can produce,
// grounded on query-creator/src/lib.rs's `Query` enum. Section 9's design
// notes call for "a tagged union ... and a single execute(Query, ExecCtx)
// entry point" rather than per-variant inheritance; QueryKind plus a type
// switch in the executor is that tagged union in Go.
type QueryKind uint8

const (
	KindSelect QueryKind = iota
	KindInsert
	KindUpdate
	KindDelete
	KindCreateTable
	KindDropTable
	KindAlterTable
	KindCreateKeyspace
	KindDropKeyspace
	KindAlterKeyspace
	KindUse
)

// Query wraps exactly one of the statement structs below; Kind says which.
type Query struct {
	Kind QueryKind

	Select         *Select
	Insert         *Insert
	Update         *Update
	Delete         *Delete
	CreateTable    *CreateTable
	DropTable      *DropTable
	AlterTable     *AlterTable
	CreateKeyspace *CreateKeyspace
	DropKeyspace   *DropKeyspace
	AlterKeyspace  *AlterKeyspace
	Use            *Use
}

// IsDDL reports whether the query's target is "all nodes" (section 4.4 step
// 2), as opposed to a single partition's owner and replicas.
func (q *Query) IsDDL() bool {
	switch q.Kind {
	case KindCreateTable, KindDropTable, KindAlterTable, KindCreateKeyspace, KindDropKeyspace, KindAlterKeyspace:
		return true
	default:
		return false
	}
}

// Keyspace returns the keyspace qualifier carried by the query, if any.
func (q *Query) Keyspace() string {
	switch q.Kind {
	case KindSelect:
		return q.Select.Keyspace
	case KindInsert:
		return q.Insert.Keyspace
	case KindUpdate:
		return q.Update.Keyspace
	case KindDelete:
		return q.Delete.Keyspace
	case KindCreateTable:
		return q.CreateTable.Keyspace
	case KindDropTable:
		return q.DropTable.Keyspace
	case KindAlterTable:
		return q.AlterTable.Keyspace
	default:
		return ""
	}
}

// TableName returns the unqualified table name targeted by a data or
// table-DDL query, or "" for keyspace-level statements.
func (q *Query) TableName() string {
	switch q.Kind {
	case KindSelect:
		return q.Select.Table
	case KindInsert:
		return q.Insert.Table
	case KindUpdate:
		return q.Update.Table
	case KindDelete:
		return q.Delete.Table
	case KindCreateTable:
		return q.CreateTable.Table
	case KindDropTable:
		return q.DropTable.Table
	case KindAlterTable:
		return q.AlterTable.Table
	default:
		return ""
	}
}

type OrderDirection uint8

const (
	OrderAsc OrderDirection = iota
	OrderDesc
)

type OrderBy struct {
	Column    string
	Direction OrderDirection
}

type Select struct {
	Keyspace string
	Table    string
	Columns  []string // nil/empty means "*"
	Where    *Condition
	OrderBy  *OrderBy
}

type Insert struct {
	Keyspace    string
	Table       string
	Columns     []string
	Values      []string // string-encoded cell values, in Columns order; uuid() already expanded
	IfNotExists bool
}

type Assignment struct {
	Column string
	Value  string
}

type Update struct {
	Keyspace string
	Table    string
	Set      []Assignment
	Where    *Condition
	If       *Condition // nil when no IF clause
}

type Delete struct {
	Keyspace string
	Table    string
	Columns  []string // nil means "delete whole row"
	Where    *Condition
	If       *Condition
	IfExists bool
}

type CreateTable struct {
	Keyspace        string
	Table           string
	IfNotExists     bool
	Columns         []schema.Column // partition/clustering flags and order already resolved from PRIMARY KEY
}

type DropTable struct {
	Keyspace string
	Table    string
	IfExists bool
}

type AlterOp uint8

const (
	AlterAddColumn AlterOp = iota
	AlterDropColumn
	AlterRenameColumn
)

type AlterTable struct {
	Keyspace string
	Table    string
	Op       AlterOp
	Column   schema.Column // for Add
	DropName string        // for Drop
	OldName  string        // for Rename
	NewName  string        // for Rename
}

type CreateKeyspace struct {
	Name              string
	IfNotExists       bool
	ReplicationFactor int
}

type DropKeyspace struct {
	Name     string
	IfExists bool
}

type AlterKeyspace struct {
	Name              string
	ReplicationFactor int
}

type Use struct {
	Keyspace string
}
