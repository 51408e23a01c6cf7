package cql

import (
	"fmt"
	"strings"

	"github.com/rusticdb/rusticdb/internal/schema"
)

// Render reconstructs canonical CQL text for q, substituting already-resolved
// literal values (insert.rs's "uuid() already expanded" values included) in
// place of any function call that appeared in the text a client sent.
// A coordinator forwards Render's output to replicas instead of the client's
// original text, so every replica applies the exact same values rather than
// each independently re-evaluating a nondeterministic function like uuid().
//
// t is the query's target table, needed to quote literals by column type; it
// is nil for keyspace-level DDL, which carries no column types.
func (q *Query) Render(t *schema.Table) string {
	switch q.Kind {
	case KindSelect:
		return renderSelect(q.Select, t)
	case KindInsert:
		return renderInsert(q.Insert, t)
	case KindUpdate:
		return renderUpdate(q.Update, t)
	case KindDelete:
		return renderDelete(q.Delete, t)
	case KindCreateTable:
		return renderCreateTable(q.CreateTable)
	case KindDropTable:
		return renderDropTable(q.DropTable)
	case KindAlterTable:
		return renderAlterTable(q.AlterTable)
	case KindCreateKeyspace:
		return renderCreateKeyspace(q.CreateKeyspace)
	case KindDropKeyspace:
		return renderDropKeyspace(q.DropKeyspace)
	case KindAlterKeyspace:
		return renderAlterKeyspace(q.AlterKeyspace)
	case KindUse:
		return "USE " + q.Use.Keyspace
	default:
		return ""
	}
}

func qualifiedName(keyspace, table string) string {
	if keyspace == "" {
		return table
	}
	return keyspace + "." + table
}

func quoteValue(t schema.DataType, v string) string {
	switch t {
	case schema.Ascii, schema.Timestamp, schema.Uuid:
		return "'" + strings.ReplaceAll(v, "'", "''") + "'"
	default:
		return v
	}
}

func columnType(t *schema.Table, name string) schema.DataType {
	if t == nil {
		return schema.Ascii
	}
	if c, ok := t.Column(name); ok {
		return c.Type
	}
	return schema.Ascii
}

func renderCondition(c *Condition, t *schema.Table) string {
	if c == nil {
		return ""
	}
	if c.IsLeaf() {
		return fmt.Sprintf("%s %s %s", c.Column, c.Operator, quoteValue(columnType(t, c.Column), c.Value))
	}
	op := "AND"
	if c.Logical == LogicalOr {
		op = "OR"
	}
	return fmt.Sprintf("%s %s %s", renderCondition(c.Left, t), op, renderCondition(c.Right, t))
}

func renderSelect(s *Select, t *schema.Table) string {
	cols := "*"
	if len(s.Columns) > 0 {
		cols = strings.Join(s.Columns, ", ")
	}
	out := fmt.Sprintf("SELECT %s FROM %s", cols, qualifiedName(s.Keyspace, s.Table))
	if s.Where != nil {
		out += " WHERE " + renderCondition(s.Where, t)
	}
	if s.OrderBy != nil {
		dir := "ASC"
		if s.OrderBy.Direction == OrderDesc {
			dir = "DESC"
		}
		out += fmt.Sprintf(" ORDER BY %s %s", s.OrderBy.Column, dir)
	}
	return out
}

func renderInsert(ins *Insert, t *schema.Table) string {
	values := make([]string, len(ins.Values))
	for i, v := range ins.Values {
		colType := schema.Ascii
		if i < len(ins.Columns) {
			colType = columnType(t, ins.Columns[i])
		}
		values[i] = quoteValue(colType, v)
	}
	out := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		qualifiedName(ins.Keyspace, ins.Table), strings.Join(ins.Columns, ", "), strings.Join(values, ", "))
	if ins.IfNotExists {
		out += " IF NOT EXISTS"
	}
	return out
}

func renderUpdate(u *Update, t *schema.Table) string {
	assigns := make([]string, len(u.Set))
	for i, a := range u.Set {
		assigns[i] = fmt.Sprintf("%s = %s", a.Column, quoteValue(columnType(t, a.Column), a.Value))
	}
	out := fmt.Sprintf("UPDATE %s SET %s", qualifiedName(u.Keyspace, u.Table), strings.Join(assigns, ", "))
	if u.Where != nil {
		out += " WHERE " + renderCondition(u.Where, t)
	}
	if u.If != nil {
		out += " IF " + renderCondition(u.If, t)
	}
	return out
}

func renderDelete(d *Delete, t *schema.Table) string {
	out := "DELETE"
	if len(d.Columns) > 0 {
		out += " " + strings.Join(d.Columns, ", ")
	}
	out += " FROM " + qualifiedName(d.Keyspace, d.Table)
	if d.Where != nil {
		out += " WHERE " + renderCondition(d.Where, t)
	}
	if d.IfExists {
		out += " IF EXISTS"
	} else if d.If != nil {
		out += " IF " + renderCondition(d.If, t)
	}
	return out
}

func renderColumnDef(c schema.Column) string {
	if c.NotNull {
		return fmt.Sprintf("%s %s NOT NULL", c.Name, c.Type)
	}
	return fmt.Sprintf("%s %s", c.Name, c.Type)
}

func renderCreateTable(c *CreateTable) string {
	defs := make([]string, len(c.Columns))
	var partition, clustering, orders []string
	for i, col := range c.Columns {
		defs[i] = renderColumnDef(col)
		if col.IsPartitionKey {
			partition = append(partition, col.Name)
		}
		if col.IsClusteringColumn {
			clustering = append(clustering, col.Name)
			orders = append(orders, col.Name+" "+col.ClusteringOrder.String())
		}
	}
	pk := strings.Join(partition, ", ")
	if len(partition) > 1 && len(clustering) == 0 {
		pk = "(" + pk + ")"
	}
	if len(clustering) > 0 {
		pk = fmt.Sprintf("(%s), %s", pk, strings.Join(clustering, ", "))
	}
	out := "CREATE TABLE "
	if c.IfNotExists {
		out += "IF NOT EXISTS "
	}
	out += fmt.Sprintf("%s (%s, PRIMARY KEY (%s))", qualifiedName(c.Keyspace, c.Table), strings.Join(defs, ", "), pk)
	if len(orders) > 0 {
		out += fmt.Sprintf(" WITH CLUSTERING ORDER BY (%s)", strings.Join(orders, ", "))
	}
	return out
}

func renderDropTable(d *DropTable) string {
	out := "DROP TABLE "
	if d.IfExists {
		out += "IF EXISTS "
	}
	return out + qualifiedName(d.Keyspace, d.Table)
}

func renderAlterTable(a *AlterTable) string {
	switch a.Op {
	case AlterAddColumn:
		return fmt.Sprintf("ALTER TABLE %s ADD %s", qualifiedName(a.Keyspace, a.Table), renderColumnDef(a.Column))
	case AlterDropColumn:
		return fmt.Sprintf("ALTER TABLE %s DROP %s", qualifiedName(a.Keyspace, a.Table), a.DropName)
	case AlterRenameColumn:
		return fmt.Sprintf("ALTER TABLE %s RENAME %s TO %s", qualifiedName(a.Keyspace, a.Table), a.OldName, a.NewName)
	default:
		return ""
	}
}

func renderCreateKeyspace(c *CreateKeyspace) string {
	out := "CREATE KEYSPACE "
	if c.IfNotExists {
		out += "IF NOT EXISTS "
	}
	return out + fmt.Sprintf("%s WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': %d}", c.Name, c.ReplicationFactor)
}

func renderDropKeyspace(d *DropKeyspace) string {
	out := "DROP KEYSPACE "
	if d.IfExists {
		out += "IF EXISTS "
	}
	return out + d.Name
}

func renderAlterKeyspace(a *AlterKeyspace) string {
	return fmt.Sprintf("ALTER KEYSPACE %s WITH REPLICATION = {'class': 'SimpleStrategy', 'replication_factor': %d}", a.Name, a.ReplicationFactor)
}
