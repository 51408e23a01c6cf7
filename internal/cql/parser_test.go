package cql

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusticdb/rusticdb/internal/schema"
)

func TestParseSelectStar(t *testing.T) {
	q, err := Parse("SELECT * FROM my_keyspace.users WHERE id = 1")
	require.NoError(t, err)
	require.Equal(t, KindSelect, q.Kind)
	assert.Equal(t, "my_keyspace", q.Select.Keyspace)
	assert.Equal(t, "users", q.Select.Table)
	assert.Nil(t, q.Select.Columns)
	require.NotNil(t, q.Select.Where)
	assert.True(t, q.Select.Where.IsLeaf())
	assert.Equal(t, "id", q.Select.Where.Column)
	assert.Equal(t, OpEq, q.Select.Where.Operator)
	assert.Equal(t, "1", q.Select.Where.Value)
}

func TestParseSelectColumnsAndOrderBy(t *testing.T) {
	q, err := Parse("SELECT id, name FROM users WHERE id = 1 AND name = 'bob' ORDER BY name DESC")
	require.NoError(t, err)
	assert.Equal(t, []string{"id", "name"}, q.Select.Columns)
	require.NotNil(t, q.Select.OrderBy)
	assert.Equal(t, "name", q.Select.OrderBy.Column)
	assert.Equal(t, OrderDesc, q.Select.OrderBy.Direction)

	leaves, ok := q.Select.Where.Flatten()
	require.True(t, ok)
	require.Len(t, leaves, 2)
	assert.Equal(t, "id", leaves[0].Column)
	assert.Equal(t, "name", leaves[1].Column)
	assert.Equal(t, "bob", leaves[1].Value)
}

func TestParseSelectRejectsOrInWhere(t *testing.T) {
	q, err := Parse("SELECT * FROM users WHERE id = 1 OR name = 'bob'")
	require.NoError(t, err)
	_, ok := q.Select.Where.Flatten()
	assert.False(t, ok)
}

func TestParseInsertWithUUID(t *testing.T) {
	q, err := Parse("INSERT INTO users (id, token, name) VALUES (1, uuid(), 'bob')")
	require.NoError(t, err)
	require.Equal(t, KindInsert, q.Kind)
	assert.Equal(t, []string{"id", "token", "name"}, q.Insert.Columns)
	require.Len(t, q.Insert.Values, 3)
	assert.Equal(t, "1", q.Insert.Values[0])
	assert.NotEqual(t, "uuid()", q.Insert.Values[1])
	assert.Len(t, q.Insert.Values[1], 36) // canonical UUID string form
	assert.Equal(t, "bob", q.Insert.Values[2])
	assert.False(t, q.Insert.IfNotExists)
}

func TestParseInsertIfNotExists(t *testing.T) {
	q, err := Parse("INSERT INTO users (id) VALUES (1) IF NOT EXISTS")
	require.NoError(t, err)
	assert.True(t, q.Insert.IfNotExists)
}

func TestParseInsertColumnValueMismatch(t *testing.T) {
	_, err := Parse("INSERT INTO users (id, name) VALUES (1)")
	require.Error(t, err)
}

func TestParseUpdateWithIf(t *testing.T) {
	q, err := Parse("UPDATE users SET name = 'alice', age = 30 WHERE id = 1 IF name = 'bob'")
	require.NoError(t, err)
	require.Equal(t, KindUpdate, q.Kind)
	require.Len(t, q.Update.Set, 2)
	assert.Equal(t, Assignment{Column: "name", Value: "alice"}, q.Update.Set[0])
	assert.Equal(t, Assignment{Column: "age", Value: "30"}, q.Update.Set[1])
	require.NotNil(t, q.Update.Where)
	require.NotNil(t, q.Update.If)
	assert.Equal(t, "name", q.Update.If.Column)
}

func TestParseDeleteIfExists(t *testing.T) {
	q, err := Parse("DELETE FROM users WHERE id = 1 IF EXISTS")
	require.NoError(t, err)
	require.Equal(t, KindDelete, q.Kind)
	assert.True(t, q.Delete.IfExists)
	assert.Nil(t, q.Delete.Columns)
}

func TestParseDeleteColumns(t *testing.T) {
	q, err := Parse("DELETE age, name FROM users WHERE id = 1")
	require.NoError(t, err)
	assert.Equal(t, []string{"age", "name"}, q.Delete.Columns)
}

func TestParseUse(t *testing.T) {
	q, err := Parse("USE my_keyspace")
	require.NoError(t, err)
	require.Equal(t, KindUse, q.Kind)
	assert.Equal(t, "my_keyspace", q.Use.Keyspace)
}

func TestParseCreateKeyspace(t *testing.T) {
	q, err := Parse("CREATE KEYSPACE IF NOT EXISTS my_keyspace WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 3}")
	require.NoError(t, err)
	require.Equal(t, KindCreateKeyspace, q.Kind)
	assert.True(t, q.CreateKeyspace.IfNotExists)
	assert.Equal(t, "my_keyspace", q.CreateKeyspace.Name)
	assert.Equal(t, 3, q.CreateKeyspace.ReplicationFactor)
}

func TestParseAlterKeyspace(t *testing.T) {
	q, err := Parse("ALTER KEYSPACE my_keyspace WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 5}")
	require.NoError(t, err)
	require.Equal(t, KindAlterKeyspace, q.Kind)
	assert.Equal(t, 5, q.AlterKeyspace.ReplicationFactor)
}

func TestParseCreateTableSingleColumnPartitionKey(t *testing.T) {
	q, err := Parse("CREATE TABLE users (id INT, name TEXT NOT NULL, PRIMARY KEY (id))")
	require.NoError(t, err)
	require.Equal(t, KindCreateTable, q.Kind)
	require.Len(t, q.CreateTable.Columns, 2)

	id, ok := findColumn(q.CreateTable.Columns, "id")
	require.True(t, ok)
	assert.True(t, id.IsPartitionKey)
	assert.False(t, id.IsClusteringColumn)
	assert.Equal(t, schema.Int, id.Type)

	name, ok := findColumn(q.CreateTable.Columns, "name")
	require.True(t, ok)
	assert.True(t, name.NotNull)
	assert.False(t, name.IsPartitionKey)
}

func TestParseCreateTableCompositeKeyAndClusteringOrder(t *testing.T) {
	q, err := Parse("CREATE TABLE IF NOT EXISTS sensors (station TEXT, day TEXT, reading DOUBLE, " +
		"PRIMARY KEY ((station), day)) WITH CLUSTERING ORDER BY (day DESC)")
	require.NoError(t, err)
	assert.True(t, q.CreateTable.IfNotExists)

	station, ok := findColumn(q.CreateTable.Columns, "station")
	require.True(t, ok)
	assert.True(t, station.IsPartitionKey)

	day, ok := findColumn(q.CreateTable.Columns, "day")
	require.True(t, ok)
	assert.True(t, day.IsClusteringColumn)
	assert.Equal(t, schema.Desc, day.ClusteringOrder)
}

func TestParseCreateTableMissingPrimaryKey(t *testing.T) {
	_, err := Parse("CREATE TABLE users (id INT, name TEXT)")
	require.Error(t, err)
}

func TestParseDropTableIfExists(t *testing.T) {
	q, err := Parse("DROP TABLE IF EXISTS users")
	require.NoError(t, err)
	require.Equal(t, KindDropTable, q.Kind)
	assert.True(t, q.DropTable.IfExists)
}

func TestParseAlterTableAdd(t *testing.T) {
	q, err := Parse("ALTER TABLE users ADD age INT")
	require.NoError(t, err)
	require.Equal(t, KindAlterTable, q.Kind)
	assert.Equal(t, AlterAddColumn, q.AlterTable.Op)
	assert.Equal(t, "age", q.AlterTable.Column.Name)
	assert.Equal(t, schema.Int, q.AlterTable.Column.Type)
}

func TestParseAlterTableDrop(t *testing.T) {
	q, err := Parse("ALTER TABLE users DROP age")
	require.NoError(t, err)
	assert.Equal(t, AlterDropColumn, q.AlterTable.Op)
	assert.Equal(t, "age", q.AlterTable.DropName)
}

func TestParseAlterTableRename(t *testing.T) {
	q, err := Parse("ALTER TABLE users RENAME age TO years")
	require.NoError(t, err)
	assert.Equal(t, AlterRenameColumn, q.AlterTable.Op)
	assert.Equal(t, "age", q.AlterTable.OldName)
	assert.Equal(t, "years", q.AlterTable.NewName)
}

func TestParseAlterTableModifyRejected(t *testing.T) {
	_, err := Parse("ALTER TABLE users MODIFY age BIGINT")
	require.Error(t, err)
}

func TestParseTrailingSemicolonIgnored(t *testing.T) {
	q, err := Parse("USE my_keyspace;")
	require.NoError(t, err)
	assert.Equal(t, "my_keyspace", q.Use.Keyspace)
}

func TestParseUnknownStatement(t *testing.T) {
	_, err := Parse("FROBNICATE users")
	require.Error(t, err)
}

func findColumn(cols []schema.Column, name string) (schema.Column, bool) {
	for _, c := range cols {
		if c.Name == name {
			return c, true
		}
	}
	return schema.Column{}, false
}
