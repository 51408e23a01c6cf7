package coordinator

import (
	"context"
	"net"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusticdb/rusticdb/internal/cql"
	"github.com/rusticdb/rusticdb/internal/protocol/primitive"
	"github.com/rusticdb/rusticdb/internal/ring"
	"github.com/rusticdb/rusticdb/internal/schema"
	"github.com/rusticdb/rusticdb/internal/storage"
)

func newSingleNodeExecutor(t *testing.T) (*Executor, net.IP) {
	t.Helper()
	self := net.ParseIP("10.0.0.1").To4()

	p := ring.New()
	require.NoError(t, p.Add(self))

	catalog := schema.NewCatalog()
	ks, err := schema.NewKeyspace("app", 1)
	require.NoError(t, err)
	require.NoError(t, catalog.AddKeyspace(ks))

	engine := storage.New(t.TempDir(), self)

	tbl, err := schema.NewTable("users", []schema.Column{
		{Name: "id", Type: schema.Int, IsPartitionKey: true},
		{Name: "name", Type: schema.Ascii},
	})
	require.NoError(t, err)
	require.NoError(t, engine.CreateTable("app", tbl))
	require.NoError(t, ks.AddTable(tbl))

	ex := &Executor{
		Self:        self,
		Partitioner: p,
		Catalog:     catalog,
		Storage:     engine,
		OpenQueries: NewOpenQueryHandler(),
		Log:         zerolog.Nop(),
	}
	return ex, self
}

func mustParse(t *testing.T, q string) *cql.Query {
	t.Helper()
	parsed, err := cql.Parse(q)
	require.NoError(t, err)
	return parsed
}

func TestExecuteInsertAndSelectSingleNode(t *testing.T) {
	ex, _ := newSingleNodeExecutor(t)
	ctx := context.Background()

	_, err := ex.Execute(ctx, "app", 1, mustParse(t, "INSERT INTO users (id, name) VALUES (1, 'ana')"), primitive.ConsistencyLevelOne)
	require.NoError(t, err)

	res, err := ex.Execute(ctx, "app", 1, mustParse(t, "SELECT * FROM users WHERE id = 1"), primitive.ConsistencyLevelOne)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "ana", res.Rows[0]["name"])
}

func TestExecuteRequiresKeyspace(t *testing.T) {
	ex, _ := newSingleNodeExecutor(t)
	_, err := ex.Execute(context.Background(), "", 1, mustParse(t, "SELECT * FROM users WHERE id = 1"), primitive.ConsistencyLevelOne)
	assert.Error(t, err)
}

func TestExecuteCreateTableIsVisibleImmediately(t *testing.T) {
	ex, _ := newSingleNodeExecutor(t)
	ctx := context.Background()

	_, err := ex.Execute(ctx, "app", 1, mustParse(t, "CREATE TABLE events (id INT, name TEXT, PRIMARY KEY (id))"), primitive.ConsistencyLevelOne)
	require.NoError(t, err)

	_, err = ex.Execute(ctx, "app", 1, mustParse(t, "INSERT INTO events (id, name) VALUES (1, 'launch')"), primitive.ConsistencyLevelOne)
	require.NoError(t, err)
}

func TestExecuteUpdateThenSelectReflectsChange(t *testing.T) {
	ex, _ := newSingleNodeExecutor(t)
	ctx := context.Background()

	_, err := ex.Execute(ctx, "app", 1, mustParse(t, "INSERT INTO users (id, name) VALUES (2, 'bob')"), primitive.ConsistencyLevelOne)
	require.NoError(t, err)

	_, err = ex.Execute(ctx, "app", 1, mustParse(t, "UPDATE users SET name = 'bobby' WHERE id = 2"), primitive.ConsistencyLevelOne)
	require.NoError(t, err)

	res, err := ex.Execute(ctx, "app", 1, mustParse(t, "SELECT * FROM users WHERE id = 2"), primitive.ConsistencyLevelOne)
	require.NoError(t, err)
	require.Len(t, res.Rows, 1)
	assert.Equal(t, "bobby", res.Rows[0]["name"])
}

func TestExecuteDeleteRemovesRow(t *testing.T) {
	ex, _ := newSingleNodeExecutor(t)
	ctx := context.Background()

	_, err := ex.Execute(ctx, "app", 1, mustParse(t, "INSERT INTO users (id, name) VALUES (3, 'cleo')"), primitive.ConsistencyLevelOne)
	require.NoError(t, err)
	_, err = ex.Execute(ctx, "app", 1, mustParse(t, "DELETE FROM users WHERE id = 3"), primitive.ConsistencyLevelOne)
	require.NoError(t, err)

	res, err := ex.Execute(ctx, "app", 1, mustParse(t, "SELECT * FROM users WHERE id = 3"), primitive.ConsistencyLevelOne)
	require.NoError(t, err)
	assert.Empty(t, res.Rows)
}

func TestExecuteSelectMissingPartitionKeyIsRejected(t *testing.T) {
	ex, _ := newSingleNodeExecutor(t)
	_, err := ex.Execute(context.Background(), "app", 1, mustParse(t, "SELECT * FROM users WHERE name = 'ana'"), primitive.ConsistencyLevelOne)
	assert.Error(t, err)
}
