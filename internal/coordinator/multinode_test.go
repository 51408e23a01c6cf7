package coordinator

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusticdb/rusticdb/internal/internode"
	"github.com/rusticdb/rusticdb/internal/protocol/primitive"
	"github.com/rusticdb/rusticdb/internal/ring"
	"github.com/rusticdb/rusticdb/internal/schema"
	"github.com/rusticdb/rusticdb/internal/storage"
)

// node bundles one Executor with its own internode listener, closing over
// handleQueryFrame directly rather than InternodeHandler: these tests only
// exercise forwarded data/DDL statements, not gossip dispatch.
type node struct {
	ex  *Executor
	srv *internode.Server
}

func (n *node) close() { n.srv.Close() }

// twoNodeCluster wires two Executors sharing one ring/one replication
// factor of 2, each with its own storage engine and catalog, connected by
// real internode.Server/Pool pairs over loopback. Grounded on
// internal/internode/pool_test.go's startEchoServer helper, extended to a
// full Executor rather than a canned echo handler.
func twoNodeCluster(t *testing.T) (a, b *node, port string) {
	t.Helper()
	ipA := net.ParseIP("127.0.0.1").To4()
	ipB := net.ParseIP("127.0.0.2").To4()

	p := ring.New()
	require.NoError(t, p.Add(ipA))
	require.NoError(t, p.Add(ipB))

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port = strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())

	makeExecutor := func(self net.IP) *Executor {
		catalog := schema.NewCatalog()
		ks, err := schema.NewKeyspace("app", 2)
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

		return &Executor{
			Self:        self,
			Partitioner: p,
			Catalog:     catalog,
			Storage:     engine,
			Pool:        internode.NewPool(self, zerolog.Nop()).WithPort(port),
			OpenQueries: NewOpenQueryHandler(),
			Log:         zerolog.Nop(),
		}
	}

	exA := makeExecutor(ipA)
	exB := makeExecutor(ipB)

	queryOnlyHandler := func(ex *Executor) internode.Handler {
		return func(ctx context.Context, from net.IP, op internode.OpCode, payload []byte) (internode.OpCode, []byte, error) {
			return ex.handleQueryFrame(payload)
		}
	}

	srvA := internode.NewServer(ipA.String()+":"+port, queryOnlyHandler(exA), zerolog.Nop())
	srvB := internode.NewServer(ipB.String()+":"+port, queryOnlyHandler(exB), zerolog.Nop())
	require.NoError(t, srvA.Start(context.Background()))
	require.NoError(t, srvB.Start(context.Background()))
	time.Sleep(10 * time.Millisecond)

	exA.Membership = nil
	exB.Membership = nil

	return &node{ex: exA, srv: srvA}, &node{ex: exB, srv: srvB}, port
}

func TestExecuteReplicatesWriteToOtherNode(t *testing.T) {
	a, b, _ := twoNodeCluster(t)
	defer a.close()
	defer b.close()

	ctx := context.Background()
	_, err := a.ex.Execute(ctx, "app", 1, mustParse(t, "INSERT INTO users (id, name) VALUES (1, 'ana')"), primitive.ConsistencyLevelAll)
	require.NoError(t, err)

	rowsB, err := b.ex.Storage.Select("app", mustTable(t, b.ex, "users"), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, rowsB, 1)
	assert.Equal(t, "ana", rowsB[0]["name"])
}

func TestExecuteBroadcastsDDLToOtherNode(t *testing.T) {
	a, b, _ := twoNodeCluster(t)
	defer a.close()
	defer b.close()

	ctx := context.Background()
	_, err := a.ex.Execute(ctx, "app", 1, mustParse(t, "CREATE TABLE events (id INT, name TEXT, PRIMARY KEY (id))"), primitive.ConsistencyLevelOne)
	require.NoError(t, err)

	ksB, err := b.ex.Catalog.Keyspace("app")
	require.NoError(t, err)
	_, err = ksB.Table("events")
	require.NoError(t, err)
}

func TestRedistributeMovesRowToNewOwner(t *testing.T) {
	a, b, _ := twoNodeCluster(t)
	defer a.close()
	defer b.close()

	ctx := context.Background()
	ks, err := a.ex.Catalog.Keyspace("app")
	require.NoError(t, err)
	tbl, err := ks.Table("users")
	require.NoError(t, err)

	_, err = a.ex.Storage.Insert("app", tbl, []string{"5", "zoe"}, false, false, 1000)
	require.NoError(t, err)

	owner, err := a.ex.Partitioner.OwnerOf([]byte("5"))
	require.NoError(t, err)
	if owner.Equal(a.ex.Self) {
		_, err := a.ex.Partitioner.Remove(a.ex.Self)
		require.NoError(t, err)
		defer a.ex.Partitioner.Add(a.ex.Self)
	}

	require.NoError(t, a.ex.Redistribute(ctx, net.ParseIP("10.0.0.99")))

	rowsA, err := a.ex.Storage.Select("app", tbl, nil, nil, nil)
	require.NoError(t, err)
	assert.Empty(t, rowsA)

	rowsB, err := b.ex.Storage.Select("app", mustTable(t, b.ex, "users"), nil, nil, nil)
	require.NoError(t, err)
	require.Len(t, rowsB, 1)
	assert.Equal(t, "zoe", rowsB[0]["name"])
}

func mustTable(t *testing.T, ex *Executor, name string) *schema.Table {
	t.Helper()
	ks, err := ex.Catalog.Keyspace("app")
	require.NoError(t, err)
	tbl, err := ks.Table(name)
	require.NoError(t, err)
	return tbl
}
