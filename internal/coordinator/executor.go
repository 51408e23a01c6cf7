package coordinator

import (
	"context"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/rusticdb/rusticdb/internal/cql"
	"github.com/rusticdb/rusticdb/internal/gossip"
	"github.com/rusticdb/rusticdb/internal/internode"
	"github.com/rusticdb/rusticdb/internal/protocol/primitive"
	"github.com/rusticdb/rusticdb/internal/rerrors"
	"github.com/rusticdb/rusticdb/internal/ring"
	"github.com/rusticdb/rusticdb/internal/schema"
	"github.com/rusticdb/rusticdb/internal/storage"
)

// QueryTimeout bounds how long a dispatched query waits for its replica set
// to answer before the open-query deadline mechanism fails it with a
// Timeout.
const QueryTimeout = 5 * time.Second

// ExecResult is what Execute returns to the client-protocol layer: at most
// one of Rows (a SELECT's projected, reconciled result) or Applied is
// meaningful, depending on the statement kind.
type ExecResult struct {
	Columns []string
	Rows    []storage.Row
	Applied bool
}

// Executor resolves a parsed statement's keyspace and target, computes its
// owning replica set, and fans it out through a resolve/dispatch/await/
// reconcile pipeline. It is the single entry point query.execute(ExecCtx) plays in
// query-creator/src/lib.rs and node/src/open_query_handler.rs, collapsed
// into one Go type since this module keeps no separate ExecCtx object.
type Executor struct {
	Self        net.IP
	Partitioner *ring.Partitioner
	Catalog     *schema.Catalog
	Storage     *storage.Engine
	Pool        *internode.Pool
	OpenQueries *OpenQueryHandler
	Membership  *gossip.Engine
	Log         zerolog.Logger
}

func (ex *Executor) resolveKeyspace(q *cql.Query, sessionKeyspace string) (string, error) {
	ks := q.Keyspace()
	if ks == "" {
		ks = sessionKeyspace
	}
	if ks == "" {
		return "", rerrors.New(rerrors.Schema, "no keyspace specified and no current keyspace set")
	}
	return ks, nil
}

// Execute runs q to completion at consistency level cl within sessionKeyspace
// (the connection's current USE target, if any) and returns its result.
// clientID identifies the originating client connection for diagnostics.
func (ex *Executor) Execute(ctx context.Context, sessionKeyspace string, clientID uint32, q *cql.Query, cl primitive.ConsistencyLevel) (*ExecResult, error) {
	if q.Kind == cql.KindUse {
		return nil, rerrors.New(rerrors.Internal, "USE is resolved by the session layer, not the executor")
	}

	ksName, err := ex.resolveKeyspace(q, sessionKeyspace)
	if err != nil {
		return nil, err
	}

	if isKeyspaceDDL(q) {
		return ex.executeKeyspaceDDL(ctx, clientID, ksName, q)
	}

	ks, err := ex.Catalog.Keyspace(ksName)
	if err != nil {
		return nil, err
	}

	if q.IsDDL() {
		return ex.executeTableDDL(ctx, clientID, ks, q)
	}

	table, err := ks.Table(q.TableName())
	if err != nil {
		return nil, err
	}
	return ex.executeData(ctx, clientID, ks, table, q, cl)
}

func isKeyspaceDDL(q *cql.Query) bool {
	switch q.Kind {
	case cql.KindCreateKeyspace, cql.KindDropKeyspace, cql.KindAlterKeyspace:
		return true
	default:
		return false
	}
}

// executeKeyspaceDDL and executeTableDDL both target "all nodes" per section
// 4.4 step 2: every live node in the ring must apply the statement, so the
// required response count is the full live node count rather than a
// replication-factor-derived quorum.
func (ex *Executor) executeKeyspaceDDL(ctx context.Context, clientID uint32, ksName string, q *cql.Query) (*ExecResult, error) {
	if err := ex.applyCatalogDDL(ksName, q); err != nil {
		return nil, err
	}
	if err := ex.broadcastDDL(ctx, clientID, ksName, q, nil); err != nil {
		return nil, err
	}
	return &ExecResult{Applied: true}, nil
}

func (ex *Executor) executeTableDDL(ctx context.Context, clientID uint32, ks *schema.Keyspace, q *cql.Query) (*ExecResult, error) {
	var table *schema.Table
	if q.Kind != cql.KindCreateTable {
		var err error
		table, err = ks.Table(q.TableName())
		if err != nil {
			if q.Kind == cql.KindDropTable && q.DropTable.IfExists {
				return &ExecResult{Applied: true}, nil
			}
			return nil, err
		}
	}

	if err := ex.applySchemaDDL(ks, table, q); err != nil {
		return nil, err
	}
	resolvedTable := table
	if q.Kind == cql.KindCreateTable {
		resolvedTable, _ = ks.Table(q.CreateTable.Table)
	}
	if err := ex.broadcastDDL(ctx, clientID, ks.Name, q, resolvedTable); err != nil {
		return nil, err
	}
	return &ExecResult{Applied: true}, nil
}

// applyCatalogDDL mutates the process-wide keyspace catalog for a
// keyspace-level statement.
func (ex *Executor) applyCatalogDDL(ksName string, q *cql.Query) error {
	switch q.Kind {
	case cql.KindCreateKeyspace:
		c := q.CreateKeyspace
		if _, err := ex.Catalog.Keyspace(c.Name); err == nil {
			if c.IfNotExists {
				return nil
			}
			return rerrors.New(rerrors.Schema, "keyspace already exists")
		}
		ks, err := schema.NewKeyspace(c.Name, c.ReplicationFactor)
		if err != nil {
			return err
		}
		return ex.Catalog.AddKeyspace(ks)
	case cql.KindDropKeyspace:
		d := q.DropKeyspace
		if err := ex.Catalog.DropKeyspace(d.Name); err != nil {
			if d.IfExists {
				return nil
			}
			return err
		}
		return nil
	case cql.KindAlterKeyspace:
		ks, err := ex.Catalog.Keyspace(q.AlterKeyspace.Name)
		if err != nil {
			return err
		}
		ks.ReplicationFactor = q.AlterKeyspace.ReplicationFactor
		return nil
	default:
		return rerrors.New(rerrors.Internal, "not a keyspace DDL statement")
	}
}

// applySchemaDDL mutates a keyspace's table catalog and, for CREATE/DROP
// TABLE, the storage engine's on-disk layout.
func (ex *Executor) applySchemaDDL(ks *schema.Keyspace, table *schema.Table, q *cql.Query) error {
	switch q.Kind {
	case cql.KindCreateTable:
		c := q.CreateTable
		if _, err := ks.Table(c.Table); err == nil {
			if c.IfNotExists {
				return nil
			}
			return rerrors.New(rerrors.Schema, "table already exists")
		}
		t, err := schema.NewTable(c.Table, c.Columns)
		if err != nil {
			return err
		}
		if err := ex.Storage.CreateTable(ks.Name, t); err != nil {
			return err
		}
		return ks.AddTable(t)
	case cql.KindDropTable:
		if err := ex.Storage.DropTable(ks.Name, q.DropTable.Table); err != nil {
			return err
		}
		return ks.DropTable(q.DropTable.Table)
	case cql.KindAlterTable:
		a := q.AlterTable
		switch a.Op {
		case cql.AlterAddColumn:
			if err := table.AddColumn(a.Column); err != nil {
				return err
			}
			return ex.Storage.AddColumn(ks.Name, table.Name, a.Column.Name)
		case cql.AlterDropColumn:
			if err := table.RemoveColumn(a.DropName); err != nil {
				return err
			}
			return ex.Storage.RemoveColumn(ks.Name, table.Name, a.DropName)
		case cql.AlterRenameColumn:
			if err := table.RenameColumn(a.OldName, a.NewName); err != nil {
				return err
			}
			return ex.Storage.RenameColumn(ks.Name, table.Name, a.OldName, a.NewName)
		default:
			return rerrors.New(rerrors.Internal, "unknown ALTER TABLE operation")
		}
	default:
		return rerrors.New(rerrors.Internal, "not a table DDL statement")
	}
}

// broadcastDDL forwards q to every other known node so they apply the same
// schema change, waiting for all of them via the open-query mechanism. A
// node that does not answer in time is simply not required once it's judged
// Dead, matching the live-replica adjustment data queries already make.
func (ex *Executor) broadcastDDL(ctx context.Context, clientID uint32, keyspace string, q *cql.Query, table *schema.Table) error {
	peers := ex.livePeers()
	if len(peers) == 0 {
		return nil
	}
	deadline := time.Now().Add(QueryTimeout)
	id, done := ex.OpenQueries.Open(len(peers), q, table, deadline)
	rendered := q.Render(table)

	for _, peer := range peers {
		go ex.sendReplica(ctx, id, peer, keyspace, rendered, clientID, storage.Now(), false)
	}

	ex.await(ctx, id, done)
	outcome, _ := ex.OpenQueries.Outcome(id)
	return outcome.Err
}

// livePeers returns every ring member other than self whose gossiped status
// is not Dead.
func (ex *Executor) livePeers() []net.IP {
	var out []net.IP
	for _, ip := range ex.Partitioner.Nodes() {
		if ip.Equal(ex.Self) {
			continue
		}
		if ex.Membership != nil {
			if st, ok := ex.Membership.State(ip); ok && st.App.Status == gossip.Dead {
				continue
			}
		}
		out = append(out, ip)
	}
	return out
}

// executeData is the data-statement path: compute the owning replica set,
// dispatch, and (for SELECT) reconcile.
func (ex *Executor) executeData(ctx context.Context, clientID uint32, ks *schema.Keyspace, table *schema.Table, q *cql.Query, cl primitive.ConsistencyLevel) (*ExecResult, error) {
	if err := checkNotNull(table, q); err != nil {
		return nil, err
	}

	keyValues, err := partitionKeyValues(table, q)
	if err != nil {
		return nil, err
	}
	owner, err := ex.Partitioner.OwnerOf(partitionKeyBytes(table, keyValues))
	if err != nil {
		return nil, rerrors.Wrap(rerrors.Unavailable, err, "no owner for partition key")
	}

	rf := ks.ReplicationFactor
	successors, err := ex.Partitioner.Successors(owner, rf-1)
	if err != nil && rf > 1 {
		return nil, rerrors.Wrap(rerrors.Unavailable, err, "could not compute replica successors")
	}

	replicas := append([]net.IP{owner}, dedupeAgainst(successors, owner)...)
	replicas = ex.dropDead(replicas)

	required := cl.ReplicaCount(rf)
	if len(replicas) < required {
		return nil, rerrors.New(rerrors.Unavailable, fmt.Sprintf("need %d live replicas for this consistency level, have %d", required, len(replicas)))
	}

	timestamp := storage.Now()
	deadline := time.Now().Add(QueryTimeout)
	id, done := ex.OpenQueries.Open(required, q, table, deadline)
	rendered := q.Render(table)

	for i, peer := range replicas {
		replication := i > 0
		if peer.Equal(ex.Self) {
			ex.executeLocally(ks.Name, table, q, replication, timestamp, id)
			continue
		}
		go ex.sendReplica(ctx, id, peer, ks.Name, rendered, clientID, timestamp, replication)
	}

	ex.await(ctx, id, done)
	outcome, _ := ex.OpenQueries.Outcome(id)
	if outcome.Err != nil {
		return nil, outcome.Err
	}
	return reconcile(q, table, outcome.Responses), nil
}

func (ex *Executor) await(ctx context.Context, id int32, done <-chan struct{}) {
	select {
	case <-done:
	case <-ctx.Done():
		ex.OpenQueries.Fail(id, rerrors.Wrap(rerrors.IO, ctx.Err(), "query canceled"))
		<-done
	}
}

func (ex *Executor) dropDead(ips []net.IP) []net.IP {
	if ex.Membership == nil {
		return ips
	}
	out := ips[:0:0]
	for _, ip := range ips {
		if ip.Equal(ex.Self) {
			out = append(out, ip)
			continue
		}
		if st, ok := ex.Membership.State(ip); ok && (st.App.Status == gossip.Dead || st.App.Status == gossip.Removing) {
			continue
		}
		out = append(out, ip)
	}
	return out
}

func dedupeAgainst(ips []net.IP, exclude net.IP) []net.IP {
	out := make([]net.IP, 0, len(ips))
	for _, ip := range ips {
		if !ip.Equal(exclude) {
			out = append(out, ip)
		}
	}
	return out
}

// executeLocally runs q directly against the storage engine, recording the
// result into the open query exactly as if it had arrived over the wire
// from a remote replica.
func (ex *Executor) executeLocally(keyspace string, table *schema.Table, q *cql.Query, replication bool, timestamp int64, id int32) {
	resp := ReplicaResponse{From: ex.Self}
	switch q.Kind {
	case cql.KindSelect:
		rows, err := ex.Storage.SelectWithTimestamps(keyspace, table, q.Select.Where, q.Select.Columns, q.Select.OrderBy)
		if err != nil {
			resp.Err = err
		}
		resp.Rows = rows
	case cql.KindInsert:
		applied, err := ex.Storage.Insert(keyspace, table, q.Insert.Values, replication, q.Insert.IfNotExists, timestamp)
		resp.Applied, resp.Err = applied, err
	case cql.KindUpdate:
		applied, err := ex.Storage.Update(keyspace, table, q.Update, replication, timestamp)
		resp.Applied, resp.Err = applied, err
	case cql.KindDelete:
		applied, err := ex.Storage.Delete(keyspace, table, q.Delete, replication)
		resp.Applied, resp.Err = applied, err
	default:
		resp.Err = rerrors.New(rerrors.Internal, "unsupported local statement kind")
	}

	if resp.Err != nil {
		ex.OpenQueries.Fail(id, resp.Err)
		return
	}
	ex.OpenQueries.AddResponse(id, resp)
}

// sendReplica forwards rendered CQL text to peer over the internode
// connection pool and feeds the decoded reply back into the open query.
// Pool.Send already retries once after reconnecting on a transient failure;
// a second failure here is final for this replica.
func (ex *Executor) sendReplica(ctx context.Context, id int32, peer net.IP, keyspace, rendered string, clientID uint32, timestamp int64, replication bool) {
	payload := &internode.QueryPayload{
		OpenQueryID: uint32(id),
		ClientID:    clientID,
		Timestamp:   timestamp,
		Replication: replication,
		Keyspace:    keyspace,
		Query:       rendered,
	}
	frame, err := ex.Pool.Send(ctx, peer, internode.OpQuery, payload.Encode())
	if err != nil {
		ex.OpenQueries.Fail(id, rerrors.Wrap(rerrors.IO, err, "replica send failed: "+peer.String()))
		return
	}
	resp, err := internode.DecodeResponsePayload(frame.Payload)
	if err != nil {
		ex.OpenQueries.Fail(id, rerrors.Wrap(rerrors.Protocol, err, "malformed replica response"))
		return
	}
	if resp.Status == internode.StatusError {
		ex.OpenQueries.Fail(id, rerrors.ParseWire(string(resp.Content)))
		return
	}
	if len(resp.Content) == 0 {
		ex.OpenQueries.AddResponse(id, ReplicaResponse{From: peer, Applied: true})
		return
	}
	rs, err := internode.DecodeRowSet(resp.Content)
	if err != nil {
		ex.OpenQueries.Fail(id, rerrors.Wrap(rerrors.Protocol, err, "malformed replica row set"))
		return
	}
	ex.OpenQueries.AddResponse(id, ReplicaResponse{From: peer, Rows: rowSetToTimed(rs)})
}

// timedRowsToRowSet packages a local SELECT result for the wire: full is
// the table's declared column order, selected is the projection the query
// actually asked for.
func timedRowsToRowSet(full, selected []string, rows []storage.TimedRow) *internode.RowSet {
	rs := &internode.RowSet{
		Columns:    full,
		Selected:   selected,
		Rows:       make([][]string, len(rows)),
		Timestamps: make([]int64, len(rows)),
	}
	for i, r := range rows {
		row := make([]string, len(selected))
		for j, name := range selected {
			row[j] = r.Cells[name]
		}
		rs.Rows[i] = row
		rs.Timestamps[i] = r.Timestamp
	}
	return rs
}

func rowSetToTimed(rs *internode.RowSet) []storage.TimedRow {
	out := make([]storage.TimedRow, len(rs.Rows))
	for i, row := range rs.Rows {
		cells := make(storage.Row, len(rs.Selected))
		for j, name := range rs.Selected {
			if j < len(row) {
				cells[name] = row[j]
			}
		}
		var ts int64
		if i < len(rs.Timestamps) {
			ts = rs.Timestamps[i]
		}
		out[i] = storage.TimedRow{Cells: cells, Timestamp: ts}
	}
	return out
}

// reconcile merges every replica's rows by primary key, keeping the
// highest-timestamp version of each (last-write-wins), and drops responses
// carrying no rows (mutations).
func reconcile(q *cql.Query, table *schema.Table, responses []ReplicaResponse) *ExecResult {
	if q.Kind != cql.KindSelect {
		applied := true
		for _, r := range responses {
			if !r.Applied {
				applied = false
			}
		}
		return &ExecResult{Applied: applied}
	}

	best := make(map[string]storage.TimedRow)
	var order []string
	keyCols := primaryKeyColumnNames(table)
	for _, r := range responses {
		for _, row := range r.Rows {
			key := rowKey(row.Cells, keyCols)
			if existing, ok := best[key]; !ok || row.Timestamp > existing.Timestamp {
				if !ok {
					order = append(order, key)
				}
				best[key] = row
			}
		}
	}

	rows := make([]storage.Row, 0, len(order))
	for _, key := range order {
		rows = append(rows, best[key].Cells)
	}

	columns := q.Select.Columns
	if len(columns) == 0 {
		columns = table.ColumnNames()
	}
	return &ExecResult{Columns: columns, Rows: rows}
}

func primaryKeyColumnNames(t *schema.Table) []string {
	var out []string
	for _, c := range t.PartitionKeyColumns() {
		out = append(out, c.Name)
	}
	for _, c := range t.ClusteringColumns() {
		out = append(out, c.Name)
	}
	return out
}

func rowKey(row storage.Row, keyCols []string) string {
	parts := make([]string, len(keyCols))
	for i, c := range keyCols {
		parts[i] = row[c]
	}
	return strings.Join(parts, "\x00")
}

// checkNotNull rejects an INSERT that leaves a NOT NULL column unset and an
// UPDATE whose SET clause assigns one the empty string or the literal NULL.
// Partition-key and clustering columns are excluded: they are already
// required by partitionKeyValues/buildRowFromEqualities and can't be made
// nullable by the DDL parser.
func checkNotNull(t *schema.Table, q *cql.Query) error {
	switch q.Kind {
	case cql.KindInsert:
		supplied := make(map[string]string, len(q.Insert.Columns))
		for i, col := range q.Insert.Columns {
			if i < len(q.Insert.Values) {
				supplied[col] = q.Insert.Values[i]
			}
		}
		for _, c := range t.Columns {
			if !c.NotNull || c.IsPartitionKey || c.IsClusteringColumn {
				continue
			}
			v, ok := supplied[c.Name]
			if !ok || v == "" || strings.EqualFold(v, "NULL") {
				return rerrors.New(rerrors.Schema, fmt.Sprintf("column %q is NOT NULL", c.Name))
			}
		}
	case cql.KindUpdate:
		for _, a := range q.Update.Set {
			c, ok := t.Column(a.Column)
			if !ok || !c.NotNull {
				continue
			}
			if a.Value == "" || strings.EqualFold(a.Value, "NULL") {
				return rerrors.New(rerrors.Schema, fmt.Sprintf("column %q is NOT NULL", c.Name))
			}
		}
	}
	return nil
}

// partitionKeyValues extracts the partition-key column values a data
// statement carries, keyed by column name: Insert supplies them directly,
// while SELECT/UPDATE/DELETE must supply every partition-key column as a
// WHERE equality.
func partitionKeyValues(t *schema.Table, q *cql.Query) (map[string]string, error) {
	switch q.Kind {
	case cql.KindInsert:
		values := make(map[string]string, len(q.Insert.Columns))
		for i, col := range q.Insert.Columns {
			if i < len(q.Insert.Values) {
				values[col] = q.Insert.Values[i]
			}
		}
		return requirePartitionKey(t, values)
	case cql.KindSelect:
		return whereEqualities(t, q.Select.Where)
	case cql.KindUpdate:
		return whereEqualities(t, q.Update.Where)
	case cql.KindDelete:
		return whereEqualities(t, q.Delete.Where)
	default:
		return nil, rerrors.New(rerrors.Internal, "not a data statement")
	}
}

func whereEqualities(t *schema.Table, where *cql.Condition) (map[string]string, error) {
	leaves, ok := where.Flatten()
	if !ok {
		return nil, rerrors.New(rerrors.InvalidCondition, "WHERE clause must AND-join equality conditions over the partition key")
	}
	values := make(map[string]string, len(leaves))
	for _, leaf := range leaves {
		if leaf.Operator == cql.OpEq {
			values[leaf.Column] = leaf.Value
		}
	}
	return requirePartitionKey(t, values)
}

func requirePartitionKey(t *schema.Table, values map[string]string) (map[string]string, error) {
	for _, c := range t.PartitionKeyColumns() {
		if _, ok := values[c.Name]; !ok {
			return nil, rerrors.New(rerrors.InvalidCondition, "every partition-key column must be supplied with equality")
		}
	}
	return values, nil
}

// partitionKeyBytes concatenates the partition-key column values, in the
// table's declared order, with no separator, matching
// partitioner.owner_of(concat(partition_key_values_as_strings)).
func partitionKeyBytes(t *schema.Table, values map[string]string) []byte {
	var sb strings.Builder
	for _, c := range t.PartitionKeyColumns() {
		sb.WriteString(values[c.Name])
	}
	return []byte(sb.String())
}
