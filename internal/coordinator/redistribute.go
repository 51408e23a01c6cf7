package coordinator

import (
	"context"
	"net"

	"github.com/rusticdb/rusticdb/internal/cql"
	"github.com/rusticdb/rusticdb/internal/internode"
	"github.com/rusticdb/rusticdb/internal/rerrors"
	"github.com/rusticdb/rusticdb/internal/schema"
	"github.com/rusticdb/rusticdb/internal/storage"
)

// Redistribute scans every row this node stores and relocates the ones the
// ring no longer assigns to it now that departed has left, satisfying
// gossip.Redistributor. Grounded on
// node/src/storage_engine/data_redistribution.rs's redistribute_data/
// process_file: a full table scan recomputes each row's owner and forwards
// the ones that moved. Rather than tracking index byte offsets itself, it
// goes through the engine's own Insert/Delete, which rewrite each table's
// clustering-key index file along with its row file.
func (ex *Executor) Redistribute(ctx context.Context, departed net.IP) error {
	for _, ks := range ex.Catalog.Keyspaces() {
		for _, table := range ks.Tables() {
			if err := ex.redistributeTable(ctx, ks, table); err != nil {
				ex.Log.Error().Err(err).Str("keyspace", ks.Name).Str("table", table.Name).
					Msg("coordinator: redistribute failed for table")
			}
		}
	}
	return nil
}

func (ex *Executor) redistributeTable(ctx context.Context, ks *schema.Keyspace, table *schema.Table) error {
	rows, err := ex.Storage.SelectWithTimestamps(ks.Name, table, nil, nil, nil)
	if err != nil {
		return err
	}

	pkCols := table.PartitionKeyColumns()
	keyCols := primaryKeyColumnNames(table)
	columns := table.ColumnNames()

	for _, row := range rows {
		values := make(map[string]string, len(pkCols))
		for _, c := range pkCols {
			values[c.Name] = row.Cells[c.Name]
		}
		owner, err := ex.Partitioner.OwnerOf(partitionKeyBytes(table, values))
		if err != nil || owner.Equal(ex.Self) {
			continue // unresolved ring or still ours: leave the row in place
		}

		if err := ex.relocateRow(ctx, ks, table, columns, row.Cells, owner, row.Timestamp); err != nil {
			ex.Log.Error().Err(err).Str("peer", owner.String()).Msg("coordinator: row relocation failed")
			continue
		}
		if err := ex.deleteLocalRow(ks, table, keyCols, row.Cells); err != nil {
			ex.Log.Error().Err(err).Msg("coordinator: local cleanup after relocation failed")
		}
	}
	return nil
}

func (ex *Executor) relocateRow(ctx context.Context, ks *schema.Keyspace, table *schema.Table, columns []string, cells storage.Row, owner net.IP, timestamp int64) error {
	values := make([]string, len(columns))
	for i, c := range columns {
		values[i] = cells[c]
	}
	insert := &cql.Query{Kind: cql.KindInsert, Insert: &cql.Insert{Keyspace: ks.Name, Table: table.Name, Columns: columns, Values: values}}
	rendered := insert.Render(table)

	payload := &internode.QueryPayload{
		Timestamp: timestamp,
		Keyspace:  ks.Name,
		Query:     rendered,
	}
	frame, err := ex.Pool.Send(ctx, owner, internode.OpQuery, payload.Encode())
	if err != nil {
		return err
	}
	resp, err := internode.DecodeResponsePayload(frame.Payload)
	if err != nil {
		return err
	}
	if resp.Status == internode.StatusError {
		return rerrors.ParseWire(string(resp.Content))
	}
	return nil
}

func (ex *Executor) deleteLocalRow(ks *schema.Keyspace, table *schema.Table, keyCols []string, cells storage.Row) error {
	var cond *cql.Condition
	for _, c := range keyCols {
		eq := cql.Simple(c, cql.OpEq, cells[c])
		if cond == nil {
			cond = eq
		} else {
			cond = cql.And(cond, eq)
		}
	}
	_, err := ex.Storage.Delete(ks.Name, table, &cql.Delete{Keyspace: ks.Name, Table: table.Name, Where: cond}, false)
	return err
}
