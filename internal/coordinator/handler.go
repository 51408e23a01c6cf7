package coordinator

import (
	"context"
	"net"

	"github.com/rusticdb/rusticdb/internal/cql"
	"github.com/rusticdb/rusticdb/internal/gossip"
	"github.com/rusticdb/rusticdb/internal/internode"
	"github.com/rusticdb/rusticdb/internal/rerrors"
	"github.com/rusticdb/rusticdb/internal/schema"
)

// InternodeHandler builds the internode.Handler a Node's Server runs for
// every accepted peer connection: OpQuery frames are parsed and executed
// locally against this node's own catalog and storage engine, and OpGossip
// frames are handed to the membership engine.
func (ex *Executor) InternodeHandler(gossipEngine *gossip.Engine) internode.Handler {
	return func(ctx context.Context, from net.IP, op internode.OpCode, payload []byte) (internode.OpCode, []byte, error) {
		switch op {
		case internode.OpQuery:
			return ex.handleQueryFrame(payload)
		case internode.OpGossip:
			return handleGossipFrame(gossipEngine, payload)
		default:
			return 0, nil, rerrors.New(rerrors.Protocol, "unsupported internode opcode")
		}
	}
}

func handleGossipFrame(e *gossip.Engine, payload []byte) (internode.OpCode, []byte, error) {
	msg, err := gossip.DecodeMessage(payload)
	if err != nil {
		return 0, nil, err
	}
	reply, err := e.HandleIncoming(msg)
	if err != nil {
		return 0, nil, err
	}
	if reply == nil {
		return internode.OpGossip, nil, nil
	}
	body, err := reply.Encode()
	if err != nil {
		return 0, nil, err
	}
	return internode.OpGossip, body, nil
}

// handleQueryFrame parses and executes a statement a coordinator forwarded
// to this node as a replica, replying with a StatusOk/StatusError
// ResponsePayload rather than propagating the error up as a connection
// failure: a bad statement is this replica's answer, not a transport fault.
func (ex *Executor) handleQueryFrame(payload []byte) (internode.OpCode, []byte, error) {
	qp, err := internode.DecodeQueryPayload(payload)
	if err != nil {
		return 0, nil, err
	}

	content, status := ex.runForwardedQuery(qp)
	resp := &internode.ResponsePayload{OpenQueryID: qp.OpenQueryID, Status: status, Content: content}
	return internode.OpResponse, resp.Encode(), nil
}

func wireErr(err error) ([]byte, internode.ResponseStatus) {
	return []byte(rerrors.Wire(err)), internode.StatusError
}

func (ex *Executor) runForwardedQuery(qp *internode.QueryPayload) (content []byte, status internode.ResponseStatus) {
	q, err := cql.Parse(qp.Query)
	if err != nil {
		return wireErr(err)
	}

	if isKeyspaceDDL(q) {
		if err := ex.applyCatalogDDL(qp.Keyspace, q); err != nil {
			return wireErr(err)
		}
		return nil, internode.StatusOk
	}

	ks, err := ex.Catalog.Keyspace(qp.Keyspace)
	if err != nil {
		return wireErr(err)
	}

	if q.IsDDL() {
		var table *schema.Table
		if q.Kind != cql.KindCreateTable {
			table, err = ks.Table(q.TableName())
			if err != nil {
				return wireErr(err)
			}
		}
		if err := ex.applySchemaDDL(ks, table, q); err != nil {
			return wireErr(err)
		}
		return nil, internode.StatusOk
	}

	table, err := ks.Table(q.TableName())
	if err != nil {
		return wireErr(err)
	}

	switch q.Kind {
	case cql.KindSelect:
		rows, serr := ex.Storage.SelectWithTimestamps(qp.Keyspace, table, q.Select.Where, q.Select.Columns, q.Select.OrderBy)
		if serr != nil {
			return wireErr(serr)
		}
		selected := q.Select.Columns
		if len(selected) == 0 {
			selected = table.ColumnNames()
		}
		rs := timedRowsToRowSet(table.ColumnNames(), selected, rows)
		return rs.Encode(), internode.StatusOk
	case cql.KindInsert:
		_, serr := ex.Storage.Insert(qp.Keyspace, table, q.Insert.Values, qp.Replication, q.Insert.IfNotExists, qp.Timestamp)
		if serr != nil {
			return wireErr(serr)
		}
		return nil, internode.StatusOk
	case cql.KindUpdate:
		_, serr := ex.Storage.Update(qp.Keyspace, table, q.Update, qp.Replication, qp.Timestamp)
		if serr != nil {
			return wireErr(serr)
		}
		return nil, internode.StatusOk
	case cql.KindDelete:
		_, serr := ex.Storage.Delete(qp.Keyspace, table, q.Delete, qp.Replication)
		if serr != nil {
			return wireErr(serr)
		}
		return nil, internode.StatusOk
	default:
		return wireErr(rerrors.New(rerrors.Protocol, "unsupported forwarded statement kind"))
	}
}
