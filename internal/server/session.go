// Copyright 2020 DataStax
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"context"
	"net"
	"time"

	"github.com/rs/zerolog"

	"github.com/rusticdb/rusticdb/internal/coordinator"
	"github.com/rusticdb/rusticdb/internal/cql"
	"github.com/rusticdb/rusticdb/internal/protocol/compression"
	"github.com/rusticdb/rusticdb/internal/protocol/frame"
	"github.com/rusticdb/rusticdb/internal/protocol/message"
	"github.com/rusticdb/rusticdb/internal/protocol/primitive"
	"github.com/rusticdb/rusticdb/internal/rerrors"
	"github.com/rusticdb/rusticdb/internal/storage"
)

// session holds the per-connection state: whether STARTUP has happened
// yet, the current USE keyspace, and the compression algorithm negotiated
// at STARTUP, if any.
type session struct {
	id          uint32
	conn        net.Conn
	executor    *coordinator.Executor
	idleTimeout time.Duration
	log         zerolog.Logger

	started    bool
	keyspace   string
	compressor compression.Compressor
}

func newSession(id uint32, conn net.Conn, executor *coordinator.Executor, idleTimeout time.Duration, log zerolog.Logger) *session {
	return &session{id: id, conn: conn, executor: executor, idleTimeout: idleTimeout, log: log}
}

func (s *session) decompress(b []byte) ([]byte, error) {
	if s.compressor == nil {
		return b, nil
	}
	return s.compressor.Decompress(b)
}

func (s *session) compress(b []byte) ([]byte, error) {
	if s.compressor == nil {
		return b, nil
	}
	return s.compressor.Compress(b)
}

// run drives the connection until the peer disconnects or sends a frame
// this node cannot make sense of, matching incomingLoop/outgoingLoop's
// read-handle-reply cycle in client/server.go but on a single goroutine:
// this protocol has no pipelining, so there is nothing to gain from
// splitting reads and writes across separate loops.
func (s *session) run() {
	defer s.conn.Close()
	for {
		if s.idleTimeout > 0 {
			if err := s.conn.SetReadDeadline(time.Now().Add(s.idleTimeout)); err != nil {
				return
			}
		}
		f, err := frame.ReadFrame(s.conn, s.decompress)
		if err != nil {
			return
		}
		reply := s.handle(f)
		if reply == nil {
			continue
		}
		if err := frame.WriteFrame(reply, s.conn, s.compress); err != nil {
			s.log.Debug().Err(err).Uint32("conn", s.id).Msg("client session: write failed")
			return
		}
	}
}

func (s *session) handle(f *frame.Frame) *frame.Frame {
	streamID := f.Header.StreamId

	if !s.started {
		if f.Header.OpCode != primitive.OpCodeStartup {
			return s.errorFrame(streamID, rerrors.New(rerrors.Protocol, "expected STARTUP as the first frame"))
		}
	}

	msg, err := message.Decode(f.Header.OpCode, f.Body)
	if err != nil {
		return s.errorFrame(streamID, rerrors.Wrap(rerrors.Protocol, err, "cannot decode frame body"))
	}

	switch m := msg.(type) {
	case *message.Startup:
		return s.handleStartup(streamID, m)
	case *message.Query:
		return s.handleQuery(streamID, m)
	default:
		return s.errorFrame(streamID, rerrors.New(rerrors.Protocol, "unsupported request opcode"))
	}
}

func (s *session) handleStartup(streamID int16, m *message.Startup) *frame.Frame {
	if name, ok := m.Compression(); ok {
		c, ok := compression.ByName(name)
		if !ok {
			return s.errorFrame(streamID, rerrors.New(rerrors.Protocol, "unsupported compression algorithm: "+name))
		}
		s.compressor = c
	}
	s.started = true
	return s.responseFrame(streamID, &message.Ready{})
}

func (s *session) handleQuery(streamID int16, m *message.Query) *frame.Frame {
	q, err := cql.Parse(m.Query)
	if err != nil {
		return s.errorFrame(streamID, rerrors.Wrap(rerrors.Syntax, err, "cannot parse query"))
	}

	if q.Kind == cql.KindUse {
		if _, err := s.executor.Catalog.Keyspace(q.Use.Keyspace); err != nil {
			return s.errorFrame(streamID, err)
		}
		s.keyspace = q.Use.Keyspace
		return s.responseFrame(streamID, message.NewSetKeyspaceResult(s.keyspace))
	}

	ctx, cancel := context.WithTimeout(context.Background(), coordinator.QueryTimeout)
	defer cancel()

	res, err := s.executor.Execute(ctx, s.keyspace, s.id, q, m.Consistency)
	if err != nil {
		return s.errorFrame(streamID, err)
	}
	return s.responseFrame(streamID, resultMessage(q, res))
}

// resultMessage renders an Executor outcome the way Cassandra's own wire
// protocol does: a plain Rows result for SELECT, a single-column [applied]
// Rows result for a conditional INSERT/UPDATE/DELETE, and Void otherwise.
func resultMessage(q *cql.Query, res *coordinator.ExecResult) *message.Result {
	if q.Kind == cql.KindSelect {
		return message.NewRowsResult(res.Columns, rowsToCells(res.Columns, res.Rows))
	}
	if isConditional(q) {
		return message.NewAppliedResult(res.Applied)
	}
	return message.NewVoidResult()
}

func isConditional(q *cql.Query) bool {
	switch q.Kind {
	case cql.KindInsert:
		return q.Insert.IfNotExists
	case cql.KindUpdate:
		return q.Update.If != nil
	case cql.KindDelete:
		return q.Delete.If != nil || q.Delete.IfExists
	default:
		return false
	}
}

func rowsToCells(columns []string, rows []storage.Row) [][]string {
	out := make([][]string, len(rows))
	for i, row := range rows {
		cells := make([]string, len(columns))
		for j, col := range columns {
			cells[j] = row[col]
		}
		out[i] = cells
	}
	return out
}

func (s *session) responseFrame(streamID int16, m message.Message) *frame.Frame {
	body, err := message.Encode(m)
	if err != nil {
		return s.errorFrame(streamID, rerrors.Wrap(rerrors.Internal, err, "cannot encode response"))
	}
	return frame.NewResponseFrame(streamID, m.GetOpCode(), body)
}

func (s *session) errorFrame(streamID int16, err error) *frame.Frame {
	m := message.NewError(err)
	body, encErr := message.Encode(m)
	if encErr != nil {
		// Encoding an ErrorMessage cannot itself fail (fixed-shape body); this
		// is unreachable in practice but still needs a frame to return.
		body = nil
	}
	return frame.NewResponseFrame(streamID, m.GetOpCode(), body)
}
