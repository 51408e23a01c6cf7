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

package internode

import (
	"context"
	"net"
	"strconv"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusticdb/rusticdb/internal/gossip"
)

func startEchoServer(t *testing.T, handler Handler) (port string, srv *Server) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	port = strconv.Itoa(ln.Addr().(*net.TCPAddr).Port)
	require.NoError(t, ln.Close())

	srv = NewServer("127.0.0.1:"+port, handler, zerolog.Nop())
	require.NoError(t, srv.Start(context.Background()))
	time.Sleep(10 * time.Millisecond) // let the accept loop actually bind before a test dials it
	return port, srv
}

func TestPoolSendReceivesHandlerReply(t *testing.T) {
	port, srv := startEchoServer(t, func(ctx context.Context, from net.IP, op OpCode, payload []byte) (OpCode, []byte, error) {
		return OpResponse, append([]byte("echo:"), payload...), nil
	})
	defer srv.Close()

	pool := NewPool(net.ParseIP("127.0.0.1"), zerolog.Nop()).WithPort(port)
	defer pool.Close()

	frame, err := pool.Send(context.Background(), net.ParseIP("127.0.0.1"), OpQuery, []byte("hi"))
	require.NoError(t, err)
	assert.Equal(t, OpResponse, frame.OpCode)
	assert.Equal(t, []byte("echo:hi"), frame.Payload)
}

func TestPoolReusesConnectionAcrossSends(t *testing.T) {
	var seen []string
	port, srv := startEchoServer(t, func(ctx context.Context, from net.IP, op OpCode, payload []byte) (OpCode, []byte, error) {
		seen = append(seen, string(payload))
		return OpResponse, nil, nil
	})
	defer srv.Close()

	pool := NewPool(net.ParseIP("127.0.0.1"), zerolog.Nop()).WithPort(port)
	defer pool.Close()

	peer := net.ParseIP("127.0.0.1")
	_, err := pool.Send(context.Background(), peer, OpQuery, []byte("a"))
	require.NoError(t, err)
	_, err = pool.Send(context.Background(), peer, OpQuery, []byte("b"))
	require.NoError(t, err)

	pool.mu.Lock()
	connCount := len(pool.conns)
	pool.mu.Unlock()
	assert.Equal(t, 1, connCount)
	assert.Equal(t, []string{"a", "b"}, seen)
}

func TestPoolRetriesOnceAfterBrokenConnection(t *testing.T) {
	port, srv := startEchoServer(t, func(ctx context.Context, from net.IP, op OpCode, payload []byte) (OpCode, []byte, error) {
		return OpResponse, []byte("ok"), nil
	})

	pool := NewPool(net.ParseIP("127.0.0.1"), zerolog.Nop()).WithPort(port)
	defer pool.Close()

	peer := net.ParseIP("127.0.0.1")
	_, err := pool.Send(context.Background(), peer, OpQuery, []byte("warm"))
	require.NoError(t, err)

	require.NoError(t, srv.Close())
	port2, srv2 := startEchoServer(t, func(ctx context.Context, from net.IP, op OpCode, payload []byte) (OpCode, []byte, error) {
		return OpResponse, []byte("ok2"), nil
	})
	defer srv2.Close()
	pool.WithPort(port2)

	frame, err := pool.Send(context.Background(), peer, OpQuery, []byte("after restart"))
	require.NoError(t, err)
	assert.Equal(t, []byte("ok2"), frame.Payload)
}

func TestSendGossipRoundTripsThroughServer(t *testing.T) {
	table := make(gossip.Table)
	port, srv := startEchoServer(t, func(ctx context.Context, from net.IP, op OpCode, payload []byte) (OpCode, []byte, error) {
		msg, err := gossip.DecodeMessage(payload)
		if err != nil {
			return 0, nil, err
		}
		ack := gossip.HandleSyn(msg.Syn, table)
		reply, err := gossip.NewMessage(net.ParseIP("127.0.0.1"), ack)
		if err != nil {
			return 0, nil, err
		}
		body, err := reply.Encode()
		if err != nil {
			return 0, nil, err
		}
		return OpGossip, body, nil
	})
	defer srv.Close()

	pool := NewPool(net.ParseIP("10.0.0.5"), zerolog.Nop()).WithPort(port)
	defer pool.Close()

	syn := gossip.NewSyn([]gossip.Digest{gossip.NewDigest(net.ParseIP("10.0.0.5"), gossip.HeartbeatState{Generation: 1, Version: 1})})
	msg, err := gossip.NewMessage(net.ParseIP("10.0.0.5"), syn)
	require.NoError(t, err)

	reply, err := pool.SendGossip(context.Background(), net.ParseIP("127.0.0.1"), msg)
	require.NoError(t, err)
	require.NotNil(t, reply.Ack)
}
