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
	"sync"
	"sync/atomic"

	"github.com/rs/zerolog"
)

// Handler answers one incoming frame with the payload of the Response or
// Gossip frame to send back. It must not block on further network I/O: no
// table or catalog lock may be held across a network call, and a Handler is
// invoked with that same constraint in mind.
type Handler func(ctx context.Context, from net.IP, op OpCode, payload []byte) (OpCode, []byte, error)

const (
	serverNotStarted int32 = iota
	serverRunning
	serverClosed
)

// Server accepts peer connections and dispatches each incoming frame to
// Handler, replying on the same connection. Grounded on
// client/server.go's CqlServer accept loop, adapted from per-client
// request/response handling to per-peer frame handling: each accepted
// connection gets its own goroutine that loops reading a frame, invoking
// Handler, and writing the reply frame back, until the peer disconnects.
type Server struct {
	ListenAddress string
	Handler       Handler
	Log           zerolog.Logger

	listener net.Listener
	wg       sync.WaitGroup
	state    int32
}

func NewServer(listenAddress string, handler Handler, log zerolog.Logger) *Server {
	return &Server{ListenAddress: listenAddress, Handler: handler, Log: log}
}

func (s *Server) IsRunning() bool {
	return atomic.LoadInt32(&s.state) == serverRunning
}

func (s *Server) transition(from, to int32) bool {
	return atomic.CompareAndSwapInt32(&s.state, from, to)
}

// Start binds the listen address and begins accepting connections in the
// background. It returns once the listener is bound; Accept failures are
// logged and do not propagate past Start.
func (s *Server) Start(ctx context.Context) error {
	if !s.transition(serverNotStarted, serverRunning) {
		return nil
	}
	ln, err := net.Listen("tcp", s.ListenAddress)
	if err != nil {
		s.transition(serverRunning, serverClosed)
		return err
	}
	s.listener = ln
	s.acceptLoop(ctx)
	return nil
}

func (s *Server) acceptLoop(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		var mu sync.Mutex
		open := make(map[net.Conn]struct{})
		// Closing the accepted connections on the way out unblocks serve
		// goroutines parked reading an idle connection, so Close can return.
		defer func() {
			mu.Lock()
			for nc := range open {
				_ = nc.Close()
			}
			mu.Unlock()
		}()
		for s.IsRunning() {
			nc, err := s.listener.Accept()
			if err != nil {
				if s.IsRunning() {
					s.Log.Error().Err(err).Msg("internode: accept failed, stopping server")
				}
				return
			}
			mu.Lock()
			open[nc] = struct{}{}
			mu.Unlock()
			s.wg.Add(1)
			go func() {
				s.serve(ctx, nc)
				mu.Lock()
				delete(open, nc)
				mu.Unlock()
			}()
		}
	}()
}

func (s *Server) serve(ctx context.Context, nc net.Conn) {
	defer s.wg.Done()
	defer nc.Close()

	for s.IsRunning() {
		frame, err := ReadFrame(nc)
		if err != nil {
			return // peer closed or the stream is corrupt; either way this connection is done
		}

		replyOp, replyPayload, err := s.Handler(ctx, frame.From, frame.OpCode, frame.Payload)
		if err != nil {
			s.Log.Debug().Err(err).Str("peer", frame.From.String()).Msg("internode: handler error")
			continue
		}
		if err := WriteFrame(nc, &Frame{From: localAddrIP(nc), OpCode: replyOp, Payload: replyPayload}); err != nil {
			s.Log.Debug().Err(err).Msg("internode: write reply failed")
			return
		}
	}
}

func localAddrIP(nc net.Conn) net.IP {
	if tcpAddr, ok := nc.LocalAddr().(*net.TCPAddr); ok {
		return tcpAddr.IP
	}
	return net.IPv4zero
}

// Close stops accepting new connections, closes the accepted ones, and
// waits for in-flight handlers to finish.
func (s *Server) Close() error {
	if !s.transition(serverRunning, serverClosed) {
		return nil
	}
	err := s.listener.Close()
	s.wg.Wait()
	return err
}
