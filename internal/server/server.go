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

// Package server runs the client-facing protocol listener: accept a TCP
// connection, require STARTUP before anything else, then decode QUERY
// frames and hand each one to a coordinator.Executor,
// replying with RESULT or ERROR. Grounded on client/server.go's CqlServer,
// adapted from its handler-chain/context-attribute design (built for a
// test double answering arbitrary canned responses) to a single fixed
// dispatch: every node speaks exactly one protocol, so there is no need
// for pluggable per-opcode handlers.
package server

import (
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/rusticdb/rusticdb/internal/coordinator"
)

const (
	stateNotStarted int32 = iota
	stateRunning
	stateClosed
)

// DefaultIdleTimeout closes a connection that has sent no frame in this
// long, the way client/server.go's CqlServer.IdleTimeout does for its test
// double connections.
const DefaultIdleTimeout = time.Hour

// Server accepts client connections and runs one session goroutine per
// accepted connection.
type Server struct {
	ListenAddress string
	Executor      *coordinator.Executor
	IdleTimeout   time.Duration
	Log           zerolog.Logger

	listener net.Listener
	wg       sync.WaitGroup
	state    int32
	nextConn uint32
}

func New(listenAddress string, executor *coordinator.Executor, log zerolog.Logger) *Server {
	return &Server{
		ListenAddress: listenAddress,
		Executor:      executor,
		IdleTimeout:   DefaultIdleTimeout,
		Log:           log,
	}
}

func (s *Server) IsRunning() bool {
	return atomic.LoadInt32(&s.state) == stateRunning
}

func (s *Server) transition(from, to int32) bool {
	return atomic.CompareAndSwapInt32(&s.state, from, to)
}

// Start binds the listen address and begins accepting connections in the
// background, returning once the listener is bound.
func (s *Server) Start() error {
	if !s.transition(stateNotStarted, stateRunning) {
		return nil
	}
	ln, err := net.Listen("tcp", s.ListenAddress)
	if err != nil {
		s.transition(stateRunning, stateClosed)
		return err
	}
	s.listener = ln
	s.acceptLoop()
	return nil
}

func (s *Server) acceptLoop() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		for s.IsRunning() {
			nc, err := s.listener.Accept()
			if err != nil {
				if s.IsRunning() {
					s.Log.Error().Err(err).Msg("client server: accept failed, stopping")
				}
				return
			}
			id := atomic.AddUint32(&s.nextConn, 1)
			sess := newSession(id, nc, s.Executor, s.IdleTimeout, s.Log)
			s.wg.Add(1)
			go func() {
				defer s.wg.Done()
				sess.run()
			}()
		}
	}()
}

// Close stops accepting new connections and waits for in-flight sessions
// to finish.
func (s *Server) Close() error {
	if !s.transition(stateRunning, stateClosed) {
		return nil
	}
	err := s.listener.Close()
	s.wg.Wait()
	return err
}
