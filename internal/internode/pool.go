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
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/rusticdb/rusticdb/internal/gossip"
)

// DialTimeout bounds how long a pooled connection attempt may take before
// the caller's send fails.
const DialTimeout = 5 * time.Second

// conn wraps one persistent, full-duplex connection to a peer. Writes are
// serialized by mu; exchange additionally serializes send-then-receive so
// that the single reply read off the wire after a write is unambiguously
// that write's answer, matching the pool's "at most one connection per
// peer, one exchange at a time" contract. This
// collapses the reference design's separate reader task into the sender's
// own goroutine, which is safe here because a peer never pushes an
// internode frame that isn't a reply to something this side just sent.
type conn struct {
	mu sync.Mutex
	nc net.Conn
	ip net.IP
}

func (c *conn) exchange(from net.IP, op OpCode, payload []byte) (*Frame, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if err := WriteFrame(c.nc, &Frame{From: from, OpCode: op, Payload: payload}); err != nil {
		return nil, err
	}
	return ReadFrame(c.nc)
}

func (c *conn) close() error {
	return c.nc.Close()
}

// Pool is a mutex-guarded map of one conn per peer address, created on
// demand and reused across sends; a broken connection is discarded and
// redialed on the next send. Grounded on client/connection.go's
// clientConnectionHandler, adapted from an accept-side registry of
// inbound client connections into a dial-side registry of outbound peer
// connections.
type Pool struct {
	self net.IP
	port string
	log  zerolog.Logger

	mu    sync.Mutex
	conns map[string]*conn
}

// NewPool builds a connection pool that dials peers on DefaultPort. Tests
// that need an ephemeral listener construct a Pool and then overwrite its
// port field via WithPort.
func NewPool(self net.IP, log zerolog.Logger) *Pool {
	return &Pool{
		self:  self,
		port:  DefaultPort,
		log:   log,
		conns: make(map[string]*conn),
	}
}

// WithPort overrides the port peers are dialed on, for tests that bind an
// ephemeral listener instead of the well-known internode port.
func (p *Pool) WithPort(port string) *Pool {
	p.port = port
	return p
}

func (p *Pool) acquire(peer net.IP) (*conn, error) {
	key := peer.String()

	p.mu.Lock()
	c, ok := p.conns[key]
	p.mu.Unlock()
	if ok {
		return c, nil
	}

	nc, err := net.DialTimeout("tcp", net.JoinHostPort(peer.String(), p.port), DialTimeout)
	if err != nil {
		return nil, fmt.Errorf("internode: dial %s: %w", peer, err)
	}
	c = &conn{nc: nc, ip: peer}

	p.mu.Lock()
	if existing, ok := p.conns[key]; ok {
		// A concurrent send dialed first; keep its connection.
		p.mu.Unlock()
		_ = nc.Close()
		return existing, nil
	}
	p.conns[key] = c
	p.mu.Unlock()
	return c, nil
}

func (p *Pool) discard(peer net.IP, c *conn) {
	p.mu.Lock()
	if p.conns[peer.String()] == c {
		delete(p.conns, peer.String())
	}
	p.mu.Unlock()
	_ = c.close()
}

// Send delivers one frame to peer and returns its reply. A transient
// failure (dial or write/read error) is retried exactly once against a
// freshly dialed connection; a second failure is reported to the caller,
// who treats the replica as failed for this query.
func (p *Pool) Send(ctx context.Context, peer net.IP, op OpCode, payload []byte) (*Frame, error) {
	reply, err := p.trySend(peer, op, payload)
	if err == nil {
		return reply, nil
	}
	p.log.Debug().Err(err).Str("peer", peer.String()).Msg("internode send failed, retrying once")
	return p.trySend(peer, op, payload)
}

func (p *Pool) trySend(peer net.IP, op OpCode, payload []byte) (*Frame, error) {
	c, err := p.acquire(peer)
	if err != nil {
		return nil, err
	}
	reply, err := c.exchange(p.self, op, payload)
	if err != nil {
		p.discard(peer, c)
		return nil, err
	}
	return reply, nil
}

// SendGossip implements gossip.Sender by framing msg as an OpGossip
// exchange and decoding the peer's reply back into a gossip.Message. An
// empty reply payload, the peer's answer to an Ack2, yields a nil Message.
func (p *Pool) SendGossip(ctx context.Context, peer net.IP, msg *gossip.Message) (*gossip.Message, error) {
	payload, err := msg.Encode()
	if err != nil {
		return nil, fmt.Errorf("internode: encode gossip message: %w", err)
	}

	frame, err := p.Send(ctx, peer, OpGossip, payload)
	if err != nil {
		return nil, err
	}
	if frame.OpCode != OpGossip {
		return nil, fmt.Errorf("internode: expected gossip reply, got opcode %v", frame.OpCode)
	}
	if len(frame.Payload) == 0 {
		return nil, nil
	}
	return gossip.DecodeMessage(frame.Payload)
}

// Close shuts down every pooled connection.
func (p *Pool) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()
	for key, c := range p.conns {
		_ = c.close()
		delete(p.conns, key)
	}
}

// DefaultPort is the well-known internode listener port.
const DefaultPort = "9161"
