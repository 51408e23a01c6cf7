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

// Package internode implements the node-to-node transport: a 5-byte
// (from_ipv4, opcode) header followed by an opcode-specific payload,
// carrying Query/Response (query execution) and Gossip (membership) traffic
// over a pooled, persistent TCP connection per peer.
//
// Grounded on the request/response connection-pool shape of
// client/connection.go's clientConnectionHandler (a mutex-guarded
// map[string]*holder keyed by peer address, one entry created on demand)
// and client/server.go's one-task-per-accepted-connection accept loop,
// adapted from a client-facing to a peer-facing transport.
package internode

import (
	"encoding/binary"
	"fmt"
	"io"
	"net"
)

// OpCode tags the payload that follows a Frame's header.
type OpCode uint8

const (
	OpQuery    OpCode = 0x01
	OpResponse OpCode = 0x02
	OpGossip   OpCode = 0x03
)

func (o OpCode) String() string {
	switch o {
	case OpQuery:
		return "QUERY"
	case OpResponse:
		return "RESPONSE"
	case OpGossip:
		return "GOSSIP"
	default:
		return fmt.Sprintf("UNKNOWN(0x%02x)", uint8(o))
	}
}

// headerLen is the fixed (from_ipv4, opcode) header: 4 bytes of address
// plus 1 byte of opcode.
const headerLen = 5

// lengthPrefixLen is the outer frame-length prefix that makes frames
// length-delimited on the wire: each accepted connection runs on its own
// task reading length-delimited frames.
const lengthPrefixLen = 4

// maxFrameLen bounds a single frame's header+payload size, guarding a
// corrupt or hostile length prefix from driving an unbounded allocation.
const maxFrameLen = 64 << 20

// Frame is one internode message: a sender address, an opcode, and its
// payload bytes (already encoded by the Query/Response/gossip.Message
// codec for that opcode).
type Frame struct {
	From    net.IP
	OpCode  OpCode
	Payload []byte
}

// WriteFrame writes f to w as a 4-byte big-endian length prefix (covering
// the header and payload) followed by the header and payload themselves.
func WriteFrame(w io.Writer, f *Frame) error {
	ip4 := f.From.To4()
	if ip4 == nil {
		return fmt.Errorf("internode: %v is not an IPv4 address", f.From)
	}

	body := make([]byte, 0, headerLen+len(f.Payload))
	body = append(body, ip4...)
	body = append(body, byte(f.OpCode))
	body = append(body, f.Payload...)

	var prefix [lengthPrefixLen]byte
	binary.BigEndian.PutUint32(prefix[:], uint32(len(body)))

	if _, err := w.Write(prefix[:]); err != nil {
		return fmt.Errorf("internode: write length prefix: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return fmt.Errorf("internode: write frame body: %w", err)
	}
	return nil
}

// ReadFrame reads one length-delimited frame from r.
func ReadFrame(r io.Reader) (*Frame, error) {
	var prefix [lengthPrefixLen]byte
	if _, err := io.ReadFull(r, prefix[:]); err != nil {
		return nil, err // deliberately unwrapped: io.EOF must survive for callers to detect a closed peer
	}
	length := binary.BigEndian.Uint32(prefix[:])
	if length < headerLen {
		return nil, fmt.Errorf("internode: frame length %d shorter than header", length)
	}
	if length > maxFrameLen {
		return nil, fmt.Errorf("internode: frame length %d exceeds maximum %d", length, maxFrameLen)
	}

	body := make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return nil, fmt.Errorf("internode: read frame body: %w", err)
	}

	f := &Frame{
		From:    net.IP(append([]byte(nil), body[:4]...)),
		OpCode:  OpCode(body[4]),
		Payload: body[headerLen:],
	}
	return f, nil
}
