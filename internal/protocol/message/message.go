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

// Package message implements the five frame bodies the client protocol
// needs: Startup, Ready, Error, Query and Result.
// Grounded on the teacher's message package: each type is a plain struct
// satisfying Message, paired with free Encode/Decode functions rather than
// the teacher's pluggable per-opcode codec registry, since this node's
// opcode set is fixed and small.
package message

import (
	"bytes"
	"fmt"

	"github.com/rusticdb/rusticdb/internal/protocol/primitive"
)

// Message is satisfied by every frame body type.
type Message interface {
	IsResponse() bool
	GetOpCode() primitive.OpCode
	String() string
}

// Encode renders msg's body bytes for the given opcode.
func Encode(msg Message) ([]byte, error) {
	var buf bytes.Buffer
	var err error
	switch m := msg.(type) {
	case *Startup:
		err = encodeStartup(m, &buf)
	case *Ready:
		// no body
	case *ErrorMessage:
		err = encodeError(m, &buf)
	case *Query:
		err = encodeQuery(m, &buf)
	case *Result:
		err = encodeResult(m, &buf)
	default:
		return nil, fmt.Errorf("cannot encode unknown message type %T", msg)
	}
	if err != nil {
		return nil, fmt.Errorf("cannot encode %v: %w", msg.GetOpCode(), err)
	}
	return buf.Bytes(), nil
}

// Decode parses body into the Message type opCode identifies.
func Decode(opCode primitive.OpCode, body []byte) (Message, error) {
	r := bytes.NewReader(body)
	switch opCode {
	case primitive.OpCodeStartup:
		return decodeStartup(r)
	case primitive.OpCodeReady:
		return &Ready{}, nil
	case primitive.OpCodeError:
		return decodeError(r)
	case primitive.OpCodeQuery:
		return decodeQuery(r)
	case primitive.OpCodeResult:
		return decodeResult(r)
	default:
		return nil, fmt.Errorf("cannot decode unknown opcode %v", opCode)
	}
}
