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

package message

import (
	"fmt"
	"io"

	"github.com/rusticdb/rusticdb/internal/protocol/primitive"
)

// Query carries a CQL string plus the requested consistency level: "q_len:
// u32 | q_bytes | consistency: u16 | flags: u8 | <optional fields>". No
// bind variables, paging or serial consistency are
// supported: the optional-fields flags byte is always written as 0x00 and
// ignored on decode beyond consuming it.
type Query struct {
	Query       string
	Consistency primitive.ConsistencyLevel
}

func (m *Query) IsResponse() bool            { return false }
func (m *Query) GetOpCode() primitive.OpCode { return primitive.OpCodeQuery }
func (m *Query) String() string              { return fmt.Sprintf("QUERY %q (consistency=%v)", m.Query, m.Consistency) }

func encodeQuery(m *Query, dest io.Writer) error {
	if err := primitive.WriteLongString(m.Query, dest); err != nil {
		return fmt.Errorf("cannot write query string: %w", err)
	}
	if err := primitive.WriteShort(uint16(m.Consistency), dest); err != nil {
		return fmt.Errorf("cannot write consistency level: %w", err)
	}
	if err := primitive.WriteByte(0x00, dest); err != nil {
		return fmt.Errorf("cannot write query flags: %w", err)
	}
	return nil
}

func decodeQuery(source io.Reader) (*Query, error) {
	query, err := primitive.ReadLongString(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read query string: %w", err)
	}
	consistency, err := primitive.ReadShort(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read consistency level: %w", err)
	}
	if _, err := primitive.ReadByte(source); err != nil {
		return nil, fmt.Errorf("cannot read query flags: %w", err)
	}
	return &Query{Query: query, Consistency: primitive.ConsistencyLevel(consistency)}, nil
}
