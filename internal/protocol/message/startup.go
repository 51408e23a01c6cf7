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

// Startup is the first message a client must send; the node rejects any
// other opcode before it arrives. Recognized Options keys: CQL_VERSION
// (informational) and COMPRESSION
// (one of "LZ4"/"SNAPPY", negotiating package compression for every frame
// after Ready).
type Startup struct {
	Options map[string]string
}

func (m *Startup) IsResponse() bool            { return false }
func (m *Startup) GetOpCode() primitive.OpCode { return primitive.OpCodeStartup }
func (m *Startup) String() string              { return fmt.Sprintf("STARTUP %v", m.Options) }

// Compression returns the negotiated COMPRESSION option, if any.
func (m *Startup) Compression() (string, bool) {
	c, ok := m.Options["COMPRESSION"]
	return c, ok
}

func encodeStartup(m *Startup, dest io.Writer) error {
	return primitive.WriteStringMap(m.Options, dest)
}

func decodeStartup(source io.Reader) (*Startup, error) {
	options, err := primitive.ReadStringMap(source)
	if err != nil {
		return nil, err
	}
	return &Startup{Options: options}, nil
}
