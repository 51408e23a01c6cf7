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
	"encoding/binary"
	"fmt"
)

// QueryPayload is the body of an OpQuery frame: a coordinator forwarding a
// single statement to a replica for local execution. Replication is a
// single byte because it only tells the replica whether it holds this write
// as a replica copy (stored under the replication directory) rather than as
// the owner's primary copy; it is never a count, and the replica does not
// forward the write any further.
type QueryPayload struct {
	OpenQueryID uint32
	ClientID    uint32
	Timestamp   int64
	Replication bool
	Keyspace    string
	Query       string
}

func (q *QueryPayload) Encode() []byte {
	buf := make([]byte, 0, 4+4+8+1+4+len(q.Keyspace)+4+len(q.Query))
	buf = putUint32(buf, q.OpenQueryID)
	buf = putUint32(buf, q.ClientID)
	buf = putInt64(buf, q.Timestamp)
	buf = append(buf, boolByte(q.Replication))
	buf = putString(buf, q.Keyspace)
	buf = putString(buf, q.Query)
	return buf
}

func DecodeQueryPayload(b []byte) (*QueryPayload, error) {
	q := &QueryPayload{}
	var err error

	if q.OpenQueryID, b, err = readUint32(b); err != nil {
		return nil, fmt.Errorf("internode: query open_query_id: %w", err)
	}
	if q.ClientID, b, err = readUint32(b); err != nil {
		return nil, fmt.Errorf("internode: query client_id: %w", err)
	}
	if q.Timestamp, b, err = readInt64(b); err != nil {
		return nil, fmt.Errorf("internode: query timestamp: %w", err)
	}
	if len(b) < 1 {
		return nil, fmt.Errorf("internode: query replication flag truncated")
	}
	q.Replication = b[0] != 0
	b = b[1:]
	if q.Keyspace, b, err = readString(b); err != nil {
		return nil, fmt.Errorf("internode: query keyspace: %w", err)
	}
	if q.Query, _, err = readString(b); err != nil {
		return nil, fmt.Errorf("internode: query text: %w", err)
	}
	return q, nil
}

func boolByte(b bool) byte {
	if b {
		return 1
	}
	return 0
}

func putInt64(buf []byte, v int64) []byte {
	var tmp [8]byte
	binary.BigEndian.PutUint64(tmp[:], uint64(v))
	return append(buf, tmp[:]...)
}

func readInt64(b []byte) (int64, []byte, error) {
	if len(b) < 8 {
		return 0, nil, fmt.Errorf("internode: need 8 bytes, have %d", len(b))
	}
	return int64(binary.BigEndian.Uint64(b[:8])), b[8:], nil
}

func putString(buf []byte, s string) []byte {
	buf = putUint32(buf, uint32(len(s)))
	return append(buf, s...)
}

func readString(b []byte) (string, []byte, error) {
	n, b, err := readUint32(b)
	if err != nil {
		return "", nil, err
	}
	if uint32(len(b)) < n {
		return "", nil, fmt.Errorf("internode: string length %d exceeds remaining %d bytes", n, len(b))
	}
	return string(b[:n]), b[n:], nil
}
