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

import "fmt"

// ResponseStatus tags whether a Response's content is a result or an error
// message.
type ResponseStatus uint8

const (
	StatusOk ResponseStatus = iota
	StatusError
)

// ResponsePayload is the body of an OpResponse frame: a replica answering
// a query a coordinator forwarded to it, or a node answering a QUERY it
// received but could not honor (a SchemaError, a Timeout, and so on are all
// carried as a StatusError content string rather than their own opcodes).
type ResponsePayload struct {
	OpenQueryID uint32
	Status      ResponseStatus
	Content     []byte
}

func (r *ResponsePayload) Encode() []byte {
	if len(r.Content) > 0xFFFF {
		panic(fmt.Sprintf("internode: response content length %d exceeds uint16 range", len(r.Content)))
	}
	buf := make([]byte, 0, 4+1+2+len(r.Content))
	buf = putUint32(buf, r.OpenQueryID)
	buf = append(buf, byte(r.Status))
	buf = putUint16(buf, uint16(len(r.Content)))
	buf = append(buf, r.Content...)
	return buf
}

func DecodeResponsePayload(b []byte) (*ResponsePayload, error) {
	r := &ResponsePayload{}
	var err error

	if r.OpenQueryID, b, err = readUint32(b); err != nil {
		return nil, fmt.Errorf("internode: response open_query_id: %w", err)
	}
	if len(b) < 1 {
		return nil, fmt.Errorf("internode: response status truncated")
	}
	r.Status = ResponseStatus(b[0])
	b = b[1:]

	var contentLen uint16
	if contentLen, b, err = readUint16(b); err != nil {
		return nil, fmt.Errorf("internode: response content_len: %w", err)
	}
	if int(contentLen) > len(b) {
		return nil, fmt.Errorf("internode: response content_len %d exceeds remaining %d bytes", contentLen, len(b))
	}
	r.Content = b[:contentLen]
	return r, nil
}

// RowSet is the structured row-result content carried inside a
// ResponsePayload whose Status is StatusOk: the full column set of the
// underlying table, the columns the query actually selected, the matching
// rows (each cell the string value as stored in the row file), and each row's
// stored write timestamp.
//
// Timestamps is a addition past section 4.6's row grammar: reconciling the
// same primary key reported by two different replicas (section 8's
// last-write-wins rule) needs a timestamp to compare, and a replica only
// ever has one on hand by reading it back off its own row file, so it rides
// along next to the row it describes rather than being re-derived.
type RowSet struct {
	Columns    []string
	Selected   []string
	Rows       [][]string
	Timestamps []int64
}

func (rs *RowSet) Encode() []byte {
	var buf []byte
	buf = putUint32(buf, uint32(len(rs.Columns)))
	for _, c := range rs.Columns {
		buf = putString(buf, c)
	}
	buf = putUint32(buf, uint32(len(rs.Selected)))
	for _, s := range rs.Selected {
		buf = putString(buf, s)
	}
	buf = putUint32(buf, uint32(len(rs.Rows)))
	for i, row := range rs.Rows {
		buf = putUint32(buf, uint32(len(row)))
		for _, v := range row {
			buf = putString(buf, v)
		}
		var ts int64
		if i < len(rs.Timestamps) {
			ts = rs.Timestamps[i]
		}
		buf = putInt64(buf, ts)
	}
	return buf
}

func DecodeRowSet(b []byte) (*RowSet, error) {
	rs := &RowSet{}
	var err error

	var ncols uint32
	if ncols, b, err = readUint32(b); err != nil {
		return nil, fmt.Errorf("internode: row set ncols: %w", err)
	}
	rs.Columns = make([]string, ncols)
	for i := range rs.Columns {
		if rs.Columns[i], b, err = readString(b); err != nil {
			return nil, fmt.Errorf("internode: row set column %d: %w", i, err)
		}
	}

	var nsel uint32
	if nsel, b, err = readUint32(b); err != nil {
		return nil, fmt.Errorf("internode: row set nsel: %w", err)
	}
	rs.Selected = make([]string, nsel)
	for i := range rs.Selected {
		if rs.Selected[i], b, err = readString(b); err != nil {
			return nil, fmt.Errorf("internode: row set selected %d: %w", i, err)
		}
	}

	var nrows uint32
	if nrows, b, err = readUint32(b); err != nil {
		return nil, fmt.Errorf("internode: row set nrows: %w", err)
	}
	rs.Rows = make([][]string, nrows)
	rs.Timestamps = make([]int64, nrows)
	for i := range rs.Rows {
		var nvals uint32
		if nvals, b, err = readUint32(b); err != nil {
			return nil, fmt.Errorf("internode: row set row %d nvals: %w", i, err)
		}
		row := make([]string, nvals)
		for j := range row {
			if row[j], b, err = readString(b); err != nil {
				return nil, fmt.Errorf("internode: row set row %d value %d: %w", i, j, err)
			}
		}
		rs.Rows[i] = row
		if rs.Timestamps[i], b, err = readInt64(b); err != nil {
			return nil, fmt.Errorf("internode: row set row %d timestamp: %w", i, err)
		}
	}
	return rs, nil
}
