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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResponsePayloadRoundTripOk(t *testing.T) {
	rs := &RowSet{
		Columns:    []string{"id", "name", "age"},
		Selected:   []string{"id", "name"},
		Rows:       [][]string{{"1", "ana"}, {"2", "beto"}},
		Timestamps: []int64{1000, 2000},
	}
	r := &ResponsePayload{OpenQueryID: 9, Status: StatusOk, Content: rs.Encode()}

	got, err := DecodeResponsePayload(r.Encode())
	require.NoError(t, err)
	assert.Equal(t, r.OpenQueryID, got.OpenQueryID)
	assert.Equal(t, r.Status, got.Status)

	gotRS, err := DecodeRowSet(got.Content)
	require.NoError(t, err)
	assert.Equal(t, rs, gotRS)
}

func TestResponsePayloadRoundTripError(t *testing.T) {
	r := &ResponsePayload{OpenQueryID: 3, Status: StatusError, Content: []byte("unavailable:not enough replicas")}

	got, err := DecodeResponsePayload(r.Encode())
	require.NoError(t, err)
	assert.Equal(t, StatusError, got.Status)
	assert.Equal(t, []byte("unavailable:not enough replicas"), got.Content)
}

func TestRowSetRoundTripEmpty(t *testing.T) {
	rs := &RowSet{}
	got, err := DecodeRowSet(rs.Encode())
	require.NoError(t, err)
	assert.Empty(t, got.Columns)
	assert.Empty(t, got.Selected)
	assert.Empty(t, got.Rows)
}

func TestDecodeResponsePayloadRejectsTruncatedContent(t *testing.T) {
	r := &ResponsePayload{OpenQueryID: 1, Status: StatusOk, Content: []byte("abc")}
	encoded := r.Encode()
	_, err := DecodeResponsePayload(encoded[:len(encoded)-1])
	assert.Error(t, err)
}
