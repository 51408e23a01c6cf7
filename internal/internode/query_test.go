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

func TestQueryPayloadRoundTrip(t *testing.T) {
	q := &QueryPayload{
		OpenQueryID: 42,
		ClientID:    7,
		Timestamp:   1700000000000,
		Replication: true,
		Keyspace:    "flights",
		Query:       "SELECT * FROM flights.bookings WHERE id = 1",
	}

	got, err := DecodeQueryPayload(q.Encode())
	require.NoError(t, err)
	assert.Equal(t, q, got)
}

func TestQueryPayloadRoundTripEmptyStrings(t *testing.T) {
	q := &QueryPayload{OpenQueryID: 1, ClientID: 2, Timestamp: -5, Replication: false}

	got, err := DecodeQueryPayload(q.Encode())
	require.NoError(t, err)
	assert.Equal(t, q, got)
}

func TestDecodeQueryPayloadRejectsTruncated(t *testing.T) {
	_, err := DecodeQueryPayload([]byte{0, 0, 0, 1})
	assert.Error(t, err)
}
