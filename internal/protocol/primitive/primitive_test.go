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

package primitive

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestByteRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteByte(0x42, &buf))
	got, err := ReadByte(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint8(0x42), got)
}

func TestShortRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteShort(0xBEEF, &buf))
	got, err := ReadShort(&buf)
	require.NoError(t, err)
	assert.Equal(t, uint16(0xBEEF), got)
}

func TestIntRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteInt(-12345, &buf))
	got, err := ReadInt(&buf)
	require.NoError(t, err)
	assert.Equal(t, int32(-12345), got)
}

func TestLongRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteLong(1<<40, &buf))
	got, err := ReadLong(&buf)
	require.NoError(t, err)
	assert.Equal(t, int64(1<<40), got)
}

func TestStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteString("hello", &buf))
	got, err := ReadString(&buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", got)
}

func TestLongStringRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	q := "SELECT * FROM ks.t WHERE id = 1"
	require.NoError(t, WriteLongString(q, &buf))
	got, err := ReadLongString(&buf)
	require.NoError(t, err)
	assert.Equal(t, q, got)
}

func TestBytesRoundTripNilIsNull(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBytes(nil, &buf))
	got, err := ReadBytes(&buf)
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestBytesRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteBytes([]byte("payload"), &buf))
	got, err := ReadBytes(&buf)
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)
}

func TestStringMapRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	m := map[string]string{"CQL_VERSION": "3.0.0", "COMPRESSION": "LZ4"}
	require.NoError(t, WriteStringMap(m, &buf))
	got, err := ReadStringMap(&buf)
	require.NoError(t, err)
	assert.Equal(t, m, got)
}

func TestConsistencyLevelReplicaCount(t *testing.T) {
	assert.Equal(t, 1, ConsistencyLevelOne.ReplicaCount(3))
	assert.Equal(t, 3, ConsistencyLevelAll.ReplicaCount(3))
	assert.Equal(t, 2, ConsistencyLevelQuorum.ReplicaCount(3))
	assert.Equal(t, 2, ConsistencyLevelLocalQuorum.ReplicaCount(3))
}

func TestOpCodeIsResponse(t *testing.T) {
	assert.False(t, OpCodeStartup.IsResponse())
	assert.False(t, OpCodeQuery.IsResponse())
	assert.True(t, OpCodeReady.IsResponse())
	assert.True(t, OpCodeResult.IsResponse())
	assert.True(t, OpCodeError.IsResponse())
}
