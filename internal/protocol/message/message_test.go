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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusticdb/rusticdb/internal/protocol/primitive"
	"github.com/rusticdb/rusticdb/internal/rerrors"
)

func roundTrip(t *testing.T, opCode primitive.OpCode, msg Message) Message {
	t.Helper()
	body, err := Encode(msg)
	require.NoError(t, err)
	got, err := Decode(opCode, body)
	require.NoError(t, err)
	return got
}

func TestStartupRoundTrip(t *testing.T) {
	m := &Startup{Options: map[string]string{"CQL_VERSION": "3.0.0", "COMPRESSION": "LZ4"}}
	got := roundTrip(t, primitive.OpCodeStartup, m)
	decoded := got.(*Startup)
	assert.Equal(t, m.Options, decoded.Options)
	alg, ok := decoded.Compression()
	assert.True(t, ok)
	assert.Equal(t, "LZ4", alg)
}

func TestReadyRoundTrip(t *testing.T) {
	body, err := Encode(&Ready{})
	require.NoError(t, err)
	assert.Empty(t, body)
	got, err := Decode(primitive.OpCodeReady, body)
	require.NoError(t, err)
	assert.IsType(t, &Ready{}, got)
}

func TestErrorRoundTrip(t *testing.T) {
	err := rerrors.New(rerrors.Schema, `unknown table "t"`)
	m := NewError(err)
	got := roundTrip(t, primitive.OpCodeError, m)
	decoded := got.(*ErrorMessage)
	assert.Equal(t, ErrorCodeConfigError, decoded.Code)
	assert.Contains(t, decoded.Text, "Schema")
}

func TestQueryRoundTrip(t *testing.T) {
	m := &Query{Query: "SELECT * FROM ks.t", Consistency: primitive.ConsistencyLevelQuorum}
	got := roundTrip(t, primitive.OpCodeQuery, m)
	decoded := got.(*Query)
	assert.Equal(t, m.Query, decoded.Query)
	assert.Equal(t, m.Consistency, decoded.Consistency)
}

func TestVoidResultRoundTrip(t *testing.T) {
	got := roundTrip(t, primitive.OpCodeResult, NewVoidResult())
	decoded := got.(*Result)
	assert.Equal(t, KindVoid, decoded.Kind)
}

func TestRowsResultRoundTrip(t *testing.T) {
	m := NewRowsResult([]string{"id", "name"}, [][]string{{"1", "alice"}, {"2", "bob"}})
	got := roundTrip(t, primitive.OpCodeResult, m)
	decoded := got.(*Result)
	require.Equal(t, KindRows, decoded.Kind)
	assert.Equal(t, m.Rows.Columns, decoded.Rows.Columns)
	assert.Equal(t, m.Rows.Rows, decoded.Rows.Rows)
}

func TestSetKeyspaceResultRoundTrip(t *testing.T) {
	got := roundTrip(t, primitive.OpCodeResult, NewSetKeyspaceResult("ks"))
	decoded := got.(*Result)
	require.Equal(t, KindSetKeyspace, decoded.Kind)
	assert.Equal(t, "ks", decoded.SetKeyspace.Keyspace)
}

func TestAppliedResult(t *testing.T) {
	got := roundTrip(t, primitive.OpCodeResult, NewAppliedResult(false))
	decoded := got.(*Result)
	require.Equal(t, KindRows, decoded.Kind)
	assert.Equal(t, []string{"[applied]"}, decoded.Rows.Columns)
	assert.Equal(t, "false", decoded.Rows.Rows[0][0])
}
