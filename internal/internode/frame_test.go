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
	"bytes"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFrameRoundTrip(t *testing.T) {
	var buf bytes.Buffer
	f := &Frame{From: net.ParseIP("10.0.0.1").To4(), OpCode: OpQuery, Payload: []byte("hello")}

	require.NoError(t, WriteFrame(&buf, f))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.True(t, net.ParseIP("10.0.0.1").Equal(got.From))
	assert.Equal(t, OpQuery, got.OpCode)
	assert.Equal(t, []byte("hello"), got.Payload)
}

func TestFrameRoundTripEmptyPayload(t *testing.T) {
	var buf bytes.Buffer
	f := &Frame{From: net.ParseIP("127.0.0.1").To4(), OpCode: OpResponse, Payload: nil}

	require.NoError(t, WriteFrame(&buf, f))

	got, err := ReadFrame(&buf)
	require.NoError(t, err)
	assert.Equal(t, OpResponse, got.OpCode)
	assert.Empty(t, got.Payload)
}

func TestWriteFrameRejectsNonIPv4(t *testing.T) {
	var buf bytes.Buffer
	f := &Frame{From: net.ParseIP("::1"), OpCode: OpQuery, Payload: nil}
	assert.Error(t, WriteFrame(&buf, f))
}

func TestReadFrameRejectsOversizeLength(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	prefix[0] = 0xFF // length far beyond maxFrameLen
	buf.Write(prefix[:])
	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}

func TestReadFrameRejectsTruncatedHeader(t *testing.T) {
	var buf bytes.Buffer
	var prefix [4]byte
	prefix[3] = 3 // shorter than headerLen
	buf.Write(prefix[:])
	buf.Write([]byte{1, 2, 3})
	_, err := ReadFrame(&buf)
	assert.Error(t, err)
}
