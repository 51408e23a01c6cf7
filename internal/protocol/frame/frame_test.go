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

package frame

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rusticdb/rusticdb/internal/protocol/primitive"
)

func TestHeaderRoundTrip(t *testing.T) {
	h := &Header{Version: RequestVersion, Flags: 0, StreamId: 7, OpCode: primitive.OpCodeQuery, BodyLength: 42}
	var buf bytes.Buffer
	require.NoError(t, EncodeHeader(h, &buf))
	assert.Equal(t, HeaderLength, buf.Len())

	got, err := DecodeHeader(&buf)
	require.NoError(t, err)
	assert.Equal(t, h, got)
}

func TestWriteReadFrameUncompressed(t *testing.T) {
	f := NewRequestFrame(3, primitive.OpCodeQuery, []byte("body bytes"))
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(f, &buf, nil))

	got, err := ReadFrame(&buf, nil)
	require.NoError(t, err)
	assert.Equal(t, f.Header.StreamId, got.Header.StreamId)
	assert.Equal(t, f.Body, got.Body)
	assert.False(t, got.Header.Flags.Has(FlagCompressed))
}

func TestWriteReadFrameCompressed(t *testing.T) {
	body := []byte("round trips through a fake compressor")
	identity := func(b []byte) ([]byte, error) { return append([]byte(nil), b...), nil }

	f := NewResponseFrame(3, primitive.OpCodeResult, body)
	var buf bytes.Buffer
	require.NoError(t, WriteFrame(f, &buf, identity))

	got, err := ReadFrame(&buf, identity)
	require.NoError(t, err)
	assert.Equal(t, body, got.Body)
	assert.True(t, got.Header.Flags.Has(FlagCompressed))
}

func TestStartupAndReadyNeverCompressed(t *testing.T) {
	assert.False(t, isCompressible(primitive.OpCodeStartup))
	assert.False(t, isCompressible(primitive.OpCodeReady))
	assert.True(t, isCompressible(primitive.OpCodeQuery))
	assert.True(t, isCompressible(primitive.OpCodeResult))
	assert.True(t, isCompressible(primitive.OpCodeError))
}

func TestReadFrameRejectsUnnegotiatedCompression(t *testing.T) {
	f := NewRequestFrame(1, primitive.OpCodeQuery, []byte("x"))
	f.Header.Flags |= FlagCompressed
	var buf bytes.Buffer
	require.NoError(t, EncodeHeader(f.Header, &buf))
	buf.Write(f.Body)

	_, err := ReadFrame(&buf, nil)
	assert.Error(t, err)
}

func TestDump(t *testing.T) {
	f := NewRequestFrame(1, primitive.OpCodeStartup, nil)
	hex, err := f.Dump()
	require.NoError(t, err)
	assert.Len(t, hex, HeaderLength*2)
}
