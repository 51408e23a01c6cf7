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

package compression

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLZ4RoundTrip(t *testing.T) {
	c := LZ4Compressor{}
	original := []byte("the quick brown fox jumps over the lazy dog, repeated, the quick brown fox jumps over the lazy dog")
	compressed, err := c.Compress(original)
	require.NoError(t, err)

	decompressed, err := c.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

func TestLZ4EmptyBody(t *testing.T) {
	c := LZ4Compressor{}
	compressed, err := c.Compress(nil)
	require.NoError(t, err)
	decompressed, err := c.Decompress(compressed)
	require.NoError(t, err)
	assert.Empty(t, decompressed)
}

func TestSnappyRoundTrip(t *testing.T) {
	c := SnappyCompressor{}
	original := []byte("SELECT * FROM ks.t WHERE id = 1")
	compressed, err := c.Compress(original)
	require.NoError(t, err)

	decompressed, err := c.Decompress(compressed)
	require.NoError(t, err)
	assert.Equal(t, original, decompressed)
}

func TestByName(t *testing.T) {
	_, ok := ByName("lz4")
	assert.True(t, ok)
	_, ok = ByName("Snappy")
	assert.True(t, ok)
	_, ok = ByName("gzip")
	assert.False(t, ok)
}
