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

// Package compression implements the two body-compression algorithms a
// client may request in STARTUP's COMPRESSION option. Wire compression is
// a transport concern distinct from stored-data compression, which this
// module does not do. Grounded on compression/compressor.go's
// MessageCompressor interface and its lz4/snappy sub-packages.
package compression

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"

	"github.com/golang/snappy"
	"github.com/pierrec/lz4/v4"
)

// Algorithm names as they appear in STARTUP's COMPRESSION option value.
const (
	AlgorithmLZ4    = "LZ4"
	AlgorithmSnappy = "SNAPPY"
)

// Compressor compresses and decompresses a frame body. Satisfied by
// LZ4Compressor and SnappyCompressor.
type Compressor interface {
	Algorithm() string
	Compress(uncompressed []byte) ([]byte, error)
	Decompress(compressed []byte) ([]byte, error)
}

// ByName resolves the COMPRESSION STARTUP option value (case-insensitive)
// to a Compressor, or reports ok=false for an unrecognized name.
func ByName(name string) (Compressor, bool) {
	switch strings.ToUpper(name) {
	case AlgorithmLZ4:
		return LZ4Compressor{}, true
	case AlgorithmSnappy:
		return SnappyCompressor{}, true
	default:
		return nil, false
	}
}

// LZ4Compressor satisfies Compressor for the LZ4 algorithm.
//
// Cassandra expects lz4-compressed bodies to start with a 4-byte integer
// holding the decompressed message length; github.com/pierrec/lz4/v4 does
// not add that itself, so it is prepended/consumed by hand here, the same
// workaround compression/lz4/lz4.go applies.
type LZ4Compressor struct{}

func (LZ4Compressor) Algorithm() string { return AlgorithmLZ4 }

func (LZ4Compressor) Compress(uncompressed []byte) ([]byte, error) {
	maxCompressedSize := lz4.CompressBlockBound(len(uncompressed))
	compressed := make([]byte, maxCompressedSize+4)
	binary.BigEndian.PutUint32(compressed, uint32(len(uncompressed)))
	written, err := lz4.CompressBlock(uncompressed, compressed[4:], nil)
	if err != nil {
		return nil, fmt.Errorf("cannot lz4-compress body: %w", err)
	}
	return compressed[:written+4], nil
}

func (LZ4Compressor) Decompress(compressed []byte) ([]byte, error) {
	source := bytes.NewReader(compressed)
	var decompressedLength uint32
	if err := binary.Read(source, binary.BigEndian, &decompressedLength); err != nil {
		return nil, fmt.Errorf("cannot read lz4 decompressed length: %w", err)
	}
	if decompressedLength == 0 {
		return nil, nil
	}
	remaining, err := io.ReadAll(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read lz4 compressed body: %w", err)
	}
	compressedLength := len(remaining)
	decompressed := make([]byte, decompressedLength)
	written, err := lz4.UncompressBlock(remaining, decompressed)
	if err != nil {
		return nil, fmt.Errorf("cannot lz4-decompress body (compressed length %d): %w", compressedLength, err)
	}
	if written != int(decompressedLength) {
		return nil, fmt.Errorf("lz4 decompressed length mismatch: expected %d, got %d", decompressedLength, written)
	}
	return decompressed[:written], nil
}

// SnappyCompressor satisfies Compressor for the SNAPPY algorithm.
type SnappyCompressor struct{}

func (SnappyCompressor) Algorithm() string { return AlgorithmSnappy }

func (SnappyCompressor) Compress(uncompressed []byte) ([]byte, error) {
	return snappy.Encode(nil, uncompressed), nil
}

func (SnappyCompressor) Decompress(compressed []byte) ([]byte, error) {
	decompressed, err := snappy.Decode(nil, compressed)
	if err != nil {
		return nil, fmt.Errorf("cannot snappy-decompress body: %w", err)
	}
	return decompressed, nil
}
