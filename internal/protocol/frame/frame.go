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

// Package frame implements the client protocol's 9-byte header framing, a
// cut-down sibling of the teacher's frame package: no tracing id, custom
// payload or warnings, since the core only needs
// STARTUP/READY/ERROR/QUERY/RESULT. Grounded on frame/frame.go's
// Header/Frame split and its isCompressible opcode exclusion.
package frame

import (
	"bytes"
	"fmt"
	"io"

	"github.com/rusticdb/rusticdb/internal/protocol/primitive"
)

const (
	// RequestVersion is the ver byte a client sends.
	RequestVersion = uint8(0x03)
	// ResponseVersion is the ver byte a node sends back.
	ResponseVersion = uint8(0x83)

	HeaderLength = 9
)

// HeaderFlag is a bitmask of the flags byte. Only Compressed is defined;
// the teacher's Tracing/CustomPayload/Warning/Beta bits have no message
// type to carry them here.
type HeaderFlag uint8

const (
	FlagCompressed HeaderFlag = 0x01
)

func (f HeaderFlag) Has(bit HeaderFlag) bool { return f&bit != 0 }

// Header is the fixed 9-byte preamble: ver | flags | stream (2 bytes) |
// opcode | length (4 bytes).
type Header struct {
	Version    uint8
	Flags      HeaderFlag
	StreamId   int16
	OpCode     primitive.OpCode
	BodyLength int32
}

func (h *Header) String() string {
	return fmt.Sprintf("Header{ver: %#.2x, flags: %#.2x, stream: %d, opcode: %v, length: %d}",
		h.Version, uint8(h.Flags), h.StreamId, h.OpCode, h.BodyLength)
}

// Frame pairs a decoded header with its (already decompressed) body bytes.
// Message encoding/decoding lives in package message; frame only knows how
// to move opaque bytes across the wire.
type Frame struct {
	Header *Header
	Body   []byte
}

func (f *Frame) String() string {
	return fmt.Sprintf("Frame{%v, body: %d bytes}", f.Header, len(f.Body))
}

// NewRequestFrame builds a request-direction frame for opCode carrying the
// already-encoded body.
func NewRequestFrame(streamId int16, opCode primitive.OpCode, body []byte) *Frame {
	return &Frame{
		Header: &Header{Version: RequestVersion, StreamId: streamId, OpCode: opCode, BodyLength: int32(len(body))},
		Body:   body,
	}
}

// NewResponseFrame builds a response-direction frame echoing streamId.
func NewResponseFrame(streamId int16, opCode primitive.OpCode, body []byte) *Frame {
	return &Frame{
		Header: &Header{Version: ResponseVersion, StreamId: streamId, OpCode: opCode, BodyLength: int32(len(body))},
		Body:   body,
	}
}

// isCompressible excludes the handshake opcodes from compression, mirroring
// frame.go's isCompressible (which excludes STARTUP/OPTIONS/READY: there is
// no negotiated algorithm yet when those are exchanged).
func isCompressible(opCode primitive.OpCode) bool {
	switch opCode {
	case primitive.OpCodeStartup, primitive.OpCodeReady:
		return false
	default:
		return true
	}
}

func EncodeHeader(h *Header, dest io.Writer) error {
	if err := primitive.WriteByte(h.Version, dest); err != nil {
		return fmt.Errorf("cannot write header version: %w", err)
	}
	if err := primitive.WriteByte(uint8(h.Flags), dest); err != nil {
		return fmt.Errorf("cannot write header flags: %w", err)
	}
	if err := primitive.WriteShort(uint16(h.StreamId), dest); err != nil {
		return fmt.Errorf("cannot write header stream id: %w", err)
	}
	if err := primitive.WriteByte(uint8(h.OpCode), dest); err != nil {
		return fmt.Errorf("cannot write header opcode: %w", err)
	}
	if err := primitive.WriteInt(h.BodyLength, dest); err != nil {
		return fmt.Errorf("cannot write header length: %w", err)
	}
	return nil
}

func DecodeHeader(source io.Reader) (*Header, error) {
	version, err := primitive.ReadByte(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read header version: %w", err)
	}
	flags, err := primitive.ReadByte(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read header flags: %w", err)
	}
	stream, err := primitive.ReadShort(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read header stream id: %w", err)
	}
	opCode, err := primitive.ReadByte(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read header opcode: %w", err)
	}
	length, err := primitive.ReadInt(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read header length: %w", err)
	}
	return &Header{
		Version:    version,
		Flags:      HeaderFlag(flags),
		StreamId:   int16(stream),
		OpCode:     primitive.OpCode(opCode),
		BodyLength: length,
	}, nil
}

// Decompressor turns a compressed body back into its original bytes; the
// node wires this to the algorithm negotiated at STARTUP (section 4.8's
// COMPRESSION option; see package compression).
type Decompressor func([]byte) ([]byte, error)

// Compressor is the write-side counterpart of Decompressor.
type Compressor func([]byte) ([]byte, error)

// ReadFrame decodes one frame from source. decompress may be nil (no
// compression negotiated); it is only invoked when the Compressed flag is
// set on a frame the handshake permits it for.
func ReadFrame(source io.Reader, decompress Decompressor) (*Frame, error) {
	header, err := DecodeHeader(source)
	if err != nil {
		return nil, err
	}
	raw := make([]byte, header.BodyLength)
	if header.BodyLength > 0 {
		if _, err := io.ReadFull(source, raw); err != nil {
			return nil, fmt.Errorf("cannot read frame body: %w", err)
		}
	}
	if header.Flags.Has(FlagCompressed) {
		if decompress == nil {
			return nil, fmt.Errorf("frame body is compressed but no algorithm was negotiated")
		}
		raw, err = decompress(raw)
		if err != nil {
			return nil, fmt.Errorf("cannot decompress frame body: %w", err)
		}
	}
	return &Frame{Header: header, Body: raw}, nil
}

// WriteFrame encodes f to dest, compressing the body with compress when
// compress is non-nil and the opcode permits compression.
func WriteFrame(f *Frame, dest io.Writer, compress Compressor) error {
	body := f.Body
	flags := f.Header.Flags
	if compress != nil && isCompressible(f.Header.OpCode) {
		compressed, err := compress(body)
		if err != nil {
			return fmt.Errorf("cannot compress frame body: %w", err)
		}
		body = compressed
		flags |= FlagCompressed
	}
	header := *f.Header
	header.Flags = flags
	header.BodyLength = int32(len(body))
	if err := EncodeHeader(&header, dest); err != nil {
		return err
	}
	if len(body) == 0 {
		return nil
	}
	if _, err := dest.Write(body); err != nil {
		return fmt.Errorf("cannot write frame body: %w", err)
	}
	return nil
}

// Dump hex-encodes an encoded frame for debug logging, the way frame.go's
// Dump does via a throwaway buffer.
func (f *Frame) Dump() (string, error) {
	var buf bytes.Buffer
	if err := WriteFrame(f, &buf, nil); err != nil {
		return "", err
	}
	return fmt.Sprintf("%x", buf.Bytes()), nil
}
