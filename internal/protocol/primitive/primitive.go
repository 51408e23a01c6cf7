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

// Package primitive implements the fixed-width and length-prefixed wire
// types the client protocol is built from: [byte], [short], [int], [long],
// [string], [bytes] and [string map], plus the OpCode and ConsistencyLevel
// enums.
//
// Grounded on primitive/integers.go, primitive/string.go and
// primitive/bytes.go: every Read/Write pair uses encoding/binary.BigEndian
// and wraps I/O errors with fmt.Errorf("cannot read/write [kind]: %w", err).
package primitive

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
)

const (
	LengthOfByte  = 1
	LengthOfShort = 2
	LengthOfInt   = 4
	LengthOfLong  = 8
)

// [byte]

func ReadByte(source io.Reader) (decoded uint8, err error) {
	if err = binary.Read(source, binary.BigEndian, &decoded); err != nil {
		err = fmt.Errorf("cannot read [byte]: %w", err)
	}
	return decoded, err
}

func WriteByte(b uint8, dest io.Writer) error {
	if err := binary.Write(dest, binary.BigEndian, b); err != nil {
		return fmt.Errorf("cannot write [byte]: %w", err)
	}
	return nil
}

// [short]

func ReadShort(source io.Reader) (decoded uint16, err error) {
	if err = binary.Read(source, binary.BigEndian, &decoded); err != nil {
		err = fmt.Errorf("cannot read [short]: %w", err)
	}
	return decoded, err
}

func WriteShort(i uint16, dest io.Writer) error {
	if err := binary.Write(dest, binary.BigEndian, i); err != nil {
		return fmt.Errorf("cannot write [short]: %w", err)
	}
	return nil
}

// [int]

func ReadInt(source io.Reader) (decoded int32, err error) {
	if err = binary.Read(source, binary.BigEndian, &decoded); err != nil {
		err = fmt.Errorf("cannot read [int]: %w", err)
	}
	return decoded, err
}

func WriteInt(i int32, dest io.Writer) error {
	if err := binary.Write(dest, binary.BigEndian, i); err != nil {
		return fmt.Errorf("cannot write [int]: %w", err)
	}
	return nil
}

// [long]

func ReadLong(source io.Reader) (decoded int64, err error) {
	if err = binary.Read(source, binary.BigEndian, &decoded); err != nil {
		err = fmt.Errorf("cannot read [long]: %w", err)
	}
	return decoded, err
}

func WriteLong(l int64, dest io.Writer) error {
	if err := binary.Write(dest, binary.BigEndian, l); err != nil {
		return fmt.Errorf("cannot write [long]: %w", err)
	}
	return nil
}

// [string]: a [short] length followed by that many UTF-8 bytes.

func ReadString(source io.Reader) (string, error) {
	length, err := ReadShort(source)
	if err != nil {
		return "", fmt.Errorf("cannot read [string] length: %w", err)
	}
	decoded := make([]byte, length)
	if _, err := io.ReadFull(source, decoded); err != nil {
		return "", fmt.Errorf("cannot read [string] content: %w", err)
	}
	return string(decoded), nil
}

func WriteString(s string, dest io.Writer) error {
	if err := WriteShort(uint16(len(s)), dest); err != nil {
		return fmt.Errorf("cannot write [string] length: %w", err)
	}
	if _, err := dest.Write([]byte(s)); err != nil {
		return fmt.Errorf("cannot write [string] content: %w", err)
	}
	return nil
}

func LengthOfString(s string) int {
	return LengthOfShort + len(s)
}

// [long string]: an [int] length followed by that many UTF-8 bytes, used
// for the QUERY message's CQL text (section 4.8's body grammar).

func ReadLongString(source io.Reader) (string, error) {
	length, err := ReadInt(source)
	if err != nil {
		return "", fmt.Errorf("cannot read [long string] length: %w", err)
	}
	if length < 0 {
		return "", errors.New("invalid negative [long string] length")
	}
	decoded := make([]byte, length)
	if _, err := io.ReadFull(source, decoded); err != nil {
		return "", fmt.Errorf("cannot read [long string] content: %w", err)
	}
	return string(decoded), nil
}

func WriteLongString(s string, dest io.Writer) error {
	if err := WriteInt(int32(len(s)), dest); err != nil {
		return fmt.Errorf("cannot write [long string] length: %w", err)
	}
	if _, err := dest.Write([]byte(s)); err != nil {
		return fmt.Errorf("cannot write [long string] content: %w", err)
	}
	return nil
}

func LengthOfLongString(s string) int {
	return LengthOfInt + len(s)
}

// [bytes]: an [int] length, negative meaning null, followed by that many
// raw bytes. Used by the RESULT body's row values (section 4.6's Response
// payload uses the same shape with a narrower [int]-only length prefix).

func ReadBytes(source io.Reader) ([]byte, error) {
	length, err := ReadInt(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read [bytes] length: %w", err)
	}
	if length < 0 {
		return nil, nil
	}
	decoded := make([]byte, length)
	if _, err := io.ReadFull(source, decoded); err != nil {
		return nil, fmt.Errorf("cannot read [bytes] content: %w", err)
	}
	return decoded, nil
}

func WriteBytes(b []byte, dest io.Writer) error {
	if b == nil {
		if err := WriteInt(-1, dest); err != nil {
			return fmt.Errorf("cannot write null [bytes]: %w", err)
		}
		return nil
	}
	if err := WriteInt(int32(len(b)), dest); err != nil {
		return fmt.Errorf("cannot write [bytes] length: %w", err)
	}
	if _, err := dest.Write(b); err != nil {
		return fmt.Errorf("cannot write [bytes] content: %w", err)
	}
	return nil
}

func LengthOfBytes(b []byte) int {
	return LengthOfInt + len(b)
}

// [string map]: a [short] count followed by that many [string]:[string]
// pairs, used for STARTUP's options (section 4.8) such as CQL_VERSION and
// COMPRESSION.

func ReadStringMap(source io.Reader) (map[string]string, error) {
	count, err := ReadShort(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read [string map] length: %w", err)
	}
	m := make(map[string]string, count)
	for i := uint16(0); i < count; i++ {
		k, err := ReadString(source)
		if err != nil {
			return nil, fmt.Errorf("cannot read [string map] key: %w", err)
		}
		v, err := ReadString(source)
		if err != nil {
			return nil, fmt.Errorf("cannot read [string map] value: %w", err)
		}
		m[k] = v
	}
	return m, nil
}

func WriteStringMap(m map[string]string, dest io.Writer) error {
	if err := WriteShort(uint16(len(m)), dest); err != nil {
		return fmt.Errorf("cannot write [string map] length: %w", err)
	}
	for k, v := range m {
		if err := WriteString(k, dest); err != nil {
			return fmt.Errorf("cannot write [string map] key: %w", err)
		}
		if err := WriteString(v, dest); err != nil {
			return fmt.Errorf("cannot write [string map] value: %w", err)
		}
	}
	return nil
}

func LengthOfStringMap(m map[string]string) int {
	length := LengthOfShort
	for k, v := range m {
		length += LengthOfString(k) + LengthOfString(v)
	}
	return length
}

// OpCode identifies the message carried by a frame body. Only the five
// opcodes this node's client protocol requires are defined; the rest of
// Cassandra's real opcode space (AuthChallenge, Prepare, Batch, ...) is out
// of scope.
type OpCode uint8

const (
	OpCodeError   = OpCode(0x00)
	OpCodeStartup = OpCode(0x01)
	OpCodeReady   = OpCode(0x02)
	OpCodeQuery   = OpCode(0x07)
	OpCodeResult  = OpCode(0x08)
)

func (o OpCode) String() string {
	switch o {
	case OpCodeError:
		return "ERROR"
	case OpCodeStartup:
		return "STARTUP"
	case OpCodeReady:
		return "READY"
	case OpCodeQuery:
		return "QUERY"
	case OpCodeResult:
		return "RESULT"
	default:
		return fmt.Sprintf("OPCODE ? [%#.2X]", uint8(o))
	}
}

func (o OpCode) IsResponse() bool {
	switch o {
	case OpCodeError, OpCodeReady, OpCodeResult:
		return true
	default:
		return false
	}
}

// ConsistencyLevel numbering matches Cassandra's native protocol so a real
// driver's byte values decode correctly; only ONE, QUORUM and ALL carry
// distinct semantics in the executor (section 6), the rest map onto QUORUM.
type ConsistencyLevel uint16

const (
	ConsistencyLevelAny         = ConsistencyLevel(0x0000)
	ConsistencyLevelOne         = ConsistencyLevel(0x0001)
	ConsistencyLevelTwo         = ConsistencyLevel(0x0002)
	ConsistencyLevelThree       = ConsistencyLevel(0x0003)
	ConsistencyLevelQuorum      = ConsistencyLevel(0x0004)
	ConsistencyLevelAll         = ConsistencyLevel(0x0005)
	ConsistencyLevelLocalQuorum = ConsistencyLevel(0x0006)
	ConsistencyLevelEachQuorum  = ConsistencyLevel(0x0007)
	ConsistencyLevelSerial      = ConsistencyLevel(0x0008)
	ConsistencyLevelLocalSerial = ConsistencyLevel(0x0009)
	ConsistencyLevelLocalOne    = ConsistencyLevel(0x000A)
)

func (c ConsistencyLevel) String() string {
	switch c {
	case ConsistencyLevelAny:
		return "ANY"
	case ConsistencyLevelOne:
		return "ONE"
	case ConsistencyLevelTwo:
		return "TWO"
	case ConsistencyLevelThree:
		return "THREE"
	case ConsistencyLevelQuorum:
		return "QUORUM"
	case ConsistencyLevelAll:
		return "ALL"
	case ConsistencyLevelLocalQuorum:
		return "LOCAL_QUORUM"
	case ConsistencyLevelEachQuorum:
		return "EACH_QUORUM"
	case ConsistencyLevelSerial:
		return "SERIAL"
	case ConsistencyLevelLocalSerial:
		return "LOCAL_SERIAL"
	case ConsistencyLevelLocalOne:
		return "LOCAL_ONE"
	default:
		return fmt.Sprintf("CONSISTENCY ? [%#.4X]", uint16(c))
	}
}

// ReplicaCount folds the eleven recognized levels onto the three the
// executor actually distinguishes, returning the number of replica
// acknowledgements required out of rf.
func (c ConsistencyLevel) ReplicaCount(rf int) int {
	switch c {
	case ConsistencyLevelOne, ConsistencyLevelLocalOne:
		return 1
	case ConsistencyLevelAll:
		return rf
	default: // QUORUM and everything that maps onto it
		return rf/2 + 1
	}
}
