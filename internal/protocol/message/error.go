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
	"fmt"
	"io"

	"github.com/rusticdb/rusticdb/internal/protocol/primitive"
	"github.com/rusticdb/rusticdb/internal/rerrors"
)

// ErrorCode numbers error responses the way Cassandra's real wire protocol
// does, so a genuine driver decodes them correctly even though this node
// only ever reports the handful that rerrors.Kind maps onto.
type ErrorCode uint32

const (
	ErrorCodeServerError   ErrorCode = 0x0000
	ErrorCodeProtocolError ErrorCode = 0x000A
	ErrorCodeUnavailable   ErrorCode = 0x1000
	ErrorCodeReadTimeout   ErrorCode = 0x1200
	ErrorCodeSyntaxError   ErrorCode = 0x2000
	ErrorCodeUnauthorized  ErrorCode = 0x2100
	ErrorCodeInvalid       ErrorCode = 0x2200
	ErrorCodeConfigError   ErrorCode = 0x2300
)

// CodeForKind maps a §7 error Kind onto the ErrorCode the ERROR frame
// carries on the wire.
func CodeForKind(kind rerrors.Kind) ErrorCode {
	switch kind {
	case rerrors.Protocol:
		return ErrorCodeProtocolError
	case rerrors.Syntax:
		return ErrorCodeSyntaxError
	case rerrors.Schema:
		return ErrorCodeConfigError
	case rerrors.Unauthorized:
		return ErrorCodeUnauthorized
	case rerrors.InvalidCondition:
		return ErrorCodeInvalid
	case rerrors.Unavailable:
		return ErrorCodeUnavailable
	case rerrors.Timeout:
		return ErrorCodeReadTimeout
	default: // IO, Internal
		return ErrorCodeServerError
	}
}

// ErrorMessage is the node's single ERROR body shape: a code plus the
// "<kind>:<msg>" text rerrors.Wire already renders, so the same string
// crosses both the internode Response payload and the client ERROR frame.
type ErrorMessage struct {
	Code ErrorCode
	Text string
}

func (m *ErrorMessage) IsResponse() bool            { return true }
func (m *ErrorMessage) GetOpCode() primitive.OpCode { return primitive.OpCodeError }
func (m *ErrorMessage) String() string {
	return fmt.Sprintf("ERROR %#.4x (%s)", uint32(m.Code), m.Text)
}

// NewError builds the ERROR frame body for err, classifying it via
// rerrors.KindOf when err does not already carry a *rerrors.Error.
func NewError(err error) *ErrorMessage {
	return &ErrorMessage{Code: CodeForKind(rerrors.KindOf(err)), Text: rerrors.Wire(err)}
}

func encodeError(m *ErrorMessage, dest io.Writer) error {
	if err := primitive.WriteInt(int32(m.Code), dest); err != nil {
		return fmt.Errorf("cannot write error code: %w", err)
	}
	if err := primitive.WriteString(m.Text, dest); err != nil {
		return fmt.Errorf("cannot write error message: %w", err)
	}
	return nil
}

func decodeError(source io.Reader) (*ErrorMessage, error) {
	code, err := primitive.ReadInt(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read error code: %w", err)
	}
	text, err := primitive.ReadString(source)
	if err != nil {
		return nil, fmt.Errorf("cannot read error message: %w", err)
	}
	return &ErrorMessage{Code: ErrorCode(code), Text: text}, nil
}
