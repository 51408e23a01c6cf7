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

import "github.com/rusticdb/rusticdb/internal/protocol/primitive"

// Ready is the response to a successful Startup; the node never requires
// authentication, so Ready always follows Startup.
type Ready struct{}

func (m *Ready) IsResponse() bool            { return true }
func (m *Ready) GetOpCode() primitive.OpCode { return primitive.OpCodeReady }
func (m *Ready) String() string              { return "READY" }
