// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package json narrows the JSON codec choice to a single place. The gateway
// marshals on every chunk of every streaming response, so the faster sonic
// implementation is used instead of encoding/json.
package json // nolint: revive

import (
	sonicjson "github.com/bytedance/sonic" // nolint: depguard
)

var (
	// Unmarshal is equivalent to encoding/json.Unmarshal.
	Unmarshal = sonicjson.ConfigDefault.Unmarshal
	// Marshal is equivalent to encoding/json.Marshal.
	Marshal = sonicjson.ConfigDefault.Marshal
	// NewEncoder is equivalent to encoding/json.NewEncoder.
	NewEncoder = sonicjson.ConfigDefault.NewEncoder
	// NewDecoder is equivalent to encoding/json.NewDecoder.
	NewDecoder = sonicjson.ConfigDefault.NewDecoder
)

// RawMessage is equivalent to encoding/json.RawMessage.
type RawMessage = sonicjson.NoCopyRawMessage
