// Copyright Open Responses Authors
// SPDX-License-Identifier: Apache-2.0
// The full text of the Apache license is available in the LICENSE file at
// the root of the repo.

// Package redaction strips prompt and credential content from request bodies
// before they reach debug logs.
package redaction

import (
	"crypto/sha256"
	"fmt"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

var sjsonOptions = &sjson.Options{Optimistic: true, ReplaceInPlace: false}

// redactedPaths are the request body fields that may carry user content.
var redactedPaths = []string{"input", "instructions", "metadata"}

// ContentHash returns a 16-character hex prefix of the SHA256 of s, enough to
// correlate identical content across log lines without exposing it.
func ContentHash(s string) string {
	hash := sha256.Sum256([]byte(s))
	return fmt.Sprintf("%x", hash)[:16]
}

// RedactString replaces content with a placeholder carrying its length and
// content hash, so logs stay correlatable.
//
// Example: "secret prompt" becomes "[REDACTED LENGTH=13 HASH=a3f5e8c2b1d40967]".
func RedactString(s string) string {
	if s == "" {
		return ""
	}
	return fmt.Sprintf("[REDACTED LENGTH=%d HASH=%s]", len(s), ContentHash(s))
}

// RedactRequestBody replaces the user-content fields of a Responses request
// body with placeholders. Malformed bodies are redacted wholesale.
func RedactRequestBody(body []byte) string {
	if !gjson.ValidBytes(body) {
		return RedactString(string(body))
	}
	out := body
	for _, path := range redactedPaths {
		v := gjson.GetBytes(out, path)
		if !v.Exists() {
			continue
		}
		redacted, err := sjson.SetBytesOptions(out, path, RedactString(v.Raw), sjsonOptions)
		if err != nil {
			return RedactString(string(body))
		}
		out = redacted
	}
	return string(out)
}
