/*
 * Copyright 2026 Halcyon Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package harness provides the shared utilities of the conformance suite:
// data-pattern fixtures, UUID-based device selection, must-succeed lifecycle
// wrappers for tests, and subprocess role spawning.
package harness

import "fmt"

// WriteDataPattern fills buf with a running byte pattern: the value starts
// at pattern and is incremented by pattern for each byte, wrapping at 8 bits.
// A pattern of zero fills the buffer with zeros.
func WriteDataPattern(buf []byte, pattern int8) {
	dp := pattern
	for i := range buf {
		buf[i] = byte(dp)
		dp += pattern
	}
}

// ValidateDataPattern checks buf against WriteDataPattern(buf, pattern) and
// reports the first mismatching index.
func ValidateDataPattern(buf []byte, pattern int8) error {
	dp := pattern
	for i := range buf {
		if buf[i] != byte(dp) {
			return fmt.Errorf("harness: pattern mismatch at byte %d: got %#02x, want %#02x", i, buf[i], byte(dp))
		}
		dp += pattern
	}
	return nil
}
