// Copyright 2024 The vboot-android authors. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package vboot

import (
	"math"
	"testing"
)

func TestMemberInside(t *testing.T) {
	for _, test := range []struct {
		name                                       string
		parentSize, hdrOff, hdrLen, dataOff, dataLen uint64
		want                                       bool
	}{
		{"empty member in empty parent", 0, 0, 0, 0, 0, true},
		{"exact fit", 100, 0, 24, 24, 76, true},
		{"data overlapping header", 100, 0, 24, 0, 100, true},
		{"member at end", 100, 100, 0, 0, 0, true},
		{"header off end", 100, 101, 0, 0, 0, false},
		{"header too long", 100, 80, 24, 0, 0, false},
		{"data offset off end", 100, 0, 24, 101, 0, false},
		{"data too long", 100, 0, 24, 24, 77, false},
		{"data at tail", 100, 76, 24, 24, 0, true},
		{"huge header offset", 100, math.MaxUint64, 24, 0, 0, false},
		{"huge header length", 100, 0, math.MaxUint64, 0, 0, false},
		{"huge data offset", 100, 0, 24, math.MaxUint64, 0, false},
		{"huge data length", 100, 0, 24, 24, math.MaxUint64, false},
		{"wrapping offset pair", 100, 50, 0, math.MaxUint64 - 49, 60, false},
		{"wrapping length pair", math.MaxUint64, 0, 24, math.MaxUint64, 1, false},
		{"max parent", math.MaxUint64, math.MaxUint64, 0, 0, 0, true},
	} {
		t.Run(test.name, func(t *testing.T) {
			got := memberInside(test.parentSize, test.hdrOff, test.hdrLen, test.dataOff, test.dataLen)
			if got != test.want {
				t.Errorf("memberInside(%d, %d, %d, %d, %d) = %v, want %v",
					test.parentSize, test.hdrOff, test.hdrLen, test.dataOff, test.dataLen, got, test.want)
			}
		})
	}
}

func TestErrorStrings(t *testing.T) {
	for _, test := range []struct {
		err  Error
		want string
	}{
		{ErrKeyBlockInvalid, "key block invalid"},
		{ErrKeyBlockSignature, "key block signature check failed"},
		{ErrKeyBlockHash, "key block hash check failed"},
		{ErrPublicKeyInvalid, "public key invalid"},
		{ErrPreambleInvalid, "preamble invalid"},
		{ErrPreambleSignature, "preamble signature check failed"},
	} {
		if got := test.err.Error(); got != test.want {
			t.Errorf("Error(%d) = %q, want %q", int(test.err), got, test.want)
		}
	}
	if got := Error(99).Error(); got != "unknown error" {
		t.Errorf("Error(99) = %q", got)
	}
}
