// Copyright 2025 go-highway Authors
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

package gemm

import "sync/atomic"

// Runtime knobs. Process-global, loaded/stored via sync/atomic rather
// than a mutex, the same choice workerpool.Pool makes for its closed
// flag and work-stealing cursor.
var (
	threadingThreshold        atomic.Int64
	rhsPackingThreshold       atomic.Int64
	lhsPackingThresholdSingle atomic.Int64
	lhsPackingThresholdMulti  atomic.Int64
)

func init() {
	threadingThreshold.Store(48 * 48 * 256)
	rhsPackingThreshold.Store(128)
	lhsPackingThresholdSingle.Store(8)
	lhsPackingThresholdMulti.Store(16)
}

// knobCap is the maximum value any of the packing thresholds may be set
// to, matching the Rust source's .min(256) clamp on every setter.
const knobCap = 256

// ThreadingThreshold returns the minimum m*n*k op count below which the
// driver runs single-threaded.
func ThreadingThreshold() int64 { return threadingThreshold.Load() }

// SetThreadingThreshold updates the threading threshold. Unlike the
// three packing thresholds this one is not capped at 256 in the Rust
// source (it routinely holds values in the millions).
func SetThreadingThreshold(v int64) { threadingThreshold.Store(v) }

// RHSPackingThreshold returns the threshold (in units of MR rows)
// above which a strided B is packed rather than consumed in place.
func RHSPackingThreshold() int64 { return rhsPackingThreshold.Load() }

// SetRHSPackingThreshold sets the RHS packing threshold, capped at 256.
func SetRHSPackingThreshold(v int64) { rhsPackingThreshold.Store(capKnob(v)) }

// LHSPackingThresholdSingle returns the single-threaded LHS packing
// threshold (in units of NR columns).
func LHSPackingThresholdSingle() int64 { return lhsPackingThresholdSingle.Load() }

// SetLHSPackingThresholdSingle sets the single-threaded LHS packing
// threshold, capped at 256.
func SetLHSPackingThresholdSingle(v int64) {
	lhsPackingThresholdSingle.Store(capKnob(v))
}

// LHSPackingThresholdMulti returns the multi-threaded LHS packing
// threshold (in units of NR columns).
func LHSPackingThresholdMulti() int64 { return lhsPackingThresholdMulti.Load() }

// SetLHSPackingThresholdMulti sets the multi-threaded LHS packing
// threshold, capped at 256.
func SetLHSPackingThresholdMulti(v int64) {
	lhsPackingThresholdMulti.Store(capKnob(v))
}

func capKnob(v int64) int64 {
	if v > knobCap {
		return knobCap
	}
	return v
}
