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

// Package cache holds the process's cache-hierarchy descriptor and the
// block-size selector that derives mc/kc/nc tile sizes from it.
package cache

import "sync/atomic"

// Descriptor describes the byte capacity of each cache level the
// block-size selector tiles for. golang.org/x/sys/cpu does not expose
// cache sizes on most platforms, so this defaults to conservative
// constants representative of a modern desktop/server core and can be
// overridden at process start by SetCacheInfo for unusual hardware or for
// deterministic tests.
type Descriptor struct {
	L1Bytes int
	L2Bytes int
	L3Bytes int
}

// Default cache sizes. 32KB L1 matches the teacher's own hardcoded
// assumption in matmul_blocked.go ("Block size tuned for L1 cache (32KB
// typical)"); L2/L3 are typical modern-server figures.
const (
	defaultL1Bytes = 32 * 1024
	defaultL2Bytes = 1024 * 1024
	defaultL3Bytes = 8 * 1024 * 1024
)

var current atomic.Pointer[Descriptor]

func init() {
	current.Store(&Descriptor{
		L1Bytes: defaultL1Bytes,
		L2Bytes: defaultL2Bytes,
		L3Bytes: defaultL3Bytes,
	})
}

// CurrentCacheInfo returns the cache descriptor the block-size selector
// currently uses.
func CurrentCacheInfo() Descriptor {
	return *current.Load()
}

// SetCacheInfo overrides the active cache descriptor. Intended for
// hardware where the defaults are a poor fit, and for deterministic unit
// tests of the block-size selector.
func SetCacheInfo(d Descriptor) {
	current.Store(&d)
}

// Parallelism selects which nc=0 substitution rule BlockSizes applies.
type Parallelism int

const (
	// Sequential selects the single-threaded nc=0 substitution.
	Sequential Parallelism = iota
	// Threaded selects the multi-threaded nc=0 substitution.
	Threaded
)

// BlockSizes computes the mc, kc, nc cache-blocking parameters for an
// m×k×n GEMM with register tile mr×nr and element size elemBytes.
//
// Below 64×64 (the "cheap path"), kc is capped at 512 and mc sized off
// it the same way the general path sizes mc off kc, since a 64-row
// panel is still cheap to re-pack per k-slice even though the matrix as
// a whole is small; nc is rounded up to cover the whole matrix in one
// pass since there is nothing to amortize on the n axis at this size.
// Otherwise mc is sized to keep an mr-row panel of packed A resident in
// L2 alongside the current packed-B micro-panel, and kc is sized so a
// kc×nr packed-B panel plus a kc×mc packed-A block both fit L1/L2,
// rounding both down to multiples of mr/nr. nc (the B-panel width
// processed per phase) is left at 0 ("unconstrained") unless the L3
// footprint of the full nc-wide packed-B slab would overflow L3, in
// which case nc is capped and rounded down to nr; callers must apply the
// nc=0 substitution rule (BlockSizes does not, since it depends on
// parallelism, which this function does not take — see Substitute).
func BlockSizes(m, n, k, mr, nr, elemBytes int) (mc, kc, nc int) {
	d := CurrentCacheInfo()

	if m <= 64 && n <= 64 {
		kc = min(k, 512)
		if kc < 1 {
			kc = 1
		}
		mc = d.L2Bytes / (elemBytes * kc)
		mc = roundDown(mc, mr)
		if mc < mr {
			mc = mr
		}
		if mc > m {
			mc = roundUp(m, mr)
		}
		nc = roundUp(n, nr)
		return
	}

	// kc: a kc×mr packed-A micro-panel and a kc×nr packed-B micro-panel
	// should both fit comfortably in L1.
	kc = d.L1Bytes / (2 * elemBytes * max(mr, nr))
	kc = roundDown(kc, 1)
	if kc < 1 {
		kc = 1
	}
	if kc > k {
		kc = k
	}

	// mc: an mc×kc packed-A block should fit in L2 alongside one
	// kc×nr packed-B micro-panel.
	mc = d.L2Bytes / (elemBytes * kc)
	mc = roundDown(mc, mr)
	if mc < mr {
		mc = mr
	}
	if mc > m {
		mc = roundUp(m, mr)
	}

	// nc: a kc×nc packed-B slab should fit in L3; 0 means
	// "unconstrained", resolved by Substitute per spec.md's nc=0 rule.
	l3Cols := d.L3Bytes / (elemBytes * kc)
	if l3Cols > 0 && l3Cols < n {
		nc = roundDown(l3Cols, nr)
		if nc < nr {
			nc = nr
		}
	}
	return
}

// Substitute resolves an nc=0 ("unconstrained") result from BlockSizes
// into a concrete panel width, following the Rust source's substitution:
// 128·nr for single-threaded execution, ceil(n/nr)·nr (the whole width in
// one panel) for multi-threaded execution.
func Substitute(nc, n, nr int, p Parallelism) int {
	if nc > 0 {
		return nc
	}
	if p == Threaded {
		return roundUp(n, nr)
	}
	return 128 * nr
}

func roundDown(x, multiple int) int {
	if multiple <= 1 {
		return x
	}
	return (x / multiple) * multiple
}

func roundUp(x, multiple int) int {
	if multiple <= 1 {
		return x
	}
	return ((x + multiple - 1) / multiple) * multiple
}
