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

package cache

import "testing"

func TestBlockSizesSmallMatrixPath(t *testing.T) {
	mc, kc, nc := BlockSizes(60, 50, 1000, 4, 4, 4)
	if nc%4 != 0 || nc < 50 {
		t.Fatalf("small-matrix path: mc=%d kc=%d nc=%d", mc, kc, nc)
	}
	if kc != 512 {
		t.Fatalf("small-matrix path must cap kc at 512, got kc=%d", kc)
	}
	if mc != 60 {
		t.Fatalf("small-matrix path mc must be sized off the capped kc (and clamped to m), got mc=%d", mc)
	}
}

func TestBlockSizesLargeMatrixClampsToK(t *testing.T) {
	_, kc, _ := BlockSizes(2000, 2000, 4, 4, 4, 4)
	if kc > 4 || kc < 1 {
		t.Fatalf("kc must clamp into [1,k]: got %d", kc)
	}
}

func TestSubstituteUnconstrained(t *testing.T) {
	if got := Substitute(0, 1000, 4, Sequential); got != 128*4 {
		t.Fatalf("sequential unconstrained nc: got %d want %d", got, 128*4)
	}
	if got := Substitute(0, 1000, 4, Threaded); got != 1000 {
		t.Fatalf("threaded unconstrained nc: got %d want %d", got, 1000)
	}
	if got := Substitute(40, 1000, 4, Sequential); got != 40 {
		t.Fatalf("Substitute must pass through a positive nc unchanged, got %d", got)
	}
}

func TestSetCacheInfoRoundTrips(t *testing.T) {
	orig := CurrentCacheInfo()
	defer SetCacheInfo(orig)

	SetCacheInfo(Descriptor{L1Bytes: 16 * 1024, L2Bytes: 256 * 1024, L3Bytes: 2 * 1024 * 1024})
	got := CurrentCacheInfo()
	if got.L1Bytes != 16*1024 || got.L2Bytes != 256*1024 || got.L3Bytes != 2*1024*1024 {
		t.Fatalf("got %+v", got)
	}
}
