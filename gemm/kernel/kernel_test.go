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

package kernel

import (
	"math/rand"
	"testing"
)

func referenceUpdate(mTile, nTile, k int, dst []float32, dstRS, dstCS int, a []float32, arS, adS int, b []float32, bdS, bcS int, alpha, beta float32, alphaStatus AlphaStatus) []float32 {
	out := make([]float32, len(dst))
	copy(out, dst)
	for i := 0; i < mTile; i++ {
		for j := 0; j < nTile; j++ {
			var sum float32
			for kk := 0; kk < k; kk++ {
				sum += a[i*arS+kk*adS] * b[kk*bdS+j*bcS]
			}
			sum *= beta
			idx := i*dstRS + j*dstCS
			switch alphaStatus {
			case AlphaZero:
				out[idx] = sum
			case AlphaOne:
				out[idx] = out[idx] + sum
			default:
				out[idx] = alpha*out[idx] + sum
			}
		}
	}
	return out
}

func TestBaseMatchesReference(t *testing.T) {
	const mr, nrDim, k = 4, 4, 6
	a := make([]float32, mr*k)
	b := make([]float32, k*nrDim)
	for i := range a {
		a[i] = rand.Float32()*2 - 1
	}
	for i := range b {
		b[i] = rand.Float32()*2 - 1
	}
	dst := make([]float32, mr*nrDim)
	for i := range dst {
		dst[i] = rand.Float32()*2 - 1
	}

	for _, status := range []AlphaStatus{AlphaZero, AlphaOne, AlphaOther} {
		got := make([]float32, len(dst))
		copy(got, dst)

		var p Params[float32]
		p.MTile, p.NTile, p.K = mr, nrDim, k
		p.Dst = got
		p.DstRS, p.DstCS = nrDim, 1
		p.PackedA = a
		p.ARowStride, p.ADepthStride = k, 1
		p.PackedB = b
		p.BDepthStride, p.BColStride = nrDim, 1
		p.Alpha = 2
		p.Beta = 0.5
		p.AlphaStatus = status

		Base(p)

		want := referenceUpdate(mr, nrDim, k, dst, nrDim, 1, a, k, 1, b, nrDim, 1, 2, 0.5, status)
		for i := range got {
			if d := got[i] - want[i]; d > 1e-4 || d < -1e-4 {
				t.Fatalf("status=%d idx=%d: got %v want %v", status, i, got[i], want[i])
			}
		}
	}
}

func TestBaseComplexConjugation(t *testing.T) {
	a := []complex64{1 + 2i, 3 - 1i}
	b := []complex64{2 + 0i, 0 + 1i}
	orig := complex64(1 + 1i)
	dst := []complex64{orig}

	p := Params[complex64]{
		MTile: 1, NTile: 1, K: 2,
		Dst: dst, DstRS: 1, DstCS: 1,
		PackedA: a, ARowStride: 2, ADepthStride: 1,
		PackedB: b, BDepthStride: 1, BColStride: 1,
		Alpha: 1, Beta: 1, AlphaStatus: AlphaOne,
		ConjL: true,
	}
	Base(p)

	var sum complex64
	for kk := 0; kk < 2; kk++ {
		av := complex64(complex(real(a[kk]), -imag(a[kk])))
		sum += av * b[kk]
	}
	expected := orig + sum
	if dst[0] != expected {
		t.Fatalf("got %v want %v", dst[0], expected)
	}
}

func packedParams[T Element](mTile, nTile, k, mr, nr int, a, b []T, dst []T, alpha, beta T, status AlphaStatus) Params[T] {
	var p Params[T]
	p.MTile, p.NTile, p.K = mTile, nTile, k
	p.Dst = dst
	p.DstRS, p.DstCS = nr, 1
	p.PackedA = a
	p.ARowStride, p.ADepthStride = 1, mr
	p.PackedB = b
	p.BDepthStride, p.BColStride = nr, 1
	p.Alpha, p.Beta, p.AlphaStatus = alpha, beta, status
	return p
}

func TestBaseVecMatchesBaseFloat32(t *testing.T) {
	const mr, nr, k = 4, 4, 7
	a := make([]float32, mr*k)
	b := make([]float32, k*nr)
	for i := range a {
		a[i] = rand.Float32()*2 - 1
	}
	for i := range b {
		b[i] = rand.Float32()*2 - 1
	}
	dst := make([]float32, mr*nr)
	for i := range dst {
		dst[i] = rand.Float32()*2 - 1
	}

	for _, status := range []AlphaStatus{AlphaZero, AlphaOne, AlphaOther} {
		want := make([]float32, len(dst))
		copy(want, dst)
		Base(packedParams(mr, nr, k, mr, nr, a, b, want, 1.5, 0.5, status))

		got := make([]float32, len(dst))
		copy(got, dst)
		BaseVec(packedParams(mr, nr, k, mr, nr, a, b, got, 1.5, 0.5, status))

		for i := range got {
			if d := got[i] - want[i]; d > 1e-4 || d < -1e-4 {
				t.Fatalf("status=%d idx=%d: BaseVec=%v Base=%v", status, i, got[i], want[i])
			}
		}
	}
}

// TestBaseVecMatchesBaseFloat64RowChunking exercises a row tile wider
// than hwy.MaxLanes[float64]() (2 lanes without GOEXPERIMENT=simd),
// forcing BaseVec's row-chunking loop to run more than one chunk.
func TestBaseVecMatchesBaseFloat64RowChunking(t *testing.T) {
	const mr, nr, k = 4, 3, 5
	a := make([]float64, mr*k)
	b := make([]float64, k*nr)
	for i := range a {
		a[i] = rand.Float64()*2 - 1
	}
	for i := range b {
		b[i] = rand.Float64()*2 - 1
	}
	dst := make([]float64, mr*nr)
	for i := range dst {
		dst[i] = rand.Float64()*2 - 1
	}

	want := make([]float64, len(dst))
	copy(want, dst)
	Base(packedParams(mr, nr, k, mr, nr, a, b, want, 1, 1, AlphaOne))

	got := make([]float64, len(dst))
	copy(got, dst)
	BaseVec(packedParams(mr, nr, k, mr, nr, a, b, got, 1, 1, AlphaOne))

	for i := range got {
		if d := got[i] - want[i]; d > 1e-9 || d < -1e-9 {
			t.Fatalf("idx=%d: BaseVec=%v Base=%v", i, got[i], want[i])
		}
	}
}

func TestRunFallsBackToBaseForUnpackedA(t *testing.T) {
	const mr, nrDim, k = 4, 4, 6
	a := make([]float32, mr*k)
	b := make([]float32, k*nrDim)
	for i := range a {
		a[i] = rand.Float32()
	}
	for i := range b {
		b[i] = rand.Float32()
	}
	dst := make([]float32, mr*nrDim)

	var p Params[float32]
	p.MTile, p.NTile, p.K = mr, nrDim, k
	p.Dst = dst
	p.DstRS, p.DstCS = nrDim, 1
	p.PackedA = a
	p.ARowStride, p.ADepthStride = k, 1 // unpacked A: ARowStride != 1
	p.PackedB = b
	p.BDepthStride, p.BColStride = nrDim, 1
	p.Alpha, p.Beta, p.AlphaStatus = 1, 1, AlphaZero

	want := make([]float32, len(dst))
	Base(Params[float32]{MTile: mr, NTile: nrDim, K: k, Dst: want, DstRS: nrDim, DstCS: 1,
		PackedA: a, ARowStride: k, ADepthStride: 1,
		PackedB: b, BDepthStride: nrDim, BColStride: 1,
		Alpha: 1, Beta: 1, AlphaStatus: AlphaZero})

	Run(p)
	for i := range dst {
		if d := dst[i] - want[i]; d > 1e-4 || d < -1e-4 {
			t.Fatalf("idx=%d: Run=%v Base=%v", i, dst[i], want[i])
		}
	}
}

func TestRunDispatchesToBaseForComplex(t *testing.T) {
	a := []complex64{1 + 2i, 3 - 1i}
	b := []complex64{2 + 0i, 0 + 1i}
	got := []complex64{1 + 1i}
	want := []complex64{1 + 1i}

	p := Params[complex64]{
		MTile: 1, NTile: 1, K: 2,
		Dst: got, DstRS: 1, DstCS: 1,
		PackedA: a, ARowStride: 1, ADepthStride: 1,
		PackedB: b, BDepthStride: 1, BColStride: 1,
		Alpha: 1, Beta: 1, AlphaStatus: AlphaOne,
	}
	Run(p)

	p.Dst = want
	Base(p)

	if got[0] != want[0] {
		t.Fatalf("got %v want %v", got[0], want[0])
	}
}

func TestTableLookupClampsOutOfRange(t *testing.T) {
	called := false
	fn := Func[float32](func(p Params[float32]) { called = true })
	table := Table[float32]{{fn, fn, fn, fn}}

	got := table.Lookup(4, 4, 4)
	got(Params[float32]{})
	if !called {
		t.Fatal("expected lookup to resolve to the installed kernel")
	}

	// out-of-range mr/nr must clamp rather than panic.
	table.Lookup(99, 99, 4)
	table.Lookup(-1, -1, 4)
}
