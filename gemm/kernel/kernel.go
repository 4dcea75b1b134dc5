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

// Package kernel implements the microkernel contract: the innermost
// MR×NR×k update that the driver in gemm dispatches into once A and B
// have been packed. Base is the portable scalar tier, needed
// unconditionally for complex64/complex128 since hwy.Vec carries no
// complex arithmetic. BaseVec is the register-blocked tier for
// float32/float64: it holds one hwy.Vec accumulator per output column
// across the whole k reduction and updates it with hwy.MulAdd, the same
// shape the teacher's block_kernel.go microkernels use. Run is the
// dispatcher between them.
package kernel

import "github.com/ajroetker/go-highway/hwy"

// Element is the set of element types the generic microkernel and
// driver operate over directly with Go's native arithmetic operators.
// hwy.Float16 is deliberately excluded: it has no native +/* and is
// handled by its own fp32-accumulating driver instead (see gemm.Float16).
type Element interface {
	~float32 | ~float64 | ~complex64 | ~complex128
}

// AlphaStatus classifies the caller-supplied alpha so the writeback can
// take a cheap path when alpha is exactly zero or one.
type AlphaStatus int

const (
	AlphaZero AlphaStatus = iota
	AlphaOne
	AlphaOther
)

// Params carries every argument the microkernel contract specifies:
// tile shape, the packed operands, destination strides, the scalar
// update (alpha/beta/alphaStatus), the conjugation flags, and a
// prefetch hint for the next packed-A micro-panel.
// A's element (i,d) lives at PackedA[i*ARowStride + d*ADepthStride];
// B's element (d,j) lives at PackedB[d*BDepthStride + j*BColStride].
// For a packed micro-panel this is (ARowStride=1, ADepthStride=mr) and
// (BDepthStride=nr, BColStride=1); callers that skip packing and feed
// the kernel the original operand directly pass its native strides
// instead (ARowStride=lhsRS, ADepthStride=lhsCS, BDepthStride=rhsRS,
// BColStride=rhsCS).
type Params[T Element] struct {
	MTile, NTile, K int

	Dst          []T
	DstCS, DstRS int

	PackedA                  []T
	ARowStride, ADepthStride int
	PackedB                  []T
	BDepthStride, BColStride int

	Alpha, Beta T
	AlphaStatus AlphaStatus
	ConjC       bool
	ConjL       bool
	ConjR       bool

	NextPackedA []T
}

// Func is the microkernel contract: compute the mTile×nTile×k update
// into Params.Dst using the packed operands, applying the alpha/beta
// writeback described in Params.
type Func[T Element] func(p Params[T])

// Table is the 2-D dispatch table of microkernel function values,
// indexed [ceil(mr/N)-1][nr-1], matching the teacher's dispatcher
// layout and the Rust source's dispatcher[(m_chunk_inner+(N-1))/N-1][n_chunk_inner-1].
type Table[T Element] [][]Func[T]

// Lookup returns the kernel for a partial tile of size (mr, nr) given
// the register width n.
func (t Table[T]) Lookup(mr, nr, n int) Func[T] {
	row := (mr+n-1)/n - 1
	if row < 0 {
		row = 0
	}
	if row >= len(t) {
		row = len(t) - 1
	}
	cols := t[row]
	col := nr - 1
	if col < 0 {
		col = 0
	}
	if col >= len(cols) {
		col = len(cols) - 1
	}
	return cols[col]
}

// Base computes one MR×NR×k microkernel update in scalar-accumulator
// form: for each (i,j) in the tile it reduces over k by fused
// multiply-add, conjugating operands per the conj flags, then applies
// the alpha/beta writeback into Dst using DstRS/DstCS.
//
// One Base instantiation serves every tile shape in the dispatch table
// and both the packed and unpacked stride conventions described on
// Params; real microkernel tiers would instead specialize per (mr, nr)
// to hold each accumulator in a register across the whole k loop, the
// way BaseBlockMulAddRegBlocked does for the square-block case.
func Base[T Element](p Params[T]) {
	for i := 0; i < p.MTile; i++ {
		for j := 0; j < p.NTile; j++ {
			var sum T
			for kk := 0; kk < p.K; kk++ {
				av := p.PackedA[i*p.ARowStride+kk*p.ADepthStride]
				bv := p.PackedB[kk*p.BDepthStride+j*p.BColStride]
				if p.ConjL {
					av = conj(av)
				}
				if p.ConjR {
					bv = conj(bv)
				}
				sum += av * bv
			}
			sum *= p.Beta

			dstIdx := i*p.DstRS + j*p.DstCS
			switch p.AlphaStatus {
			case AlphaZero:
				p.Dst[dstIdx] = sum
			case AlphaOne:
				cv := p.Dst[dstIdx]
				if p.ConjC {
					cv = conj(cv)
				}
				p.Dst[dstIdx] = cv + sum
			default:
				cv := p.Dst[dstIdx]
				if p.ConjC {
					cv = conj(cv)
				}
				p.Dst[dstIdx] = p.Alpha*cv + sum
			}
		}
	}
}

// VecElement is the subset of Element that hwy.Vec carries lanes for.
// complex64/complex128 are excluded and stay on Base.
type VecElement interface {
	~float32 | ~float64
}

// Run dispatches to BaseVec when T is float32/float64 and A is packed
// (ARowStride==1, the only layout hwy.Load can read as a contiguous
// lane group), and to Base otherwise — complex types, and an unpacked
// A whose row stride is not 1.
func Run[T Element](p Params[T]) {
	if p.ARowStride != 1 {
		Base(p)
		return
	}
	switch q := any(p).(type) {
	case Params[float32]:
		BaseVec(q)
	case Params[float64]:
		BaseVec(q)
	default:
		Base(p)
	}
}

// BaseVec computes one MR×NR×k microkernel update the way the teacher's
// block_kernel.go register-blocked microkernels do: one hwy.Vec
// accumulator per output column, updated across the whole k reduction
// with hwy.MulAdd, then reduced and written back through the alpha/beta
// switch Base uses. Unlike the teacher's fixed-width kernels this has
// to cope with hwy.MaxLanes[T]() running narrower than MTile on a
// scalar-fallback build (float64 gets 2 lanes per hwy.Vec by default,
// below the 4-row tile the driver packs), so the row axis is processed
// in chunks of hwy.MaxLanes[T]() rather than assumed to fit in one Vec.
// PackedA must be contiguous per row (ARowStride==1); callers enforce
// that before reaching here.
func BaseVec[T VecElement](p Params[T]) {
	lanes := hwy.MaxLanes[T]()
	if lanes < 1 {
		lanes = 1
	}
	rowBuf := make([]T, lanes)
	for i0 := 0; i0 < p.MTile; i0 += lanes {
		rows := lanes
		if i0+rows > p.MTile {
			rows = p.MTile - i0
		}
		for j := 0; j < p.NTile; j++ {
			acc := hwy.Zero[T]()
			for kk := 0; kk < p.K; kk++ {
				for r := 0; r < rows; r++ {
					av := p.PackedA[(i0+r)*p.ARowStride+kk*p.ADepthStride]
					if p.ConjL {
						av = conj(av)
					}
					rowBuf[r] = av
				}
				for r := rows; r < lanes; r++ {
					rowBuf[r] = 0
				}
				bv := p.PackedB[kk*p.BDepthStride+j*p.BColStride]
				if p.ConjR {
					bv = conj(bv)
				}
				av := hwy.Load(rowBuf)
				bcast := hwy.Set(bv)
				acc = hwy.MulAdd(av, bcast, acc)
			}
			sums := make([]T, lanes)
			hwy.Store(acc, sums)

			for r := 0; r < rows; r++ {
				sum := sums[r] * p.Beta
				dstIdx := (i0+r)*p.DstRS + j*p.DstCS
				switch p.AlphaStatus {
				case AlphaZero:
					p.Dst[dstIdx] = sum
				case AlphaOne:
					cv := p.Dst[dstIdx]
					if p.ConjC {
						cv = conj(cv)
					}
					p.Dst[dstIdx] = cv + sum
				default:
					cv := p.Dst[dstIdx]
					if p.ConjC {
						cv = conj(cv)
					}
					p.Dst[dstIdx] = p.Alpha*cv + sum
				}
			}
		}
	}
}

// conj negates the imaginary part of v when T is a complex type,
// matching the Rust Conj trait (identity for real element types).
func conj[T Element](v T) T {
	switch x := any(v).(type) {
	case complex64:
		return any(complex(real(x), -imag(x))).(T)
	case complex128:
		return any(complex(real(x), -imag(x))).(T)
	default:
		return v
	}
}
