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

// Package pack reformats A/B panels into the contiguous, MR- or
// NR-strided layout the kernel package's microkernels expect, following
// the shape of BasePackLHS/BasePackRHSVec but generalized to arbitrary
// row/col strides (rather than assuming row-major) and to the
// conjugation flags the driver threads through packing.
package pack

import "github.com/ajroetker/go-highway/hwy"

// LHS packs an m_chunk×kc panel of A (source element at
// base+i*rs+d*cs) into dst, organized as micro-panels of mr rows:
// dst[(i/mr)*(kc*mr) + d*mr + i%mr]. The final micro-panel is zero-padded
// up to mr rows if m_chunk is not a multiple of mr, satisfying the
// zero-fill invariant the microkernel relies on to run unconditionally
// on full micro-rows. If conj is set, each packed element is conjugated.
func LHS[T Conjable](src []T, rs, cs int, rows, depth, mr int, conj bool, dst []T) {
	numPanels := (rows + mr - 1) / mr
	fullPanels := numPanels
	activeLast := rows - (numPanels-1)*mr
	if activeLast < mr {
		fullPanels--
	}

	idx := 0
	for panel := 0; panel < fullPanels; panel++ {
		base := panel * mr
		for d := 0; d < depth; d++ {
			for r := 0; r < mr; r++ {
				v := src[(base+r)*rs+d*cs]
				if conj {
					v = Conj(v)
				}
				dst[idx] = v
				idx++
			}
		}
	}

	if activeLast < mr && activeLast > 0 {
		base := fullPanels * mr
		for d := 0; d < depth; d++ {
			for r := 0; r < activeLast; r++ {
				v := src[(base+r)*rs+d*cs]
				if conj {
					v = Conj(v)
				}
				dst[idx] = v
				idx++
			}
			for r := activeLast; r < mr; r++ {
				dst[idx] = zero[T]()
				idx++
			}
		}
	}
}

// RHS packs a kc×n_chunk panel of B (source element at
// base+d*rs+j*cs) into dst, organized as micro-panels of nr columns:
// dst[(j/nr)*(kc*nr) + d*nr + j%nr]. Same zero-fill rule as LHS, applied
// to the column axis.
func RHS[T Conjable](src []T, rs, cs int, depth, cols, nr int, conj bool, dst []T) {
	idx := 0
	for strip := 0; strip < cols; strip += nr {
		validCols := nr
		if cols-strip < nr {
			validCols = cols - strip
		}
		for d := 0; d < depth; d++ {
			for c := 0; c < validCols; c++ {
				v := src[d*rs+(strip+c)*cs]
				if conj {
					v = Conj(v)
				}
				dst[idx] = v
				idx++
			}
			for c := validCols; c < nr; c++ {
				dst[idx] = zero[T]()
				idx++
			}
		}
	}
}

// Conjable is the element-type constraint pack operates over: the four
// native-arithmetic GEMM element types plus the conjugation hook.
type Conjable interface {
	~float32 | ~float64 | ~complex64 | ~complex128
}

// Conj negates the imaginary part of v; identity for real element types,
// matching the Rust Conj trait.
func Conj[T Conjable](v T) T {
	switch x := any(v).(type) {
	case complex64:
		return any(complex(real(x), -imag(x))).(T)
	case complex128:
		return any(complex(real(x), -imag(x))).(T)
	default:
		return v
	}
}

func zero[T Conjable]() T {
	var z T
	return z
}

// LHSF16 packs an m_chunk×kc panel of hwy.Float16 A, widening every
// element to float32 during the copy, matching gemm-f16's pack_lhs_f16
// (pack to fp32 accumulators so the microkernel never operates on the
// narrow type directly).
func LHSF16(src []hwy.Float16, rs, cs int, rows, depth, mr int, dst []float32) {
	numPanels := (rows + mr - 1) / mr
	fullPanels := numPanels
	activeLast := rows - (numPanels-1)*mr
	if activeLast < mr {
		fullPanels--
	}

	idx := 0
	for panel := 0; panel < fullPanels; panel++ {
		base := panel * mr
		for d := 0; d < depth; d++ {
			for r := 0; r < mr; r++ {
				dst[idx] = src[(base+r)*rs+d*cs].Float32()
				idx++
			}
		}
	}

	if activeLast < mr && activeLast > 0 {
		base := fullPanels * mr
		for d := 0; d < depth; d++ {
			for r := 0; r < activeLast; r++ {
				dst[idx] = src[(base+r)*rs+d*cs].Float32()
				idx++
			}
			for r := activeLast; r < mr; r++ {
				dst[idx] = 0
				idx++
			}
		}
	}
}

// RHSF16 packs a kc×n_chunk panel of hwy.Float16 B, widening to float32,
// matching gemm-f16's pack_rhs_f16.
func RHSF16(src []hwy.Float16, rs, cs int, depth, cols, nr int, dst []float32) {
	idx := 0
	for strip := 0; strip < cols; strip += nr {
		validCols := nr
		if cols-strip < nr {
			validCols = cols - strip
		}
		for d := 0; d < depth; d++ {
			for c := 0; c < validCols; c++ {
				dst[idx] = src[d*rs+(strip+c)*cs].Float32()
				idx++
			}
			for c := validCols; c < nr; c++ {
				dst[idx] = 0
				idx++
			}
		}
	}
}
