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

package hwy

import (
	"math"
	"os"
)

// Lanes is the set of element types a Vec can hold. Float16 and BFloat16
// are included through ~uint16, their underlying type.
type Lanes interface {
	~int8 | ~int16 | ~int32 | ~int64 |
		~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Floats restricts Lanes to the element types that carry IEEE/bfloat16
// fractional semantics.
type Floats interface {
	~float32 | ~float64 | Float16 | BFloat16
}

// Vec is a fixed-width SIMD vector of lanes of type T. The scalar backend
// in this file backs it with a plain slice; a build with SIMD intrinsics
// available would replace Vec's operations with native vector registers
// behind the same API.
type Vec[T Lanes] struct {
	data []T
}

// NumLanes reports the number of active lanes carried by v.
func (v Vec[T]) NumLanes() int {
	return len(v.data)
}

// elemSize returns sizeof(T) in bytes for the scalar lane types this
// package supports.
func elemSize[T Lanes]() int {
	var zero T
	switch any(zero).(type) {
	case int8, uint8:
		return 1
	case int16, uint16, Float16, BFloat16:
		return 2
	case int32, uint32, float32:
		return 4
	case int64, uint64, float64:
		return 8
	default:
		return 4
	}
}

// MaxLanes returns the number of T lanes a single vector holds at the
// current dispatch width.
func MaxLanes[T Lanes]() int {
	n := currentWidth / elemSize[T]()
	if n < 1 {
		n = 1
	}
	return n
}

// Mask is a per-lane boolean predicate produced by comparisons and
// consumed by IfThenElse/MaskLoad/MaskStore.
type Mask[T Lanes] struct {
	bits []bool
}

// MulAdd performs a fused multiply-add: a*b + c, element-wise.
// Named to match the accumulator-last FMA convention used throughout
// the matmul and reduction kernels in this module.
func MulAdd[T Floats](a, b, c Vec[T]) Vec[T] {
	n := len(a.data)
	if len(b.data) < n {
		n = len(b.data)
	}
	if len(c.data) < n {
		n = len(c.data)
	}
	result := make([]T, n)
	for i := 0; i < n; i++ {
		result[i] = fmaScalar(a.data[i], b.data[i], c.data[i])
	}
	return Vec[T]{data: result}
}

// InterleaveLower returns the low half of a and b interleaved:
// [a0, b0, a1, b1, ...] taken from the first len/2 lanes of each input.
func InterleaveLower[T Lanes](a, b Vec[T]) Vec[T] {
	n := len(a.data)
	if len(b.data) < n {
		n = len(b.data)
	}
	half := n / 2
	result := make([]T, n)
	for i := 0; i < half; i++ {
		result[2*i] = a.data[i]
		result[2*i+1] = b.data[i]
	}
	return Vec[T]{data: result}
}

// InterleaveUpper returns the upper half of a and b interleaved:
// [a(n/2), b(n/2), a(n/2+1), b(n/2+1), ...].
func InterleaveUpper[T Lanes](a, b Vec[T]) Vec[T] {
	n := len(a.data)
	if len(b.data) < n {
		n = len(b.data)
	}
	half := n / 2
	result := make([]T, n)
	for i := 0; i < n-half; i++ {
		result[2*i] = a.data[half+i]
		result[2*i+1] = b.data[half+i]
	}
	return Vec[T]{data: result}
}

// DispatchLevel identifies which instruction set the current process is
// using for vector operations.
type DispatchLevel int

const (
	DispatchScalar DispatchLevel = iota
	DispatchSSE2
	DispatchAVX2
	DispatchAVX512
)

// String renders the dispatch level using the same names CurrentName reports.
func (d DispatchLevel) String() string {
	switch d {
	case DispatchScalar:
		return "scalar"
	case DispatchSSE2:
		return "sse2"
	case DispatchAVX2:
		return "avx2"
	case DispatchAVX512:
		return "avx512"
	default:
		return "unknown"
	}
}

var (
	currentLevel DispatchLevel
	currentWidth int
	currentName  string
)

// NoSimdEnv reports whether SIMD dispatch has been disabled via the
// HWY_NO_SIMD environment variable.
func NoSimdEnv() bool {
	v := os.Getenv("HWY_NO_SIMD")
	return v != "" && v != "0"
}

// CurrentLevel returns the dispatch level chosen at process start.
func CurrentLevel() DispatchLevel {
	return currentLevel
}

// CurrentWidth returns the vector width, in bytes, at the current
// dispatch level.
func CurrentWidth() int {
	return currentWidth
}

// CurrentName returns a human-readable name for the current dispatch
// level, e.g. "avx2" or "scalar".
func CurrentName() string {
	return currentName
}

// Float16 is an IEEE 754 binary16 value stored as its raw bit pattern.
type Float16 uint16

// BFloat16 is a bfloat16 value (truncated float32: 1 sign, 8 exponent,
// 7 mantissa bits) stored as its raw bit pattern.
type BFloat16 uint16

// Float32 widens f to a float32.
func (f Float16) Float32() float32 {
	sign := uint32(f&0x8000) << 16
	exp := uint32(f&0x7c00) >> 10
	mant := uint32(f & 0x03ff)

	switch exp {
	case 0:
		if mant == 0 {
			return math.Float32frombits(sign)
		}
		// Subnormal: normalize.
		e := 0
		for mant&0x0400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x03ff
		exp32 := uint32(int32(127-15+1) + int32(e))
		bits := sign | (exp32 << 23) | (mant << 13)
		return math.Float32frombits(bits)
	case 0x1f:
		bits := sign | 0x7f800000 | (mant << 13)
		return math.Float32frombits(bits)
	default:
		exp32 := exp - 15 + 127
		bits := sign | (exp32 << 23) | (mant << 13)
		return math.Float32frombits(bits)
	}
}

// Float32 widens b to a float32.
func (b BFloat16) Float32() float32 {
	return math.Float32frombits(uint32(b) << 16)
}

// Float32ToFloat16 narrows v to binary16, rounding to nearest-even.
func Float32ToFloat16(v float32) Float16 {
	bits := math.Float32bits(v)
	sign := uint16((bits >> 16) & 0x8000)
	exp := int32((bits>>23)&0xff) - 127 + 15
	mant := bits & 0x7fffff

	switch {
	case (bits>>23)&0xff == 0xff:
		// Inf/NaN.
		m := uint16(0)
		if mant != 0 {
			m = 0x0200
		}
		return Float16(sign | 0x7c00 | m)
	case exp >= 0x1f:
		return Float16(sign | 0x7c00) // overflow to inf
	case exp <= 0:
		if exp < -10 {
			return Float16(sign) // underflow to zero
		}
		mant |= 0x800000
		shift := uint(14 - exp)
		rounded := mant >> shift
		if mant&(1<<(shift-1)) != 0 && (mant&(1<<(shift-1)-1) != 0 || rounded&1 != 0) {
			rounded++
		}
		return Float16(sign | uint16(rounded))
	default:
		roundBit := mant & 0x1000
		m16 := uint16(mant >> 13)
		if roundBit != 0 && (mant&0x0fff != 0 || m16&1 != 0) {
			m16++
		}
		// Addition (not OR) lets a mantissa carry bump the exponent.
		return Float16(sign | (uint16(exp)<<10 + m16))
	}
}

// Float32ToBFloat16 narrows v to bfloat16, rounding to nearest-even.
func Float32ToBFloat16(v float32) BFloat16 {
	bits := math.Float32bits(v)
	if bits&0x7fffffff > 0x7f800000 {
		// NaN: force a quiet NaN pattern.
		return BFloat16((bits >> 16) | 0x0040)
	}
	rounded := bits + 0x7fff + ((bits >> 16) & 1)
	return BFloat16(rounded >> 16)
}
