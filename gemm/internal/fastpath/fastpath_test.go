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

package fastpath

import (
	"math/rand"
	"testing"
)

func TestGEVVMatchesNaiveForK1AndK2(t *testing.T) {
	for _, k := range []int{1, 2} {
		m, n := 6, 5
		a := make([]float32, m*k)
		b := make([]float32, k*n)
		for i := range a {
			a[i] = rand.Float32()
		}
		for i := range b {
			b[i] = rand.Float32()
		}
		c := make([]float32, m*n)
		want := make([]float32, m*n)

		beta := float32(1.5)
		GEVV(m, n, k, c, n, 1, a, k, 1, b, n, 1, beta)

		for i := 0; i < m; i++ {
			for j := 0; j < n; j++ {
				var sum float32
				for d := 0; d < k; d++ {
					sum += a[i*k+d] * b[d*n+j]
				}
				want[i*n+j] = beta * sum
			}
		}
		for i := range c {
			if d := c[i] - want[i]; d > 1e-4 || d < -1e-4 {
				t.Fatalf("k=%d idx=%d: got %v want %v", k, i, c[i], want[i])
			}
		}
	}
}

func TestGEMVMatchesNaive(t *testing.T) {
	m, k := 9, 13
	a := make([]float32, m*k)
	b := make([]float32, k)
	for i := range a {
		a[i] = rand.Float32()
	}
	for i := range b {
		b[i] = rand.Float32()
	}
	c := make([]float32, m)
	beta := float32(2)

	GEMV(m, k, c, 1, a, k, 1, b, 1, beta)

	for i := 0; i < m; i++ {
		var sum float32
		for d := 0; d < k; d++ {
			sum += a[i*k+d] * b[d]
		}
		want := beta * sum
		if d := c[i] - want; d > 1e-3 || d < -1e-3 {
			t.Fatalf("idx=%d: got %v want %v", i, c[i], want)
		}
	}
}

func TestGEMVTransposedMatchesGEMVSwap(t *testing.T) {
	n, k := 7, 11
	a := make([]float32, k) // 1 x k
	b := make([]float32, k*n)
	for i := range a {
		a[i] = rand.Float32()
	}
	for i := range b {
		b[i] = rand.Float32()
	}
	c := make([]float32, n)
	beta := float32(0.75)

	GEMVTransposed(n, k, c, 1, a, 1, b, n, 1, beta)

	for j := 0; j < n; j++ {
		var sum float32
		for d := 0; d < k; d++ {
			sum += a[d] * b[d*n+j]
		}
		want := beta * sum
		if d := c[j] - want; d > 1e-3 || d < -1e-3 {
			t.Fatalf("idx=%d: got %v want %v", j, c[j], want)
		}
	}
}
