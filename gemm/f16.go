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

import (
	"runtime"

	"github.com/ajroetker/go-highway/gemm/pack"
	"github.com/ajroetker/go-highway/gemm/workerpool"
	"github.com/ajroetker/go-highway/hwy"
	"github.com/ajroetker/go-highway/hwy/contrib/dot"
)

// Float16 computes C <- alpha*C + beta*A*B for hwy.Float16 operands.
// Mirrors Float32/Float64 but keeps alpha/beta as float32 (matching the
// Rust gemm-f16 driver, which keeps alpha: f32 while the element type
// is the narrow one) and accumulates entirely in float32: packing
// widens A/B on the way in, the microkernel writes into a float32 tile,
// and the result is narrowed back to Float16 only on the final
// writeback (gemm-f16/src/gemm.rs's alpha_status 3-way switch).
//
// conjugation is not offered here: gemm-f16 has no complex
// instantiation, matching the Rust source this is ported from.
func Float16(m, n, k int, c []hwy.Float16, dstCS, dstRS int, readDst bool,
	a []hwy.Float16, lhsCS, lhsRS int, b []hwy.Float16, rhsCS, rhsRS int,
	alpha, beta float32, parallelism Parallelism) {

	if m == 0 || n == 0 {
		return
	}
	if !readDst {
		alpha = 0
	}

	if k == 0 {
		collapseK0F16(m, n, c, dstCS, dstRS, alpha)
		return
	}

	if k <= 2 {
		gevvF16(m, n, k, c, dstCS, dstRS, a, lhsCS, lhsRS, b, rhsCS, rhsRS, alpha, beta)
		return
	}
	if m <= 1 && abs(rhsCS) <= abs(rhsRS) {
		gemvF16Transposed(n, k, c, dstCS, a, lhsCS, b, rhsRS, rhsCS, alpha, beta)
		return
	}
	if n <= 1 && abs(lhsRS) <= abs(lhsCS) {
		gemvF16(m, k, c, dstRS, a, lhsRS, lhsCS, b, rhsRS, alpha, beta)
		return
	}

	tiledF16(m, n, k, c, dstCS, dstRS, a, lhsCS, lhsRS, b, rhsCS, rhsRS, alpha, beta, parallelism)
}

func collapseK0F16(m, n int, c []hwy.Float16, dstCS, dstRS int, alpha float32) {
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			idx := i*dstRS + j*dstCS
			switch alpha {
			case 0:
				c[idx] = hwy.Float32ToFloat16(0)
			case 1:
				// identity: C unchanged.
			default:
				c[idx] = hwy.Float32ToFloat16(alpha * c[idx].Float32())
			}
		}
	}
}

// narrow applies the alpha_status 3-way switch from gemm-f16/src/gemm.rs:
// 0 (alpha==0) assigns the tile value, 1 (alpha==1) adds it to the
// existing C, otherwise narrows alpha*C + tile.
func narrowF16(prevC, tile float32, alpha float32) float32 {
	switch alpha {
	case 0:
		return tile
	case 1:
		return prevC + tile
	default:
		return alpha*prevC + tile
	}
}

func gevvF16(m, n, k int, c []hwy.Float16, dstCS, dstRS int, a []hwy.Float16, lhsCS, lhsRS int, b []hwy.Float16, rhsCS, rhsRS int, alpha, beta float32) {
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			var sum float32
			for d := 0; d < k; d++ {
				sum += a[i*lhsRS+d*lhsCS].Float32() * b[d*rhsRS+j*rhsCS].Float32()
			}
			idx := i*dstRS + j*dstCS
			c[idx] = hwy.Float32ToFloat16(narrowF16(c[idx].Float32(), beta*sum, alpha))
		}
	}
}

func gemvF16(m, k int, c []hwy.Float16, dstRS int, a []hwy.Float16, lhsRS, lhsCS int, b []hwy.Float16, rhsRS int, alpha, beta float32) {
	af := make([]float32, k)
	bf := make([]float32, k)
	for d := 0; d < k; d++ {
		bf[d] = b[d*rhsRS].Float32()
	}
	for i := 0; i < m; i++ {
		for d := 0; d < k; d++ {
			af[d] = a[i*lhsRS+d*lhsCS].Float32()
		}
		// dot.Dot is the portable reduction dot_base.go exposes; widened
		// operands make it directly applicable here.
		sum := dot.Dot(af, bf)
		idx := i * dstRS
		c[idx] = hwy.Float32ToFloat16(narrowF16(c[idx].Float32(), beta*sum, alpha))
	}
}

func gemvF16Transposed(n, k int, c []hwy.Float16, dstCS int, a []hwy.Float16, lhsCS int, b []hwy.Float16, rhsRS, rhsCS int, alpha, beta float32) {
	gemvF16(n, k, c, dstCS, b, rhsCS, rhsRS, a, lhsCS, alpha, beta)
}

// tiledF16 runs the same col/depth/row triple loop as tiled: each
// (colOuter, depthOuter) phase packs B once, then fans the row bands of
// that phase out across parallelism's worker pool. Unlike tiled it does
// not consult the block-size selector: column panels are 128·nr wide,
// depth slices 256 deep and row bands 128·mr tall. The unit handed to
// the pool is a whole row band (packed into a freshly allocated panel),
// not an individual mr×nr tile job as in runRowBands.
func tiledF16(m, n, k int, c []hwy.Float16, dstCS, dstRS int,
	a []hwy.Float16, lhsCS, lhsRS int, b []hwy.Float16, rhsCS, rhsRS int,
	alpha, beta float32, parallelism Parallelism) {

	const rowBand = 128 * mr

	var pool *workerpool.Pool
	if parallelism.threaded {
		workers := parallelism.maxThreads
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		pool = workerpool.New(workers, 0)
		defer pool.Close()
	}

	for colOuter := 0; colOuter < n; colOuter += 128 * nr {
		nChunk := min(128*nr, n-colOuter)
		for depthOuter := 0; depthOuter < k; depthOuter += 256 {
			kChunk := min(256, k-depthOuter)
			bBase := depthOuter*rhsRS + colOuter*rhsCS

			packedB := make([]float32, ((nChunk+nr-1)/nr)*kChunk*nr)
			pack.RHSF16(b[bBase:], rhsRS, rhsCS, kChunk, nChunk, nr, packedB)

			sliceAlpha := alphaForSlice(alpha, depthOuter)
			numRowBands := (m + rowBand - 1) / rowBand

			runBand := func(band int) {
				rowOuter := band * rowBand
				rows := min(rowBand, m-rowOuter)
				packedA := make([]float32, ((rows+mr-1)/mr)*kChunk*mr)
				pack.LHSF16(a[depthOuter*lhsCS+rowOuter*lhsRS:], lhsRS, lhsCS, rows, kChunk, mr, packedA)

				numRowTiles := (rows + mr - 1) / mr
				numColTiles := (nChunk + nr - 1) / nr
				for it := 0; it < numRowTiles; it++ {
					mTile := min(mr, rows-it*mr)
					for jt := 0; jt < numColTiles; jt++ {
						nTile := min(nr, nChunk-jt*nr)
						computeTileF16(mTile, nTile, kChunk,
							packedA[it*kChunk*mr:], mr,
							packedB[jt*kChunk*nr:], nr,
							c, dstCS, dstRS, rowOuter+it*mr, colOuter+jt*nr,
							sliceAlpha, beta)
					}
				}
			}

			w := int64(m) * int64(nChunk) * int64(kChunk)
			nThreads := parallelism.numThreads(w)
			if nThreads <= 1 || pool == nil || numRowBands <= 1 {
				for band := 0; band < numRowBands; band++ {
					runBand(band)
				}
				continue
			}

			pool.ParallelFor(numRowBands, func(_, start, end int) {
				for band := start; band < end; band++ {
					runBand(band)
				}
			})
		}
	}
}

func alphaForSlice(alpha float32, depthOuter int) float32 {
	if depthOuter == 0 {
		return alpha
	}
	return 1
}

// computeTileF16 runs the fp32-accumulating microkernel for one MR×NR
// tile and narrows the result back to Float16 on writeback via
// narrowF16's alpha_status switch, per gemm-f16/src/gemm.rs.
func computeTileF16(mTile, nTile, k int, packedA []float32, mr int, packedB []float32, nr int,
	c []hwy.Float16, dstCS, dstRS, rowBase, colBase int, alpha, beta float32) {

	var tile [64]float32 // mr*nr <= 64 for the mr=nr=4..8 reference tile shapes used here
	for i := 0; i < mTile; i++ {
		for j := 0; j < nTile; j++ {
			var sum float32
			for kk := 0; kk < k; kk++ {
				sum += packedA[kk*mr+i] * packedB[kk*nr+j]
			}
			tile[i*nr+j] = beta * sum
		}
	}

	for i := 0; i < mTile; i++ {
		for j := 0; j < nTile; j++ {
			idx := (rowBase+i)*dstRS + (colBase+j)*dstCS
			c[idx] = hwy.Float32ToFloat16(narrowF16(c[idx].Float32(), tile[i*nr+j], alpha))
		}
	}
}
