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

// Package gemm implements the cache-blocked BLAS-3 dense matrix
// multiply C <- alpha*opC(C) + beta*opL(A)*opR(B), the core algorithm
// this module exists for. The driver (this file) ports
// gemm_basic_generic's tiling/packing/scheduling shape from the
// original Rust source into Go, in the same fork-join style the
// teacher's ParallelMatMul/BlockedMatMul use, generalized to arbitrary
// strides, all four scalar element types, and conjugation.
package gemm

import (
	"runtime"
	"unsafe"

	"github.com/ajroetker/go-highway/gemm/cache"
	"github.com/ajroetker/go-highway/gemm/internal/fastpath"
	"github.com/ajroetker/go-highway/gemm/kernel"
	"github.com/ajroetker/go-highway/gemm/pack"
	"github.com/ajroetker/go-highway/gemm/workerpool"
)

// Register tile shape. A real SIMD tier would derive MR from the
// lane count at the current dispatch level (hwy.MaxLanes[T]()); the
// reference tier here fixes a conservative 4x4 tile, matching the
// mr=4 register blocking BaseBlockMulAddRegBlocked uses for its square
// kernel.
const (
	mr = 4
	nr = 4
)

// Parallelism is a tagged value selecting serial execution (the zero
// value) or a worker pool capped at maxThreads goroutines (0 meaning
// "use all cores"). The name is preserved from the Rust source's
// Parallelism::Rayon variant rather than renamed to something
// Go-flavored, since it names a scheduling *policy* (bounded
// fork-join over a worker pool), not the Rayon library itself.
type Parallelism struct {
	threaded   bool
	maxThreads int
}

// None is the zero-value Parallelism: run the driver single-threaded.
var None = Parallelism{}

// Rayon selects threaded execution capped at maxThreads goroutines;
// maxThreads <= 0 means "use GOMAXPROCS".
func Rayon(maxThreads int) Parallelism {
	return Parallelism{threaded: true, maxThreads: maxThreads}
}

func (p Parallelism) numThreads(w int64) int {
	if !p.threaded {
		return 1
	}
	max := p.maxThreads
	if max <= 0 {
		max = runtime.GOMAXPROCS(0)
	}
	t := ThreadingThreshold()
	if w <= t {
		return 1
	}
	n := (w - t + 1) / t
	if n < 1 {
		n = 1
	}
	if n > int64(max) {
		n = int64(max)
	}
	return int(n)
}

// Float32 computes C <- alpha*opC(C) + beta*opL(A)*opR(B) for float32
// operands. See the package doc for the algorithm; see Float64,
// Complex64, Complex128, Float16 for the other element-type entry
// points.
func Float32(m, n, k int, c []float32, dstCS, dstRS int, readDst bool,
	a []float32, lhsCS, lhsRS int, b []float32, rhsCS, rhsRS int,
	alpha, beta float32, conjDst, conjLhs, conjRhs bool, parallelism Parallelism) {
	run(m, n, k, c, dstCS, dstRS, readDst, a, lhsCS, lhsRS, b, rhsCS, rhsRS, alpha, beta, conjDst, conjLhs, conjRhs, parallelism)
}

// Float64 computes C <- alpha*opC(C) + beta*opL(A)*opR(B) for float64
// operands.
func Float64(m, n, k int, c []float64, dstCS, dstRS int, readDst bool,
	a []float64, lhsCS, lhsRS int, b []float64, rhsCS, rhsRS int,
	alpha, beta float64, conjDst, conjLhs, conjRhs bool, parallelism Parallelism) {
	run(m, n, k, c, dstCS, dstRS, readDst, a, lhsCS, lhsRS, b, rhsCS, rhsRS, alpha, beta, conjDst, conjLhs, conjRhs, parallelism)
}

// Complex64 computes C <- alpha*opC(C) + beta*opL(A)*opR(B) for
// complex64 operands, where opC/opL/opR independently conjugate per
// conjDst/conjLhs/conjRhs.
func Complex64(m, n, k int, c []complex64, dstCS, dstRS int, readDst bool,
	a []complex64, lhsCS, lhsRS int, b []complex64, rhsCS, rhsRS int,
	alpha, beta complex64, conjDst, conjLhs, conjRhs bool, parallelism Parallelism) {
	run(m, n, k, c, dstCS, dstRS, readDst, a, lhsCS, lhsRS, b, rhsCS, rhsRS, alpha, beta, conjDst, conjLhs, conjRhs, parallelism)
}

// Complex128 computes C <- alpha*opC(C) + beta*opL(A)*opR(B) for
// complex128 operands.
func Complex128(m, n, k int, c []complex128, dstCS, dstRS int, readDst bool,
	a []complex128, lhsCS, lhsRS int, b []complex128, rhsCS, rhsRS int,
	alpha, beta complex128, conjDst, conjLhs, conjRhs bool, parallelism Parallelism) {
	run(m, n, k, c, dstCS, dstRS, readDst, a, lhsCS, lhsRS, b, rhsCS, rhsRS, alpha, beta, conjDst, conjLhs, conjRhs, parallelism)
}

// run is the shared generic driver every exported element-type entry
// point above calls into.
func run[T kernel.Element](m, n, k int, c []T, dstCS, dstRS int, readDst bool,
	a []T, lhsCS, lhsRS int, b []T, rhsCS, rhsRS int,
	alpha, beta T, conjDst, conjLhs, conjRhs bool, parallelism Parallelism) {

	// (i) m=0 or n=0: nothing to do.
	if m == 0 || n == 0 {
		return
	}

	// (ii) read_dst=false forces alpha <- 0.
	if !readDst {
		var zero T
		alpha = zero
	}

	// (iii) k=0 collapses to C <- alpha*opC(C), four shortcuts.
	if k == 0 {
		collapseK0(m, n, c, dstCS, dstRS, alpha, conjDst)
		return
	}

	// (iv) fast paths before tiling. GEVV/GEMV only ever accumulate
	// beta*opL(A)*opR(B) via +=, so C must already hold alpha*opC(C)
	// (here, with no conjugation, just alpha*C) before they run.
	if !conjDst && !conjLhs && !conjRhs {
		if k <= 2 {
			scaleByAlpha(m, n, c, dstCS, dstRS, alpha, readDst)
			fastpath.GEVV(m, n, k, c, dstRS, dstCS, a, lhsRS, lhsCS, b, rhsRS, rhsCS, beta)
			return
		}
		absRhsCS, absRhsRS := abs(rhsCS), abs(rhsRS)
		if m <= 1 && absRhsCS <= absRhsRS {
			scaleByAlpha(m, n, c, dstCS, dstRS, alpha, readDst)
			fastpath.GEMVTransposed(n, k, c, dstCS, a, lhsCS, b, rhsRS, rhsCS, beta)
			return
		}
		absLhsRS, absLhsCS := abs(lhsRS), abs(lhsCS)
		if n <= 1 && absLhsRS <= absLhsCS {
			scaleByAlpha(m, n, c, dstCS, dstRS, alpha, readDst)
			fastpath.GEMV(m, k, c, dstRS, a, lhsRS, lhsCS, b, rhsRS, beta)
			return
		}
	}

	tiled(m, n, k, c, dstCS, dstRS, a, lhsCS, lhsRS, b, rhsCS, rhsRS, alpha, beta, conjDst, conjLhs, conjRhs, parallelism)
}

// scaleByAlpha applies C <- alpha*C in place (identity, the common
// case, when alpha == 1), the preparation step the GEVV/GEMV fast
// paths need since they only ever add beta*A*B via +=.
func scaleByAlpha[T kernel.Element](m, n int, c []T, dstCS, dstRS int, alpha T, readDst bool) {
	var zero T
	one := identityOf(zero)
	if alpha == one {
		return
	}
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			idx := i*dstRS + j*dstCS
			var v T
			if readDst {
				v = c[idx]
			}
			c[idx] = alpha * v
		}
	}
}

func identityOf[T kernel.Element](zero T) T {
	switch any(zero).(type) {
	case float32:
		return any(float32(1)).(T)
	case float64:
		return any(float64(1)).(T)
	case complex64:
		return any(complex64(1)).(T)
	case complex128:
		return any(complex128(1)).(T)
	default:
		return zero
	}
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}

// collapseK0 implements the k=0 four-way switch: C <- alpha*opC(C).
func collapseK0[T kernel.Element](m, n int, c []T, dstCS, dstRS int, alpha T, conjC bool) {
	var zero T
	one := identityOf(zero)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			idx := i*dstRS + j*dstCS
			switch {
			case alpha == zero:
				c[idx] = zero
			case alpha == one && !conjC:
				// identity: C unchanged.
			case alpha == one && conjC:
				c[idx] = pack.Conj(c[idx])
			default:
				v := c[idx]
				if conjC {
					v = pack.Conj(v)
				}
				c[idx] = alpha * v
			}
		}
	}
}

// shouldPackRHS decides whether to pack a strided B rather than consume
// it in place. ARM64 packs unconditionally (no SME/NEON-friendly
// strided load path in this module's reference tier); x86 packs only
// when the RHS packing threshold is exceeded, i.e. when B is not
// already column-contiguous and m is large enough to amortize the
// packing cost. This resolves spec.md's "open question" on the
// platform-dependent packing decision as a runtime branch on
// runtime.GOARCH rather than a build-tag file split, since both
// strategies are plain Go with no architecture-specific intrinsics.
func shouldPackRHS(m, rhsCS int) bool {
	if runtime.GOARCH == "arm64" {
		return true
	}
	return rhsCS != 1 && int64(m) > RHSPackingThreshold()*int64(mr)
}

func shouldPackLHS(mChunk, nChunk, lhsRS int, threaded bool) bool {
	if mChunk%mr != 0 || lhsRS != 1 {
		return true
	}
	threshold := LHSPackingThresholdSingle()
	if threaded {
		threshold = LHSPackingThresholdMulti()
	}
	return int64(nChunk) > threshold*int64(nr)
}

// tiled runs the canonical BLIS-style triple loop: n-loop (col_outer)
// outermost, k-loop (depth_outer) inside it, m-loop (row_outer)
// innermost, with B-packing and microkernel dispatch fork-joined across
// a worker pool per (col_outer, depth_outer) phase.
func tiled[T kernel.Element](m, n, k int, c []T, dstCS, dstRS int,
	a []T, lhsCS, lhsRS int, b []T, rhsCS, rhsRS int,
	alpha, beta T, conjDst, conjLhs, conjRhs bool, parallelism Parallelism) {

	elemSize := elemSizeOf[T]()
	_, kc, ncHint := cache.BlockSizes(m, n, k, mr, nr, elemSize)

	var pool *workerpool.Pool
	threaded := parallelism.threaded
	if threaded {
		workers := parallelism.maxThreads
		if workers <= 0 {
			workers = runtime.GOMAXPROCS(0)
		}
		pool = workerpool.New(workers, kc*mr*elemSize)
		defer pool.Close()
	}

	cp := cache.Sequential
	if threaded {
		cp = cache.Threaded
	}
	nc := cache.Substitute(ncHint, n, nr, cp)

	for colOuter := 0; colOuter < n; colOuter += nc {
		nChunk := min(nc, n-colOuter)

		// alpha/conjDst are consumed on the first depth_outer slice only;
		// subsequent slices run with alpha=1, conjDst=false so
		// accumulation across k-tiles is a pure addition (spec.md
		// invariant iii / the Rust source's conj_dst=false; alpha.set_one()).
		sliceAlpha := alpha
		sliceConjDst := conjDst
		first := true

		for depthOuter := 0; depthOuter < k; depthOuter += kc {
			kChunk := min(kc, k-depthOuter)

			w := int64(m) * int64(nChunk) * int64(kChunk)
			nThreads := parallelism.numThreads(w)

			packedB := make([]T, ((nChunk+nr-1)/nr)*kChunk*nr)
			bBase := depthOuter*rhsRS + colOuter*rhsCS
			if shouldPackRHS(m, rhsCS) {
				if nThreads <= 1 {
					pack.RHS(b[bBase:], rhsRS, rhsCS, kChunk, nChunk, nr, conjRhs, packedB)
				} else {
					packRHSParallel(pool, nThreads, b[bBase:], rhsRS, rhsCS, kChunk, nChunk, nr, conjRhs, packedB)
				}
			} else {
				packedB = nil
			}

			runRowBands(pool, nThreads, m, nChunk, kChunk, c, dstCS, dstRS, colOuter,
				a, lhsCS, lhsRS, depthOuter, b, rhsCS, rhsRS, bBase, packedB,
				sliceAlpha, beta, sliceConjDst, conjLhs, conjRhs, threaded)

			if first {
				sliceAlpha = identityOf(sliceAlpha)
				sliceConjDst = false
				first = false
			}
		}
	}
}

// packRHSParallel partitions the NR-strided columns of B's panel as
// evenly as possible across nThreads and packs each slice concurrently.
func packRHSParallel[T kernel.Element](pool *workerpool.Pool, nThreads int, b []T, rhsRS, rhsCS, kChunk, nChunk, nr int, conjRhs bool, packedB []T) {
	numStrips := (nChunk + nr - 1) / nr
	stripElems := kChunk * nr
	pool.ParallelFor(nThreads, func(_, tStart, tEnd int) {
		for t := tStart; t < tEnd; t++ {
			for strip := t * numStrips / nThreads; strip < (t+1)*numStrips/nThreads; strip++ {
				colStart := strip * nr
				cols := min(nr, nChunk-colStart)
				pack.RHS(b[colStart*rhsCS:], rhsRS, rhsCS, kChunk, cols, nr, conjRhs, packedB[strip*stripElems:])
			}
		}
	})
}

// runRowBands enumerates every (row_outer, j_col, i_row) micro-job for
// this (col_outer, depth_outer) phase and fork-joins it across the pool
// (or runs it inline when nThreads<=1), mirroring the Rust driver's
// static round-robin job partition: each worker gets a contiguous
// range of the flattened job index space.
func runRowBands[T kernel.Element](pool *workerpool.Pool, nThreads int, m, nChunk, kChunk int,
	c []T, dstCS, dstRS, colOuter int,
	a []T, lhsCS, lhsRS, depthOuter int,
	b []T, rhsCS, rhsRS, bBase int, packedB []T,
	alpha, beta T, conjDst, conjLhs, conjRhs bool, threaded bool) {

	mcHint, _, _ := cache.BlockSizes(m, nChunk, kChunk, mr, nr, elemSizeOf[T]())
	mc := mcHint
	if mc <= 0 {
		mc = m
	}

	numRowBands := (m + mc - 1) / mc
	numColTiles := (nChunk + nr - 1) / nr

	totalJobs := 0
	bandRowTiles := make([]int, numRowBands)
	for band := 0; band < numRowBands; band++ {
		rowStart := band * mc
		rows := min(mc, m-rowStart)
		tiles := (rows + mr - 1) / mr
		bandRowTiles[band] = tiles
		totalJobs += tiles * numColTiles
	}

	// Sequential fallback scratch for when there's no pool to draw a
	// thread-local buffer from (parallelism==None); reused across every
	// job in this phase instead of allocated per job.
	seqScratch := make([]T, kChunk*mr)

	doJob := func(workerID, jobID int) {
		band, rowTileInBand, colTile := jobFromID(jobID, bandRowTiles, numColTiles)
		rowStart := band * mc
		rows := min(mc, m-rowStart)

		tileRowStart := rowTileInBand * mr
		mTile := min(mr, rows-tileRowStart)
		tileColStart := colTile * nr
		nTile := min(nr, nChunk-tileColStart)

		dstOff := (rowStart+tileRowStart)*dstRS + (colOuter+tileColStart)*dstCS

		var p kernel.Params[T]
		p.MTile = mTile
		p.NTile = nTile
		p.K = kChunk
		p.Dst = c[dstOff:]
		p.DstCS = dstCS
		p.DstRS = dstRS
		p.Alpha = alpha
		p.Beta = beta
		p.ConjC = conjDst
		p.ConjL = conjLhs
		p.ConjR = conjRhs
		p.AlphaStatus = alphaStatusOf(alpha)

		if shouldPackLHS(rows, nChunk, lhsRS, threaded) {
			var packedA []T
			if pool != nil {
				packedA = scratchAsLHS[T](pool.Scratch(workerID), kChunk, mr)
			} else {
				packedA = seqScratch
			}
			pack.LHS(a[depthOuter*lhsCS+(rowStart+tileRowStart)*lhsRS:], lhsRS, lhsCS, mTile, kChunk, mr, conjLhs, packedA)
			p.PackedA = packedA
			p.ARowStride, p.ADepthStride = 1, mr
			p.ConjL = false // pack.LHS already conjugated A
		} else {
			p.PackedA = a[depthOuter*lhsCS+(rowStart+tileRowStart)*lhsRS:]
			p.ARowStride, p.ADepthStride = lhsRS, lhsCS
		}

		if packedB != nil {
			p.PackedB = packedB[colTile*kChunk*nr:]
			p.BDepthStride, p.BColStride = nr, 1
			p.ConjR = false // pack.RHS already conjugated B
		} else {
			p.PackedB = b[bBase+tileColStart*rhsCS:]
			p.BDepthStride, p.BColStride = rhsRS, rhsCS
		}

		kernel.Run(p)
	}

	if nThreads <= 1 || pool == nil {
		for job := 0; job < totalJobs; job++ {
			doJob(0, job)
		}
		return
	}

	jobsPerThread := totalJobs / nThreads
	remainder := totalJobs % nThreads
	var starts, ends []int
	start := 0
	for t := 0; t < nThreads; t++ {
		count := jobsPerThread
		if t < remainder {
			count++
		}
		starts = append(starts, start)
		ends = append(ends, start+count)
		start += count
	}

	pool.ParallelFor(nThreads, func(workerID, loStart, loEnd int) {
		for t := loStart; t < loEnd; t++ {
			for job := starts[t]; job < ends[t]; job++ {
				doJob(workerID, job)
			}
		}
	})
}

// scratchAsLHS reinterprets a worker's persistent byte scratch (sized by
// tiled at kc*mr*elemSize) as a []T of exactly kChunk*mr elements, the
// one packed-A micro-panel a single doJob call ever needs. The pool
// sizes scratch off the phase's outer kc, which always bounds kChunk,
// so the reinterpreted slice is always large enough.
func scratchAsLHS[T kernel.Element](scratch []byte, kChunk, mr int) []T {
	n := kChunk * mr
	return unsafe.Slice((*T)(unsafe.Pointer(&scratch[0])), n)
}

// jobFromID maps a flattened job index back to (rowBand, rowTileInBand,
// colTile), matching the fixed deterministic enumeration order the
// driver and every worker agree on.
func jobFromID(jobID int, bandRowTiles []int, numColTiles int) (band, rowTileInBand, colTile int) {
	for band = 0; band < len(bandRowTiles); band++ {
		bandJobs := bandRowTiles[band] * numColTiles
		if jobID < bandJobs {
			rowTileInBand = jobID / numColTiles
			colTile = jobID % numColTiles
			return
		}
		jobID -= bandJobs
	}
	return len(bandRowTiles) - 1, 0, 0
}

func alphaStatusOf[T kernel.Element](alpha T) kernel.AlphaStatus {
	var zero T
	if alpha == zero {
		return kernel.AlphaZero
	}
	if alpha == identityOf(zero) {
		return kernel.AlphaOne
	}
	return kernel.AlphaOther
}

func elemSizeOf[T kernel.Element]() int {
	var zero T
	switch any(zero).(type) {
	case float32:
		return 4
	case float64:
		return 8
	case complex64:
		return 8
	case complex128:
		return 16
	default:
		return 8
	}
}
