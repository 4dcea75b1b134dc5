// Package dot provides dot product operations.
// This package corresponds to Google Highway's hwy/contrib/dot directory.
//
// # Dot Product Functions
//
// The package provides dot product computations for float32 and float64 slices:
//   - Dot(a, b []float32) float32 - Single dot product for float32
//   - Dot64(a, b []float64) float64 - Single dot product for float64
//   - DotBatch(queries, keys [][]float32) []float32 - Batch dot products
//
// # Algorithm
//
// The implementation in this package (dot_scalar.go) is a scalar loop that
// multiplies and accumulates element by element over min(len(a), len(b))
// elements.
//
// # Example Usage
//
//	import "github.com/ajroetker/go-highway/hwy/contrib/dot"
//
//	// Simple dot product
//	a := []float32{1, 2, 3, 4, 5, 6, 7, 8}
//	b := []float32{8, 7, 6, 5, 4, 3, 2, 1}
//	result := dot.Dot(a, b)  // 120.0
//
//	// Batch dot products (useful for ML applications)
//	queries := [][]float32{
//	    {1, 2, 3},
//	    {4, 5, 6},
//	}
//	keys := [][]float32{
//	    {7, 8, 9},
//	    {1, 2, 3},
//	}
//	results := dot.DotBatch(queries, keys)  // [50.0, 32.0]
//
// # Build Requirements
//
// dot_scalar.go is built for every target except amd64 with
// GOEXPERIMENT=simd; this package has no SIMD implementation, so that
// one configuration has no dotImpl32/dotImpl64 and does not build.
package dot
