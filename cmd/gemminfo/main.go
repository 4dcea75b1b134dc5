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

// Package main provides a diagnostic tool reporting the runtime
// environment the gemm driver will tune itself for: CPU/OS identity,
// the Highway dispatch level in force, the cache-size descriptor
// BlockSizes computes against, and the current tunable-knob values.
package main

import (
	"fmt"
	"runtime"

	"golang.org/x/sys/cpu"

	"github.com/ajroetker/go-highway/gemm"
	"github.com/ajroetker/go-highway/gemm/cache"
	"github.com/ajroetker/go-highway/hwy"
)

func main() {
	fmt.Printf("GOOS: %s\n", runtime.GOOS)
	fmt.Printf("GOARCH: %s\n", runtime.GOARCH)
	fmt.Printf("NumCPU: %d\n", runtime.NumCPU())
	fmt.Println()

	fmt.Printf("Highway dispatch level: %s\n", hwy.CurrentLevel())
	fmt.Printf("Highway dispatch width: %d bytes\n", hwy.CurrentWidth())
	fmt.Printf("Highway dispatch name: %s\n", hwy.CurrentName())
	fmt.Println()

	switch runtime.GOARCH {
	case "arm64":
		printARM64Features()
	case "amd64":
		printAMD64Features()
	}
	fmt.Println()

	d := cache.CurrentCacheInfo()
	fmt.Println("=== cache descriptor ===")
	fmt.Printf("  L1: %d bytes\n", d.L1Bytes)
	fmt.Printf("  L2: %d bytes\n", d.L2Bytes)
	fmt.Printf("  L3: %d bytes\n", d.L3Bytes)
	fmt.Println()

	fmt.Println("=== gemm tunables ===")
	fmt.Printf("  threading threshold:        %d\n", gemm.ThreadingThreshold())
	fmt.Printf("  rhs packing threshold:      %d\n", gemm.RHSPackingThreshold())
	fmt.Printf("  lhs packing threshold (1x): %d\n", gemm.LHSPackingThresholdSingle())
	fmt.Printf("  lhs packing threshold (Nx): %d\n", gemm.LHSPackingThresholdMulti())
}

func printARM64Features() {
	fmt.Println("=== golang.org/x/sys/cpu.ARM64 ===")
	fmt.Printf("  HasASIMD:    %v (NEON baseline)\n", cpu.ARM64.HasASIMD)
	fmt.Printf("  HasFP:       %v\n", cpu.ARM64.HasFP)
	fmt.Printf("  HasFPHP:     %v (FP16 scalar, ARMv8.2-A)\n", cpu.ARM64.HasFPHP)
	fmt.Printf("  HasASIMDHP:  %v (FP16 NEON, ARMv8.2-A)\n", cpu.ARM64.HasASIMDHP)
	fmt.Printf("  HasSVE:      %v\n", cpu.ARM64.HasSVE)
	fmt.Printf("  HasSVE2:     %v\n", cpu.ARM64.HasSVE2)
}

func printAMD64Features() {
	fmt.Println("=== golang.org/x/sys/cpu.X86 ===")
	fmt.Printf("  HasAVX:      %v\n", cpu.X86.HasAVX)
	fmt.Printf("  HasAVX2:     %v\n", cpu.X86.HasAVX2)
	fmt.Printf("  HasAVX512F:  %v\n", cpu.X86.HasAVX512F)
	fmt.Printf("  HasAVX512BW: %v\n", cpu.X86.HasAVX512BW)
	fmt.Printf("  HasFMA:      %v\n", cpu.X86.HasFMA)
	fmt.Printf("  HasSSE41:    %v\n", cpu.X86.HasSSE41)
}
