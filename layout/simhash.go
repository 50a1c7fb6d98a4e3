// Package layout fingerprints page structure so a view can be recognised
// again after navigating away from it.
package layout

import (
	"hash/fnv"
	"math/bits"
	"strings"
)

// DefaultThreshold is the Hamming distance under which two fingerprints
// describe the same view.
const DefaultThreshold = 6

// Fingerprint computes a 64-bit SimHash over the whitespace-separated tokens
// of text, using FNV-64a per token.
func Fingerprint(text string) uint64 {
	tokens := strings.Fields(text)
	if len(tokens) == 0 {
		return 0
	}

	var vector [64]int
	for _, tok := range tokens {
		h := fnv.New64a()
		h.Write([]byte(tok))
		sum := h.Sum64()
		for i := 0; i < 64; i++ {
			if sum&(1<<uint(i)) != 0 {
				vector[i]++
			} else {
				vector[i]--
			}
		}
	}

	var fp uint64
	for i := 0; i < 64; i++ {
		if vector[i] > 0 {
			fp |= 1 << uint(i)
		}
	}
	return fp
}

// Distance is the Hamming distance between two fingerprints.
func Distance(a, b uint64) int {
	return bits.OnesCount64(a ^ b)
}

// Similar reports whether a and b are at most threshold bits apart.
func Similar(a, b uint64, threshold int) bool {
	return Distance(a, b) <= threshold
}
