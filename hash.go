package spacebee

import "math/bits"

import "github.com/cespare/xxhash/v2"

// levelCount is the height of key's tower in the skip list the tree encodes:
// one plus the number of trailing one bits of the key's 64 bit xxhash.
// It depends on the key bytes only, so every replica derives the same shape.
// Heights are geometrically distributed, half of all keys have height 1.
func levelCount(key []byte) uint8 {
	return uint8(bits.TrailingZeros64(^xxhash.Sum64(key))) + 1
}
