package proto

import "github.com/hetianyi/gotftp/common"

// BlockDiff returns a-b on the 16-bit block ring, in the range [-32768, 32767].
// A positive result means a is ahead of b even across the 65535 -> 0 wrap.
func BlockDiff(a, b uint16) int {
	return int(int16(a - b))
}

// ExpectedFinalBlock is the number of DATA blocks needed for a file of the
// given length. A length that is an exact multiple of the block size needs
// one extra zero-length block to signal the end.
func ExpectedFinalBlock(length int64) uint64 {
	if length < 0 {
		length = 0
	}
	return uint64(length/common.BLOCK_SIZE) + 1
}

// WireBlock maps an absolute block count onto the wrapping 16-bit block number.
func WireBlock(n uint64) uint16 {
	return uint16(n)
}
