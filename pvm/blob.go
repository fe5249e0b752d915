// Package pvm implements the JAM protocol's sandboxed register machine: the
// program blob decoder (§4.1), sparse memory (§4.2), instruction decoder
// (§4.3) and the step-at-a-time interpreter core (§4.4).
package pvm

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common/math"
)

// MalformedBlob is returned by Decode whenever the blob's length framing is
// inconsistent with its actual size, per §4.1.
type MalformedBlob struct {
	Reason string
}

func (e *MalformedBlob) Error() string {
	return fmt.Sprintf("malformed program blob: %s", e.Reason)
}

// Program is the decoded form of an on-chain service code blob.
type Program struct {
	Code       []byte // instruction stream, including operand bytes
	Mask       []byte // bit i (byte i/8, bit i%8) set iff byte i starts an instruction
	JumpTable  []uint32
	ROData     []byte
	RWData     []byte
	StackPages uint32
	StackSize  uint64
}

const pageSize = 1 << 12

// Decode parses a raw on-chain program blob into its constituent sections.
// It is a pure function: no allocation beyond the returned slices, so
// callers may cache the result keyed by the blob's code hash (§9 "decoder
// purity").
func Decode(blob []byte) (*Program, error) {
	rest := blob

	jumpTableLen, rest, err := readVarint(rest)
	if err != nil {
		return nil, &MalformedBlob{Reason: "jump table entry count: " + err.Error()}
	}
	jumpTableEntryWidth, rest, err := readVarint(rest)
	if err != nil {
		return nil, &MalformedBlob{Reason: "jump table entry width: " + err.Error()}
	}
	codeAndROLen, rest, err := readVarint(rest)
	if err != nil {
		return nil, &MalformedBlob{Reason: "code+ro-data length: " + err.Error()}
	}
	rwDataLen, rest, err := readVarint(rest)
	if err != nil {
		return nil, &MalformedBlob{Reason: "rw-data length: " + err.Error()}
	}
	stackPages, rest, err := readVarint(rest)
	if err != nil {
		return nil, &MalformedBlob{Reason: "stack page count: " + err.Error()}
	}

	if jumpTableEntryWidth > 4 {
		return nil, &MalformedBlob{Reason: "jump table entry width exceeds 4 bytes"}
	}

	jumpTableBytes, overflow := math.SafeMul(jumpTableLen, jumpTableEntryWidth)
	if overflow {
		return nil, &MalformedBlob{Reason: "jump table byte length overflow"}
	}
	if uint64(len(rest)) < jumpTableBytes {
		return nil, &MalformedBlob{Reason: "blob too short for jump table"}
	}
	jumpTableRaw := rest[:jumpTableBytes]
	rest = rest[jumpTableBytes:]

	jumpTable := make([]uint32, jumpTableLen)
	for i := uint64(0); i < jumpTableLen; i++ {
		entry := jumpTableRaw[i*jumpTableEntryWidth : (i+1)*jumpTableEntryWidth]
		var v uint32
		for j := uint64(0); j < jumpTableEntryWidth; j++ {
			v |= uint32(entry[j]) << (8 * j)
		}
		jumpTable[i] = v
	}

	if uint64(len(rest)) < codeAndROLen {
		return nil, &MalformedBlob{Reason: "blob too short for code+ro-data"}
	}
	codeAndRO := rest[:codeAndROLen]
	rest = rest[codeAndROLen:]

	maskLen := (codeAndROLen + 7) / 8
	if uint64(len(rest)) < maskLen {
		return nil, &MalformedBlob{Reason: "blob too short for opcode mask"}
	}
	mask := rest[:maskLen]
	rest = rest[maskLen:]

	if uint64(len(rest)) < rwDataLen {
		return nil, &MalformedBlob{Reason: "blob too short for rw-data"}
	}
	rwData := rest[:rwDataLen]
	rest = rest[rwDataLen:]

	return &Program{
		Code:       codeAndRO,
		Mask:       mask,
		JumpTable:  jumpTable,
		ROData:     codeAndRO, // ro-data is addressed by offset within the blob's combined span by the memory initializer
		RWData:     rwData,
		StackPages: uint32(stackPages),
		StackSize:  stackPages * pageSize,
	}, nil
}

// EncodeBlob serializes raw program sections into the on-chain blob format
// Decode expects, for callers that build a synthetic program (tests, the
// example driver) rather than parse one out of a preimage. Jump-table
// entries are encoded at a fixed 4-byte width; mask must already be padded
// to ceil(len(code)/8) bytes.
func EncodeBlob(code, mask []byte, jumpTable []uint32, rwData []byte, stackPages uint64) []byte {
	var blob []byte
	blob = writeVarint(blob, uint64(len(jumpTable)))
	blob = writeVarint(blob, 4)
	blob = writeVarint(blob, uint64(len(code)))
	blob = writeVarint(blob, uint64(len(rwData)))
	blob = writeVarint(blob, stackPages)
	for _, e := range jumpTable {
		blob = append(blob, byte(e), byte(e>>8), byte(e>>16), byte(e>>24))
	}
	blob = append(blob, code...)
	blob = append(blob, mask...)
	blob = append(blob, rwData...)
	return blob
}

// maxSkipDistance bounds skip_distance per §4.1: "capped at a documented
// maximum — typically 24".
const maxSkipDistance = 24

// skipDistance returns the number of non-opcode bytes following the opcode
// at pc: the count of zero mask bits starting at pc+1 until the next set
// bit, capped at maxSkipDistance, or until the mask runs out.
func skipDistance(mask []byte, pcPlus1 uint32) int {
	count := 0
	for count < maxSkipDistance {
		idx := pcPlus1 + uint32(count)
		bytePos := idx / 8
		if int(bytePos) >= len(mask) {
			break
		}
		bit := (mask[bytePos] >> (idx % 8)) & 1
		if bit != 0 {
			break
		}
		count++
	}
	return count
}

// bitSet reports whether mask bit i (the opcode-starts-here bit) is set.
func bitSet(mask []byte, i uint32) bool {
	bytePos := i / 8
	if int(bytePos) >= len(mask) {
		return false
	}
	return (mask[bytePos]>>(i%8))&1 != 0
}

// readVarint decodes one compact natural-number varint per §4.1 and returns
// the value plus the remainder of b after the encoding.
func readVarint(b []byte) (uint64, []byte, error) {
	if len(b) == 0 {
		return 0, nil, fmt.Errorf("empty input")
	}
	first := b[0]
	if first < 128 {
		return uint64(first), b[1:], nil
	}

	// l = leading-one count of the first byte, 1..8.
	l := 0
	for m := byte(0x80); m != 0 && first&m != 0; m >>= 1 {
		l++
	}
	if l > 8 {
		return 0, nil, fmt.Errorf("over-long varint prefix")
	}
	if len(b) < 1+l {
		return 0, nil, fmt.Errorf("truncated varint")
	}

	var low uint64
	for i := 0; i < l; i++ {
		low |= uint64(b[1+i]) << (8 * i)
	}

	// offset(l): the first byte's value with its top l bits and the
	// following marker bit cleared, i.e. the low (8-l-1) bits (for l<8),
	// or 0 entirely when l==8 (first byte contributes nothing).
	var high uint64
	if l < 8 {
		mask := byte(0xFF) >> uint(l+1)
		high = uint64(first&mask) << (8 * uint(l))
	}

	return high + low, b[1+l:], nil
}

// writeVarint appends the compact encoding of v to b and returns the result.
// It is the exact inverse of readVarint and exists so tests (and callers
// that re-encode a decoded Program) can exercise the round-trip law in §8.
func writeVarint(b []byte, v uint64) []byte {
	if v < 128 {
		return append(b, byte(v))
	}
	// Choose the smallest l in 1..8 such that v fits in offset(l) + l bytes,
	// i.e. v < 256^l plus the room the first byte's low bits contribute.
	for l := 1; l <= 8; l++ {
		if l == 8 {
			b = append(b, 0xFF)
			for i := 0; i < 8; i++ {
				b = append(b, byte(v>>(8*i)))
			}
			return b
		}
		limit := uint64(1) << uint(8*l+(7-l))
		if v < limit {
			low := v & ((uint64(1) << uint(8*l)) - 1)
			high := v >> uint(8*l)
			firstByteMask := byte(0xFF) << uint(8-l)
			first := firstByteMask | byte(high)
			b = append(b, first)
			for i := 0; i < l; i++ {
				b = append(b, byte(low>>(8*i)))
			}
			return b
		}
	}
	// Unreachable: l==8 branch above always terminates for any uint64.
	return b
}
