package accumulate

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/blake2b"

	"github.com/jamvm/accumulate/hostcall"
	"github.com/jamvm/accumulate/jamstate"
	"github.com/jamvm/accumulate/pvm"
)

// asm is a minimal test-only assembler: just enough instruction shapes to
// drive the §8 seed scenarios through the real decoder rather than
// hand-rolled Program structs, so these tests exercise the same
// DecodeInstruction/execute path production invocations do.
type asm struct {
	code []byte
	mask []byte
}

func (a *asm) setMaskBit(i uint32) {
	byteIdx := i / 8
	for uint32(len(a.mask)) <= byteIdx {
		a.mask = append(a.mask, 0)
	}
	a.mask[byteIdx] |= 1 << (i % 8)
}

func (a *asm) emit(op pvm.OpCode, operands ...byte) {
	a.setMaskBit(uint32(len(a.code)))
	a.code = append(a.code, byte(op))
	a.code = append(a.code, operands...)
}

func le32(v uint32) []byte {
	return []byte{byte(v), byte(v >> 8), byte(v >> 16), byte(v >> 24)}
}

// loadImm loads a 32-bit immediate into reg (0-15), KindOneRegOneImm shaped:
// one register nibble byte (rb unused, high nibble zero) then a 4-byte
// little-endian immediate.
func (a *asm) loadImm(reg uint8, val uint32) {
	a.emit(pvm.LoadImm, append([]byte{reg & 0x0F}, le32(val)...)...)
}

// ecalli emits the host-call trap with the given id as its sole immediate.
func (a *asm) ecalli(id hostcall.ID) {
	a.emit(pvm.Ecalli, le32(uint32(id))...)
}

func (a *asm) trap() {
	a.emit(pvm.Trap)
}

// halt emits load_imm_jump_ind ra, rb, 0, 0 with rb preloaded to the return
// address sentinel (layout.go's returnAddress), which is the only way the
// guest signals a clean Halted exit (§4.4).
func (a *asm) halt(scratchReg uint8) {
	const returnAddress = uint32(0xFFFF0000) // (1<<32 - ZoneSize), ZoneSize=1<<16
	a.loadImm(scratchReg, returnAddress)
	rb, ra := scratchReg, uint8(0)
	a.emit(pvm.LoadImmJumpInd, (rb<<4)|(ra&0x0F), 0x00)
}

func (a *asm) blob(jumpTableLen int, rwData []byte, stackPages uint64) []byte {
	return pvm.EncodeBlob(a.code, a.mask, make([]uint32, jumpTableLen), rwData, stackPages)
}

func newServiceAccount(t *testing.T, blob []byte) (*jamstate.Account, common.Hash) {
	t.Helper()
	codeHash := common.Hash(blake2b.Sum256(blob))
	acc := jamstate.NewAccount(codeHash, 0, 0)
	acc.Preimages[codeHash] = blob
	acc.Balance = 1_000_000_000
	acc.MinBalanceThreshold = 10
	return acc, codeHash
}
