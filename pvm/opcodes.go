package pvm

// OpCode identifies a single PVM instruction. The numeric values are a local
// assignment for this implementation; only the decode.go/machine.go pairing
// needs to agree, not an external wire format (unlike the program blob
// itself, whose section framing is bit-exact per the on-chain encoding).
type OpCode byte

const (
	// No-operand family.
	Trap OpCode = iota
	Fallthrough

	// One-immediate family: a single sign-extended immediate, no register.
	Ecalli
	Jump

	// One-register-plus-immediate family.
	LoadImm
	LoadImm64
	Move
	NotReg
	NegReg
	AddImm
	AddImm32
	MulImm
	MulImm32
	AndImm
	OrImm
	XorImm
	ShlImm
	ShlImm32
	ShrImm
	ShrImm32
	SarImm
	SarImm32
	SetLtUImm
	SetLtSImm
	LoadU8
	LoadU16
	LoadU32
	LoadU64
	LoadI8
	LoadI16
	LoadI32

	// Two-register-plus-offset family: indirect load/store (reg + signed
	// offset gives the effective address) and two-register conditional
	// branches (ra, rb compared, offset is the branch displacement).
	StoreIndU8
	StoreIndU16
	StoreIndU32
	StoreIndU64
	LoadIndU8
	LoadIndU16
	LoadIndU32
	LoadIndU64
	LoadIndI8
	LoadIndI16
	LoadIndI32
	BranchEq
	BranchNe
	BranchLtU
	BranchLtS
	BranchLeU
	BranchLeS
	BranchGeU
	BranchGeS
	BranchGtU
	BranchGtS

	// Register-plus-immediate-plus-branch-offset family.
	BranchEqImm
	BranchNeImm
	BranchLtUImm
	BranchLtSImm
	BranchGeUImm
	BranchGeSImm

	// Three-register family: rd = ra OP rb.
	Add
	Add32
	Sub
	Sub32
	MulReg
	Mul32
	DivU
	DivS
	Div32U
	Div32S
	RemU
	RemS
	Rem32U
	Rem32S
	AndReg
	OrReg
	XorReg
	ShlReg
	Shl32
	ShrReg
	Shr32
	SarReg
	Sar32
	SetLtU
	SetLtS

	// Two-immediate family.
	LoadImmJumpInd

	// Indirect jump via jump table, distinct from LoadImmJumpInd in that
	// no register is preloaded first and the return-address sentinel does
	// not halt; kept as a one-register-plus-
	// immediate shaped op (register holds the base, immediate the offset).
	JumpInd

	opCodeCount
)

// OperandKind classifies how an opcode's operand bytes are laid out, per
// §4.3. The decoder switches on this, never on the raw opcode byte, so
// adding an opcode only means adding one table entry plus one case in the
// exhaustive semantic switch in machine.go.
type OperandKind byte

const (
	KindNoArgs OperandKind = iota
	KindOneImm
	KindOneRegOneImm
	KindTwoRegOneOffset
	KindThreeReg
	KindTwoImm
)

var operandKind = [opCodeCount]OperandKind{
	Trap:        KindNoArgs,
	Fallthrough: KindNoArgs,

	Ecalli: KindOneImm,
	Jump:   KindOneImm,

	LoadImm:    KindOneRegOneImm,
	LoadImm64:  KindOneRegOneImm,
	Move:       KindTwoRegOneOffset, // offset unused, second register is source
	NotReg:     KindTwoRegOneOffset,
	NegReg:     KindTwoRegOneOffset,
	AddImm:     KindOneRegOneImm,
	AddImm32:   KindOneRegOneImm,
	MulImm:     KindOneRegOneImm,
	MulImm32:   KindOneRegOneImm,
	AndImm:     KindOneRegOneImm,
	OrImm:      KindOneRegOneImm,
	XorImm:     KindOneRegOneImm,
	ShlImm:     KindOneRegOneImm,
	ShlImm32:   KindOneRegOneImm,
	ShrImm:     KindOneRegOneImm,
	ShrImm32:   KindOneRegOneImm,
	SarImm:     KindOneRegOneImm,
	SarImm32:   KindOneRegOneImm,
	SetLtUImm:  KindOneRegOneImm,
	SetLtSImm:  KindOneRegOneImm,
	LoadU8:     KindOneRegOneImm,
	LoadU16:    KindOneRegOneImm,
	LoadU32:    KindOneRegOneImm,
	LoadU64:    KindOneRegOneImm,
	LoadI8:     KindOneRegOneImm,
	LoadI16:    KindOneRegOneImm,
	LoadI32:    KindOneRegOneImm,

	StoreIndU8:  KindTwoRegOneOffset,
	StoreIndU16: KindTwoRegOneOffset,
	StoreIndU32: KindTwoRegOneOffset,
	StoreIndU64: KindTwoRegOneOffset,
	LoadIndU8:   KindTwoRegOneOffset,
	LoadIndU16:  KindTwoRegOneOffset,
	LoadIndU32:  KindTwoRegOneOffset,
	LoadIndU64:  KindTwoRegOneOffset,
	LoadIndI8:   KindTwoRegOneOffset,
	LoadIndI16:  KindTwoRegOneOffset,
	LoadIndI32:  KindTwoRegOneOffset,
	BranchEq:    KindTwoRegOneOffset,
	BranchNe:    KindTwoRegOneOffset,
	BranchLtU:   KindTwoRegOneOffset,
	BranchLtS:   KindTwoRegOneOffset,
	BranchLeU:   KindTwoRegOneOffset,
	BranchLeS:   KindTwoRegOneOffset,
	BranchGeU:   KindTwoRegOneOffset,
	BranchGeS:   KindTwoRegOneOffset,
	BranchGtU:   KindTwoRegOneOffset,
	BranchGtS:   KindTwoRegOneOffset,

	BranchEqImm:   KindTwoImm,
	BranchNeImm:   KindTwoImm,
	BranchLtUImm:  KindTwoImm,
	BranchLtSImm:  KindTwoImm,
	BranchGeUImm:  KindTwoImm,
	BranchGeSImm:  KindTwoImm,

	Add:    KindThreeReg,
	Add32:  KindThreeReg,
	Sub:    KindThreeReg,
	Sub32:  KindThreeReg,
	MulReg: KindThreeReg,
	Mul32:  KindThreeReg,
	DivU:   KindThreeReg,
	DivS:   KindThreeReg,
	Div32U: KindThreeReg,
	Div32S: KindThreeReg,
	RemU:   KindThreeReg,
	RemS:   KindThreeReg,
	Rem32U: KindThreeReg,
	Rem32S: KindThreeReg,
	AndReg: KindThreeReg,
	OrReg:  KindThreeReg,
	XorReg: KindThreeReg,
	ShlReg: KindThreeReg,
	Shl32:  KindThreeReg,
	ShrReg: KindThreeReg,
	Shr32:  KindThreeReg,
	SarReg: KindThreeReg,
	Sar32:  KindThreeReg,
	SetLtU: KindThreeReg,
	SetLtS: KindThreeReg,

	LoadImmJumpInd: KindTwoImm,
	JumpInd:        KindOneRegOneImm,
}

// Gas cost per §4.4: 1 per ordinary instruction, ~10 for host calls and
// loads/stores.
func (op OpCode) gasCost() int64 {
	switch op {
	case Ecalli,
		LoadU8, LoadU16, LoadU32, LoadU64, LoadI8, LoadI16, LoadI32,
		StoreIndU8, StoreIndU16, StoreIndU32, StoreIndU64,
		LoadIndU8, LoadIndU16, LoadIndU32, LoadIndU64,
		LoadIndI8, LoadIndI16, LoadIndI32:
		return 10
	default:
		return 1
	}
}

func (op OpCode) valid() bool {
	return op < opCodeCount
}
