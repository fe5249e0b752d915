package pvm

import (
	"github.com/ethereum/go-ethereum/log"
)

// Status is the PVM's execution status, §3.
type Status byte

const (
	Running Status = iota
	Halted
	PanicStatus
	PageFault
	OutOfGas
	WaitingForHost
)

func (s Status) String() string {
	switch s {
	case Running:
		return "running"
	case Halted:
		return "halted"
	case PanicStatus:
		return "panic"
	case PageFault:
		return "page-fault"
	case OutOfGas:
		return "out-of-gas"
	case WaitingForHost:
		return "waiting-for-host"
	default:
		return "unknown"
	}
}

const numRegisters = 13

// EntryPoint identifies one of up to sixteen well-known jump-table slots a
// guest may be invoked at (§9 "entry-point table").
type EntryPoint uint32

const (
	EntryServiceStart EntryPoint = 0
	EntryAccumulate   EntryPoint = 5
	EntryOnTransfer   EntryPoint = 10
)

// Machine is one PVM invocation: the register file, program counter, gas
// budget, execution status and sparse memory for a single guest program
// run. Host calls that create child machines (§4.5 MACHINE/INVOKE/EXPUNGE)
// hold further Machine values keyed by a 32-bit id; those children share no
// memory with their parent (§5).
type Machine struct {
	Program *Program

	PC     uint32
	Status Status
	Gas    int64
	Reg    [numRegisters]uint64
	Memory *Memory

	// HostCallID is the scratch field set by ecalli and read by the outer
	// driver while Status == WaitingForHost.
	HostCallID uint64

	// Exports accumulates byte vectors the guest has produced via export
	// operations during this invocation.
	Exports [][]byte

	// Children holds guest machines created by host-call MACHINE, keyed by
	// the id returned to the guest at creation time.
	Children map[uint32]*Machine
	nextChildID uint32
}

// NewForEntry constructs a Machine ready to run at the given entry point,
// laying out memory exactly per §4.4: ro-data at ROBase (R), rw-data at its
// base rounded up by the alignment zone (RW), stack pages (RW), the
// argument buffer (R), everything else unmapped.
func NewForEntry(program *Program, entry EntryPoint, argument []byte, gas int64) (*Machine, error) {
	if int(entry) >= len(program.JumpTable) {
		return nil, &MalformedBlob{Reason: "entry point beyond jump table"}
	}

	m := &Machine{
		Program:  program,
		Gas:      gas,
		Memory:   NewMemory(),
		Children: make(map[uint32]*Machine),
	}

	m.Memory.Map(ROBase, uint32(len(program.ROData)), Unmapped) // reserved; overwritten below if non-empty
	if len(program.ROData) > 0 {
		m.Memory.Map(ROBase, uint32(len(program.ROData)), ReadOnly)
		m.Memory.WriteInit(ROBase, program.ROData)
	}

	rwBase := roundUpZone(ROBase + uint32(len(program.ROData)))
	if rwBase < RWBase {
		rwBase = RWBase
	}
	if len(program.RWData) > 0 {
		m.Memory.Map(rwBase, uint32(len(program.RWData)), ReadWrite)
		m.Memory.WriteInit(rwBase, program.RWData)
	}

	stackTop := returnAddress()
	stackSize := program.StackSize
	if stackSize == 0 {
		stackSize = pageSize
	}
	stackBase := stackTop - uint32(stackSize)
	m.Memory.Map(stackBase, uint32(stackSize), ReadWrite)

	argBase := argBufferBase()
	if len(argument) > 0 {
		m.Memory.Map(argBase, uint32(len(argument)), ReadOnly)
		m.Memory.WriteInit(argBase, argument)
	}

	m.PC = program.JumpTable[entry]
	m.Reg[0] = uint64(returnAddress())
	m.Reg[1] = uint64(stackTop)
	m.Reg[7] = uint64(argBase)
	m.Reg[8] = uint64(len(argument))

	return m, nil
}

// Run steps the machine until it reaches a terminal status (Halted,
// PanicStatus, PageFault, OutOfGas) or yields to the host
// (WaitingForHost). Mirrors the teacher interpreter's fetch/validate/charge
// /execute loop shape (vm/interpreter.go), adapted to PVM's gas-then-trap
// discipline instead of EVM's stack-depth/tracer bookkeeping.
func (m *Machine) Run() {
	for m.Status == Running {
		m.Step()
	}
}

// Step executes exactly one instruction, or — if gas is already exhausted —
// transitions straight to OutOfGas without touching registers or memory.
// Per §8's universal invariant: "one PVM step either advances state by
// exactly one instruction ... and deducts >= 1 gas, or sets a terminal
// status and makes no other change."
func (m *Machine) Step() {
	if m.Status != Running {
		return
	}

	inst, err := DecodeInstruction(m.Program.Code, m.Program.Mask, m.PC)
	if err != nil {
		log.Debug("pvm: decode fault", "pc", m.PC, "err", err)
		m.Status = PanicStatus
		return
	}
	if !inst.Op.valid() {
		log.Debug("pvm: unknown opcode", "pc", m.PC, "op", inst.Op)
		m.Status = PanicStatus
		return
	}

	cost := inst.Op.gasCost()
	if m.Gas < cost {
		m.Status = OutOfGas
		return
	}
	m.Gas -= cost

	m.execute(inst)
}

func (m *Machine) nextPC(inst Instruction) uint32 {
	return inst.PC + 1 + uint32(inst.Skip)
}

// ResumeAfterHostCall advances PC past the ecalli that parked this machine
// in WaitingForHost and returns it to Running, per §4.4: "the outer driver
// advances PC by 1 + skip after the host call returns." Callers (the
// Accumulate STF's invocation loop) call this once hostcall.Dispatch has
// applied the call's side effect and written its result registers.
func (m *Machine) ResumeAfterHostCall() {
	inst, err := DecodeInstruction(m.Program.Code, m.Program.Mask, m.PC)
	if err != nil {
		m.Status = PanicStatus
		return
	}
	m.PC = m.nextPC(inst)
	m.Status = Running
}

// execute runs the semantics of one decoded instruction and advances PC,
// per the exhaustive tagged-sum dispatch called for in §9 (unknown opcodes
// panic rather than silently no-op; that check already happened in Step).
func (m *Machine) execute(inst Instruction) {
	op := inst.Op
	switch op {
	case Trap:
		m.Status = PanicStatus
		return
	case Fallthrough:
		// no-op

	case Ecalli:
		m.HostCallID = uint64(inst.ImmA)
		m.Status = WaitingForHost
		return // the outer driver advances PC after the host call returns

	case Jump:
		m.PC = uint32(int64(inst.PC) + inst.ImmA)
		return

	case LoadImm:
		m.Reg[inst.Ra] = uint64(uint32(inst.ImmA))
	case LoadImm64:
		m.Reg[inst.Ra] = uint64(inst.ImmA)

	case Move:
		m.Reg[inst.Ra] = m.Reg[inst.Rb]
	case NotReg:
		m.Reg[inst.Ra] = ^m.Reg[inst.Rb]
	case NegReg:
		m.Reg[inst.Ra] = uint64(-int64(m.Reg[inst.Rb]))

	case AddImm:
		m.Reg[inst.Ra] = m.Reg[inst.Ra] + uint64(inst.ImmA)
	case AddImm32:
		m.Reg[inst.Ra] = signExtend32(uint32(m.Reg[inst.Ra]) + uint32(inst.ImmA))
	case MulImm:
		m.Reg[inst.Ra] = m.Reg[inst.Ra] * uint64(inst.ImmA)
	case MulImm32:
		m.Reg[inst.Ra] = signExtend32(uint32(m.Reg[inst.Ra]) * uint32(inst.ImmA))
	case AndImm:
		m.Reg[inst.Ra] = m.Reg[inst.Ra] & uint64(inst.ImmA)
	case OrImm:
		m.Reg[inst.Ra] = m.Reg[inst.Ra] | uint64(inst.ImmA)
	case XorImm:
		m.Reg[inst.Ra] = m.Reg[inst.Ra] ^ uint64(inst.ImmA)
	case ShlImm:
		m.Reg[inst.Ra] = m.Reg[inst.Ra] << uint(inst.ImmA&63)
	case ShlImm32:
		m.Reg[inst.Ra] = signExtend32(uint32(m.Reg[inst.Ra]) << uint(inst.ImmA&31))
	case ShrImm:
		m.Reg[inst.Ra] = m.Reg[inst.Ra] >> uint(inst.ImmA&63)
	case ShrImm32:
		m.Reg[inst.Ra] = signExtend32(uint32(m.Reg[inst.Ra]) >> uint(inst.ImmA&31))
	case SarImm:
		m.Reg[inst.Ra] = uint64(int64(m.Reg[inst.Ra]) >> uint(inst.ImmA&63))
	case SarImm32:
		m.Reg[inst.Ra] = signExtend32(uint32(int32(uint32(m.Reg[inst.Ra])) >> uint(inst.ImmA&31)))
	case SetLtUImm:
		m.Reg[inst.Ra] = boolToReg(m.Reg[inst.Ra] < uint64(inst.ImmA))
	case SetLtSImm:
		m.Reg[inst.Ra] = boolToReg(int64(m.Reg[inst.Ra]) < inst.ImmA)

	case LoadU8, LoadU16, LoadU32, LoadU64, LoadI8, LoadI16, LoadI32:
		m.execLoadImmAddr(inst)
		if m.Memory.Fault {
			m.Status = PageFault
			return
		}

	case StoreIndU8, StoreIndU16, StoreIndU32, StoreIndU64:
		m.execStoreIndirect(inst)
		if m.Memory.Fault {
			m.Status = PageFault
			return
		}
	case LoadIndU8, LoadIndU16, LoadIndU32, LoadIndU64, LoadIndI8, LoadIndI16, LoadIndI32:
		m.execLoadIndirect(inst)
		if m.Memory.Fault {
			m.Status = PageFault
			return
		}

	case BranchEq, BranchNe, BranchLtU, BranchLtS, BranchLeU, BranchLeS, BranchGeU, BranchGeS, BranchGtU, BranchGtS:
		if m.branchTwoRegTaken(op, m.Reg[inst.Ra], m.Reg[inst.Rb]) {
			m.PC = uint32(int64(inst.PC) + inst.ImmA)
			return
		}

	case BranchEqImm, BranchNeImm, BranchLtUImm, BranchLtSImm, BranchGeUImm, BranchGeSImm:
		if m.branchImmTaken(op, m.Reg[inst.Ra], inst.ImmA) {
			m.PC = uint32(int64(inst.PC) + inst.ImmB)
			return
		}

	case Add, Add32, Sub, Sub32, MulReg, Mul32, DivU, DivS, Div32U, Div32S,
		RemU, RemS, Rem32U, Rem32S, AndReg, OrReg, XorReg,
		ShlReg, Shl32, ShrReg, Shr32, SarReg, Sar32, SetLtU, SetLtS:
		m.execThreeReg(inst)

	case LoadImmJumpInd:
		m.execLoadImmJumpInd(inst)
		return // PC already set by the helper (halt/panic/jump)

	case JumpInd:
		m.execJumpInd(inst)
		return

	default:
		log.Error("pvm: opcode missing execution case", "op", op)
		m.Status = PanicStatus
		return
	}

	m.PC = m.nextPC(inst)
}

func boolToReg(b bool) uint64 {
	if b {
		return 1
	}
	return 0
}
