package pvm

// widthOf returns the access width in bytes for a load/store opcode.
func widthOf(op OpCode) int {
	switch op {
	case LoadU8, LoadI8, StoreIndU8, LoadIndU8, LoadIndI8:
		return 1
	case LoadU16, LoadI16, StoreIndU16, LoadIndU16, LoadIndI16:
		return 2
	case LoadU32, LoadI32, StoreIndU32, LoadIndU32, LoadIndI32:
		return 4
	case LoadU64, StoreIndU64, LoadIndU64:
		return 8
	default:
		panic("pvm: widthOf called on non-memory opcode")
	}
}

func signedLoad(op OpCode) bool {
	switch op {
	case LoadI8, LoadI16, LoadI32, LoadIndI8, LoadIndI16, LoadIndI32:
		return true
	default:
		return false
	}
}

// execLoadImmAddr handles the immediate-address load forms: the address is
// the instruction's own sign-extended immediate (so effectively an
// absolute, program-chosen address), value lands in Ra.
func (m *Machine) execLoadImmAddr(inst Instruction) {
	width := widthOf(inst.Op)
	addr := uint32(inst.ImmA)
	v := m.Memory.ReadN(addr, width)
	if m.Memory.Fault {
		return
	}
	if signedLoad(inst.Op) {
		m.Reg[inst.Ra] = signExtendWidth(v, width)
	} else {
		m.Reg[inst.Ra] = v
	}
}

// execStoreIndirect handles store_ind_* : *(r[Rb] + offset) = low bits of
// r[Ra].
func (m *Machine) execStoreIndirect(inst Instruction) {
	width := widthOf(inst.Op)
	addr := uint32(int64(m.Reg[inst.Rb]) + inst.ImmA)
	m.Memory.WriteN(addr, width, m.Reg[inst.Ra])
}

// execLoadIndirect handles load_ind_* : r[Ra] = *(r[Rb] + offset).
func (m *Machine) execLoadIndirect(inst Instruction) {
	width := widthOf(inst.Op)
	addr := uint32(int64(m.Reg[inst.Rb]) + inst.ImmA)
	v := m.Memory.ReadN(addr, width)
	if m.Memory.Fault {
		return
	}
	if signedLoad(inst.Op) {
		m.Reg[inst.Ra] = signExtendWidth(v, width)
	} else {
		m.Reg[inst.Ra] = v
	}
}

func signExtendWidth(v uint64, width int) uint64 {
	shift := uint(64 - width*8)
	return uint64(int64(v<<shift) >> shift)
}
