package pvm

// execLoadImmJumpInd implements load_imm_jump_ind ra, rb, immx, immy, the
// crucial indirect-jump sequence of §4.4:
//
//  1. r[ra] := immx
//  2. addr = (r[rb] + immy) mod 2^32
//  3. addr == return-address sentinel -> halt
//  4. addr == 0 or addr misaligned     -> panic
//  5. otherwise resolve through the jump table, or panic if out of range
func (m *Machine) execLoadImmJumpInd(inst Instruction) {
	m.Reg[inst.Ra] = uint64(uint32(inst.ImmA))

	addr := uint32(int64(m.Reg[inst.Rb]) + inst.ImmB)

	if addr == returnAddress() {
		m.Status = Halted
		return
	}
	if addr == 0 || addr%DynamicAlignment != 0 {
		m.Status = PanicStatus
		return
	}

	idx := addr/DynamicAlignment - 1
	if int(idx) >= len(m.Program.JumpTable) {
		m.Status = PanicStatus
		return
	}
	m.PC = m.Program.JumpTable[idx]
}

// execJumpInd implements the plain indirect jump via jump table: the
// address is r[Ra] plus the immediate, resolved as jump-table index
// addr/DynamicAlignment - 1, with no register
// preload and no halt sentinel (that belongs only to load_imm_jump_ind,
// the entry-return convention). Out-of-range or misaligned targets panic.
func (m *Machine) execJumpInd(inst Instruction) {
	addr := uint32(int64(m.Reg[inst.Ra]) + inst.ImmA)
	if addr == 0 || addr%DynamicAlignment != 0 {
		m.Status = PanicStatus
		return
	}
	idx := addr/DynamicAlignment - 1
	if int(idx) >= len(m.Program.JumpTable) {
		m.Status = PanicStatus
		return
	}
	m.PC = m.Program.JumpTable[idx]
}
