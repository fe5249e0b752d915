package pvm

import "testing"

func TestMachineLoadImmThenTrap(t *testing.T) {
	code := []byte{byte(LoadImm), 0x01, 7, byte(Trap)}
	mask := []byte{0b00001001} // opcode boundaries at 0 and 3

	p := &Program{
		Code:       code,
		Mask:       mask,
		JumpTable:  []uint32{0},
		StackPages: 1,
		StackSize:  pageSize,
	}

	m, err := NewForEntry(p, EntryServiceStart, nil, 100)
	if err != nil {
		t.Fatalf("NewForEntry: %v", err)
	}
	m.Run()

	if m.Reg[1] != 7 {
		t.Fatalf("expected Reg[1]=7, got %d", m.Reg[1])
	}
	if m.Status != PanicStatus {
		t.Fatalf("expected PanicStatus, got %v", m.Status)
	}
	if m.Gas != 98 {
		t.Fatalf("expected 98 gas remaining, got %d", m.Gas)
	}
}

func TestMachineOutOfGasLeavesStateUntouched(t *testing.T) {
	code := []byte{byte(LoadImm), 0x01, 7, byte(Trap)}
	mask := []byte{0b00001001}

	p := &Program{
		Code:       code,
		Mask:       mask,
		JumpTable:  []uint32{0},
		StackPages: 1,
		StackSize:  pageSize,
	}

	m, err := NewForEntry(p, EntryServiceStart, nil, 0)
	if err != nil {
		t.Fatalf("NewForEntry: %v", err)
	}
	r1Before := m.Reg[1] // stack pointer seeded by NewForEntry
	m.Step()

	if m.Status != OutOfGas {
		t.Fatalf("expected OutOfGas, got %v", m.Status)
	}
	if m.Reg[1] != r1Before {
		t.Fatalf("expected untouched register, got %d", m.Reg[1])
	}
	if m.PC != 0 {
		t.Fatalf("expected PC untouched, got %d", m.PC)
	}
}

func TestMachineEcalliYieldsToHost(t *testing.T) {
	code := []byte{byte(Ecalli), 5}
	mask := []byte{0b00000101} // opcode at 0, operand byte at 1, next boundary at 2

	p := &Program{
		Code:       code,
		Mask:       mask,
		JumpTable:  []uint32{0},
		StackPages: 1,
		StackSize:  pageSize,
	}

	m, err := NewForEntry(p, EntryServiceStart, nil, 100)
	if err != nil {
		t.Fatalf("NewForEntry: %v", err)
	}
	m.Step()

	if m.Status != WaitingForHost {
		t.Fatalf("expected WaitingForHost, got %v", m.Status)
	}
	if m.HostCallID != 5 {
		t.Fatalf("expected HostCallID=5, got %d", m.HostCallID)
	}
}

func TestMachineLoadImmJumpIndHalts(t *testing.T) {
	// A single load_imm_jump_ind ra=1, rb=0, immx=0, immy=0: r1 gets
	// cleared and the jump target is r0 (untouched) plus 0, i.e. the
	// return-address sentinel NewForEntry seeded there, so the machine
	// halts rather than jumping.
	code := []byte{byte(LoadImmJumpInd), 0x01, 0x00}
	mask := []byte{0b00000001}

	p := &Program{
		Code:       code,
		Mask:       mask,
		JumpTable:  []uint32{0},
		StackPages: 1,
		StackSize:  pageSize,
	}

	m, err := NewForEntry(p, EntryServiceStart, nil, 100)
	if err != nil {
		t.Fatalf("NewForEntry: %v", err)
	}
	// r0 already holds the return-address sentinel from NewForEntry.
	m.Step()

	if m.Status != Halted {
		t.Fatalf("expected Halted, got %v", m.Status)
	}
}

func TestMachineChildLifecycle(t *testing.T) {
	code := []byte{byte(Trap)}
	mask := []byte{0b00000001}
	p := &Program{
		Code:       code,
		Mask:       mask,
		JumpTable:  []uint32{0},
		StackPages: 1,
		StackSize:  pageSize,
	}

	parent, err := NewForEntry(p, EntryServiceStart, nil, 1000)
	if err != nil {
		t.Fatalf("NewForEntry: %v", err)
	}

	id, err := parent.CreateChild(p, EntryServiceStart, nil, 50)
	if err != nil {
		t.Fatalf("CreateChild: %v", err)
	}

	status, gas, err := parent.InvokeChild(id)
	if err != nil {
		t.Fatalf("InvokeChild: %v", err)
	}
	if status != PanicStatus {
		t.Fatalf("expected child PanicStatus, got %v", status)
	}
	if gas != 49 {
		t.Fatalf("expected 49 gas remaining, got %d", gas)
	}

	remaining, err := parent.ExpungeChild(id)
	if err != nil {
		t.Fatalf("ExpungeChild: %v", err)
	}
	if remaining != 49 {
		t.Fatalf("expected 49 gas returned, got %d", remaining)
	}
	if _, ok := parent.Child(id); ok {
		t.Fatal("expected child to be removed after expunge")
	}
}
