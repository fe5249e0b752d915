package pvm

import "testing"

func TestDecodeNoArgs(t *testing.T) {
	code := []byte{byte(Trap)}
	mask := []byte{0b00000001}

	inst, err := DecodeInstruction(code, mask, 0)
	if err != nil {
		t.Fatalf("DecodeInstruction: %v", err)
	}
	if inst.Op != Trap {
		t.Fatalf("op mismatch: got %v", inst.Op)
	}
	if inst.Skip != 0 {
		t.Fatalf("expected skip 0, got %d", inst.Skip)
	}
}

func TestDecodeOneRegOneImm(t *testing.T) {
	// LoadImm ra=3, immediate=42 (one byte).
	code := []byte{byte(LoadImm), 0x03, 42}
	mask := []byte{0b00001001} // opcode at 0, next opcode at 3

	inst, err := DecodeInstruction(code, mask, 0)
	if err != nil {
		t.Fatalf("DecodeInstruction: %v", err)
	}
	if inst.Op != LoadImm {
		t.Fatalf("op mismatch: got %v", inst.Op)
	}
	if inst.Ra != 3 {
		t.Fatalf("expected Ra=3, got %d", inst.Ra)
	}
	if inst.ImmA != 42 {
		t.Fatalf("expected ImmA=42, got %d", inst.ImmA)
	}
	if inst.Skip != 2 {
		t.Fatalf("expected skip 2, got %d", inst.Skip)
	}
}

func TestDecodeThreeReg(t *testing.T) {
	// add rd=3, ra=1, rb=2
	regByte := byte(2<<4 | 1) // rb=2, ra=1
	rdByte := byte(0<<4 | 3)  // rd=3
	code := []byte{byte(Add), regByte, rdByte}
	mask := []byte{0b00001001}

	inst, err := DecodeInstruction(code, mask, 0)
	if err != nil {
		t.Fatalf("DecodeInstruction: %v", err)
	}
	if inst.Ra != 1 || inst.Rb != 2 || inst.Rd != 3 {
		t.Fatalf("register mismatch: ra=%d rb=%d rd=%d", inst.Ra, inst.Rb, inst.Rd)
	}
}

func TestDecodeTwoImm(t *testing.T) {
	// load_imm_jump_ind ra=5, immA=0x1234 (2 bytes), immB=7 (1 byte)
	operands := []byte{0x05, 0x02, 0x34, 0x12, 0x07}
	code := append([]byte{byte(LoadImmJumpInd)}, operands...)
	mask := []byte{0b01000001} // opcode at 0, next opcode at 6

	inst, err := DecodeInstruction(code, mask, 0)
	if err != nil {
		t.Fatalf("DecodeInstruction: %v", err)
	}
	if inst.Ra != 5 {
		t.Fatalf("expected Ra=5, got %d", inst.Ra)
	}
	if inst.ImmA != 0x1234 {
		t.Fatalf("expected ImmA=0x1234, got %#x", inst.ImmA)
	}
	if inst.ImmB != 7 {
		t.Fatalf("expected ImmB=7, got %d", inst.ImmB)
	}
	if inst.Skip != 5 {
		t.Fatalf("expected skip 5, got %d", inst.Skip)
	}
}

func TestDecodeRejectsNonBoundaryPC(t *testing.T) {
	code := []byte{byte(LoadImm), 0x03, 42}
	mask := []byte{0b00001001}

	if _, err := DecodeInstruction(code, mask, 1); err == nil {
		t.Fatal("expected error decoding mid-instruction pc")
	}
}
