package pvm

// branchTwoRegTaken evaluates the two-register conditional branch family
// (§4.4): compares r[ra] to r[rb] per op and reports whether the branch is
// taken.
func (m *Machine) branchTwoRegTaken(op OpCode, a, b uint64) bool {
	switch op {
	case BranchEq:
		return a == b
	case BranchNe:
		return a != b
	case BranchLtU:
		return a < b
	case BranchLtS:
		return int64(a) < int64(b)
	case BranchLeU:
		return a <= b
	case BranchLeS:
		return int64(a) <= int64(b)
	case BranchGeU:
		return a >= b
	case BranchGeS:
		return int64(a) >= int64(b)
	case BranchGtU:
		return a > b
	case BranchGtS:
		return int64(a) > int64(b)
	default:
		return false
	}
}

// branchImmTaken evaluates the register-vs-immediate branch family.
func (m *Machine) branchImmTaken(op OpCode, a uint64, imm int64) bool {
	switch op {
	case BranchEqImm:
		return int64(a) == imm
	case BranchNeImm:
		return int64(a) != imm
	case BranchLtUImm:
		return a < uint64(imm)
	case BranchLtSImm:
		return int64(a) < imm
	case BranchGeUImm:
		return a >= uint64(imm)
	case BranchGeSImm:
		return int64(a) >= imm
	default:
		return false
	}
}
