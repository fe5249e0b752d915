package pvm

import "fmt"

// ErrNoSuchChild is returned by InvokeChild/ExpungeChild for an unknown id.
var ErrNoSuchChild = fmt.Errorf("pvm: no such child machine")

// CreateChild instantiates a fresh guest Machine owned by m, for the
// MACHINE host call (§4.5). Children share no memory with their parent
// (§5); communication is strictly through the argument given here and the
// child's Exports.
func (m *Machine) CreateChild(program *Program, entry EntryPoint, argument []byte, gas int64) (uint32, error) {
	child, err := NewForEntry(program, entry, argument, gas)
	if err != nil {
		return 0, err
	}
	id := m.nextChildID
	m.nextChildID++
	if m.Children == nil {
		m.Children = make(map[uint32]*Machine)
	}
	m.Children[id] = child
	return id, nil
}

// InvokeChild runs the named child machine until it stops running (it
// never suspends mid-instruction, per §5: "there is no suspension" inside
// the step function itself) and returns that status plus its remaining
// gas. The status is a terminal one, or WaitingForHost if the child issued
// an ecalli: a child's host calls are not serviced, so a child in
// WaitingForHost stays there on later calls.
func (m *Machine) InvokeChild(id uint32) (Status, int64, error) {
	child, ok := m.Children[id]
	if !ok {
		return 0, 0, ErrNoSuchChild
	}
	child.Run()
	return child.Status, child.Gas, nil
}

// ExpungeChild destroys the named child machine and returns the gas it had
// remaining, for the EXPUNGE host call.
func (m *Machine) ExpungeChild(id uint32) (int64, error) {
	child, ok := m.Children[id]
	if !ok {
		return 0, ErrNoSuchChild
	}
	delete(m.Children, id)
	return child.Gas, nil
}

// Child returns the named child machine for read-only inspection (e.g. to
// copy its Exports after InvokeChild reports Halted).
func (m *Machine) Child(id uint32) (*Machine, bool) {
	c, ok := m.Children[id]
	return c, ok
}
