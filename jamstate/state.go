package jamstate

import "github.com/ethereum/go-ethereum/common"

// ValidatorKey is a validator's public key material. The Bandersnatch
// ring-VRF curve type is left unresolved per §9's open question (the
// ark-vrf 0.1.1 parameter set is a source-ambiguous dependency choice); we
// hold the key as opaque 32-byte material rather than guess at a curve
// library's API. See DESIGN.md.
type ValidatorKey = common.Hash

// PrivilegedState is the handful of distinguished service ids and the
// validator staging set (§3).
type PrivilegedState struct {
	Manager    uint32
	Assigners  map[uint32]uint32 // core index -> assigner service id
	Designator uint32            // holds the DESIGNATE privilege over validator staging

	StagedValidators []ValidatorKey
}

func (p *PrivilegedState) Clone() *PrivilegedState {
	if p == nil {
		return nil
	}
	out := &PrivilegedState{
		Manager:    p.Manager,
		Designator: p.Designator,
	}
	out.Assigners = make(map[uint32]uint32, len(p.Assigners))
	for k, v := range p.Assigners {
		out.Assigners[k] = v
	}
	out.StagedValidators = append([]ValidatorKey(nil), p.StagedValidators...)
	return out
}

// State is the global protocol state S (§3). Transitions are append-only at
// the interface level: the Accumulate STF takes a *State and returns a new
// *State rather than mutating shared state in place, per §9 "no global
// mutable state".
type State struct {
	Slot    uint32
	Entropy [4]common.Hash

	Accounts map[uint32]*Account

	Privileged PrivilegedState

	CurrentValidators  []ValidatorKey
	PreviousValidators []ValidatorKey

	Ready       *ReadyQueue
	Accumulated *AccumulatedQueue
}

// New returns an empty state with an epoch length of epochLength slots,
// governing both the ready queue's wrap-shift period and the accumulated
// queue's retention capacity (§4.7, §9).
func New(epochLength uint32) *State {
	return &State{
		Accounts:    make(map[uint32]*Account),
		Ready:       NewReadyQueue(epochLength),
		Accumulated: NewAccumulatedQueue(epochLength),
	}
}

// Clone returns a deep copy of the state, the starting point for a slot's
// Accumulate transition (§9 "no global mutable state": the STF mutates the
// clone and returns it, never the input).
func (s *State) Clone() *State {
	out := &State{
		Slot:       s.Slot,
		Entropy:    s.Entropy,
		Privileged: *s.Privileged.Clone(),
	}
	out.Accounts = make(map[uint32]*Account, len(s.Accounts))
	for id, acc := range s.Accounts {
		out.Accounts[id] = acc.Clone()
	}
	out.CurrentValidators = append([]ValidatorKey(nil), s.CurrentValidators...)
	out.PreviousValidators = append([]ValidatorKey(nil), s.PreviousValidators...)
	out.Ready = s.Ready.Clone()
	out.Accumulated = s.Accumulated.Clone()
	return out
}
