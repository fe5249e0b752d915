// Package implications holds the in-memory, speculatively-mutable view of a
// service account and its neighbours during one guest invocation (§4.6).
// Every host-call mutation lands here; the Accumulate STF merges the buffer
// into the global state on halt, commits only a checkpointed snapshot on
// panic-after-checkpoint, or discards it entirely otherwise.
package implications

import (
	"github.com/ethereum/go-ethereum/common"

	"github.com/jamvm/accumulate/jamstate"
)

// Transfer is one deferred transfer enqueued by the TRANSFER host call,
// applied during the Accumulate STF's deferred-transfer phase (§4.7 step
// 9). Memo is fixed-width per the host call's (src, dst, amount, gas, memo)
// tuple.
type Transfer struct {
	From   uint32
	To     uint32
	Amount uint64
	Gas    int64
	Memo   [128]byte
}

// Snapshot is the exceptional state recorded by CHECKPOINT: a deep copy of
// the buffer's mutable surface at the moment of the call. If the guest
// later panics or runs out of gas, the STF commits this snapshot instead of
// discarding everything (§4.5 "Exceptional state").
type Snapshot struct {
	Account    *jamstate.Account
	Siblings   map[uint32]*jamstate.Account
	Privileged *jamstate.PrivilegedState
	Transfers  []Transfer
	Yield      *common.Hash
}

// Buffer is the copy-on-write overlay a single guest invocation mutates
// (§4.6).
type Buffer struct {
	ServiceID  uint32
	Account    *jamstate.Account
	Siblings   map[uint32]*jamstate.Account
	// Evicted records sibling ids EJECT has removed this invocation; the STF
	// deletes them from global state on merge rather than here, keeping
	// every state mutation routed through the buffer.
	Evicted    map[uint32]struct{}
	Privileged *jamstate.PrivilegedState

	// Input is the invocation's argument buffer, re-exposed to the guest by
	// the FETCH host call.
	Input []byte

	Transfers []Transfer
	Yield     *common.Hash

	Checkpoint *Snapshot
}

// New starts a fresh buffer for serviceID, cloning its account from the
// committed state so every mutation lands on the copy.
func New(serviceID uint32, account *jamstate.Account, privileged *jamstate.PrivilegedState, input []byte) *Buffer {
	return &Buffer{
		ServiceID:  serviceID,
		Account:    account.Clone(),
		Siblings:   make(map[uint32]*jamstate.Account),
		Evicted:    make(map[uint32]struct{}),
		Privileged: privileged.Clone(),
		Input:      input,
	}
}

// Sibling returns the copy-on-write view of another service account reached
// via NEW/EJECT/INFO/TRANSFER, cloning from base on first touch. A nil base
// (account does not exist) yields a nil sibling view; callers must check.
func (b *Buffer) Sibling(id uint32, base *jamstate.Account) *jamstate.Account {
	if acc, ok := b.Siblings[id]; ok {
		return acc
	}
	if base == nil {
		return nil
	}
	acc := base.Clone()
	b.Siblings[id] = acc
	return acc
}

// CheckpointNow snapshots the buffer's current mutable surface as the
// exceptional state, for the CHECKPOINT host call.
func (b *Buffer) CheckpointNow() {
	siblings := make(map[uint32]*jamstate.Account, len(b.Siblings))
	for id, acc := range b.Siblings {
		siblings[id] = acc.Clone()
	}
	b.Checkpoint = &Snapshot{
		Account:    b.Account.Clone(),
		Siblings:   siblings,
		Privileged: b.Privileged.Clone(),
		Transfers:  append([]Transfer(nil), b.Transfers...),
		Yield:      b.Yield,
	}
}

// ApplyCheckpoint replaces the buffer's live mutable surface with its
// checkpointed snapshot, for the panic-after-checkpoint commit path (§4.7
// step 8). It is a no-op if no checkpoint was ever taken.
func (b *Buffer) ApplyCheckpoint() {
	if b.Checkpoint == nil {
		return
	}
	b.Account = b.Checkpoint.Account
	b.Siblings = b.Checkpoint.Siblings
	b.Privileged = b.Checkpoint.Privileged
	b.Transfers = b.Checkpoint.Transfers
	b.Yield = b.Checkpoint.Yield
}
