// Package jamstate holds the global protocol state: service accounts,
// privileges, entropy, and the ready/accumulated queues (§3, §4.8). It owns
// every account exclusively; a running invocation only ever sees a
// copy-on-write view of it via implications.Buffer.
package jamstate

import (
	"encoding/hex"

	"github.com/ethereum/go-ethereum/common"
)

// RequestPhase is the preimage-request lifecycle phase implied by the
// length of its state vector (§3): 0 unsolicited (absent from the map), 1
// solicited-never-provided, 2 provided-then-forgotten-once, 3
// forgotten-twice and eligible for expunge.
type RequestPhase byte

const (
	Requested RequestPhase = iota + 1
	Available
	Reclaimed
)

func (p RequestPhase) String() string {
	switch p {
	case Requested:
		return "requested"
	case Available:
		return "available"
	case Reclaimed:
		return "reclaimed"
	default:
		return "unsolicited"
	}
}

// PreimageKey identifies a preimage request by the hash solicited and its
// declared length, per §3's `(hash,length) -> state vector` map.
type PreimageKey struct {
	Hash   common.Hash
	Length uint32
}

// RequestState is the recorded transition timeslots for one preimage
// request. Its length alone determines the Phase; the slots themselves are
// kept for cool-down and expunge-window accounting.
type RequestState struct {
	Slots []uint32
}

func (s RequestState) Phase() RequestPhase {
	switch len(s.Slots) {
	case 1:
		return Requested
	case 2:
		return Available
	case 3:
		return Reclaimed
	default:
		return 0
	}
}

// Account is one service account record (§3).
type Account struct {
	CodeHash            common.Hash
	Balance             uint64
	MinAccumulateGas    int64
	MinOnTransferGas    int64
	GratisBudget        uint64
	CreationSlot        uint32
	ParentService        uint32
	StorageOctets        uint64
	ItemCount            uint64
	MinBalanceThreshold  uint64
	LastAccumulateSlot   uint32

	Storage          map[string][]byte
	Preimages        map[common.Hash][]byte
	PreimageRequests map[PreimageKey]RequestState
}

// NewAccount returns an empty account with its maps initialized, as created
// by the NEW host call before the caller's constructor arguments are
// applied.
func NewAccount(codeHash common.Hash, creationSlot, parentService uint32) *Account {
	return &Account{
		CodeHash:     codeHash,
		CreationSlot: creationSlot,
		ParentService: parentService,
		Storage:          make(map[string][]byte),
		Preimages:        make(map[common.Hash][]byte),
		PreimageRequests: make(map[PreimageKey]RequestState),
	}
}

// StorageKey renders a raw storage key as the map key WRITE/READ use. Keys
// are arbitrary-length byte strings (§3), not fixed 32-byte hashes, so we
// hex-encode rather than force them into common.Hash.
func StorageKey(key []byte) string {
	return hex.EncodeToString(key)
}

// RecomputeItems applies §3's invariant literally:
// items = |storage| + |preimages| + |requests| + 2*|preimages that are size-tagged|.
// Every entry in Preimages is size-tagged by construction (its key pair in
// PreimageRequests records the declared length), so the last term is simply
// 2*|preimages|.
func (a *Account) RecomputeItems() {
	a.ItemCount = uint64(len(a.Storage)+len(a.PreimageRequests)) + 3*uint64(len(a.Preimages))
}

// Clone returns a deep copy suitable for a fresh copy-on-write overlay
// (implications.Buffer) or an exceptional-state snapshot (CHECKPOINT).
func (a *Account) Clone() *Account {
	if a == nil {
		return nil
	}
	out := *a
	out.Storage = make(map[string][]byte, len(a.Storage))
	for k, v := range a.Storage {
		cp := make([]byte, len(v))
		copy(cp, v)
		out.Storage[k] = cp
	}
	out.Preimages = make(map[common.Hash][]byte, len(a.Preimages))
	for k, v := range a.Preimages {
		cp := make([]byte, len(v))
		copy(cp, v)
		out.Preimages[k] = cp
	}
	out.PreimageRequests = make(map[PreimageKey]RequestState, len(a.PreimageRequests))
	for k, v := range a.PreimageRequests {
		slots := make([]uint32, len(v.Slots))
		copy(slots, v.Slots)
		out.PreimageRequests[k] = RequestState{Slots: slots}
	}
	return &out
}
