package accumulate

import (
	"github.com/ethereum/go-ethereum/log"

	"github.com/jamvm/accumulate/implications"
	"github.com/jamvm/accumulate/jamstate"
	"github.com/jamvm/accumulate/pvm"
)

// TransferOutcome records one destination service's on-transfer invocation
// (§4.7 step 9).
type TransferOutcome struct {
	ServiceID uint32
	Count     int
	Status    pvm.Status
	Committed bool
}

// encodeTransferArgument concatenates the deferred transfers landing on one
// destination service: count (u32) followed by, per transfer, sender id
// (u32), amount (u64), gas (u64) and the fixed 128-byte memo. The exact
// on-transfer argument layout is left open by §4.7 ("with its own
// implications buffer"); this mirrors the accumulate argument's own
// count-prefixed-record shape for consistency.
func encodeTransferArgument(transfers []implications.Transfer) []byte {
	buf := make([]byte, 0, 4+len(transfers)*(4+8+8+128))
	buf = appendU32(buf, uint32(len(transfers)))
	for _, t := range transfers {
		buf = appendU32(buf, t.From)
		buf = appendU64(buf, t.Amount)
		buf = appendU64(buf, uint64(t.Gas))
		buf = append(buf, t.Memo[:]...)
	}
	return buf
}

// applyDeferredTransfers runs each destination service's on-transfer entry
// point once per slot over every transfer it received this slot, crediting
// the balance unconditionally (the sender already paid out of its own
// balance at TRANSFER time) before invocation, then committing or
// discarding implications exactly as an accumulate invocation would.
func applyDeferredTransfers(state *jamstate.State, slot uint32, transfers []implications.Transfer) ([]TransferOutcome, error) {
	if len(transfers) == 0 {
		return nil, nil
	}

	byDest := make(map[uint32][]implications.Transfer)
	var order []uint32
	for _, t := range transfers {
		if _, ok := byDest[t.To]; !ok {
			order = append(order, t.To)
		}
		byDest[t.To] = append(byDest[t.To], t)
	}

	var outcomes []TransferOutcome
	for _, dst := range order {
		ts := byDest[dst]
		acc, ok := state.Accounts[dst]
		if !ok {
			log.Debug("accumulate: deferred transfer to unknown service dropped", "service", dst)
			continue
		}
		for _, t := range ts {
			acc.Balance += t.Amount
		}

		gas := acc.MinOnTransferGas
		argument := encodeTransferArgument(ts)
		inv, err := Invoke(state, &Config{Slot: int64(slot)}, dst, pvm.EntryOnTransfer, argument, gas)
		out := TransferOutcome{ServiceID: dst, Count: len(ts)}
		if err != nil {
			log.Debug("accumulate: on-transfer invocation skipped", "service", dst, "err", err)
			outcomes = append(outcomes, out)
			continue
		}
		out.Status = inv.Status
		out.Committed = inv.Committed
		if inv.Committed {
			mergeBuffer(state, dst, inv.Buffer, slot, inv.Status)
		}
		outcomes = append(outcomes, out)
	}

	return outcomes, nil
}
