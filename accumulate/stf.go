package accumulate

import (
	"fmt"

	"github.com/ethereum/go-ethereum/log"

	"github.com/jamvm/accumulate/implications"
	"github.com/jamvm/accumulate/jamstate"
	"github.com/jamvm/accumulate/pvm"
)

// ReportOutcome records what happened to one report's results, for
// observability and the seed-scenario tests in §8.
type ReportOutcome struct {
	PackageHash   [32]byte
	ServiceID     uint32
	Status        pvm.Status
	GasUsed       int64
	Committed     bool
	CodeMismatch  bool
	ResultFailed  bool
	ServiceAbsent bool
}

// Outcome is the full record of one Accumulate call, adapting the
// teacher's SimulationResult/SimulateBundle-result pattern
// (simulator/simulator.go) to a state-transition rather than a read-only
// simulation.
type Outcome struct {
	State     *jamstate.State
	Reports   []ReportOutcome
	Transfers []TransferOutcome
	// NowReady lists package hashes whose dependencies became satisfied
	// this slot via the ready queue's wrap-shift, but whose original
	// report bytes this core does not retain (the availability/guarantees
	// layer that supplies report bytes is out of scope, §1); the caller is
	// expected to resubmit them as a fresh Report.
	NowReady []jamstate.ReportMetadata
}

// Accumulate runs the STF for one slot transition: wrap-shifts the ready
// queue, groups each report's eligible work results by target service,
// drives one accumulate invocation per service, commits or discards its
// implications, then applies deferred transfers (§4.7).
//
// It never fails on guest behavior (§4.7 "Failure semantics"); it returns
// an error only for the structural violations named there.
func Accumulate(state *jamstate.State, slot uint32, reports []Report) (*Outcome, error) {
	if slot < state.Slot {
		return nil, fmt.Errorf("accumulate: non-monotonic slot %d before current %d", slot, state.Slot)
	}

	next := state.Clone()
	next.Slot = slot

	outcome := &Outcome{State: next}
	outcome.NowReady = next.Ready.WrapShift(slot, next.Accumulated)

	type pending struct {
		results []WorkResult
		// outcomeIdx indexes into outcome.Reports; kept as indices rather
		// than pointers since outcome.Reports keeps growing via append and
		// may reallocate its backing array after a pointer was taken.
		outcomeIdx []int
	}
	byService := make(map[uint32]*pending)
	var serviceOrder []uint32

	for _, report := range reports {
		if !next.Accumulated.SatisfiesAll(report.Dependencies) {
			for _, r := range report.Results {
				next.Ready.Park(jamstate.ReportMetadata{
					Slot:         slot,
					ServiceID:    r.ServiceID,
					PackageHash:  report.PackageHash,
					Dependencies: report.Dependencies,
				})
			}
			continue
		}

		for i := range report.Results {
			r := report.Results[i]
			outcome.Reports = append(outcome.Reports, ReportOutcome{PackageHash: report.PackageHash, ServiceID: r.ServiceID})
			idx := len(outcome.Reports) - 1

			acc, ok := next.Accounts[r.ServiceID]
			if !ok { // step 1: absent service, skip
				outcome.Reports[idx].ServiceAbsent = true
				continue
			}
			if r.CodeHash != acc.CodeHash { // step 2: mismatched code hash, skip
				outcome.Reports[idx].CodeMismatch = true
				continue
			}
			if r.Failed { // step 3: refine error, skip
				outcome.Reports[idx].ResultFailed = true
				continue
			}

			p, ok := byService[r.ServiceID]
			if !ok {
				p = &pending{}
				byService[r.ServiceID] = p
				serviceOrder = append(serviceOrder, r.ServiceID)
			}
			p.results = append(p.results, r)
			p.outcomeIdx = append(p.outcomeIdx, idx)
		}
		next.Accumulated.Push(report.PackageHash)
	}

	var transfers []implications.Transfer
	for _, serviceID := range serviceOrder {
		p := byService[serviceID]

		var gas int64
		for _, r := range p.results {
			gas += r.AccumulateGas
		}
		argument := encodeArgument(slot, serviceID, p.results)

		inv, err := Invoke(next, &Config{Slot: int64(slot)}, serviceID, pvm.EntryAccumulate, argument, gas)
		if err != nil {
			log.Debug("accumulate: invocation skipped", "service", serviceID, "err", err)
			continue
		}
		for _, idx := range p.outcomeIdx {
			outcome.Reports[idx].Status = inv.Status
			outcome.Reports[idx].GasUsed = inv.GasUsed
			outcome.Reports[idx].Committed = inv.Committed
		}
		if !inv.Committed {
			continue
		}

		mergeBuffer(next, serviceID, inv.Buffer, slot, inv.Status)
		transfers = append(transfers, inv.Buffer.Transfers...)
	}

	transferOutcomes, err := applyDeferredTransfers(next, slot, transfers)
	if err != nil {
		return nil, err
	}
	outcome.Transfers = transferOutcomes

	return outcome, nil
}

// mergeBuffer folds a committed implications.Buffer into the global state
// (§4.7 step 6): the invoking account, any touched siblings, evicted
// children, and the privileged-state overlay. last_acc only advances on a
// successful halt (§4.7 step 6); a panic/OOG invocation that commits a
// checkpoint instead (step 8) still merges its other implications but must
// not touch last_acc, per the §8 invariant that last_acc == slot iff the
// invocation halted.
func mergeBuffer(state *jamstate.State, serviceID uint32, buf *implications.Buffer, slot uint32, status pvm.Status) {
	if status == pvm.Halted {
		buf.Account.LastAccumulateSlot = slot
	}
	state.Accounts[serviceID] = buf.Account

	for id, acc := range buf.Siblings {
		state.Accounts[id] = acc
	}
	for id := range buf.Evicted {
		delete(state.Accounts, id)
	}
	state.Privileged = *buf.Privileged
}
