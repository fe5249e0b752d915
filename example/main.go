package main

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/log"
	"golang.org/x/crypto/blake2b"

	"github.com/jamvm/accumulate/accumulate"
	"github.com/jamvm/accumulate/jamstate"
	"github.com/jamvm/accumulate/pvm"
)

func main() {
	exampleNoopAccumulate()
	examplePanicWithoutCheckpoint()
}

// trapOnlyProgram builds the smallest legal service code: a single Trap
// instruction reachable from every entry point (§8 scenario 3 needs a
// guest that panics immediately).
func trapOnlyProgram() []byte {
	code := []byte{byte(pvm.Trap)}
	mask := []byte{0b00000001}
	jumpTable := make([]uint32, 11) // indices 0..10 all point at pc 0
	return pvm.EncodeBlob(code, mask, jumpTable, nil, 1)
}

func newTrapService(creationSlot, parentService uint32) *jamstate.Account {
	blob := trapOnlyProgram()
	codeHash := common.Hash(blake2b.Sum256(blob))

	acc := jamstate.NewAccount(codeHash, creationSlot, parentService)
	acc.Preimages[codeHash] = blob
	acc.Balance = 10_000_000_000_000_000
	acc.MinBalanceThreshold = 1000
	acc.RecomputeItems()
	return acc
}

// exampleNoopAccumulate demonstrates §8 scenario 1: an Accumulate call with
// no reports only advances the slot.
func exampleNoopAccumulate() {
	state := jamstate.New(600)
	state.Accounts[1] = newTrapService(0, 0)

	outcome, err := accumulate.Accumulate(state, 1, nil)
	if err != nil {
		log.Crit("no-op accumulate failed", "err", err)
	}

	log.Info("no-op accumulate", "slot", outcome.State.Slot, "balance", outcome.State.Accounts[1].Balance)
}

// examplePanicWithoutCheckpoint demonstrates §8 scenario 3: a guest that
// traps immediately leaves no trace on the account.
func examplePanicWithoutCheckpoint() {
	state := jamstate.New(600)
	state.Accounts[7] = newTrapService(0, 0)
	before := state.Accounts[7].Balance

	report := accumulate.Report{
		PackageHash: common.HexToHash("0xbeef"),
		Results: []accumulate.WorkResult{
			{
				ServiceID:     7,
				CodeHash:      state.Accounts[7].CodeHash,
				AccumulateGas: 1000,
			},
		},
	}

	outcome, err := accumulate.Accumulate(state, 1, []accumulate.Report{report})
	if err != nil {
		log.Crit("panic-without-checkpoint accumulate failed", "err", err)
	}

	ro := outcome.Reports[0]
	log.Info("panic-without-checkpoint", "status", ro.Status, "committed", ro.Committed,
		"balanceBefore", before, "balanceAfter", outcome.State.Accounts[7].Balance)
}
