package accumulate

import (
	"errors"

	"github.com/ethereum/go-ethereum/log"

	"github.com/jamvm/accumulate/hostcall"
	"github.com/jamvm/accumulate/implications"
	"github.com/jamvm/accumulate/jamstate"
	"github.com/jamvm/accumulate/pvm"
)

// ErrCodeMismatch is returned when a work result's declared code hash does
// not match the account's (§4.7 step 2).
var ErrCodeMismatch = errors.New("accumulate: code hash mismatch")

// ErrNoCode is returned when the account's code hash has no matching
// preimage: a service's code is simply the preimage keyed by its own
// CodeHash (§3's preimage map doubles as the code store), so a service
// that has not yet provided its own code cannot be invoked.
var ErrNoCode = errors.New("accumulate: code preimage unavailable")

// Config mirrors the teacher's runtime.Config/SetDefaults pattern
// (vm/runtime/runtime.go): a small set of invocation-wide knobs filled in
// with documented defaults rather than threaded as positional arguments.
type Config struct {
	Slot int64 // a uint32 slot value; Invoke narrows it back to uint32

	// MaxExports caps the export list length a single invocation may
	// accumulate before the driver stops honoring further exports.
	MaxExports int
}

func SetDefaults(cfg *Config) {
	if cfg.MaxExports == 0 {
		cfg.MaxExports = 1024
	}
}

// InvocationResult is the record of driving one guest entry point to a
// terminal status and deciding its commit fate (§4.7 steps 5-8).
type InvocationResult struct {
	Status    pvm.Status
	GasUsed   int64
	Committed bool
	Buffer    *implications.Buffer
	Exports   [][]byte
}

// decodeServiceCode resolves and decodes a service's own program blob: by
// convention its code lives in its own preimage map, keyed by CodeHash
// (§3). Decode is pure (§9 "decoder purity"), so repeated invocations of
// the same service in one STF pass could share a cache; Invoke does not
// do so itself, leaving that optimization to the caller driving a batch.
func decodeServiceCode(acc *jamstate.Account) (*pvm.Program, error) {
	blob, ok := acc.Preimages[acc.CodeHash]
	if !ok {
		return nil, ErrNoCode
	}
	return pvm.Decode(blob)
}

// Invoke runs one guest entry point to completion under gas, dispatching
// every ecalli through hostcall.Dispatcher, then applies §4.6/§4.7's
// three-way commit rule: halt commits the live buffer, panic/OOG with a
// checkpoint commits the checkpointed snapshot, and panic/OOG without one
// discards everything.
func Invoke(state *jamstate.State, cfg *Config, serviceID uint32, entry pvm.EntryPoint, argument []byte, gas int64) (*InvocationResult, error) {
	if cfg == nil {
		cfg = &Config{}
	}
	SetDefaults(cfg)

	acc, ok := state.Accounts[serviceID]
	if !ok {
		return nil, ErrNoSuchService
	}
	program, err := decodeServiceCode(acc)
	if err != nil {
		log.Debug("accumulate: skipping invocation", "service", serviceID, "err", err)
		return nil, err
	}

	m, err := pvm.NewForEntry(program, entry, argument, gas)
	if err != nil {
		return nil, err
	}
	buf := implications.New(serviceID, acc, &state.Privileged, argument)
	disp := hostcall.New(state, uint32(cfg.Slot))

	for {
		m.Run()
		if m.Status != pvm.WaitingForHost {
			break
		}
		disp.Dispatch(m, buf)
		if m.Status == pvm.WaitingForHost {
			m.ResumeAfterHostCall()
		}
	}

	result := &InvocationResult{
		Status:  m.Status,
		GasUsed: gas - m.Gas,
		Buffer:  buf,
		Exports: m.Exports,
	}
	if len(result.Exports) > cfg.MaxExports {
		result.Exports = result.Exports[:cfg.MaxExports]
	}

	switch m.Status {
	case pvm.Halted:
		result.Committed = true
	case pvm.PanicStatus, pvm.OutOfGas, pvm.PageFault:
		if buf.Checkpoint != nil {
			buf.ApplyCheckpoint()
			result.Committed = true
		}
	}

	return result, nil
}
