package hostcall

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"golang.org/x/crypto/blake2b"

	"github.com/jamvm/accumulate/implications"
	"github.com/jamvm/accumulate/jamstate"
	"github.com/jamvm/accumulate/pvm"
)

const scratchBase = 0x30000000

func newTestMachine(t *testing.T) *pvm.Machine {
	t.Helper()
	code := []byte{byte(pvm.Trap)}
	mask := []byte{0b00000001}
	blob := pvm.EncodeBlob(code, mask, make([]uint32, 11), nil, 1)
	program, err := pvm.Decode(blob)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	m, err := pvm.NewForEntry(program, pvm.EntryAccumulate, nil, 1000)
	if err != nil {
		t.Fatalf("NewForEntry: %v", err)
	}
	m.Memory.Map(scratchBase, 4096, pvm.ReadWrite)
	m.Status = pvm.WaitingForHost
	return m
}

func newTestEnv(t *testing.T) (*jamstate.State, *implications.Buffer, *Dispatcher) {
	t.Helper()
	state := jamstate.New(600)
	acc := jamstate.NewAccount(common.Hash{1}, 0, 0)
	acc.Balance = 1_000_000
	acc.MinBalanceThreshold = 10
	state.Accounts[1] = acc
	buf := implications.New(1, acc, &state.Privileged, nil)
	return state, buf, New(state, 5)
}

func TestGasReportsRemaining(t *testing.T) {
	m := newTestMachine(t)
	_, buf, disp := newTestEnv(t)
	m.HostCallID = uint64(IDGas)

	disp.Dispatch(m, buf)

	if Status(m.Reg[7]) != OK {
		t.Fatalf("status = %v, want OK", Status(m.Reg[7]))
	}
	if int64(m.Reg[8]) != m.Gas {
		t.Fatalf("reported gas %d != machine gas %d", m.Reg[8], m.Gas)
	}
}

func TestWriteThenReadRoundTrip(t *testing.T) {
	m := newTestMachine(t)
	_, buf, disp := newTestEnv(t)

	key := []byte{0x01}
	val := []byte{0x01, 0x00, 0x00, 0x00}
	m.Memory.WriteBytes(scratchBase, key)
	m.Memory.WriteBytes(scratchBase+16, val)

	m.HostCallID = uint64(IDWrite)
	m.Reg[7], m.Reg[8] = scratchBase, uint64(len(key))
	m.Reg[9], m.Reg[10] = scratchBase+16, uint64(len(val))
	disp.Dispatch(m, buf)
	if Status(m.Reg[7]) != OK {
		t.Fatalf("WRITE status = %v, want OK", Status(m.Reg[7]))
	}

	m.HostCallID = uint64(IDRead)
	m.Reg[7], m.Reg[8] = scratchBase, uint64(len(key))
	m.Reg[9], m.Reg[10] = scratchBase+32, uint64(len(val))
	disp.Dispatch(m, buf)
	if Status(m.Reg[7]) != OK {
		t.Fatalf("READ status = %v, want OK", Status(m.Reg[7]))
	}
	got := m.Memory.ReadBytes(scratchBase+32, uint32(len(val)))
	for i := range val {
		if got[i] != val[i] {
			t.Fatalf("READ round trip mismatch: got % x, want % x", got, val)
		}
	}

	items := buf.Account.ItemCount
	if items == 0 {
		t.Fatal("expected RecomputeItems to have run after WRITE")
	}
}

func TestWriteZeroLengthDeletes(t *testing.T) {
	m := newTestMachine(t)
	_, buf, disp := newTestEnv(t)

	key := []byte{0xAA}
	val := []byte{1, 2, 3}
	m.Memory.WriteBytes(scratchBase, key)
	m.Memory.WriteBytes(scratchBase+16, val)

	m.HostCallID = uint64(IDWrite)
	m.Reg[7], m.Reg[8] = scratchBase, uint64(len(key))
	m.Reg[9], m.Reg[10] = scratchBase+16, uint64(len(val))
	disp.Dispatch(m, buf)

	m.HostCallID = uint64(IDWrite)
	m.Reg[7], m.Reg[8] = scratchBase, uint64(len(key))
	m.Reg[9], m.Reg[10] = 0, 0
	disp.Dispatch(m, buf)

	if _, ok := buf.Account.Storage[jamstate.StorageKey(key)]; ok {
		t.Fatal("expected zero-length WRITE to delete the key")
	}
}

func TestSolicitProvideForgetLifecycle(t *testing.T) {
	m := newTestMachine(t)
	_, buf, disp := newTestEnv(t)

	data := []byte("hello preimage")
	m.Memory.WriteBytes(scratchBase, data)

	// compute the preimage hash the same way PROVIDE does, to solicit it first.
	hash := blake2b.Sum256(data)
	m.Memory.WriteBytes(scratchBase+256, hash[:])

	m.HostCallID = uint64(IDSolicit)
	m.Reg[7], m.Reg[8] = scratchBase+256, uint64(len(data))
	disp.Dispatch(m, buf)
	if Status(m.Reg[7]) != OK {
		t.Fatalf("SOLICIT status = %v, want OK", Status(m.Reg[7]))
	}

	m.HostCallID = uint64(IDProvide)
	m.Reg[7], m.Reg[8] = scratchBase, uint64(len(data))
	disp.Dispatch(m, buf)
	if Status(m.Reg[7]) != OK {
		t.Fatalf("PROVIDE status = %v, want OK", Status(m.Reg[7]))
	}

	key := jamstate.PreimageKey{Hash: common.BytesToHash(hash[:]), Length: uint32(len(data))}
	if buf.Account.PreimageRequests[key].Phase() != jamstate.Available {
		t.Fatalf("expected phase Available after PROVIDE, got %v", buf.Account.PreimageRequests[key].Phase())
	}

	m.HostCallID = uint64(IDForget)
	m.Reg[7], m.Reg[8] = scratchBase+256, uint64(len(data))
	disp.Dispatch(m, buf)
	if Status(m.Reg[7]) != OK {
		t.Fatalf("FORGET status = %v, want OK", Status(m.Reg[7]))
	}
	if _, ok := buf.Account.PreimageRequests[key]; ok {
		t.Fatal("expected FORGET to remove the request after Available phase")
	}
}

func TestTransferDebitsCallerAndEnqueues(t *testing.T) {
	m := newTestMachine(t)
	state, buf, disp := newTestEnv(t)

	dst := jamstate.NewAccount(common.Hash{2}, 0, 0)
	dst.MinOnTransferGas = 0
	state.Accounts[2] = dst

	before := buf.Account.Balance

	m.HostCallID = uint64(IDTransfer)
	m.Reg[7] = 2
	m.Reg[8] = 1000
	m.Reg[9] = 0
	m.Reg[10] = scratchBase // 128 zero bytes, already mapped RW
	disp.Dispatch(m, buf)

	if Status(m.Reg[7]) != OK {
		t.Fatalf("TRANSFER status = %v, want OK", Status(m.Reg[7]))
	}
	if buf.Account.Balance != before-1000 {
		t.Fatalf("balance after TRANSFER = %d, want %d", buf.Account.Balance, before-1000)
	}
	if len(buf.Transfers) != 1 || buf.Transfers[0].To != 2 || buf.Transfers[0].Amount != 1000 {
		t.Fatalf("unexpected enqueued transfers: %+v", buf.Transfers)
	}
}

func TestTransferUnknownDestinationReturnsWho(t *testing.T) {
	m := newTestMachine(t)
	_, buf, disp := newTestEnv(t)

	m.HostCallID = uint64(IDTransfer)
	m.Reg[7] = 999
	m.Reg[8] = 10
	m.Reg[9] = 0
	m.Reg[10] = scratchBase
	disp.Dispatch(m, buf)

	if Status(m.Reg[7]) != WHO {
		t.Fatalf("status = %v, want WHO", Status(m.Reg[7]))
	}
}

func TestNewCreatesSiblingAndChargesDeposit(t *testing.T) {
	m := newTestMachine(t)
	_, buf, disp := newTestEnv(t)

	codeHash := common.Hash{9}
	m.Memory.WriteBytes(scratchBase, codeHash.Bytes())
	buf.Account.Balance = 2_000_000_000_000_000
	before := buf.Account.Balance

	m.HostCallID = uint64(IDNew)
	m.Reg[7] = scratchBase
	m.Reg[8] = 0 // auto-assign id
	m.Reg[9] = 100
	m.Reg[10] = 50
	disp.Dispatch(m, buf)

	if Status(m.Reg[7]) != OK {
		t.Fatalf("NEW status = %v, want OK", Status(m.Reg[7]))
	}
	id := uint32(m.Reg[8])
	if id == 0 {
		t.Fatal("expected a nonzero auto-assigned id")
	}
	if buf.Siblings[id] == nil {
		t.Fatal("expected the new account to appear in Siblings")
	}
	if buf.Account.Balance >= before {
		t.Fatal("expected NEW to charge a deposit from the caller")
	}
}

func TestBlessRequiresManager(t *testing.T) {
	m := newTestMachine(t)
	_, buf, disp := newTestEnv(t)
	buf.Privileged.Manager = 2 // not this caller (service 1)

	m.HostCallID = uint64(IDBless)
	m.Reg[7] = 3
	disp.Dispatch(m, buf)

	if Status(m.Reg[7]) != HUH {
		t.Fatalf("status = %v, want HUH", Status(m.Reg[7]))
	}
}

func TestStatusStringKnownAndUnknown(t *testing.T) {
	if OK.String() != "OK" {
		t.Fatalf("OK.String() = %q", OK.String())
	}
	if Status(12345).String() != "UNKNOWN" {
		t.Fatalf("unknown status should stringify to UNKNOWN")
	}
}
