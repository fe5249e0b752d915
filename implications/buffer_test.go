package implications

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"

	"github.com/jamvm/accumulate/jamstate"
)

func newTestAccount() *jamstate.Account {
	acc := jamstate.NewAccount(common.Hash{1}, 0, 0)
	acc.Balance = 100
	acc.Storage["k"] = []byte("v")
	return acc
}

func TestNewBufferClonesAccount(t *testing.T) {
	acc := newTestAccount()
	priv := &jamstate.PrivilegedState{Manager: 1, Assigners: map[uint32]uint32{}}

	buf := New(7, acc, priv, []byte("arg"))
	buf.Account.Storage["k"][0] = 'x'

	if acc.Storage["k"][0] == 'x' {
		t.Fatal("mutating the buffer's account leaked into the source account")
	}
	if buf.ServiceID != 7 {
		t.Fatalf("ServiceID = %d, want 7", buf.ServiceID)
	}
	if string(buf.Input) != "arg" {
		t.Fatalf("Input = %q, want %q", buf.Input, "arg")
	}
}

func TestSiblingClonesOnFirstTouchOnly(t *testing.T) {
	acc := newTestAccount()
	priv := &jamstate.PrivilegedState{Assigners: map[uint32]uint32{}}
	buf := New(7, acc, priv, nil)

	base := newTestAccount()
	s1 := buf.Sibling(9, base)
	s1.Balance = 999

	s2 := buf.Sibling(9, base)
	if s2.Balance != 999 {
		t.Fatal("second Sibling call should return the same overlay entry, not re-clone from base")
	}
	if base.Balance == 999 {
		t.Fatal("mutating the sibling overlay leaked into base")
	}
}

func TestSiblingNilBaseYieldsNil(t *testing.T) {
	acc := newTestAccount()
	priv := &jamstate.PrivilegedState{Assigners: map[uint32]uint32{}}
	buf := New(7, acc, priv, nil)

	if buf.Sibling(123, nil) != nil {
		t.Fatal("expected nil sibling view for a nil base")
	}
}

func TestCheckpointThenApplyDiscardsLaterMutation(t *testing.T) {
	acc := newTestAccount()
	priv := &jamstate.PrivilegedState{Assigners: map[uint32]uint32{}}
	buf := New(7, acc, priv, nil)

	buf.Account.Storage["k"] = []byte("checkpointed")
	buf.CheckpointNow()
	buf.Account.Storage["k"] = []byte("after checkpoint, should be discarded")

	buf.ApplyCheckpoint()

	if string(buf.Account.Storage["k"]) != "checkpointed" {
		t.Fatalf("ApplyCheckpoint did not roll back to the checkpointed value, got %q", buf.Account.Storage["k"])
	}
}

func TestApplyCheckpointNoopWithoutOne(t *testing.T) {
	acc := newTestAccount()
	priv := &jamstate.PrivilegedState{Assigners: map[uint32]uint32{}}
	buf := New(7, acc, priv, nil)
	buf.Account.Storage["k"] = []byte("live")

	buf.ApplyCheckpoint()

	if string(buf.Account.Storage["k"]) != "live" {
		t.Fatal("ApplyCheckpoint with no prior checkpoint should be a no-op")
	}
}
