package jamstate

import (
	"testing"

	"github.com/ethereum/go-ethereum/common"
)

func TestRequestStatePhase(t *testing.T) {
	cases := []struct {
		slots []uint32
		want  RequestPhase
	}{
		{nil, 0},
		{[]uint32{10}, Requested},
		{[]uint32{10, 20}, Available},
		{[]uint32{10, 20, 30}, Reclaimed},
	}
	for _, c := range cases {
		got := RequestState{Slots: c.slots}.Phase()
		if got != c.want {
			t.Fatalf("Phase(%v) = %v, want %v", c.slots, got, c.want)
		}
	}
}

func TestRecomputeItems(t *testing.T) {
	acc := NewAccount(common.Hash{1}, 0, 0)
	acc.Storage["a"] = []byte("x")
	acc.Storage["b"] = []byte("y")
	acc.PreimageRequests[PreimageKey{Hash: common.Hash{2}, Length: 4}] = RequestState{Slots: []uint32{1}}
	acc.Preimages[common.Hash{3}] = []byte("data")

	acc.RecomputeItems()

	// 2 storage + 1 request + 3*1 preimages = 6
	if acc.ItemCount != 6 {
		t.Fatalf("ItemCount = %d, want 6", acc.ItemCount)
	}
}

func TestAccountCloneIsDeep(t *testing.T) {
	acc := NewAccount(common.Hash{1}, 0, 0)
	acc.Storage["a"] = []byte{1, 2, 3}
	acc.Preimages[common.Hash{2}] = []byte{4, 5}
	acc.PreimageRequests[PreimageKey{Hash: common.Hash{3}, Length: 2}] = RequestState{Slots: []uint32{1}}

	clone := acc.Clone()
	clone.Storage["a"][0] = 99
	clone.Preimages[common.Hash{2}][0] = 99
	clone.PreimageRequests[PreimageKey{Hash: common.Hash{3}, Length: 2}] = RequestState{Slots: []uint32{1, 2}}

	if acc.Storage["a"][0] == 99 {
		t.Fatal("mutating clone's storage leaked into original")
	}
	if acc.Preimages[common.Hash{2}][0] == 99 {
		t.Fatal("mutating clone's preimages leaked into original")
	}
	if len(acc.PreimageRequests[PreimageKey{Hash: common.Hash{3}, Length: 2}].Slots) != 1 {
		t.Fatal("mutating clone's preimage requests leaked into original")
	}
}

func TestStorageKeyHexEncodes(t *testing.T) {
	got := StorageKey([]byte{0xde, 0xad})
	if got != "dead" {
		t.Fatalf("StorageKey = %q, want %q", got, "dead")
	}
}
