package hostcall

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/log"
	"github.com/holiman/uint256"
	"golang.org/x/crypto/blake2b"

	"github.com/jamvm/accumulate/implications"
	"github.com/jamvm/accumulate/jamstate"
	"github.com/jamvm/accumulate/pvm"
)

// ID identifies a host call by the ecalli immediate. The numeric values
// below are a local enumeration, not the Gray Paper's fixed wire numbering:
// §9's open questions note that the source's selector numbering for some
// calls was stubbed and later filled in, and that the Gray Paper must be
// treated as authoritative where the two disagree. Assigning the exact
// protocol-level ids is outside this core's scope (it is the concern of the
// networking/consensus layer that serializes ecalli immediates on-chain);
// this dispatcher only needs internal agreement between the guest ABI
// contract and Dispatch, exactly as pvm.OpCode's numbering is local.
type ID uint64

const (
	IDGas ID = iota
	IDFetch
	IDLookup
	IDRead
	IDWrite
	IDInfo
	IDBless
	IDAssign
	IDDesignate
	IDCheckpoint
	IDNew
	IDUpgrade
	IDTransfer
	IDEject
	IDQuery
	IDSolicit
	IDForget
	IDProvide
	IDYield
	IDLog
	IDMachine
	IDInvoke
	IDExpunge
)

// baseGas is Dispatch's own flat surcharge for a host call's side effect,
// on top of the ~10 gas the ecalli opcode itself already costs in the PVM
// core's step loop (pvm.OpCode.gasCost). A host call therefore costs ~20
// gas total, not ~10; §4.4's "~10" figure covers the opcode fetch/decode,
// not the dispatcher-side work the opcode triggers.
const baseGas int64 = 10

// newServiceDeposit is NEW's base deposit (§4.5): 10^15 before any
// storage-proportional component.
const newServiceDeposit uint64 = 1_000_000_000_000_000

// Dispatcher resolves ecalli calls against a committed state snapshot plus
// the per-invocation implications.Buffer. It never mutates State directly;
// every effect lands in the buffer, which the Accumulate STF later commits
// or discards (§4.6).
type Dispatcher struct {
	State *jamstate.State
	Slot  uint32
}

func New(state *jamstate.State, slot uint32) *Dispatcher {
	return &Dispatcher{State: state, Slot: slot}
}

// Dispatch performs the side effect of m.HostCallID against buf, deducting
// gas before any mutation (§4.5: "on insufficient gas, set out-of-gas and
// do not mutate"). The caller (accumulate.Invoke) is responsible for
// resuming the machine afterwards: clearing WaitingForHost and advancing PC
// past the ecalli.
func (d *Dispatcher) Dispatch(m *pvm.Machine, buf *implications.Buffer) {
	if m.Gas < baseGas {
		m.Status = pvm.OutOfGas
		return
	}
	m.Gas -= baseGas

	switch ID(m.HostCallID) {
	case IDGas:
		d.gas(m)
	case IDFetch:
		d.fetch(m, buf)
	case IDLookup:
		d.lookup(m, buf)
	case IDRead:
		d.read(m, buf)
	case IDWrite:
		d.write(m, buf)
	case IDInfo:
		d.info(m, buf)
	case IDBless:
		d.bless(m, buf)
	case IDAssign:
		d.assign(m, buf)
	case IDDesignate:
		d.designate(m, buf)
	case IDCheckpoint:
		d.checkpoint(m, buf)
	case IDNew:
		d.new_(m, buf)
	case IDUpgrade:
		d.upgrade(m, buf)
	case IDTransfer:
		d.transfer(m, buf)
	case IDEject:
		d.eject(m, buf)
	case IDQuery:
		d.query(m, buf)
	case IDSolicit:
		d.solicit(m, buf)
	case IDForget:
		d.forget(m, buf)
	case IDProvide:
		d.provide(m, buf)
	case IDYield:
		d.yield(m, buf)
	case IDLog:
		d.log(m)
	case IDMachine:
		d.machine(m)
	case IDInvoke:
		d.invoke(m)
	case IDExpunge:
		d.expunge(m)
	default:
		log.Debug("hostcall: unknown host call id", "id", m.HostCallID)
		m.Reg[7] = uint64(HUH)
	}
}

func (d *Dispatcher) gas(m *pvm.Machine) {
	m.Reg[7] = uint64(OK)
	m.Reg[8] = uint64(m.Gas)
}

// fetch writes the invocation input to guest memory (§4.5 FETCH): r11 is
// the destination pointer. The selector (r7) and indices (r8/r9/r10) are
// not consulted: every call copies the whole argument buffer held in
// buf.Input, returning OK with its length in r8, or NONE when the
// invocation has no input.
func (d *Dispatcher) fetch(m *pvm.Machine, buf *implications.Buffer) {
	input := buf.Input
	if input == nil {
		m.Reg[7] = uint64(NONE)
		return
	}
	dst := uint32(m.Reg[11])
	if !m.Memory.IsWritable(dst, uint32(len(input))) {
		m.Status = pvm.PageFault
		return
	}
	m.Memory.WriteBytes(dst, input)
	m.Reg[7] = uint64(OK)
	m.Reg[8] = uint64(len(input))
}

func (d *Dispatcher) lookup(m *pvm.Machine, buf *implications.Buffer) {
	serviceID := uint32(m.Reg[7])
	hashPtr := uint32(m.Reg[8])
	dstPtr := uint32(m.Reg[9])
	dstLen := uint32(m.Reg[10])

	if !m.Memory.IsReadable(hashPtr, common.HashLength) {
		m.Status = pvm.PageFault
		return
	}
	hash := common.BytesToHash(m.Memory.ReadBytes(hashPtr, common.HashLength))

	acc := d.resolveAccount(buf, serviceID)
	if acc == nil {
		m.Reg[7] = uint64(WHO)
		return
	}
	preimage, ok := acc.Preimages[hash]
	if !ok {
		m.Reg[7] = uint64(NONE)
		return
	}
	n := uint32(len(preimage))
	if n > dstLen {
		n = dstLen
	}
	if !m.Memory.IsWritable(dstPtr, n) {
		m.Status = pvm.PageFault
		return
	}
	m.Memory.WriteBytes(dstPtr, preimage[:n])
	m.Reg[7] = uint64(OK)
	m.Reg[8] = uint64(len(preimage))
}

func (d *Dispatcher) read(m *pvm.Machine, buf *implications.Buffer) {
	keyPtr, keyLen := uint32(m.Reg[7]), uint32(m.Reg[8])
	dstPtr, dstLen := uint32(m.Reg[9]), uint32(m.Reg[10])

	if !m.Memory.IsReadable(keyPtr, keyLen) {
		m.Status = pvm.PageFault
		return
	}
	key := jamstate.StorageKey(m.Memory.ReadBytes(keyPtr, keyLen))
	val, ok := buf.Account.Storage[key]
	if !ok {
		m.Reg[7] = uint64(NONE)
		return
	}
	n := uint32(len(val))
	if n > dstLen {
		n = dstLen
	}
	if !m.Memory.IsWritable(dstPtr, n) {
		m.Status = pvm.PageFault
		return
	}
	m.Memory.WriteBytes(dstPtr, val[:n])
	m.Reg[7] = uint64(OK)
	m.Reg[8] = uint64(len(val))
}

// write inserts, updates, or deletes (value length 0) a storage entry,
// keeping items/octets current and refusing the mutation with FULL if it
// would push the balance below the account's minimum (§4.5 WRITE).
func (d *Dispatcher) write(m *pvm.Machine, buf *implications.Buffer) {
	keyPtr, keyLen := uint32(m.Reg[7]), uint32(m.Reg[8])
	valPtr, valLen := uint32(m.Reg[9]), uint32(m.Reg[10])

	if !m.Memory.IsReadable(keyPtr, keyLen) {
		m.Status = pvm.PageFault
		return
	}
	key := jamstate.StorageKey(m.Memory.ReadBytes(keyPtr, keyLen))

	acc := buf.Account
	before, existed := acc.Storage[key]

	if valLen == 0 {
		if existed {
			acc.StorageOctets -= uint64(len(before))
			delete(acc.Storage, key)
		}
		acc.RecomputeItems()
		m.Reg[7] = uint64(OK)
		m.Reg[8] = uint64(len(before))
		return
	}

	if !m.Memory.IsReadable(valPtr, valLen) {
		m.Status = pvm.PageFault
		return
	}
	val := m.Memory.ReadBytes(valPtr, valLen)

	newOctets, overflow := math.SafeAdd(acc.StorageOctets-uint64(len(before)), uint64(len(val)))
	if overflow {
		m.Reg[7] = uint64(FULL)
		return
	}
	deposit := depositFor(newOctets, uint64(len(acc.Storage))+1)
	if acc.Balance < deposit || acc.Balance-deposit < acc.MinBalanceThreshold {
		m.Reg[7] = uint64(FULL)
		return
	}

	acc.Storage[key] = val
	acc.StorageOctets = newOctets
	acc.RecomputeItems()
	m.Reg[7] = uint64(OK)
	m.Reg[8] = uint64(len(before))
}

// depositFor computes the storage deposit owed for a given octet and item
// count, mirroring the teacher's pattern of running attacker-influenced
// sums through uint256 before narrowing back (vm/interpreter.go's dynamic
// memory-gas computation does the analogous thing with math.SafeMul).
func depositFor(octets, items uint64) uint64 {
	perOctet := uint256.NewInt(1)
	perItem := uint256.NewInt(100)
	total := new(uint256.Int).Mul(perOctet, uint256.NewInt(octets))
	total.Add(total, new(uint256.Int).Mul(perItem, uint256.NewInt(items)))
	return total.Uint64()
}

func (d *Dispatcher) info(m *pvm.Machine, buf *implications.Buffer) {
	serviceID := uint32(m.Reg[7])
	dstPtr := uint32(m.Reg[8])

	acc := d.resolveAccount(buf, serviceID)
	if acc == nil {
		m.Reg[7] = uint64(NONE)
		return
	}

	rec := encodeAccountInfo(acc)
	if !m.Memory.IsWritable(dstPtr, uint32(len(rec))) {
		m.Status = pvm.PageFault
		return
	}
	m.Memory.WriteBytes(dstPtr, rec)
	m.Reg[7] = uint64(OK)
}

func (d *Dispatcher) bless(m *pvm.Machine, buf *implications.Buffer) {
	if buf.Privileged.Manager != buf.ServiceID {
		m.Reg[7] = uint64(HUH)
		return
	}
	buf.Privileged.Manager = uint32(m.Reg[7])
	m.Reg[7] = uint64(OK)
}

func (d *Dispatcher) assign(m *pvm.Machine, buf *implications.Buffer) {
	core := uint32(m.Reg[7])
	newAssigner := uint32(m.Reg[8])
	if buf.Privileged.Manager != buf.ServiceID && buf.Privileged.Assigners[core] != buf.ServiceID {
		m.Reg[7] = uint64(HUH)
		return
	}
	buf.Privileged.Assigners[core] = newAssigner
	m.Reg[7] = uint64(OK)
}

func (d *Dispatcher) designate(m *pvm.Machine, buf *implications.Buffer) {
	if buf.Privileged.Designator != buf.ServiceID {
		m.Reg[7] = uint64(HUH)
		return
	}
	ptr, count := uint32(m.Reg[7]), uint32(m.Reg[8])
	span := count * common.HashLength
	if !m.Memory.IsReadable(ptr, span) {
		m.Status = pvm.PageFault
		return
	}
	raw := m.Memory.ReadBytes(ptr, span)
	keys := make([]jamstate.ValidatorKey, count)
	for i := uint32(0); i < count; i++ {
		keys[i] = common.BytesToHash(raw[i*common.HashLength : (i+1)*common.HashLength])
	}
	buf.Privileged.StagedValidators = keys
	m.Reg[7] = uint64(OK)
}

func (d *Dispatcher) checkpoint(m *pvm.Machine, buf *implications.Buffer) {
	buf.CheckpointNow()
	m.Reg[7] = uint64(OK)
	m.Reg[8] = uint64(m.Gas)
}

// new_ creates a child service, charging the base deposit plus a
// storage-proportional deposit (§4.5 NEW). Its trailing underscore avoids
// shadowing the builtin.
func (d *Dispatcher) new_(m *pvm.Machine, buf *implications.Buffer) {
	codeHashPtr := uint32(m.Reg[7])
	requestedID := uint32(m.Reg[8])
	minAccGas := int64(m.Reg[9])
	minXferGas := int64(m.Reg[10])

	if !m.Memory.IsReadable(codeHashPtr, common.HashLength) {
		m.Status = pvm.PageFault
		return
	}
	codeHash := common.BytesToHash(m.Memory.ReadBytes(codeHashPtr, common.HashLength))

	deposit, overflow := math.SafeAdd(newServiceDeposit, depositFor(0, 0))
	if overflow || buf.Account.Balance < deposit {
		m.Reg[7] = uint64(CASH)
		return
	}

	id := requestedID
	if id == 0 {
		id = d.nextAutoID()
	} else if d.resolveAccount(buf, id) != nil {
		m.Reg[7] = uint64(WHO)
		return
	}

	child := jamstate.NewAccount(codeHash, d.Slot, buf.ServiceID)
	child.MinAccumulateGas = minAccGas
	child.MinOnTransferGas = minXferGas
	buf.Siblings[id] = child

	buf.Account.Balance -= deposit
	m.Reg[7] = uint64(OK)
	m.Reg[8] = uint64(id)
}

func (d *Dispatcher) nextAutoID() uint32 {
	id := uint32(1)
	for {
		if _, ok := d.State.Accounts[id]; !ok {
			return id
		}
		id++
	}
}

func (d *Dispatcher) upgrade(m *pvm.Machine, buf *implications.Buffer) {
	codeHashPtr := uint32(m.Reg[7])
	minAccGas := int64(m.Reg[8])
	minXferGas := int64(m.Reg[9])

	if !m.Memory.IsReadable(codeHashPtr, common.HashLength) {
		m.Status = pvm.PageFault
		return
	}
	buf.Account.CodeHash = common.BytesToHash(m.Memory.ReadBytes(codeHashPtr, common.HashLength))
	buf.Account.MinAccumulateGas = minAccGas
	buf.Account.MinOnTransferGas = minXferGas
	m.Reg[7] = uint64(OK)
}

// transfer debits the caller immediately and enqueues a deferred transfer,
// applied during the Accumulate STF's deferred-transfer phase (§4.5/§4.7).
func (d *Dispatcher) transfer(m *pvm.Machine, buf *implications.Buffer) {
	dst := uint32(m.Reg[7])
	amount := m.Reg[8]
	gas := int64(m.Reg[9])
	memoPtr := uint32(m.Reg[10])

	dstAcc := d.resolveAccount(buf, dst)
	if dstAcc == nil {
		m.Reg[7] = uint64(WHO)
		return
	}
	if gas < dstAcc.MinOnTransferGas {
		m.Reg[7] = uint64(LOW)
		return
	}
	if buf.Account.Balance < amount {
		m.Reg[7] = uint64(CASH)
		return
	}

	if !m.Memory.IsReadable(memoPtr, 128) {
		m.Status = pvm.PageFault
		return
	}
	var memo [128]byte
	copy(memo[:], m.Memory.ReadBytes(memoPtr, 128))

	buf.Account.Balance -= amount
	buf.Transfers = append(buf.Transfers, implications.Transfer{
		From:   buf.ServiceID,
		To:     dst,
		Amount: amount,
		Gas:    gas,
		Memo:   memo,
	})
	m.Reg[7] = uint64(OK)
}

// eject removes a parent-authorized child, refusing unless every preimage
// request on the child has reached the expunge-eligible phase (§4.5 EJECT).
func (d *Dispatcher) eject(m *pvm.Machine, buf *implications.Buffer) {
	childID := uint32(m.Reg[7])
	child := d.resolveAccount(buf, childID)
	if child == nil {
		m.Reg[7] = uint64(WHO)
		return
	}
	if child.ParentService != buf.ServiceID {
		m.Reg[7] = uint64(HUH)
		return
	}
	for _, req := range child.PreimageRequests {
		if req.Phase() != jamstate.Reclaimed {
			m.Reg[7] = uint64(HUH)
			return
		}
	}
	buf.Account.Balance += child.Balance
	delete(buf.Siblings, childID)
	buf.Evicted[childID] = struct{}{}
	m.Reg[7] = uint64(OK)
}

func (d *Dispatcher) query(m *pvm.Machine, buf *implications.Buffer) {
	hashPtr := uint32(m.Reg[7])
	length := uint32(m.Reg[8])

	if !m.Memory.IsReadable(hashPtr, common.HashLength) {
		m.Status = pvm.PageFault
		return
	}
	hash := common.BytesToHash(m.Memory.ReadBytes(hashPtr, common.HashLength))
	key := jamstate.PreimageKey{Hash: hash, Length: length}

	req, ok := buf.Account.PreimageRequests[key]
	if !ok {
		m.Reg[7] = uint64(NONE)
		return
	}
	m.Reg[7] = uint64(OK)
	m.Reg[8] = uint64(req.Phase())
	m.Reg[9] = uint64(len(req.Slots))
}

// solicit transitions a request state [] -> [x] or [x,t] -> [x,t,u], per
// §3's legal-transition graph.
func (d *Dispatcher) solicit(m *pvm.Machine, buf *implications.Buffer) {
	hashPtr := uint32(m.Reg[7])
	length := uint32(m.Reg[8])

	if !m.Memory.IsReadable(hashPtr, common.HashLength) {
		m.Status = pvm.PageFault
		return
	}
	hash := common.BytesToHash(m.Memory.ReadBytes(hashPtr, common.HashLength))
	key := jamstate.PreimageKey{Hash: hash, Length: length}

	req, exists := buf.Account.PreimageRequests[key]
	switch {
	case !exists:
		deposit := depositFor(0, 1)
		if buf.Account.Balance < deposit {
			m.Reg[7] = uint64(FULL)
			return
		}
		buf.Account.Balance -= deposit
		buf.Account.PreimageRequests[key] = jamstate.RequestState{Slots: []uint32{d.Slot}}
	case req.Phase() == jamstate.Available:
		req.Slots = append(req.Slots, d.Slot)
		buf.Account.PreimageRequests[key] = req
	default:
		m.Reg[7] = uint64(HUH)
		return
	}
	buf.Account.RecomputeItems()
	m.Reg[7] = uint64(OK)
}

// forget transitions [x] -> [] or [x,t] -> [], removing the preimage bytes
// in the latter case (§3). No cool-down period is checked: an Available
// request is dropped as soon as FORGET is called.
func (d *Dispatcher) forget(m *pvm.Machine, buf *implications.Buffer) {
	hashPtr := uint32(m.Reg[7])
	length := uint32(m.Reg[8])

	if !m.Memory.IsReadable(hashPtr, common.HashLength) {
		m.Status = pvm.PageFault
		return
	}
	hash := common.BytesToHash(m.Memory.ReadBytes(hashPtr, common.HashLength))
	key := jamstate.PreimageKey{Hash: hash, Length: length}

	req, exists := buf.Account.PreimageRequests[key]
	if !exists {
		m.Reg[7] = uint64(NONE)
		return
	}
	switch req.Phase() {
	case jamstate.Requested:
		delete(buf.Account.PreimageRequests, key)
	case jamstate.Available:
		delete(buf.Account.PreimageRequests, key)
		delete(buf.Account.Preimages, hash)
	default:
		m.Reg[7] = uint64(HUH)
		return
	}
	buf.Account.RecomputeItems()
	m.Reg[7] = uint64(OK)
}

// provide supplies a preimage, hashing it with Blake2b-256 and matching it
// against an outstanding request in the Requested phase (§4.5 PROVIDE).
func (d *Dispatcher) provide(m *pvm.Machine, buf *implications.Buffer) {
	ptr, length := uint32(m.Reg[7]), uint32(m.Reg[8])

	if !m.Memory.IsReadable(ptr, length) {
		m.Status = pvm.PageFault
		return
	}
	data := m.Memory.ReadBytes(ptr, length)
	hash := blake2b.Sum256(data)
	hh := common.Hash(hash)

	key := jamstate.PreimageKey{Hash: hh, Length: length}
	req, exists := buf.Account.PreimageRequests[key]
	if !exists || req.Phase() != jamstate.Requested {
		m.Reg[7] = uint64(HUH)
		return
	}
	req.Slots = append(req.Slots, d.Slot)
	buf.Account.PreimageRequests[key] = req
	buf.Account.Preimages[hh] = data
	buf.Account.RecomputeItems()
	m.Reg[7] = uint64(OK)
}

func (d *Dispatcher) yield(m *pvm.Machine, buf *implications.Buffer) {
	ptr := uint32(m.Reg[7])
	if !m.Memory.IsReadable(ptr, common.HashLength) {
		m.Status = pvm.PageFault
		return
	}
	hash := common.BytesToHash(m.Memory.ReadBytes(ptr, common.HashLength))
	buf.Yield = &hash
	m.Reg[7] = uint64(OK)
}

func (d *Dispatcher) log(m *pvm.Machine) {
	ptr, length := uint32(m.Reg[7]), uint32(m.Reg[8])
	if m.Memory.IsReadable(ptr, length) {
		log.Debug("hostcall: guest log", "msg", string(m.Memory.ReadBytes(ptr, length)))
	}
	m.Reg[7] = uint64(OK)
}

// machine, invoke and expunge forward to the Machine's own child-machine
// bookkeeping (pvm/childmachine.go); they exist here only to translate
// between register conventions and that API.
// machine's register budget (r7..r11) cannot fit program location, entry,
// argument location and gas all at once; we drop the argument at creation
// time (the child starts with an empty argument buffer) since INVOKE is the
// call that actually resumes execution.
func (d *Dispatcher) machine(m *pvm.Machine) {
	programPtr := uint32(m.Reg[7])
	programLen := uint32(m.Reg[8])
	entry := pvm.EntryPoint(m.Reg[9])
	gas := int64(m.Reg[10])

	if !m.Memory.IsReadable(programPtr, programLen) {
		m.Status = pvm.PageFault
		return
	}
	program, err := pvm.Decode(m.Memory.ReadBytes(programPtr, programLen))
	if err != nil {
		m.Reg[7] = uint64(HUH)
		return
	}
	id, err := m.CreateChild(program, entry, nil, gas)
	if err != nil {
		m.Reg[7] = uint64(HUH)
		return
	}
	m.Reg[7] = uint64(OK)
	m.Reg[8] = uint64(id)
}

func (d *Dispatcher) invoke(m *pvm.Machine) {
	id := uint32(m.Reg[7])
	status, gas, err := m.InvokeChild(id)
	if err != nil {
		m.Reg[7] = uint64(WHO)
		return
	}
	m.Reg[7] = uint64(OK)
	m.Reg[8] = uint64(status)
	m.Reg[9] = uint64(gas)
}

func (d *Dispatcher) expunge(m *pvm.Machine) {
	id := uint32(m.Reg[7])
	gas, err := m.ExpungeChild(id)
	if err != nil {
		m.Reg[7] = uint64(WHO)
		return
	}
	m.Reg[7] = uint64(OK)
	m.Reg[8] = uint64(gas)
}

// resolveAccount looks up an account by id, preferring the buffer's
// overlay (caller's own account, or a sibling already touched this
// invocation) before falling back to the committed state.
func (d *Dispatcher) resolveAccount(buf *implications.Buffer, id uint32) *jamstate.Account {
	if id == buf.ServiceID {
		return buf.Account
	}
	if acc, ok := buf.Siblings[id]; ok {
		return acc
	}
	base, ok := d.State.Accounts[id]
	if !ok {
		return nil
	}
	return buf.Sibling(id, base)
}

func encodeAccountInfo(a *jamstate.Account) []byte {
	out := make([]byte, 0, common.HashLength+8*6+4*3)
	out = append(out, a.CodeHash.Bytes()...)
	out = appendU64(out, a.Balance)
	out = appendU64(out, uint64(a.MinAccumulateGas))
	out = appendU64(out, uint64(a.MinOnTransferGas))
	out = appendU64(out, a.GratisBudget)
	out = appendU32(out, a.CreationSlot)
	out = appendU32(out, a.ParentService)
	out = appendU64(out, a.StorageOctets)
	out = appendU64(out, a.ItemCount)
	out = appendU64(out, a.MinBalanceThreshold)
	out = appendU32(out, a.LastAccumulateSlot)
	return out
}

func appendU64(b []byte, v uint64) []byte {
	return append(b,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
