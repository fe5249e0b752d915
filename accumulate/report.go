// Package accumulate implements the Accumulate state-transition function
// (§4.7): it schedules work reports, loads service code into the PVM,
// dispatches guest invocations with the calling convention of §4.4,
// collects implications and commits them to the global state.
package accumulate

import (
	"errors"

	"github.com/ethereum/go-ethereum/common"
)

// ErrNoSuchService is returned by Invoke when the work result's target
// service id is absent from state; the STF treats this as "skip", not a
// structural failure (§4.7 step 1).
var ErrNoSuchService = errors.New("accumulate: no such service")

// WorkResult is one unit of guest work bundled inside a report: a service
// id, the code hash the refine stage observed, a payload hash, an
// accumulate gas budget, and either an ok(bytes) or err(code) outcome
// (§4.7 Input).
type WorkResult struct {
	ServiceID      uint32
	CodeHash       common.Hash
	PackageHash    common.Hash
	SegmentRoot    common.Hash
	AuthorizerHash common.Hash
	PayloadHash    common.Hash
	AccumulateGas  int64
	AuthTrace      []byte
	Output         []byte

	// Failed marks an err(code) refine outcome; when true, accumulate is
	// skipped for this result regardless of Output (§4.7 step 3).
	Failed bool
}

// Report bundles one or more work results sharing scheduling metadata: the
// slot it targets and the package hashes it depends on (§4.7 "Ready queue
// and accumulated queue").
type Report struct {
	Slot         uint32
	PackageHash  common.Hash
	Dependencies []common.Hash
	Results      []WorkResult
}

// encodeArgument builds the little-endian accumulate argument buffer per
// §4.4: timeslot ‖ service_id ‖ work_result_count ‖ encoded_work_results,
// each encoded result being package hash ‖ segment root ‖ authorizer hash
// ‖ payload hash ‖ accumulate gas (u64) ‖ length-prefixed auth trace ‖
// length-prefixed output.
func encodeArgument(slot, serviceID uint32, results []WorkResult) []byte {
	buf := make([]byte, 0, 64+64*len(results))
	buf = appendU32(buf, slot)
	buf = appendU32(buf, serviceID)
	buf = appendU32(buf, uint32(len(results)))
	for _, r := range results {
		buf = append(buf, r.PackageHash.Bytes()...)
		buf = append(buf, r.SegmentRoot.Bytes()...)
		buf = append(buf, r.AuthorizerHash.Bytes()...)
		buf = append(buf, r.PayloadHash.Bytes()...)
		buf = appendU64(buf, uint64(r.AccumulateGas))
		buf = appendU32(buf, uint32(len(r.AuthTrace)))
		buf = append(buf, r.AuthTrace...)
		buf = appendU32(buf, uint32(len(r.Output)))
		buf = append(buf, r.Output...)
	}
	return buf
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}

func appendU64(b []byte, v uint64) []byte {
	return append(b,
		byte(v), byte(v>>8), byte(v>>16), byte(v>>24),
		byte(v>>32), byte(v>>40), byte(v>>48), byte(v>>56))
}
