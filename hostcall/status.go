// Package hostcall implements the 23 host calls a guest reaches through
// ecalli (§4.5): gas accounting, memory-bounds validation, and the mutation
// of an implications.Buffer.
package hostcall

// Status is the discriminated result code a host call writes to r7 (§4.5,
// §9 "host-call return via discriminated status"). The sentinels sit near
// 2^64-2^32 so they can never collide with a valid data value returned
// through the same register.
type Status uint64

const sentinelBase uint64 = ^uint64(0) - (1 << 32) + 1

const (
	OK Status = 0

	NONE Status = Status(sentinelBase) + iota
	WHO
	HUH
	FULL
	CORE
	CASH
	LOW
	HIGH
	OOG
)

func (s Status) String() string {
	switch s {
	case OK:
		return "OK"
	case NONE:
		return "NONE"
	case WHO:
		return "WHO"
	case HUH:
		return "HUH"
	case FULL:
		return "FULL"
	case CORE:
		return "CORE"
	case CASH:
		return "CASH"
	case LOW:
		return "LOW"
	case HIGH:
		return "HIGH"
	case OOG:
		return "OOG"
	default:
		return "UNKNOWN"
	}
}
