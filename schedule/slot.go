package schedule

import "marketchain/types"

// GetSlotTime returns the timestamp of slot n relative to the current head:
// floor(head_time/interval)*interval + n*interval, or head_time + n*interval
// while the head is genesis. Slot 0 is therefore head_time rounded down to
// the interval (head_time itself at genesis); callers use it only as the
// "no slot" sentinel.
func GetSlotTime(params types.ChainParameters, dgp types.DynamicGlobalProperties, n uint32) int64 {
	interval := int64(params.BlockIntervalSeconds)
	if interval <= 0 {
		return dgp.HeadBlockTime
	}
	if dgp.HeadBlockNumber == 0 {
		// Genesis: slots are counted from the head time directly, there is
		// no "previous interval boundary" to floor against yet.
		return dgp.HeadBlockTime + int64(n)*interval
	}
	base := (dgp.HeadBlockTime / interval) * interval
	return base + int64(n)*interval
}

// GetSlotAtTime inverts GetSlotTime: the largest n such that
// GetSlotTime(n) <= t, or 0 if t is before slot 1's time.
func GetSlotAtTime(params types.ChainParameters, dgp types.DynamicGlobalProperties, t int64) uint32 {
	first := GetSlotTime(params, dgp, 1)
	if t < first {
		return 0
	}
	interval := int64(params.BlockIntervalSeconds)
	if interval <= 0 {
		return 0
	}
	return uint32((t-first)/interval) + 1
}
