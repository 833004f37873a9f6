package schedule

import (
	"marketchain/types"
	"marketchain/xerrors"
)

// Scheduler drives the near/far witness scheduling algorithm over a
// types.WitnessSchedule value. It holds no state itself beyond its
// far-future IV (FarIV), and the active witness roster is passed to each
// call; all persisted state lives in the WitnessSchedule object
// the caller passes in and mutates in place, so the chain controller can
// journal it through the ordinary undo session like any other object.
type Scheduler struct {
	// FarIV distinguishes the far-future scheduler's RNG stream from the
	// near scheduler's.
	FarIV uint64
}

// New constructs a scheduler with the default far-future IV.
func New() *Scheduler {
	return &Scheduler{FarIV: 0xfa2f7e5eed}
}

// produceSchedule appends one full permutation of active to wso.Tokens,
// shuffled by r, and reports emitTurn=true: every call here completes one
// "turn" through the full witness roster, the signal callers use to roll
// DynamicGlobalProperties.random forward.
func produceSchedule(r *rng, wso *types.WitnessSchedule, active []types.ObjectID) (emitTurn bool) {
	perm := append([]types.ObjectID(nil), active...)
	for i := len(perm) - 1; i > 0; i-- {
		j := r.Intn(i + 1)
		perm[i], perm[j] = perm[j], perm[i]
	}
	wso.Tokens = append(wso.Tokens, perm...)
	return true
}

// Advance runs one block's worth of the scheduling algorithm, consuming scheduleSlot tokens from the front of the near queue and
// topping it back up to len(active) entries. It returns the witness that
// actually produced the block that triggered this advance (the token at
// position 0 before the drain, or types.Null when the queue was empty, as it
// is on the first advance after Seed) and, when a produceSchedule call completed a
// full turn, reports rollSeed=true so the caller can fold
// DynamicGlobalProperties.random forward.
func (s *Scheduler) Advance(wso *types.WitnessSchedule, active []types.ObjectID, scheduleSlot uint32, dgpRandom [32]byte) (producer types.ObjectID, rollSeed bool, err error) {
	if scheduleSlot < 1 {
		return types.ObjectID{}, false, xerrors.New(xerrors.KindConsensus, "schedule.Advance", "", xerrors.ErrMisalignedSlot)
	}
	producer = types.Null
	if len(wso.Tokens) > 0 {
		producer = wso.Tokens[0]
	}

	wso.SlotsSinceGenesis += uint64(scheduleSlot)
	r := newRNG(wso.RNGSeed, wso.SlotsSinceGenesis)

	minTokenCount := len(active) / 2
	if minTokenCount < 1 {
		minTokenCount = 1
	}
	wso.MinTokenCount = uint32(minTokenCount)

	drain := int(scheduleSlot)
	if drain > len(wso.Tokens) {
		drain = len(wso.Tokens)
	}
	wso.Tokens = wso.Tokens[drain:]

	for len(wso.Tokens) < len(active) {
		if produceSchedule(r, wso, active) {
			rollSeed = true
			wso.RNGSeed = foldSeed(dgpRandom, wso.RNGSeed)
		}
	}
	return producer, rollSeed, nil
}

// foldSeed mixes the chain's rolling entropy into the scheduler's seed,
// matching "roll forward the seed from DynamicGlobalProperties.random".
func foldSeed(random [32]byte, seed [32]byte) [32]byte {
	var out [32]byte
	for i := range out {
		out[i] = random[i] ^ seed[i]
	}
	return out
}

// GetScheduledWitness resolves the witness scheduled slotNum slots from the
// current head (1 == next slot). slotNum==0 returns (Null, false).
// It consults the near scheduler first and only falls back to the (slower,
// deterministic) far scheduler for slots beyond the near horizon.
func (s *Scheduler) GetScheduledWitness(wso types.WitnessSchedule, active []types.ObjectID, dgpRandom [32]byte, slotNum uint32) (id types.ObjectID, isNear bool, err error) {
	if slotNum == 0 {
		return types.Null, false, nil
	}
	if int(slotNum) <= len(wso.Tokens) {
		return wso.Tokens[slotNum-1], true, nil
	}
	id, ok := s.farFutureWitness(wso, active, dgpRandom, slotNum)
	if !ok {
		// The far scheduler should never fail for a valid roster; treat a
		// false result as fatal rather than silently reusing the last
		// witness.
		return types.ObjectID{}, false, xerrors.New(xerrors.KindState, "schedule.GetScheduledWitness", "far scheduler returned false", xerrors.ErrIndexCorruption)
	}
	return id, false, nil
}

// farFutureWitness replays the scheduling algorithm, starting from a copy of
// the near scheduler's current state seeded with FarIV, until it has
// produced enough tokens to answer slotNum. It never mutates the caller's
// WitnessSchedule.
func (s *Scheduler) farFutureWitness(wso types.WitnessSchedule, active []types.ObjectID, dgpRandom [32]byte, slotNum uint32) (types.ObjectID, bool) {
	if len(active) == 0 {
		return types.ObjectID{}, false
	}
	copyWSO := types.WitnessSchedule{
		RNGSeed:           farSeed(wso.RNGSeed, s.FarIV),
		Tokens:            append([]types.ObjectID(nil), wso.Tokens...),
		SlotsSinceGenesis: wso.SlotsSinceGenesis,
	}
	r := newRNG(copyWSO.RNGSeed, copyWSO.SlotsSinceGenesis)
	for int(slotNum) > len(copyWSO.Tokens) {
		if produceSchedule(r, &copyWSO, active) {
			copyWSO.RNGSeed = foldSeed(dgpRandom, copyWSO.RNGSeed)
			r = newRNG(copyWSO.RNGSeed, copyWSO.SlotsSinceGenesis)
		}
	}
	return copyWSO.Tokens[slotNum-1], true
}

func farSeed(seed [32]byte, iv uint64) [32]byte {
	var buf [32]byte
	copy(buf[:], seed[:])
	for i := 0; i < 8; i++ {
		buf[i] ^= byte(iv >> (8 * i))
	}
	return buf
}

// Seed initializes a brand-new WitnessSchedule at genesis: an empty token
// queue that Advance will immediately top up on the first block.
func Seed(rngSeed [32]byte) types.WitnessSchedule {
	return types.WitnessSchedule{RNGSeed: rngSeed}
}
