package schedule

import (
	"testing"

	"github.com/stretchr/testify/require"

	"marketchain/types"
)

func witnessID(n uint64) types.ObjectID {
	return types.ObjectID{Space: types.SpaceProtocol, Type: types.TypeWitness, Instance: n}
}

func activeSet(n int) []types.ObjectID {
	out := make([]types.ObjectID, n)
	for i := range out {
		out[i] = witnessID(uint64(i))
	}
	return out
}

func TestSlotTimeRoundTrips(t *testing.T) {
	params := types.ChainParameters{BlockIntervalSeconds: 3}
	dgp := types.DynamicGlobalProperties{HeadBlockNumber: 100, HeadBlockTime: 1_700_000_000}
	for s := uint32(1); s < 50; s++ {
		tm := GetSlotTime(params, dgp, s)
		require.Equal(t, s, GetSlotAtTime(params, dgp, tm), "slot %d", s)
	}
}

func TestSlotAtTimeBeforeFirstSlotIsZero(t *testing.T) {
	params := types.ChainParameters{BlockIntervalSeconds: 3}
	dgp := types.DynamicGlobalProperties{HeadBlockNumber: 1, HeadBlockTime: 1000}
	require.Equal(t, uint32(0), GetSlotAtTime(params, dgp, 500))
}

func TestSchedulerAdvanceIsDeterministic(t *testing.T) {
	active := activeSet(5)
	wso1 := Seed([32]byte{1, 2, 3})
	wso2 := Seed([32]byte{1, 2, 3})
	s := New()

	for i := uint32(1); i <= 10; i++ {
		p1, _, err := s.Advance(&wso1, active, i, [32]byte{9})
		require.NoError(t, err)
		p2, _, err := s.Advance(&wso2, active, i, [32]byte{9})
		require.NoError(t, err)
		require.Equal(t, p1, p2)
	}
}

func TestGetScheduledWitnessNearAndFarAgree(t *testing.T) {
	active := activeSet(5)
	wso := Seed([32]byte{4, 5, 6})
	s := New()
	_, _, err := s.Advance(&wso, active, 1, [32]byte{7})
	require.NoError(t, err)

	// A slot within the already-produced near horizon.
	near, isNear, err := s.GetScheduledWitness(wso, active, [32]byte{7}, 1)
	require.NoError(t, err)
	require.True(t, isNear)
	require.Equal(t, wso.Tokens[0], near)

	// A slot far beyond the near horizon must still resolve deterministically.
	far1, isNear, err := s.GetScheduledWitness(wso, active, [32]byte{7}, 500)
	require.NoError(t, err)
	require.False(t, isNear)
	far2, _, err := s.GetScheduledWitness(wso, active, [32]byte{7}, 500)
	require.NoError(t, err)
	require.Equal(t, far1, far2)
}

func TestGetScheduledWitnessSlotZero(t *testing.T) {
	s := New()
	id, isNear, err := s.GetScheduledWitness(types.WitnessSchedule{}, activeSet(3), [32]byte{}, 0)
	require.NoError(t, err)
	require.False(t, isNear)
	require.Equal(t, types.Null, id)
}
