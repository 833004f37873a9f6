package events

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"marketchain/objectdb"
	"marketchain/types"
)

func newTestDB(t *testing.T) (*objectdb.Database, types.ObjectID) {
	t.Helper()
	db := objectdb.NewDatabase(10)
	id, _ := objectdb.Create(db, db.Accounts, func(id types.ObjectID, a *types.Account) { a.Name = "alice" })
	return db, id
}

func TestObjectSubscriptionReceivesChangeThenRemoval(t *testing.T) {
	db, acctID := newTestDB(t)
	d := New(db, 1, nil)
	defer d.Close()

	var mu sync.Mutex
	var seen []ObjectChange
	done := make(chan struct{}, 2)
	d.SubscribeToObject(acctID, func(c ObjectChange) {
		mu.Lock()
		seen = append(seen, c)
		mu.Unlock()
		done <- struct{}{}
	})

	objectdb.Modify(db, db.Accounts, acctID, func(a *types.Account) { a.Name = "alice2" })
	d.Publish(1, []types.ObjectID{acctID}, nil)
	waitOrFail(t, done)

	objectdb.Remove(db, db.Accounts, acctID)
	d.Publish(2, []types.ObjectID{acctID}, nil)
	waitOrFail(t, done)

	mu.Lock()
	defer mu.Unlock()
	require.Len(t, seen, 2)
	require.False(t, seen[0].Removed)
	require.Equal(t, "alice2", seen[0].Value.(types.Account).Name)
	require.True(t, seen[1].Removed)
	require.Nil(t, seen[1].Value)
}

func TestMarketSubscriptionNormalizesKeyOrder(t *testing.T) {
	db, _ := newTestDB(t)
	d := New(db, 1, nil)
	defer d.Close()

	core := types.ObjectID{Space: types.SpaceProtocol, Type: types.TypeAsset, Instance: 0}
	bit := types.ObjectID{Space: types.SpaceProtocol, Type: types.TypeAsset, Instance: 1}

	received := make(chan []types.MarketTouch, 1)
	// Subscribe with the pair reversed relative to how the touch is recorded.
	d.SubscribeToMarket(bit, core, func(blockNumber uint32, touches []types.MarketTouch) {
		received <- touches
	})

	op := types.LimitOrderCreateOp{ForSale: types.Amount{AssetID: core}, MinToReceive: types.Amount{AssetID: bit}}
	d.Publish(1, nil, []types.MarketTouch{{A: core, B: bit, Op: op}})

	select {
	case touches := <-received:
		require.Len(t, touches, 1)
	case <-time.After(time.Second):
		t.Fatal("market callback never fired")
	}
}

func TestPanickingSubscriberIsUnregistered(t *testing.T) {
	db, acctID := newTestDB(t)
	d := New(db, 1, nil)
	defer d.Close()

	calls := make(chan struct{}, 2)
	handle := d.SubscribeToObject(acctID, func(ObjectChange) {
		calls <- struct{}{}
		panic("boom")
	})
	_ = handle

	d.Publish(1, []types.ObjectID{acctID}, nil)
	waitOrFail(t, calls)

	d.mu.RLock()
	_, stillSubscribed := d.objectSubs[acctID]
	d.mu.RUnlock()
	require.False(t, stillSubscribed, "panicking callback should have been unsubscribed")

	// A second publish must not re-invoke the unregistered callback.
	d.Publish(2, []types.ObjectID{acctID}, nil)
	select {
	case <-calls:
		t.Fatal("unregistered callback fired again")
	case <-time.After(100 * time.Millisecond):
	}
}

func waitOrFail(t *testing.T, ch <-chan struct{}) {
	t.Helper()
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for async delivery")
	}
}
