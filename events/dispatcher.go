// Package events implements the subscription dispatcher: after
// each applied block, per-object and per-market callbacks registered by
// external collaborators (the RPC layer, in this core's case a stand-in
// caller) are invoked with the committed block's diff set. Invocation runs
// on a bounded worker pool so a slow or misbehaving subscriber cannot block
// the chain controller's apply path. The core makes no ordering guarantees
// between subscribers, but all of block N's notifications are enqueued
// before any of block N+1's.
package events

import (
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"marketchain/objectdb"
	"marketchain/types"
)

// ObjectChange is delivered to a per-object subscriber once per block in
// which its object changed. Value is nil and Removed is true when the
// object no longer exists after the block.
type ObjectChange struct {
	BlockNumber uint32
	ID          types.ObjectID
	Value       any
	Removed     bool
}

// ObjectCallback receives one ObjectChange per subscribed id per block.
type ObjectCallback func(ObjectChange)

// MarketKey identifies an order book by its two asset ids, normalized so a
// subscription to (A,B) also matches touches recorded as (B,A).
type MarketKey struct {
	A, B types.ObjectID
}

func marketKey(a, b types.ObjectID) MarketKey {
	if b.Less(a) {
		a, b = b, a
	}
	return MarketKey{A: a, B: b}
}

// MarketCallback receives the ordered list of operations that touched a
// subscribed market within one block.
type MarketCallback func(blockNumber uint32, touches []types.MarketTouch)

// job is one enqueued notification batch for a single applied block.
// Queueing whole jobs (rather than individual callback invocations) through
// a single ordered channel is what gives the "block N enqueued before block
// N+1" guarantee: a new job is only enqueued once the previous block finished
// applying. With one worker, job N is also fully delivered before job N+1
// starts; with several workers, different jobs can be delivered
// concurrently.
type job struct {
	blockNumber uint32
	changed     []types.ObjectID
	markets     []types.MarketTouch
}

// Dispatcher is the concrete subscription dispatcher. It satisfies
// chain.EventSink's Publish method structurally (no import of chain is
// needed, and chain declares EventSink itself rather than importing events,
// so neither package imports the other).
type Dispatcher struct {
	db  *objectdb.Database
	log *slog.Logger

	mu          sync.RWMutex
	objectSubs  map[types.ObjectID]map[string]ObjectCallback
	marketSubs  map[MarketKey]map[string]MarketCallback

	queue chan job
	wg    sync.WaitGroup

	closeOnce sync.Once
	done      chan struct{}
}

// New constructs a Dispatcher reading current object values from db, with
// workers worker goroutines draining the notification queue. workers
// defaults to 1 if non-positive (still async, still off the apply path, just
// single-threaded delivery).
func New(db *objectdb.Database, workers int, log *slog.Logger) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	if log == nil {
		log = slog.Default()
	}
	d := &Dispatcher{
		db:         db,
		log:        log,
		objectSubs: make(map[types.ObjectID]map[string]ObjectCallback),
		marketSubs: make(map[MarketKey]map[string]MarketCallback),
		queue:      make(chan job, 256),
		done:       make(chan struct{}),
	}
	for i := 0; i < workers; i++ {
		d.wg.Add(1)
		go d.worker()
	}
	return d
}

// SubscribeToObject registers cb for changes to id, returning a handle that
// UnsubscribeFromObject accepts.
func (d *Dispatcher) SubscribeToObject(id types.ObjectID, cb ObjectCallback) string {
	handle := uuid.NewString()
	d.mu.Lock()
	defer d.mu.Unlock()
	subs, ok := d.objectSubs[id]
	if !ok {
		subs = make(map[string]ObjectCallback)
		d.objectSubs[id] = subs
	}
	subs[handle] = cb
	return handle
}

// UnsubscribeFromObject removes a subscription created by SubscribeToObject.
func (d *Dispatcher) UnsubscribeFromObject(id types.ObjectID, handle string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if subs, ok := d.objectSubs[id]; ok {
		delete(subs, handle)
		if len(subs) == 0 {
			delete(d.objectSubs, id)
		}
	}
}

// SubscribeToMarket registers cb for operations touching the (a,b) order
// book, returning a handle that UnsubscribeFromMarket accepts.
func (d *Dispatcher) SubscribeToMarket(a, b types.ObjectID, cb MarketCallback) string {
	handle := uuid.NewString()
	key := marketKey(a, b)
	d.mu.Lock()
	defer d.mu.Unlock()
	subs, ok := d.marketSubs[key]
	if !ok {
		subs = make(map[string]MarketCallback)
		d.marketSubs[key] = subs
	}
	subs[handle] = cb
	return handle
}

// UnsubscribeFromMarket removes a subscription created by SubscribeToMarket.
func (d *Dispatcher) UnsubscribeFromMarket(a, b types.ObjectID, handle string) {
	key := marketKey(a, b)
	d.mu.Lock()
	defer d.mu.Unlock()
	if subs, ok := d.marketSubs[key]; ok {
		delete(subs, handle)
		if len(subs) == 0 {
			delete(d.marketSubs, key)
		}
	}
}

// Publish enqueues the diff set of a just-committed block for asynchronous
// delivery. It never blocks the chain controller on subscriber execution;
// it can briefly block on the queue itself filling up, which only happens if
// delivery is badly backlogged, a condition worth the caller observing
// rather than silently dropping blocks' worth of notifications.
func (d *Dispatcher) Publish(blockNumber uint32, changed []types.ObjectID, markets []types.MarketTouch) {
	select {
	case <-d.done:
		return
	default:
	}
	d.queue <- job{blockNumber: blockNumber, changed: changed, markets: markets}
}

// Close stops accepting new jobs and waits for queued work to drain.
func (d *Dispatcher) Close() {
	d.closeOnce.Do(func() {
		close(d.done)
		close(d.queue)
	})
	d.wg.Wait()
}

func (d *Dispatcher) worker() {
	defer d.wg.Done()
	for j := range d.queue {
		d.deliver(j)
	}
}

func (d *Dispatcher) deliver(j job) {
	for _, id := range j.changed {
		d.deliverObject(j.blockNumber, id)
	}
	if len(j.markets) == 0 {
		return
	}
	byMarket := make(map[MarketKey][]types.MarketTouch)
	order := make([]MarketKey, 0, 4)
	for _, touch := range j.markets {
		key := marketKey(touch.A, touch.B)
		if _, seen := byMarket[key]; !seen {
			order = append(order, key)
		}
		byMarket[key] = append(byMarket[key], touch)
	}
	for _, key := range order {
		d.deliverMarket(j.blockNumber, key, byMarket[key])
	}
}

func (d *Dispatcher) deliverObject(blockNumber uint32, id types.ObjectID) {
	d.mu.RLock()
	subs := d.objectSubs[id]
	cbs := make([]string, 0, len(subs))
	for handle := range subs {
		cbs = append(cbs, handle)
	}
	callbacks := make(map[string]ObjectCallback, len(subs))
	for handle, cb := range subs {
		callbacks[handle] = cb
	}
	d.mu.RUnlock()
	if len(callbacks) == 0 {
		return
	}
	value, ok := d.db.CurrentValue(id)
	change := ObjectChange{BlockNumber: blockNumber, ID: id, Value: value, Removed: !ok}
	for _, handle := range cbs {
		d.invokeObject(id, handle, callbacks[handle], change)
	}
}

func (d *Dispatcher) deliverMarket(blockNumber uint32, key MarketKey, touches []types.MarketTouch) {
	d.mu.RLock()
	subs := d.marketSubs[key]
	handles := make([]string, 0, len(subs))
	callbacks := make(map[string]MarketCallback, len(subs))
	for handle, cb := range subs {
		handles = append(handles, handle)
		callbacks[handle] = cb
	}
	d.mu.RUnlock()
	for _, handle := range handles {
		d.invokeMarket(key, handle, callbacks[handle], blockNumber, touches)
	}
}

// invokeObject runs cb and unregisters it if it panics; a misbehaving
// observer must never take the process down or wedge delivery.
func (d *Dispatcher) invokeObject(id types.ObjectID, handle string, cb ObjectCallback, change ObjectChange) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn("object subscriber panicked, unsubscribing", "object_id", id.String(), "panic", r)
			d.UnsubscribeFromObject(id, handle)
		}
	}()
	cb(change)
}

func (d *Dispatcher) invokeMarket(key MarketKey, handle string, cb MarketCallback, blockNumber uint32, touches []types.MarketTouch) {
	defer func() {
		if r := recover(); r != nil {
			d.log.Warn("market subscriber panicked, unsubscribing", "market_a", key.A.String(), "market_b", key.B.String(), "panic", r)
			d.UnsubscribeFromMarket(key.A, key.B, handle)
		}
	}()
	cb(blockNumber, touches)
}
