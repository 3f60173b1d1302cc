package pool

import (
	"container/list"
	"time"
)

// affinityCapacity bounds the number of fingerprint->credential stickiness
// entries the pool will remember at once.
const affinityCapacity = 1000

// affinityIdleTTL expires an entry that has not been touched by an Acquire
// in this long, so a client that stops sending traffic eventually frees
// its pinned credential back to the general rotation.
const affinityIdleTTL = time.Hour

type affinityEntry struct {
	fingerprint uint64
	token       string
	touchedAt   time.Time
}

// affinityCache is a bounded LRU mapping a request fingerprint to the
// credential token it was last dispatched to, used to keep a
// conversation pinned to the same upstream account across turns. It is
// advisory: callers fall back to round-robin whenever a lookup misses or
// the pinned credential has left the active set.
type affinityCache struct {
	capacity int
	ttl      time.Duration
	ll       *list.List
	index    map[uint64]*list.Element
}

// newAffinityCache builds a cache bounded to capacity entries, evicting
// whichever entry has gone idle longest than ttl.
func newAffinityCache(capacity int, ttl time.Duration) *affinityCache {
	return &affinityCache{
		capacity: capacity,
		ttl:      ttl,
		ll:       list.New(),
		index:    make(map[uint64]*list.Element),
	}
}

// get returns the token pinned to fingerprint, if any entry still exists
// and has not gone idle. A hit refreshes the entry's LRU position.
func (a *affinityCache) get(fingerprint uint64, now time.Time) (string, bool) {
	el, ok := a.index[fingerprint]
	if !ok {
		return "", false
	}
	entry := el.Value.(*affinityEntry)
	if now.Sub(entry.touchedAt) > a.ttl {
		a.ll.Remove(el)
		delete(a.index, fingerprint)
		return "", false
	}
	entry.touchedAt = now
	a.ll.MoveToFront(el)
	return entry.token, true
}

// put pins fingerprint to token, evicting the least-recently-used entry
// if the cache is at capacity.
func (a *affinityCache) put(fingerprint uint64, token string, now time.Time) {
	if el, ok := a.index[fingerprint]; ok {
		entry := el.Value.(*affinityEntry)
		entry.token = token
		entry.touchedAt = now
		a.ll.MoveToFront(el)
		return
	}
	if a.ll.Len() >= a.capacity {
		back := a.ll.Back()
		if back != nil {
			old := back.Value.(*affinityEntry)
			delete(a.index, old.fingerprint)
			a.ll.Remove(back)
		}
	}
	el := a.ll.PushFront(&affinityEntry{fingerprint: fingerprint, token: token, touchedAt: now})
	a.index[fingerprint] = el
}

func (a *affinityCache) len() int {
	return a.ll.Len()
}
