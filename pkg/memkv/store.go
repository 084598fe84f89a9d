package memkv

import (
	"container/heap"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

type Options struct {
	Shards int // default 32
	// MaxBytes caps the total size of stored values; 0 means no limit.
	MaxBytes uint64
}

func (o Options) withDefaults() Options {
	if o.Shards <= 0 {
		o.Shards = 32
	}
	return o
}

type Store struct {
	opts      Options
	shards    []shard
	expq      *expQueue
	closeCh   chan struct{}
	wake      chan struct{}
	closeOnce sync.Once
	wg        sync.WaitGroup

	nowFn    func() time.Time
	itemPool sync.Pool

	mKeys    atomic.Uint64
	mBytes   atomic.Uint64
	mSets    atomic.Uint64
	mGets    atomic.Uint64
	mHits    atomic.Uint64
	mMisses  atomic.Uint64
	mDels    atomic.Uint64
	mExpired atomic.Uint64
	mUpdates atomic.Uint64
}

type shard struct {
	mu sync.RWMutex
	m  map[string]*entry
}

type entry struct {
	val      []byte
	expireAt int64 // unix nano; 0 = no expiry
}

func (e *entry) expired(now int64) bool { return e.expireAt != 0 && e.expireAt <= now }

func New(opts Options) *Store {
	opts = opts.withDefaults()
	s := &Store{
		opts:     opts,
		shards:   make([]shard, opts.Shards),
		expq:     &expQueue{},
		closeCh:  make(chan struct{}),
		wake:     make(chan struct{}, 1),
		nowFn:    time.Now,
		itemPool: sync.Pool{New: func() any { return &expItem{} }},
	}
	for i := range s.shards {
		s.shards[i].m = make(map[string]*entry)
	}
	s.expq.cond = sync.NewCond(&s.expq.mu)
	heap.Init(s.expq)
	s.wg.Add(1)
	go s.expirer()
	return s
}

// Close stops the expirer. It is idempotent.
func (s *Store) Close() {
	s.closeOnce.Do(func() {
		close(s.closeCh)
		s.expq.mu.Lock()
		s.expq.cond.Broadcast()
		s.expq.mu.Unlock()
		s.wg.Wait()
	})
}

func (s *Store) shardFor(key string) *shard {
	// FNV-1a 64
	var h uint64 = 1469598103934665603
	for i := 0; i < len(key); i++ {
		h ^= uint64(key[i])
		h *= 1099511628211
	}
	return &s.shards[int(h%uint64(len(s.shards)))]
}

func clone(b []byte) []byte {
	out := make([]byte, len(b))
	copy(out, b)
	return out
}

func (s *Store) deadline(ttl time.Duration) int64 {
	if ttl <= 0 {
		return 0
	}
	return s.nowFn().Add(ttl).UnixNano()
}

// tryAddBytes reserves delta bytes; false when MaxBytes would be exceeded.
func (s *Store) tryAddBytes(delta uint64) bool {
	if s.opts.MaxBytes == 0 {
		s.mBytes.Add(delta)
		return true
	}
	for {
		cur := s.mBytes.Load()
		next := cur + delta
		if next > s.opts.MaxBytes {
			return false
		}
		if s.mBytes.CompareAndSwap(cur, next) {
			return true
		}
	}
}

func (s *Store) subBytes(n int) {
	if n <= 0 {
		return
	}
	for {
		cur := s.mBytes.Load()
		next := uint64(0)
		if uint64(n) < cur {
			next = cur - uint64(n)
		}
		if s.mBytes.CompareAndSwap(cur, next) {
			return
		}
	}
}

// dropLocked removes key from sh; the caller holds sh.mu.
func (s *Store) dropLocked(sh *shard, key string, e *entry, expired bool) {
	delete(sh.m, key)
	s.mKeys.Add(^uint64(0))
	s.subBytes(len(e.val))
	if expired {
		s.mExpired.Add(1)
	} else {
		s.mDels.Add(1)
	}
}

// Set stores val under key. ttl <= 0 keeps it until deleted. It returns true
// when the key was created, false when it was overwritten or rejected by
// MaxBytes.
func (s *Store) Set(key string, val []byte, ttl time.Duration) bool {
	created, _ := s.put(key, clone(val), ttl)
	return created
}

func (s *Store) put(key string, v []byte, ttl time.Duration) (created, stored bool) {
	expAt := s.deadline(ttl)
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	prev, existed := sh.m[key]
	if existed && prev.expired(s.nowFn().UnixNano()) {
		s.dropLocked(sh, key, prev, true)
		existed = false
	}
	oldLen := 0
	if existed {
		oldLen = len(prev.val)
	}
	delta := len(v) - oldLen
	if delta > 0 && !s.tryAddBytes(uint64(delta)) {
		return false, false
	}
	if delta < 0 {
		s.subBytes(-delta)
	}
	sh.m[key] = &entry{val: v, expireAt: expAt}
	if !existed {
		s.mKeys.Add(1)
	}
	s.mSets.Add(1)
	if expAt != 0 {
		s.enqueueExpire(key, expAt)
	}
	return !existed, true
}

// Get returns a copy of the value stored under key.
func (s *Store) Get(key string) ([]byte, bool) {
	s.mGets.Add(1)
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	var val []byte
	expired := ok && e.expired(s.nowFn().UnixNano())
	if ok && !expired {
		val = clone(e.val)
	}
	sh.mu.RUnlock()
	if !ok || expired {
		if expired {
			s.reap(key)
		}
		s.mMisses.Add(1)
		return nil, false
	}
	s.mHits.Add(1)
	return val, true
}

// reap lazily removes key if it is still expired.
func (s *Store) reap(key string) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	if e, ok := sh.m[key]; ok && e.expired(s.nowFn().UnixNano()) {
		s.dropLocked(sh, key, e, true)
	}
	sh.mu.Unlock()
}

// Update replaces the value of an existing, unexpired key with fn(old).
// The TTL is left unchanged.
func (s *Store) Update(key string, fn func(old []byte) []byte) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.m[key]
	if !ok {
		return false
	}
	if e.expired(s.nowFn().UnixNano()) {
		s.dropLocked(sh, key, e, true)
		return false
	}
	nv := clone(fn(clone(e.val)))
	delta := len(nv) - len(e.val)
	if delta > 0 && !s.tryAddBytes(uint64(delta)) {
		return false
	}
	if delta < 0 {
		s.subBytes(-delta)
	}
	e.val = nv
	s.mUpdates.Add(1)
	return true
}

// Upsert atomically computes the new value of key from its current one
// (exists reports whether there was one) and stores it with a fresh ttl.
// It returns whether the key was created and whether the write happened.
func (s *Store) Upsert(key string, ttl time.Duration, fn func(old []byte, exists bool) []byte) (created, stored bool) {
	expAt := s.deadline(ttl)
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, existed := sh.m[key]
	if existed && e.expired(s.nowFn().UnixNano()) {
		s.dropLocked(sh, key, e, true)
		existed = false
	}
	var old []byte
	if existed {
		old = clone(e.val)
	}
	nv := clone(fn(old, existed))
	delta := len(nv) - len(old)
	if delta > 0 && !s.tryAddBytes(uint64(delta)) {
		return false, false
	}
	if delta < 0 {
		s.subBytes(-delta)
	}
	if existed {
		e.val, e.expireAt = nv, expAt
		s.mUpdates.Add(1)
	} else {
		sh.m[key] = &entry{val: nv, expireAt: expAt}
		s.mKeys.Add(1)
		s.mSets.Add(1)
	}
	if expAt != 0 {
		s.enqueueExpire(key, expAt)
	}
	return !existed, true
}

func (s *Store) Delete(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.m[key]
	if ok {
		s.dropLocked(sh, key, e, false)
	}
	return ok
}

// Expire sets a new TTL on key; ttl <= 0 deletes it. It returns false when
// the key does not exist.
func (s *Store) Expire(key string, ttl time.Duration) bool {
	if ttl <= 0 {
		return s.Delete(key)
	}
	exp := s.deadline(ttl)
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.m[key]
	if !ok {
		return false
	}
	if e.expired(s.nowFn().UnixNano()) {
		s.dropLocked(sh, key, e, true)
		return false
	}
	e.expireAt = exp
	s.enqueueExpire(key, exp)
	return true
}

// TTL returns the remaining lifetime of key. A key without expiry reports
// 0 and true.
func (s *Store) TTL(key string) (time.Duration, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	var exp int64
	if ok {
		exp = e.expireAt
	}
	sh.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if exp == 0 {
		return 0, true
	}
	now := s.nowFn().UnixNano()
	if exp <= now {
		s.reap(key)
		return 0, false
	}
	return time.Duration(exp - now), true
}

// Range calls fn for every live key with the given prefix, in key order,
// until fn returns false. Values are copies.
func (s *Store) Range(prefix string, fn func(key string, val []byte) bool) {
	type kv struct {
		k string
		v []byte
	}
	now := s.nowFn().UnixNano()
	var items []kv
	for i := range s.shards {
		sh := &s.shards[i]
		sh.mu.RLock()
		for k, e := range sh.m {
			if strings.HasPrefix(k, prefix) && !e.expired(now) {
				items = append(items, kv{k, clone(e.val)})
			}
		}
		sh.mu.RUnlock()
	}
	sort.Slice(items, func(i, j int) bool { return items[i].k < items[j].k })
	for _, it := range items {
		if !fn(it.k, it.v) {
			return
		}
	}
}

// Stats is a point-in-time snapshot of store counters.
type Stats struct {
	Keys    uint64
	Bytes   uint64
	Sets    uint64
	Gets    uint64
	Hits    uint64
	Misses  uint64
	Dels    uint64
	Expired uint64
	Updates uint64
}

func (s *Store) Metrics() Stats {
	return Stats{
		Keys:    s.mKeys.Load(),
		Bytes:   s.mBytes.Load(),
		Sets:    s.mSets.Load(),
		Gets:    s.mGets.Load(),
		Hits:    s.mHits.Load(),
		Misses:  s.mMisses.Load(),
		Dels:    s.mDels.Load(),
		Expired: s.mExpired.Load(),
		Updates: s.mUpdates.Load(),
	}
}

type expItem struct {
	when int64
	key  string
}

// expQueue is a min-heap of deadlines guarded by mu.
type expQueue struct {
	mu    sync.Mutex
	cond  *sync.Cond
	items []*expItem
}

func (q *expQueue) Len() int           { return len(q.items) }
func (q *expQueue) Less(i, j int) bool { return q.items[i].when < q.items[j].when }
func (q *expQueue) Swap(i, j int)      { q.items[i], q.items[j] = q.items[j], q.items[i] }
func (q *expQueue) Push(x any)         { q.items = append(q.items, x.(*expItem)) }
func (q *expQueue) Pop() any {
	n := len(q.items)
	it := q.items[n-1]
	q.items[n-1] = nil
	q.items = q.items[:n-1]
	return it
}

func (s *Store) enqueueExpire(key string, when int64) {
	it := s.itemPool.Get().(*expItem)
	it.key, it.when = key, when
	s.expq.mu.Lock()
	heap.Push(s.expq, it)
	s.expq.cond.Broadcast()
	s.expq.mu.Unlock()
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

func (s *Store) expirer() {
	defer s.wg.Done()
	for {
		s.expq.mu.Lock()
		for s.expq.Len() == 0 {
			if s.isClosed() {
				s.expq.mu.Unlock()
				return
			}
			s.expq.cond.Wait()
		}
		if s.isClosed() {
			s.expq.mu.Unlock()
			return
		}
		it := s.expq.items[0]
		now := s.nowFn().UnixNano()
		if it.when > now {
			s.expq.mu.Unlock()
			timer := time.NewTimer(time.Duration(it.when - now))
			select {
			case <-timer.C:
			case <-s.wake:
				timer.Stop()
			case <-s.closeCh:
				timer.Stop()
				return
			}
			continue
		}
		heap.Pop(s.expq)
		s.expq.mu.Unlock()

		// the key may have been rewritten with a later deadline since
		s.reap(it.key)

		it.key, it.when = "", 0
		s.itemPool.Put(it)
	}
}

func (s *Store) isClosed() bool {
	select {
	case <-s.closeCh:
		return true
	default:
		return false
	}
}
