package replacement

import (
	"container/list"
	"hash/fnv"
	"sync"
	"time"

	"github.com/cuemby/tierstore/pkg/tstypes"
)

// shardCount mirrors pkg/placement's sharding factor so contention
// characteristics stay consistent across the two structures a hot-path
// put/get touches.
const shardCount = 256

// node is the value stored in a shard's ordering list(s).
type node struct {
	key       string
	touchedAt time.Time
	count     uint64
}

type shard struct {
	mu sync.Mutex

	// elems and order back LRU and LFU: order.Front is most recently
	// touched, order.Back is the eviction candidate.
	elems map[string]*list.Element
	order *list.List

	// t1/t2 back ARC: t1 holds keys touched once, t2 holds keys
	// touched at least twice (the frequency set). A key lives in
	// exactly one of elems/t1Elems or t2Elems at a time.
	t1      *list.List
	t2      *list.List
	t1Elems map[string]*list.Element
	t2Elems map[string]*list.Element
}

func newShard() *shard {
	return &shard{
		elems:   make(map[string]*list.Element),
		order:   list.New(),
		t1:      list.New(),
		t2:      list.New(),
		t1Elems: make(map[string]*list.Element),
		t2Elems: make(map[string]*list.Element),
	}
}

// Index is a single tier's replacement index.
type Index struct {
	policy tstypes.ReplacementPolicy
	shards [shardCount]*shard
}

// New returns an empty Index enforcing policy.
func New(policy tstypes.ReplacementPolicy) *Index {
	idx := &Index{policy: policy}
	for i := range idx.shards {
		idx.shards[i] = newShard()
	}
	return idx
}

func (idx *Index) shardFor(key string) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(key))
	return idx.shards[h.Sum32()%shardCount]
}

// Touch records an access to key, updating its position per policy.
func (idx *Index) Touch(key string) {
	s := idx.shardFor(key)
	now := time.Now()

	s.mu.Lock()
	defer s.mu.Unlock()

	switch idx.policy {
	case tstypes.PolicyARC:
		touchARC(s, key, now)
	default: // LRU, LFU
		touchOrdered(s, key, now)
	}
}

func touchOrdered(s *shard, key string, now time.Time) {
	if el, ok := s.elems[key]; ok {
		n := el.Value.(*node)
		n.touchedAt = now
		n.count++
		s.order.MoveToFront(el)
		return
	}
	n := &node{key: key, touchedAt: now, count: 1}
	s.elems[key] = s.order.PushFront(n)
}

func touchARC(s *shard, key string, now time.Time) {
	if el, ok := s.t2Elems[key]; ok {
		n := el.Value.(*node)
		n.touchedAt = now
		n.count++
		s.t2.MoveToFront(el)
		return
	}
	if el, ok := s.t1Elems[key]; ok {
		// Second touch promotes from the recency set to the
		// frequency set.
		n := el.Value.(*node)
		n.touchedAt = now
		n.count++
		s.t1.Remove(el)
		delete(s.t1Elems, key)
		s.t2Elems[key] = s.t2.PushFront(n)
		return
	}
	n := &node{key: key, touchedAt: now, count: 1}
	s.t1Elems[key] = s.t1.PushFront(n)
}

// Remove drops key from the index, typically after it has migrated or
// been deleted from the tier.
func (idx *Index) Remove(key string) {
	s := idx.shardFor(key)

	s.mu.Lock()
	defer s.mu.Unlock()

	if el, ok := s.elems[key]; ok {
		s.order.Remove(el)
		delete(s.elems, key)
	}
	if el, ok := s.t1Elems[key]; ok {
		s.t1.Remove(el)
		delete(s.t1Elems, key)
	}
	if el, ok := s.t2Elems[key]; ok {
		s.t2.Remove(el)
		delete(s.t2Elems, key)
	}
}

// Victim returns the key the policy would evict next, without
// removing it from the index. Callers remove it via Remove only once
// the eviction (or migration) has actually committed.
func (idx *Index) Victim() (string, bool) {
	var best *node

	for _, s := range idx.shards {
		s.mu.Lock()
		cand := idx.peekLocked(s)
		s.mu.Unlock()

		if cand == nil {
			continue
		}
		if best == nil || idx.less(cand, best) {
			best = cand
		}
	}

	if best == nil {
		return "", false
	}
	return best.key, true
}

// VictimExcept is like Victim but skips any key for which exclude
// returns true, so a caller can ask "who would you evict if key X were
// off the table" without having to remove X from the index first. The
// coordinator uses this to keep pinned and in-flight-read keys out of
// eviction consideration.
func (idx *Index) VictimExcept(exclude func(string) bool) (string, bool) {
	var best *node

	for _, s := range idx.shards {
		s.mu.Lock()
		cand := idx.peekExceptLocked(s, exclude)
		s.mu.Unlock()

		if cand == nil {
			continue
		}
		if best == nil || idx.less(cand, best) {
			best = cand
		}
	}

	if best == nil {
		return "", false
	}
	return best.key, true
}

func (idx *Index) peekExceptLocked(s *shard, exclude func(string) bool) *node {
	switch idx.policy {
	case tstypes.PolicyLFU:
		var min *node
		for k, el := range s.elems {
			if exclude(k) {
				continue
			}
			n := el.Value.(*node)
			if min == nil || n.count < min.count {
				min = n
			}
		}
		return min
	case tstypes.PolicyARC:
		for e := s.t1.Back(); e != nil; e = e.Prev() {
			n := e.Value.(*node)
			if !exclude(n.key) {
				return n
			}
		}
		for e := s.t2.Back(); e != nil; e = e.Prev() {
			n := e.Value.(*node)
			if !exclude(n.key) {
				return n
			}
		}
		return nil
	default: // LRU
		for e := s.order.Back(); e != nil; e = e.Prev() {
			n := e.Value.(*node)
			if !exclude(n.key) {
				return n
			}
		}
		return nil
	}
}

func (idx *Index) peekLocked(s *shard) *node {
	switch idx.policy {
	case tstypes.PolicyLFU:
		var min *node
		for _, el := range s.elems {
			n := el.Value.(*node)
			if min == nil || n.count < min.count {
				min = n
			}
		}
		return min
	case tstypes.PolicyARC:
		if s.t1.Len() > 0 {
			return s.t1.Back().Value.(*node)
		}
		if s.t2.Len() > 0 {
			return s.t2.Back().Value.(*node)
		}
		return nil
	default: // LRU
		if s.order.Len() == 0 {
			return nil
		}
		return s.order.Back().Value.(*node)
	}
}

func (idx *Index) less(a, b *node) bool {
	if idx.policy == tstypes.PolicyLFU {
		if a.count != b.count {
			return a.count < b.count
		}
		return a.touchedAt.Before(b.touchedAt)
	}
	return a.touchedAt.Before(b.touchedAt)
}

// Len reports the number of keys currently tracked.
func (idx *Index) Len() int {
	n := 0
	for _, s := range idx.shards {
		s.mu.Lock()
		n += len(s.elems) + len(s.t1Elems) + len(s.t2Elems)
		s.mu.Unlock()
	}
	return n
}
