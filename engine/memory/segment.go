package memory

import (
	"errors"
	"hash/fnv"
	"strings"
	"sync"
	"time"
)

const shardCount = 64

var errNotInteger = errors.New("memory: existing value is not an integer")

// entry is a slot in the shared segment. Integer values live in num so
// counter operations work on the native representation; everything else is
// an opaque blob.
type entry struct {
	blob  []byte
	num   int64
	isNum bool
	exp   int64 // unix nanos; 0 => no expiry
}

func (e entry) expired(now int64) bool { return e.exp != 0 && now > e.exp }

type shard struct {
	mu sync.RWMutex
	m  map[string]entry
}

// segment is the process-local shared store: fixed shard array, per-shard
// RWMutex. The shard lock is the atomicity primitive for add and the
// counters.
type segment struct {
	shards [shardCount]*shard
}

func newSegment() *segment {
	s := &segment{}
	for i := range s.shards {
		s.shards[i] = &shard{m: make(map[string]entry)}
	}
	return s
}

func (s *segment) shardFor(key string) *shard {
	h := fnv.New32a()
	h.Write([]byte(key))
	return s.shards[h.Sum32()%shardCount]
}

func (s *segment) get(key string) (entry, bool) {
	sh := s.shardFor(key)
	sh.mu.RLock()
	e, ok := sh.m[key]
	sh.mu.RUnlock()
	if !ok {
		return entry{}, false
	}
	if e.expired(time.Now().UnixNano()) {
		// reclaim lazily; re-check under the write lock
		sh.mu.Lock()
		if cur, still := sh.m[key]; still && cur.expired(time.Now().UnixNano()) {
			delete(sh.m, key)
		}
		sh.mu.Unlock()
		return entry{}, false
	}
	return e, true
}

func (s *segment) set(key string, e entry) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	sh.m[key] = e
	sh.mu.Unlock()
}

// add stores e only when key is absent (or expired). Atomic under the
// shard lock.
func (s *segment) add(key string, e entry) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	if cur, ok := sh.m[key]; ok && !cur.expired(time.Now().UnixNano()) {
		return false
	}
	sh.m[key] = e
	return true
}

// incr adds offset to the integer entry at key, counting from zero when
// absent or expired. New entries are stamped with exp; existing entries
// keep their own expiry unless refresh is set. Atomic under the shard lock.
func (s *segment) incr(key string, offset, exp int64, refresh bool) (int64, error) {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.m[key]
	if !ok || e.expired(time.Now().UnixNano()) {
		e = entry{isNum: true, exp: exp}
	}
	if !e.isNum {
		return 0, errNotInteger
	}
	if refresh {
		e.exp = exp
	}
	e.num += offset
	sh.m[key] = e
	return e.num, nil
}

func (s *segment) del(key string) bool {
	sh := s.shardFor(key)
	sh.mu.Lock()
	defer sh.mu.Unlock()
	e, ok := sh.m[key]
	if !ok {
		return false
	}
	delete(sh.m, key)
	return !e.expired(time.Now().UnixNano())
}

// clearPrefix deletes every resident key matching prefix and returns the
// count. This is the prefix-filtered iteration the contract asks for; with
// an empty prefix it degrades to a full enumeration.
func (s *segment) clearPrefix(prefix string) int {
	n := 0
	for _, sh := range s.shards {
		sh.mu.Lock()
		for k := range sh.m {
			if strings.HasPrefix(k, prefix) {
				delete(sh.m, k)
				n++
			}
		}
		sh.mu.Unlock()
	}
	return n
}
