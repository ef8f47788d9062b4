package core

import (
	"container/list"
	"fmt"

	"ContractLedger/internal/observability"
)

// IdempotencyChecker implements two-tier instruction deduplication: an
// in-memory LRU in front of a Postgres lookup.
type IdempotencyChecker struct {
	lru       *idempotencyLRU
	dbChecker DBIdempotencyChecker
	metrics   *observability.Metrics
}

// DBIdempotencyChecker is the interface for the Postgres dedup lookup.
type DBIdempotencyChecker interface {
	IsDuplicate(instructionType string, idempotencyKey string) (bool, error)
}

func NewIdempotencyChecker(capacity int, dbChecker DBIdempotencyChecker, metrics *observability.Metrics) *IdempotencyChecker {
	return &IdempotencyChecker{
		lru:       newIdempotencyLRU(capacity),
		dbChecker: dbChecker,
		metrics:   metrics,
	}
}

// IsDuplicate checks whether the instruction has already been applied.
func (ic *IdempotencyChecker) IsDuplicate(instructionType string, idempotencyKey string) bool {
	compositeKey := fmt.Sprintf("%s:%s", instructionType, idempotencyKey)

	if ic.lru.contains(compositeKey) {
		if ic.metrics != nil {
			ic.metrics.IdempotencyDuplicates.WithLabelValues(instructionType, "lru").Inc()
		}
		return true
	}

	if ic.dbChecker != nil {
		isDup, err := ic.dbChecker.IsDuplicate(instructionType, idempotencyKey)
		if err != nil {
			// Conservative on lookup failure: assume not duplicate so a DB
			// issue cannot stall the stream.
			return false
		}
		if isDup {
			if ic.metrics != nil {
				ic.metrics.IdempotencyDuplicates.WithLabelValues(instructionType, "postgres").Inc()
			}
			ic.lru.add(compositeKey)
			return true
		}
	}

	return false
}

// MarkProcessed records the key after successful application.
func (ic *IdempotencyChecker) MarkProcessed(instructionType string, idempotencyKey string) {
	ic.lru.add(fmt.Sprintf("%s:%s", instructionType, idempotencyKey))
}

// WarmFromKeys preloads recent composite keys, avoiding cold-path DB lookups
// right after a restart.
func (ic *IdempotencyChecker) WarmFromKeys(keys []string) {
	for _, key := range keys {
		ic.lru.add(key)
	}
}

// Keys returns every cached composite key, for snapshots.
func (ic *IdempotencyChecker) Keys() []string {
	return ic.lru.keys()
}

// idempotencyLRU is not thread-safe; it is only touched by the
// single-threaded settlement core.
type idempotencyLRU struct {
	capacity int
	cache    map[string]*list.Element
	lruList  *list.List
}

type lruEntry struct {
	key string
}

func newIdempotencyLRU(capacity int) *idempotencyLRU {
	return &idempotencyLRU{
		capacity: capacity,
		cache:    make(map[string]*list.Element, capacity),
		lruList:  list.New(),
	}
}

func (lru *idempotencyLRU) contains(key string) bool {
	elem, exists := lru.cache[key]
	if exists {
		lru.lruList.MoveToFront(elem)
		return true
	}
	return false
}

func (lru *idempotencyLRU) add(key string) {
	if elem, exists := lru.cache[key]; exists {
		lru.lruList.MoveToFront(elem)
		return
	}

	elem := lru.lruList.PushFront(&lruEntry{key: key})
	lru.cache[key] = elem

	if lru.lruList.Len() > lru.capacity {
		oldest := lru.lruList.Back()
		if oldest != nil {
			lru.lruList.Remove(oldest)
			delete(lru.cache, oldest.Value.(*lruEntry).key)
		}
	}
}

func (lru *idempotencyLRU) keys() []string {
	out := make([]string, 0, lru.lruList.Len())
	for elem := lru.lruList.Front(); elem != nil; elem = elem.Next() {
		out = append(out, elem.Value.(*lruEntry).key)
	}
	return out
}
