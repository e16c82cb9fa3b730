package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/seekwell/llmgw/utils/heap"
)

// New field costs: bool=1 intX=X/8 (e.g., int16=2) string=16 []byte=24 ptr=8
// key (16) + value (24) + expiry (8) + lastReadAt (8) + readCount (8) +
// Map/GC overhead (64) = 128
const entryOverhead = 128

// If any fields are changed, update entryOverhead.
type memoryEntry struct {
	key string

	value []byte

	// Expiry time in unix nanoseconds.
	expiry int64

	// Last read time in unix nanoseconds.
	lastReadAt int64

	// Number of times the entry has been read. Starts from 1.
	readCount int64
}

// MemoryStore is an in-process Store with a byte budget. When the budget is
// exceeded, the least frequently used and oldest entries are evicted first.
type MemoryStore struct {
	mu       sync.Mutex
	entries  map[string]*memoryEntry
	lfuHeap  *heap.MinHeap[*memoryEntry]
	maxBytes int64
	usage    int64

	// Clock interface for time-related operations. Must use this to avoid
	// flakiness in tests.
	clock clock.Clock
}

func NewMemoryStore(maxBytes int64) (*MemoryStore, func()) {
	return newMemoryStoreWithClock(maxBytes, clock.New())
}

func newMemoryStoreWithClock(maxBytes int64, clk clock.Clock) (*MemoryStore, func()) {
	s := &MemoryStore{
		entries:  make(map[string]*memoryEntry),
		maxBytes: maxBytes,
		clock:    clk,
	}

	// Less frequently used entries, and older entries, are at the top.
	s.lfuHeap = heap.NewMinHeap(func(a *memoryEntry, b *memoryEntry) bool {
		if a.readCount != b.readCount {
			return a.readCount < b.readCount
		}
		if a.lastReadAt != b.lastReadAt {
			return a.lastReadAt < b.lastReadAt
		}
		return a.key < b.key
	})

	stop := s.startCleanup(5 * time.Minute)
	return s, stop
}

func (s *MemoryStore) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sizeToAdd := entrySize(key, value)
	exceeding := s.usage + sizeToAdd - s.maxBytes
	if exceeding > 0 {
		if err := s.evict(exceeding); err != nil {
			return fmt.Errorf("failed to evict cache: %w", err)
		}
	}

	now := s.clock.Now().UnixNano()
	entry := &memoryEntry{
		key:        key,
		value:      value,
		expiry:     now + ttl.Nanoseconds(),
		lastReadAt: now,
		readCount:  1,
	}

	if existing, exists := s.entries[key]; exists {
		s.lfuHeap.Remove(existing)
		s.usage -= entrySize(existing.key, existing.value)
	}

	s.entries[key] = entry
	s.lfuHeap.Push(entry)
	s.usage += sizeToAdd
	return nil
}

func (s *MemoryStore) Get(ctx context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	entry, exists := s.entries[key]
	if !exists {
		return nil, nil
	}

	now := s.clock.Now().UnixNano()
	entry.lastReadAt = now
	entry.readCount++

	if entry.expiry <= now {
		s.delete(entry)
		// Still returns the value; there is no point in withholding a
		// response we already have.
	} else {
		s.lfuHeap.Update(entry)
	}

	return entry.value, nil
}

func (s *MemoryStore) delete(entry *memoryEntry) {
	delete(s.entries, entry.key)
	s.lfuHeap.Remove(entry)
	s.usage -= entrySize(entry.key, entry.value)
}

func (s *MemoryStore) evict(sizeInBytes int64) error {
	bytesFreed := int64(0)
	for bytesFreed < sizeInBytes {
		entry, ok := s.lfuHeap.Pop()
		if !ok {
			return fmt.Errorf("failed to free enough cache space")
		}
		bytesFreed += entrySize(entry.key, entry.value)
		delete(s.entries, entry.key)
	}
	s.usage -= bytesFreed
	return nil
}

func entrySize(key string, value []byte) int64 {
	return entryOverhead + int64(len(key)+len(value))
}

func (s *MemoryStore) cleanup() {
	now := s.clock.Now().UnixNano()

	s.mu.Lock()
	defer s.mu.Unlock()

	var expired []*memoryEntry
	for _, entry := range s.entries {
		if entry.expiry <= now {
			expired = append(expired, entry)
		}
	}
	for _, entry := range expired {
		s.delete(entry)
	}
}

func (s *MemoryStore) startCleanup(interval time.Duration) func() {
	ticker := s.clock.Ticker(interval)
	done := make(chan bool)

	go func() {
		for {
			select {
			case <-ticker.C:
				s.cleanup()
			case <-done:
				ticker.Stop()
				return
			}
		}
	}()

	return func() {
		close(done)
	}
}
