package cache

import (
	"github.com/hashicorp/golang-lru/v2/expirable"
)

type memoryEntry struct {
	tag   string
	value []byte
}

// Memory is a Store kept in a bounded in-process LRU, it forgets everything
// when the process exits.
type Memory struct {
	lru *expirable.LRU[string, memoryEntry]
}

// NewMemory creates a Memory holding at most `size` entries, entries never expire.
func NewMemory(size int) *Memory {
	return &Memory{
		lru: expirable.NewLRU[string, memoryEntry](size, nil, 0),
	}
}

func (m *Memory) Get(key string) ([]byte, error) {
	entry, ok := m.lru.Get(key)
	if !ok {
		return nil, ErrNotFound
	}
	return append([]byte(nil), entry.value...), nil
}

func (m *Memory) Set(key, tag string, value []byte) error {
	m.lru.Add(key, memoryEntry{
		tag:   tag,
		value: append([]byte(nil), value...),
	})
	return nil
}

func (m *Memory) Evict(tag string) (int, error) {
	evicted := 0
	for _, key := range m.lru.Keys() {
		entry, ok := m.lru.Peek(key)
		if ok && entry.tag == tag {
			m.lru.Remove(key)
			evicted++
		}
	}
	return evicted, nil
}
