package store

import (
    "strings"
    "sync"

    "github.com/google/btree"
)

const memoryDegree = 32

type entry struct {
    key   string
    value string
}

func (e entry) Less(than btree.Item) bool { return e.key < than.(entry).key }

// Memory is an in-memory Store backed by a B-tree.
type Memory struct {
    mu     sync.RWMutex
    tree   *btree.BTree
    closed bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory { return &Memory{tree: btree.New(memoryDegree)} }

func (m *Memory) Get(key string) (string, bool, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if m.closed { return "", false, ErrClosed }
    it := m.tree.Get(entry{key: key})
    if it == nil { return "", false, nil }
    return it.(entry).value, true, nil
}

func (m *Memory) Set(key, value string) error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.closed { return ErrClosed }
    m.tree.ReplaceOrInsert(entry{key: key, value: value})
    return nil
}

func (m *Memory) Delete(key string) (bool, error) {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.closed { return false, ErrClosed }
    return m.tree.Delete(entry{key: key}) != nil, nil
}

func (m *Memory) Forward(start string, count int) ([]Pair, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if m.closed { return nil, ErrClosed }
    out := make([]Pair, 0)
    if count <= 0 { return out, nil }
    m.tree.AscendGreaterOrEqual(entry{key: start}, func(i btree.Item) bool {
        e := i.(entry)
        out = append(out, Pair{Key: e.key, Value: e.value})
        return len(out) < count
    })
    return out, nil
}

func (m *Memory) Backward(end string, count int) ([]Pair, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if m.closed { return nil, ErrClosed }
    out := make([]Pair, 0)
    if count <= 0 { return out, nil }
    m.tree.DescendLessOrEqual(entry{key: end}, func(i btree.Item) bool {
        e := i.(entry)
        out = append(out, Pair{Key: e.key, Value: e.value})
        return len(out) < count
    })
    return out, nil
}

func (m *Memory) Prefix(prefix string) ([]string, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if m.closed { return nil, ErrClosed }
    out := make([]string, 0)
    m.tree.AscendGreaterOrEqual(entry{key: prefix}, func(i btree.Item) bool {
        k := i.(entry).key
        if !strings.HasPrefix(k, prefix) { return false }
        out = append(out, k)
        return true
    })
    return out, nil
}

func (m *Memory) Page(size, num int) ([]string, int, error) {
    m.mu.RLock()
    defer m.mu.RUnlock()
    if m.closed { return nil, 0, ErrClosed }
    total := m.tree.Len()
    start, end := pageBounds(size, num, total)
    out := make([]string, 0, end-start)
    idx := 0
    m.tree.Ascend(func(i btree.Item) bool {
        if idx >= end { return false }
        if idx >= start { out = append(out, i.(entry).key) }
        idx++
        return true
    })
    return out, total, nil
}

// Compact rebuilds the tree so nodes emptied by deletes are released.
func (m *Memory) Compact() error {
    m.mu.Lock()
    defer m.mu.Unlock()
    if m.closed { return ErrClosed }
    fresh := btree.New(memoryDegree)
    m.tree.Ascend(func(i btree.Item) bool {
        fresh.ReplaceOrInsert(i)
        return true
    })
    m.tree = fresh
    return nil
}

func (m *Memory) Close() error {
    m.mu.Lock()
    m.closed = true
    m.mu.Unlock()
    return nil
}

var _ Store = (*Memory)(nil)
