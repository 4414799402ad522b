package store

import "errors"

// ErrClosed is returned by operations on a store after Close.
var ErrClosed = errors.New("store: closed")

// Pair is a single key/value entry returned by range scans.
type Pair struct {
    Key   string `json:"key"`
    Value string `json:"value"`
}

// Store is an ordered key-value store as seen by a single cluster node.
// Keys are compared bytewise; every scan returns keys in that order.
type Store interface {
    // Get returns the value for key and whether it was present.
    Get(key string) (string, bool, error)
    Set(key, value string) error
    // Delete removes key and reports whether it existed.
    Delete(key string) (bool, error)
    // Forward returns up to count pairs with key >= start, ascending.
    Forward(start string, count int) ([]Pair, error)
    // Backward returns up to count pairs with key <= end, descending.
    Backward(end string, count int) ([]Pair, error)
    // Prefix returns every key sharing prefix, ascending. An empty prefix
    // lists all keys.
    Prefix(prefix string) ([]string, error)
    // Page returns the num-th (1-indexed) slice of size keys together with
    // the total number of keys.
    Page(size, num int) ([]string, int, error)
    // Compact reclaims space held by deleted entries.
    Compact() error
    Close() error
}

func pageBounds(size, num, total int) (int, int) {
    if size <= 0 || num <= 0 { return 0, 0 }
    start := (num - 1) * size
    if start >= total { return total, total }
    end := start + size
    if end > total { end = total }
    return start, end
}
