package store

import (
    "bytes"
    "errors"
    "fmt"
    "os"
    "sync"
    "time"

    "go.etcd.io/bbolt"
)

var kvBucket = []byte("kv")

// Bolt is a persistent Store backed by a single bbolt file. Reads and writes
// rely on bbolt transactions; the mutex only guards swapping the handle
// during Compact.
type Bolt struct {
    mu   sync.RWMutex
    db   *bbolt.DB
    path string
}

// OpenBolt opens (or creates) the database at path.
func OpenBolt(path string) (*Bolt, error) {
    db, err := openBoltDB(path)
    if err != nil { return nil, err }
    return &Bolt{db: db, path: path}, nil
}

func openBoltDB(path string) (*bbolt.DB, error) {
    db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
    if err != nil { return nil, fmt.Errorf("store: open %s: %w", path, err) }
    err = db.Update(func(tx *bbolt.Tx) error {
        _, err := tx.CreateBucketIfNotExists(kvBucket)
        return err
    })
    if err != nil {
        db.Close()
        return nil, fmt.Errorf("store: init bucket: %w", err)
    }
    return db, nil
}

func (b *Bolt) view(fn func(bk *bbolt.Bucket) error) error {
    b.mu.RLock()
    defer b.mu.RUnlock()
    if b.db == nil { return ErrClosed }
    return b.db.View(func(tx *bbolt.Tx) error { return fn(tx.Bucket(kvBucket)) })
}

func (b *Bolt) update(fn func(bk *bbolt.Bucket) error) error {
    b.mu.RLock()
    defer b.mu.RUnlock()
    if b.db == nil { return ErrClosed }
    return b.db.Update(func(tx *bbolt.Tx) error { return fn(tx.Bucket(kvBucket)) })
}

func (b *Bolt) Get(key string) (string, bool, error) {
    var (
        val   string
        found bool
    )
    err := b.view(func(bk *bbolt.Bucket) error {
        if v := bk.Get([]byte(key)); v != nil {
            val, found = string(v), true
        }
        return nil
    })
    return val, found, err
}

func (b *Bolt) Set(key, value string) error {
    return b.update(func(bk *bbolt.Bucket) error { return bk.Put([]byte(key), []byte(value)) })
}

func (b *Bolt) Delete(key string) (bool, error) {
    var existed bool
    err := b.update(func(bk *bbolt.Bucket) error {
        if bk.Get([]byte(key)) == nil { return nil }
        existed = true
        return bk.Delete([]byte(key))
    })
    return existed, err
}

func (b *Bolt) Forward(start string, count int) ([]Pair, error) {
    out := make([]Pair, 0)
    if count <= 0 { return out, nil }
    err := b.view(func(bk *bbolt.Bucket) error {
        c := bk.Cursor()
        for k, v := c.Seek([]byte(start)); k != nil && len(out) < count; k, v = c.Next() {
            out = append(out, Pair{Key: string(k), Value: string(v)})
        }
        return nil
    })
    return out, err
}

func (b *Bolt) Backward(end string, count int) ([]Pair, error) {
    out := make([]Pair, 0)
    if count <= 0 { return out, nil }
    err := b.view(func(bk *bbolt.Bucket) error {
        c := bk.Cursor()
        k, v := c.Seek([]byte(end))
        switch {
        case k == nil:
            k, v = c.Last()
        case !bytes.Equal(k, []byte(end)):
            k, v = c.Prev()
        }
        for ; k != nil && len(out) < count; k, v = c.Prev() {
            out = append(out, Pair{Key: string(k), Value: string(v)})
        }
        return nil
    })
    return out, err
}

func (b *Bolt) Prefix(prefix string) ([]string, error) {
    out := make([]string, 0)
    p := []byte(prefix)
    err := b.view(func(bk *bbolt.Bucket) error {
        c := bk.Cursor()
        for k, _ := c.Seek(p); k != nil && bytes.HasPrefix(k, p); k, _ = c.Next() {
            out = append(out, string(k))
        }
        return nil
    })
    return out, err
}

func (b *Bolt) Page(size, num int) ([]string, int, error) {
    var (
        out   []string
        total int
    )
    err := b.view(func(bk *bbolt.Bucket) error {
        total = bk.Stats().KeyN
        start, end := pageBounds(size, num, total)
        out = make([]string, 0, end-start)
        idx := 0
        c := bk.Cursor()
        for k, _ := c.First(); k != nil && idx < end; k, _ = c.Next() {
            if idx >= start { out = append(out, string(k)) }
            idx++
        }
        return nil
    })
    return out, total, err
}

// Compact copies live entries into a fresh file and swaps it in place of the
// current one.
func (b *Bolt) Compact() error {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.db == nil { return ErrClosed }
    tmp := b.path + ".compact"
    _ = os.Remove(tmp)
    dst, err := bbolt.Open(tmp, 0o600, &bbolt.Options{Timeout: time.Second})
    if err != nil { return fmt.Errorf("store: compact open: %w", err) }
    if err := bbolt.Compact(dst, b.db, 0); err != nil {
        dst.Close()
        _ = os.Remove(tmp)
        return fmt.Errorf("store: compact: %w", err)
    }
    if err := dst.Close(); err != nil { return err }
    if err := b.db.Close(); err != nil {
        _ = os.Remove(tmp)
        return err
    }
    b.db = nil
    if err := renameFile(tmp, b.path); err != nil {
        _ = os.Remove(tmp)
        // The original file is untouched; keep serving it.
        db, oerr := openBoltDB(b.path)
        if oerr != nil { return errors.Join(fmt.Errorf("store: compact swap: %w", err), oerr) }
        b.db = db
        return fmt.Errorf("store: compact swap: %w", err)
    }
    db, err := openBoltDB(b.path)
    if err != nil { return err }
    b.db = db
    return nil
}

var renameFile = os.Rename

func (b *Bolt) Close() error {
    b.mu.Lock()
    defer b.mu.Unlock()
    if b.db == nil { return nil }
    err := b.db.Close()
    b.db = nil
    return err
}

var _ Store = (*Bolt)(nil)
