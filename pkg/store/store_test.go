package store

import (
    "os"
    "path/filepath"
    "testing"

    "github.com/stretchr/testify/assert"
    "github.com/stretchr/testify/require"
)

func seed(t *testing.T, s Store, keys ...string) {
    t.Helper()
    for _, k := range keys {
        require.NoError(t, s.Set(k, "v-"+k))
    }
}

func keysOf(pairs []Pair) []string {
    out := make([]string, 0, len(pairs))
    for _, p := range pairs { out = append(out, p.Key) }
    return out
}

func runStoreSuite(t *testing.T, open func(t *testing.T) Store) {
    t.Run("get set delete", func(t *testing.T) {
        s := open(t)
        _, ok, err := s.Get("missing")
        require.NoError(t, err)
        assert.False(t, ok)

        require.NoError(t, s.Set("a", "1"))
        require.NoError(t, s.Set("a", "2"))
        v, ok, err := s.Get("a")
        require.NoError(t, err)
        assert.True(t, ok)
        assert.Equal(t, "2", v)

        existed, err := s.Delete("a")
        require.NoError(t, err)
        assert.True(t, existed)
        existed, err = s.Delete("a")
        require.NoError(t, err)
        assert.False(t, existed)
    })

    t.Run("forward and backward", func(t *testing.T) {
        s := open(t)
        seed(t, s, "k1", "k3", "k5", "k7", "k9")

        fwd, err := s.Forward("k5", 3)
        require.NoError(t, err)
        assert.Equal(t, []string{"k5", "k7", "k9"}, keysOf(fwd))
        assert.Equal(t, "v-k5", fwd[0].Value)

        fwd, err = s.Forward("k4", 10)
        require.NoError(t, err)
        assert.Equal(t, []string{"k5", "k7", "k9"}, keysOf(fwd))

        back, err := s.Backward("k5", 3)
        require.NoError(t, err)
        assert.Equal(t, []string{"k5", "k3", "k1"}, keysOf(back))

        back, err = s.Backward("k6", 2)
        require.NoError(t, err)
        assert.Equal(t, []string{"k5", "k3"}, keysOf(back))

        back, err = s.Backward("z", 1)
        require.NoError(t, err)
        assert.Equal(t, []string{"k9"}, keysOf(back))

        back, err = s.Backward("a", 5)
        require.NoError(t, err)
        assert.Empty(t, back)
    })

    t.Run("prefix", func(t *testing.T) {
        s := open(t)
        seed(t, s, "app", "apple", "apply", "b", "a b", "a bc")

        got, err := s.Prefix("app")
        require.NoError(t, err)
        assert.Equal(t, []string{"app", "apple", "apply"}, got)

        got, err = s.Prefix("a b")
        require.NoError(t, err)
        assert.Equal(t, []string{"a b", "a bc"}, got)

        all, err := s.Prefix("")
        require.NoError(t, err)
        assert.Len(t, all, 6)
    })

    t.Run("page", func(t *testing.T) {
        s := open(t)
        seed(t, s, "e", "a", "d", "b", "c")

        keys, total, err := s.Page(2, 2)
        require.NoError(t, err)
        assert.Equal(t, 5, total)
        assert.Equal(t, []string{"c", "d"}, keys)

        keys, _, err = s.Page(2, 3)
        require.NoError(t, err)
        assert.Equal(t, []string{"e"}, keys)

        keys, _, err = s.Page(2, 9)
        require.NoError(t, err)
        assert.Empty(t, keys)
    })

    t.Run("compact keeps live entries", func(t *testing.T) {
        s := open(t)
        seed(t, s, "x", "y", "z")
        _, err := s.Delete("y")
        require.NoError(t, err)
        require.NoError(t, s.Compact())
        all, err := s.Prefix("")
        require.NoError(t, err)
        assert.Equal(t, []string{"x", "z"}, all)
    })

    t.Run("closed", func(t *testing.T) {
        s := open(t)
        require.NoError(t, s.Close())
        _, _, err := s.Get("a")
        assert.ErrorIs(t, err, ErrClosed)
    })
}

func TestMemoryStore(t *testing.T) {
    runStoreSuite(t, func(t *testing.T) Store { return NewMemory() })
}

func TestBoltStore(t *testing.T) {
    runStoreSuite(t, func(t *testing.T) Store {
        s, err := OpenBolt(filepath.Join(t.TempDir(), "node.db"))
        require.NoError(t, err)
        t.Cleanup(func() { _ = s.Close() })
        return s
    })
}

func TestBoltStorePersists(t *testing.T) {
    path := filepath.Join(t.TempDir(), "node.db")
    s, err := OpenBolt(path)
    require.NoError(t, err)
    require.NoError(t, s.Set("k", "v"))
    require.NoError(t, s.Close())

    s, err = OpenBolt(path)
    require.NoError(t, err)
    defer s.Close()
    v, ok, err := s.Get("k")
    require.NoError(t, err)
    assert.True(t, ok)
    assert.Equal(t, "v", v)
}

func TestBoltCompactSwapFailureKeepsServing(t *testing.T) {
    path := filepath.Join(t.TempDir(), "node.db")
    s, err := OpenBolt(path)
    require.NoError(t, err)
    defer s.Close()
    seed(t, s, "a", "b")

    renameFile = func(string, string) error { return os.ErrPermission }
    t.Cleanup(func() { renameFile = os.Rename })

    err = s.Compact()
    require.ErrorIs(t, err, os.ErrPermission)
    assert.NoFileExists(t, path+".compact")

    v, ok, err := s.Get("a")
    require.NoError(t, err)
    assert.True(t, ok)
    assert.Equal(t, "v-a", v)
    require.NoError(t, s.Set("c", "v-c"))

    renameFile = os.Rename
    require.NoError(t, s.Compact())
    keys, err := s.Prefix("")
    require.NoError(t, err)
    assert.Equal(t, []string{"a", "b", "c"}, keys)
}
