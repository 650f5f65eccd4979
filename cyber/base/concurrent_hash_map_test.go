package base

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentHashMapBasicOps(t *testing.T) {
	m := NewConcurrentHashMap[uint64, string]()

	require.False(t, m.Has(1))
	_, ok := m.Get(1)
	require.False(t, ok)

	m.Set(1, "one")
	require.True(t, m.Has(1))
	v, ok := m.Get(1)
	require.True(t, ok)
	assert.Equal(t, "one", v)

	// Overwrite keeps a single entry.
	m.Set(1, "uno")
	v, _ = m.Get(1)
	assert.Equal(t, "uno", v)

	m.Erase(1)
	require.False(t, m.Has(1))

	// Erasing a missing key is a no-op.
	m.Erase(42)
}

func TestConcurrentHashMapBucketing(t *testing.T) {
	const size = 8
	m := NewConcurrentHashMapSize[uint64, int](size)

	// Keys size apart collide into the same bucket and must coexist.
	for k := uint64(0); k < 4*size; k++ {
		m.Set(k, int(k))
	}
	for k := uint64(0); k < 4*size; k++ {
		v, ok := m.Get(k)
		require.True(t, ok, "key %d", k)
		assert.Equal(t, int(k), v)
	}
	assert.Same(t, &m.table[3], m.bucket(3))
	assert.Same(t, &m.table[3], m.bucket(3+size))
}

func TestConcurrentHashMapRejectsNonPowerOfTwo(t *testing.T) {
	require.Panics(t, func() { NewConcurrentHashMapSize[int, int](100) })
	require.Panics(t, func() { NewConcurrentHashMapSize[int, int](0) })
	require.NotPanics(t, func() { NewConcurrentHashMapSize[int, int](1) })
}

func TestConcurrentHashMapStress(t *testing.T) {
	if testing.Short() {
		t.Skip("stress test")
	}
	const (
		writers       = 8
		keysPerWriter = 12500 // 100000 keys total, disjoint per writer
	)
	m := NewConcurrentHashMapSize[uint64, int](128)

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			base := uint64(w) * keysPerWriter
			for i := uint64(0); i < keysPerWriter; i++ {
				m.Set(base+i, int(base+i))
			}
		}(w)
	}

	stop := make(chan struct{})
	var readers sync.WaitGroup
	for r := 0; r < 8; r++ {
		readers.Add(1)
		go func() {
			defer readers.Done()
			for {
				select {
				case <-stop:
					return
				default:
				}
				for k := uint64(0); k < writers*keysPerWriter; k += 997 {
					if v, ok := m.Get(k); ok && v != int(k) {
						t.Errorf("key %d read stale value %d", k, v)
						return
					}
				}
			}
		}()
	}

	wg.Wait()
	close(stop)
	readers.Wait()

	for k := uint64(0); k < writers*keysPerWriter; k++ {
		v, ok := m.Get(k)
		require.True(t, ok, "key %d missing after writers finished", k)
		require.Equal(t, int(k), v)
	}
}
