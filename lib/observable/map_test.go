package observable

import (
	"bytes"
	"errors"
	"fmt"
	"runtime"
	"sync"
	"testing"

	"github.com/ValentinKolb/dMap/lib/index"
	"github.com/ValentinKolb/dMap/lib/listener"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recorder struct {
	mu     sync.Mutex
	events []*listener.MapEvent[string, string]
	err    error
}

func (r *recorder) OnEvent(evt *listener.MapEvent[string, string]) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	// load the deferred old value while the event is active
	evt.OldValue()
	r.events = append(r.events, evt)
	return r.err
}

func (r *recorder) snapshot() []*listener.MapEvent[string, string] {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]*listener.MapEvent[string, string](nil), r.events...)
}

func newMap(t *testing.T, opts ...Option) *Map[string, string] {
	t.Helper()
	m := New[string, string](append([]Option{WithName("test")}, opts...)...)
	t.Cleanup(func() { _ = m.Close() })
	return m
}

func identity() index.Extractor[string, string] {
	return index.Identity[string, string]()
}

func TestMap_BasicOperations(t *testing.T) {
	m := newMap(t)

	_, existed, err := m.Put("a", "1")
	require.NoError(t, err)
	assert.False(t, existed)

	prev, existed, err := m.Put("a", "2")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "1", prev)

	actual, loaded, err := m.PutIfAbsent("a", "3")
	require.NoError(t, err)
	assert.True(t, loaded)
	assert.Equal(t, "2", actual)

	actual, loaded, err = m.PutIfAbsent("b", "3")
	require.NoError(t, err)
	assert.False(t, loaded)
	assert.Equal(t, "3", actual)

	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "2", v)
	assert.Equal(t, 2, m.Len())
	assert.ElementsMatch(t, []string{"a", "b"}, m.Keys())
	assert.True(t, m.ContainsKey("b"))

	prev, existed, err = m.Remove("a")
	require.NoError(t, err)
	assert.True(t, existed)
	assert.Equal(t, "2", prev)

	_, existed, err = m.Remove("a")
	require.NoError(t, err)
	assert.False(t, existed)
	assert.False(t, m.ContainsKey("a"))
	assert.Equal(t, 1, m.Len())
}

func TestMap_IndexesFollowMutations(t *testing.T) {
	m := newMap(t)
	m.Put("a", "x")
	m.Put("b", "y")

	idx, err := m.AddIndex("value", identity())
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a"}, idx.Contents().Get("x"))

	m.Put("c", "x")
	m.Put("b", "x")
	keys, err := m.Query("value", "x")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a", "b", "c"}, keys)
	assert.False(t, idx.Contents().Contains("y"))

	m.Remove("a")
	keys, _ = m.Query("value", "x")
	assert.ElementsMatch(t, []string{"b", "c"}, keys)

	_, err = m.AddIndex("value", identity())
	assert.ErrorIs(t, err, ErrIndexExists)
	_, err = m.Query("missing", "x")
	assert.ErrorIs(t, err, ErrNoSuchIndex)

	assert.Equal(t, []string{"value"}, m.Indexes())
	require.NoError(t, m.RemoveIndex("value"))
	assert.ErrorIs(t, m.RemoveIndex("value"), ErrNoSuchIndex)
	_, ok := m.Index("value")
	assert.False(t, ok)
}

func TestMap_SyncEvents(t *testing.T) {
	m := newMap(t)
	r := &recorder{}
	m.Listeners().AddListener(r, nil, false)

	m.Put("a", "1")
	m.Put("a", "2")
	m.Remove("a")
	m.Remove("a") // no event for a missing key

	events := r.snapshot()
	require.Len(t, events, 3)

	assert.Equal(t, listener.Inserted, events[0].ID)
	assert.Equal(t, "1", events[0].NewValue)

	assert.Equal(t, listener.Updated, events[1].ID)
	old, ok := events[1].OldValue()
	assert.True(t, ok)
	assert.Equal(t, "1", old)
	assert.False(t, events[1].IsActive(), "events are deactivated after dispatch")

	assert.Equal(t, listener.Deleted, events[2].ID)
	old, _ = events[2].OldValue()
	assert.Equal(t, "2", old)
	assert.Equal(t, "test", events[2].Source)
}

func TestMap_StrictEvents(t *testing.T) {
	m := newMap(t, WithStrictEvents())
	boom := errors.New("boom")
	m.Listeners().AddKeyListener(&recorder{err: boom}, "a", false)

	_, _, err := m.Put("a", "1")
	assert.ErrorIs(t, err, boom)

	// the mutation itself is applied
	v, ok := m.Get("a")
	assert.True(t, ok)
	assert.Equal(t, "1", v)

	_, _, err = m.Put("b", "1")
	assert.NoError(t, err)
}

func TestMap_AsyncEvents(t *testing.T) {
	m := New[string, string](WithAsyncEvents())
	r := &recorder{}
	m.Listeners().AddListener(r, nil, true)

	for i := 0; i < 100; i++ {
		_, _, err := m.Put("k", fmt.Sprintf("%d", i))
		require.NoError(t, err)
	}
	m.Flush()

	events := r.snapshot()
	require.Len(t, events, 100)
	for i, evt := range events {
		assert.Equal(t, fmt.Sprintf("%d", i), evt.NewValue, "events of one key keep their order")
	}

	m.Put("k", "last")
	require.NoError(t, m.Close())
	assert.Len(t, r.snapshot(), 101, "close drains the queue")
	assert.Zero(t, m.PendingEvents())

	_, _, err := m.Put("k", "closed")
	assert.ErrorIs(t, err, ErrClosed)
	assert.ErrorIs(t, m.Close(), ErrClosed)
}

func TestMap_CloseDeliversEventsOfAcceptedWrites(t *testing.T) {
	m := New[string, string](WithAsyncEvents())
	r := &recorder{}
	m.Listeners().AddListener(r, nil, true)

	var (
		wg       sync.WaitGroup
		accepted sync.Map
		start    = make(chan struct{})
	)
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			<-start
			n := 0
			for i := 0; ; i++ {
				if _, _, err := m.Put(fmt.Sprintf("k%d", i%16), fmt.Sprintf("%d-%d", w, i)); err != nil {
					assert.ErrorIs(t, err, ErrClosed)
					break
				}
				n++
				// flushing concurrently with Close must never block
				if i%64 == 0 {
					m.Flush()
				}
			}
			accepted.Store(w, n)
		}(w)
	}

	close(start)
	for m.Len() < 16 {
		runtime.Gosched()
	}
	require.NoError(t, m.Close())
	wg.Wait()

	total := 0
	accepted.Range(func(_, n any) bool {
		total += n.(int)
		return true
	})
	assert.Len(t, r.snapshot(), total, "every accepted write has its event delivered")
	assert.Zero(t, m.dropped.Get())
	m.Flush()
}

func TestMap_Invoke(t *testing.T) {
	m := newMap(t)
	r := &recorder{}
	m.Listeners().AddListener(r, nil, false)

	increment := func(e *Entry[string, string]) error {
		v, ok := e.Value()
		if !ok {
			e.SetValue("1")
			return nil
		}
		e.SetValue(v + "1")
		return nil
	}

	require.NoError(t, m.Invoke("c", increment))
	require.NoError(t, m.Invoke("c", increment))
	v, _ := m.Get("c")
	assert.Equal(t, "11", v)

	failed := errors.New("rejected")
	err := m.Invoke("c", func(e *Entry[string, string]) error {
		e.SetValue("ignored")
		return failed
	})
	assert.ErrorIs(t, err, failed)
	v, _ = m.Get("c")
	assert.Equal(t, "11", v)

	require.NoError(t, m.Invoke("c", func(e *Entry[string, string]) error {
		assert.Equal(t, "c", e.Key())
		e.Remove()
		return nil
	}))
	assert.False(t, m.ContainsKey("c"))

	// read only processors don't produce events
	require.NoError(t, m.Invoke("c", func(e *Entry[string, string]) error {
		assert.False(t, e.Exists())
		return nil
	}))
	assert.False(t, m.ContainsKey("c"))
	assert.Len(t, r.snapshot(), 3)
}

func TestMap_AddIndexRetriesOnConcurrentModification(t *testing.T) {
	m := newMap(t, WithBuildAttempts(3))
	m.Put("a", "x")

	// every extraction writes to the map
	calls := 0
	disturbing := index.ExtractorFunc[string, string](func(e index.Entry[string, string]) (any, error) {
		calls++
		m.Put("noise", fmt.Sprintf("%d", calls))
		return e.Value(), nil
	})

	_, err := m.AddIndex("disturbed", disturbing)
	assert.ErrorIs(t, err, ErrConcurrentModification)
	_, ok := m.Index("disturbed")
	assert.False(t, ok)
	assert.GreaterOrEqual(t, calls, 3, "one scan per attempt")
}

func TestMap_AddIndexSucceedsOnRetry(t *testing.T) {
	m := newMap(t)
	for i := 0; i < 10; i++ {
		m.Put(fmt.Sprintf("k%d", i), "x")
	}

	attempt := 0
	var once sync.Once
	disturbOnce := index.ExtractorFunc[string, string](func(e index.Entry[string, string]) (any, error) {
		once.Do(func() {
			attempt++
			m.Put("k0", "y")
		})
		return e.Value(), nil
	})

	idx, err := m.AddIndex("value", disturbOnce)
	require.NoError(t, err)
	assert.Equal(t, 1, attempt)
	assert.Len(t, idx.Contents().Get("x"), 9)
	assert.ElementsMatch(t, []string{"k0"}, idx.Contents().Get("y"))
}

func TestMap_ConcurrentWritersKeepIndexConsistent(t *testing.T) {
	m := newMap(t)
	_, err := m.AddIndex("value", identity(), index.WithOrdered(nil))
	require.NoError(t, err)

	var wg sync.WaitGroup
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < 500; i++ {
				key := fmt.Sprintf("k%d", i%50)
				if i%7 == 0 {
					m.Remove(key)
				} else {
					m.Put(key, fmt.Sprintf("v%d", (i+w)%5))
				}
			}
		}(w)
	}
	wg.Wait()

	idx, _ := m.Index("value")
	total := 0
	idx.Contents().Range(func(value any, keys []string) bool {
		for _, k := range keys {
			v, ok := m.Get(k)
			require.True(t, ok, "indexed key %s missing from map", k)
			assert.Equal(t, v, value)
		}
		total += len(keys)
		return true
	})
	assert.Equal(t, m.Len(), total)
}

func TestMap_MetricsAndInfo(t *testing.T) {
	m := newMap(t)
	m.Put("a", "x")
	m.Put("b", "x")
	m.Get("a")
	m.Get("zzz")
	_, err := m.AddIndex("value", identity())
	require.NoError(t, err)

	var buf bytes.Buffer
	m.Metrics().WritePrometheus(&buf)
	out := buf.String()
	assert.Contains(t, out, `dmap_puts_total{map="test"} 2`)
	assert.Contains(t, out, `dmap_gets_total{map="test",result="hit"} 1`)
	assert.Contains(t, out, `dmap_gets_total{map="test",result="miss"} 1`)
	assert.Contains(t, out, `dmap_entries{map="test"} 2`)
	assert.Contains(t, out, `dmap_index_units{map="test",index="value"}`)

	info := m.Info()
	assert.Equal(t, "test", info.Name)
	assert.Equal(t, 2, info.Entries)
	require.Contains(t, info.Indexes, "value")
	assert.Equal(t, 1, info.Indexes["value"].Values)
	assert.Equal(t, info.Indexes["value"].Units, info.IndexUnits)
}

func TestMap_DefaultNameIsUnique(t *testing.T) {
	a, b := New[string, int](), New[string, int]()
	defer a.Close()
	defer b.Close()
	assert.NotEmpty(t, a.Name())
	assert.NotEqual(t, a.Name(), b.Name())
}
