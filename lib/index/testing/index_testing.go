package testing

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sync"
	"testing"

	"github.com/ValentinKolb/dMap/lib/index"
)

// IndexFactory creates a new index over int keys
type IndexFactory func(extractor index.Extractor[int, any], opts ...index.Option) (index.MapIndex[int, any], error)

// RunMapIndexTests runs a comprehensive test suite for a MapIndex implementation.
func RunMapIndexTests(t *testing.T, name string, factory IndexFactory) {
	t.Run(name, func(t *testing.T) {
		t.Run("Insert&Query", func(t *testing.T) {
			testInsertQuery(t, factory)
		})

		t.Run("Update", func(t *testing.T) {
			testUpdate(t, factory)
		})

		t.Run("MoveKey", func(t *testing.T) {
			testMoveKey(t, factory)
		})

		t.Run("UpdateSameValue", func(t *testing.T) {
			testUpdateSameValue(t, factory)
		})

		t.Run("Delete", func(t *testing.T) {
			testDelete(t, factory)
		})

		t.Run("SplitCollections", func(t *testing.T) {
			testSplitCollections(t, factory)
		})

		t.Run("NoSplit", func(t *testing.T) {
			testNoSplit(t, factory)
		})

		t.Run("PartialIndex", func(t *testing.T) {
			testPartialIndex(t, factory)
		})

		t.Run("WithoutForwardIndex", func(t *testing.T) {
			testWithoutForwardIndex(t, factory)
		})

		t.Run("Ordered", func(t *testing.T) {
			testOrdered(t, factory)
		})

		t.Run("Conditional", func(t *testing.T) {
			testConditional(t, factory)
		})

		t.Run("ConditionalInsert", func(t *testing.T) {
			testConditionalInsert(t, factory)
		})

		t.Run("NaN", func(t *testing.T) {
			testNaN(t, factory)
		})

		t.Run("UnhashableLookup", func(t *testing.T) {
			testUnhashableLookup(t, factory)
		})

		t.Run("Concurrent", func(t *testing.T) {
			testConcurrent(t, factory)
		})
	})
}

// --------------------------------------------------------------------------
// Helper functions
// --------------------------------------------------------------------------

func identity() index.Extractor[int, any] {
	return index.Identity[int, any]()
}

func mustCreate(t testing.TB, factory IndexFactory, extractor index.Extractor[int, any], opts ...index.Option) index.MapIndex[int, any] {
	idx, err := factory(extractor, opts...)
	if err != nil {
		t.Fatalf("Failed to create index: %v", err)
	}
	return idx
}

// expectKeys checks the key set of value, ignoring the order
func expectKeys(t testing.TB, idx index.MapIndex[int, any], value any, want ...int) {
	t.Helper()
	got := idx.Contents().Get(value)
	slices.Sort(got)
	slices.Sort(want)
	if !slices.Equal(got, want) {
		t.Errorf("Expected keys %v for value %v, got %v", want, value, got)
	}
}

func update(t testing.TB, idx index.MapIndex[int, any], key int, value, original any) {
	t.Helper()
	if err := idx.Update(index.NewUpdateEntry(key, value, original)); err != nil {
		t.Fatalf("Update of key %d failed: %v", key, err)
	}
}

// --------------------------------------------------------------------------
// Test functions
// --------------------------------------------------------------------------

func testInsertQuery(t *testing.T, factory IndexFactory) {
	idx := mustCreate(t, factory, identity())

	idx.Insert(index.NewEntry[int, any](1, "a"))
	idx.Insert(index.NewEntry[int, any](2, "b"))
	idx.Insert(index.NewEntry[int, any](3, "a"))

	expectKeys(t, idx, "a", 1, 3)
	expectKeys(t, idx, "b", 2)
	expectKeys(t, idx, "c")

	if n := idx.Contents().Len(); n != 2 {
		t.Errorf("Expected 2 distinct values, got %d", n)
	}
	if v, ok := idx.Get(1); !ok || v != "a" {
		t.Errorf("Expected forward value a for key 1, got %v (%t)", v, ok)
	}
	if _, ok := idx.Get(42); ok {
		t.Errorf("Expected unknown key to have no forward value")
	}
	if idx.IsPartial() {
		t.Errorf("Expected index not to be partial")
	}
	if idx.Units() <= 0 {
		t.Errorf("Expected positive units, got %d", idx.Units())
	}

	snapshot := idx.Contents().Snapshot()
	if len(snapshot) != 2 || len(snapshot["a"]) != 2 || len(snapshot["b"]) != 1 {
		t.Errorf("Unexpected snapshot %v", snapshot)
	}
}

func testUpdate(t *testing.T, factory IndexFactory) {
	idx := mustCreate(t, factory, identity())

	idx.Insert(index.NewEntry[int, any](1, "a"))
	idx.Insert(index.NewEntry[int, any](3, "a"))

	update(t, idx, 1, "c", "a")

	expectKeys(t, idx, "a", 3)
	expectKeys(t, idx, "c", 1)
	if v, _ := idx.Get(1); v != "c" {
		t.Errorf("Expected forward value c for key 1, got %v", v)
	}

	// moving the last key away removes the value
	update(t, idx, 3, "c", "a")
	if idx.Contents().Contains("a") {
		t.Errorf("Expected value a to be removed")
	}
	expectKeys(t, idx, "c", 1, 3)
}

func testMoveKey(t *testing.T, factory IndexFactory) {
	idx := mustCreate(t, factory, identity())

	idx.Insert(index.NewEntry[int, any](1, "a"))
	idx.Insert(index.NewEntry[int, any](2, "b"))
	idx.Insert(index.NewEntry[int, any](3, "a"))

	expectKeys(t, idx, "a", 1, 3)
	expectKeys(t, idx, "b", 2)

	update(t, idx, 1, "b", "a")

	expectKeys(t, idx, "a", 3)
	expectKeys(t, idx, "b", 1, 2)
	if n := idx.Contents().Len(); n != 2 {
		t.Errorf("Expected 2 distinct values, got %d", n)
	}
}

func testUpdateSameValue(t *testing.T, factory IndexFactory) {
	idx := mustCreate(t, factory, identity())

	idx.Insert(index.NewEntry[int, any](1, "a"))
	idx.Insert(index.NewEntry[int, any](2, "a"))
	units := idx.Units()

	update(t, idx, 1, "a", "a")

	if idx.Units() != units {
		t.Errorf("Expected units %d to be unchanged, got %d", units, idx.Units())
	}
	expectKeys(t, idx, "a", 1, 2)
}

func testDelete(t *testing.T, factory IndexFactory) {
	idx := mustCreate(t, factory, identity())

	for i := 0; i < 100; i++ {
		idx.Insert(index.NewEntry[int, any](i, fmt.Sprintf("value-%d", i%7)))
	}
	for i := 0; i < 100; i += 2 {
		idx.Delete(index.NewUpdateEntry[int, any](i, fmt.Sprintf("value-%d", i%7), fmt.Sprintf("value-%d", i%7)))
	}

	total := 0
	idx.Contents().Range(func(value any, keys []int) bool {
		for _, k := range keys {
			if k%2 == 0 {
				t.Errorf("Deleted key %d still mapped to %v", k, value)
			}
		}
		total += len(keys)
		return true
	})
	if total != 50 {
		t.Errorf("Expected 50 mapped keys, got %d", total)
	}

	for i := 1; i < 100; i += 2 {
		idx.Delete(index.NewEntry[int, any](i, fmt.Sprintf("value-%d", i%7)))
	}
	if n := idx.Contents().Len(); n != 0 {
		t.Errorf("Expected empty index, got %d values", n)
	}
	if u := idx.Units(); u != 0 {
		t.Errorf("Expected 0 units for an empty index, got %d", u)
	}
}

func testSplitCollections(t *testing.T, factory IndexFactory) {
	idx := mustCreate(t, factory, identity())

	idx.Insert(index.NewEntry[int, any](1, []any{"x", "y", "x"}))
	idx.Insert(index.NewEntry[int, any](2, []string{"y", "z"}))

	expectKeys(t, idx, "x", 1)
	expectKeys(t, idx, "y", 1, 2)
	expectKeys(t, idx, "z", 2)

	v, ok := idx.Get(1)
	if values, isSlice := v.([]any); !ok || !isSlice || len(values) != 2 {
		t.Errorf("Expected de-duplicated forward value [x y], got %v", v)
	}

	update(t, idx, 1, []string{"x", "z"}, []any{"x", "y"})

	expectKeys(t, idx, "x", 1)
	expectKeys(t, idx, "y", 2)
	expectKeys(t, idx, "z", 1, 2)

	// an empty collection contributes no inverse mappings
	update(t, idx, 2, []string{}, []string{"y", "z"})
	if idx.Contents().Contains("y") {
		t.Errorf("Expected value y to be removed")
	}
	expectKeys(t, idx, "z", 1)
}

func testNoSplit(t *testing.T, factory IndexFactory) {
	idx := mustCreate(t, factory, identity(), index.WithSplitCollections(false))

	idx.Insert(index.NewEntry[int, any](1, [2]string{"a", "b"}))
	expectKeys(t, idx, [2]string{"a", "b"}, 1)
	if idx.Contents().Contains("a") {
		t.Errorf("Expected array not to be split")
	}

	// slices can't be hashed as a whole
	idx.Insert(index.NewEntry[int, any](2, []string{"a", "b"}))
	if !idx.IsPartial() {
		t.Errorf("Expected index to be partial after indexing a slice")
	}
}

func testPartialIndex(t *testing.T, factory IndexFactory) {
	failing := index.ExtractorFunc[int, any](func(e index.Entry[int, any]) (any, error) {
		switch e.Value() {
		case "bad":
			return nil, errors.New("bad value")
		case "panic":
			panic("extractor failure")
		}
		return e.Value(), nil
	})
	idx := mustCreate(t, factory, failing)

	idx.Insert(index.NewEntry[int, any](1, "ok"))
	idx.Insert(index.NewEntry[int, any](2, "bad"))
	idx.Insert(index.NewEntry[int, any](3, "panic"))

	if !idx.IsPartial() {
		t.Fatalf("Expected index to be partial")
	}
	if _, ok := idx.Get(2); ok {
		t.Errorf("Expected excluded key to have no forward value")
	}
	expectKeys(t, idx, "ok", 1)

	// key 1 starts failing and is removed from the inverse index
	update(t, idx, 1, "bad", "ok")
	if idx.Contents().Contains("ok") {
		t.Errorf("Expected mapping of failing key to be removed")
	}

	// all keys recover
	update(t, idx, 1, "ok", "bad")
	update(t, idx, 2, "ok", "bad")
	update(t, idx, 3, "ok", "panic")
	if idx.IsPartial() {
		t.Errorf("Expected index not to be partial after all keys recovered")
	}
	expectKeys(t, idx, "ok", 1, 2, 3)
}

func testWithoutForwardIndex(t *testing.T, factory IndexFactory) {
	idx := mustCreate(t, factory, identity(), index.WithoutForwardIndex())

	idx.Insert(index.NewEntry[int, any](1, "a"))
	idx.Insert(index.NewEntry[int, any](2, "a"))

	if _, ok := idx.Get(1); ok {
		t.Errorf("Expected no forward values without forward index")
	}

	err := idx.Update(index.NewEntry[int, any](1, "b"))
	if !errors.Is(err, index.ErrNoOriginalValue) {
		t.Errorf("Expected ErrNoOriginalValue, got %v", err)
	}
	expectKeys(t, idx, "a", 1, 2)

	update(t, idx, 1, "b", "a")
	expectKeys(t, idx, "a", 2)
	expectKeys(t, idx, "b", 1)

	// without original value the key is removed by scanning the index
	idx.Delete(index.NewEntry[int, any](2, "a"))
	if idx.Contents().Contains("a") {
		t.Errorf("Expected value a to be removed")
	}
}

func testOrdered(t *testing.T, factory IndexFactory) {
	idx := mustCreate(t, factory, identity(), index.WithOrdered(nil))
	if !idx.IsOrdered() {
		t.Fatalf("Expected index to be ordered")
	}

	for i, v := range []int{5, 1, 3, 9, 7, 1} {
		idx.Insert(index.NewEntry[int, any](i, v))
	}

	var values []int
	idx.Contents().Range(func(value any, _ []int) bool {
		values = append(values, value.(int))
		return true
	})
	if !slices.Equal(values, []int{1, 3, 5, 7, 9}) {
		t.Errorf("Expected ascending values, got %v", values)
	}
	expectKeys(t, idx, 1, 1, 5)
}

func testConditional(t *testing.T, factory IndexFactory) {
	cond := index.WithCondition(func(e index.Entry[int, any]) bool {
		return e.Value() != "skip"
	})
	idx := mustCreate(t, factory, identity(), cond)

	idx.Insert(index.NewEntry[int, any](1, "a"))
	idx.Insert(index.NewEntry[int, any](2, "skip"))
	if idx.Contents().Contains("skip") {
		t.Errorf("Expected non matching entry not to be indexed")
	}

	// entry leaves the index
	update(t, idx, 1, "skip", "a")
	if idx.Contents().Len() != 0 {
		t.Errorf("Expected empty index, got %v", idx.Contents().Snapshot())
	}

	// entry joins the index
	update(t, idx, 2, "b", "skip")
	expectKeys(t, idx, "b", 2)
}

func testConditionalInsert(t *testing.T, factory IndexFactory) {
	cond := index.WithCondition(func(e index.Entry[int, any]) bool {
		return e.Value() != "skip"
	})
	idx := mustCreate(t, factory, identity(), cond)

	idx.Insert(index.NewEntry[int, any](1, "a"))
	expectKeys(t, idx, "a", 1)

	// inserting an existing key acts as an update, so the key leaves the index
	idx.Insert(index.NewEntry[int, any](1, "skip"))
	if idx.Contents().Len() != 0 {
		t.Errorf("Expected empty index, got %v", idx.Contents().Snapshot())
	}
	if _, ok := idx.Get(1); ok {
		t.Errorf("Expected key 1 to have no forward value")
	}
	if idx.Units() != 0 {
		t.Errorf("Expected 0 units, got %d", idx.Units())
	}
}

func testNaN(t *testing.T, factory IndexFactory) {
	for _, tc := range []struct {
		name string
		opts []index.Option
	}{
		{"Hashed", nil},
		{"Ordered", []index.Option{index.WithOrdered(nil)}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			idx := mustCreate(t, factory, identity(), tc.opts...)
			nan := math.NaN()

			idx.Insert(index.NewEntry[int, any](1, nan))
			update(t, idx, 1, nan, nan)
			update(t, idx, 1, math.NaN(), nan)

			if n := idx.Contents().Len(); n != 1 {
				t.Errorf("Expected 1 distinct value after updates with NaN, got %d", n)
			}
			expectKeys(t, idx, math.NaN(), 1)
			if v, ok := idx.Get(1); !ok {
				t.Errorf("Expected forward value for key 1")
			} else if f, isFloat := v.(float64); !isFloat || !math.IsNaN(f) {
				t.Errorf("Expected forward value NaN, got %v (%T)", v, v)
			}

			// split elements are deduplicated, NaN included
			idx.Insert(index.NewEntry[int, any](2, []any{nan, 1.5, math.NaN()}))
			expectKeys(t, idx, math.NaN(), 1, 2)
			expectKeys(t, idx, 1.5, 2)
			if n := idx.Contents().Len(); n != 2 {
				t.Errorf("Expected 2 distinct values, got %d", n)
			}

			// a struct holding NaN never equals itself and is excluded
			idx.Insert(index.NewEntry[int, any](3, struct{ F float64 }{nan}))
			if !idx.IsPartial() {
				t.Errorf("Expected index to be partial")
			}

			idx.Delete(index.NewUpdateEntry[int, any](1, nan, nan))
			idx.Delete(index.NewUpdateEntry[int, any](2, []any{nan, 1.5}, []any{nan, 1.5}))
			idx.Delete(index.NewUpdateEntry[int, any](3, struct{ F float64 }{nan}, struct{ F float64 }{nan}))

			if n := idx.Contents().Len(); n != 0 {
				t.Errorf("Expected empty index after deleting all keys, got %d values", n)
			}
			if idx.Units() != 0 {
				t.Errorf("Expected 0 units after deleting all keys, got %d", idx.Units())
			}
			if idx.IsPartial() {
				t.Errorf("Expected index not to be partial")
			}
		})
	}
}

func testUnhashableLookup(t *testing.T, factory IndexFactory) {
	idx := mustCreate(t, factory, identity())
	idx.Insert(index.NewEntry[int, any](1, "a"))

	if keys := idx.Contents().Get([]int{1}); keys != nil {
		t.Errorf("Expected no keys for an unhashable value, got %v", keys)
	}
	if idx.Contents().Contains(map[string]int{}) {
		t.Errorf("Expected unhashable value not to be contained")
	}
}

func testConcurrent(t *testing.T, factory IndexFactory) {
	idx := mustCreate(t, factory, identity())

	const workers, perWorker = 8, 250
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWorker; i++ {
				key := w*perWorker + i
				idx.Insert(index.NewEntry[int, any](key, key%10))
				if i%2 == 1 {
					_ = idx.Update(index.NewUpdateEntry[int, any](key, 10+key%10, key%10))
				}
			}
		}(w)
	}
	wg.Wait()

	total := 0
	idx.Contents().Range(func(value any, keys []int) bool {
		for _, k := range keys {
			want := k % 10
			if k%perWorker%2 == 1 {
				want += 10
			}
			if value != want {
				t.Errorf("Key %d mapped to %v, expected %d", k, value, want)
			}
		}
		total += len(keys)
		return true
	})
	if total != workers*perWorker {
		t.Errorf("Expected %d mapped keys, got %d", workers*perWorker, total)
	}
}
