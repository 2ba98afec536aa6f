package sparse

import (
	"errors"
	"math"
	"math/rand"
	"slices"
	"sort"
	"testing"
)

// mustValidate fails the test if the tree invariants are violated
func mustValidate[V any](t *testing.T, a *Array[V]) {
	t.Helper()
	if err := a.Validate(); err != nil {
		t.Fatalf("invalid tree: %v (%s)", err, a)
	}
}

func TestSetGetRoundTrip(t *testing.T) {
	a := New[string]()

	indices := []int64{0, -1, 1, 42, math.MaxInt64, math.MinInt64, -42}
	for _, idx := range indices {
		if _, existed := a.Set(idx, "v"); existed {
			t.Errorf("index %d should not exist before Set", idx)
		}
		mustValidate(t, a)
	}

	for _, idx := range indices {
		v, ok := a.Get(idx)
		if !ok || v != "v" {
			t.Errorf("Get(%d) = %q, %v; want \"v\", true", idx, v, ok)
		}
		if !a.Exists(idx) {
			t.Errorf("Exists(%d) should be true", idx)
		}
	}

	if a.Len() != len(indices) {
		t.Errorf("expected %d elements, got %d", len(indices), a.Len())
	}

	old, existed := a.Set(42, "w")
	if !existed || old != "v" {
		t.Errorf("Set on existing index returned %q, %v", old, existed)
	}
	if a.Len() != len(indices) {
		t.Errorf("replacing a value must not change the size")
	}

	for _, idx := range indices {
		v, ok := a.Remove(idx)
		if !ok {
			t.Errorf("Remove(%d) should report a removed value", idx)
		}
		if idx == 42 && v != "w" {
			t.Errorf("Remove(42) returned %q, want \"w\"", v)
		}
		if a.Exists(idx) {
			t.Errorf("index %d still exists after Remove", idx)
		}
		mustValidate(t, a)
	}

	if !a.IsEmpty() {
		t.Errorf("array should be empty, got %s", a)
	}
	if _, ok := a.Remove(7); ok {
		t.Errorf("Remove on a missing index should return false")
	}
}

func TestInsertionOrderScenario(t *testing.T) {
	a := New[int]()
	for _, idx := range []int64{4, 2, 6, 1, 3, 5, 7} {
		a.Set(idx, int(idx)*10)
		mustValidate(t, a)
	}

	if a.FirstIndex() != 1 {
		t.Errorf("FirstIndex() = %d, want 1", a.FirstIndex())
	}
	if a.LastIndex() != 7 {
		t.Errorf("LastIndex() = %d, want 7", a.LastIndex())
	}
	if got := a.Indices(); !slices.Equal(got, []int64{1, 2, 3, 4, 5, 6, 7}) {
		t.Errorf("unexpected order %v", got)
	}

	// a perfectly balanced tree with 7 nodes has the middle element as root
	if a.root.key != 4 {
		t.Errorf("expected root 4, got %d", a.root.key)
	}
}

func TestSequentialInsertStaysBalanced(t *testing.T) {
	a := New[int64]()
	for i := int64(0); i < 1024; i++ {
		a.Set(i, i)
	}
	mustValidate(t, a)

	// height of an AVL tree is below 1.45*log2(n+2)
	h := height(a.root)
	if limit := int(1.45 * math.Log2(1026)); h > limit {
		t.Errorf("tree too high: %d > %d", h, limit)
	}

	for i := int64(0); i < 1024; i += 2 {
		a.Remove(i)
	}
	mustValidate(t, a)
	if a.Len() != 512 {
		t.Errorf("expected 512 elements, got %d", a.Len())
	}
}

func height[V any](n *node[V]) int {
	if n == nil {
		return 0
	}
	return max(height(n.left), height(n.right)) + 1
}

func TestFloorCeiling(t *testing.T) {
	a := New[string]()

	if a.FloorIndex(10) != NotFound || a.CeilingIndex(10) != NotFound {
		t.Errorf("empty array must return NotFound")
	}
	if a.FirstIndex() != NotFound || a.LastIndex() != NotFound {
		t.Errorf("empty array must return NotFound for first/last")
	}
	if _, ok := a.Floor(10); ok {
		t.Errorf("Floor on empty array must not find anything")
	}

	a.Set(5, "five")

	if _, ok := a.Floor(4); ok {
		t.Errorf("Floor(4) should not find anything")
	}
	if a.FloorIndex(4) != NotFound {
		t.Errorf("FloorIndex(4) should be NotFound")
	}
	for _, idx := range []int64{5, 6, math.MaxInt64} {
		if v, ok := a.Floor(idx); !ok || v != "five" {
			t.Errorf("Floor(%d) = %q, %v", idx, v, ok)
		}
	}

	if _, ok := a.Ceiling(6); ok {
		t.Errorf("Ceiling(6) should not find anything")
	}
	for _, idx := range []int64{5, 4, math.MinInt64} {
		if v, ok := a.Ceiling(idx); !ok || v != "five" {
			t.Errorf("Ceiling(%d) = %q, %v", idx, v, ok)
		}
	}

	a.Set(10, "ten")
	a.Set(-10, "minus ten")

	tests := []struct {
		index   int64
		floor   int64
		ceiling int64
	}{
		{-11, NotFound, -10},
		{-10, -10, -10},
		{0, -10, 5},
		{7, 5, 10},
		{10, 10, 10},
		{11, 10, NotFound},
	}
	for _, tt := range tests {
		if got := a.FloorIndex(tt.index); got != tt.floor {
			t.Errorf("FloorIndex(%d) = %d, want %d", tt.index, got, tt.floor)
		}
		if got := a.CeilingIndex(tt.index); got != tt.ceiling {
			t.Errorf("CeilingIndex(%d) = %d, want %d", tt.index, got, tt.ceiling)
		}
	}

	idx, v, ok := a.CeilingEntry(6)
	if !ok || idx != 10 || v != "ten" {
		t.Errorf("CeilingEntry(6) = %d, %q, %v", idx, v, ok)
	}
}

func TestMinInt64IsAValidIndex(t *testing.T) {
	a := New[int]()
	a.Set(math.MinInt64, 1)

	idx, v, ok := a.FloorEntry(0)
	if !ok || idx != math.MinInt64 || v != 1 {
		t.Errorf("FloorEntry(0) = %d, %d, %v", idx, v, ok)
	}
}

func TestRemoveRange(t *testing.T) {
	a := New[int]()
	for _, idx := range []int64{1, 3, 5, 7, 9} {
		a.Set(idx, int(idx))
	}

	a.RemoveRange(3, 7)
	mustValidate(t, a)

	if got := a.Indices(); !slices.Equal(got, []int64{1, 7, 9}) {
		t.Errorf("RemoveRange(3, 7) left %v, want [1 7 9]", got)
	}

	// empty and inverted ranges are no-ops
	a.RemoveRange(7, 7)
	a.RemoveRange(9, 1)
	if a.Len() != 3 {
		t.Errorf("empty range must not remove anything")
	}

	a.RemoveRange(math.MinInt64, math.MaxInt64)
	if got := a.Indices(); !slices.Equal(got, []int64{}) {
		t.Errorf("full range removal left %v", got)
	}
}

func TestRemoveRangeLarge(t *testing.T) {
	a := New[int]()
	for i := int64(0); i < 500; i++ {
		a.Set(i*2, int(i))
	}

	a.RemoveRange(101, 799)
	mustValidate(t, a)

	for idx := range a.All() {
		if idx >= 101 && idx < 799 {
			t.Fatalf("index %d should have been removed", idx)
		}
	}
	// 0..100 even: 51 values, 800..998 even: 100 values
	if a.Len() != 151 {
		t.Errorf("expected 151 remaining elements, got %d", a.Len())
	}
}

func TestRandomOperationsKeepInvariants(t *testing.T) {
	rnd := rand.New(rand.NewSource(7))
	a := New[int64]()
	ref := make(map[int64]int64)

	for i := 0; i < 5000; i++ {
		idx := rnd.Int63n(300) - 150
		switch rnd.Intn(4) {
		case 0, 1:
			_, existed := a.Set(idx, idx*3)
			_, refExisted := ref[idx]
			if existed != refExisted {
				t.Fatalf("Set(%d) existed=%v, reference says %v", idx, existed, refExisted)
			}
			ref[idx] = idx * 3
		case 2:
			_, removed := a.Remove(idx)
			_, refExisted := ref[idx]
			if removed != refExisted {
				t.Fatalf("Remove(%d) removed=%v, reference says %v", idx, removed, refExisted)
			}
			delete(ref, idx)
		case 3:
			to := idx + rnd.Int63n(20)
			a.RemoveRange(idx, to)
			for k := range ref {
				if k >= idx && k < to {
					delete(ref, k)
				}
			}
		}
		mustValidate(t, a)
	}

	want := make([]int64, 0, len(ref))
	for k := range ref {
		want = append(want, k)
	}
	sort.Slice(want, func(i, j int) bool { return want[i] < want[j] })
	if got := a.Indices(); !slices.Equal(got, want) {
		t.Errorf("content mismatch:\n got %v\nwant %v", got, want)
	}
}

func TestClone(t *testing.T) {
	a := New[[]int]()
	shared := []int{1}
	a.Set(1, shared)
	a.Set(2, []int{2})
	a.Set(3, []int{3})

	c := a.Clone()
	mustValidate(t, c)

	c.Remove(2)
	if !a.Exists(2) {
		t.Errorf("removing from the clone must not change the original")
	}

	v, _ := c.Get(1)
	v[0] = 99
	if shared[0] != 99 {
		t.Errorf("values are expected to be copied shallowly")
	}
}

func TestIterator(t *testing.T) {
	a := New[string]()
	for _, idx := range []int64{10, 20, 30, 40} {
		a.Set(idx, "x")
	}

	t.Run("Forward", func(t *testing.T) {
		var got []int64
		it := a.Iterator()
		for it.Next() {
			got = append(got, it.Index())
		}
		if !slices.Equal(got, []int64{10, 20, 30, 40}) {
			t.Errorf("unexpected order %v", got)
		}
	})

	t.Run("Reverse", func(t *testing.T) {
		var got []int64
		for idx := range a.Backward() {
			got = append(got, idx)
		}
		if !slices.Equal(got, []int64{40, 30, 20, 10}) {
			t.Errorf("unexpected order %v", got)
		}
	})

	t.Run("From", func(t *testing.T) {
		it := a.IteratorFrom(25, false)
		if !it.Next() || it.Index() != 30 {
			t.Errorf("forward iterator from 25 should start at 30")
		}
		it = a.IteratorFrom(25, true)
		if !it.Next() || it.Index() != 20 {
			t.Errorf("reverse iterator from 25 should start at 20")
		}
		it = a.IteratorFrom(41, false)
		if it.Next() {
			t.Errorf("iterator from 41 should be exhausted")
		}
	})

	t.Run("SetValue", func(t *testing.T) {
		it := a.Iterator()
		for it.Next() {
			if _, err := it.SetValue("y"); err != nil {
				t.Fatalf("SetValue failed: %v", err)
			}
		}
		for _, v := range a.All() {
			if v != "y" {
				t.Errorf("value not replaced")
			}
		}
	})
}

func TestIteratorRemove(t *testing.T) {
	a := New[int]()
	for i := int64(0); i < 100; i++ {
		a.Set(i, int(i))
	}

	it := a.Iterator()
	var visited int
	for it.Next() {
		visited++
		if it.Index()%3 == 0 {
			if err := it.Remove(); err != nil {
				t.Fatalf("Remove failed: %v", err)
			}
		}
	}
	mustValidate(t, a)

	if visited != 100 {
		t.Errorf("iterator visited %d elements, want 100", visited)
	}
	for idx := range a.All() {
		if idx%3 == 0 {
			t.Errorf("index %d should have been removed", idx)
		}
	}

	// reverse removal of everything
	it = a.ReverseIterator()
	for it.Next() {
		if err := it.Remove(); err != nil {
			t.Fatalf("Remove failed: %v", err)
		}
	}
	if !a.IsEmpty() {
		t.Errorf("expected an empty array, got %s", a)
	}
}

func TestIteratorProtocol(t *testing.T) {
	a := New[int]()
	a.Set(1, 1)

	it := a.Iterator()
	if err := it.Remove(); !errors.Is(err, ErrIllegalState) {
		t.Errorf("Remove before Next should fail, got %v", err)
	}
	if _, err := it.SetValue(2); !errors.Is(err, ErrIllegalState) {
		t.Errorf("SetValue before Next should fail, got %v", err)
	}

	it.Next()
	if err := it.Remove(); err != nil {
		t.Errorf("first Remove should succeed: %v", err)
	}
	if err := it.Remove(); !errors.Is(err, ErrIllegalState) {
		t.Errorf("second Remove should fail, got %v", err)
	}

	if it.Next() {
		t.Errorf("iterator should be exhausted")
	}

	assertPanics(t, "Index", func() { it.Index() })
	assertPanics(t, "Value", func() { it.Value() })
}

func assertPanics(t *testing.T, name string, fn func()) {
	t.Helper()
	defer func() {
		r := recover()
		if err, ok := r.(error); !ok || !errors.Is(err, ErrIllegalState) {
			t.Errorf("%s should panic with ErrIllegalState, got %v", name, r)
		}
	}()
	fn()
}

func TestString(t *testing.T) {
	a := New[string]()
	a.Set(2, "b")
	a.Set(1, "a")
	if got := a.String(); got != "[1=a, 2=b]" {
		t.Errorf("String() = %q", got)
	}
}

func BenchmarkSet(b *testing.B) {
	a := New[int]()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.Set(int64(i), i)
	}
}

func BenchmarkGet(b *testing.B) {
	a := New[int]()
	for i := 0; i < 100_000; i++ {
		a.Set(int64(i), i)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		a.Get(int64(i % 100_000))
	}
}
