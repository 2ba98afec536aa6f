package index

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestIndex(t *testing.T, opts ...Option) *SimpleIndex[int, any] {
	t.Helper()
	idx, err := New(Identity[int, any](), opts...)
	require.NoError(t, err)
	return idx
}

func TestNew_InvalidOptions(t *testing.T) {
	_, err := New[int, any](nil)
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = New(Identity[int, any](), WithMultiValueBudget(-1))
	assert.ErrorIs(t, err, ErrInvalidOption)

	cond := WithCondition(func(e Entry[int, any]) bool { return true })
	_, err = New(Identity[int, any](), cond, WithoutForwardIndex())
	assert.ErrorIs(t, err, ErrInvalidOption, "conditional index without forward index")

	// condition for other key/value types
	wrong := WithCondition(func(e Entry[string, string]) bool { return true })
	_, err = New(Identity[int, any](), wrong)
	assert.ErrorIs(t, err, ErrInvalidOption)

	_, err = New(Identity[int, any](), WithCondition[int, any](nil))
	assert.ErrorIs(t, err, ErrInvalidOption)
}

func TestSimpleIndex_Consistency(t *testing.T) {
	idx := newTestIndex(t)

	idx.Insert(NewEntry[int, any](1, []string{"a", "b"}))
	idx.Insert(NewEntry[int, any](2, "b"))
	idx.Insert(NewEntry[int, any](3, []string{"c"}))
	require.NoError(t, idx.Update(NewEntry[int, any](3, []string{"a", "c"})))

	// every forward mapping is reflected in the inverse index and vice versa
	for key, fe := range idx.forward {
		for _, e := range elements(fe.value) {
			keys, ok := idx.inverse.get(e)
			require.True(t, ok, "value %v of key %d missing", e, key)
			assert.True(t, keys.contains(key))
		}
	}
	idx.inverse.ascend(func(value any, keys *keySet[int]) bool {
		keys.each(func(k int) bool {
			fe, ok := idx.forward[k]
			require.True(t, ok)
			assert.Contains(t, elements(fe.value), value)
			return true
		})
		return true
	})

	assert.ElementsMatch(t, []int{1, 3}, idx.Contents().Get("a"))
	assert.ElementsMatch(t, []int{1, 2}, idx.Contents().Get("b"))
	assert.ElementsMatch(t, []int{3}, idx.Contents().Get("c"))
}

func TestSimpleIndex_InsertExistingKeyActsAsUpdate(t *testing.T) {
	idx := newTestIndex(t)

	idx.Insert(NewEntry[int, any](1, "a"))
	idx.Insert(NewEntry[int, any](1, "b"))

	assert.False(t, idx.Contents().Contains("a"))
	assert.ElementsMatch(t, []int{1}, idx.Contents().Get("b"))
}

func TestSimpleIndex_UnitsReturnToZero(t *testing.T) {
	idx := newTestIndex(t)
	failing := errors.New("boom")
	extractor := ExtractorFunc[int, any](func(e Entry[int, any]) (any, error) {
		if e.Value() == "fail" {
			return nil, failing
		}
		return e.Value(), nil
	})
	idx.extractor = extractor

	values := []any{"a", "b", []string{"x", "y"}, 42, "fail", []string{"x", "y"}, "a"}
	for i, v := range values {
		idx.Insert(NewEntry[int, any](i, v))
	}
	assert.True(t, idx.IsPartial())
	assert.Positive(t, idx.Units())

	for i, v := range values {
		idx.Delete(NewEntry[int, any](i, v))
	}
	assert.False(t, idx.IsPartial())
	assert.Zero(t, idx.Units())
	assert.Zero(t, idx.Contents().Len())
}

func TestSimpleIndex_SharesEqualMultiValues(t *testing.T) {
	idx := newTestIndex(t)

	idx.Insert(NewEntry[int, any](1, []string{"a", "b"}))
	idx.Insert(NewEntry[int, any](2, []string{"b", "a"}))

	first := idx.forward[1].value.(*multiValue)
	second := idx.forward[2].value.(*multiValue)
	assert.Same(t, first, second)
	assert.Less(t, idx.forward[2].units, idx.forward[1].units)

	// disabled sharing
	idx = newTestIndex(t, WithMultiValueBudget(0))
	idx.Insert(NewEntry[int, any](1, []string{"a", "b"}))
	idx.Insert(NewEntry[int, any](2, []string{"b", "a"}))
	assert.NotSame(t, idx.forward[1].value, idx.forward[2].value)
}

func TestSimpleIndex_MultiValueBudget(t *testing.T) {
	// every candidate costs two units, so only the first candidate is compared
	idx := newTestIndex(t, WithMultiValueBudget(3))

	for i := 0; i < 10; i++ {
		idx.Insert(NewEntry[int, any](i, []int{i, 1000}))
	}
	idx.Insert(NewEntry[int, any](100, []int{1000, 1001}))
	idx.Insert(NewEntry[int, any](101, []int{1000, 1001}))

	// 1001 has the smallest key set, so key 101 still finds key 100
	assert.Same(t, idx.forward[100].value, idx.forward[101].value)
}

func TestSimpleIndex_Info(t *testing.T) {
	idx := newTestIndex(t, WithOrdered(nil))

	for i := 0; i < 10; i++ {
		idx.Insert(NewEntry[int, any](i, i%2))
	}
	idx.Insert(NewEntry[int, any](10, map[string]int{}))

	info := idx.Info()
	assert.Equal(t, 10, info.Keys)
	assert.Equal(t, 2, info.Values)
	assert.True(t, info.Ordered)
	assert.True(t, info.Partial)
	assert.Equal(t, 1, info.Excluded)
	assert.Equal(t, 5.0, info.KeySetSizes.Mean)
	assert.Equal(t, idx.Units(), info.Units)
	assert.Contains(t, idx.String(), "partial=true")
	assert.Len(t, idx.Keys(), 10)
	assert.Equal(t, []int{10}, idx.ExcludedKeys())
}

func TestSimpleIndex_GetReturnsCopy(t *testing.T) {
	idx := newTestIndex(t)
	idx.Insert(NewEntry[int, any](1, []string{"a", "b"}))

	v, ok := idx.Get(1)
	require.True(t, ok)
	v.([]any)[0] = "changed"

	again, _ := idx.Get(1)
	assert.ElementsMatch(t, []any{"a", "b"}, again)
}

func TestSimpleIndex_MissingMappingsAreRateLimited(t *testing.T) {
	now := time.Unix(0, 0)
	idx := newTestIndex(t, withClock(func() time.Time { return now }))

	// an update whose original value was never indexed
	for i := 0; i < 20; i++ {
		idx.Insert(NewEntry[int, any](i, "new"))
	}
	idx.forward = nil
	for i := 0; i < 20; i++ {
		require.NoError(t, idx.Update(NewUpdateEntry[int, any](i, "newer", "never-indexed")))
	}
	assert.Equal(t, missingLogLimit, idx.missing.count)
	assert.Equal(t, 10, idx.missing.suppressed)

	now = now.Add(missingLogCooldown)
	ok, last, resumed := idx.missing.allow()
	assert.True(t, ok)
	assert.False(t, last)
	assert.Equal(t, 10, resumed)
}

func TestMissingLimiter(t *testing.T) {
	now := time.Unix(0, 0)
	m := missingLimiter{now: func() time.Time { return now }}

	for i := 1; i <= missingLogLimit; i++ {
		ok, last, _ := m.allow()
		assert.True(t, ok)
		assert.Equal(t, i == missingLogLimit, last)
	}

	ok, _, _ := m.allow()
	assert.False(t, ok)

	now = now.Add(missingLogCooldown - time.Second)
	ok, _, _ = m.allow()
	assert.False(t, ok)

	now = now.Add(time.Second)
	ok, _, resumed := m.allow()
	assert.True(t, ok)
	assert.Equal(t, 2, resumed)
}

func TestKeySet(t *testing.T) {
	s := newKeySet(1)
	assert.Equal(t, 1, s.len())

	added, inflated := s.add(1)
	assert.False(t, added)
	assert.False(t, inflated)

	added, inflated = s.add(2)
	assert.True(t, added)
	assert.True(t, inflated)

	added, inflated = s.add(3)
	assert.True(t, added)
	assert.False(t, inflated)
	assert.ElementsMatch(t, []int{1, 2, 3}, s.keys())

	removed, deflated := s.remove(4)
	assert.False(t, removed)
	assert.False(t, deflated)

	removed, deflated = s.remove(1)
	assert.True(t, removed)
	assert.False(t, deflated)

	removed, deflated = s.remove(2)
	assert.True(t, removed)
	assert.True(t, deflated)
	assert.Equal(t, []int{3}, s.keys())
	assert.True(t, s.contains(3))
}
