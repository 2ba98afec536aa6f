package listener

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMapEvent_DeferredOldValue(t *testing.T) {
	loads := 0
	loader := func() (int, bool) {
		loads++
		return 7, true
	}

	evt := NewDeferredEvent("test", Updated, "k", 8, true, loader)
	assert.True(t, evt.IsActive())
	assert.Equal(t, 0, loads, "old value is loaded lazily")

	old, ok := evt.OldValue()
	assert.True(t, ok)
	assert.Equal(t, 7, old)
	evt.OldValue()
	assert.Equal(t, 1, loads)

	evt.Deactivate()
	assert.False(t, evt.IsActive())
	old, ok = evt.OldValue()
	assert.True(t, ok, "loaded value survives deactivation")
	assert.Equal(t, 7, old)
}

func TestMapEvent_DeactivateWithoutLoad(t *testing.T) {
	loads := 0
	evt := NewDeferredEvent("test", Deleted, "k", 0, false, func() (int, bool) {
		loads++
		return 7, true
	})

	evt.Deactivate()
	_, ok := evt.OldValue()
	assert.False(t, ok, "unloaded old value is dropped")
	assert.Zero(t, loads)
}

func TestMapEvent_FireEventDeactivates(t *testing.T) {
	s := NewSupport[string, int](nil)
	s.AddListener(NewListener(func(evt *MapEvent[string, int]) error {
		_, _ = evt.OldValue()
		return nil
	}), nil, false)

	evt := NewDeferredEvent("test", Updated, "k", 2, true, func() (int, bool) { return 1, true })
	assert.NoError(t, s.FireEvent(evt, true))
	assert.False(t, evt.IsActive())
	old, ok := evt.OldValue()
	assert.True(t, ok)
	assert.Equal(t, 1, old)
}

func TestMapEvent_String(t *testing.T) {
	assert.Equal(t, "MapEvent{m inserted key=a old=- new=1}", NewInsertEvent("m", "a", 1).String())
	assert.Equal(t, "MapEvent{m updated key=a old=1 new=2}", NewUpdateEvent("m", "a", 1, 2).String())
	assert.Equal(t, "MapEvent{m deleted key=a old=1 new=-}", NewDeleteEvent("m", "a", 1).String())
	assert.Contains(t, NewDeferredEvent("m", Deleted, "a", 0, false, func() (int, bool) { return 0, false }).String(), "<deferred>")
}

func TestEventFilter(t *testing.T) {
	positive := func(v int) bool { return v > 0 }

	tests := []struct {
		name string
		mask EventMask
		evt  *MapEvent[string, int]
		want bool
	}{
		{"insert matches", MaskInserted, NewInsertEvent("m", "k", 1), true},
		{"insert fails predicate", MaskInserted, NewInsertEvent("m", "k", -1), false},
		{"insert not in mask", MaskDeleted, NewInsertEvent("m", "k", 1), false},
		{"delete uses old value", MaskDeleted, NewDeleteEvent("m", "k", 1), true},
		{"update either value", MaskUpdated, NewUpdateEvent("m", "k", -1, 1), true},
		{"update neither value", MaskUpdated, NewUpdateEvent("m", "k", -1, -2), false},
		{"entered", MaskUpdatedEntered, NewUpdateEvent("m", "k", -1, 1), true},
		{"not entered", MaskUpdatedEntered, NewUpdateEvent("m", "k", 1, 2), false},
		{"left", MaskUpdatedLeft, NewUpdateEvent("m", "k", 1, -1), true},
		{"within", MaskUpdatedWithin, NewUpdateEvent("m", "k", 1, 2), true},
		{"key set ignores within", MaskKeySet, NewUpdateEvent("m", "k", 1, 2), false},
		{"key set entered", MaskKeySet, NewUpdateEvent("m", "k", -1, 2), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := NewEventFilter[string, int](tt.mask, positive)
			assert.Equal(t, tt.want, f.Evaluate(tt.evt))
		})
	}
}

func TestListeners(t *testing.T) {
	ls := NewListeners[string, int]()
	a, b, c := &recorder{}, &recorder{}, &recorder{}

	assert.True(t, ls.Add(a))
	assert.True(t, ls.Add(b))
	assert.False(t, ls.Add(a))
	assert.True(t, ls.Add(c))

	assert.True(t, ls.Remove(b))
	assert.False(t, ls.Remove(b))
	assert.Equal(t, []Listener[string, int]{a, c}, ls.List())

	other := NewListeners[string, int]()
	other.Add(c)
	other.Add(a)
	assert.True(t, ls.SameSet(other))
	other.Remove(a)
	assert.False(t, ls.SameSet(other))
}
