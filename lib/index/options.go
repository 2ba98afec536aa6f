package index

import (
	"fmt"
	"time"
)

// DefaultMultiValueBudget bounds the work spent on finding an equal
// multi-value to share when a collection is indexed
const DefaultMultiValueBudget = 500

type config struct {
	ordered    bool
	compare    CompareFunc
	split      bool
	forward    bool
	condition  any
	calculator UnitCalculator
	mvBudget   int
	now        func() time.Time
}

func defaultConfig() config {
	return config{
		split:    true,
		forward:  true,
		mvBudget: DefaultMultiValueBudget,
		now:      time.Now,
	}
}

// Option configures an index created with New
type Option func(*config) error

// WithOrdered keeps the inverse index sorted by value using cmp.
// A nil cmp selects NaturalOrder.
func WithOrdered(cmp CompareFunc) Option {
	return func(c *config) error {
		c.ordered = true
		c.compare = cmp
		if cmp == nil {
			c.compare = NaturalOrder
		}
		return nil
	}
}

// WithSplitCollections controls whether slices and arrays are indexed element
// wise (default) or as a single value
func WithSplitCollections(split bool) Option {
	return func(c *config) error {
		c.split = split
		return nil
	}
}

// WithoutForwardIndex drops the key -> value map. This saves memory, but every
// Update must then carry the original value of the entry (OriginalEntry).
func WithoutForwardIndex() Option {
	return func(c *config) error {
		c.forward = false
		return nil
	}
}

// WithCondition restricts the index to entries matching cond
func WithCondition[K comparable, V any](cond func(entry Entry[K, V]) bool) Option {
	return func(c *config) error {
		if cond == nil {
			return fmt.Errorf("%w: nil condition", ErrInvalidOption)
		}
		c.condition = Condition[K, V](cond)
		return nil
	}
}

// WithCalculator sets the unit calculator used for extracted values
func WithCalculator(calc UnitCalculator) Option {
	return func(c *config) error {
		c.calculator = calc
		return nil
	}
}

// WithMultiValueBudget sets the work budget for sharing equal multi-values
// between keys. Zero disables sharing.
func WithMultiValueBudget(budget int) Option {
	return func(c *config) error {
		if budget < 0 {
			return fmt.Errorf("%w: negative multi-value budget %d", ErrInvalidOption, budget)
		}
		c.mvBudget = budget
		return nil
	}
}

// withClock replaces the clock of the missing-entry log limiter (tests)
func withClock(now func() time.Time) Option {
	return func(c *config) error {
		c.now = now
		return nil
	}
}
