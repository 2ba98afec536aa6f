package index

import (
	"slices"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

type version struct{ major, minor int }

func (v version) CompareTo(other any) int {
	o := other.(version)
	if v.major != o.major {
		return v.major - o.major
	}
	return v.minor - o.minor
}

func TestNaturalOrder(t *testing.T) {
	tests := []struct {
		name string
		a, b any
		want int
	}{
		{"ints", 1, 2, -1},
		{"equal ints", int64(3), int64(3), 0},
		{"mixed ints", int8(5), int64(4), 1},
		{"uints", uint(1), uint(0), 1},
		{"int and float", 1, 1.5, -1},
		{"strings", "b", "a", 1},
		{"bools", false, true, -1},
		{"nil first", nil, 0, -1},
		{"nil last", 0, nil, 1},
		{"times", time.Unix(1, 0), time.Unix(2, 0), -1},
		{"ordered", version{1, 2}, version{1, 10}, -1},
		{"different kinds", "1", 1, 1}, // "int" < "string"
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := NaturalOrder(tt.a, tt.b)
			switch {
			case tt.want < 0:
				assert.Negative(t, got)
			case tt.want > 0:
				assert.Positive(t, got)
			default:
				assert.Zero(t, got)
			}
		})
	}
}

func TestNaturalOrder_Sort(t *testing.T) {
	values := []any{"b", 3, nil, 1.5, "a", -2}
	slices.SortFunc(values, NaturalOrder)
	assert.Equal(t, []any{nil, -2, 1.5, 3, "a", "b"}, values)
}
