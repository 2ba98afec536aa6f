package index

import (
	"cmp"
	"fmt"
	"reflect"
	"time"
)

// CompareFunc orders extracted values. It returns a negative number if a < b,
// zero if a == b and a positive number if a > b.
type CompareFunc func(a, b any) int

// Ordered is implemented by extracted values that define their own ordering
type Ordered interface {
	CompareTo(other any) int
}

// NaturalOrder compares numbers numerically, strings and bools naturally,
// time.Time chronologically and values implementing Ordered by CompareTo.
// Values of different kinds are ordered by their type name, nil sorts first.
func NaturalOrder(a, b any) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}

	if o, ok := a.(Ordered); ok {
		return o.CompareTo(b)
	}
	if ta, ok := a.(time.Time); ok {
		if tb, ok := b.(time.Time); ok {
			return ta.Compare(tb)
		}
	}

	va, vb := reflect.ValueOf(a), reflect.ValueOf(b)
	ca, cb := kindClass(va.Kind()), kindClass(vb.Kind())
	if ca == cb {
		switch ca {
		case classSigned:
			return cmp.Compare(va.Int(), vb.Int())
		case classUnsigned:
			return cmp.Compare(va.Uint(), vb.Uint())
		case classFloat:
			return cmp.Compare(va.Float(), vb.Float())
		case classString:
			return cmp.Compare(va.String(), vb.String())
		case classBool:
			return cmp.Compare(boolInt(va.Bool()), boolInt(vb.Bool()))
		}
	}

	// mixed integer kinds and floats compare by numeric value
	if ca.numeric() && cb.numeric() {
		return cmp.Compare(asFloat(va, ca), asFloat(vb, cb))
	}

	if c := cmp.Compare(va.Type().String(), vb.Type().String()); c != 0 {
		return c
	}
	return cmp.Compare(fmt.Sprint(a), fmt.Sprint(b))
}

type valueClass int

const (
	classOther valueClass = iota
	classSigned
	classUnsigned
	classFloat
	classString
	classBool
)

func (c valueClass) numeric() bool {
	return c == classSigned || c == classUnsigned || c == classFloat
}

func kindClass(k reflect.Kind) valueClass {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return classSigned
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return classUnsigned
	case reflect.Float32, reflect.Float64:
		return classFloat
	case reflect.String:
		return classString
	case reflect.Bool:
		return classBool
	default:
		return classOther
	}
}

func asFloat(v reflect.Value, c valueClass) float64 {
	switch c {
	case classSigned:
		return float64(v.Int())
	case classUnsigned:
		return float64(v.Uint())
	default:
		return v.Float()
	}
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
