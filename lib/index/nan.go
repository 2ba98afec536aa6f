package index

import (
	"math"
	"reflect"
)

// nanValue replaces a floating point or complex NaN in the index. NaN is not
// equal to itself, so it can neither be found as a map key nor be compared
// for equality. The original type and the non-NaN part of a complex number
// are kept, so different NaN values stay distinct.
type nanValue struct {
	typ          reflect.Type
	re, im       float64 // 0 where the part is NaN
	reNaN, imNaN bool
}

func (n nanValue) String() string {
	return "NaN"
}

// value rebuilds the NaN in its original type
func (n nanValue) value() any {
	re, im := n.re, n.im
	if n.reNaN {
		re = math.NaN()
	}
	if n.imNaN {
		im = math.NaN()
	}
	switch n.typ.Kind() {
	case reflect.Complex64, reflect.Complex128:
		return reflect.ValueOf(complex(re, im)).Convert(n.typ).Interface()
	default:
		return reflect.ValueOf(re).Convert(n.typ).Interface()
	}
}

// canonical replaces a NaN by a nanValue and returns other values unchanged
func canonical(v any) any {
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		if math.IsNaN(rv.Float()) {
			return nanValue{typ: rv.Type(), reNaN: true}
		}
	case reflect.Complex64, reflect.Complex128:
		c := rv.Complex()
		re, im := real(c), imag(c)
		if math.IsNaN(re) || math.IsNaN(im) {
			n := nanValue{typ: rv.Type(), reNaN: math.IsNaN(re), imNaN: math.IsNaN(im)}
			if !n.reNaN {
				n.re = re
			}
			if !n.imNaN {
				n.im = im
			}
			return n
		}
	}
	return v
}

// external reverts canonical
func external(v any) any {
	if n, ok := v.(nanValue); ok {
		return n.value()
	}
	return v
}

// containsNaN reports whether a comparable composite value (array, struct or
// interface) holds a NaN somewhere. Such values never equal themselves.
func containsNaN(rv reflect.Value) bool {
	switch rv.Kind() {
	case reflect.Float32, reflect.Float64:
		return math.IsNaN(rv.Float())
	case reflect.Complex64, reflect.Complex128:
		c := rv.Complex()
		return math.IsNaN(real(c)) || math.IsNaN(imag(c))
	case reflect.Array:
		for i := 0; i < rv.Len(); i++ {
			if containsNaN(rv.Index(i)) {
				return true
			}
		}
	case reflect.Struct:
		for i := 0; i < rv.NumField(); i++ {
			if containsNaN(rv.Field(i)) {
				return true
			}
		}
	case reflect.Interface:
		if !rv.IsNil() {
			return containsNaN(rv.Elem())
		}
	}
	return false
}
