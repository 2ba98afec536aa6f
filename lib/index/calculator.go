package index

import (
	"encoding/gob"
	"reflect"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// UnitCalculator estimates the memory units of a key/value pair. Indexes
// call it with a nil key for extracted values.
type UnitCalculator interface {
	CalculateUnits(key, value any) int64
}

// UnitCalculatorFunc adapts a function to the UnitCalculator interface
type UnitCalculatorFunc func(key, value any) int64

func (f UnitCalculatorFunc) CalculateUnits(key, value any) int64 { return f(key, value) }

// Sizer is implemented by values that know their own size
type Sizer interface {
	Units() int64
}

const (
	interfaceHeader = 16 // type word + data word
	stringHeader    = 16
	sliceHeader     = 24
	// serializedFallback is used for values that can neither be sized
	// directly nor gob encoded
	serializedFallback = 64
	// typeCacheSize bounds the number of remembered size strategies
	typeCacheSize = 1024
)

type sizeStrategy int8

const (
	strategyFixed      sizeStrategy = iota // size known from the type alone
	strategyStandard                       // strings and byte slices
	strategySizer                          // value implements Sizer
	strategySerialized                     // size of the gob encoding
)

type typeSize struct {
	strategy sizeStrategy
	units    int64 // for strategyFixed
}

// Calculator estimates the units of extracted values. The strategy is
// resolved once per dynamic type and cached in an LRU cache.
//
// Thread-safety: safe for concurrent use.
type Calculator struct {
	configured UnitCalculator
	types      *lru.Cache[reflect.Type, typeSize]
}

// NewCalculator creates a calculator. If configured is not nil it is used for
// all values and the built-in strategies are bypassed.
func NewCalculator(configured UnitCalculator) *Calculator {
	types, err := lru.New[reflect.Type, typeSize](typeCacheSize)
	if err != nil {
		// only fails for a non-positive size
		panic(err)
	}
	return &Calculator{configured: configured, types: types}
}

// Units returns the estimated units of value
func (c *Calculator) Units(value any) int64 {
	if value == nil {
		return 0
	}
	if c.configured != nil {
		return c.configured.CalculateUnits(nil, value)
	}

	t := reflect.TypeOf(value)
	ts, ok := c.types.Get(t)
	if !ok {
		ts = resolveSize(t)
		c.types.Add(t, ts)
	}

	switch ts.strategy {
	case strategyFixed:
		return ts.units
	case strategyStandard:
		switch v := value.(type) {
		case string:
			return interfaceHeader + stringHeader + align8(int64(len(v)))
		case []byte:
			return interfaceHeader + sliceHeader + align8(int64(cap(v)))
		}
		rv := reflect.ValueOf(value)
		if rv.Kind() == reflect.String {
			return interfaceHeader + stringHeader + align8(int64(rv.Len()))
		}
		return interfaceHeader + sliceHeader + align8(int64(rv.Cap()))
	case strategySizer:
		return interfaceHeader + value.(Sizer).Units()
	default:
		return interfaceHeader + serializedUnits(value)
	}
}

var (
	timeType  = reflect.TypeOf(time.Time{})
	sizerType = reflect.TypeOf((*Sizer)(nil)).Elem()
)

func resolveSize(t reflect.Type) typeSize {
	switch {
	case t.Implements(sizerType):
		return typeSize{strategy: strategySizer}
	case t == timeType:
		return typeSize{strategy: strategyFixed, units: interfaceHeader + align8(int64(t.Size()))}
	case t.Kind() == reflect.String:
		return typeSize{strategy: strategyStandard}
	case t.Kind() == reflect.Slice && t.Elem().Kind() == reflect.Uint8:
		return typeSize{strategy: strategyStandard}
	case pointerFree(t):
		return typeSize{strategy: strategyFixed, units: interfaceHeader + align8(int64(t.Size()))}
	default:
		return typeSize{strategy: strategySerialized}
	}
}

// pointerFree reports whether the size of t is fully described by t.Size()
func pointerFree(t reflect.Type) bool {
	switch t.Kind() {
	case reflect.Bool,
		reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr,
		reflect.Float32, reflect.Float64, reflect.Complex64, reflect.Complex128:
		return true
	case reflect.Array:
		return pointerFree(t.Elem())
	case reflect.Struct:
		for i := 0; i < t.NumField(); i++ {
			if !pointerFree(t.Field(i).Type) {
				return false
			}
		}
		return true
	default:
		return false
	}
}

type countingWriter int64

func (w *countingWriter) Write(p []byte) (int, error) {
	*w += countingWriter(len(p))
	return len(p), nil
}

func serializedUnits(value any) (units int64) {
	defer func() {
		// gob panics for some unsupported types instead of returning an error
		if r := recover(); r != nil {
			units = serializedFallback
		}
	}()
	var w countingWriter
	if err := gob.NewEncoder(&w).Encode(value); err != nil {
		return serializedFallback
	}
	return align8(int64(w))
}

func align8(n int64) int64 {
	return (n + 7) &^ 7
}
