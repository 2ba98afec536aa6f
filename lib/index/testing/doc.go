// Package testing provides a standardised test suite and benchmarks for
// implementations of the index.MapIndex interface.
//
// The suite only uses the public interface, so it validates the contract of
// an index (consistency of forward and inverse index, partial indexes, split
// collections, ordering) independently of the implementation.
//
// Example usage:
//
//	factory := func(ex index.Extractor[int, any], opts ...index.Option) (index.MapIndex[int, any], error) {
//		return NewMyIndex(ex, opts...)
//	}
//
//	// Running the standard test suite
//	testing.RunMapIndexTests(t, "MyIndex", factory)
//
//	// Running performance benchmarks
//	testing.RunMapIndexBenchmarks(b, "MyIndex", factory)
package testing
