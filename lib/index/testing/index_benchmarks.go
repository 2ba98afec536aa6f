package testing

import (
	"fmt"
	"testing"

	"github.com/ValentinKolb/dMap/lib/index"
)

// RunMapIndexBenchmarks runs all benchmarks for a MapIndex implementation
func RunMapIndexBenchmarks(b *testing.B, name string, factory IndexFactory) {
	b.Run(name, func(b *testing.B) {
		b.Run("Insert", func(b *testing.B) {
			benchmarkInsert(b, mustCreate(b, factory, identity()))
		})

		b.Run("InsertOrdered", func(b *testing.B) {
			benchmarkInsert(b, mustCreate(b, factory, identity(), index.WithOrdered(nil)))
		})

		b.Run("Update", func(b *testing.B) {
			benchmarkUpdate(b, mustCreate(b, factory, identity()))
		})

		b.Run("UpdateMultiValue", func(b *testing.B) {
			benchmarkUpdateMultiValue(b, mustCreate(b, factory, identity()))
		})

		b.Run("Query", func(b *testing.B) {
			benchmarkQuery(b, mustCreate(b, factory, identity()))
		})
	})
}

// --------------------------------------------------------------------------
// Benchmark functions
// --------------------------------------------------------------------------

func benchmarkInsert(b *testing.B, idx index.MapIndex[int, any]) {
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.Insert(index.NewEntry[int, any](i, i%1000))
	}
}

func benchmarkUpdate(b *testing.B, idx index.MapIndex[int, any]) {
	const keys = 10000
	for i := 0; i < keys; i++ {
		idx.Insert(index.NewEntry[int, any](i, i%100))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := i % keys
		old := (key + i/keys) % 100
		_ = idx.Update(index.NewUpdateEntry[int, any](key, (old+1)%100, old))
	}
}

func benchmarkUpdateMultiValue(b *testing.B, idx index.MapIndex[int, any]) {
	tags := func(n int) []string {
		return []string{fmt.Sprintf("t%d", n%10), fmt.Sprintf("t%d", n%7), fmt.Sprintf("t%d", n%3)}
	}
	const keys = 1000
	for i := 0; i < keys; i++ {
		idx.Insert(index.NewEntry[int, any](i, tags(i)))
	}

	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := i % keys
		_ = idx.Update(index.NewEntry[int, any](key, tags(key+i+1)))
	}
}

func benchmarkQuery(b *testing.B, idx index.MapIndex[int, any]) {
	for i := 0; i < 10000; i++ {
		idx.Insert(index.NewEntry[int, any](i, i%100))
	}

	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			_ = idx.Contents().Get(i % 100)
			i++
		}
	})
}
