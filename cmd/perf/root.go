package perf

import (
	"encoding/csv"
	"fmt"
	"github.com/ValentinKolb/dMap/cmd/util"
	"github.com/ValentinKolb/dMap/lib/common"
	"github.com/ValentinKolb/dMap/lib/index"
	"github.com/ValentinKolb/dMap/lib/listener"
	"github.com/ValentinKolb/dMap/lib/observable"
	"github.com/ValentinKolb/dMap/lib/sparse"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"math"
	"os"
	"slices"
	"strconv"
	"strings"
	"testing"
	"time"
)

var (
	// PerfCmd runs micro benchmarks of the dMap data structures
	PerfCmd = &cobra.Command{
		Use:   "perf",
		Short: "Performance testing tool for the dMap data structures",
		Long: `Benchmark the sparse array, the value index, listener dispatch and the observable
map with testing.Benchmark and print the results. The --ops flag sets how many
distinct keys (or array indices) the benchmarks operate on.`,
		Example: "dmap perf --ops 10000 --skip map-put --csv results.csv",
		PreRunE: processPerfConfig,
		RunE:    run,
	}
	perfConf       *common.Config
	perfOps        = 1000
	perfNumThreads = 10
	perfSkip       = make([]string, 0)
)

func init() {
	util.SetupMapFlags(PerfCmd)

	key := "ops"
	PerfCmd.Flags().Int(key, 1000, util.WrapString("How many different keys to use for the tests"))
	key = "threads"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of goroutines per CPU for the parallel benchmarks"))
	key = "skip"
	PerfCmd.Flags().String(key, "", util.WrapString("Benchmarks to skip (comma separated - e.g. sparse-set,index-query)"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) (err error) {
	if perfConf, err = util.Setup(cmd); err != nil {
		return err
	}

	perfOps = viper.GetInt("ops")
	if perfOps < 1 {
		return fmt.Errorf("invalid number of ops: %d", perfOps)
	}
	perfNumThreads = viper.GetInt("threads")
	perfSkip = strings.Split(viper.GetString("skip"), ",")
	return nil
}

// benchmark is a single named benchmark of the perf command
type benchmark struct {
	name string
	fn   func(b *testing.B)
}

func run(_ *cobra.Command, _ []string) error {
	fmt.Println("Performance testing tool for dMap")

	fmt.Println()
	fmt.Println("Configuration:")
	fmt.Println(perfConf.String())
	fmt.Printf("Ops: %d\n", perfOps)
	fmt.Printf("Threads: %d\n", perfNumThreads)
	fmt.Println()

	fmt.Println("starting tests...")

	benchmarks := []benchmark{
		{"sparse-set", benchSparseSet},
		{"sparse-get", benchSparseGet},
		{"sparse-ceiling", benchSparseCeiling},
		{"sparse-remove-range", benchSparseRemoveRange},
		{"index-insert", benchIndexInsert},
		{"index-update", benchIndexUpdate},
		{"index-query", benchIndexQuery},
		{"listener-dispatch", benchListenerDispatch},
		{"listener-key-dispatch", benchListenerKeyDispatch},
		{"map-put", benchMapPut},
		{"map-put-indexed", benchMapPutIndexed},
	}

	results := make(map[string]testing.BenchmarkResult)
	order := make([]string, 0, len(benchmarks))
	for _, bm := range benchmarks {
		var result testing.BenchmarkResult
		if !shouldSkip(bm.name) {
			result = testing.Benchmark(bm.fn)
		}
		results[bm.name] = result
		order = append(order, bm.name)
		printResult(bm.name, result)
	}

	// Write results to csv if specified
	if csvPath := viper.GetString("csv"); csvPath != "" {
		fmt.Printf("\nExporting results to CSV: %s\n", csvPath)
		if err := writeResultsToCSV(csvPath, order, results); err != nil {
			return fmt.Errorf("failed to export results to CSV: %v", err)
		}
		fmt.Println("Export complete")
	}

	return nil
}

// --------------------------------------------------------------------------
// Sparse array
// --------------------------------------------------------------------------

// filledArray returns an array with perfOps elements at every second index
func filledArray() *sparse.Array[int] {
	arr := sparse.New[int]()
	for i := 0; i < perfOps; i++ {
		arr.Set(int64(i*2), i)
	}
	return arr
}

func benchSparseSet(b *testing.B) {
	arr := sparse.New[int]()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		arr.Set(int64(i%perfOps), i)
	}
}

func benchSparseGet(b *testing.B) {
	arr := filledArray()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		arr.Get(int64((i % perfOps) * 2))
	}
}

func benchSparseCeiling(b *testing.B) {
	arr := filledArray()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		// odd indices never exist, the lookup has to find the successor
		arr.CeilingIndex(int64((i%perfOps)*2 + 1))
	}
}

func benchSparseRemoveRange(b *testing.B) {
	arr := filledArray()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		from := int64((i % perfOps) * 2)
		arr.RemoveRange(from, from+8)
		if arr.Len() < perfOps/2 {
			b.StopTimer()
			arr = filledArray()
			b.StartTimer()
		}
	}
}

// --------------------------------------------------------------------------
// Index
// --------------------------------------------------------------------------

func newIndex(b *testing.B) *index.SimpleIndex[string, string] {
	idx, err := index.New[string, string](util.SplitExtractor(perfConf), util.IndexOptions(perfConf)...)
	if err != nil {
		b.Fatal(err)
	}
	return idx
}

func benchIndexInsert(b *testing.B) {
	getKey := keys("index-insert")
	idx := newIndex(b)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		idx.Insert(index.NewEntry(getKey(i), value(i)))
	}
}

func benchIndexUpdate(b *testing.B) {
	getKey := keys("index-update")
	idx := newIndex(b)
	for i := 0; i < perfOps; i++ {
		idx.Insert(index.NewEntry(getKey(i), value(i)))
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		key := getKey(i)
		if err := idx.Update(index.NewUpdateEntry(key, value(i+1), value(i))); err != nil {
			b.Fatal(err)
		}
	}
}

func benchIndexQuery(b *testing.B) {
	getKey := keys("index-query")
	idx := newIndex(b)
	for i := 0; i < perfOps; i++ {
		idx.Insert(index.NewEntry(getKey(i), value(i)))
	}
	contents := idx.Contents()
	b.ResetTimer()
	b.SetParallelism(perfNumThreads)
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			contents.Get(fmt.Sprintf("v%d", counter%16))
			counter++
		}
	})
}

// --------------------------------------------------------------------------
// Listener
// --------------------------------------------------------------------------

func benchListenerDispatch(b *testing.B) {
	getKey := keys("listener")
	support := listener.NewSupport[string, string](nil)
	for i := 0; i < 8; i++ {
		support.AddListener(listener.NewListener(func(*listener.MapEvent[string, string]) error {
			return nil
		}), nil, true)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		evt := listener.NewInsertEvent("perf", getKey(i), "value")
		if err := support.FireEvent(evt, false); err != nil {
			b.Fatal(err)
		}
	}
}

func benchListenerKeyDispatch(b *testing.B) {
	getKey := keys("listener-key")
	support := listener.NewSupport[string, string](nil)
	for i := 0; i < perfOps; i++ {
		support.AddKeyListener(listener.NewListener(func(*listener.MapEvent[string, string]) error {
			return nil
		}), getKey(i), true)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		evt := listener.NewInsertEvent("perf", getKey(i), "value")
		if err := support.FireEvent(evt, false); err != nil {
			b.Fatal(err)
		}
	}
}

// --------------------------------------------------------------------------
// Observable map
// --------------------------------------------------------------------------

func benchMapPut(b *testing.B) {
	runMapPut(b, false)
}

func benchMapPutIndexed(b *testing.B) {
	runMapPut(b, true)
}

func runMapPut(b *testing.B, indexed bool) {
	getKey := keys("map")
	m := observable.New[string, string](util.MapOptions(perfConf)...)
	b.Cleanup(func() { _ = m.Close() })

	if indexed {
		if _, err := m.AddIndex("value", util.SplitExtractor(perfConf), util.IndexOptions(perfConf)...); err != nil {
			b.Fatal(err)
		}
	}

	b.SetParallelism(perfNumThreads)
	b.ResetTimer()
	b.RunParallel(func(pb *testing.PB) {
		counter := 0
		for pb.Next() {
			if _, _, err := m.Put(getKey(counter), value(counter)); err != nil {
				b.Error(err)
				return
			}
			counter++
		}
	})
	b.StopTimer()
	m.Flush()
}

// --------------------------------------------------------------------------
// Helper
// --------------------------------------------------------------------------

func shouldSkip(test string) bool {
	return slices.Contains(perfSkip, test)
}

// keys creates perfOps test keys and returns a function to get a key by
// counter (with wraparound)
func keys(prefix string) func(int) string {
	all := make([]string, perfOps)
	for i := range all {
		all[i] = fmt.Sprintf("__test-%s-%d", prefix, i)
	}
	return func(i int) string {
		return all[i%perfOps]
	}
}

// value returns one of 16 distinct values. With --split every value consists
// of two parts, one of them shared by half of all values.
func value(i int) string {
	if perfConf != nil && perfConf.SplitCollections {
		return fmt.Sprintf("v%d%sg%d", i%16, perfConf.SplitSeparator, i%2)
	}
	return fmt.Sprintf("v%d", i%16)
}

// printResult prints the result of a benchmark test in a formatted way
func printResult(test string, result testing.BenchmarkResult) {
	if result.NsPerOp() == 0 {
		fmt.Printf("%-24sskipped\n", test)
		return
	}

	nsPerOp := math.Max(float64(result.NsPerOp()), 1) // prevent division by zero
	opsPerSec := 1.0 / (nsPerOp / 1e9)

	fmt.Printf("%-24s%.0fns/op (%s/op)\t%.0f ops/sec\t%d allocs/op\n",
		test, nsPerOp, time.Duration(nsPerOp), opsPerSec, result.AllocsPerOp())
}

// writeResultsToCSV writes benchmark results to a CSV file
func writeResultsToCSV(csvPath string, order []string, results map[string]testing.BenchmarkResult) error {
	file, err := os.Create(csvPath)
	if err != nil {
		return fmt.Errorf("failed to create CSV file: %v", err)
	}
	defer file.Close()

	writer := csv.NewWriter(file)
	defer writer.Flush()

	header := []string{
		"Test", "NsPerOp", "DurationPerOp", "OpsPerSec", "AllocsPerOp", "Skipped",
		"Ops", "Threads", "Ordered", "Split", "ForwardIndex", "AsyncEvents",
	}
	if err := writer.Write(header); err != nil {
		return fmt.Errorf("failed to write CSV header: %v", err)
	}

	for _, test := range order {
		result := results[test]

		var nsPerOp, opsPerSec float64
		skipped := "true"
		if result.NsPerOp() != 0 {
			skipped = "false"
			nsPerOp = math.Max(float64(result.NsPerOp()), 1)
			opsPerSec = 1.0 / (nsPerOp / 1e9)
		}

		row := []string{
			test,
			fmt.Sprintf("%.0f", nsPerOp),
			time.Duration(nsPerOp).String(),
			fmt.Sprintf("%.0f", opsPerSec),
			strconv.FormatInt(result.AllocsPerOp(), 10),
			skipped,
			strconv.Itoa(perfOps),
			strconv.Itoa(perfNumThreads),
			strconv.FormatBool(perfConf.Ordered),
			strconv.FormatBool(perfConf.SplitCollections),
			strconv.FormatBool(perfConf.ForwardIndex),
			strconv.FormatBool(perfConf.AsyncEvents),
		}

		if err := writer.Write(row); err != nil {
			return fmt.Errorf("failed to write row for test %s: %v", test, err)
		}
	}

	return nil
}
