package index

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"github.com/ValentinKolb/dMap/cmd/util"
	"github.com/ValentinKolb/dMap/lib/common"
	"github.com/ValentinKolb/dMap/lib/listener"
	"github.com/ValentinKolb/dMap/lib/observable"
	"github.com/VictoriaMetrics/metrics"
	"github.com/lni/dragonboat/v4/logger"
	gometrics "github.com/rcrowley/go-metrics"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"io"
	"os"
	"strings"
)

var (
	log       = logger.GetLogger("cmd")
	indexConf *common.Config

	// IndexCmd loads a CSV file into an observable map and indexes its values
	IndexCmd = &cobra.Command{
		Use:   "index",
		Short: "Build a value index over a CSV file",
		Long: `Load key,value rows of a CSV file into an observable map, build an index over the values
and print the inverse index (value -> keys) together with statistics about the index.
Later rows overwrite earlier rows with the same key. The format of the environment
variables is DMAP_<flag> (e.g. DMAP_SPLIT=true)`,
		Example: "dmap index --file data.csv --split --ordered --metrics",
		PreRunE: func(cmd *cobra.Command, _ []string) (err error) {
			indexConf, err = util.Setup(cmd)
			return err
		},
		RunE: run,
	}
)

func init() {
	util.SetupMapFlags(IndexCmd)

	key := "file"
	IndexCmd.Flags().String(key, "", util.WrapString("Path to the CSV file with key,value rows (- reads stdin)"))
	_ = IndexCmd.MarkFlagRequired(key)

	key = "header"
	IndexCmd.Flags().Bool(key, false, util.WrapString("Skip the first row of the CSV file"))

	key = "metrics"
	IndexCmd.Flags().Bool(key, false, util.WrapString("Print the map metrics in the Prometheus text format and the listener dispatch metrics"))

	key = "json"
	IndexCmd.Flags().Bool(key, false, util.WrapString("Print the map info as JSON"))
}

func run(_ *cobra.Command, _ []string) error {
	set := metrics.NewSet()
	registry := gometrics.NewRegistry()

	opts := append(util.MapOptions(indexConf),
		observable.WithName("cli"),
		observable.WithMetricsSet(set),
		observable.WithListenerRegistry(registry),
	)
	m := observable.New[string, string](opts...)
	defer m.Close()

	// count the events the map emits while the file is loaded
	var inserted, updated int
	m.Listeners().AddListener(listener.NewListener(func(evt *listener.MapEvent[string, string]) error {
		switch evt.ID {
		case listener.Inserted:
			inserted++
		case listener.Updated:
			updated++
		}
		return nil
	}), nil, true)

	// the index is added before loading so it is maintained incrementally
	if _, err := m.AddIndex("value", util.SplitExtractor(indexConf), util.IndexOptions(indexConf)...); err != nil {
		return fmt.Errorf("failed to create index: %v", err)
	}

	rows, err := load(m, viper.GetString("file"), viper.GetBool("header"))
	if err != nil {
		return err
	}
	m.Flush()
	log.Debugf("loaded %d rows (%d inserted, %d updated)", rows, inserted, updated)

	idx, _ := m.Index("value")

	fmt.Printf("Loaded %d rows into %d entries\n", rows, m.Len())
	fmt.Println()
	fmt.Println("Index:")
	idx.Contents().Range(func(value any, keys []string) bool {
		fmt.Printf("  %-24v -> %s\n", value, strings.Join(keys, ", "))
		return true
	})

	info := m.Info()
	fmt.Println()
	if viper.GetBool("json") {
		out, err := json.MarshalIndent(info, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
	} else {
		ii := info.Indexes["value"]
		fmt.Println("Info:")
		fmt.Printf("  %-22s: %d\n", "Entries", info.Entries)
		fmt.Printf("  %-22s: %d\n", "Indexed Keys", ii.Keys)
		fmt.Printf("  %-22s: %d\n", "Distinct Values", ii.Values)
		fmt.Printf("  %-22s: %d\n", "Excluded Keys", ii.Excluded)
		fmt.Printf("  %-22s: %d\n", "Units", ii.Units)
		fmt.Printf("  %-22s: %t\n", "Ordered", ii.Ordered)
		fmt.Printf("  %-22s: %t\n", "Partial", ii.Partial)
		fmt.Printf("  %-22s: %d\n", "Key Set Median", ii.KeySetMedian)
		fmt.Printf("  %-22s: %s\n", "Listener Plan", info.ListenerPlan)
	}

	if viper.GetBool("metrics") {
		fmt.Println()
		fmt.Println("Metrics:")
		set.WritePrometheus(os.Stdout)
		gometrics.WriteOnce(registry, os.Stdout)
	}

	return nil
}

// load reads the CSV file and puts every row into the map. It returns the
// number of rows read.
func load(m *observable.Map[string, string], path string, header bool) (int, error) {
	var r io.Reader
	if path == "-" {
		r = os.Stdin
	} else {
		file, err := os.Open(path)
		if err != nil {
			return 0, fmt.Errorf("failed to open %s: %v", path, err)
		}
		defer file.Close()
		r = file
	}

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.TrimLeadingSpace = true

	rows := 0
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return rows, fmt.Errorf("failed to read %s: %v", path, err)
		}
		if header {
			header = false
			continue
		}
		if len(record) < 2 {
			log.Warningf("skipping row %d: expected key,value but got %d fields", rows+1, len(record))
			continue
		}
		if _, _, err := m.Put(record[0], record[1]); err != nil {
			return rows, err
		}
		rows++
	}
	return rows, nil
}
