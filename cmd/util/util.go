package util

import (
	"fmt"
	"github.com/ValentinKolb/dMap/lib/common"
	"github.com/ValentinKolb/dMap/lib/index"
	"github.com/ValentinKolb/dMap/lib/observable"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"strconv"
	"strings"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// SetupMapFlags adds the flags that configure the observable map and its
// indexes to a command
func SetupMapFlags(cmd *cobra.Command) {
	def := common.DefaultConfig()

	key := "ordered"
	cmd.PersistentFlags().Bool(key, def.Ordered, WrapString("Keep the inverse index sorted by the extracted value"))

	key = "split"
	cmd.PersistentFlags().Bool(key, def.SplitCollections, WrapString("Split values into several index entries (see --separator)"))

	key = "separator"
	cmd.PersistentFlags().String(key, def.SplitSeparator, WrapString("Separator used to split values if --split is set"))

	key = "forward-index"
	cmd.PersistentFlags().Bool(key, def.ForwardIndex, WrapString("Maintain the key to value map of the index. Without it, updates of unknown keys require a full scan"))

	key = "presize"
	cmd.PersistentFlags().Int(key, def.Presize, WrapString("Expected number of entries of the map (0 = grow on demand)"))

	key = "build-attempts"
	cmd.PersistentFlags().Int(key, def.BuildAttempts, WrapString("How often an index build is retried if the map is modified concurrently"))

	key = "async-events"
	cmd.PersistentFlags().Bool(key, def.AsyncEvents, WrapString("Deliver map events on a background goroutine"))

	key = "strict-events"
	cmd.PersistentFlags().Bool(key, def.StrictEvents, WrapString("Abort event delivery at the first listener error"))
}

// InitConfig loads .env files and initializes viper to read DMAP_* variables
func InitConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("dmap")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetConfig reads the configuration from viper
func GetConfig() *common.Config {
	conf := common.DefaultConfig()
	if viper.IsSet("log-level") {
		conf.LogLevel = viper.GetString("log-level")
	}
	conf.Ordered = viper.GetBool("ordered")
	conf.SplitCollections = viper.GetBool("split")
	if sep := viper.GetString("separator"); sep != "" {
		conf.SplitSeparator = sep
	}
	if viper.IsSet("forward-index") {
		conf.ForwardIndex = viper.GetBool("forward-index")
	}
	conf.Presize = viper.GetInt("presize")
	if viper.IsSet("build-attempts") {
		conf.BuildAttempts = viper.GetInt("build-attempts")
	}
	conf.AsyncEvents = viper.GetBool("async-events")
	conf.StrictEvents = viper.GetBool("strict-events")
	return &conf
}

// MapOptions translates the configuration into observable map options
func MapOptions(conf *common.Config) []observable.Option {
	opts := []observable.Option{
		observable.WithPresize(conf.Presize),
		observable.WithBuildAttempts(conf.BuildAttempts),
	}
	if conf.AsyncEvents {
		opts = append(opts, observable.WithAsyncEvents())
	}
	if conf.StrictEvents {
		opts = append(opts, observable.WithStrictEvents())
	}
	return opts
}

// IndexOptions translates the configuration into index options
func IndexOptions(conf *common.Config) []index.Option {
	opts := []index.Option{index.WithSplitCollections(conf.SplitCollections)}
	if conf.Ordered {
		opts = append(opts, index.WithOrdered(nil))
	}
	if !conf.ForwardIndex {
		opts = append(opts, index.WithoutForwardIndex())
	}
	return opts
}

// SplitExtractor returns an extractor for string values. If the configuration
// enables splitting, the value is split at the separator and the parts are
// indexed individually.
func SplitExtractor(conf *common.Config) index.Extractor[string, string] {
	split := conf.SplitCollections
	sep := conf.SplitSeparator
	return index.ValueFunc[string, string](func(v string) (any, error) {
		if !split {
			return v, nil
		}
		parts := strings.Split(v, sep)
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out, nil
	})
}

// ParseInt64List parses a comma separated list of integers (e.g. "4,2,6")
func ParseInt64List(s string) ([]int64, error) {
	var out []int64
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		v, err := strconv.ParseInt(part, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid index %q: %v", part, err)
		}
		out = append(out, v)
	}
	return out, nil
}

// ParseRange parses a half open range in the format FROM:TO (e.g. "3:7")
func ParseRange(s string) (int64, int64, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("invalid range format: %s (expected FROM:TO)", s)
	}
	from, err := strconv.ParseInt(strings.TrimSpace(parts[0]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range start %s: %v", parts[0], err)
	}
	to, err := strconv.ParseInt(strings.TrimSpace(parts[1]), 10, 64)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid range end %s: %v", parts[1], err)
	}
	if to < from {
		return 0, 0, fmt.Errorf("invalid range %s: end is before start", s)
	}
	return from, to, nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// Setup binds the flags of a command, reads the configuration and
// initializes the loggers. It is used as PreRunE of the subcommands.
func Setup(cmd *cobra.Command) (*common.Config, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	conf := GetConfig()
	if err := common.InitLoggers(*conf); err != nil {
		return nil, err
	}
	return conf, nil
}
