package cmd

import (
	"fmt"
	"github.com/ValentinKolb/dMap/cmd/index"
	"github.com/ValentinKolb/dMap/cmd/perf"
	"github.com/ValentinKolb/dMap/cmd/sparse"
	"github.com/ValentinKolb/dMap/cmd/util"
	"github.com/spf13/cobra"
	"os"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "dmap",
		Short: "observable map with secondary indexes",
		Long: fmt.Sprintf(`dMap (v%s)

An in-memory observable map library written in Go, with inverted
value indexes, map listeners and a sparse array.`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of dMap",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("dMap v%s\n", Version)
		},
	}
)

func init() {
	// initialize viper
	cobra.OnInitialize(util.InitConfig)

	// Add Commands
	RootCmd.AddCommand(index.IndexCmd)
	RootCmd.AddCommand(sparse.SparseCmd)
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)

	// Add Flags
	key := "log-level"
	RootCmd.PersistentFlags().String(key, "info", util.WrapString("LogLevel is the level at which logs will be output (debug, info, warn, error)"))
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	if err := RootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
