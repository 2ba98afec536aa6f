// Package cmd implements the command-line interface of dMap. The commands
// exercise the library packages on local data and are meant for exploring
// and benchmarking them.
//
// The package is organized into several subpackages:
//
//   - index: Load a CSV file into an observable map and print its value index
//   - sparse: Insert and remove elements of a sparse array
//   - perf: Benchmarks of the sparse array, the index, listeners and the map
//   - util: Shared utilities for command-line processing and configuration (internal use)
//
// See dmap -help for a list of all commands.
package cmd
