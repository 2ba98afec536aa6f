package common

import (
	"fmt"
	"strings"
)

// --------------------------------------------------------------------------
// Configuration struct
// --------------------------------------------------------------------------

// Config holds the parameters shared by the dMap command line tools.
// The library packages are configured with functional options instead, Config
// is translated into those options by the commands.
type Config struct {
	// Logging configuration
	LogLevel string

	// Index settings
	Ordered          bool   // keep the inverse index sorted by the extracted value
	SplitCollections bool   // fan out multi-valued extractions into one mapping per element
	SplitSeparator   string // separator used by the CLI to split string values
	ForwardIndex     bool   // maintain the key -> extracted value map

	// Map settings
	Presize       int  // expected number of entries of the observable map (0 = grow on demand)
	BuildAttempts int  // attempts to build an index while the map is modified concurrently
	AsyncEvents   bool // deliver map events on a background goroutine
	StrictEvents  bool // abort event delivery on the first listener error
}

// DefaultConfig returns the default configuration
func DefaultConfig() Config {
	return Config{
		LogLevel:       "info",
		SplitSeparator: "|",
		ForwardIndex:   true,
		BuildAttempts:  4,
	}
}

// String returns a formatted string representation of the configuration
func (c *Config) String() string {
	var sb strings.Builder

	// Create helper functions for consistent formatting
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}

	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}

	// Logging configuration
	addSection("Logging")
	addField("Log Level", c.LogLevel)

	// Index
	addSection("Index")
	addField("Ordered", fmt.Sprintf("%t", c.Ordered))
	addField("Split Collections", fmt.Sprintf("%t", c.SplitCollections))
	if c.SplitCollections {
		addField("Split Separator", fmt.Sprintf("%q", c.SplitSeparator))
	}
	addField("Forward Index", fmt.Sprintf("%t", c.ForwardIndex))

	// Map
	addSection("Map")
	presize := "on demand"
	if c.Presize > 0 {
		presize = fmt.Sprintf("%d", c.Presize)
	}
	addField("Presize", presize)
	addField("Build Attempts", fmt.Sprintf("%d", c.BuildAttempts))
	addField("Async Events", fmt.Sprintf("%t", c.AsyncEvents))
	addField("Strict Events", fmt.Sprintf("%t", c.StrictEvents))

	return sb.String()
}
