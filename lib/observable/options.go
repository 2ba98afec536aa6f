package observable

import (
	"github.com/VictoriaMetrics/metrics"
	gometrics "github.com/rcrowley/go-metrics"
)

// DefaultBuildAttempts is the number of index build attempts before AddIndex
// gives up
const DefaultBuildAttempts = 4

// Options configures a Map
type Options struct {
	Name          string             // Name of the map, used as metrics label (empty = random uuid)
	Presize       int                // Expected number of entries (0 = grow on demand)
	BuildAttempts int                // Attempts to build an index under concurrent writes
	AsyncEvents   bool               // Dispatch events on a background goroutine
	StrictEvents  bool               // Stop dispatching an event at the first listener error
	Metrics       *metrics.Set       // Set for operation metrics (nil = new set)
	Registry      gometrics.Registry // Registry for listener dispatch metrics (nil = new registry)
}

// DefaultOptions returns the default map options
func DefaultOptions() *Options {
	return &Options{
		BuildAttempts: DefaultBuildAttempts,
	}
}

// Option modifies Options
type Option func(*Options)

func WithName(name string) Option {
	return func(o *Options) { o.Name = name }
}

func WithPresize(n int) Option {
	return func(o *Options) { o.Presize = n }
}

// WithBuildAttempts sets the index build attempts, values < 1 are ignored
func WithBuildAttempts(n int) Option {
	return func(o *Options) {
		if n > 0 {
			o.BuildAttempts = n
		}
	}
}

// WithAsyncEvents dispatches events on a background goroutine. Events of a
// key are delivered in the order of its mutations.
func WithAsyncEvents() Option {
	return func(o *Options) { o.AsyncEvents = true }
}

func WithStrictEvents() Option {
	return func(o *Options) { o.StrictEvents = true }
}

func WithMetricsSet(set *metrics.Set) Option {
	return func(o *Options) { o.Metrics = set }
}

func WithListenerRegistry(registry gometrics.Registry) Option {
	return func(o *Options) { o.Registry = registry }
}
