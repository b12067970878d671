package collector

import (
	"context"
	"fmt"
	"sync"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/aegis-monitor/aegis/internal/util/safego"
)

type entry struct {
	collector Collector
	required  bool
}

// Registry manages all registered collectors and orchestrates concurrent
// collection. Required collectors must all succeed for a gather to count;
// optional ones are dropped from the results when they fail.
type Registry struct {
	entries []entry
	logger  *zap.Logger
}

// NewRegistry creates a new collector registry with the given logger.
func NewRegistry(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		entries: make([]entry, 0),
		logger:  logger,
	}
}

// Register adds an optional collector if it's available on the current platform.
func (r *Registry) Register(c Collector) {
	r.add(c, false)
}

// RegisterRequired adds a collector whose failure fails the whole gather.
func (r *Registry) RegisterRequired(c Collector) {
	r.add(c, true)
}

func (r *Registry) add(c Collector, required bool) {
	if !c.IsAvailable() {
		r.logger.Info("Collector not available, skipping", zap.String("name", c.Name()))
		return
	}
	r.entries = append(r.entries, entry{collector: c, required: required})
	r.logger.Debug("Registered collector",
		zap.String("name", c.Name()),
		zap.Bool("required", required))
}

// CollectAll runs all registered collectors concurrently and returns a map
// of collector name -> result data. Failed optional collectors are logged at
// debug level and left out of the map. Failures of required collectors are
// combined into the returned error; the partial map is still returned.
func (r *Registry) CollectAll(ctx context.Context) (map[string]interface{}, error) {
	results := make(map[string]interface{}, len(r.entries))
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		errs error
	)

	for _, e := range r.entries {
		wg.Add(1)
		go func(e entry) {
			defer wg.Done()

			var (
				data interface{}
				err  error
			)
			if perr := safego.Call(func() { data, err = e.collector.Collect(ctx) }); perr != nil {
				err = perr
			}

			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				if e.required {
					errs = multierr.Append(errs, fmt.Errorf("%s: %w", e.collector.Name(), err))
					return
				}
				r.logger.Debug("Optional metric unavailable",
					zap.String("collector", e.collector.Name()),
					zap.Error(err))
				return
			}
			results[e.collector.Name()] = data
		}(e)
	}

	wg.Wait()
	return results, errs
}
