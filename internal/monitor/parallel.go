package monitor

import (
	"sync"

	"go.uber.org/zap"

	"usbtrigger/internal/logging"
)

// Parallel fans in events from several sources into one stream. It
// imposes no ordering across sources and performs no deduplication;
// duplicate observations of the same press are resolved downstream by
// the classifier's debounce floor.
type Parallel struct {
	mu      sync.Mutex
	sources []Source
	started []Source
}

// NewParallel creates an empty fan-in.
func NewParallel() *Parallel {
	return &Parallel{}
}

// Attach registers a source. Must be called before StartAll.
func (p *Parallel) Attach(s Source) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sources = append(p.sources, s)
}

// StartAll starts every attached source and returns the aggregated
// stream. A source that fails to start is a permanent dropout: it is
// logged and the remaining sources continue. The aggregated channel
// closes once every running source has closed its own channel.
func (p *Parallel) StartAll() <-chan DeviceEvent {
	p.mu.Lock()
	sources := make([]Source, len(p.sources))
	copy(sources, p.sources)
	p.mu.Unlock()

	agg := make(chan DeviceEvent, 32)
	var wg sync.WaitGroup

	logging.Sugar.Infof("Starting %d input monitors in parallel", len(sources))

	for _, src := range sources {
		ch, err := src.Start()
		if err != nil {
			logging.Log.Warn("Input monitor unavailable",
				zap.String("monitor", src.Name()),
				zap.Error(err),
			)
			continue
		}

		p.mu.Lock()
		p.started = append(p.started, src)
		p.mu.Unlock()

		wg.Add(1)
		go func(name string, ch <-chan DeviceEvent) {
			defer wg.Done()
			for ev := range ch {
				agg <- ev
			}
			logging.Log.Info("Input monitor closed", zap.String("monitor", name))
		}(src.Name(), ch)
	}

	go func() {
		wg.Wait()
		close(agg)
	}()

	return agg
}

// StopAll forwards cancellation to every started source.
func (p *Parallel) StopAll() {
	p.mu.Lock()
	started := make([]Source, len(p.started))
	copy(started, p.started)
	p.mu.Unlock()

	for _, src := range started {
		src.Stop()
	}
}
