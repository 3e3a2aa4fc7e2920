package adapter

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/draymont/passage-core/internal/infrastructure/logging"
)

// defaultProbeTimeout bounds a health probe when none is configured.
const defaultProbeTimeout = 5 * time.Second

// Constructor builds a fresh adapter instance for a vendor type.
type Constructor func() DeviceAdapter

// FactoryConfig controls adapter selection behaviour.
type FactoryConfig struct {
	// Preferred is the adapter type used when nothing narrower is requested.
	Preferred Type

	// FailoverOrder lists candidate types tried in order when the
	// preferred adapter is unhealthy.
	FailoverOrder []Type

	// ProbeTimeout bounds each health probe. Zero means defaultProbeTimeout.
	ProbeTimeout time.Duration
}

// Factory maps logical adapter types to concrete adapter instances and
// provides resilient selection under partial vendor failure.
//
// Health status per type is last-check-wins: a new probe overwrites the
// previous record, with no history beyond the most recent check. The
// health map is process-wide state owned by the factory; callers only
// see snapshots.
type Factory struct {
	cfg          FactoryConfig
	constructors map[Type]Constructor
	log          *logging.Logger

	mu      sync.RWMutex
	health  map[Type]HealthStatus
	observe ProbeObserver
}

// ProbeObserver receives every recorded probe outcome. Used to mirror
// adapter health into the metrics sink.
type ProbeObserver func(s HealthStatus)

// NewFactory creates a Factory from a fixed constructor table.
//
// The table must contain an entry for TypeStub: the stub is the fallback
// of last resort for unknown types and total vendor failure, so the
// factory refuses to start without it.
func NewFactory(cfg FactoryConfig, constructors map[Type]Constructor, log *logging.Logger) (*Factory, error) {
	if _, ok := constructors[TypeStub]; !ok {
		return nil, fmt.Errorf("adapter: factory requires a stub constructor")
	}
	if cfg.ProbeTimeout <= 0 {
		cfg.ProbeTimeout = defaultProbeTimeout
	}
	if log == nil {
		log = logging.Default()
	}
	return &Factory{
		cfg:          cfg,
		constructors: constructors,
		log:          log,
		health:       make(map[Type]HealthStatus),
	}, nil
}

// CreateAdapter returns the adapter for the given type.
// Unknown or not-yet-implemented types deterministically fall back to the
// stub adapter with a warning; this call never fails.
func (f *Factory) CreateAdapter(t Type) DeviceAdapter {
	if ctor, ok := f.constructors[t]; ok {
		return ctor()
	}
	f.log.Warn("unsupported adapter type, falling back to stub", "type", string(t))
	return f.constructors[TypeStub]()
}

// CreateAdapterFromConfig resolves the configured preferred type,
// falling back to the stub if the configured value is unsupported.
func (f *Factory) CreateAdapterFromConfig() DeviceAdapter {
	t := f.cfg.Preferred
	if !t.IsValid() {
		f.log.Warn("configured adapter type is not recognised, falling back to stub", "type", string(t))
		return f.constructors[TypeStub]()
	}
	return f.CreateAdapter(t)
}

// CreateAdapterWithFailover iterates candidate types in order, running a
// bounded health probe against each, and returns the first adapter that
// responds healthy within the bound. Health status is recorded as a side
// effect for every type attempted. If every candidate fails, the stub
// adapter is returned rather than an error: device integration
// degradation must never block the rest of the platform.
//
// An empty candidate list uses the configured failover order, or the
// preferred type if no order is configured.
func (f *Factory) CreateAdapterWithFailover(ctx context.Context, candidates []Type) DeviceAdapter {
	if len(candidates) == 0 {
		candidates = f.cfg.FailoverOrder
	}
	if len(candidates) == 0 && f.cfg.Preferred != "" {
		candidates = []Type{f.cfg.Preferred}
	}

	for _, t := range candidates {
		if _, ok := f.constructors[t]; !ok {
			f.recordHealth(HealthStatus{
				Type:      t,
				Healthy:   false,
				LastCheck: time.Now().UTC(),
				Error:     "adapter type not supported",
			})
			continue
		}

		status := f.probe(ctx, t)
		if status.Healthy {
			f.log.Info("adapter selected",
				"type", string(t),
				"response_time_ms", status.ResponseTime.Milliseconds(),
			)
			return f.constructors[t]()
		}
		f.log.Warn("adapter failed health probe, trying next candidate",
			"type", string(t),
			"error", status.Error,
		)
	}

	f.log.Warn("all candidate adapters unhealthy, falling back to stub")
	return f.constructors[TypeStub]()
}

// HealthCheckAll runs the bounded probe against every registered type
// concurrently and returns a snapshot of results. Results are also
// recorded in the factory's rolling health map.
func (f *Factory) HealthCheckAll(ctx context.Context) []HealthStatus {
	types := make([]Type, 0, len(f.constructors))
	for t := range f.constructors {
		types = append(types, t)
	}

	results := make([]HealthStatus, len(types))
	var wg sync.WaitGroup
	for i, t := range types {
		wg.Add(1)
		go func(i int, t Type) {
			defer wg.Done()
			results[i] = f.probe(ctx, t)
		}(i, t)
	}
	wg.Wait()

	return results
}

// HealthStatusFor returns the most recent health record for a type.
// The second return is false if the type has never been probed.
func (f *Factory) HealthStatusFor(t Type) (HealthStatus, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	s, ok := f.health[t]
	return s, ok
}

// HealthSnapshot returns a copy of every recorded health status.
func (f *Factory) HealthSnapshot() []HealthStatus {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]HealthStatus, 0, len(f.health))
	for _, s := range f.health {
		out = append(out, s)
	}
	return out
}

// RecommendedType returns the configured type if it is currently healthy,
// otherwise the fastest healthy non-stub candidate from a full sweep.
// Falls back to the stub only when nothing else is healthy.
func (f *Factory) RecommendedType(ctx context.Context) Type {
	preferred := f.cfg.Preferred
	if preferred != "" && preferred != TypeStub {
		if s, ok := f.HealthStatusFor(preferred); ok && s.Healthy {
			return preferred
		}
	}

	var best Type
	var bestTime time.Duration
	for _, s := range f.HealthCheckAll(ctx) {
		if !s.Healthy || s.Type == TypeStub {
			continue
		}
		if best == "" || s.ResponseTime < bestTime {
			best = s.Type
			bestTime = s.ResponseTime
		}
	}
	if best != "" {
		return best
	}
	return TypeStub
}

// probe runs a discovery call for the type raced against the probe
// timeout and records the outcome. A probe that exceeds the bound is
// treated as failed; cancellation of the slow call is best-effort and
// its late result is discarded. Probe errors are captured in the health
// record, never propagated.
func (f *Factory) probe(ctx context.Context, t Type) HealthStatus {
	a := f.constructors[t]()

	probeCtx, cancel := context.WithTimeout(ctx, f.cfg.ProbeTimeout)
	defer cancel()

	start := time.Now()
	done := make(chan error, 1)
	go func() {
		_, err := a.Discover(probeCtx)
		done <- err
	}()

	status := HealthStatus{
		Type:      t,
		LastCheck: time.Now().UTC(),
	}

	select {
	case err := <-done:
		status.ResponseTime = time.Since(start)
		if err != nil {
			status.Error = err.Error()
		} else {
			status.Healthy = true
		}
	case <-probeCtx.Done():
		status.ResponseTime = time.Since(start)
		status.Error = "health probe timed out"
	}

	f.recordHealth(status)
	return status
}

// SetProbeObserver installs the probe observer. Call during startup,
// before probes run.
func (f *Factory) SetProbeObserver(fn ProbeObserver) {
	f.observe = fn
}

func (f *Factory) recordHealth(s HealthStatus) {
	f.mu.Lock()
	f.health[s.Type] = s
	f.mu.Unlock()

	if f.observe != nil {
		f.observe(s)
	}
}
