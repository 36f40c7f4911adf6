package metrics

import coremetrics "github.com/gridkey/horizon/core/metrics"

// MultiSink fans pipeline events out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordFetch forwards the event to all sinks, returning the first error
// encountered.
func (m *MultiSink) RecordFetch(ev coremetrics.FetchEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordFetch(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordCache forwards cache lookups.
func (m *MultiSink) RecordCache(ev coremetrics.CacheEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordCache(ev); err != nil {
			return err
		}
	}
	return nil
}

// RecordAssembly forwards assembly outcomes.
func (m *MultiSink) RecordAssembly(ev coremetrics.AssemblyEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordAssembly(ev); err != nil {
			return err
		}
	}
	return nil
}
