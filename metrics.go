package percolate

import (
	"sync/atomic"
	"time"
)

// MetricsCollector defines an interface for collecting operational metrics.
// Implement this interface to integrate with monitoring systems like Prometheus.
//
// Example Prometheus integration:
//
//	type PrometheusCollector struct {
//	    percolateHistogram prometheus.Histogram
//	    failures           prometheus.Counter
//	}
//
//	func (p *PrometheusCollector) RecordVerification(evaluated, failed int) {
//	    p.failures.Add(float64(failed))
//	}
type MetricsCollector interface {
	// RecordRegister is called after each stored query registration.
	RecordRegister(duration time.Duration, err error)

	// RecordBatchRegister is called after each batch registration.
	RecordBatchRegister(count, failed int, duration time.Duration)

	// RecordDelete is called after each delete operation.
	RecordDelete(duration time.Duration, err error)

	// RecordPercolate is called after each percolation request. candidates is the
	// number of stored queries selected by the candidate query.
	RecordPercolate(docs, candidates, matches int, duration time.Duration, err error)

	// RecordVerification is called once per percolation request with the number of
	// stored queries evaluated exactly and the number that failed to evaluate.
	RecordVerification(evaluated, failed int)
}

// NoopMetricsCollector is a no-op implementation of MetricsCollector.
type NoopMetricsCollector struct{}

func (NoopMetricsCollector) RecordRegister(time.Duration, error)                 {}
func (NoopMetricsCollector) RecordBatchRegister(int, int, time.Duration)         {}
func (NoopMetricsCollector) RecordDelete(time.Duration, error)                   {}
func (NoopMetricsCollector) RecordPercolate(int, int, int, time.Duration, error) {}
func (NoopMetricsCollector) RecordVerification(int, int)                         {}

// BasicMetricsCollector provides simple in-memory metrics collection.
type BasicMetricsCollector struct {
	RegisterCount       atomic.Int64
	RegisterErrors      atomic.Int64
	BatchRegisterCount  atomic.Int64
	BatchRegisterItems  atomic.Int64
	BatchRegisterFailed atomic.Int64
	DeleteCount         atomic.Int64
	DeleteErrors        atomic.Int64
	PercolateCount      atomic.Int64
	PercolateErrors     atomic.Int64
	PercolateTotalNanos atomic.Int64
	CandidateCount      atomic.Int64
	MatchCount          atomic.Int64
	EvaluatedCount      atomic.Int64
	VerificationFailed  atomic.Int64
}

// RecordRegister implements MetricsCollector.
func (b *BasicMetricsCollector) RecordRegister(_ time.Duration, err error) {
	b.RegisterCount.Add(1)
	if err != nil {
		b.RegisterErrors.Add(1)
	}
}

// RecordBatchRegister implements MetricsCollector.
func (b *BasicMetricsCollector) RecordBatchRegister(count, failed int, _ time.Duration) {
	b.BatchRegisterCount.Add(1)
	b.BatchRegisterItems.Add(int64(count))
	b.BatchRegisterFailed.Add(int64(failed))
}

// RecordDelete implements MetricsCollector.
func (b *BasicMetricsCollector) RecordDelete(_ time.Duration, err error) {
	b.DeleteCount.Add(1)
	if err != nil {
		b.DeleteErrors.Add(1)
	}
}

// RecordPercolate implements MetricsCollector.
func (b *BasicMetricsCollector) RecordPercolate(_, candidates, matches int, duration time.Duration, err error) {
	b.PercolateCount.Add(1)
	b.PercolateTotalNanos.Add(duration.Nanoseconds())
	if err != nil {
		b.PercolateErrors.Add(1)
		return
	}
	b.CandidateCount.Add(int64(candidates))
	b.MatchCount.Add(int64(matches))
}

// RecordVerification implements MetricsCollector.
func (b *BasicMetricsCollector) RecordVerification(evaluated, failed int) {
	b.EvaluatedCount.Add(int64(evaluated))
	b.VerificationFailed.Add(int64(failed))
}

// GetStats returns a snapshot of current metrics.
func (b *BasicMetricsCollector) GetStats() BasicMetricsStats {
	s := BasicMetricsStats{
		RegisterCount:       b.RegisterCount.Load(),
		RegisterErrors:      b.RegisterErrors.Load(),
		BatchRegisterCount:  b.BatchRegisterCount.Load(),
		BatchRegisterItems:  b.BatchRegisterItems.Load(),
		BatchRegisterFailed: b.BatchRegisterFailed.Load(),
		DeleteCount:         b.DeleteCount.Load(),
		DeleteErrors:        b.DeleteErrors.Load(),
		PercolateCount:      b.PercolateCount.Load(),
		PercolateErrors:     b.PercolateErrors.Load(),
		CandidateCount:      b.CandidateCount.Load(),
		MatchCount:          b.MatchCount.Load(),
		EvaluatedCount:      b.EvaluatedCount.Load(),
		VerificationFailed:  b.VerificationFailed.Load(),
	}
	if s.PercolateCount > 0 {
		s.PercolateAvgNanos = b.PercolateTotalNanos.Load() / s.PercolateCount
	}
	return s
}

// BasicMetricsStats is a snapshot of BasicMetricsCollector state.
type BasicMetricsStats struct {
	RegisterCount       int64
	RegisterErrors      int64
	BatchRegisterCount  int64
	BatchRegisterItems  int64
	BatchRegisterFailed int64
	DeleteCount         int64
	DeleteErrors        int64
	PercolateCount      int64
	PercolateErrors     int64
	PercolateAvgNanos   int64
	CandidateCount      int64
	MatchCount          int64
	EvaluatedCount      int64
	VerificationFailed  int64
}
