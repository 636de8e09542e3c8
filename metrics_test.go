package gatekeeper

import (
	"testing"
	"time"
)

func TestMetricsDisabledIgnoresUpdates(t *testing.T) {
	m := NewMetrics(MetricsConfig{})
	m.Inc(MetricLoginSuccess)
	m.Observe(MetricValidateLatency, time.Millisecond)
	if m.Value(MetricLoginSuccess) != 0 {
		t.Fatal("disabled metrics must not count")
	}
	if s := m.Snapshot(); len(s.Counters) != 0 || len(s.Histograms) != 0 {
		t.Fatalf("disabled snapshot must be empty, got %+v", s)
	}

	var nilMetrics *Metrics
	nilMetrics.Inc(MetricLoginSuccess)
	if nilMetrics.Enabled() || nilMetrics.Value(MetricLoginSuccess) != 0 {
		t.Fatal("nil metrics must be inert")
	}
}

func TestMetricsCountersAndHistogram(t *testing.T) {
	m := NewMetrics(MetricsConfig{Enabled: true, EnableLatencyHistograms: true})
	m.Inc(MetricGateAllowed)
	m.Add(MetricSessionsSwept, 7)
	m.Inc(metricIDCount)
	m.Observe(MetricValidateLatency, 3*time.Millisecond)
	m.Observe(MetricValidateLatency, 40*time.Millisecond)
	m.Observe(MetricValidateLatency, time.Second)
	m.Observe(MetricLoginSuccess, time.Millisecond)

	s := m.Snapshot()
	if s.Counters[MetricGateAllowed] != 1 || s.Counters[MetricSessionsSwept] != 7 {
		t.Fatalf("unexpected counters: %+v", s.Counters)
	}
	if _, ok := s.Counters[MetricValidateLatency]; ok {
		t.Fatal("histogram id must not appear as a counter")
	}

	h := s.Histograms[MetricValidateLatency]
	if len(h) != histBucketCount {
		t.Fatalf("expected %d buckets, got %d", histBucketCount, len(h))
	}
	if h[0] != 1 || h[3] != 1 || h[7] != 1 {
		t.Fatalf("unexpected bucket distribution: %v", h)
	}
	if sum := s.HistogramSums[MetricValidateLatency]; sum != 1043*time.Millisecond {
		t.Fatalf("expected latency sum of 1.043s, got %v", sum)
	}
	if len(s.Histograms) != 1 {
		t.Fatal("only the validate latency histogram exists")
	}
}

func TestBucketIndex(t *testing.T) {
	cases := []struct {
		d    time.Duration
		want int
	}{
		{0, 0},
		{5 * time.Millisecond, 0},
		{6 * time.Millisecond, 1},
		{25 * time.Millisecond, 2},
		{100 * time.Millisecond, 4},
		{250 * time.Millisecond, 5},
		{500 * time.Millisecond, 6},
		{2 * time.Second, 7},
	}
	for _, tc := range cases {
		if got := bucketIndex(tc.d); got != tc.want {
			t.Fatalf("bucketIndex(%v) = %d, want %d", tc.d, got, tc.want)
		}
	}
}
