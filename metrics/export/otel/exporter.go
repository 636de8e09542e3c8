package otel

import (
	"context"
	"errors"
	"fmt"

	"github.com/MrEthical07/gatekeeper"
	"github.com/MrEthical07/gatekeeper/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/metric"
)

var (
	ErrNilMeter  = errors.New("nil meter")
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() gatekeeper.MetricsSnapshot
	AuditDropped() uint64
}

// latencyInstruments mirror one engine histogram as cumulative bucket
// gauges plus count and sum.
type latencyInstruments struct {
	buckets [8]metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	sum     metric.Float64ObservableGauge
}

// OTelExporter publishes engine metrics through an OpenTelemetry meter.
// Values are read from the engine snapshot on every collection.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     map[string]metric.Int64ObservableCounter
	latency      map[string]latencyInstruments
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers observable instruments for engine on meter.
func NewOTelExporter(meter metric.Meter, engine *gatekeeper.Engine) (*OTelExporter, error) {
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers observable instruments for a custom
// metrics source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{
		source:   source,
		counters: make(map[string]metric.Int64ObservableCounter, len(internaldefs.CounterDefs)),
		latency:  make(map[string]latencyInstruments, len(internaldefs.HistogramDefs)),
	}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name, metric.WithDescription(def.Help))
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters[def.Name] = ins
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		li, obs, err := newLatencyInstruments(meter, def)
		if err != nil {
			return nil, err
		}
		e.latency[def.Name] = li
		observables = append(observables, obs...)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName, metric.WithDescription(internaldefs.AuditDroppedHelp))
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func newLatencyInstruments(meter metric.Meter, def internaldefs.HistogramDef) (latencyInstruments, []metric.Observable, error) {
	var li latencyInstruments
	obs := make([]metric.Observable, 0, len(li.buckets)+2)

	for i, suffix := range internaldefs.HistogramBoundSuffix {
		name := def.Name + "_bucket_le_" + suffix
		g, err := meter.Int64ObservableGauge(name, metric.WithDescription(def.Help+" Cumulative bucket count."))
		if err != nil {
			return li, nil, fmt.Errorf("create gauge %s: %w", name, err)
		}
		li.buckets[i] = g
		obs = append(obs, g)
	}

	count, err := meter.Int64ObservableGauge(def.Name+"_count", metric.WithDescription(def.Help+" Sample count."))
	if err != nil {
		return li, nil, fmt.Errorf("create gauge %s_count: %w", def.Name, err)
	}
	sum, err := meter.Float64ObservableGauge(def.Name+"_sum", metric.WithDescription(def.Help+" Total observed seconds."), metric.WithUnit("s"))
	if err != nil {
		return li, nil, fmt.Errorf("create gauge %s_sum: %w", def.Name, err)
	}
	li.count, li.sum = count, sum
	return li, append(obs, count, sum), nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	c := internaldefs.Collect(e.source.MetricsSnapshot(), e.source.AuditDropped())
	for _, counter := range c.Counters {
		o.ObserveInt64(e.counters[counter.Def.Name], int64(counter.Value))
	}
	for _, family := range c.Histograms {
		li := e.latency[family.Def.Name]
		for i, v := range family.Histogram.Cumulative {
			o.ObserveInt64(li.buckets[i], int64(v))
		}
		o.ObserveInt64(li.count, int64(family.Histogram.Count()))
		o.ObserveFloat64(li.sum, family.Histogram.SumSeconds)
	}
	o.ObserveInt64(e.auditDropped, int64(c.AuditDropped))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
