// Package metrics exposes the diagnostic counters of the ancestry tracker.
//
// Every degraded-but-tolerated condition (duplicate registration, reference
// to an unknown id, an event this tracker does not recognize) is counted
// here instead of being reported as an error.
package metrics

import (
	"errors"
	"fmt"

	prom "github.com/prometheus/client_golang/prometheus"
)

// Recorder receives diagnostic counts from the registry, collector and snapshot trigger.
type Recorder interface {
	RecordRegistration(kind string, inserted bool)
	RecordUnknownReference(op string)
	RecordUnrecognizedEvent(kind string)
	RecordSnapshot(trigger string, vertices, edges int)
}

// NoOp discards all records.
type NoOp struct{}

func (NoOp) RecordRegistration(string, bool) {}
func (NoOp) RecordUnknownReference(string)   {}
func (NoOp) RecordUnrecognizedEvent(string)  {}
func (NoOp) RecordSnapshot(string, int, int) {}

// Exporter adapts Recorder to Prometheus collectors.
type Exporter struct {
	registrationsTotal   *prom.CounterVec
	duplicatesTotal      *prom.CounterVec
	unknownRefsTotal     *prom.CounterVec
	unrecognizedTotal    *prom.CounterVec
	snapshotsTotal       *prom.CounterVec
	lastSnapshotVertices prom.Gauge
	lastSnapshotEdges    prom.Gauge
}

var _ Recorder = (*Exporter)(nil)

// NewExporter creates and registers the collectors. An already registered
// collector with the same description is reused.
func NewExporter(namespace string, reg prom.Registerer) (*Exporter, error) {
	if namespace == "" {
		namespace = "taskancestry"
	}
	if reg == nil {
		reg = prom.DefaultRegisterer
	}

	registrations := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "registrations_total",
		Help:      "Entities inserted into the registry.",
	}, []string{"kind"})
	duplicates := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "duplicate_registrations_total",
		Help:      "Registrations discarded because the id was already present.",
	}, []string{"kind"})
	unknownRefs := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "unknown_references_total",
		Help:      "Operations that referenced an id absent from the registry.",
	}, []string{"op"})
	unrecognized := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "unrecognized_events_total",
		Help:      "Events ignored because their kind or endpoint is not handled.",
	}, []string{"kind"})
	snapshots := prom.NewCounterVec(prom.CounterOpts{
		Namespace: namespace,
		Name:      "snapshots_total",
		Help:      "Ancestry graphs built, by trigger.",
	}, []string{"trigger"})
	vertices := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "last_snapshot_vertices",
		Help:      "Vertex count of the most recent snapshot.",
	})
	edges := prom.NewGauge(prom.GaugeOpts{
		Namespace: namespace,
		Name:      "last_snapshot_edges",
		Help:      "Edge count of the most recent snapshot.",
	})

	var err error
	if registrations, err = registerCollector(reg, registrations); err != nil {
		return nil, err
	}
	if duplicates, err = registerCollector(reg, duplicates); err != nil {
		return nil, err
	}
	if unknownRefs, err = registerCollector(reg, unknownRefs); err != nil {
		return nil, err
	}
	if unrecognized, err = registerCollector(reg, unrecognized); err != nil {
		return nil, err
	}
	if snapshots, err = registerCollector(reg, snapshots); err != nil {
		return nil, err
	}
	if vertices, err = registerCollector(reg, vertices); err != nil {
		return nil, err
	}
	if edges, err = registerCollector(reg, edges); err != nil {
		return nil, err
	}

	return &Exporter{
		registrationsTotal:   registrations,
		duplicatesTotal:      duplicates,
		unknownRefsTotal:     unknownRefs,
		unrecognizedTotal:    unrecognized,
		snapshotsTotal:       snapshots,
		lastSnapshotVertices: vertices,
		lastSnapshotEdges:    edges,
	}, nil
}

// RecordRegistration counts an insert, or a discarded duplicate when inserted is false.
func (m *Exporter) RecordRegistration(kind string, inserted bool) {
	if m == nil {
		return
	}
	if inserted {
		m.registrationsTotal.WithLabelValues(normalizeLabel(kind, "unknown")).Inc()
		return
	}
	m.duplicatesTotal.WithLabelValues(normalizeLabel(kind, "unknown")).Inc()
}

// RecordUnknownReference counts a lookup against an absent id.
func (m *Exporter) RecordUnknownReference(op string) {
	if m == nil {
		return
	}
	m.unknownRefsTotal.WithLabelValues(normalizeLabel(op, "unknown")).Inc()
}

// RecordUnrecognizedEvent counts an ignored event.
func (m *Exporter) RecordUnrecognizedEvent(kind string) {
	if m == nil {
		return
	}
	m.unrecognizedTotal.WithLabelValues(normalizeLabel(kind, "unknown")).Inc()
}

// RecordSnapshot counts a built graph and remembers its size.
func (m *Exporter) RecordSnapshot(trigger string, vertices, edges int) {
	if m == nil {
		return
	}
	m.snapshotsTotal.WithLabelValues(normalizeLabel(trigger, "unknown")).Inc()
	m.lastSnapshotVertices.Set(float64(vertices))
	m.lastSnapshotEdges.Set(float64(edges))
}

func normalizeLabel(v string, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

func registerCollector[T prom.Collector](reg prom.Registerer, collector T) (T, error) {
	err := reg.Register(collector)
	if err == nil {
		return collector, nil
	}

	var alreadyRegisteredErr prom.AlreadyRegisteredError
	if errors.As(err, &alreadyRegisteredErr) {
		existing, ok := alreadyRegisteredErr.ExistingCollector.(T)
		if !ok {
			return collector, fmt.Errorf("collector type mismatch for %T", collector)
		}
		return existing, nil
	}

	return collector, err
}
