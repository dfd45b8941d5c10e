package stream

import (
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kgraph/internal/metrics"
	"kgraph/internal/query"
	"kgraph/internal/store"
	"kgraph/internal/terms"
)

// Batch is the output of one window evaluation.
type Batch struct {
	Timestamp int64                 `json:"timestamp"`
	Triples   []query.DecodedTriple `json:"triples"`
}

type event struct {
	triple store.Triple
	ts     int64
}

// Stream is a running continuous query. It is safe for concurrent use;
// calls are serialized.
type Stream struct {
	mu sync.Mutex

	id      uuid.UUID
	terms   *terms.Table
	size    int64
	slide   int64
	op      Operator
	filters []query.TextFilter

	window   []event
	started  bool
	lastTS   int64
	nextEdge int64
	dirty    bool
	previous []store.Triple

	pending []Batch
	history []Batch
	closed  bool

	logger  *zap.Logger
	metrics *metrics.Metrics
}

// ID identifies the stream in logs.
func (s *Stream) ID() uuid.UUID { return s.id }

// Operator returns the configured output operator.
func (s *Stream) Operator() Operator { return s.op }

// AddStreamTriple ingests one timestamped fact. Timestamps must be
// non-negative and non-decreasing. If the timestamp reaches the next slide
// boundary, the window is evaluated before the call returns.
func (s *Stream) AddStreamTriple(subject, predicate, object string, ts int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	if ts < 0 {
		return fmt.Errorf("%w: negative timestamp %d", query.ErrInvalidArgument, ts)
	}
	if s.started && ts < s.lastTS {
		return fmt.Errorf("%w: timestamp %d precedes %d", query.ErrInvalidArgument, ts, s.lastTS)
	}

	t := store.Triple{
		S: s.terms.Encode(subject),
		P: s.terms.Encode(predicate),
		O: s.terms.Encode(object),
	}
	s.window = append(s.window, event{triple: t, ts: ts})
	s.lastTS = ts
	s.metrics.StreamIngested.Inc()

	if !s.started {
		s.started = true
		s.nextEdge = s.edgeAfter(ts)
		s.dirty = true
		return nil
	}
	if ts >= s.nextEdge {
		s.nextEdge = s.edgeAfter(ts)
		return s.evaluate(ts)
	}
	s.dirty = true
	return nil
}

// edgeAfter returns the smallest multiple of slide greater than ts.
func (s *Stream) edgeAfter(ts int64) int64 {
	return (ts/s.slide + 1) * s.slide
}

// GetStreamResults returns the batches produced since the previous call and
// clears them. Facts ingested since the last evaluation are evaluated first.
func (s *Stream) GetStreamResults() ([]Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStreamClosed
	}
	if s.dirty {
		if err := s.evaluate(s.lastTS); err != nil {
			return nil, err
		}
	}
	out := s.pending
	s.pending = nil
	return out, nil
}

// GetAllStreamResults returns every batch produced so far without draining.
func (s *Stream) GetAllStreamResults() ([]Batch, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, ErrStreamClosed
	}
	out := make([]Batch, len(s.history))
	copy(out, s.history)
	return out, nil
}

// StopStream releases the stream's state. Every later call fails with
// ErrStreamClosed.
func (s *Stream) StopStream() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return ErrStreamClosed
	}
	s.closed = true
	s.window, s.previous, s.pending, s.history = nil, nil, nil, nil
	s.logger.Debug("stream stopped")
	return nil
}

// evaluate computes the window answer at time t, applies the operator and
// queues a non-empty batch.
func (s *Stream) evaluate(t int64) error {
	s.dirty = false
	s.evict(t)

	current := store.New()
	for _, e := range s.window {
		if e.ts > t-s.size && e.ts <= t {
			current.Add(e.triple, store.AssertedProvenance)
		}
	}
	q := query.New(query.StoreSource{Terms: s.terms, Facts: current})
	for _, f := range s.filters {
		q = q.Filter(f)
	}
	answer, err := q.GetTriples()
	if err != nil {
		return err
	}

	var emit []store.Triple
	switch s.op {
	case RStream:
		emit = answer
	case IStream:
		emit = difference(answer, s.previous)
	case DStream:
		emit = difference(s.previous, answer)
	}
	s.previous = answer

	if len(emit) == 0 {
		s.logger.Debug("empty window evaluation", zap.Int64("ts", t))
		return nil
	}
	batch := Batch{Timestamp: t, Triples: make([]query.DecodedTriple, 0, len(emit))}
	for _, tr := range emit {
		d, err := s.decode(tr)
		if err != nil {
			return err
		}
		batch.Triples = append(batch.Triples, d)
	}
	s.pending = append(s.pending, batch)
	s.history = append(s.history, batch)
	s.metrics.StreamBatches.WithLabelValues(s.op.String()).Inc()
	s.logger.Debug("window batch",
		zap.Int64("ts", t),
		zap.Int("window", len(s.window)),
		zap.Int("emitted", len(emit)))
	return nil
}

func (s *Stream) decode(t store.Triple) (query.DecodedTriple, error) {
	var out query.DecodedTriple
	var err error
	if out.Subject, err = s.terms.Decode(t.S); err != nil {
		return out, err
	}
	if out.Predicate, err = s.terms.Decode(t.P); err != nil {
		return out, err
	}
	out.Object, err = s.terms.Decode(t.O)
	return out, err
}

// evict drops facts that have left the window for good.
func (s *Stream) evict(t int64) {
	keep := 0
	for keep < len(s.window) && s.window[keep].ts <= t-s.size {
		keep++
	}
	if keep > 0 {
		s.window = append(s.window[:0], s.window[keep:]...)
	}
}

// difference returns the triples of a not in b, in a's order.
func difference(a, b []store.Triple) []store.Triple {
	if len(b) == 0 {
		return append([]store.Triple(nil), a...)
	}
	drop := make(map[store.Triple]struct{}, len(b))
	for _, t := range b {
		drop[t] = struct{}{}
	}
	var out []store.Triple
	for _, t := range a {
		if _, ok := drop[t]; !ok {
			out = append(out, t)
		}
	}
	return out
}
