// Package stream evaluates continuous queries over a sliding window of
// timestamped facts.
//
// Window semantics: the window at time t holds the facts ingested with
// timestamp in (t-size, t]. The first ingested timestamp sets the first
// slide boundary, the smallest multiple of slide above it. An ingestion
// whose timestamp reaches the boundary evaluates the window at that
// timestamp and moves the boundary past it. Facts ingested since the last
// evaluation are evaluated when results are next drained.
package stream

import (
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kgraph/internal/config"
	"kgraph/internal/metrics"
	"kgraph/internal/query"
	"kgraph/internal/terms"
)

var (
	// ErrStreamClosed is returned by every call on a stopped stream.
	ErrStreamClosed = errors.New("stream closed")
	// ErrInvalidWindowConfig is returned by Build for a non-positive
	// window size or slide.
	ErrInvalidWindowConfig = errors.New("invalid window configuration")
)

// Operator selects what each window evaluation emits.
type Operator uint8

const (
	// RStream emits every matching fact in the window.
	RStream Operator = iota
	// IStream emits matching facts absent from the previous evaluation.
	IStream
	// DStream emits facts of the previous evaluation that no longer match.
	DStream
)

func (o Operator) String() string {
	switch o {
	case RStream:
		return "rstream"
	case IStream:
		return "istream"
	case DStream:
		return "dstream"
	default:
		return "unknown"
	}
}

// ParseOperator parses "rstream", "istream" or "dstream", in any case.
func ParseOperator(s string) (Operator, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "rstream":
		return RStream, nil
	case "istream":
		return IStream, nil
	case "dstream":
		return DStream, nil
	default:
		return 0, fmt.Errorf("unknown stream operator %q", s)
	}
}

// Builder configures a Stream. Methods modify and return the receiver.
type Builder struct {
	terms   *terms.Table
	size    int64
	slide   int64
	op      Operator
	filters []query.TextFilter
	logger  *zap.Logger
	metrics *metrics.Metrics
	err     error
}

// Option configures a Builder.
type Option func(*Builder)

// WithDefaults takes the window and operator from configuration.
func WithDefaults(cfg config.StreamConfig) Option {
	return func(b *Builder) {
		b.size = int64(cfg.WindowSize)
		b.slide = int64(cfg.Slide)
		if cfg.Operator != "" {
			op, err := ParseOperator(cfg.Operator)
			if err != nil {
				b.err = fmt.Errorf("%w: %v", ErrInvalidWindowConfig, err)
				return
			}
			b.op = op
		}
	}
}

// WithLogger sets the stream's logger.
func WithLogger(l *zap.Logger) Option {
	return func(b *Builder) { b.logger = l }
}

// WithMetrics records ingestion and batch counts into m.
func WithMetrics(m *metrics.Metrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// NewBuilder starts a stream whose terms are interned in t. Without
// options the window is 100 units sliding by 10, emitting RSTREAM.
func NewBuilder(t *terms.Table, opts ...Option) *Builder {
	b := &Builder{terms: t, size: 100, slide: 10, op: RStream}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Window sets the window size and slide, in timestamp units.
func (b *Builder) Window(size, slide int64) *Builder {
	b.size, b.slide = size, slide
	return b
}

// WithStreamOperator selects RSTREAM, ISTREAM or DSTREAM output.
func (b *Builder) WithStreamOperator(op Operator) *Builder {
	b.op = op
	return b
}

// Filter adds a text filter on window facts.
func (b *Builder) Filter(f query.TextFilter) *Builder {
	b.filters = append(b.filters, f)
	return b
}

func (b *Builder) WithSubject(s string) *Builder {
	return b.Filter(query.TextFilter{Position: query.Subject, Kind: query.Exact, Value: s})
}

func (b *Builder) WithPredicate(p string) *Builder {
	return b.Filter(query.TextFilter{Position: query.Predicate, Kind: query.Exact, Value: p})
}

func (b *Builder) WithObject(o string) *Builder {
	return b.Filter(query.TextFilter{Position: query.Object, Kind: query.Exact, Value: o})
}

func (b *Builder) WithSubjectLike(substr string) *Builder {
	return b.Filter(query.TextFilter{Position: query.Subject, Kind: query.Contains, Value: substr})
}

func (b *Builder) WithPredicateLike(substr string) *Builder {
	return b.Filter(query.TextFilter{Position: query.Predicate, Kind: query.Contains, Value: substr})
}

func (b *Builder) WithObjectLike(substr string) *Builder {
	return b.Filter(query.TextFilter{Position: query.Object, Kind: query.Contains, Value: substr})
}

// Build validates the configuration and creates the stream.
func (b *Builder) Build() (*Stream, error) {
	if b.err != nil {
		return nil, b.err
	}
	if b.size <= 0 || b.slide <= 0 {
		return nil, fmt.Errorf("%w: size %d and slide %d must both be positive",
			ErrInvalidWindowConfig, b.size, b.slide)
	}
	if b.op > DStream {
		return nil, fmt.Errorf("%w: operator %d", ErrInvalidWindowConfig, b.op)
	}
	if b.terms == nil {
		b.terms = terms.NewTable()
	}
	if b.metrics == nil {
		b.metrics = metrics.New("")
	}
	logger := b.logger
	if logger == nil {
		logger = zap.NewNop()
	}
	id := uuid.New()
	s := &Stream{
		id:      id,
		terms:   b.terms,
		size:    b.size,
		slide:   b.slide,
		op:      b.op,
		filters: append([]query.TextFilter(nil), b.filters...),
		logger:  logger.With(zap.String("stream", id.String())),
		metrics: b.metrics,
	}
	s.logger.Debug("stream built",
		zap.Int64("size", s.size),
		zap.Int64("slide", s.slide),
		zap.Stringer("operator", s.op),
		zap.Int("filters", len(s.filters)))
	return s, nil
}
