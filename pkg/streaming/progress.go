package streaming

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/Faultbox/meshstream/internal/logger"
)

// EventKind is the type of a parser event.
type EventKind uint8

// Parser events.
const (
	EventProgress EventKind = iota
	EventActive
	EventInactive
	EventComplete
)

func (k EventKind) String() string {
	switch k {
	case EventProgress:
		return "progress"
	case EventActive:
		return "active"
	case EventInactive:
		return "inactive"
	case EventComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Event is posted by a parser to the aggregator.
type Event struct {
	Parser   string
	Kind     EventKind
	Progress float64 // in [0, 1], EventProgress only
}

// ProgressHandlers are called from the aggregator goroutine. Any of them may be nil.
type ProgressHandlers struct {
	OnProgress func(total float64)
	OnActive   func()
	OnInactive func()
	OnComplete func()
}

// ErrAggregatorDone is returned when posting to an aggregator that stopped running.
var ErrAggregatorDone = errors.New("progress aggregator is done")

// Summary is the final state of an aggregator.
type Summary struct {
	Total     float64
	Active    int
	Completed int
}

type parserState struct {
	progress float64
	active   bool
	complete bool
}

// Aggregator combines the progress of concurrently streaming parsers. It owns the
// per-parser table; parsers only post events.
type Aggregator struct {
	events   chan Event
	done     chan struct{}
	handlers ProgressHandlers

	parsers   map[string]*parserState
	total     float64
	active    int
	completed int
}

// NewAggregator creates an aggregator over a fixed set of parsers.
func NewAggregator(parsers []string, handlers ProgressHandlers) *Aggregator {
	a := &Aggregator{
		events:   make(chan Event, len(parsers)),
		done:     make(chan struct{}),
		handlers: handlers,
		parsers:  make(map[string]*parserState, len(parsers)),
	}
	for _, p := range parsers {
		a.parsers[p] = &parserState{}
	}
	return a
}

// Run applies events until every parser completed or ctx is canceled.
func (a *Aggregator) Run(ctx context.Context) error {
	defer close(a.done)

	if len(a.parsers) == 0 {
		a.call(a.handlers.OnComplete)
		return nil
	}
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e := <-a.events:
			if a.apply(e) {
				return nil
			}
		}
	}
}

// Post sends an event to the aggregator, blocking until it is accepted.
func (a *Aggregator) Post(ctx context.Context, e Event) error {
	select {
	case <-a.done:
		return ErrAggregatorDone
	default:
	}
	select {
	case a.events <- e:
		return nil
	case <-a.done:
		return ErrAggregatorDone
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Done is closed when Run returns.
func (a *Aggregator) Done() <-chan struct{} {
	return a.done
}

// Summary returns the aggregated state. It must only be called once Done is closed.
func (a *Aggregator) Summary() Summary {
	return Summary{Total: a.total, Active: a.active, Completed: a.completed}
}

// Reporter returns a helper posting events for one parser.
func (a *Aggregator) Reporter(parser string) *Reporter {
	return &Reporter{agg: a, parser: parser}
}

// apply updates the table and reports whether every parser completed.
func (a *Aggregator) apply(e Event) bool {
	s, ok := a.parsers[e.Parser]
	if !ok {
		logger.Warn("progress event from unknown parser",
			zap.String("parser", e.Parser), zap.Stringer("event", e.Kind))
		return false
	}

	switch e.Kind {
	case EventProgress:
		a.setProgress(s, min(max(e.Progress, 0), 1))

	case EventActive:
		if s.active {
			break
		}
		s.active = true
		a.active++
		activeParsers.Inc()
		if a.active == 1 {
			a.call(a.handlers.OnActive)
		}

	case EventInactive:
		if !s.active {
			break
		}
		s.active = false
		a.active--
		activeParsers.Dec()
		if a.active == 0 {
			a.call(a.handlers.OnInactive)
		}

	case EventComplete:
		if s.complete {
			break
		}
		s.complete = true
		a.setProgress(s, 1)
		a.completed++
		if a.completed == len(a.parsers) {
			a.call(a.handlers.OnComplete)
			return true
		}
	}
	return false
}

func (a *Aggregator) setProgress(s *parserState, p float64) {
	if p == s.progress {
		return
	}
	a.total += (p - s.progress) / float64(len(a.parsers))
	s.progress = p
	if a.handlers.OnProgress != nil {
		a.handlers.OnProgress(a.total)
	}
}

func (a *Aggregator) call(fn func()) {
	if fn != nil {
		fn()
	}
}

// Reporter posts the events of one parser.
type Reporter struct {
	agg    *Aggregator
	parser string
}

func (r *Reporter) Progress(ctx context.Context, p float64) error {
	return r.agg.Post(ctx, Event{Parser: r.parser, Kind: EventProgress, Progress: p})
}

func (r *Reporter) Active(ctx context.Context) error {
	return r.agg.Post(ctx, Event{Parser: r.parser, Kind: EventActive})
}

func (r *Reporter) Inactive(ctx context.Context) error {
	return r.agg.Post(ctx, Event{Parser: r.parser, Kind: EventInactive})
}

func (r *Reporter) Complete(ctx context.Context) error {
	return r.agg.Post(ctx, Event{Parser: r.parser, Kind: EventComplete})
}
