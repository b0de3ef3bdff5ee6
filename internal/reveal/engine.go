// Package reveal decides who may read a whisper and whether reading it
// destroys it.
package reveal

import (
	"context"
	"errors"
	"sync"

	"github.com/rs/zerolog"

	"whisper.bot/internal/metrics"
	"whisper.bot/internal/models"
	"whisper.bot/internal/store"
)

// ErrExists is returned by Create for an id that is active or was already
// consumed or retracted.
var ErrExists = errors.New("whisper id already used")

type Outcome int

const (
	NotFound Outcome = iota
	Forbidden
	Revealed
	Retracted
)

func (o Outcome) String() string {
	switch o {
	case NotFound:
		return "not_found"
	case Forbidden:
		return "forbidden"
	case Revealed:
		return "revealed"
	case Retracted:
		return "retracted"
	default:
		return "unknown"
	}
}

// Result is the decision for one request. Whisper is set only for Revealed
// and Retracted.
type Result struct {
	Outcome  Outcome
	Whisper  models.Whisper
	Consumed bool
}

// Engine serialises decisions so that a one-time whisper is revealed at
// most once per process. Stores implementing store.Taker extend that
// guarantee across processes.
type Engine struct {
	store  store.Store
	logger zerolog.Logger

	mu sync.Mutex
	// retired holds ids removed through this engine; they are never reused.
	retired map[int64]struct{}
}

func NewEngine(s store.Store, logger zerolog.Logger) *Engine {
	return &Engine{
		store:   s,
		logger:  logger.With().Str("component", "reveal").Logger(),
		retired: make(map[int64]struct{}),
	}
}

// Create stores w unless its id is already active or has been retired.
func (e *Engine) Create(ctx context.Context, w models.Whisper) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if _, ok := e.retired[w.ID]; ok {
		return ErrExists
	}
	_, ok, err := e.store.Get(ctx, w.ID)
	if err != nil {
		return err
	}
	if ok {
		return ErrExists
	}
	return e.store.Put(ctx, w)
}

// Reveal decides what requester may see of whisper id. Missing and
// unauthorised reads are outcomes, not errors; err is only set when the
// store fails, in which case nothing is revealed.
func (e *Engine) Reveal(ctx context.Context, requester, id int64) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	res, err := e.reveal(ctx, requester, id)
	if err != nil {
		return Result{}, err
	}
	metrics.Reveals.WithLabelValues(res.Outcome.String()).Inc()
	return res, nil
}

func (e *Engine) reveal(ctx context.Context, requester, id int64) (Result, error) {
	w, ok, err := e.store.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Outcome: NotFound}, nil
	}
	if !w.CanRead(requester) {
		return Result{Outcome: Forbidden}, nil
	}
	if !w.ConsumedBy(requester) {
		return Result{Outcome: Revealed, Whisper: w}, nil
	}

	if taker, isTaker := e.store.(store.Taker); isTaker {
		taken, ok, err := taker.Take(ctx, id)
		if err != nil {
			return Result{}, err
		}
		if !ok {
			// Another process consumed it between Get and Take.
			e.retired[id] = struct{}{}
			return Result{Outcome: NotFound}, nil
		}
		w = taken
	} else if err := e.store.Delete(ctx, id); err != nil {
		return Result{}, err
	}
	e.retired[id] = struct{}{}

	metrics.WhispersConsumed.Inc()
	e.logger.Info().Int64("message_id", id).Msg("one-time whisper consumed")

	return Result{Outcome: Revealed, Whisper: w, Consumed: true}, nil
}

// Retract lets the owner delete a whisper before it is read.
func (e *Engine) Retract(ctx context.Context, requester, id int64) (Result, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	w, ok, err := e.store.Get(ctx, id)
	if err != nil {
		return Result{}, err
	}
	if !ok {
		return Result{Outcome: NotFound}, nil
	}
	if requester != w.Owner {
		return Result{Outcome: Forbidden}, nil
	}
	if err := e.store.Delete(ctx, id); err != nil {
		return Result{}, err
	}
	e.retired[id] = struct{}{}

	e.logger.Info().Int64("message_id", id).Msg("whisper retracted")

	return Result{Outcome: Retracted, Whisper: w}, nil
}
