// Package jobs runs the slow path of a request: narration streamed to subscribers, then a
// terminal status persisted to the request state store.
package jobs

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/hyperjump/basho/internal/config"
	"github.com/hyperjump/basho/internal/hub"
	"github.com/hyperjump/basho/internal/metrics"
	"github.com/hyperjump/basho/internal/models"
	"github.com/hyperjump/basho/internal/narration"
	"github.com/hyperjump/basho/internal/reliability"
	"github.com/hyperjump/basho/internal/store"
	"github.com/hyperjump/basho/internal/truth"
	"github.com/hyperjump/basho/pkg/utils"
)

// errAlreadyStarted marks a request whose job is running or finished.
var errAlreadyStarted = errors.New("job already started")

var errJobAborted = errors.New("job aborted")

// Broker is the part of the hub the runner needs.
type Broker interface {
	hub.Publisher
	Subscribe(requestID string, conn hub.Conn) error
	Unsubscribe(requestID string, conn hub.Conn)
}

// Runner executes narration jobs on a bounded worker pool.
type Runner struct {
	store    store.Store
	narrator narration.Narrator
	broker   Broker
	cfg      config.JobsConfig
	logger   *zap.Logger

	queue  chan string
	root   context.Context
	cancel context.CancelFunc
	jobs   sync.WaitGroup

	mu     sync.Mutex
	closed bool
}

const shutdownReason = "job cancelled at shutdown"

// NewRunner creates a runner. Jobs derive their context from an internal root context that
// Shutdown cancels; they never inherit the HTTP request context.
func NewRunner(st store.Store, n narration.Narrator, b Broker, cfg config.JobsConfig, logger *zap.Logger) *Runner {
	if cfg.QueueSize < 0 {
		cfg.QueueSize = 0
	}
	if cfg.DeltaBuffer <= 0 {
		cfg.DeltaBuffer = 64
	}
	root, cancel := context.WithCancel(context.Background())
	return &Runner{
		store:    st,
		narrator: n,
		broker:   b,
		cfg:      cfg,
		logger:   utils.OrNop(logger),
		queue:    make(chan string, cfg.QueueSize),
		root:     root,
		cancel:   cancel,
	}
}

// Serve runs cfg.Workers workers draining the queue until ctx is done.
func (r *Runner) Serve(ctx context.Context) error {
	workers := r.cfg.Workers
	if workers < 1 {
		workers = 1
	}
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case id := <-r.queue:
					r.runTracked(id)
				}
			}
		})
	}
	return g.Wait()
}

// StartJob schedules the job for requestID and returns immediately. When the queue is full
// the job gets its own goroutine. After Shutdown the request is failed with its fallback text.
func (r *Runner) StartJob(requestID string) {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		r.failUnstarted(requestID, shutdownReason)
		return
	}
	r.jobs.Add(1)
	select {
	case r.queue <- requestID:
		r.mu.Unlock()
	default:
		r.mu.Unlock()
		r.logger.Debug("job queue full, running inline goroutine", zap.String("request_id", requestID))
		go r.runTracked(requestID)
	}
}

func (r *Runner) runTracked(requestID string) {
	defer r.jobs.Done()
	if _, err := r.Run(r.root, requestID); err != nil && !errors.Is(err, store.ErrNotFound) {
		r.logger.Warn("job failed", zap.String("request_id", requestID), zap.Error(err))
	}
}

// RunSync runs the job for requestID on the caller's goroutine and returns the final state.
func (r *Runner) RunSync(ctx context.Context, requestID string) (*models.RequestState, error) {
	return r.Run(ctx, requestID)
}

// Shutdown cancels running jobs and waits for them to persist their terminal status.
// Jobs still queued are not started; they are failed with their fallback text.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()
drain:
	for {
		select {
		case id := <-r.queue:
			r.failUnstarted(id, shutdownReason)
			r.jobs.Done()
		default:
			break drain
		}
	}
	done := make(chan struct{})
	go func() {
		r.jobs.Wait()
		close(done)
	}()
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

type narrated struct {
	res narration.Result
	err error
}

// Run executes one job. It returns the final state; a request that is unknown, expired or
// already started is not run again.
func (r *Runner) Run(ctx context.Context, requestID string) (final *models.RequestState, err error) {
	log := r.logger.With(zap.String("request_id", requestID))

	st, uerr := r.store.Update(ctx, requestID, func(s *models.RequestState) error {
		if s.Status != models.StatusPending {
			return errAlreadyStarted
		}
		s.Status = models.StatusStreaming
		return nil
	})
	switch {
	case errors.Is(uerr, errAlreadyStarted):
		cur, err := r.store.Get(ctx, requestID)
		if err == nil && !cur.Status.Terminal() {
			log.Debug("job already running")
		}
		return cur, err
	case errors.Is(uerr, store.ErrNotFound):
		log.Warn("job for unknown or expired request")
		return nil, uerr
	case uerr != nil:
		return nil, uerr
	}

	finish := metrics.JobStarted()
	terminal := false
	// Every exit path, including a panicking narrator, leaves a terminal status behind.
	defer func() {
		if terminal {
			return
		}
		if rec := recover(); rec != nil {
			log.Error("job panicked", zap.Any("panic", rec))
		}
		final, _ = r.persistFailed(requestID, nil, "job aborted", log)
		err = errJobAborted
		r.publishStatus(requestID, models.StatusFailed)
		finish(string(models.StatusFailed))
	}()

	r.publishStatus(requestID, models.StatusStreaming)

	ts := models.TruthStateFromCore(st.Core)
	actx := ts.AssistantContext()
	mode := ts.ResponseMode()

	text, outcome, timedOut := r.narrate(ctx, requestID, narration.Request{Context: actx, Mode: mode}, log)

	var perr error
	switch {
	case timedOut:
		partial := text
		log.Info("narration timed out", zap.Duration("after", r.cfg.NarrationTimeout), zap.Int("partial_len", len(partial)))
		r.broker.Publish(requestID, models.StreamMessage{
			Type:  models.MessageError,
			Text:  partial,
			Error: &models.StreamError{Code: models.ErrorCodeTimeout, Message: "narration timed out"},
		})
		final, perr = r.persistFailed(requestID, &models.AssistantOutput{Text: partial, Partial: true},
			fmt.Sprintf("narration timed out after %s", r.cfg.NarrationTimeout), log)
		r.publishStatus(requestID, models.StatusFailed)
		finish(string(models.StatusFailed))

	case outcome.err != nil:
		fallback := narration.Fallback(actx, mode)
		log.Warn("narration failed, using fallback", zap.String("narrator", r.narrator.Name()), zap.Error(outcome.err))
		r.broker.Publish(requestID, models.StreamMessage{
			Type:  models.MessageError,
			Text:  fallback,
			Error: &models.StreamError{Code: models.ErrorCodeNarration, Message: "narration failed"},
		})
		final, perr = r.persistFailed(requestID, &models.AssistantOutput{Text: fallback, Fallback: true}, outcome.err.Error(), log)
		r.publishStatus(requestID, models.StatusFailed)
		finish(string(models.StatusFailed))

	default:
		primary, secondary := truth.ValidateActions(actx, outcome.res.PrimaryActionID, outcome.res.SecondaryActionIDs)
		recs := Recommend(st.Seed, st.Core, r.cfg.RecommendationCount)
		output := &models.AssistantOutput{Text: text, PrimaryActionID: primary, SecondaryActionIDs: secondary}
		final, perr = r.persist(requestID, log, func(s *models.RequestState) error {
			s.Status = models.StatusCompleted
			s.Output = output
			s.Recommendations = recs
			s.Error = ""
			return nil
		})
		r.broker.Publish(requestID, doneFrame(output))
		r.broker.Publish(requestID, models.StreamMessage{Type: models.MessageRecommendation, Recommendations: recs})
		r.publishStatus(requestID, models.StatusCompleted)
		finish(string(models.StatusCompleted))
	}
	terminal = true
	if perr != nil {
		return nil, fmt.Errorf("persist terminal status: %w", perr)
	}
	return final, nil
}

// narrate runs the narrator under the hard timeout with retries disabled, publishing each
// increment as it arrives. It returns the accumulated text and whether the deadline cut
// narration short. Narrator errors come back as *reliability.NarrationFailure.
func (r *Runner) narrate(ctx context.Context, requestID string, req narration.Request, log *zap.Logger) (string, narrated, bool) {
	policy := reliability.Policy{Timeout: r.cfg.NarrationTimeout}.NoRetry()
	out := make(chan string, r.cfg.DeltaBuffer)
	done := make(chan narrated, 1)
	go func() {
		res, err := reliability.WithRetry(ctx, config.OpNarration, policy, nil, func(ctx context.Context) (narration.Result, error) {
			return reliability.WithTimeout(ctx, config.OpNarration, policy.Timeout, r.callNarrator(req, out))
		})
		done <- narrated{res: res, err: err}
	}()

	var text strings.Builder
	seq := 0
	publish := func(chunk string) {
		if chunk == "" {
			return
		}
		seq++
		text.WriteString(chunk)
		r.broker.Publish(requestID, models.StreamMessage{Type: models.MessageStreamDelta, Seq: seq, Delta: chunk})
	}

	for {
		select {
		case chunk := <-out:
			publish(chunk)
		case result := <-done:
			// Increments sent before the result are still buffered.
			for drained := false; !drained; {
				select {
				case chunk := <-out:
					publish(chunk)
				default:
					drained = true
				}
			}
			switch {
			case result.err == nil:
				metrics.CountCall(config.OpNarration, "ok")
			case reliability.IsTimeout(result.err) && ctx.Err() == nil:
				metrics.CountCall(config.OpNarration, "timeout")
				return text.String(), result, true
			default:
				if ctx.Err() != nil {
					log.Debug("narration cancelled")
				}
				metrics.CountCall(config.OpNarration, "error")
				result.err = &reliability.NarrationFailure{Narrator: r.narrator.Name(), Err: result.err}
			}
			return text.String(), result, false
		}
	}
}

// callNarrator adapts the narrator to a guarded call, turning a panic into an error.
func (r *Runner) callNarrator(req narration.Request, out chan<- string) func(context.Context) (narration.Result, error) {
	return func(ctx context.Context) (res narration.Result, err error) {
		defer func() {
			if rec := recover(); rec != nil {
				err = fmt.Errorf("narrator panic: %v", rec)
			}
		}()
		return r.narrator.Narrate(ctx, req, out)
	}
}

// failUnstarted fails a request whose job never ran, storing its fallback text.
func (r *Runner) failUnstarted(requestID, reason string) {
	log := r.logger.With(zap.String("request_id", requestID))
	_, err := r.persist(requestID, log, func(s *models.RequestState) error {
		if s.Status != models.StatusPending {
			return errAlreadyStarted
		}
		ts := models.TruthStateFromCore(s.Core)
		s.Status = models.StatusFailed
		s.Output = &models.AssistantOutput{Text: narration.Fallback(ts.AssistantContext(), ts.ResponseMode()), Fallback: true}
		s.Error = reason
		return nil
	})
	if err != nil {
		return
	}
	log.Info("job not started", zap.String("reason", reason))
	r.publishStatus(requestID, models.StatusFailed)
}

func (r *Runner) persistFailed(requestID string, output *models.AssistantOutput, reason string, log *zap.Logger) (*models.RequestState, error) {
	return r.persist(requestID, log, func(s *models.RequestState) error {
		s.Status = models.StatusFailed
		if output != nil {
			s.Output = output
		}
		s.Error = reason
		return nil
	})
}

// persist writes a terminal update with a context that outlives job cancellation.
func (r *Runner) persist(requestID string, log *zap.Logger, fn func(*models.RequestState) error) (*models.RequestState, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	st, err := r.store.Update(ctx, requestID, fn)
	if err != nil {
		if !errors.Is(err, errAlreadyStarted) {
			log.Error("failed to persist job status", zap.Error(err))
		}
		return nil, err
	}
	return st, nil
}

func (r *Runner) publishStatus(requestID string, status models.AssistantStatus) {
	r.broker.Publish(requestID, models.StreamMessage{Type: models.MessageStatus, Status: status})
}

func doneFrame(out *models.AssistantOutput) models.StreamMessage {
	return models.StreamMessage{
		Type:            models.MessageStreamDone,
		Text:            out.Text,
		PrimaryActionID: out.PrimaryActionID,
		SecondaryIDs:    out.SecondaryActionIDs,
	}
}
