package tasks

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/desertthunder/crate/internal/models"
	"github.com/desertthunder/crate/internal/shared"
	"golang.org/x/sync/errgroup"
)

// gate bounds one outbound call: a slot from the shared semaphore, a token from the rate limiter
// and a per-call timeout. A call cut off by its own timeout becomes [shared.ErrTransport].
func (e *Engine) gate(ctx context.Context, call func(ctx context.Context) error) error {
	if err := e.sem.Acquire(ctx, 1); err != nil {
		return err
	}
	defer e.sem.Release(1)

	if err := e.limiter.Wait(ctx); err != nil {
		return err
	}

	callCtx, cancel := context.WithTimeout(ctx, e.opts.RequestTimeout)
	defer cancel()

	err := call(callCtx)
	if err != nil && ctx.Err() == nil && errors.Is(callCtx.Err(), context.DeadlineExceeded) && !errors.Is(err, shared.ErrTransport) {
		return fmt.Errorf("%w: request timed out after %s: %v", shared.ErrTransport, e.opts.RequestTimeout, err)
	}
	return err
}

// retry re-invokes fn while it fails with a retryable error, up to MaxAttempts in total.
func (e *Engine) retry(ctx context.Context, r *run, op string, fn func(ctx context.Context) error) error {
	for attempt := 1; ; attempt++ {
		err := fn(ctx)
		if err == nil || !shared.IsRetryable(err) || attempt >= e.opts.MaxAttempts {
			return err
		}

		wait := e.backoff(attempt, err)
		r.logger.Debug("retrying", "op", op, "attempt", attempt, "wait", wait, "error", err)
		if err := e.sleep(ctx, wait); err != nil {
			return err
		}
	}
}

// backoff doubles from Options.Backoff; a larger Retry-After hint wins.
func (e *Engine) backoff(attempt int, err error) time.Duration {
	d := e.opts.Backoff << (attempt - 1)
	if hint := shared.RetryAfter(err); hint > d {
		d = hint
	}
	return min(d, maxBackoff)
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// call runs a write through the gate with retries.
func (r *run) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	return r.e.retry(ctx, r, op, func(ctx context.Context) error {
		return r.e.gate(ctx, fn)
	})
}

// outcome is the final state of one match attempt.
type outcome struct {
	res  models.MatchResult
	err  error
	done bool
}

func (o outcome) matched() bool {
	return o.done && o.err == nil && o.res.Matched()
}

// matchAll matches n items concurrently. onDone runs in the worker once an item settles; items
// never started (cancellation) keep a zero outcome.
func (r *run) matchAll(ctx context.Context, n int, match func(ctx context.Context, i int) (models.MatchResult, error), onDone func(i int, o outcome)) ([]outcome, error) {
	out := make([]outcome, n)

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.e.opts.Concurrency)
	for i := range n {
		if r.stop(gctx) {
			break
		}
		g.Go(func() error {
			var res models.MatchResult
			err := r.e.retry(gctx, r, "match", func(ctx context.Context) error {
				var err error
				res, err = match(ctx, i)
				return err
			})
			if stop := r.settle(err); stop != nil {
				return stop
			}

			out[i] = outcome{res: res, err: err, done: true}
			if onDone != nil {
				onDone(i, out[i])
			}
			return nil
		})
	}
	return out, g.Wait()
}

// settle classifies the error an item gave up with. A non-nil return stops the job.
func (r *run) settle(err error) error {
	switch {
	case err == nil:
		r.transportStreak.Store(0)
	case fatal(err):
		return err
	case errors.Is(err, shared.ErrRateLimited):
		r.transportStreak.Store(0)
		n := r.rateLimited.Add(1)
		ratio := r.e.opts.RateLimitedAbortRatio
		if ratio > 0 && n >= minRateLimitedForAbort && float64(n) > ratio*float64(r.units) {
			return fmt.Errorf("%w: %d of %d items still rate limited after retries", shared.ErrRateLimited, n, r.units)
		}
	case errors.Is(err, shared.ErrTransport):
		n := r.transportStreak.Add(1)
		if limit := r.e.opts.MaxConsecutiveTransportFailures; limit > 0 && n >= int64(limit) {
			return fmt.Errorf("%w: %d consecutive requests failed: %v", shared.ErrTransport, n, err)
		}
	default:
		r.transportStreak.Store(0)
	}
	return nil
}

func fatal(err error) bool {
	return errors.Is(err, shared.ErrUnauthenticated) ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded)
}

// batched sends ids in chunks of BatchSize, in order. A rejected chunk is retried one id at a
// time; the returned map holds the positions that still failed.
func (r *run) batched(ctx context.Context, op string, ids []string, send func(ctx context.Context, ids []string) error) (map[int]error, error) {
	failed := make(map[int]error)
	size := r.e.opts.BatchSize

	for start := 0; start < len(ids); start += size {
		chunk := ids[start:min(start+size, len(ids))]

		err := r.call(ctx, op, func(ctx context.Context) error { return send(ctx, chunk) })
		if err == nil {
			r.settle(nil)
			continue
		}
		if fatal(err) {
			return nil, err
		}
		if len(chunk) == 1 {
			if stop := r.settle(err); stop != nil {
				return nil, stop
			}
			failed[start] = err
			continue
		}

		r.logger.Warn("batch rejected, sending items one at a time", "op", op, "size", len(chunk), "error", err)
		for j, id := range chunk {
			err := r.call(ctx, op, func(ctx context.Context) error { return send(ctx, []string{id}) })
			if stop := r.settle(err); stop != nil {
				return nil, stop
			}
			if err != nil {
				failed[start+j] = err
			}
		}
	}
	return failed, nil
}

// reason is the report text for an item that gave up with err.
func reason(err error) string {
	switch {
	case err == nil:
		return "no match"
	case errors.Is(err, shared.ErrRateLimited):
		return "rate limited"
	case errors.Is(err, shared.ErrTransport):
		return "request failed"
	case errors.Is(err, shared.ErrNotFound):
		return "not found"
	case errors.Is(err, shared.ErrForbidden):
		return "forbidden"
	default:
		return err.Error()
	}
}
