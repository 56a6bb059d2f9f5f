// Package resilience wraps a ports.UserDirectory with a per-call timeout and
// retry with exponential backoff for transient store failures.
package resilience

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/99minutos/identity-api/internal/api/metrics"
	"github.com/99minutos/identity-api/internal/core/domain"
	"github.com/99minutos/identity-api/internal/core/ports"
)

const (
	defaultTimeout        = 5 * time.Second
	defaultInitialBackoff = 50 * time.Millisecond
	defaultMaxBackoff     = time.Second
)

// Policy configures the wrapper. Timeout bounds the whole call, retries
// included.
type Policy struct {
	Timeout        time.Duration
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	// RetryWrites enables retry of Create and Update. Set it only when the
	// store guarantees a failed write had no partial effect.
	RetryWrites bool
}

func (p Policy) withDefaults() Policy {
	if p.Timeout <= 0 {
		p.Timeout = defaultTimeout
	}
	if p.MaxRetries < 0 {
		p.MaxRetries = 0
	}
	if p.InitialBackoff <= 0 {
		p.InitialBackoff = defaultInitialBackoff
	}
	if p.MaxBackoff <= 0 {
		p.MaxBackoff = defaultMaxBackoff
	}
	return p
}

// Directory decorates a ports.UserDirectory.
type Directory struct {
	next   ports.UserDirectory
	policy Policy
	log    zerolog.Logger
}

// Wrap returns next decorated with policy.
func Wrap(next ports.UserDirectory, policy Policy, log zerolog.Logger) *Directory {
	return &Directory{next: next, policy: policy.withDefaults(), log: log}
}

func (d *Directory) GetByID(ctx context.Context, id string) (*domain.User, error) {
	return call(ctx, d, "GetByID", true, func(ctx context.Context) (*domain.User, error) {
		return d.next.GetByID(ctx, id)
	})
}

func (d *Directory) GetByEmail(ctx context.Context, email string) (*domain.User, error) {
	return call(ctx, d, "GetByEmail", true, func(ctx context.Context) (*domain.User, error) {
		return d.next.GetByEmail(ctx, email)
	})
}

func (d *Directory) Create(ctx context.Context, user *domain.User, passwordHash string) (*domain.User, error) {
	return call(ctx, d, "Create", d.policy.RetryWrites, func(ctx context.Context) (*domain.User, error) {
		return d.next.Create(ctx, user, passwordHash)
	})
}

func (d *Directory) Update(ctx context.Context, user *domain.User) (*domain.User, error) {
	return call(ctx, d, "Update", d.policy.RetryWrites, func(ctx context.Context) (*domain.User, error) {
		return d.next.Update(ctx, user)
	})
}

func (d *Directory) ListAll(ctx context.Context) ([]*domain.User, error) {
	return call(ctx, d, "ListAll", true, func(ctx context.Context) ([]*domain.User, error) {
		return d.next.ListAll(ctx)
	})
}

type result[T any] struct {
	val T
	err error
}

// call runs op under the timeout, retrying only errors that wrap
// domain.ErrUnavailable. On timeout the caller stops waiting; op sees a
// cancelled context but may still complete, and its result is discarded.
func call[T any](ctx context.Context, d *Directory, opName string, retry bool, op func(context.Context) (T, error)) (T, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, d.policy.Timeout)
	defer cancel()

	done := make(chan result[T], 1)
	go func() {
		v, err := runWithRetry(ctx, d, opName, retry, op)
		done <- result[T]{val: v, err: err}
	}()

	var (
		zero T
		res  result[T]
	)
	select {
	case res = <-done:
		res.err = classify(opName, res.err)
	case <-ctx.Done():
		res.err = classify(opName, ctx.Err())
		if domain.IsTimeout(res.err) {
			d.log.Warn().
				Str("operation", opName).
				Dur("timeout", d.policy.Timeout).
				Msg("directory call timed out")
		}
	}

	metrics.DirectoryCallDuration.
		WithLabelValues(opName, outcome(res.err)).
		Observe(time.Since(start).Seconds())

	if res.err != nil {
		return zero, res.err
	}
	return res.val, nil
}

func runWithRetry[T any](ctx context.Context, d *Directory, opName string, retry bool, op func(context.Context) (T, error)) (T, error) {
	if !retry || d.policy.MaxRetries == 0 {
		return op(ctx)
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = d.policy.InitialBackoff
	eb.MaxInterval = d.policy.MaxBackoff
	eb.MaxElapsedTime = 0
	b := backoff.WithContext(backoff.WithMaxRetries(eb, uint64(d.policy.MaxRetries)), ctx)

	attempt := func() (T, error) {
		v, err := op(ctx)
		if err != nil && !errors.Is(err, domain.ErrUnavailable) {
			return v, backoff.Permanent(err)
		}
		return v, err
	}
	notify := func(err error, wait time.Duration) {
		metrics.DirectoryRetriesTotal.WithLabelValues(opName).Inc()
		d.log.Warn().Err(err).
			Str("operation", opName).
			Dur("backoff", wait).
			Msg("transient directory failure, retrying")
	}
	return backoff.RetryNotifyWithData(attempt, b, notify)
}

// classify maps raw failures onto the domain taxonomy. Business errors pass
// through untouched.
func classify(opName string, err error) error {
	if err == nil {
		return nil
	}
	var se *domain.ServiceError
	switch {
	case errors.As(err, &se):
		return err
	case errors.Is(err, context.DeadlineExceeded):
		return &domain.ServiceError{Op: opName, Kind: domain.KindTimeout, Err: err}
	case errors.Is(err, domain.ErrUnavailable):
		return &domain.ServiceError{Op: opName, Kind: domain.KindUnavailable, Err: err}
	case errors.Is(err, context.Canceled),
		errors.Is(err, domain.ErrUserNotFound),
		errors.Is(err, domain.ErrUserExists),
		errors.Is(err, domain.ErrInvalidRole):
		return err
	}
	return &domain.ServiceError{Op: opName, Kind: domain.KindInternal, Err: err}
}

func outcome(err error) string {
	var se *domain.ServiceError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &se):
		return string(se.Kind)
	case errors.Is(err, domain.ErrUserNotFound):
		return "not_found"
	case errors.Is(err, domain.ErrUserExists):
		return "exists"
	}
	return "error"
}
