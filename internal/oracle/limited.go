package oracle

import (
	"context"
	"time"

	"github.com/pkg/errors"
)

// Acquirer hands out permission to make the next call.
type Acquirer interface {
	Acquire(ctx context.Context) error
}

// Observer is told about every call that got past the limiter.
type Observer func(vendor string, took time.Duration, err error)

// Limited makes every call wait for the limiter first, so a run of failing
// calls is paced exactly like a run of successful ones.
type Limited struct {
	next    TextOracle
	limiter Acquirer
	timeout time.Duration
	observe Observer
}

func NewLimited(next TextOracle, limiter Acquirer, timeout time.Duration, observe Observer) *Limited {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Limited{next: next, limiter: limiter, timeout: timeout, observe: observe}
}

func (l *Limited) Name() string { return l.next.Name() }

func (l *Limited) Generate(ctx context.Context, req Request) (string, error) {
	if l.limiter != nil {
		if err := l.limiter.Acquire(ctx); err != nil {
			return "", errors.Wrap(err, "acquire oracle slot")
		}
	}

	callCtx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	out, err := l.next.Generate(callCtx, req)
	if err == nil && out == "" {
		err = ErrEmptyResponse
	}
	if l.observe != nil {
		l.observe(l.next.Name(), time.Since(start), err)
	}
	if err != nil {
		return "", errors.Wrapf(err, "%s oracle call", l.next.Name())
	}
	return out, nil
}

func (l *Limited) Close() error { return Close(l.next) }
