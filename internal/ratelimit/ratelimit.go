package ratelimit

import (
	"context"
	"sync"
	"time"

	"github.com/pkg/errors"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

var ErrBudgetExhausted = errors.New("oracle call budget exhausted")

// Limiter paces oracle calls with a token bucket and caps how many calls
// can be made per budget window (a day by default).
type Limiter struct {
	bucket *rate.Limiter

	mu        sync.Mutex
	used      int
	maxCalls  int
	window    time.Duration
	resetTime time.Time
	waited    time.Duration
	now       func() time.Time
	log       *zap.Logger
}

type Config struct {
	Interval time.Duration // minimum spacing between calls; 0 disables pacing
	Burst    int
	MaxCalls int // per window, 0 = unlimited
	Window   time.Duration
}

func New(cfg Config, log *zap.Logger) *Limiter {
	limit := rate.Inf
	if cfg.Interval > 0 {
		limit = rate.Every(cfg.Interval)
	}
	if cfg.Burst < 1 {
		cfg.Burst = 1
	}
	if cfg.Window <= 0 {
		cfg.Window = 24 * time.Hour
	}
	if log == nil {
		log = zap.NewNop()
	}
	l := &Limiter{
		bucket:   rate.NewLimiter(limit, cfg.Burst),
		maxCalls: cfg.MaxCalls,
		window:   cfg.Window,
		now:      time.Now,
		log:      log.With(zap.String("component", "ratelimit")),
	}
	l.resetTime = l.now().Add(l.window)
	return l
}

// Acquire blocks until the next call may start. It fails fast once the
// budget is spent, and gives the slot back if ctx ends while waiting.
func (l *Limiter) Acquire(ctx context.Context) error {
	l.mu.Lock()
	l.checkReset()
	if l.maxCalls > 0 && l.used >= l.maxCalls {
		used, limit := l.used, l.maxCalls
		l.mu.Unlock()
		l.log.Warn("oracle call budget reached", zap.Int("used", used), zap.Int("limit", limit))
		return ErrBudgetExhausted
	}
	l.used++
	l.mu.Unlock()

	start := l.now()
	if err := l.bucket.Wait(ctx); err != nil {
		l.mu.Lock()
		l.used--
		l.mu.Unlock()
		return errors.Wrap(err, "wait for oracle slot")
	}

	l.mu.Lock()
	l.waited += l.now().Sub(start)
	l.mu.Unlock()
	return nil
}

type Stats struct {
	Used      int           `json:"used"`
	Limit     int           `json:"limit"`
	Waited    time.Duration `json:"waited"`
	ResetTime time.Time     `json:"reset_time"`
}

func (l *Limiter) Stats() Stats {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Stats{
		Used:      l.used,
		Limit:     l.maxCalls,
		Waited:    l.waited,
		ResetTime: l.resetTime,
	}
}

// checkReset starts a new budget window once the old one is over. Callers
// hold l.mu.
func (l *Limiter) checkReset() {
	if l.now().After(l.resetTime) {
		l.log.Info("resetting oracle call budget", zap.Int("used", l.used), zap.Int("limit", l.maxCalls))
		l.used = 0
		l.resetTime = l.now().Add(l.window)
	}
}
