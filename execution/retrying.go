package execution

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand/v2"
	"net"
	"strings"
	"time"

	"github.com/lib/pq"
)

// Defaults of the Retrying strategy.
const (
	DefaultMaxRetries   = 5
	DefaultMaxDelay     = 30 * time.Second
	DefaultCoefficient  = 1 * time.Second
	DefaultRandomFactor = 1.1
	DefaultGrowthFactor = 2.0
)

// ErrRetryLimitExceeded is wrapped by the error returned when the retry
// budget of a Retrying strategy is exhausted.
var ErrRetryLimitExceeded = errors.New("retry limit exceeded")

// RetryLimitError reports the last error seen before giving up.
type RetryLimitError struct {
	Attempts int
	Err      error
}

// Error implements the error interface.
func (e *RetryLimitError) Error() string {
	return fmt.Sprintf("%v after %d attempts: %v", ErrRetryLimitExceeded, e.Attempts, e.Err)
}

// Unwrap returns both the sentinel and the cause.
func (e *RetryLimitError) Unwrap() []error {
	return []error{ErrRetryLimitExceeded, e.Err}
}

// Rand serves as a minimal facade over rand.Rand to ease mocking.
type Rand interface {
	// Float64 generates a pseudo-random number in [0.0, 1.0).
	Float64() float64
}

var _ Rand = (*rand.Rand)(nil)

// Policy decides whether a failed attempt should be retried.
type Policy func(err error) bool

// Retrying retries operations that fail with transient errors. Delays grow
// exponentially: the n-th retry waits about (2^n - 1) times the coefficient,
// scaled by a random factor and capped at the maximum delay.
//
// A Retrying strategy keeps per-execution state and must not be shared by
// concurrent executions; resolve a fresh one from a StrategyFactory instead.
type Retrying struct {
	maxRetries   int
	maxDelay     time.Duration
	coefficient  time.Duration
	randomFactor float64
	growthFactor float64
	policy       Policy
	logger       *slog.Logger
	r            Rand
	sleep        func(ctx context.Context, d time.Duration) error
	retries      int
}

type config struct {
	maxRetries  int
	maxDelay    time.Duration
	coefficient time.Duration
	policy      Policy
	logger      *slog.Logger
	r           Rand
	sleep       func(ctx context.Context, d time.Duration) error
}

// Option customizes a Retrying strategy.
type Option func(*config)

// WithMaxRetries sets the maximum number of retries. Negative values are
// treated as zero. If not customized, DefaultMaxRetries is used.
func WithMaxRetries(n int) Option {
	return func(c *config) {
		c.maxRetries = max(0, n)
	}
}

// WithMaxDelay caps the delay between retries. Negative values are treated
// as zero. If not customized, DefaultMaxDelay is used.
func WithMaxDelay(d time.Duration) Option {
	return func(c *config) {
		c.maxDelay = max(0, d)
	}
}

// WithCoefficient sets the base unit of the exponential delay.
func WithCoefficient(d time.Duration) Option {
	return func(c *config) {
		c.coefficient = max(0, d)
	}
}

// WithPolicy sets the function classifying retryable errors. If nil, the
// option is ignored and Transient is used.
func WithPolicy(p Policy) Option {
	return func(c *config) {
		if p != nil {
			c.policy = p
		}
	}
}

// WithLogger sets the logger used to report retries. If nil, the option is
// ignored.
func WithLogger(log *slog.Logger) Option {
	return func(c *config) {
		if log != nil {
			c.logger = log
		}
	}
}

// WithRand sets the source of randomness for the delay. If nil, the option
// is ignored.
func WithRand(r Rand) Option {
	return func(c *config) {
		if r != nil {
			c.r = r
		}
	}
}

// WithSleep replaces the function used to wait between attempts.
func WithSleep(fn func(ctx context.Context, d time.Duration) error) Option {
	return func(c *config) {
		if fn != nil {
			c.sleep = fn
		}
	}
}

// NewRetrying creates a retrying strategy.
func NewRetrying(opts ...Option) *Retrying {
	c := config{
		maxRetries:  DefaultMaxRetries,
		maxDelay:    DefaultMaxDelay,
		coefficient: DefaultCoefficient,
		policy:      Transient,
		logger:      slog.Default(),
		sleep:       sleep,
	}
	for _, opt := range opts {
		opt(&c)
	}
	r := c.r
	if r == nil {
		r = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	return &Retrying{
		maxRetries:   c.maxRetries,
		maxDelay:     c.maxDelay,
		coefficient:  c.coefficient,
		randomFactor: DefaultRandomFactor,
		growthFactor: DefaultGrowthFactor,
		policy:       c.policy,
		logger:       c.logger,
		r:            r,
		sleep:        c.sleep,
	}
}

// RetriesOnFailure implements Strategy.
func (s *Retrying) RetriesOnFailure() bool { return true }

// NextDelay returns the delay before the next retry, or false if the retry
// budget is exhausted. Each call counts as one retry.
func (s *Retrying) NextDelay() (time.Duration, bool) {
	n := s.retries
	s.retries++
	if n >= s.maxRetries {
		return 0, false
	}
	f := 1 + s.r.Float64()*(s.randomFactor-1)
	d := (math.Pow(s.growthFactor, float64(n)) - 1) * f * float64(s.coefficient)
	return min(s.maxDelay, time.Duration(d)), true
}

// Execute implements Strategy.
func (s *Retrying) Execute(ctx context.Context, op func(ctx context.Context) error) error {
	if op == nil {
		return ErrNilOperation
	}
	s.retries = 0
	for attempt := 1; ; attempt++ {
		err := op(ctx)
		if err == nil {
			return nil
		}
		if !s.policy(err) {
			return err
		}
		delay, ok := s.NextDelay()
		if !ok {
			return &RetryLimitError{Attempts: attempt, Err: err}
		}
		if s.logger.Enabled(ctx, slog.LevelDebug) {
			s.logger.DebugContext(ctx, "Operation failed, retrying",
				slog.Int("attempt", attempt),
				slog.Duration("delay", delay),
				slog.Any("error", err),
			)
		}
		if err := s.sleep(ctx, delay); err != nil {
			return err
		}
	}
}

var _ Strategy = (*Retrying)(nil)

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transient reports whether err is likely to go away when the operation is
// retried: broken connections, network timeouts, and Postgres errors of the
// connection exception, transaction rollback, insufficient resources and
// operator intervention classes (except query cancellation).
func Transient(err error) bool {
	if err == nil ||
		errors.Is(err, context.Canceled) ||
		errors.Is(err, context.DeadlineExceeded) {
		return false
	}
	if errors.Is(err, driver.ErrBadConn) {
		return true
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case code == "57014": // query_canceled
			return false
		case strings.HasPrefix(code, "08"),
			strings.HasPrefix(code, "40"),
			strings.HasPrefix(code, "53"),
			strings.HasPrefix(code, "57P"):
			return true
		}
		return false
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
