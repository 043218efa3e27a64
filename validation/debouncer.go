package validation

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/linesmerrill/benefits-access-api/accesscodes"
)

// ErrSuperseded is returned to a call that a newer call on the same Debouncer replaced
var ErrSuperseded = errors.New("validation superseded by newer input")

// DefaultWindow is how long input must stay unchanged before it is looked up
const DefaultWindow = 500 * time.Millisecond

// lookupTimeout bounds a shared lookup once no caller is waiting on it any more
const lookupTimeout = 5 * time.Second

// Coalescer shares lookups between callers. Concurrent lookups of the same normalized input run
// once. Nothing is kept after a lookup completes, so a code redeemed or revoked a moment ago is
// never reported valid.
type Coalescer struct {
	validator *Validator
	window    time.Duration
	group     singleflight.Group
}

// NewCoalescer wraps validator. A non-positive window uses DefaultWindow.
func NewCoalescer(validator *Validator, window time.Duration) *Coalescer {
	if window <= 0 {
		window = DefaultWindow
	}
	return &Coalescer{
		validator: validator,
		window:    window,
	}
}

// Window is the debounce window typing sessions wait out
func (c *Coalescer) Window() time.Duration {
	return c.window
}

// Validate behaves like Validator.Validate. Abandoning ctx returns immediately; the shared lookup
// keeps running for the other callers.
func (c *Coalescer) Validate(ctx context.Context, raw string) (Result, error) {
	text := accesscodes.Normalize(raw)
	if accesscodes.TooShort(text) {
		return Result{Input: text, Reason: ReasonTooShort}, nil
	}

	ch := c.group.DoChan(text, func() (interface{}, error) {
		lookupCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), lookupTimeout)
		defer cancel()
		return c.validator.Validate(lookupCtx, text)
	})

	select {
	case <-ctx.Done():
		return Result{}, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return Result{}, res.Err
		}
		return res.Val.(Result), nil
	}
}

// Debouncer validates the input of one typing session. Every call supersedes the one before it:
// the older call returns ErrSuperseded as soon as the newer one arrives, so a stale answer is never
// delivered for input that has since changed.
type Debouncer struct {
	coalescer *Coalescer
	window    time.Duration

	generation atomic.Uint64
	mu         sync.Mutex
	cancel     context.CancelFunc
}

// NewDebouncer starts a typing session on top of a shared Coalescer
func NewDebouncer(coalescer *Coalescer) *Debouncer {
	return &Debouncer{
		coalescer: coalescer,
		window:    coalescer.Window(),
	}
}

// Validate waits for the input to settle, then looks it up. Input too short to be a code is
// answered immediately.
func (d *Debouncer) Validate(ctx context.Context, raw string) (Result, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	d.mu.Lock()
	gen := d.generation.Add(1)
	if d.cancel != nil {
		d.cancel()
	}
	d.cancel = cancel
	d.mu.Unlock()

	text := accesscodes.Normalize(raw)
	if accesscodes.TooShort(text) {
		return Result{Input: text, Reason: ReasonTooShort}, nil
	}

	timer := time.NewTimer(d.window)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return Result{}, d.superseded(gen, ctx.Err())
	case <-timer.C:
	}
	if d.generation.Load() != gen {
		return Result{}, ErrSuperseded
	}

	result, err := d.coalescer.Validate(ctx, text)
	if d.generation.Load() != gen {
		return Result{}, ErrSuperseded
	}
	return result, err
}

// superseded tells a cancellation caused by newer input apart from the caller giving up
func (d *Debouncer) superseded(gen uint64, err error) error {
	if d.generation.Load() != gen {
		return ErrSuperseded
	}
	return err
}
