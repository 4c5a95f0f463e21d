// Package throttle converts intensities to device levels and rate-limits the
// resulting command stream for one provider instance.
package throttle

import (
	"math"
	"sync"
	"time"

	"github.com/c360/hapticlink/haptic"
)

// Verdict is the outcome of a throttle decision
type Verdict int

const (
	// Send means the command should go out; state has been recorded
	Send Verdict = iota
	// TooSoon means a continuous command arrived inside MinInterval
	TooSoon
	// Repeat means the same level was sent within RepeatWindow
	Repeat
)

// String returns a string representation of the verdict
func (v Verdict) String() string {
	switch v {
	case Send:
		return "send"
	case TooSoon:
		return "too_soon"
	case Repeat:
		return "repeat"
	default:
		return "unknown"
	}
}

// Option configures a Throttler
type Option func(*Throttler)

// WithClock replaces time.Now, for tests
func WithClock(now func() time.Time) Option {
	return func(t *Throttler) {
		if now != nil {
			t.now = now
		}
	}
}

// Throttler holds the per-instance throttle state: the last level sent and
// when. All decisions are serialized by mu.
type Throttler struct {
	cfg Config
	now func() time.Time

	mu      sync.Mutex
	hasSent bool
	last    int
	lastAt  time.Time
	seq     uint64
}

// state is what a Decision restores when it is withdrawn
type state struct {
	hasSent bool
	last    int
	lastAt  time.Time
}

// Decision is the result of Evaluate. A Send decision can be withdrawn
// while nothing newer has been recorded.
type Decision struct {
	Verdict Verdict
	seq     uint64
	prev    state
}

// New creates a Throttler. Zero fields in cfg take their defaults.
func New(cfg Config, opts ...Option) *Throttler {
	t := &Throttler{cfg: cfg.withDefaults(), now: time.Now}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Config returns the effective configuration
func (t *Throttler) Config() Config {
	return t.cfg
}

// Quantize maps an intensity onto the level scale
func (t *Throttler) Quantize(intensity float64) int {
	return t.cfg.Quantize(intensity)
}

// Decide classifies a command at level, applies the continuous gate and the
// repeat suppression, and records the level when the verdict is Send.
func (t *Throttler) Decide(level int, duration time.Duration) Verdict {
	return t.Evaluate(level, duration).Verdict
}

// Evaluate is Decide returning a Decision that Withdraw accepts
func (t *Throttler) Evaluate(level int, duration time.Duration) Decision {
	now := t.now()

	t.mu.Lock()
	defer t.mu.Unlock()

	if t.hasSent {
		elapsed := now.Sub(t.lastAt)
		if duration < t.cfg.ContinuousThreshold && elapsed < t.cfg.MinInterval {
			return Decision{Verdict: TooSoon}
		}
		if level == t.last && elapsed < t.cfg.RepeatWindow {
			return Decision{Verdict: Repeat}
		}
	}

	prev := state{hasSent: t.hasSent, last: t.last, lastAt: t.lastAt}
	t.record(level, now)
	return Decision{Verdict: Send, seq: t.seq, prev: prev}
}

// Withdraw undoes a Send decision whose command never reached the device,
// so the interval keeps counting from the last command that did. It reports
// false when d was not Send or a later record superseded it.
func (t *Throttler) Withdraw(d Decision) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	if d.Verdict != Send || d.seq != t.seq {
		return false
	}
	t.hasSent, t.last, t.lastAt = d.prev.hasSent, d.prev.last, d.prev.lastAt
	t.seq++
	return true
}

// Record stores level as sent now, bypassing the gates. Used by stop paths.
func (t *Throttler) Record(level int) {
	now := t.now()
	t.mu.Lock()
	t.record(level, now)
	t.mu.Unlock()
}

// Settle stores level as the current one without restarting MinInterval.
// A stop issued by a timer uses it, so the caller's next command is gated
// only against the caller's own previous command.
func (t *Throttler) Settle(level int) {
	t.mu.Lock()
	t.hasSent = true
	t.last = level
	t.seq++
	t.mu.Unlock()
}

func (t *Throttler) record(level int, now time.Time) {
	t.hasSent = true
	t.last = level
	t.lastAt = now
	t.seq++
}

// Reset returns the state to "nothing sent"
func (t *Throttler) Reset() {
	t.mu.Lock()
	t.hasSent = false
	t.last = 0
	t.lastAt = time.Time{}
	t.seq++
	t.mu.Unlock()
}

// Last returns the last recorded level and time; ok is false after Reset
func (t *Throttler) Last() (level int, at time.Time, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.lastAt, t.hasSent
}

// Representative reduces a window of levels to a single level
func (t *Throttler) Representative(levels []int) int {
	return t.cfg.Representative(levels)
}

// Quantize maps intensity in [0,1] to [0,MaxLevel]. Intensities at or below
// DeadZone give 0; the rest stretch linearly over [MinAudibleLevel,MaxLevel].
func (c Config) Quantize(intensity float64) int {
	c = c.withDefaults()
	i := haptic.ClampIntensity(intensity)
	if i <= c.DeadZone {
		return 0
	}
	span := float64(c.MaxLevel - c.MinAudibleLevel)
	level := c.MinAudibleLevel + int(math.Round((i-c.DeadZone)/(1-c.DeadZone)*span))
	if level > c.MaxLevel {
		return c.MaxLevel
	}
	return level
}

// Representative computes a weighted mean of levels where each sample weighs
// 1+level/10. If the window peak exceeds the mean by more than
// TransientMargin the peak is returned, otherwise the rounded mean.
func (c Config) Representative(levels []int) int {
	if len(levels) == 0 {
		return 0
	}
	c = c.withDefaults()

	var sum, weights float64
	peak := 0
	for _, l := range levels {
		if l < 0 {
			l = 0
		}
		if l > c.MaxLevel {
			l = c.MaxLevel
		}
		w := 1 + float64(l)/10
		sum += float64(l) * w
		weights += w
		if l > peak {
			peak = l
		}
	}
	mean := sum / weights

	if float64(peak)-mean > c.TransientMargin {
		return peak
	}
	return int(math.Round(mean))
}

// Quantize maps intensity with the default configuration
func Quantize(intensity float64) int {
	return DefaultConfig().Quantize(intensity)
}

// Representative reduces levels with the default configuration
func Representative(levels []int) int {
	return DefaultConfig().Representative(levels)
}

// QuantizeAll maps every sample with c
func (c Config) QuantizeAll(samples []float64) []int {
	levels := make([]int, len(samples))
	for i, s := range samples {
		levels[i] = c.Quantize(s)
	}
	return levels
}
