package types

import (
	"fmt"
	"time"
)

// ModeState is an immutable snapshot of the operation-mode machine.
//
// States are never mutated in place: every transition constructs a complete
// new snapshot through Apply, which validates invariants before the new state
// can exist. Readers therefore never observe mismatched mode/reason/retry
// fields.
type ModeState struct {
	Mode          OperationMode `json:"mode"`
	Reason        OfflineReason `json:"reason,omitempty"`
	Since         time.Time     `json:"since"`
	RetryCount    int           `json:"retry_count"`
	MaxRetryCount int           `json:"max_retry_count"`
	NextRetryAt   time.Time     `json:"next_retry_at,omitempty"` // zero when no backoff window is active
}

// StatePatch describes a requested transition. Nil fields keep the current
// value. This replaces ad-hoc field mutation: the only way to change a
// ModeState is to Apply a patch, and invalid combinations are rejected
// outright.
type StatePatch struct {
	Mode        *OperationMode
	Reason      *OfflineReason
	RetryCount  *int
	NextRetryAt *time.Time
	Now         time.Time // transition timestamp; zero means time.Now()
}

// NewModeState constructs the initial state. The machine starts Online with
// zero retries; callers transition away from it via Apply.
func NewModeState(maxRetryCount int, now time.Time) ModeState {
	if maxRetryCount <= 0 {
		maxRetryCount = 3
	}
	if now.IsZero() {
		now = time.Now()
	}
	return ModeState{
		Mode:          ModeOnline,
		Since:         now,
		MaxRetryCount: maxRetryCount,
	}
}

// Apply produces the next state from the current one.
//
// Invariants enforced here:
//   - Reason must be set whenever Mode != Online
//   - Reason is cleared and RetryCount resets to 0 on entering Online
//   - RetryCount never exceeds MaxRetryCount (clamped, CanRetry turns false)
//   - Since is updated only when the mode actually changes
func (s ModeState) Apply(p StatePatch) (ModeState, error) {
	next := s

	now := p.Now
	if now.IsZero() {
		now = time.Now()
	}

	if p.Mode != nil {
		if !p.Mode.Valid() {
			return s, fmt.Errorf("invalid operation mode: %q", *p.Mode)
		}
		next.Mode = *p.Mode
	}
	if p.Reason != nil {
		next.Reason = *p.Reason
	}
	if p.RetryCount != nil {
		if *p.RetryCount < 0 {
			return s, fmt.Errorf("retry count must not be negative, got %d", *p.RetryCount)
		}
		next.RetryCount = *p.RetryCount
	}
	if p.NextRetryAt != nil {
		next.NextRetryAt = *p.NextRetryAt
	}

	if next.Mode == ModeOnline {
		next.Reason = ReasonNone
		next.RetryCount = 0
		next.NextRetryAt = time.Time{}
	} else if next.Reason == ReasonNone {
		return s, fmt.Errorf("reason is required for mode %q", next.Mode)
	}

	if next.RetryCount > next.MaxRetryCount {
		next.RetryCount = next.MaxRetryCount
	}

	if next.Mode != s.Mode {
		next.Since = now
	}

	return next, nil
}

// CanRetry reports whether another recovery attempt may be made at the given
// time. Once RetryCount reaches MaxRetryCount this stays false until the
// backoff window (NextRetryAt) has elapsed.
func (s ModeState) CanRetry(now time.Time) bool {
	if s.Mode == ModeOnline {
		return false
	}
	if s.RetryCount < s.MaxRetryCount {
		return true
	}
	return !s.NextRetryAt.IsZero() && !now.Before(s.NextRetryAt)
}

// Validate checks the state invariants. Apply already enforces them; this is
// for states that crossed a serialization boundary.
func (s ModeState) Validate() error {
	if !s.Mode.Valid() {
		return fmt.Errorf("invalid operation mode: %q", s.Mode)
	}
	if s.Mode != ModeOnline && s.Reason == ReasonNone {
		return fmt.Errorf("reason is required for mode %q", s.Mode)
	}
	if s.Mode == ModeOnline && s.RetryCount != 0 {
		return fmt.Errorf("retry count must be 0 while online, got %d", s.RetryCount)
	}
	if s.RetryCount > s.MaxRetryCount {
		return fmt.Errorf("retry count %d exceeds maximum %d", s.RetryCount, s.MaxRetryCount)
	}
	return nil
}
