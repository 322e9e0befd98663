// Package retry decides what happens to a job after a failed attempt: reschedule with
// exponential backoff and jitter, or give up.
package retry

import (
	"errors"
	"math/rand/v2"
	"strings"
	"time"

	"academic-sync-service/internal/entity"
)

const (
	maxBaseDelay = 32 * time.Second
	minDelay     = time.Second
	jitterRatio  = 0.25
)

// permanentSignatures mark errors that will never succeed on retry.
var permanentSignatures = []string{
	"404",
	"not found",
	"invalid input",
	"invalid source code",
	"validation failed",
	"bad request",
	"unauthorized",
	"forbidden",
}

// PermanentError marks an error as non-retryable regardless of its message.
type PermanentError struct {
	Err error
}

func (e *PermanentError) Error() string { return e.Err.Error() }
func (e *PermanentError) Unwrap() error { return e.Err }

// Permanent wraps err so IsPermanent reports true. Permanent(nil) is nil.
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return &PermanentError{Err: err}
}

// IsPermanent reports whether err should fail a job without further attempts.
func IsPermanent(err error) bool {
	if err == nil {
		return false
	}
	var pe *PermanentError
	if errors.As(err, &pe) {
		return true
	}
	return IsPermanentMessage(err.Error())
}

// IsPermanentMessage matches msg against the permanent-error signatures, case-insensitively.
func IsPermanentMessage(msg string) bool {
	lower := strings.ToLower(msg)
	for _, sig := range permanentSignatures {
		if strings.Contains(lower, sig) {
			return true
		}
	}
	return false
}

// BaseDelay is the pre-jitter delay for the given attempt: min(2^attempt, 32) seconds.
func BaseDelay(attempt int) time.Duration {
	if attempt < 0 {
		attempt = 0
	}
	if attempt >= 5 {
		return maxBaseDelay
	}
	return time.Duration(1<<attempt) * time.Second
}

// Policy turns a failure into a Decision. The zero value is usable.
type Policy struct {
	// Jitter returns a value in [0, 1). Defaults to math/rand/v2.
	Jitter func() float64
}

// Delay applies ±25% uniform jitter to BaseDelay(attempt), floored at one second.
func (p Policy) Delay(attempt int) time.Duration {
	base := BaseDelay(attempt)
	r := rand.Float64 //nolint:gosec // jitter does not need crypto randomness
	if p.Jitter != nil {
		r = p.Jitter
	}
	offset := float64(base) * jitterRatio * (r()*2 - 1)
	d := base + time.Duration(offset)
	if d < minDelay {
		d = minDelay
	}
	return d
}

// Decision is the outcome of one failed attempt.
type Decision struct {
	Status      entity.JobStatus
	Attempts    int
	ScheduledAt time.Time
	Message     string
	Permanent   bool
}

// Retrying reports whether the job goes back to PENDING.
func (d Decision) Retrying() bool {
	return d.Status == entity.StatusPending
}

// Decide computes the next state of a job that has made `attempts` attempts before this
// failure. Attempts never exceed maxAttempts.
func (p Policy) Decide(attempts, maxAttempts int, cause error, now time.Time) Decision {
	if maxAttempts <= 0 {
		maxAttempts = entity.DefaultMaxAttempts
	}
	next := attempts + 1
	if next > maxAttempts {
		next = maxAttempts
	}

	msg := "unknown error"
	if cause != nil {
		msg = cause.Error()
	}

	d := Decision{
		Status:    entity.StatusFailed,
		Attempts:  next,
		Message:   Truncate(msg, entity.MaxErrorMessageLen),
		Permanent: IsPermanent(cause),
	}
	if !d.Permanent && next < maxAttempts {
		d.Status = entity.StatusPending
		d.ScheduledAt = now.Add(p.Delay(next))
	}
	return d
}

// Truncate cuts s to at most n runes.
func Truncate(s string, n int) string {
	if n <= 0 {
		return ""
	}
	runes := 0
	for i := range s {
		if runes == n {
			return s[:i]
		}
		runes++
	}
	return s
}
