package game

import "time"

// PendingPhase classifies how long a submitted operation has been waiting
// and which recovery option the caller may offer.
type PendingPhase string

const (
	PhaseDealing        PendingPhase = "dealing"
	PhaseRetryEligible  PendingPhase = "retryEligible"
	PhaseCancelEligible PendingPhase = "cancelEligible"
)

const (
	// RetryAfter is how long a pending operation waits before a retry is offered.
	RetryAfter = 60 * time.Second
	// CancelAfter is how long before cancel-with-refund is offered.
	CancelAfter = 300 * time.Second

	// maxPlausibleElapsed guards against clock skew and corrupted timestamps:
	// anything past this is treated as "just started" rather than trusted.
	maxPlausibleElapsed = 24 * time.Hour
)

// ClassifyPending is a pure function of elapsed time since submission.
// Negative or implausible elapsed values clamp to PhaseDealing.
func ClassifyPending(elapsed time.Duration) PendingPhase {
	if elapsed < 0 || elapsed > maxPlausibleElapsed {
		return PhaseDealing
	}
	switch {
	case elapsed >= CancelAfter:
		return PhaseCancelEligible
	case elapsed >= RetryAfter:
		return PhaseRetryEligible
	default:
		return PhaseDealing
	}
}

// ClassifyPendingAt computes elapsed against a submission time. A zero or
// future submittedAt clamps to PhaseDealing.
func ClassifyPendingAt(submittedAt, now time.Time) PendingPhase {
	if submittedAt.IsZero() {
		return PhaseDealing
	}
	return ClassifyPending(now.Sub(submittedAt))
}
