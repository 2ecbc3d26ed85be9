package gwatchdog

import (
	"context"
	"errors"
)

// IsTermination reports whether ctx was canceled by a watchdog,
// either because a subsystem stopped responding or through [*Watchdog.Terminate].
func IsTermination(ctx context.Context) bool {
	cause := context.Cause(ctx)
	if cause == nil {
		return false
	}

	return errors.As(cause, new(FailureToRespondError)) ||
		errors.As(cause, new(ForcedTerminationError))
}

// FailureToRespondError is the cancellation cause when a monitored subsystem
// does not acknowledge a probe in time.
type FailureToRespondError struct {
	SubsystemName string
}

func (e FailureToRespondError) Error() string {
	return "watchdog: subsystem " + e.SubsystemName + " missed its response deadline"
}

// ForcedTerminationError is the cancellation cause after [*Watchdog.Terminate].
type ForcedTerminationError struct {
	Reason string
}

func (e ForcedTerminationError) Error() string {
	return "watchdog: terminated: " + e.Reason
}
