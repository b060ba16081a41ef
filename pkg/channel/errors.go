package channel

import (
	"errors"
	"fmt"
	"time"
)

// ErrChannelClosed is returned by Send and Recv after the channel has been
// closed, either locally or by the peer. The condition is sticky: once a
// caller observes it, every later call fails the same way.
var ErrChannelClosed = errors.New("channel closed")

// TimeoutError reports that no data, or no prompt match, arrived in time.
// It is distinct from ErrChannelClosed so callers can tell "nothing
// happened" from "the connection is gone".
type TimeoutError struct {
	Op      string        // "recv" or "read-until-prompt"
	Pattern string        // pattern being waited for, empty for plain recv
	Elapsed time.Duration // time budget that elapsed
}

func (e *TimeoutError) Error() string {
	if e.Pattern == "" {
		return fmt.Sprintf("%s: no data after %s", e.Op, e.Elapsed)
	}
	return fmt.Sprintf("%s: prompt %q did not appear within %s", e.Op, e.Pattern, e.Elapsed)
}

// IsTimeout reports whether err is (or wraps) a TimeoutError.
func IsTimeout(err error) bool {
	var te *TimeoutError
	return errors.As(err, &te)
}
