package provider

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"
)

// TransportError is returned when the provider can't be reached.
type TransportError struct {
	Op      string
	Timeout time.Duration
	Err     error
}

func (e *TransportError) Error() string {
	msg := fmt.Sprintf("%s: %s", e.Op, e.Err)
	if e.Timeout > 0 && IsTimeout(e.Err) {
		msg = fmt.Sprintf("%s actual timeout (ms) : %d", msg, e.Timeout.Milliseconds())
	}
	return msg
}

func (e *TransportError) Unwrap() error { return e.Err }

// IsTimeout returns true when err is a deadline or a network timeout.
func IsTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

// IsTransport returns true when err is a provider transport failure.
func IsTransport(err error) bool {
	var terr *TransportError
	return errors.As(err, &terr)
}
