package transport

import (
	"errors"
	"fmt"
)

// ConnectivityError means the request never reached or returned from the
// server: dial failure, DNS failure, timeout, or a cancelled context.
// No response exists, so the operation is safe to divert into the queue.
type ConnectivityError struct {
	Op  string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("connectivity failure during %s: %v", e.Op, e.Err)
}

func (e *ConnectivityError) Unwrap() error {
	return e.Err
}

// StatusError is an application-level rejection: the server answered
// with a 4xx/5xx. Retrying at this layer would never succeed, so these
// propagate to the caller unchanged.
type StatusError struct {
	Status int
	Body   []byte
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("server returned status %d", e.Status)
}

// IsConnectivity reports whether err classifies as a connectivity
// failure.
func IsConnectivity(err error) bool {
	var ce *ConnectivityError
	return errors.As(err, &ce)
}

// StatusCode extracts the HTTP status from an application failure.
func StatusCode(err error) (int, bool) {
	var se *StatusError
	if errors.As(err, &se) {
		return se.Status, true
	}
	return 0, false
}
