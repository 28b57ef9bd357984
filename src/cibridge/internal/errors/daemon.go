package errors

import (
	"fmt"
)

// CrashError indicates that the daemon exited before it ever reported that it was listening.
type CrashError struct {
	ExitCode int
	Output   string
}

// Error is an implementation of the error interface.
func (n *CrashError) Error() string {
	return fmt.Sprintf("daemon failed with exit code %d: %s", n.ExitCode, n.Output)
}

// SpawnError indicates that the daemon process could not be launched at all.
type SpawnError struct {
	Command string
	Err     error
}

// Error is an implementation of the error interface.
func (n *SpawnError) Error() string {
	return fmt.Sprintf("could not start daemon %q: %v", n.Command, n.Err)
}

// Unwrap returns the underlying launch failure.
func (n *SpawnError) Unwrap() error {
	return n.Err
}

// MalformedResponseError indicates that the daemon responded with a body that is not valid JSON.
type MalformedResponseError struct {
	Body string
}

// Error is an implementation of the error interface.
func (n *MalformedResponseError) Error() string {
	return fmt.Sprintf("could not parse daemon output: %s", n.Body)
}
