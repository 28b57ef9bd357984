package errors

import (
	stderr "errors"
	"regexp"
)

// New returns an error that formats as the given text.
// Each call to New returns a distinct error value even if the text is identical.
func New(msg string) error {
	return stderr.New(msg)
}

var (
	// ErrStillStarting reports that the daemon was spawned but has not announced that it is listening yet.
	ErrStillStarting = New("still starting daemon")
	// ErrNoServer reports that nothing is accepting requests on the daemon port.
	ErrNoServer = New("no daemon server reachable")
	// ErrDaemonFailed reports that the daemon did not produce a usable response.
	ErrDaemonFailed = New("daemon failed or not responding")
)

// IsTransient reports whether the error is expected to clear up on its own, so callers may retry later.
func IsTransient(e error) bool {
	return stderr.Is(e, ErrStillStarting)
}

// IsNoServer reports whether the error indicates that no daemon is listening.
func IsNoServer(e error) bool {
	return stderr.Is(e, ErrNoServer)
}

// IsMissingDependency reports whether the error text matches the signature of an analysis package that is not installed.
func IsMissingDependency(e error, signature *regexp.Regexp) bool {
	if e == nil || signature == nil {
		return false
	}
	return signature.MatchString(e.Error())
}
