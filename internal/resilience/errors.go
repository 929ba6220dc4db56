package resilience

import (
	"errors"
	"net"
	"net/textproto"
	"strings"
	"syscall"
)

// TransientError marks an error as safe to retry. Code is the protocol
// status (FTP reply or HTTP status) when one is known.
type TransientError struct {
	Err  error
	Code int
}

func (e *TransientError) Error() string { return e.Err.Error() }

func (e *TransientError) Unwrap() error { return e.Err }

// NewTransientError wraps err as transient.
func NewTransientError(err error, code int) *TransientError {
	return &TransientError{Err: err, Code: code}
}

var transientPatterns = []string{
	"connection reset by peer",
	"broken pipe",
	"temporary failure in name resolution",
	"tls handshake timeout",
	"i/o timeout",
	"unexpected eof",
}

// IsTransient reports whether err is worth retrying: an explicit
// TransientError, a transient FTP reply, a network timeout, a reset or
// refused connection, or a message matching a known transient pattern.
func IsTransient(err error) bool {
	if err == nil {
		return false
	}

	var te *TransientError
	if errors.As(err, &te) {
		return true
	}

	var reply *textproto.Error
	if errors.As(err, &reply) {
		return IsTransientFTPCode(reply.Code)
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}

	if errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNABORTED) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, p := range transientPatterns {
		if strings.Contains(msg, p) {
			return true
		}
	}
	return false
}

// IsTransientFTPCode reports whether an FTP reply code is a temporary
// server-side condition (4xx family).
func IsTransientFTPCode(code int) bool {
	switch code {
	case 421, // service not available
		425, // can't open data connection
		426, // connection closed, transfer aborted
		450, // file unavailable (busy)
		451: // local error in processing
		return true
	default:
		return false
	}
}

// IsTransientHTTPStatus reports whether an HTTP status is worth retrying.
func IsTransientHTTPStatus(status int) bool {
	switch status {
	case 408, 429, 500, 502, 503, 504:
		return true
	default:
		return false
	}
}
