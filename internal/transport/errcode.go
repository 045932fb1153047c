package transport

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
)

// Transport error codes follow libcurl's numbering so callers migrating from
// curl-based stacks see stable values. Codes at 101 and above are local to
// this engine and never collide with the transport range.
const (
	CodeOK                     = 0
	CodeUnsupportedProtocol    = 1
	CodeURLMalformed           = 3
	CodeCouldntResolveHost     = 6
	CodeCouldntConnect         = 7
	CodeHTTPReturnedError      = 22
	CodeWriteError             = 23
	CodeReadError              = 26
	CodeOperationTimedOut      = 28
	CodeSSLConnectError        = 35
	CodeAbortedByCallback      = 42
	CodeSendError              = 55
	CodeRecvError              = 56
	CodeSSLCertProblem         = 58
	CodePeerFailedVerification = 60
	CodeSSLCACertBadFile       = 77

	// Local (non-transport) failures.
	CodeFileOpenFailed   = 101
	CodeEngineInitFailed = 102
	CodeInternalError    = 2000

	// CompletionStatusOffset shifts completion-stage internal statuses out
	// of the transport code space.
	CompletionStatusOffset = 1000
)

// Error is the stable error shape every transport failure resolves into.
// Aborted marks transfers stopped by the progress hook, which the executor
// surfaces as cancellation rather than transport failure.
type Error struct {
	Code    int
	Message string
	Aborted bool
}

func (e *Error) Error() string {
	return fmt.Sprintf("transport error %d: %s", e.Code, e.Message)
}

// errAbortedByCallback is the sentinel the progress-wrapped readers and
// writers return when the hook signals abort.
var errAbortedByCallback = errors.New("aborted by progress callback")

// errTransferStalled is the sentinel the transfer watcher cancels with when
// no bytes move for the whole stall window.
var errTransferStalled = errors.New("transfer stalled")

// classify maps an error from the underlying HTTP stack onto the numeric
// taxonomy. connectPhase selects the dial-flavored default over the
// transfer-flavored one for errors that carry no better signal.
func classify(err error, connectPhase bool) *Error {
	var terr *Error
	if errors.As(err, &terr) {
		return terr
	}
	if errors.Is(err, errAbortedByCallback) {
		return &Error{Code: CodeAbortedByCallback, Message: "Callback aborted", Aborted: true}
	}

	msg := err.Error()
	var uerr *url.Error
	if errors.As(err, &uerr) {
		msg = uerr.Err.Error()
	}

	switch {
	case errors.Is(err, errTransferStalled):
		return &Error{Code: CodeOperationTimedOut, Message: "Timeout was reached: " + msg}
	case errors.Is(err, context.DeadlineExceeded):
		return &Error{Code: CodeOperationTimedOut, Message: "Timeout was reached"}
	case isTimeout(err):
		return &Error{Code: CodeOperationTimedOut, Message: msg}
	case isDNSFailure(err):
		return &Error{Code: CodeCouldntResolveHost, Message: msg}
	case isTLSFailure(err):
		return &Error{Code: CodeSSLConnectError, Message: msg}
	case isConnectFailure(err):
		return &Error{Code: CodeCouldntConnect, Message: msg}
	case connectPhase:
		return &Error{Code: CodeCouldntConnect, Message: msg}
	default:
		return &Error{Code: CodeRecvError, Message: msg}
	}
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

func isDNSFailure(err error) bool {
	var derr *net.DNSError
	return errors.As(err, &derr)
}

func isConnectFailure(err error) bool {
	var oerr *net.OpError
	if errors.As(err, &oerr) {
		return oerr.Op == "dial"
	}
	var serr *os.SyscallError
	return errors.As(err, &serr)
}

func isTLSFailure(err error) bool {
	var rerr tls.RecordHeaderError
	if errors.As(err, &rerr) {
		return true
	}
	var cerr *tls.CertificateVerificationError
	if errors.As(err, &cerr) {
		return true
	}
	var uerr x509.UnknownAuthorityError
	if errors.As(err, &uerr) {
		return true
	}
	var herr x509.HostnameError
	return errors.As(err, &herr)
}
