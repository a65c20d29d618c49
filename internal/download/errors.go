package download

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"syscall"

	"github.com/handiism/gallery-fetch/internal/http"
	ioutils "github.com/handiism/gallery-fetch/internal/io"
)

// Domain is the failure domain of a DownloadError.
type Domain int

const (
	// RequestFailure covers transport errors and non-2xx responses.
	RequestFailure Domain = iota

	// IoFailure covers errors while persisting the response to disk.
	IoFailure

	// VerificationFailure covers files that arrived but are not images.
	VerificationFailure
)

func (d Domain) String() string {
	switch d {
	case RequestFailure:
		return "request"
	case IoFailure:
		return "io"
	case VerificationFailure:
		return "verification"
	default:
		return "unknown"
	}
}

// RequestKind refines a RequestFailure.
type RequestKind string

const (
	KindTimeout    RequestKind = "timeout"
	KindConnect    RequestKind = "connect"
	KindServer     RequestKind = "server"
	KindClient     RequestKind = "client"
	KindInvalidURL RequestKind = "invalid-url"
	KindUnknown    RequestKind = "unknown"
)

// IoKind refines an IoFailure.
type IoKind string

const (
	IoInterrupted   IoKind = "interrupted"
	IoTimeout       IoKind = "timeout"
	IoReset         IoKind = "reset"
	IoAborted       IoKind = "aborted"
	IoBrokenPipe    IoKind = "broken-pipe"
	IoUnexpectedEOF IoKind = "unexpected-eof"
	IoDiskFull      IoKind = "disk-full"
	IoOther         IoKind = "other"
)

// OS error codes reporting a full disk: ENOSPC and Windows ERROR_DISK_FULL.
const (
	codeNoSpace  = 28
	codeDiskFull = 112
)

// DownloadError is the classified failure of one download attempt.
//
// Exactly one of the kind fields is meaningful, selected by Domain. The
// original error is kept in Err for messages and errors.Is/As, but the
// retry decision only ever looks at the classified fields.
type DownloadError struct {
	Domain Domain

	// Status is the HTTP status of a RequestFailure, 0 when there was no response.
	Status int

	// Request is set for RequestFailure.
	Request RequestKind

	// IO is set for IoFailure.
	IO IoKind

	// Code is the raw OS error code of an IoFailure, 0 when unknown.
	Code int

	// Reason describes a VerificationFailure.
	Reason string

	Err error
}

func (e *DownloadError) Error() string {
	switch e.Domain {
	case RequestFailure:
		return fmt.Sprintf("request error: %v", e.Err)
	case IoFailure:
		return fmt.Sprintf("io error: %v", e.Err)
	default:
		return fmt.Sprintf("verification failed: %s", e.Reason)
	}
}

func (e *DownloadError) Unwrap() error {
	return e.Err
}

// IsRetryable reports whether another attempt may succeed.
//
// Rules, in order:
//   - connect failures and timeouts are retryable
//   - HTTP 429 and 5xx are retryable, every other status is not
//   - a full disk is never retryable, whatever the I/O kind
//   - interrupted, timed out, reset, aborted, broken pipe and truncated
//     streams are retryable, other I/O failures are not
//   - verification failures are never retryable
func (e *DownloadError) IsRetryable() bool {
	switch e.Domain {
	case RequestFailure:
		if e.Request == KindConnect || e.Request == KindTimeout {
			return true
		}
		if e.Status == 429 {
			return true
		}
		return e.Status >= 500 && e.Status <= 599
	case IoFailure:
		if e.IsDiskFull() {
			return false
		}
		switch e.IO {
		case IoInterrupted, IoTimeout, IoReset, IoAborted, IoBrokenPipe, IoUnexpectedEOF:
			return true
		}
		return false
	default:
		return false
	}
}

// IsDiskFull reports whether the OS flagged the failure as a full disk.
func (e *DownloadError) IsDiskFull() bool {
	return e.Domain == IoFailure && (e.IO == IoDiskFull || e.Code == codeNoSpace || e.Code == codeDiskFull)
}

// HTTPStatus returns the response status carried by the error, if any.
func (e *DownloadError) HTTPStatus() (int, bool) {
	if e.Domain != RequestFailure || e.Status == 0 {
		return 0, false
	}
	return e.Status, true
}

// IsRetryable reports whether err is a DownloadError that may succeed on
// another attempt. Errors that are not DownloadErrors are classified first.
func IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	return Classify(err).IsRetryable()
}

// Status returns the HTTP status carried by err, if any.
func Status(err error) (int, bool) {
	if err == nil {
		return 0, false
	}
	return Classify(err).HTTPStatus()
}

// Classify turns any error raised by the fetch pipeline into a DownloadError.
//
// Already classified errors are returned unchanged. Content problems become
// VerificationFailure, errors persisting the body become IoFailure and
// everything else is treated as a RequestFailure.
func Classify(err error) *DownloadError {
	var de *DownloadError
	if errors.As(err, &de) {
		return de
	}

	var verr *ioutils.VerificationError
	if errors.As(err, &verr) {
		return &DownloadError{Domain: VerificationFailure, Reason: verr.Reason + ": " + verr.Path, Err: err}
	}

	var statusErr *http.StatusError
	if errors.As(err, &statusErr) {
		kind := KindUnknown
		switch {
		case statusErr.Code >= 500:
			kind = KindServer
		case statusErr.Code >= 400:
			kind = KindClient
		}
		return &DownloadError{Domain: RequestFailure, Status: statusErr.Code, Request: kind, Err: err}
	}

	var fileErr *http.FileError
	var pathErr *os.PathError
	if errors.As(err, &fileErr) || errors.As(err, &pathErr) {
		kind, code := ioKindOf(err)
		return &DownloadError{Domain: IoFailure, IO: kind, Code: code, Err: err}
	}

	return &DownloadError{Domain: RequestFailure, Request: requestKindOf(err), Err: err}
}

// NewVerificationError builds a VerificationFailure with the given reason.
func NewVerificationError(reason string) *DownloadError {
	return &DownloadError{Domain: VerificationFailure, Reason: reason, Err: errors.New(reason)}
}

func requestKindOf(err error) RequestKind {
	if errors.Is(err, http.ErrInvalidURL) {
		return KindInvalidURL
	}
	if errors.Is(err, context.Canceled) {
		return KindUnknown
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, os.ErrDeadlineExceeded) {
		return KindTimeout
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return KindTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return KindConnect
	}

	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return KindConnect
	}

	// The server hung up before sending a response.
	if errors.Is(err, syscall.ECONNREFUSED) || errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return KindConnect
	}

	return KindUnknown
}

func ioKindOf(err error) (IoKind, int) {
	var errno syscall.Errno
	code := 0
	if errors.As(err, &errno) {
		code = int(errno)
	}

	switch {
	case code == codeNoSpace || code == codeDiskFull || errors.Is(err, syscall.ENOSPC):
		return IoDiskFull, code
	case errors.Is(err, syscall.EINTR):
		return IoInterrupted, code
	case errors.Is(err, syscall.ECONNRESET):
		return IoReset, code
	case errors.Is(err, syscall.ECONNABORTED):
		return IoAborted, code
	case errors.Is(err, syscall.EPIPE):
		return IoBrokenPipe, code
	case errors.Is(err, io.ErrUnexpectedEOF):
		return IoUnexpectedEOF, code
	case errors.Is(err, syscall.ETIMEDOUT), errors.Is(err, os.ErrDeadlineExceeded), errors.Is(err, context.DeadlineExceeded):
		return IoTimeout, code
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return IoTimeout, code
	}

	return IoOther, code
}

func newIoError(err error) *DownloadError {
	kind, code := ioKindOf(err)
	return &DownloadError{Domain: IoFailure, IO: kind, Code: code, Err: err}
}
