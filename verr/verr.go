// Package verr defines the playback error taxonomy and the classifier that routes
// failures into the appropriate recovery strategy and user message.
package verr

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"
	"syscall"
)

// Kind is a coarse category of a playback failure used to pick a recovery strategy.
type Kind int

const (
	// KindOther covers failures with no specialized recovery path.
	KindOther Kind = iota

	// KindTransport marks network/IO failures during playback or probing.
	KindTransport

	// KindCertificate marks TLS/trust failures, which no retry on the same source can fix.
	KindCertificate

	// KindCancelled marks a superseded in-flight operation. Never a true error; always swallowed.
	KindCancelled
)

func (k Kind) String() string {
	switch k {
	case KindTransport:
		return "transport"
	case KindCertificate:
		return "certificate"
	case KindCancelled:
		return "cancelled"
	default:
		return "other"
	}
}

// NoResultsError reports that every source failed or returned zero results for a query.
type NoResultsError struct {
	Query string
}

func (e *NoResultsError) Error() string {
	return fmt.Sprintf("no results for %q", e.Query)
}

// SourceUnavailableError reports that a candidate stream failed its availability probe
// or was previously marked failed for this session.
type SourceUnavailableError struct {
	SourceKey string
	URL       string
}

func (e *SourceUnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable", e.SourceKey)
}

// ExhaustedError is the terminal failover failure: no remaining candidate carries
// the requested episode.
type ExhaustedError struct {
	Title   string
	Episode int
}

func (e *ExhaustedError) Error() string {
	return fmt.Sprintf("all sources exhausted for %q episode %d", e.Title, e.Episode+1)
}

// ErrRequestCancelled marks an operation superseded by a newer one.
var ErrRequestCancelled = errors.New("request cancelled")

// Classify maps an arbitrary playback or network error onto the recovery taxonomy.
//
// Certificate failures are recognized before transport ones: a TLS handshake error
// usually unwraps to a net.OpError as well, and switching sources is the only fix.
func Classify(err error) Kind {
	if err == nil {
		return KindOther
	}

	if IsCancelled(err) {
		return KindCancelled
	}

	var (
		unknownAuthority x509.UnknownAuthorityError
		certInvalid      x509.CertificateInvalidError
		hostnameErr      x509.HostnameError
		recordHeader     tls.RecordHeaderError
	)
	if errors.As(err, &unknownAuthority) ||
		errors.As(err, &certInvalid) ||
		errors.As(err, &hostnameErr) ||
		errors.As(err, &recordHeader) ||
		containsAny(err.Error(), "certificate", "x509", "tls:") {
		return KindCertificate
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return KindTransport
	}
	if errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.EPIPE) {
		return KindTransport
	}

	return KindOther
}

// IsCancelled reports whether the error stems from a superseded in-flight operation.
func IsCancelled(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, ErrRequestCancelled)
}

func containsAny(s string, subs ...string) bool {
	lower := strings.ToLower(s)
	for _, sub := range subs {
		if strings.Contains(lower, sub) {
			return true
		}
	}
	return false
}
