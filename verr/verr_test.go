package verr

import (
	"context"
	"crypto/x509"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestClassify(t *testing.T) {
	Convey("When classifing errors", t, func() {
		Convey("Nil has no category", func() {
			So(Classify(nil), ShouldEqual, KindOther)
		})

		Convey("Cancelled contexts are recognized", func() {
			So(Classify(context.Canceled), ShouldEqual, KindCancelled)
			So(Classify(fmt.Errorf("search: %w", ErrRequestCancelled)), ShouldEqual, KindCancelled)
		})

		Convey("Certificate failures win over transport", func() {
			certErr := &net.OpError{
				Op:  "remote error",
				Err: x509.UnknownAuthorityError{},
			}
			So(Classify(certErr), ShouldEqual, KindCertificate)
			So(Classify(errors.New("x509: certificate signed by unknown authority")), ShouldEqual, KindCertificate)
			So(Classify(errors.New("tls: handshake failure")), ShouldEqual, KindCertificate)
		})

		Convey("Network errors are transport", func() {
			So(Classify(&net.OpError{Op: "read", Err: errors.New("timeout")}), ShouldEqual, KindTransport)
			So(Classify(fmt.Errorf("read: %w", syscall.ECONNRESET)), ShouldEqual, KindTransport)
			So(Classify(syscall.ECONNREFUSED), ShouldEqual, KindTransport)
		})

		Convey("Everything else is other", func() {
			So(Classify(errors.New("unexpected token")), ShouldEqual, KindOther)
		})
	})
}

func TestIsCancelled(t *testing.T) {
	Convey("When checking for cancellation", t, func() {
		So(IsCancelled(context.Canceled), ShouldBeTrue)
		So(IsCancelled(ErrRequestCancelled), ShouldBeTrue)
		So(IsCancelled(errors.New("boom")), ShouldBeFalse)
		So(IsCancelled(nil), ShouldBeFalse)
	})
}

func TestErrorMessages(t *testing.T) {
	Convey("When rendering error messages", t, func() {
		Convey("NoResultsError names the query", func() {
			err := &NoResultsError{Query: "cosmos"}
			So(err.Error(), ShouldEqual, `no results for "cosmos"`)
		})

		Convey("SourceUnavailableError names the source", func() {
			err := &SourceUnavailableError{SourceKey: "alpha", URL: "http://example.com/1.m3u8"}
			So(err.Error(), ShouldEqual, "source alpha unavailable")
		})

		Convey("ExhaustedError reports a human episode number", func() {
			err := &ExhaustedError{Title: "Cosmos", Episode: 2}
			So(err.Error(), ShouldEqual, `all sources exhausted for "Cosmos" episode 3`)
		})
	})
}

func TestKindString(t *testing.T) {
	Convey("When printing kinds", t, func() {
		So(KindTransport.String(), ShouldEqual, "transport")
		So(KindCertificate.String(), ShouldEqual, "certificate")
		So(KindCancelled.String(), ShouldEqual, "cancelled")
		So(KindOther.String(), ShouldEqual, "other")
	})
}
