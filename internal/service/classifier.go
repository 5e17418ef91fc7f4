package service

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"errors"
	"io"
	"log/slog"
	"net"
	"syscall"

	"github.com/Strob0t/Courier/internal/adapter/httpclient"
	"github.com/Strob0t/Courier/internal/domain/delivery"
)

// Classify maps a delivery error to exactly one ErrorKind. A received HTTP
// response wins over the transport error families. Errors matching no
// family are logged at ERROR and reported as delivery.KindUnknown.
func Classify(err error) delivery.ErrorKind {
	if err == nil {
		return ""
	}

	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return delivery.KindForStatus(statusErr.StatusCode)
	}

	if errors.Is(err, syscall.ECONNREFUSED) {
		return delivery.KindConnectionRefused
	}

	if isConnectTimeout(err) {
		return delivery.KindConnectTimeout
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return delivery.KindConnectTimeout
		}
		return delivery.KindUnknownHost
	}

	var netErr net.Error
	if (errors.As(err, &netErr) && netErr.Timeout()) || errors.Is(err, context.DeadlineExceeded) {
		return delivery.KindSocketTimeout
	}

	// A peer answering in plain text fails the handshake with a record
	// header error, so this precedes the handshake family.
	var recordErr tls.RecordHeaderError
	if errors.As(err, &recordErr) {
		return delivery.KindUnsupportedSSLMessage
	}

	if isHandshakeFailure(err) {
		return delivery.KindSSLHandshake
	}

	slog.Error("unclassified delivery error", "error", err)
	return delivery.KindUnknown
}

// StatusCode returns the HTTP status carried by err, or 0.
func StatusCode(err error) int {
	var statusErr *httpclient.StatusError
	if errors.As(err, &statusErr) {
		return statusErr.StatusCode
	}
	return 0
}

// isConnectTimeout reports a timeout while dialing. It is checked before
// the generic timeout family, which would otherwise swallow it.
func isConnectTimeout(err error) bool {
	var opErr *net.OpError
	return errors.As(err, &opErr) && opErr.Op == "dial" && opErr.Timeout()
}

func isHandshakeFailure(err error) bool {
	var (
		unknownAuthority x509.UnknownAuthorityError
		hostname         x509.HostnameError
		invalid          x509.CertificateInvalidError
		verification     *tls.CertificateVerificationError
		alert            tls.AlertError
		handshake        *httpclient.HandshakeError
	)
	return errors.As(err, &handshake) ||
		errors.As(err, &unknownAuthority) ||
		errors.As(err, &hostname) ||
		errors.As(err, &invalid) ||
		errors.As(err, &verification) ||
		errors.As(err, &alert)
}

// isSocketFailure reports a broken connection after it was established.
func isSocketFailure(err error) bool {
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, io.ErrUnexpectedEOF) || errors.Is(err, io.EOF) {
		return true
	}
	var opErr *net.OpError
	return errors.As(err, &opErr)
}
