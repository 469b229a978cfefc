// Package netutil classifies failed Telegram and HTTP calls so callers can
// decide whether to retry and how to label the failure.
package netutil

import (
	"context"
	"crypto/tls"
	"errors"
	"net"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"syscall"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/kaoribot/core/errs"
)

// Failure kinds reported as error_kind.
const (
	KindTimeout  = "timeout"
	KindCanceled = "canceled"
	KindDNS      = "dns"
	KindDial     = "dial"
	KindReset    = "reset"
	KindTLS      = "tls"
	KindFlood    = "flood"
	KindHTTP4xx  = "http_4xx"
	KindHTTP5xx  = "http_5xx"
	KindUnknown  = "unknown"
)

var tokenRe = regexp.MustCompile(`bot[0-9]+:[A-Za-z0-9_-]+`)

// Failure describes a failed outbound call.
type Failure struct {
	Kind   string
	Status int
	// RetryAfter is the wait Telegram asked for on 429 responses.
	RetryAfter time.Duration
	Retry      bool
}

// Code maps the failure to the errs classification: network trouble is a
// transport failure, an answer from Telegram is an upstream one.
func (f Failure) Code() string {
	switch f.Kind {
	case KindFlood, KindHTTP4xx, KindHTTP5xx:
		return errs.CodeUpstream
	case KindUnknown:
		return errs.CodeUnknown
	default:
		return errs.CodeTransport
	}
}

// Classify inspects err. Timeouts, refused or reset connections, flood waits
// and 5xx answers are retryable; 4xx answers and cancellation are not.
func Classify(err error) Failure {
	if err == nil {
		return Failure{}
	}
	if errors.Is(err, context.Canceled) {
		return Failure{Kind: KindCanceled}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return Failure{Kind: KindTimeout, Retry: true}
	}

	var flood tele.FloodError
	if errors.As(err, &flood) {
		return Failure{
			Kind:       KindFlood,
			Status:     http.StatusTooManyRequests,
			RetryAfter: time.Duration(flood.RetryAfter) * time.Second,
			Retry:      true,
		}
	}
	if status := Status(err); status != 0 {
		if status >= 500 {
			return Failure{Kind: KindHTTP5xx, Status: status, Retry: true}
		}
		if status >= 400 {
			return Failure{Kind: KindHTTP4xx, Status: status}
		}
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		if dnsErr.IsTimeout {
			return Failure{Kind: KindTimeout, Retry: true}
		}
		return Failure{Kind: KindDNS, Retry: dnsErr.IsTemporary}
	}
	var alert tls.AlertError
	if errors.As(err, &alert) {
		return Failure{Kind: KindTLS}
	}
	if errors.Is(err, syscall.ECONNRESET) || errors.Is(err, syscall.EPIPE) {
		return Failure{Kind: KindReset, Retry: true}
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return Failure{Kind: KindDial, Retry: true}
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return Failure{Kind: KindTimeout, Retry: true}
	}
	return Failure{Kind: KindUnknown}
}

// ShouldRetry reports whether err is worth another attempt.
func ShouldRetry(err error) bool {
	return Classify(err).Retry
}

// Status extracts the HTTP status of a Telegram API error, or 0.
func Status(err error) int {
	var apiErr *tele.Error
	if errors.As(err, &apiErr) {
		return apiErr.Code
	}
	var groupErr tele.GroupError
	if errors.As(err, &groupErr) {
		return http.StatusBadRequest
	}
	// telebot renders unknown API errors as "telegram: <description> (<code>)".
	msg := err.Error()
	open, end := strings.LastIndex(msg, "("), strings.LastIndex(msg, ")")
	if open >= 0 && end > open+1 {
		if code, convErr := strconv.Atoi(strings.TrimSpace(msg[open+1 : end])); convErr == nil && code >= 100 && code < 600 {
			return code
		}
	}
	return 0
}

// Redact hides bot tokens that request URLs leak into error messages.
func Redact(err error) string {
	if err == nil {
		return ""
	}
	return tokenRe.ReplaceAllString(err.Error(), "bot<redacted>")
}
