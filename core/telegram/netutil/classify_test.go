package netutil

import (
	"context"
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"
	"time"

	tele "gopkg.in/telebot.v4"

	"github.com/m3rciful/kaoribot/core/errs"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name  string
		err   error
		kind  string
		retry bool
		code  string
	}{
		{"timeout", context.DeadlineExceeded, KindTimeout, true, errs.CodeTransport},
		{"canceled", context.Canceled, KindCanceled, false, errs.CodeTransport},
		{"dial", &net.OpError{Op: "dial", Err: errors.New("refused")}, KindDial, true, errs.CodeTransport},
		{"reset", fmt.Errorf("read: %w", syscall.ECONNRESET), KindReset, true, errs.CodeTransport},
		{"dns", &net.DNSError{Err: "no such host", IsNotFound: true}, KindDNS, false, errs.CodeTransport},
		{"forbidden", &tele.Error{Code: 403, Description: "Forbidden"}, KindHTTP4xx, false, errs.CodeUpstream},
		{"bad gateway", &tele.Error{Code: 502, Description: "Bad Gateway"}, KindHTTP5xx, true, errs.CodeUpstream},
		{"described", errors.New("telegram: chat not found (400)"), KindHTTP4xx, false, errs.CodeUpstream},
		{"other", errors.New("boom"), KindUnknown, false, errs.CodeUnknown},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := Classify(tt.err)
			if f.Kind != tt.kind || f.Retry != tt.retry || f.Code() != tt.code {
				t.Fatalf("got %+v code=%s", f, f.Code())
			}
		})
	}
}

func TestClassifyFloodWait(t *testing.T) {
	f := Classify(tele.FloodError{RetryAfter: 7})
	if f.Kind != KindFlood || !f.Retry || f.RetryAfter != 7*time.Second || f.Status != 429 {
		t.Fatalf("flood = %+v", f)
	}
}

func TestRedactHidesToken(t *testing.T) {
	err := errors.New(`Post "https://api.telegram.org/bot123456:AA-bb_CC/sendMessage": timeout`)
	if got := Redact(err); got != `Post "https://api.telegram.org/bot<redacted>/sendMessage": timeout` {
		t.Fatalf("redacted = %q", got)
	}
}
