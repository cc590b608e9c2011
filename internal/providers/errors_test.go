package providers

import (
	"errors"
	"testing"
)

func TestClassifyError(t *testing.T) {
	cases := map[string]ErrorType{
		"insufficient_quota":    ErrorQuota,
		"out of credit":         ErrorQuota,
		"429 too many requests": ErrorRate,
		"rate limit reached":    ErrorRate,
		"context too long":      ErrorContext,
		"request timeout":       ErrorTransient,
		"service unavailable":   ErrorTransient,
		"bad request":           ErrorPermanent,
	}
	for msg, want := range cases {
		if got := ClassifyError(errors.New(msg)); got != want {
			t.Fatalf("classify %q: got %s want %s", msg, got, want)
		}
	}
	if got := ClassifyError(nil); got != "" {
		t.Fatalf("classify nil: got %s", got)
	}
}

func TestRetryable(t *testing.T) {
	for _, tt := range []struct {
		t    ErrorType
		want bool
	}{
		{ErrorQuota, true},
		{ErrorRate, true},
		{ErrorTransient, true},
		{ErrorContext, false},
		{ErrorPermanent, false},
	} {
		if got := Retryable(tt.t); got != tt.want {
			t.Fatalf("retryable %s: got %v want %v", tt.t, got, tt.want)
		}
	}
}
