package domain

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestRemoteScoringError_IsSentinelAndCause(t *testing.T) {
	err := NewRemoteScoringError("cross_encoder", context.DeadlineExceeded)

	if !errors.Is(err, ErrRemoteScoring) {
		t.Error("expected errors.Is(err, ErrRemoteScoring)")
	}
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Error("expected errors.Is(err, context.DeadlineExceeded)")
	}

	var rse *RemoteScoringError
	if !errors.As(err, &rse) {
		t.Fatal("expected errors.As to RemoteScoringError")
	}
	if rse.Step != "cross_encoder" {
		t.Errorf("expected step cross_encoder, got %q", rse.Step)
	}
}

func TestRemoteScoringError_NilCause(t *testing.T) {
	err := NewRemoteScoringError("cohere", nil)
	if !errors.Is(err, ErrRemoteScoring) {
		t.Error("expected sentinel match")
	}
	if !strings.Contains(err.Error(), `"cohere"`) {
		t.Errorf("expected step name in message, got %q", err.Error())
	}
}

func TestFormattedSentinels(t *testing.T) {
	if err := InvalidInputf("candidate %d has empty text", 3); !errors.Is(err, ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	err := Configurationf("lambda %v out of range", 1.5)
	if !errors.Is(err, ErrConfiguration) {
		t.Errorf("expected ErrConfiguration, got %v", err)
	}
	if !strings.Contains(err.Error(), "lambda 1.5 out of range") {
		t.Errorf("unexpected message %q", err.Error())
	}
}
