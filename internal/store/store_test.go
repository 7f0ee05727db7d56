package store

import (
	"context"
	"errors"
	"testing"
	"time"

	"profanity-stream-service/internal/models"
)

type fakeRecorder struct {
	err    error
	events []models.DetectionEvent
}

func (f *fakeRecorder) Record(_ context.Context, ev models.DetectionEvent) error {
	f.events = append(f.events, ev)
	return f.err
}

func TestTee_RecordsToAll(t *testing.T) {
	a, b := &fakeRecorder{}, &fakeRecorder{}
	tee := Tee{a, b}

	if err := tee.Record(context.Background(), models.DetectionEvent{UserID: "u"}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(a.events) != 1 || len(b.events) != 1 {
		t.Errorf("expected both recorders to receive the event, got %d and %d", len(a.events), len(b.events))
	}
}

func TestTee_ContinuesAfterFailure(t *testing.T) {
	boom := errors.New("boom")
	a, b := &fakeRecorder{err: boom}, &fakeRecorder{}

	err := Tee{a, b}.Record(context.Background(), models.DetectionEvent{})
	if !errors.Is(err, boom) {
		t.Errorf("expected joined error to wrap boom, got %v", err)
	}
	if len(b.events) != 1 {
		t.Error("expected second recorder to still receive the event")
	}
}

func TestRoundConfidence(t *testing.T) {
	tests := []struct {
		in, want float64
	}{
		{0.8, 0.8},
		{0.53333, 0.53},
		{0.556, 0.56},
		{0, 0},
	}
	for _, tt := range tests {
		if got := RoundConfidence(tt.in); got != tt.want {
			t.Errorf("RoundConfidence(%v) = %v, want %v", tt.in, got, tt.want)
		}
	}
}

func TestStartOfDay(t *testing.T) {
	loc := time.FixedZone("KST", 9*3600)
	in := time.Date(2026, 3, 4, 15, 16, 17, 18, loc)

	got := StartOfDay(in)
	want := time.Date(2026, 3, 4, 0, 0, 0, 0, loc)
	if !got.Equal(want) {
		t.Errorf("expected %v, got %v", want, got)
	}
}
