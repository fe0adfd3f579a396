package ota

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestEstimateETA(t *testing.T) {
	tests := []struct {
		name    string
		sent    int64
		total   int64
		elapsed time.Duration
		want    int
		known   bool
	}{
		{name: "half way after two seconds", sent: 5_000_000, total: 10_000_000, elapsed: 2 * time.Second, want: 2, known: true},
		{name: "nothing sent yet", sent: 0, total: 100, elapsed: time.Second, known: false},
		{name: "done", sent: 100, total: 100, elapsed: time.Second, want: 0, known: true},
		{name: "zero elapsed floors at a millisecond", sent: 1, total: 1001, elapsed: 0, want: 1, known: true},
		{name: "rounds to nearest", sent: 300, total: 1000, elapsed: time.Second, want: 2, known: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, known := estimateETA(tt.sent, tt.total, tt.elapsed)
			assert.Equal(t, tt.known, known)
			if tt.known {
				assert.Equal(t, tt.want, got)
			}
		})
	}
}

func TestApplyProgress_KnownSize(t *testing.T) {
	start := time.Unix(1000, 0)
	s := &Session{StartedAt: start}

	applyProgress(s, 333, 1000, start.Add(time.Second))
	assert.Equal(t, 33, s.ProgressPercent, "percent is floored")
	assert.True(t, s.SizeKnown)

	applyProgress(s, 5000, 1000, start.Add(2*time.Second))
	assert.Equal(t, int64(1000), s.BytesSent, "sent is clamped to total")
	assert.Equal(t, 100, s.ProgressPercent)
	assert.True(t, s.ETAKnown)
	assert.Equal(t, 0, s.ETASeconds)
}

func TestApplyProgress_UnknownSize(t *testing.T) {
	s := &Session{ProgressPercent: 98, ETAKnown: true, ETASeconds: 7}

	applyProgress(s, 10, SizeUnknown, time.Now())
	assert.Equal(t, 99, s.ProgressPercent)
	assert.False(t, s.ETAKnown)

	applyProgress(s, 20, 0, time.Now())
	assert.Equal(t, 99, s.ProgressPercent)
	assert.Equal(t, int64(20), s.TotalBytes)
}
