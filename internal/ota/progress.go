package ota

import (
	"math"
	"time"
)

// minElapsed keeps the rate finite for ticks that arrive right after start
const minElapsed = time.Millisecond

// heartbeatCeiling is the highest percentage reported while the size is unknown
const heartbeatCeiling = 99

// applyProgress folds one transport progress tick into s. total <= 0 means the
// transport cannot tell how large the payload is.
func applyProgress(s *Session, sent, total int64, now time.Time) {
	if sent < 0 {
		sent = 0
	}

	if total <= 0 {
		s.SizeKnown = false
		s.BytesSent = sent
		s.TotalBytes = sent
		if s.ProgressPercent < heartbeatCeiling {
			s.ProgressPercent++
		}
		s.ETAKnown = false
		s.ETASeconds = 0
		return
	}

	if sent > total {
		sent = total
	}
	s.SizeKnown = true
	s.BytesSent = sent
	s.TotalBytes = total

	percent := int(sent * 100 / total)
	if percent > s.ProgressPercent {
		s.ProgressPercent = percent
	}

	s.ETASeconds, s.ETAKnown = estimateETA(sent, total, now.Sub(s.StartedAt))
}

// estimateETA extrapolates the average rate since start linearly. It returns
// false when the rate is zero, which callers must treat as unknown.
func estimateETA(sent, total int64, elapsed time.Duration) (int, bool) {
	if elapsed < minElapsed {
		elapsed = minElapsed
	}
	rate := float64(sent) / elapsed.Seconds()
	if rate <= 0 {
		return 0, false
	}
	remaining := float64(total - sent)
	return int(math.Round(remaining / rate)), true
}
