package throttle

import (
	"math/rand"
	"strings"
	"sync"
	"time"
)

// HumanizedDelay sleeps before/after a fetch for a duration parameterized
// by page word count, mimicking human reading time (spec.md §4.4
// "Humanized delay", GLOSSARY).
type HumanizedDelay struct {
	mu             sync.Mutex
	baseDelay      time.Duration
	reflectionTime time.Duration
	avgWPM         float64

	randFn  func() float64
	sleepFn func(time.Duration)
}

// NewHumanizedDelay constructs a HumanizedDelay with the given base delay,
// reflection time, and average reading speed in words per minute.
func NewHumanizedDelay(baseDelay, reflectionTime time.Duration, avgWPM float64) *HumanizedDelay {
	return &HumanizedDelay{
		baseDelay:      baseDelay,
		reflectionTime: reflectionTime,
		avgWPM:         avgWPM,
		randFn:         rand.Float64,
		sleepFn:        time.Sleep,
	}
}

// Delay computes base_delay + reflection_time + words(html)/avg_wpm*60 +
// fatigue, where fatigue is uniform on [0.5, 2.0] seconds, and sleeps
// that long.
func (h *HumanizedDelay) Delay(html string) time.Duration {
	h.mu.Lock()
	base := h.baseDelay
	reflection := h.reflectionTime
	wpm := h.avgWPM
	h.mu.Unlock()

	words := float64(len(strings.Fields(html)))
	readingTime := time.Duration((words / wpm) * 60 * float64(time.Second))
	fatigue := time.Duration((0.5 + h.randFn()*1.5) * float64(time.Second))

	total := base + reflection + readingTime + fatigue
	h.sleepFn(total)
	return total
}

// Prolong multiplies the base delay by factor, used by block recovery
// (spec.md §4.4 "On block recovery, prolong(factor=1.5) multiplies
// base_delay").
func (h *HumanizedDelay) Prolong(factor float64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.baseDelay = time.Duration(float64(h.baseDelay) * factor)
}

// BaseDelay returns the current base delay, useful for tests/metrics.
func (h *HumanizedDelay) BaseDelay() time.Duration {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.baseDelay
}
