package scanner

import (
	"context"
	"log"
	"sync"
	"time"
)

// DefaultDebounce is how long further detections are suppressed after one
// is accepted.
const DefaultDebounce = 3 * time.Second

// Scanner holds the latest decoded QR/barcode value between the scan feed
// and the submission path. Detections arriving within the debounce window
// after an accepted one are dropped outright; the gate is timer-based, so a
// different code shown inside the window is suppressed too. The submission
// path takes the latest value and clears the cell so a stale code is never
// reattached to a new photo.
type Scanner struct {
	mu       sync.Mutex
	value    string
	accepted time.Time
	debounce time.Duration

	now func() time.Time // overridable in tests
}

// New creates a scanner with the given debounce window. A non-positive
// window falls back to DefaultDebounce.
func New(debounce time.Duration) *Scanner {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	return &Scanner{
		debounce: debounce,
		now:      time.Now,
	}
}

// Offer feeds one detection. Returns whether the value was accepted.
func (s *Scanner) Offer(value string) bool {
	if value == "" {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if !s.accepted.IsZero() && now.Sub(s.accepted) < s.debounce {
		return false
	}
	s.value = value
	s.accepted = now
	return true
}

// Take returns the latest accepted value and clears the cell. The debounce
// gate is left untouched: clearing the value does not reopen the window.
func (s *Scanner) Take() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	v := s.value
	s.value = ""
	return v
}

// Peek returns the latest accepted value without clearing it.
func (s *Scanner) Peek() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.value
}

// Run consumes a detection stream until the context is done or the channel
// closes. The device-side decode feed is an external collaborator; this is
// the bridge for programmatic feeds.
func (s *Scanner) Run(ctx context.Context, detections <-chan string) {
	for {
		select {
		case <-ctx.Done():
			return
		case v, ok := <-detections:
			if !ok {
				return
			}
			if s.Offer(v) {
				log.Printf("Accepted scanned code (%d bytes)", len(v))
			}
		}
	}
}
