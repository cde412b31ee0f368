package store

import (
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/i474232898/weathermap/internal/layers"
)

var (
	// ErrNotFound is returned when no frame or snapshot matches a lookup.
	ErrNotFound = errors.New("no frames stored")
)

// FrameStore is a concurrency-safe in-memory cache of animation frames,
// kept sorted by time.
type FrameStore struct {
	mu sync.RWMutex

	frames []layers.Frame

	// retention configuration
	maxFrames int           // max number of frames kept
	maxAge    time.Duration // optional max age relative to the newest frame
}

// NewFrameStore creates a FrameStore with optional limits.
// If maxFrames is <= 0, it is treated as unlimited.
func NewFrameStore(maxFrames int, maxAge time.Duration) *FrameStore {
	return &FrameStore{
		maxFrames: maxFrames,
		maxAge:    maxAge,
	}
}

// SetMaxFrames changes the count cap and trims the store to it.
func (s *FrameStore) SetMaxFrames(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.maxFrames = n
	s.enforceRetention()
}

// Save replaces the stored frames and enforces retention. When more frames
// than the cap are given, an evenly spaced subset including both ends is kept.
func (s *FrameStore) Save(frames []layers.Frame) {
	sorted := make([]layers.Frame, len(frames))
	copy(sorted, frames)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Time.Before(sorted[j].Time) })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = sorted
	s.enforceRetention()
}

func (s *FrameStore) enforceRetention() {
	// Enforce retention by age.
	if s.maxAge > 0 && len(s.frames) > 0 {
		cutoff := s.frames[len(s.frames)-1].Time.Add(-s.maxAge)
		i := 0
		for ; i < len(s.frames); i++ {
			if !s.frames[i].Time.Before(cutoff) {
				break
			}
		}
		s.frames = s.frames[i:]
	}

	// Enforce retention by count.
	if s.maxFrames > 0 && len(s.frames) > s.maxFrames {
		s.frames = sample(s.frames, s.maxFrames)
	}
}

// sample picks n evenly spaced entries including the first and last.
func sample(frames []layers.Frame, n int) []layers.Frame {
	if n == 1 {
		return []layers.Frame{frames[len(frames)-1]}
	}
	out := make([]layers.Frame, n)
	last := len(frames) - 1
	for i := 0; i < n; i++ {
		out[i] = frames[i*last/(n-1)]
	}
	return out
}

// Frames returns a copy of all stored frames, oldest first.
func (s *FrameStore) Frames() []layers.Frame {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]layers.Frame, len(s.frames))
	copy(out, s.frames)
	return out
}

// Times returns the frame times, oldest first.
func (s *FrameStore) Times() []time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]time.Time, len(s.frames))
	for i, f := range s.frames {
		out[i] = f.Time
	}
	return out
}

// At returns the frame at index i.
func (s *FrameStore) At(i int) (layers.Frame, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if i < 0 || i >= len(s.frames) {
		return layers.Frame{}, ErrNotFound
	}
	return s.frames[i], nil
}

// Nearest returns the frame closest to t and its index.
func (s *FrameStore) Nearest(t time.Time) (layers.Frame, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	times := make([]time.Time, len(s.frames))
	for i, f := range s.frames {
		times[i] = f.Time
	}
	i := layers.NearestIndex(times, t)
	if i < 0 {
		return layers.Frame{}, -1, ErrNotFound
	}
	return s.frames[i], i, nil
}

// Len returns the number of stored frames.
func (s *FrameStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.frames)
}

// Reset drops every frame.
func (s *FrameStore) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = nil
}
