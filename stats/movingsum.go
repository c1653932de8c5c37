package stats

import "math"

type bucket struct {
	start float64 // bucket start time (time mode) or unused (count mode)
	sum   float64
	count int
}

// TimeWindowSum maintains a moving sum over a sliding time window. The
// window is split into fixed-width buckets aligned to a global grid;
// the oldest bucket still overlapping the window contributes a
// prorated share of its sum, so the reported total decays smoothly as
// the window slides rather than dropping a whole bucket at once.
type TimeWindowSum struct {
	window      float64
	bucketWidth float64
	buckets     []bucket
	lastTime    float64
	seen        bool
}

// NewTimeWindowSum creates a moving sum over the given window, split
// into bucketCount buckets. bucketCount must be at least 1.
func NewTimeWindowSum(window float64, bucketCount int) *TimeWindowSum {
	if bucketCount < 1 {
		bucketCount = 1
	}
	return &TimeWindowSum{
		window:      window,
		bucketWidth: window / float64(bucketCount),
	}
}

// Add folds a sample into the sum. Samples older than the latest
// accepted timestamp are ignored.
func (s *TimeWindowSum) Add(value, timestamp float64) {
	if s.seen && timestamp < s.lastTime {
		return
	}
	s.lastTime = timestamp
	s.seen = true

	start := math.Floor(timestamp/s.bucketWidth) * s.bucketWidth
	n := len(s.buckets)
	if n == 0 || s.buckets[n-1].start != start {
		s.buckets = append(s.buckets, bucket{start: start})
		n++
	}
	s.buckets[n-1].sum += value
	s.buckets[n-1].count++

	s.expire()
}

// expire drops buckets that no longer overlap the window
func (s *TimeWindowSum) expire() {
	cutoff := s.lastTime - s.window
	i := 0
	for i < len(s.buckets) && s.buckets[i].start+s.bucketWidth <= cutoff {
		i++
	}
	if i > 0 {
		s.buckets = append(s.buckets[:0], s.buckets[i:]...)
	}
}

// Sum returns the windowed total as of the latest accepted timestamp.
// The oldest overlapping bucket is prorated by its remaining coverage.
func (s *TimeWindowSum) Sum() float64 {
	if !s.seen {
		return 0
	}
	cutoff := s.lastTime - s.window
	total := 0.0
	for i, b := range s.buckets {
		if i == 0 && b.start < cutoff {
			fraction := (b.start + s.bucketWidth - cutoff) / s.bucketWidth
			if fraction < 0 {
				fraction = 0
			}
			total += b.sum * fraction
			continue
		}
		total += b.sum
	}
	return total
}

// Reset discards all accumulated state
func (s *TimeWindowSum) Reset() {
	s.buckets = s.buckets[:0]
	s.lastTime = 0
	s.seen = false
}

// CountWindowSum maintains a moving sum over the most recent
// sampleCount samples, bucketed so memory stays bounded. The oldest
// bucket is prorated by the share of its samples still inside the
// window.
type CountWindowSum struct {
	sampleCount int
	bucketSize  int
	buckets     []bucket
	total       int
}

// NewCountWindowSum creates a moving sum over the most recent
// sampleCount samples, split across bucketCount buckets. The bucket
// size is rounded up so the window is always fully covered.
func NewCountWindowSum(sampleCount, bucketCount int) *CountWindowSum {
	if bucketCount < 1 {
		bucketCount = 1
	}
	size := (sampleCount + bucketCount - 1) / bucketCount
	if size < 1 {
		size = 1
	}
	return &CountWindowSum{sampleCount: sampleCount, bucketSize: size}
}

// Add folds a sample into the sum
func (s *CountWindowSum) Add(value float64) {
	n := len(s.buckets)
	if n == 0 || s.buckets[n-1].count >= s.bucketSize {
		s.buckets = append(s.buckets, bucket{})
		n++
	}
	s.buckets[n-1].sum += value
	s.buckets[n-1].count++
	s.total++

	// Retire buckets that fall entirely outside the window
	for len(s.buckets) > 0 && s.total-s.buckets[0].count >= s.sampleCount {
		s.total -= s.buckets[0].count
		s.buckets = append(s.buckets[:0], s.buckets[1:]...)
	}
}

// Sum returns the windowed total. When the oldest bucket straddles the
// window boundary it contributes proportionally to the samples still
// inside.
func (s *CountWindowSum) Sum() float64 {
	excess := s.total - s.sampleCount
	total := 0.0
	for i, b := range s.buckets {
		if i == 0 && excess > 0 && b.count > 0 {
			total += b.sum * float64(b.count-excess) / float64(b.count)
			continue
		}
		total += b.sum
	}
	return total
}

// Reset discards all accumulated state
func (s *CountWindowSum) Reset() {
	s.buckets = s.buckets[:0]
	s.total = 0
}
