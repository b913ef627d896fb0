package bufferpool

import "fmt"

// Stats counts buffer requests and the physical I/O they caused.
type Stats struct {
	Gets   int64 // GetBuffer calls
	Reads  int64 // pages read from table files
	Writes int64 // pages written: write-backs, flushes and raw appends
	// BindingAnomalies counts evictions whose binding was missing from the
	// hashtable.
	BindingAnomalies int64
}

// HitRatio returns the percentage of gets served without a read. ok is false
// when there have been no gets.
func (s Stats) HitRatio() (ratio int64, ok bool) {
	if s.Gets == 0 {
		return 0, false
	}
	return (s.Gets - s.Reads) * 100 / s.Gets, true
}

func (s Stats) String() string {
	ratio, _ := s.HitRatio()
	return fmt.Sprintf("get_buffer() count: %d, file_read_page() count: %d, file_write_page() count: %d, buffer hit ratio: %d%%",
		s.Gets, s.Reads, s.Writes, ratio)
}

// Stats returns a copy of the pool's counters.
func (bp *BufferPool) Stats() Stats { return bp.stats }

// ResetStats zeroes the counters. Metric instruments are cumulative and are
// not affected.
func (bp *BufferPool) ResetStats() { bp.stats = Stats{} }
