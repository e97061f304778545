package pipeline

// RunStats tracks aggregate counters and byte totals across a run. Byte
// totals only count completed encodes, so SpaceSaved reflects real savings.
type RunStats struct {
	Scans            int // scan passes performed
	Done             int // encodes completed and relocated
	Skipped          int // output already existed
	Corrupt          int // unreadable sources retired from the queue
	Failed           int
	Deleted          int // originals removed after verification
	TotalInputBytes  int64
	TotalOutputBytes int64
}

// SpaceSaved returns the aggregate byte difference between inputs and outputs.
// Positive means outputs are smaller; negative means they grew.
func (s *RunStats) SpaceSaved() int64 {
	return s.TotalInputBytes - s.TotalOutputBytes
}
