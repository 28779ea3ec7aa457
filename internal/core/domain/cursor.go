package domain

import "time"

// PollCursor is the per-address high-water mark used to avoid re-fetching
// transfers that earlier poll cycles already observed. The timestamp is in
// milliseconds, matching TronGrid's block_timestamp field. Advancement is
// monotonic: a cursor never moves backward.
type PollCursor struct {
	Address       string
	LastTimestamp int64
	UpdatedAt     time.Time
}
