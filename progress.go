package zipvault

import "sync/atomic"

// Progress is a cancellation token shared between a caller and an in-flight
// Extract/AddEntry/Remove call. The engine polls it between chunks, not
// between bytes, so cancelling mid-operation takes effect at the next chunk
// boundary rather than immediately (§5, §9).
type Progress struct {
	cancelled atomic.Bool
	done      atomic.Int64
	total     atomic.Int64
}

// NewProgress returns a fresh, uncancelled token.
func NewProgress() *Progress {
	return &Progress{}
}

// Cancel requests that the operation holding this token stop at its next
// chunk boundary. Safe to call from any goroutine, any number of times.
func (p *Progress) Cancel() {
	if p == nil {
		return
	}
	p.cancelled.Store(true)
}

// Cancelled reports whether Cancel has been called.
func (p *Progress) Cancelled() bool {
	return p != nil && p.cancelled.Load()
}

// Done reports how many bytes have been processed so far.
func (p *Progress) Done() int64 {
	if p == nil {
		return 0
	}
	return p.done.Load()
}

// Total reports the expected total byte count, or 0 if unknown.
func (p *Progress) Total() int64 {
	if p == nil {
		return 0
	}
	return p.total.Load()
}

func (p *Progress) setTotal(n int64) {
	if p == nil {
		return
	}
	p.total.Store(n)
}

func (p *Progress) addDone(n int64) {
	if p == nil {
		return
	}
	p.done.Add(n)
}

// checkCancel is the shared poll point every chunked loop calls between
// chunks.
func checkCancel(p *Progress) error {
	if p.Cancelled() {
		return ErrCancelledOperation
	}
	return nil
}
