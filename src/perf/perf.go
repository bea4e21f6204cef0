package perf

import (
	"context"
	"sync"
	"time"
)

type perfContextKey struct{}

var PerfContextKey = perfContextKey{}

// Timing information for a single request. Blocks are recorded by middleware
// and by the database query tracer.
type RequestPerf struct {
	Route  string
	Path   string // the path actually matched
	Method string
	Start  time.Time
	End    time.Time
	Blocks []PerfBlock

	mu sync.Mutex
}

func MakeNewRequestPerf(route string, method string, path string) *RequestPerf {
	return &RequestPerf{
		Start:  time.Now(),
		Route:  route,
		Path:   path,
		Method: method,
	}
}

func ExtractPerf(ctx context.Context) *RequestPerf {
	p, _ := ctx.Value(PerfContextKey).(*RequestPerf)
	return p
}

func (rp *RequestPerf) EndRequest() {
	if rp == nil {
		return
	}
	for rp.EndBlock() {
	}
	rp.End = time.Now()
}

type BlockHandle struct {
	rp  *RequestPerf
	idx int
}

// Starts a block and returns a handle that ends exactly that block. Safe to
// call on a nil RequestPerf, e.g. for queries made by background jobs.
func (rp *RequestPerf) StartBlock(category, description string) *BlockHandle {
	if rp == nil {
		return &BlockHandle{}
	}
	rp.mu.Lock()
	defer rp.mu.Unlock()

	rp.Blocks = append(rp.Blocks, PerfBlock{
		Start:       time.Now(),
		Category:    category,
		Description: description,
	})
	return &BlockHandle{rp: rp, idx: len(rp.Blocks) - 1}
}

func (h *BlockHandle) End() {
	if h == nil || h.rp == nil {
		return
	}
	h.rp.mu.Lock()
	defer h.rp.mu.Unlock()

	if h.rp.Blocks[h.idx].End.IsZero() {
		h.rp.Blocks[h.idx].End = time.Now()
	}
}

// Ends the most recent open block. Returns false if no block was open.
func (rp *RequestPerf) EndBlock() bool {
	rp.mu.Lock()
	defer rp.mu.Unlock()

	for i := len(rp.Blocks) - 1; i >= 0; i -= 1 {
		if rp.Blocks[i].End.IsZero() {
			rp.Blocks[i].End = time.Now()
			return true
		}
	}
	return false
}

func (rp *RequestPerf) MsFromStart(block *PerfBlock) float64 {
	return float64(block.Start.Sub(rp.Start).Nanoseconds()) / 1000 / 1000
}

type PerfBlock struct {
	Start       time.Time
	End         time.Time
	Category    string
	Description string
}

func (pb *PerfBlock) Duration() time.Duration {
	return pb.End.Sub(pb.Start)
}

func (pb *PerfBlock) DurationMs() float64 {
	return float64(pb.Duration().Nanoseconds()) / 1000 / 1000
}
