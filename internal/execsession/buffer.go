package execsession

import (
	"sync"
	"sync/atomic"

	"github.com/codemode/toolgateway/internal/exec"
)

// outputBuffer accumulates process output while keeping only the most
// recent exec.ExecOutputMaxBytes of it, so a runaway command's output
// cannot grow a session's memory footprint without bound. written tracks
// bytes ever pushed, independent of how much the buffer currently holds,
// so callers can detect "any new output since my last read" even after
// truncation has dropped old bytes.
type outputBuffer struct {
	mu      sync.Mutex
	data    []byte
	written atomic.Int64
}

func newOutputBuffer() *outputBuffer { return &outputBuffer{} }

func (b *outputBuffer) Push(chunk []byte) {
	b.written.Add(int64(len(chunk)))

	b.mu.Lock()
	defer b.mu.Unlock()
	b.data = append(b.data, chunk...)
	if over := len(b.data) - exec.ExecOutputMaxBytes; over > 0 {
		b.data = append([]byte(nil), b.data[over:]...)
	}
}

func (b *outputBuffer) TotalWritten() int64 {
	return b.written.Load()
}

func (b *outputBuffer) Snapshot() []byte {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]byte, len(b.data))
	copy(out, b.data)
	return out
}
