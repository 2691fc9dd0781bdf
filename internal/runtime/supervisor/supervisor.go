// Package supervisor manages named goroutines tied to a shared context.
package supervisor

import (
	"context"
	"runtime/debug"
	"sync"

	logx "github.com/teh-hippo/tiny-ntfy-mcp/pkg/logx"
)

// Supervisor runs background goroutines with panic recovery and
// timeout-aware waiting. Worker failures are logged, never propagated.
type Supervisor struct {
	ctx    context.Context
	cancel context.CancelFunc

	log logx.Logger
	wg  sync.WaitGroup
}

func New(ctx context.Context, log logx.Logger) *Supervisor {
	if ctx == nil {
		ctx = context.Background()
	}
	if log.IsZero() {
		log = logx.Nop()
	}
	cctx, cancel := context.WithCancel(ctx)
	return &Supervisor{ctx: cctx, cancel: cancel, log: log}
}

// Go starts fn under the supervisor. The name is for diagnostics only.
func (s *Supervisor) Go(name string, fn func(ctx context.Context)) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("goroutine panicked",
					logx.String("name", name),
					logx.Any("panic", r),
					logx.String("stack", string(debug.Stack())),
				)
			}
		}()
		fn(s.ctx)
	}()
}

// Cancel stops the shared context.
func (s *Supervisor) Cancel() { s.cancel() }

// Wait blocks until all goroutines finish or ctx expires.
// Returns false on timeout.
func (s *Supervisor) Wait(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}
