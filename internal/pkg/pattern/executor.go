package pattern

import (
	"github.com/sourcegraph/conc"

	"github.com/pancudaniel7/blocksub-ethereum-service/internal/pkg/applog"
)

// GoExecutor runs submitted work on its own goroutines and tracks them so
// shutdown can wait for in-flight work. A panicking task is recovered and
// reported on Wait instead of crashing the process.
type GoExecutor struct {
	log applog.AppLogger
	wg  conc.WaitGroup
}

func NewGoExecutor(log applog.AppLogger) *GoExecutor {
	return &GoExecutor{log: log}
}

// Run schedules fn without blocking the caller.
func (e *GoExecutor) Run(fn func()) {
	e.wg.Go(fn)
}

// Wait blocks until every submitted task has returned.
func (e *GoExecutor) Wait() {
	if r := e.wg.WaitAndRecover(); r != nil {
		e.log.Error("Async task panicked", "panic", r.Value, "stack", string(r.Stack))
	}
}
