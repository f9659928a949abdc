package port

// AsyncExecutor runs work without blocking the submitting goroutine.
type AsyncExecutor interface {
	Run(fn func())
}
