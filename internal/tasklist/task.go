// Package tasklist implements lansync's component F: a bounded worker pool
// that runs Task values concurrently and always runs their cleanup, even
// when the task panics or the list is stopped mid-flight.
package tasklist

// Task is one unit of work submitted to a TaskList. Execute does the
// actual work; OnDone/OnError are called with its outcome; Cleanup always
// runs afterward, regardless of success, failure, or panic — this is the
// property that keeps a crashed download from leaking a file handle or a
// pool-acquired client.
type Task interface {
	Execute() (any, error)
	OnDone(result any)
	OnError(err error)
	Cleanup()
}

// Func adapts a plain function into a Task with no OnDone/OnError/Cleanup
// behavior, for simple fire-and-forget work.
type Func func() (any, error)

func (f Func) Execute() (any, error) { return f() }
func (f Func) OnDone(any)            {}
func (f Func) OnError(error)         {}
func (f Func) Cleanup()              {}
