package tasklist

import (
	"errors"
	"sync/atomic"
	"testing"
)

type recordingTask struct {
	execute func() (any, error)
	done    int32
	errored int32
	cleaned int32
}

func (r *recordingTask) Execute() (any, error)  { return r.execute() }
func (r *recordingTask) OnDone(any)             { atomic.AddInt32(&r.done, 1) }
func (r *recordingTask) OnError(error)          { atomic.AddInt32(&r.errored, 1) }
func (r *recordingTask) Cleanup()               { atomic.AddInt32(&r.cleaned, 1) }

func TestTaskList_SubmitRunsAndCleansUp(t *testing.T) {
	tl := New(4)
	defer tl.Close()

	task := &recordingTask{execute: func() (any, error) { return 42, nil }}
	ch, err := tl.Submit(task)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	out := <-ch
	if out.Result != 42 || out.Err != nil {
		t.Fatalf("unexpected outcome: %+v", out)
	}
	if atomic.LoadInt32(&task.done) != 1 {
		t.Fatal("expected OnDone to run")
	}
	if atomic.LoadInt32(&task.cleaned) != 1 {
		t.Fatal("expected Cleanup to run")
	}
}

func TestTaskList_CleanupRunsOnError(t *testing.T) {
	tl := New(2)
	defer tl.Close()

	wantErr := errors.New("boom")
	task := &recordingTask{execute: func() (any, error) { return nil, wantErr }}
	ch, err := tl.Submit(task)
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	out := <-ch
	if out.Err != wantErr {
		t.Fatalf("expected wrapped error, got %v", out.Err)
	}
	if atomic.LoadInt32(&task.errored) != 1 {
		t.Fatal("expected OnError to run")
	}
	if atomic.LoadInt32(&task.cleaned) != 1 {
		t.Fatal("expected Cleanup to run even on error")
	}
}

func TestTaskList_WaitAllBlocksUntilDone(t *testing.T) {
	tl := New(4)
	defer tl.Close()

	const n = 20
	var completed int32
	for i := 0; i < n; i++ {
		task := &recordingTask{execute: func() (any, error) {
			atomic.AddInt32(&completed, 1)
			return nil, nil
		}}
		if _, err := tl.Submit(task); err != nil {
			t.Fatalf("Submit: %v", err)
		}
	}
	tl.WaitAll()
	if atomic.LoadInt32(&completed) != n {
		t.Fatalf("expected all %d tasks to complete, got %d", n, completed)
	}
	if !tl.Empty() {
		t.Fatal("expected task list to be empty after WaitAll")
	}
}

func TestTaskList_SubmitAfterCloseFails(t *testing.T) {
	tl := New(2)
	tl.Close()

	task := &recordingTask{execute: func() (any, error) { return nil, nil }}
	if _, err := tl.Submit(task); err != ErrListClosed {
		t.Fatalf("expected ErrListClosed, got %v", err)
	}
}
