package solidworks

import (
	"log/slog"
	"runtime"
	"sync"
)

// STARunner pins all automation work to one OS thread. The live application
// exposes a single-threaded apartment: every native call, including the
// initial attach, must come from the same thread or the interop runtime
// rejects it.
type STARunner struct {
	jobs chan staJob
	quit chan struct{}
	stop sync.Once
}

type staJob struct {
	fn   func()
	done chan struct{}
}

func NewSTARunner() *STARunner {
	r := &STARunner{
		jobs: make(chan staJob),
		quit: make(chan struct{}),
	}
	go r.loop()
	return r
}

func (r *STARunner) loop() {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()
	for {
		select {
		case job := <-r.jobs:
			job.fn()
			close(job.done)
		case <-r.quit:
			return
		}
	}
}

// Do runs fn on the apartment thread and waits for it to finish. After Stop
// the job runs inline on the caller's thread so shutdown paths still make
// progress.
func (r *STARunner) Do(fn func()) {
	job := staJob{fn: fn, done: make(chan struct{})}
	select {
	case r.jobs <- job:
		<-job.done
	case <-r.quit:
		slog.Warn("apartment_thread_retired", "detail", "automation call running on caller thread")
		fn()
	}
}

// Stop retires the apartment thread. Idempotent.
func (r *STARunner) Stop() {
	r.stop.Do(func() { close(r.quit) })
}
