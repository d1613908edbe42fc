package core

import "sync"

// Invoker abstracts goroutine creation so tests can track every
// spawned goroutine and wait for them to finish on shutdown. Grounded
// directly in the teacher's core.Invoker / test.TestInvoker split: a
// production Invoker just spawns and forgets, while a test harness
// wraps it in a sync.WaitGroup so goleak has something deterministic
// to wait on before asserting no goroutines are left running.
type Invoker interface {
	// Spawn runs f in its own goroutine.
	Spawn(f func())

	// Stop blocks until every goroutine previously started via Spawn
	// has returned.
	Stop()
}

// defaultInvoker is the production Invoker: a thin sync.WaitGroup
// wrapper, same shape as the teacher's own default.
type defaultInvoker struct {
	group sync.WaitGroup
}

// NewInvoker returns the default, production Invoker.
func NewInvoker() Invoker {
	return &defaultInvoker{}
}

func (d *defaultInvoker) Spawn(f func()) {
	d.group.Add(1)
	go func() {
		defer d.group.Done()
		f()
	}()
}

func (d *defaultInvoker) Stop() {
	d.group.Wait()
}
