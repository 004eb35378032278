package executor

// Completion is the eventual exit status of an executed command tree.
type Completion struct {
	done   chan struct{}
	status int
	err    error
}

func newCompletion() *Completion {
	return &Completion{done: make(chan struct{})}
}

// resolved returns a completion that is already finished.
func resolved(status int, err error) *Completion {
	c := newCompletion()
	c.resolve(status, err)
	return c
}

// async runs fn on its own goroutine and resolves with its result.
func async(fn func() (int, error)) *Completion {
	c := newCompletion()
	go func() {
		c.resolve(fn())
	}()
	return c
}

func (c *Completion) resolve(status int, err error) {
	c.status = status
	c.err = err
	close(c.done)
}

// Done is closed once the status is available.
func (c *Completion) Done() <-chan struct{} {
	return c.done
}

// Wait blocks until the command tree has finished and returns its exit
// status. The error is non-nil only when a process could not be created at
// all. Wait may be called any number of times.
func (c *Completion) Wait() (int, error) {
	<-c.done
	return c.status, c.err
}
