package query

import "golang.org/x/sync/singleflight"

// Coalescer deduplicates concurrent loads for the same key. It is a thin
// wrapper over golang.org/x/sync/singleflight.Group; a hand-rolled
// coalescer would only duplicate what the library already provides.
type Coalescer struct {
	g singleflight.Group
}

// Do executes fn if no other call for key is in flight, otherwise waits for
// and shares that call's result. A failure is not retained past the
// in-flight window: singleflight.Group forgets the call once it returns, so
// the next caller for key re-invokes fn.
func (c *Coalescer) Do(key string, fn func() (any, error)) (any, error, bool) {
	return c.g.Do(key, fn)
}

// DoChan is Do with a channel result, letting the caller abandon the wait
// on a deadline while fn keeps running to completion for the other waiters.
func (c *Coalescer) DoChan(key string, fn func() (any, error)) <-chan singleflight.Result {
	return c.g.DoChan(key, fn)
}

// Forget releases a key immediately, in case a caller needs the next Do for
// key to definitely re-run fn rather than risk joining a straggling call.
func (c *Coalescer) Forget(key string) {
	c.g.Forget(key)
}
