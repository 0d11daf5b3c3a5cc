// Package eventlooptest provides deterministic dispatchers for tests.
package eventlooptest

// Inline runs posted callbacks and async work immediately on the caller's
// goroutine.
type Inline struct{}

func (Inline) Post(fn func()) {
	fn()
}

func (Inline) Async(work func() func()) {
	if cont := work(); cont != nil {
		cont()
	}
}

// Queue holds posted callbacks until Drain. Async work runs immediately and
// its continuation is queued, which models a result arriving on a later turn
// of the loop.
type Queue struct {
	pending []func()
}

func (q *Queue) Post(fn func()) {
	q.pending = append(q.pending, fn)
}

func (q *Queue) Async(work func() func()) {
	if cont := work(); cont != nil {
		q.Post(cont)
	}
}

// Len returns the number of queued callbacks.
func (q *Queue) Len() int {
	return len(q.pending)
}

// Drain runs queued callbacks, including ones queued while draining.
func (q *Queue) Drain() {
	for len(q.pending) > 0 {
		fn := q.pending[0]
		q.pending = q.pending[1:]
		fn()
	}
}
