package throttle

import (
	"context"
	"time"
)

// Func is an operation that can be throttled.
type Func[T any] func(ctx context.Context) (T, error)

// Result carries the outcome of an asynchronous call.
type Result[T any] struct {
	Value T
	Err   error
}

// CallOption adjusts a single call to a wrapped operation.
type CallOption func(*callOpts)

type callOpts struct {
	force bool
}

// Force makes the call bypass the primary interval check. When the
// Definition carries a forced-call limit, the call is still subject to
// that secondary interval.
func Force() CallOption {
	return func(o *callOpts) {
		o.force = true
	}
}

// Wrapped is an operation with a throttling policy applied. Create one
// with Wrap; the zero value is not usable.
type Wrapped[T any] struct {
	def *Definition
	reg *Registry
	op  Func[T]

	// inner applies the forced-call limit, sharing the same Registry but
	// keyed by the secondary Definition. Nil when no limit is configured.
	inner *Wrapped[T]
}

// Wrap applies def to op, scoped to the given owner Registry. Passing a nil
// owner gives the wrapped operation its own private scope, so all calls to
// it share one throttle state; use this for operations not bound to any
// particular entity.
func Wrap[T any](def *Definition, owner *Registry, op Func[T]) (*Wrapped[T], error) {
	if def == nil {
		return nil, ErrNilDefinition
	}
	if op == nil {
		return nil, ErrNilOperation
	}
	if owner == nil {
		owner = &Registry{}
	}

	w := &Wrapped[T]{def: def, reg: owner, op: op}

	// Forced calls go through a second wrapper applied before this one,
	// so even they are spaced by the secondary interval.
	if def.forcedLimit != nil {
		inner, err := Wrap(def.forcedLimit, owner, op)
		if err != nil {
			return nil, err
		}
		w.inner = inner
	}

	return w, nil
}

// Call invokes the wrapped operation.
//
// If another call currently holds the critical section for this owner and
// Definition, or the minimum interval since the last effective invocation
// has not yet elapsed, Call returns the zero value and a nil error without
// running the operation. The first call on a fresh owner always runs.
//
// Errors from the operation propagate unchanged and do not count as an
// effective invocation.
func (w *Wrapped[T]) Call(ctx context.Context, opts ...CallOption) (T, error) {
	var zero T
	var o callOpts
	for _, opt := range opts {
		opt(&o)
	}

	delegate := w.op
	if w.inner != nil {
		delegate = func(ctx context.Context) (T, error) {
			return w.inner.Call(ctx)
		}
	}

	e := w.reg.entryFor(w.def)
	if !e.run.TryLock() {
		// Another call is in flight for this owner. Reject, don't queue.
		return zero, nil
	}
	defer e.run.Unlock()

	force := o.force || e.last().IsZero()
	if !force && time.Since(e.last()) <= w.def.minInterval {
		return zero, nil
	}

	v, err := delegate(ctx)
	if err != nil {
		return zero, err
	}
	e.setLast(time.Now())
	return v, nil
}

// CallAsync invokes the wrapped operation without blocking the caller.
// The returned channel receives exactly one Result and is then closed.
// Throttled calls resolve immediately with the zero value. Concurrent
// CallAsync invocations on the same owner serialize on the same critical
// section as Call; losers resolve throttled.
func (w *Wrapped[T]) CallAsync(ctx context.Context, opts ...CallOption) <-chan Result[T] {
	ch := make(chan Result[T], 1)
	go func() {
		defer close(ch)
		v, err := w.Call(ctx, opts...)
		ch <- Result[T]{Value: v, Err: err}
	}()
	return ch
}

// LastCall returns the timestamp of the last effective invocation of the
// wrapped operation, or the zero time if it has never run. Diagnostic only.
func (w *Wrapped[T]) LastCall() time.Time {
	return w.reg.entryFor(w.def).last()
}
