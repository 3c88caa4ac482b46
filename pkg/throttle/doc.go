// Package throttle limits how often an operation may run on a given owner.
//
// A Definition describes the minimum interval between two effective
// invocations. Applying a Definition to an operation produces a wrapped
// operation that runs the real operation at most once per interval and
// returns an empty result for calls that arrive too early or while another
// call is still in flight.
//
// # Basic Usage
//
//	var updateInterval = throttle.New(10 * time.Second)
//
//	type Light struct {
//	    throttle throttle.Registry
//	    update   *throttle.Wrapped[Status]
//	}
//
//	func NewLight(...) (*Light, error) {
//	    l := &Light{...}
//	    update, err := throttle.Wrap(updateInterval, &l.throttle, l.refresh)
//	    if err != nil {
//	        return nil, err
//	    }
//	    l.update = update
//	    return l, nil
//	}
//
// Each owner carries its own Registry, so the same Definition throttles
// every owner independently. A nil Registry gives the wrapped operation a
// private process-wide scope, which is the right choice for free functions.
//
// # Forced Calls
//
// Callers can bypass the interval check with the Force option:
//
//	status, err := l.update.Call(ctx, throttle.Force())
//
// A Definition created with NewWithForcedLimit rate-limits even forced
// calls by a secondary interval, tracked separately from the primary one.
//
// # Throttled Calls
//
// A throttled call returns the zero value and a nil error. Callers that
// need to distinguish a throttled call from a real empty result should
// compare LastCall before and after, or design the operation so that an
// empty result is a valid no-op.
package throttle
