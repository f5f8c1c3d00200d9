// Package breaker implements a circuit breaker with a sliding window of recent
// call outcomes.
//
// A Breaker starts Closed and records the outcome of the last WindowSize calls.
// Once FailureThreshold of them are failures it opens and rejects calls with
// ErrOpen. After CoolDown the next caller is admitted as the single half-open
// probe: success closes the breaker, failure reopens it for another cool-down.
//
// Which errors count as failures is decided by a Classifier, so callers can
// treat rejections from a healthy upstream (bad input, 4xx) as successes and
// ignore cancellations entirely.
//
//	b := breaker.New("email", breaker.WithClassifier(classify))
//	err := b.Execute(ctx, func(ctx context.Context) error {
//	    return adapter.Send(ctx, msg)
//	})
//	if errors.Is(err, breaker.ErrOpen) {
//	    retryIn := b.RetryAfter()
//	}
package breaker
