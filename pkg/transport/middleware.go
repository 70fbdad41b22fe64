package transport

import "slices"

// Middleware decorates an Invoker.
type Middleware func(Invoker) Invoker

// Chain folds middlewares into one. The first argument ends up outermost,
// so Chain(Recovery(), RequestID(), Logging(l)) recovers panics raised by
// the logger as well as by the pipeline.
func Chain(middlewares ...Middleware) Middleware {
	return func(inner Invoker) Invoker {
		for _, mw := range slices.Backward(middlewares) {
			inner = mw(inner)
		}
		return inner
	}
}
