package eventbus

// emitOptions holds the per-call behaviour toggles for Emit.
type emitOptions struct {
	wait         bool
	errorIsolate bool
}

// EmitOption configures one call to Emit.
type EmitOption func(*emitOptions)

// WithWait makes Emit block until every handler for this event has
// completed. Without it, dispatch runs on a tracked background goroutine
// and Emit returns immediately.
func WithWait() EmitOption {
	return func(o *emitOptions) { o.wait = true }
}

// WithErrorIsolate controls whether a handler error aborts sibling handlers.
// The default (true) logs and counts each handler's error independently and
// never aborts. Passing false makes handlers run sequentially and the first
// error return immediately from Emit, skipping remaining handlers — this
// only makes sense as a synchronous call, so Emit runs it inline regardless
// of WithWait.
func WithErrorIsolate(isolate bool) EmitOption {
	return func(o *emitOptions) { o.errorIsolate = isolate }
}
