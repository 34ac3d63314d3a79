package eventbus

import "errors"

// ErrBusClosed is returned by Emit once the bus has been closed by Cleanup
// and has not been reopened by a timed-out non-force cleanup.
var ErrBusClosed = errors.New("eventbus: bus is closed")

// ErrCleanupTimedOut is returned by Cleanup when timeout elapses with emits
// still outstanding and force was not requested. The bus is reopened before
// this error is returned.
var ErrCleanupTimedOut = errors.New("eventbus: cleanup timed out, bus reopened")
