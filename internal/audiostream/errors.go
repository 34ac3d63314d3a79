package audiostream

import "errors"

// ErrChannelClosed is returned by Subscribe once Close has run, and is
// recorded by Publish for a Block subscriber that is closed while the
// publisher waits for room in its queue.
var ErrChannelClosed = errors.New("audiostream: channel is closed")

// ErrQueueFull is returned by Publish for a fail_fast subscriber whose queue
// has no room for the new chunk.
var ErrQueueFull = errors.New("audiostream: subscriber queue full")
