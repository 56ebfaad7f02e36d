package ports

import "errors"

var (
	// ErrClosed is returned by Send and Recv once an endpoint is closed or exhausted.
	ErrClosed = errors.New("communicator closed")

	// ErrNotOpen is returned when an endpoint is used before Open.
	ErrNotOpen = errors.New("communicator not open")

	// ErrFrameTooLarge is returned when a frame exceeds MaxFrameSize.
	ErrFrameTooLarge = errors.New("frame exceeds transport limit")

	// ErrQueueFull is returned when a bounded queue cannot accept another frame.
	ErrQueueFull = errors.New("queue full")

	// ErrWrongDirection is returned when Send is called on a recv endpoint or vice versa.
	ErrWrongDirection = errors.New("operation not supported for endpoint direction")
)

// ErrDiscarded marks a message dropped because it violated a framing protocol.
// Unlike ErrClosed, the channel stays usable after it.
var ErrDiscarded = errors.New("message discarded")
