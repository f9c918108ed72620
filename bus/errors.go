package bus

import (
	"errors"
	"fmt"
)

var (
	ErrUnavailable = errors.New("bus: connection unavailable")
	ErrTimeout     = errors.New("bus: call timed out")
	ErrCallDone    = errors.New("bus: call already performed")
	ErrNotAttached = errors.New("bus: signal not attached")
	ErrClosed      = errors.New("bus: proxy closed")
)

// RemoteError is returned by Call when the peer answered with a bus error
// message. The Call stays readable over the error's arguments.
type RemoteError struct {
	Name    string
	Message string
}

func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("bus: remote error %s", e.Name)
	}
	return fmt.Sprintf("bus: remote error %s: %s", e.Name, e.Message)
}
