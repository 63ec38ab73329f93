package wvc

import (
	"fmt"

	"github.com/pkg/errors"
)

var (
	ErrWrongRole       = errors.New("operation not allowed for this side")
	ErrTransportFailed = errors.New("transport failed")
	ErrInvalidEnvelope = errors.New("invalid envelope")
	ErrChannelClosed   = errors.New("channel closed")
	ErrNoChannel       = errors.New("no channel registered")
	ErrPeerClosed      = errors.New("peer closed")
	ErrSendQueueFull   = errors.New("send queue full")
)

// RoleError reports an operation invoked from the wrong side of the channel.
type RoleError struct {
	Op   string
	Want Role
}

func (e *RoleError) Error() string {
	return fmt.Sprintf("%s: this event could be sent only from %s", e.Op, e.Want)
}

func (e *RoleError) Unwrap() error { return ErrWrongRole }

// TransportError reports an envelope the transport refused to deliver.
type TransportError struct {
	Event string
	Err   error
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("send %q: %v", e.Event, e.Err)
}

func (e *TransportError) Unwrap() error { return e.Err }

// Is lets errors.Is(err, ErrTransportFailed) match every TransportError.
func (e *TransportError) Is(target error) bool { return target == ErrTransportFailed }
