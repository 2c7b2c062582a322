package core

import (
	"wallbox-service/internal/types"
)

// Transport carries encoded protocol messages to and from the peer.
type Transport interface {
	Connect() error
	Disconnect() error
	Send(b []byte) error
	SetReceiveHandler(h func([]byte))
}

// DigitalIO is the subset of the hardware capability set the controller drives.
type DigitalIO interface {
	WriteDigitalOutput(channel string, value bool) error
	ReadDigitalInput(channel string) (bool, error)
}

// StatusPublisher makes controller state visible to other services.
type StatusPublisher interface {
	PublishStatus(status types.Status) error
	ReportFault(code int, description string, present bool) error
}

// remotePilot is implemented by pilot monitors fed from peer messages.
type remotePilot interface {
	HandleMessage(b []byte) bool
}
