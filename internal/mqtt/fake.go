package mqtt

import (
	"github.com/sweeney/valve-controller/internal/logic"
)

// FakePublisher records published messages for test assertions.
type FakePublisher struct {
	// ScheduleRequests contains the versions passed to PublishScheduleRequest.
	ScheduleRequests []int64

	// StatusPayloads contains the status responses that were published.
	StatusPayloads [][]byte

	// Transitions contains all valve transitions that were published.
	Transitions []logic.Transition

	// TransitionPayloads contains the JSON payloads for transitions.
	TransitionPayloads [][]byte

	// SystemEvents contains all system events that were published.
	SystemEvents []SystemEvent

	// SystemPayloads contains the JSON payloads for system events.
	SystemPayloads [][]byte

	// PublishError, if set, will be returned by every Publish* method.
	PublishError error

	// Closed tracks if Close was called.
	Closed bool

	// Connected controls the return value of IsConnected.
	Connected bool
}

// NewFakePublisher creates a FakePublisher for testing.
func NewFakePublisher() *FakePublisher {
	return &FakePublisher{}
}

// PublishScheduleRequest records the version.
func (f *FakePublisher) PublishScheduleRequest(version int64) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.ScheduleRequests = append(f.ScheduleRequests, version)
	return nil
}

// PublishStatus records the status payload.
func (f *FakePublisher) PublishStatus(payload []byte) error {
	if f.PublishError != nil {
		return f.PublishError
	}
	f.StatusPayloads = append(f.StatusPayloads, payload)
	return nil
}

// PublishTransition records the transition.
func (f *FakePublisher) PublishTransition(tr logic.Transition) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatTransition(tr)
	if err != nil {
		return err
	}
	f.Transitions = append(f.Transitions, tr)
	f.TransitionPayloads = append(f.TransitionPayloads, payload)
	return nil
}

// PublishSystem records the system event.
func (f *FakePublisher) PublishSystem(event SystemEvent) error {
	if f.PublishError != nil {
		return f.PublishError
	}

	payload, err := FormatSystemPayload(event)
	if err != nil {
		return err
	}
	f.SystemEvents = append(f.SystemEvents, event)
	f.SystemPayloads = append(f.SystemPayloads, payload)
	return nil
}

// SystemEventNames returns the Event field of every recorded system event.
func (f *FakePublisher) SystemEventNames() []string {
	names := make([]string, len(f.SystemEvents))
	for i, e := range f.SystemEvents {
		names[i] = e.Event
	}
	return names
}

// Close marks the publisher as closed.
func (f *FakePublisher) Close() error {
	f.Closed = true
	return nil
}

// IsConnected reports whether the fake publisher is "connected".
func (f *FakePublisher) IsConnected() bool {
	return f.Connected
}

// Reset clears recorded messages.
func (f *FakePublisher) Reset() {
	f.ScheduleRequests = nil
	f.StatusPayloads = nil
	f.Transitions = nil
	f.TransitionPayloads = nil
	f.SystemEvents = nil
	f.SystemPayloads = nil
	f.Closed = false
	f.PublishError = nil
	f.Connected = false
}
