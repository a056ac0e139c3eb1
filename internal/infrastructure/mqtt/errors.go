package mqtt

import "errors"

// Errors returned by the broker client. Wrapped errors keep these in the
// chain, so match them with errors.Is.
var (
	// ErrNotConnected means the broker link is down; events are not
	// buffered and remote commands are not heard.
	ErrNotConnected = errors.New("mqtt: broker link down")

	// ErrConnectionFailed means the first dial did not complete.
	ErrConnectionFailed = errors.New("mqtt: cannot reach broker")

	// ErrPublishFailed means an event was not accepted by the broker, or
	// was too large to send.
	ErrPublishFailed = errors.New("mqtt: event not published")

	// ErrSubscribeFailed means a command topic could not be registered.
	ErrSubscribeFailed = errors.New("mqtt: command subscription failed")

	// ErrUnsubscribeFailed means a command topic could not be dropped.
	ErrUnsubscribeFailed = errors.New("mqtt: command unsubscribe failed")

	// ErrInvalidQoS means a QoS outside 0..2 was requested.
	ErrInvalidQoS = errors.New("mqtt: qos must be 0, 1 or 2")

	// ErrInvalidTopic means the topic was empty.
	ErrInvalidTopic = errors.New("mqtt: empty topic")
)
