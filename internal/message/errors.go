package message

import "fmt"

// SerializationErrorKind tells encode failures from decode failures.
type SerializationErrorKind int

const (
	SerializationFailed SerializationErrorKind = iota + 1
	DeserializationFailed
)

func (k SerializationErrorKind) String() string {
	switch k {
	case SerializationFailed:
		return "serialization failed"
	case DeserializationFailed:
		return "deserialization failed"
	default:
		return "unknown serialization error"
	}
}

// SerializationError carries the value that could not be converted: Message
// for encode failures, Bytes for decode failures.
type SerializationError struct {
	Kind    SerializationErrorKind
	Message Message
	Bytes   []byte
	Reason  string
}

func (e *SerializationError) Error() string {
	if e.Reason == "" {
		return e.Kind.String()
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Reason)
}

func serializationFailed(m Message, reason string) error {
	return &SerializationError{Kind: SerializationFailed, Message: m, Reason: reason}
}

func deserializationFailed(b []byte, reason string) error {
	return &SerializationError{Kind: DeserializationFailed, Bytes: append([]byte(nil), b...), Reason: reason}
}
