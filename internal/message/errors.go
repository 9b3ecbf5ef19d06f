package message

import (
	"errors"
	"fmt"
)

// ErrPayloadTooLarge is returned by [Encode] when the encoded message does
// not fit in a single datagram.
var ErrPayloadTooLarge = errors.New("encoded message exceeds datagram size")

// MalformedMessageError is returned by [Decode] for datagrams that are not
// valid JSON objects or that miss a required field.
type MalformedMessageError struct {
	Reason string
	Err    error
}

func (e MalformedMessageError) Error() string {
	if e.Err != nil {
		return "malformed message: " + e.Reason + ": " + e.Err.Error()
	}
	return "malformed message: " + e.Reason
}

func (e MalformedMessageError) Unwrap() error {
	return e.Err
}

// UnknownTypeError is returned by [Decode] for well-formed datagrams whose
// type is not part of the protocol. Receivers ignore such messages.
type UnknownTypeError struct {
	Type Type
}

func (e UnknownTypeError) Error() string {
	return fmt.Sprintf("unknown message type %q", string(e.Type))
}
