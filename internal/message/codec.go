package message

import (
	"encoding/json"
	"fmt"
	"slices"
	"unicode/utf8"
)

// MaxDatagramSize is the largest UDP payload over IPv4.
const MaxDatagramSize = 65507

// Encode serializes m as a JSON object carrying its type.
func Encode(m Message) ([]byte, error) {
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("failed to encode %s: %w", m.MessageType(), err)
	}
	typeField, err := json.Marshal(m.MessageType())
	if err != nil {
		return nil, fmt.Errorf("failed to encode type %s: %w", m.MessageType(), err)
	}

	out := make([]byte, 0, len(body)+len(typeField)+10)
	out = append(out, `{"type":`...)
	out = append(out, typeField...)
	if len(body) > 2 {
		out = append(out, ',')
	}
	out = append(out, body[1:]...)

	if len(out) > MaxDatagramSize {
		return nil, fmt.Errorf("%s of %d bytes: %w", m.MessageType(), len(out), ErrPayloadTooLarge)
	}
	return out, nil
}

// Decode parses one datagram. It returns [MalformedMessageError] for
// unparsable payloads or missing fields and [UnknownTypeError] for types
// outside the protocol.
func Decode(data []byte) (Message, error) {
	if !utf8.Valid(data) {
		return nil, MalformedMessageError{Reason: "payload is not valid UTF-8"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, MalformedMessageError{Reason: "payload is not a JSON object", Err: err}
	}

	rawType, ok := fields["type"]
	if !ok {
		return nil, MalformedMessageError{Reason: "missing type"}
	}
	var t Type
	if err := json.Unmarshal(rawType, &t); err != nil {
		return nil, MalformedMessageError{Reason: "type is not a string", Err: err}
	}

	switch t {
	case TypeJoin:
		return Join{}, nil

	case TypeGetNodes:
		return GetNodes{}, nil

	case TypeNodeList:
		var m NodeList
		if err := decodeField(fields, "nodes", &m.Nodes); err != nil {
			return nil, err
		}
		return m, nil

	case TypeInventoryUpdate:
		var m InventoryUpdate
		if err := decodeField(fields, "inventory", &m.Inventory); err != nil {
			return nil, err
		}
		if err := decodeField(fields, "updates", &m.Updates); err != nil {
			return nil, err
		}
		if m.Inventory == nil {
			m.Inventory = map[string]*Record{}
		}
		return m, nil

	case TypeLockRequest:
		var m LockRequest
		if err := decodeField(fields, "book_id", &m.BookID); err != nil {
			return nil, err
		}
		return m, nil

	case TypeLockResponse:
		var m LockResponse
		if err := decodeField(fields, "book_id", &m.BookID); err != nil {
			return nil, err
		}
		if err := decodeField(fields, "approved", &m.Approved); err != nil {
			return nil, err
		}
		if _, ok := fields["error"]; ok {
			if err := decodeField(fields, "error", &m.Error); err != nil {
				return nil, err
			}
		}
		return m, nil

	case TypeReservation:
		var m Reservation
		if err := decodeField(fields, "book_id", &m.BookID); err != nil {
			return nil, err
		}
		return m, nil

	case TypeUnreserve:
		var m Unreserve
		if err := decodeField(fields, "book_id", &m.BookID); err != nil {
			return nil, err
		}
		return m, nil

	default:
		return nil, UnknownTypeError{Type: t}
	}
}

func decodeField(fields map[string]json.RawMessage, name string, dst any) error {
	raw, ok := fields[name]
	if !ok {
		return MalformedMessageError{Reason: "missing field " + name}
	}
	if err := json.Unmarshal(raw, dst); err != nil {
		return MalformedMessageError{Reason: "invalid field " + name, Err: err}
	}
	return nil
}

// FitInventoryUpdate encodes u so that it fits in max bytes. The inventory is
// always sent whole; update log entries are sorted and the tail is dropped
// until the payload fits. It returns the encoded payload and the number of
// dropped entries. Dropping entries is safe because receivers union logs.
func FitInventoryUpdate(u InventoryUpdate, max int) ([]byte, int, error) {
	updates := slices.Clone(u.Updates)
	slices.Sort(updates)
	if u.Inventory == nil {
		u.Inventory = map[string]*Record{}
	}

	encode := func(keep int) ([]byte, error) {
		kept := updates[:keep]
		if kept == nil {
			kept = []string{}
		}
		data, err := Encode(InventoryUpdate{Inventory: u.Inventory, Updates: kept})
		if err != nil {
			return nil, err
		}
		if len(data) > max {
			return nil, fmt.Errorf("inventory_update of %d bytes: %w", len(data), ErrPayloadTooLarge)
		}
		return data, nil
	}

	if data, err := encode(len(updates)); err == nil {
		return data, 0, nil
	}

	best, err := encode(0)
	if err != nil {
		// Inventory alone does not fit.
		return nil, len(updates), err
	}
	keep := 0
	lo, hi := 1, len(updates)-1
	for lo <= hi {
		mid := (lo + hi) / 2
		data, err := encode(mid)
		if err != nil {
			hi = mid - 1
			continue
		}
		best, keep = data, mid
		lo = mid + 1
	}
	return best, len(updates) - keep, nil
}
