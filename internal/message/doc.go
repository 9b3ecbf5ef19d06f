// Package message defines the datagram wire protocol shared by peers and the
// discovery registry: peer addresses, the message schemas, and the JSON codec.
//
// Every datagram is a single UTF-8 JSON object with a "type" field. Decoding
// is strict about required fields so a malformed datagram can be dropped
// without disturbing the receive loop.
package message
