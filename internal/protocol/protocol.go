// Package protocol implements a framed, self-describing message codec:
// a length-prefixed envelope carrying one tagged message (Request,
// Response, Error, or Ok), with no I/O state of its own beyond the
// io.Reader/io.Writer it's handed.
package protocol

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/hashicorp/go-msgpack/v2/codec"
)

var msgpackHandle codec.MsgpackHandle

// Kind discriminates the tagged Message union.
type Kind string

const (
	KindRequest  Kind = "request"
	KindResponse Kind = "response"
	KindError    Kind = "error"
	KindOk       Kind = "ok"
)

// CommandKind discriminates the tagged Command union carried by a
// Request message.
type CommandKind string

const (
	CommandSet    CommandKind = "set"
	CommandGet    CommandKind = "get"
	CommandRemove CommandKind = "remove"
)

// Command is one of Set{Key,Value}, Get{Key}, or Remove{Key}.
type Command struct {
	Kind  CommandKind `codec:"kind"`
	Key   string      `codec:"key"`
	Value string      `codec:"value,omitempty"`
}

// Message is the tagged union sent over the wire: exactly one of
// Request, Response, Error, or Ok is meaningful, selected by Kind.
type Message struct {
	Kind    Kind    `codec:"kind"`
	Command Command `codec:"command,omitempty"`
	Value   string  `codec:"value,omitempty"`
	Error   string  `codec:"error,omitempty"`
}

func NewRequest(cmd Command) Message {
	return Message{Kind: KindRequest, Command: cmd}
}

func NewResponse(value string) Message {
	return Message{Kind: KindResponse, Value: value}
}

func NewError(msg string) Message {
	return Message{Kind: KindError, Error: msg}
}

func NewOk() Message {
	return Message{Kind: KindOk}
}

// Encode serializes msg into a framed byte slice: an 8-byte
// little-endian payload length, a '\n' sentinel, then the msgpack
// payload.
func Encode(msg Message) ([]byte, error) {
	var payload []byte
	enc := codec.NewEncoderBytes(&payload, &msgpackHandle)
	if err := enc.Encode(msg); err != nil {
		return nil, fmt.Errorf("encode message: %w", err)
	}

	framed := make([]byte, 9+len(payload))
	binary.LittleEndian.PutUint64(framed[:8], uint64(len(payload)))
	framed[8] = '\n'
	copy(framed[9:], payload)

	return framed, nil
}

// Decode parses a msgpack payload (the bytes following the length
// prefix and its '\n' sentinel) back into a Message.
func Decode(payload []byte) (Message, error) {
	var msg Message
	dec := codec.NewDecoderBytes(payload, &msgpackHandle)
	if err := dec.Decode(&msg); err != nil {
		return Message{}, fmt.Errorf("decode message: %w", err)
	}
	return msg, nil
}

// Send encodes msg and writes exactly one framed message to w,
// flushing if w supports it.
func Send(msg Message, w io.Writer) error {
	framed, err := Encode(msg)
	if err != nil {
		return err
	}

	if _, err := w.Write(framed); err != nil {
		return fmt.Errorf("send message: %w", err)
	}

	if f, ok := w.(interface{ Flush() error }); ok {
		if err := f.Flush(); err != nil {
			return fmt.Errorf("send message: flush: %w", err)
		}
	}

	return nil
}

// Receive reads exactly one framed payload from r, blocking until it's
// available or the peer closes the connection. An EOF encountered
// mid-frame is reported as an error, never treated as "no message". It
// reads directly off r, with no internal buffering of its own, so it's
// safe to call repeatedly on the same stream to read successive
// frames.
func Receive(r io.Reader) ([]byte, error) {
	header := make([]byte, 9)
	if _, err := io.ReadFull(r, header); err != nil {
		return nil, fmt.Errorf("receive message: header: %w", err)
	}

	length := binary.LittleEndian.Uint64(header[:8])
	if header[8] != '\n' {
		return nil, fmt.Errorf("receive message: missing frame sentinel")
	}

	payload := make([]byte, length)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, fmt.Errorf("receive message: payload: %w", err)
	}

	return payload, nil
}

// ReceiveMessage is a convenience wrapper combining Receive and Decode.
func ReceiveMessage(r io.Reader) (Message, error) {
	payload, err := Receive(r)
	if err != nil {
		return Message{}, err
	}
	return Decode(payload)
}
