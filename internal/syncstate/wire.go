package syncstate

import (
	"encoding/binary"
	"encoding/json"
	"io"

	"github.com/spacedriveapp/spacedrive-sub011/internal/errs"
)

// MaxFrameSize bounds a single incoming frame, guarding against a
// malformed or hostile length prefix asking for an unbounded read.
const MaxFrameSize = 64 * 1024 * 1024

// WriteFrame encodes msg as length-prefixed JSON (spec.md §6: "length-
// prefixed (u32 big-endian) JSON ... carried over a bidirectional
// stream") and writes it to w.
func WriteFrame(w io.Writer, msg Message) error {
	body, err := json.Marshal(msg)
	if err != nil {
		return errs.Wrap(errs.SerializationForm, "marshal sync message", err)
	}
	var lenBuf [4]byte
	binary.BigEndian.PutUint32(lenBuf[:], uint32(len(body)))
	if _, err := w.Write(lenBuf[:]); err != nil {
		return errs.Wrap(errs.IO, "write frame length", err)
	}
	if _, err := w.Write(body); err != nil {
		return errs.Wrap(errs.IO, "write frame body", err)
	}
	return nil
}

// ReadFrame reads one length-prefixed JSON message from r.
func ReadFrame(r io.Reader) (Message, error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return Message{}, errs.Wrap(errs.IO, "read frame length", err)
	}
	n := binary.BigEndian.Uint32(lenBuf[:])
	if n > MaxFrameSize {
		return Message{}, errs.New(errs.Validation, "frame exceeds max size")
	}
	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return Message{}, errs.Wrap(errs.IO, "read frame body", err)
	}
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return Message{}, errs.Wrap(errs.SerializationForm, "unmarshal sync message", err)
	}
	return msg, nil
}

// Encode wraps a typed payload into a Message of the given type.
func Encode(t MessageType, payload any) (Message, error) {
	raw, err := json.Marshal(payload)
	if err != nil {
		return Message{}, errs.Wrap(errs.SerializationForm, "marshal "+string(t)+" payload", err)
	}
	return Message{Type: t, Payload: raw}, nil
}

// Decode unmarshals msg's payload into out, which must be a pointer to
// the type matching msg.Type.
func Decode(msg Message, out any) error {
	if err := json.Unmarshal(msg.Payload, out); err != nil {
		return errs.Wrap(errs.SerializationForm, "unmarshal "+string(msg.Type)+" payload", err)
	}
	return nil
}
