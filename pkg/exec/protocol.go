package exec

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"

	"github.com/rashlabs/rash/pkg/engine"
	"github.com/rashlabs/rash/pkg/value"
)

// The become worker speaks a single-shot JSON-over-stdio protocol: the
// parent writes one REQUEST line, the worker answers with one RESULT or
// ERROR line and exits.

// MessageType tags a protocol message.
type MessageType string

const (
	// MessageTypeRequest carries a WorkerRequest from parent to worker.
	MessageTypeRequest MessageType = "REQUEST"
	// MessageTypeResult carries the ModuleResult back to the parent.
	MessageTypeResult MessageType = "RESULT"
	// MessageTypeError carries a WorkerError back to the parent.
	MessageTypeError MessageType = "ERROR"
)

// Message is the wire envelope.
type Message struct {
	Type MessageType     `json:"type"`
	ID   string          `json:"id"`
	Data json.RawMessage `json:"data,omitempty"`
}

// WorkerRequest is the module invocation shipped to the become worker.
type WorkerRequest struct {
	ID        string               `json:"id"`
	Module    string               `json:"module"`
	Params    value.Value          `json:"params"`
	Vars      value.Value          `json:"vars"`
	CheckMode bool                 `json:"check_mode"`
	Global    *engine.GlobalParams `json:"global"`
	// User is the become target, resolved by name first, then as a
	// numeric uid.
	User string `json:"user"`
}

// WorkerError is a failure serialised across the IPC boundary with its
// taxonomy kind intact.
type WorkerError struct {
	Kind    engine.Kind `json:"kind"`
	Message string      `json:"message"`
}

// Encoder writes protocol messages to a stream.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder creates a protocol encoder.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes one message line and flushes.
func (e *Encoder) Encode(msgType MessageType, id string, data interface{}) error {
	var raw json.RawMessage
	if data != nil {
		b, err := json.Marshal(data)
		if err != nil {
			return fmt.Errorf("marshal %s payload: %w", msgType, err)
		}
		raw = b
	}
	b, err := json.Marshal(Message{Type: msgType, ID: id, Data: raw})
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	if _, err := e.w.Write(b); err != nil {
		return err
	}
	if err := e.w.WriteByte('\n'); err != nil {
		return err
	}
	return e.w.Flush()
}

// Decoder reads protocol messages from a stream.
type Decoder struct {
	s *bufio.Scanner
}

// NewDecoder creates a protocol decoder. Rendered parameters can be large,
// so the line buffer is generous.
func NewDecoder(r io.Reader) *Decoder {
	s := bufio.NewScanner(r)
	const maxLine = 10 * 1024 * 1024
	s.Buffer(make([]byte, 64*1024), maxLine)
	return &Decoder{s: s}
}

// Decode reads the next message. io.EOF signals a closed stream.
func (d *Decoder) Decode() (*Message, error) {
	for {
		if !d.s.Scan() {
			if err := d.s.Err(); err != nil {
				return nil, err
			}
			return nil, io.EOF
		}
		line := d.s.Bytes()
		if len(line) == 0 {
			continue
		}
		var msg Message
		if err := json.Unmarshal(line, &msg); err != nil {
			return nil, fmt.Errorf("malformed protocol message: %w", err)
		}
		return &msg, nil
	}
}
