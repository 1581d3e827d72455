package streaming

import (
	"encoding/json"
	"errors"

	"provindex/internal/application"
	"provindex/internal/domain"
)

type MessageType string

const (
	MessageTypeTransaction MessageType = "transaction"
	MessageTypeRun         MessageType = "run"
)

// Message is the envelope written to the provenance topics. Exactly one of Transaction and
// Run is set, according to Type.
type Message struct {
	Type        MessageType                 `json:"type"`
	RunID       string                      `json:"run_id"`
	TraceID     string                      `json:"trace_id,omitempty"`
	Transaction *domain.DetailedTransaction `json:"transaction,omitempty"`
	Run         *application.RunReport      `json:"run,omitempty"`
}

func Encode(msg Message) ([]byte, error) {
	if err := validate(msg); err != nil {
		return nil, err
	}
	return json.Marshal(msg)
}

func Decode(payload []byte) (Message, error) {
	var msg Message
	if err := json.Unmarshal(payload, &msg); err != nil {
		return Message{}, err
	}
	if err := validate(msg); err != nil {
		return Message{}, err
	}
	return msg, nil
}

func validate(msg Message) error {
	if msg.RunID == "" {
		return errors.New("run_id is required")
	}
	switch msg.Type {
	case MessageTypeTransaction:
		if msg.Transaction == nil {
			return errors.New("transaction payload is missing")
		}
	case MessageTypeRun:
		if msg.Run == nil {
			return errors.New("run payload is missing")
		}
	case "":
		return errors.New("message type is required")
	default:
		return errors.New("unknown message type")
	}
	return nil
}
