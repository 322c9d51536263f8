package protocol

import (
	"fmt"

	"github.com/bytedance/sonic"
)

// Envelope is the outer wire frame. ID is the connection or session the
// frame belongs to, not a per-message correlation id. Data is a string
// holding a second JSON document, the operation payload.
type Envelope struct {
	ID   string `json:"id,omitempty"`
	Op   Op     `json:"op"`
	Data string `json:"data"`
}

// DecodeEnvelope parses the outer frame. A failure here is the caller's to
// handle; it never reaches the dispatcher.
func DecodeEnvelope(raw []byte) (Envelope, error) {
	var env Envelope
	if err := sonic.ConfigStd.Unmarshal(raw, &env); err != nil {
		return Envelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// EncodeFrame serializes payload and wraps it as {op, data}. The transport
// attaches delivery metadata such as the connection id before sending.
func EncodeFrame(op Op, payload any) ([]byte, error) {
	data, err := sonic.ConfigStd.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", op, err)
	}
	frame, err := sonic.ConfigStd.Marshal(Envelope{Op: op, Data: string(data)})
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", op, err)
	}
	return frame, nil
}

func decodePayload(data string, v any) error {
	return sonic.ConfigStd.Unmarshal([]byte(data), v)
}
