package repository

import (
	"encoding/json"
	"fmt"

	"llm-chat/internal/domain"
)

// MessageCodec serializa un turno de conversación al formato de valor del
// store y lo reconstruye al leer.
type MessageCodec struct{}

func (MessageCodec) Encode(msg domain.Message) (string, error) {
	data, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("encode message: %w", err)
	}
	return string(data), nil
}

// Decode rechaza registros corruptos o con rol desconocido; el caller
// decide si los salta o aborta.
func (MessageCodec) Decode(raw string) (domain.Message, error) {
	var msg domain.Message
	if err := json.Unmarshal([]byte(raw), &msg); err != nil {
		return domain.Message{}, fmt.Errorf("decode message: %w", err)
	}
	if !msg.Role.Valid() {
		return domain.Message{}, fmt.Errorf("%w: unknown role %q", ErrInvalidMessage, msg.Role)
	}
	return msg, nil
}
